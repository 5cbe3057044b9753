package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jobmate/fulfillment-service/internal/apperr"
	"jobmate/fulfillment-service/internal/model"
)

const bookingColumns = `id, request_id, provider_id, service_id, service_type, location_text,
	location_lat, location_lng, scheduled_at, hourly_rate, estimated_hours, price, status,
	created_by, created_at, reminded_at`

// InsertBooking writes a booking. A second non-cancelled booking for the same
// request violates bookings_one_active_per_request and is reported as
// apperr.KindConcurrencyConflict.
func (q *Queries) InsertBooking(ctx context.Context, b *model.Booking) error {
	lat, lng := geoArgs(b.Location.Geo)
	_, err := q.exec(ctx,
		`INSERT INTO bookings (`+bookingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.RequestID, b.ProviderID, b.ServiceID, b.ServiceType, b.Location.Text,
		lat, lng, nullTime(b.ScheduledAt), b.HourlyRate, b.EstimatedHours, b.Price, b.Status,
		b.CreatedBy, b.CreatedAt.UTC(), nullTime(b.RemindedAt),
	)
	if IsUniqueViolation(err) {
		return apperr.Wrap(apperr.KindConcurrencyConflict, err,
			fmt.Sprintf("request %s already has an active booking", b.RequestID))
	}
	if err != nil {
		return fmt.Errorf("insertBooking: %w", err)
	}
	return nil
}

// ActiveBooking returns the non-cancelled booking of a request, if any.
func (q *Queries) ActiveBooking(ctx context.Context, requestID string) (*model.Booking, bool, error) {
	row := q.queryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE request_id = ? AND status <> ?`,
		requestID, model.BookingCancelled)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("activeBooking: %w", err)
	}
	return b, true, nil
}

// DueReminders lists confirmed, not yet reminded bookings scheduled in [from, to).
func (q *Queries) DueReminders(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	rows, err := q.query(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE status = ? AND reminded_at IS NULL
		   AND scheduled_at >= ? AND scheduled_at < ?
		 ORDER BY scheduled_at, id`,
		model.BookingConfirmed, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("dueReminders query: %w", err)
	}
	defer rows.Close()

	bookings := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("dueReminders scan: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// MarkReminded stamps reminded_at so the reminder is not sent twice.
func (q *Queries) MarkReminded(ctx context.Context, bookingID string, at time.Time) error {
	res, err := q.exec(ctx,
		`UPDATE bookings SET reminded_at = ? WHERE id = ? AND reminded_at IS NULL`,
		at.UTC(), bookingID)
	if err != nil {
		return fmt.Errorf("markReminded: %w", err)
	}
	return expectOne(res, "unreminded booking", bookingID)
}

// CountBookings returns how many booking rows exist for a request, cancelled included.
func (q *Queries) CountBookings(ctx context.Context, requestID string) (int, error) {
	var n int
	if err := q.queryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE request_id = ?`, requestID).Scan(&n); err != nil {
		return 0, fmt.Errorf("countBookings: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(s scanner) (*model.Booking, error) {
	var (
		b                   model.Booking
		lat, lng            sql.NullFloat64
		scheduled, reminded sql.NullTime
	)
	err := s.Scan(
		&b.ID, &b.RequestID, &b.ProviderID, &b.ServiceID, &b.ServiceType, &b.Location.Text,
		&lat, &lng, &scheduled, &b.HourlyRate, &b.EstimatedHours, &b.Price, &b.Status,
		&b.CreatedBy, &b.CreatedAt, &reminded,
	)
	if err != nil {
		return nil, err
	}
	b.Location.Geo = geoFrom(lat, lng)
	b.ScheduledAt = timeFrom(scheduled)
	b.RemindedAt = timeFrom(reminded)
	return &b, nil
}
