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

const requestColumns = `id, client_id, client_name, client_email, client_phone, client_push_token,
	service_type, description, location_text, location_lat, location_lng, preferred_at,
	budget_min, budget_max, estimated_hours, urgency_level, status, additional_notes,
	created_at, updated_at`

// CreateRequest inserts a new service request. Status defaults to "new".
func (q *Queries) CreateRequest(ctx context.Context, r *model.ServiceRequest) error {
	if r.Status == "" {
		r.Status = "new"
	}
	if r.Urgency == "" {
		r.Urgency = model.UrgencyNormal
	}
	lat, lng := geoArgs(r.Location.Geo)
	_, err := q.exec(ctx,
		`INSERT INTO service_requests (`+requestColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ClientID, r.Client.Name, nullString(r.Client.Email), nullString(r.Client.Phone),
		nullString(r.Client.PushToken), r.ServiceType, r.Description, r.Location.Text, lat, lng,
		nullTime(r.PreferredAt), r.BudgetMin, r.BudgetMax, r.EstimatedHours, string(r.Urgency),
		r.Status, r.AdditionalNotes, r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("createRequest: %w", err)
	}
	return nil
}

// GetRequest loads a request; inside a transaction the row is locked.
func (q *Queries) GetRequest(ctx context.Context, id string) (*model.ServiceRequest, error) {
	row := q.queryRow(ctx,
		`SELECT `+requestColumns+` FROM service_requests WHERE id = ?`+q.lockClause(), id)

	var (
		r                  model.ServiceRequest
		email, phone, push sql.NullString
		lat, lng           sql.NullFloat64
		preferred          sql.NullTime
		urgency            string
	)
	err := row.Scan(
		&r.ID, &r.ClientID, &r.Client.Name, &email, &phone, &push,
		&r.ServiceType, &r.Description, &r.Location.Text, &lat, &lng, &preferred,
		&r.BudgetMin, &r.BudgetMax, &r.EstimatedHours, &urgency, &r.Status, &r.AdditionalNotes,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("service request %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getRequest: %w", err)
	}

	r.Client.Email, r.Client.Phone, r.Client.PushToken = email.String, phone.String, push.String
	r.Location.Geo = geoFrom(lat, lng)
	r.PreferredAt = timeFrom(preferred)
	r.Urgency = model.Urgency(urgency)
	return &r, nil
}

// SetRequestStatus writes a new status; it reports NotFound for unknown ids.
func (q *Queries) SetRequestStatus(ctx context.Context, id, status string, at time.Time) error {
	res, err := q.exec(ctx,
		`UPDATE service_requests SET status = ?, updated_at = ? WHERE id = ?`,
		status, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("setRequestStatus: %w", err)
	}
	return expectOne(res, "service request", id)
}

// ─── Shared scan helpers ─────────────────────────────────────────────────────

func geoArgs(g *model.Coordinates) (sql.NullFloat64, sql.NullFloat64) {
	if g == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: g.Lat, Valid: true}, sql.NullFloat64{Float64: g.Lng, Valid: true}
}

func geoFrom(lat, lng sql.NullFloat64) *model.Coordinates {
	if !lat.Valid || !lng.Valid {
		return nil
	}
	return &model.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timeFrom(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func expectOne(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("%s %s not found", what, id)
	}
	return nil
}
