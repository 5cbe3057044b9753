package store

import (
	"context"
	"fmt"

	"jobmate/fulfillment-service/internal/model"
)

// InsertNotification writes the audit entry of one dispatched event.
func (q *Queries) InsertNotification(ctx context.Context, rec model.NotificationRecord) error {
	_, err := q.exec(ctx,
		`INSERT INTO notifications
		 (id, event_key, recipient_id, template, event_type, priority, status, channels, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EventKey, rec.RecipientID, rec.Template, rec.EventType, rec.Priority,
		rec.Status, string(rec.Channels), rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insertNotification: %w", err)
	}
	return nil
}

// Notifications lists the audit entries of a recipient, oldest first.
func (q *Queries) Notifications(ctx context.Context, recipientID string) ([]model.NotificationRecord, error) {
	rows, err := q.query(ctx,
		`SELECT id, event_key, recipient_id, template, event_type, priority, status, channels, created_at
		 FROM notifications WHERE recipient_id = ? ORDER BY created_at, id`,
		recipientID)
	if err != nil {
		return nil, fmt.Errorf("notifications query: %w", err)
	}
	defer rows.Close()

	records := make([]model.NotificationRecord, 0)
	for rows.Next() {
		var (
			r        model.NotificationRecord
			channels string
		)
		if err := rows.Scan(&r.ID, &r.EventKey, &r.RecipientID, &r.Template, &r.EventType,
			&r.Priority, &r.Status, &channels, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("notifications scan: %w", err)
		}
		r.Channels = []byte(channels)
		records = append(records, r)
	}
	return records, rows.Err()
}
