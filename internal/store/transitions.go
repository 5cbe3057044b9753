package store

import (
	"context"
	"fmt"

	"jobmate/fulfillment-service/internal/model"
)

// AppendTransition appends one audit record. Records are never updated.
func (q *Queries) AppendTransition(ctx context.Context, rec model.StatusTransitionRecord) error {
	_, err := q.exec(ctx,
		`INSERT INTO status_transitions
		 (id, entity_id, entity_type, from_status, to_status, actor, comment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EntityID, string(rec.EntityType), rec.FromStatus, rec.ToStatus,
		rec.Actor, rec.Comment, rec.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("appendTransition: %w", err)
	}
	return nil
}

// History returns the audit trail of an entity, oldest first.
func (q *Queries) History(ctx context.Context, entityType model.EntityType, entityID string) ([]model.StatusTransitionRecord, error) {
	rows, err := q.query(ctx,
		`SELECT id, entity_id, entity_type, from_status, to_status, actor, comment, created_at
		 FROM status_transitions
		 WHERE entity_type = ? AND entity_id = ?
		 ORDER BY created_at, id`,
		string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}
	defer rows.Close()

	records := make([]model.StatusTransitionRecord, 0)
	for rows.Next() {
		var (
			r  model.StatusTransitionRecord
			et string
		)
		if err := rows.Scan(&r.ID, &r.EntityID, &et, &r.FromStatus, &r.ToStatus, &r.Actor, &r.Comment, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("history scan: %w", err)
		}
		r.EntityType = model.EntityType(et)
		records = append(records, r)
	}
	return records, rows.Err()
}
