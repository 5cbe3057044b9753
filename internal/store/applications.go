package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"jobmate/fulfillment-service/internal/apperr"
	"jobmate/fulfillment-service/internal/model"
)

// CreateApplication inserts a job application. Status defaults to "pending".
func (q *Queries) CreateApplication(ctx context.Context, a *model.JobApplication) error {
	if a.Status == "" {
		a.Status = "pending"
	}
	types, err := json.Marshal(nonNil(a.ServiceTypes))
	if err != nil {
		return fmt.Errorf("createApplication: %w", err)
	}
	_, err = q.exec(ctx,
		`INSERT INTO job_applications
		 (id, applicant_name, email, phone, push_token, service_types, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ApplicantName, nullString(a.Contact.Email), nullString(a.Contact.Phone),
		nullString(a.Contact.PushToken), string(types), a.Status, a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("createApplication: %w", err)
	}
	return nil
}

// GetApplication loads an application; inside a transaction the row is locked.
func (q *Queries) GetApplication(ctx context.Context, id string) (*model.JobApplication, error) {
	var (
		a                  model.JobApplication
		email, phone, push sql.NullString
		types              string
	)
	err := q.queryRow(ctx,
		`SELECT id, applicant_name, email, phone, push_token, service_types, status, created_at, updated_at
		 FROM job_applications WHERE id = ?`+q.lockClause(), id,
	).Scan(&a.ID, &a.ApplicantName, &email, &phone, &push, &types, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("job application %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getApplication: %w", err)
	}
	if err := json.Unmarshal([]byte(types), &a.ServiceTypes); err != nil {
		return nil, fmt.Errorf("getApplication service_types: %w", err)
	}
	a.Contact = model.Contact{Name: a.ApplicantName, Email: email.String, Phone: phone.String, PushToken: push.String}
	return &a, nil
}

// SetApplicationStatus writes a new status; it reports NotFound for unknown ids.
func (q *Queries) SetApplicationStatus(ctx context.Context, id, status string, at time.Time) error {
	res, err := q.exec(ctx,
		`UPDATE job_applications SET status = ?, updated_at = ? WHERE id = ?`,
		status, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("setApplicationStatus: %w", err)
	}
	return expectOne(res, "job application", id)
}

// ProvisionProviderAccount records the provider account created for an
// approved application. It reports false when the account already existed.
func (q *Queries) ProvisionProviderAccount(ctx context.Context, applicationID string, at time.Time) (bool, error) {
	res, err := q.exec(ctx,
		`INSERT INTO provider_accounts (application_id, created_at) VALUES (?, ?)
		 ON CONFLICT (application_id) DO NOTHING`,
		applicationID, at.UTC())
	if err != nil {
		return false, fmt.Errorf("provisionProviderAccount: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("provisionProviderAccount: %w", err)
	}
	return n > 0, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
