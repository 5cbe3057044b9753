// Package reminder sends the 24h reminder for upcoming bookings.
package reminder

import (
	"context"
	"fmt"
	"log"
	"time"

	"jobmate/fulfillment-service/internal/apperr"
	"jobmate/fulfillment-service/internal/lifecycle"
	"jobmate/fulfillment-service/internal/model"
	"jobmate/fulfillment-service/internal/notify"
	"jobmate/fulfillment-service/internal/store"
)

// Window is how far ahead a booking must be scheduled to be reminded.
const Window = 24 * time.Hour

// Stats counts the outcome of one run.
type Stats struct {
	Due     int `json:"due"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Worker runs one reminder cycle.
type Worker struct {
	store    *store.Store
	notifier lifecycle.Notifier
	now      func() time.Time
}

// NewWorker constructs a Worker.
func NewWorker(st *store.Store, n lifecycle.Notifier) *Worker {
	return &Worker{store: st, notifier: n, now: time.Now}
}

// WithClock overrides time.Now and returns w.
func (w *Worker) WithClock(now func() time.Time) *Worker {
	w.now = now
	return w
}

// Run reminds every confirmed booking scheduled within the next 24h that has
// not been reminded yet. A booking is claimed by stamping remindedAt before
// the notification is queued, so overlapping runs remind it once.
func (w *Worker) Run(ctx context.Context) (Stats, error) {
	now := w.now().UTC()
	q := w.store.Queries()

	due, err := q.DueReminders(ctx, now, now.Add(Window))
	if err != nil {
		return Stats{}, fmt.Errorf("due reminders: %w", err)
	}
	stats := Stats{Due: len(due)}

	for _, b := range due {
		if err := q.MarkReminded(ctx, b.ID, now); err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				stats.Skipped++
				continue
			}
			log.Printf("[reminder] MarkReminded error for booking %s: %v", b.ID, err)
			stats.Failed++
			continue
		}
		if err := w.remind(ctx, q, b); err != nil {
			log.Printf("[reminder] Booking %s not reminded: %v", b.ID, err)
			stats.Failed++
			continue
		}
		stats.Sent++
	}

	log.Printf("[reminder] Cycle done: due=%d sent=%d skipped=%d failed=%d",
		stats.Due, stats.Sent, stats.Skipped, stats.Failed)
	return stats, nil
}

func (w *Worker) remind(ctx context.Context, q *store.Queries, b model.Booking) error {
	req, err := q.GetRequest(ctx, b.RequestID)
	if err != nil {
		return err
	}
	name := req.Client.Name
	if name == "" {
		name = "there"
	}
	location := b.Location.Text
	if location == "" {
		location = "the agreed address"
	}
	_, err = w.notifier.Enqueue(ctx, notify.TemplateReminder24h,
		notify.Recipient{ID: req.RecipientID(), Contact: req.Client},
		map[string]string{
			"name":        name,
			"serviceType": b.ServiceType,
			"date":        b.ScheduledAt.Format("2006-01-02 15:04"),
			"location":    location,
		})
	return err
}
