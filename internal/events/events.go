// Package events publishes lifecycle and booking events to downstream
// consumers (gateway SSE, analytics). Publishing is always non-fatal for the
// operation that produced the event.
package events

import (
	"context"
	"errors"
	"time"
)

// Event types.
const (
	TypeStatusChanged  = "EVENT_STATUS_CHANGED"
	TypeBookingCreated = "EVENT_BOOKING_CREATED"
)

// Event is the JSON envelope published on every channel.
type Event struct {
	Type       string            `json:"type"`
	EntityType string            `json:"entityType"`
	EntityID   string            `json:"entityId"`
	From       string            `json:"from,omitempty"`
	To         string            `json:"to,omitempty"`
	Actor      string            `json:"actor,omitempty"`
	At         time.Time         `json:"at"`
	Data       map[string]string `json:"data,omitempty"`
}

// Publisher delivers events to one backend.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi publishes to every backend and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory; tests use it as a Publisher.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.Events = append(r.Events, e)
	return nil
}
