// Package notify fans business events out to the message, SMS and push
// channels under priority rules.
//
// Channel rules:
//   - message: whenever a message payload and an email address exist
//   - sms:     only at urgent priority, with a phone number and an sms payload
//   - push:    whenever a push payload exists
//
// Channels are attempted concurrently and independently, each under its own
// timeout; one audit record is written per event.
package notify

import (
	"fmt"

	"jobmate/fulfillment-service/internal/model"
)

// Channel names a delivery channel.
type Channel string

const (
	ChannelMessage Channel = "message"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
)

// Channels lists every channel in audit order.
var Channels = []Channel{ChannelMessage, ChannelSMS, ChannelPush}

// Priority controls which channels fire.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority accepts the three priority levels.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case PriorityNormal, PriorityHigh, PriorityUrgent:
		return p, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// Overall event statuses.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Recipient is who an event is addressed to.
type Recipient struct {
	ID      string        `json:"id"`
	Contact model.Contact `json:"contact"`
}

// Text is a titled body, used for message and push payloads.
type Text struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Payloads holds one optional payload per channel.
type Payloads struct {
	Message *Text   `json:"message,omitempty"`
	SMS     *string `json:"sms,omitempty"`
	Push    *Text   `json:"push,omitempty"`
}

// Event is one notification to dispatch.
type Event struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Template  string    `json:"template"`
	EventType string    `json:"eventType"`
	Priority  Priority  `json:"priority"`
	Recipient Recipient `json:"recipient"`
	Payloads  Payloads  `json:"payloads"`
}

// Delivery is what a single channel sender receives.
type Delivery struct {
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	Channel   Channel   `json:"channel"`
	Recipient Recipient `json:"recipient"`
	Title     string    `json:"title,omitempty"`
	Body      string    `json:"body"`
}

// ChannelResult is the outcome of one channel for one event.
type ChannelResult struct {
	Attempted bool   `json:"attempted"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

// Result aggregates every channel of one event.
type Result struct {
	EventID  string                    `json:"eventId"`
	EventKey string                    `json:"eventKey"`
	Status   string                    `json:"status"`
	Channels map[Channel]ChannelResult `json:"channels"`
}

// Ack acknowledges an event accepted for background dispatch.
type Ack struct {
	EventID  string `json:"eventId"`
	EventKey string `json:"eventKey"`
}

// plan decides which channels an event qualifies for.
func plan(ev Event) map[Channel]*Delivery {
	out := make(map[Channel]*Delivery, len(Channels))
	base := Delivery{EventID: ev.ID, EventType: ev.EventType, Recipient: ev.Recipient}
	contact := ev.Recipient.Contact

	if p := ev.Payloads.Message; p != nil && contact.Email != "" {
		d := base
		d.Channel, d.Title, d.Body = ChannelMessage, p.Title, p.Body
		out[ChannelMessage] = &d
	}
	if p := ev.Payloads.SMS; p != nil && ev.Priority == PriorityUrgent && contact.Phone != "" {
		d := base
		d.Channel, d.Body = ChannelSMS, *p
		out[ChannelSMS] = &d
	}
	if p := ev.Payloads.Push; p != nil {
		d := base
		d.Channel, d.Title, d.Body = ChannelPush, p.Title, p.Body
		out[ChannelPush] = &d
	}
	return out
}
