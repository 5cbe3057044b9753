package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobmate/fulfillment-service/internal/apperr"
	"jobmate/fulfillment-service/internal/model"
	"jobmate/fulfillment-service/internal/outbox"
)

// DefaultChannelTimeout bounds each channel attempt.
const DefaultChannelTimeout = 5 * time.Second

// Auditor persists the one audit record written per event.
type Auditor interface {
	InsertNotification(ctx context.Context, rec model.NotificationRecord) error
}

// DeadLetters receives failed deliveries for the external retry process.
type DeadLetters interface {
	Put(e outbox.Entry) error
}

// Orchestrator dispatches events. It holds no per-call state; the wait group
// only tracks background dispatches for graceful shutdown.
type Orchestrator struct {
	senders   map[Channel]Sender
	templates *Templates
	audit     Auditor
	dead      DeadLetters
	timeout   time.Duration
	now       func() time.Time
	newID     func() string

	inflight sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTemplates replaces the built-in catalogue.
func WithTemplates(t *Templates) Option { return func(o *Orchestrator) { o.templates = t } }

// WithChannelTimeout sets the per-channel bound.
func WithChannelTimeout(d time.Duration) Option { return func(o *Orchestrator) { o.timeout = d } }

// WithDeadLetters hands failed deliveries to an outbox.
func WithDeadLetters(d DeadLetters) Option { return func(o *Orchestrator) { o.dead = d } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// NewOrchestrator builds an orchestrator. audit may be nil (no audit trail).
func NewOrchestrator(senders Senders, audit Auditor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		senders: senders.byChannel(),
		audit:   audit,
		timeout: DefaultChannelTimeout,
		now:     time.Now,
		newID:   func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.templates == nil {
		o.templates = DefaultTemplates()
	}
	return o
}

// Templates returns the catalogue in use.
func (o *Orchestrator) Templates() *Templates { return o.templates }

// Notify renders a template and dispatches it synchronously.
func (o *Orchestrator) Notify(ctx context.Context, template string, to Recipient, data map[string]string) (*Result, error) {
	ev, err := o.prepare(template, to, data)
	if err != nil {
		return nil, err
	}
	return o.Dispatch(ctx, ev)
}

// Enqueue renders a template and dispatches it in the background. Validation
// errors are returned immediately; delivery outcomes are only recorded.
func (o *Orchestrator) Enqueue(ctx context.Context, template string, to Recipient, data map[string]string) (Ack, error) {
	ev, err := o.prepare(template, to, data)
	if err != nil {
		return Ack{}, err
	}

	detached := context.WithoutCancel(ctx)
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		if _, err := o.Dispatch(detached, ev); err != nil {
			slog.Warn("background dispatch failed", "eventId", ev.ID, "template", template, "err", err)
		}
	}()
	return Ack{EventID: ev.ID, EventKey: ev.Key}, nil
}

// Wait blocks until every background dispatch has finished.
func (o *Orchestrator) Wait() { o.inflight.Wait() }

func (o *Orchestrator) prepare(template string, to Recipient, data map[string]string) (Event, error) {
	if to.ID == "" {
		return Event{}, apperr.Validation("recipient id is required")
	}
	ev, err := o.templates.Render(template, to, data)
	if err != nil {
		return Event{}, err
	}
	ev.ID = o.newID()
	ev.Key = EventKey(template, to.ID, data)
	return ev, nil
}

// Dispatch fans ev out to every qualifying channel concurrently. The overall
// status is "sent" when at least one channel succeeded. Channel failures are
// reported in the result, never as an error; the error return is reserved for
// malformed events.
func (o *Orchestrator) Dispatch(ctx context.Context, ev Event) (*Result, error) {
	if ev.Recipient.ID == "" {
		return nil, apperr.Validation("recipient id is required")
	}
	if _, err := ParsePriority(string(ev.Priority)); err != nil {
		return nil, apperr.Validation("%v", err)
	}
	if ev.ID == "" {
		ev.ID = o.newID()
	}

	deliveries := plan(ev)
	res := &Result{
		EventID:  ev.ID,
		EventKey: ev.Key,
		Status:   StatusFailed,
		Channels: make(map[Channel]ChannelResult, len(Channels)),
	}
	for _, ch := range Channels {
		res.Channels[ch] = ChannelResult{}
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for ch, d := range deliveries {
		sender, ok := o.senders[ch]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(ch Channel, d Delivery) {
			defer wg.Done()
			err := o.sendBounded(ctx, sender, d)

			cr := ChannelResult{Attempted: true, Succeeded: err == nil}
			if err != nil {
				cr.Error = err.Error()
				slog.Warn("notification channel failed", "channel", ch, "eventId", ev.ID,
					"template", ev.Template, "err", apperr.Wrap(apperr.KindChannelDelivery, err, string(ch)))
				o.deadLetter(ev, d, err)
			}
			mu.Lock()
			res.Channels[ch] = cr
			mu.Unlock()
		}(ch, *d)
	}
	wg.Wait()

	for _, cr := range res.Channels {
		if cr.Succeeded {
			res.Status = StatusSent
			break
		}
	}

	o.record(ctx, ev, res)
	return res, nil
}

// sendBounded returns when the sender finishes or the channel timeout
// expires, whichever comes first, even if the sender ignores ctx.
func (o *Orchestrator) sendBounded(ctx context.Context, s Sender, d Delivery) error {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("sender panic: %v", r)
			}
		}()
		done <- s.Send(ctx, d)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s timed out after %s", d.Channel, o.timeout)
		}
		return ctx.Err()
	}
}

func (o *Orchestrator) deadLetter(ev Event, d Delivery, cause error) {
	if o.dead == nil {
		return
	}
	payload, err := json.Marshal(d)
	if err != nil {
		slog.Warn("dead letter encode failed", "eventId", ev.ID, "err", err)
		return
	}
	err = o.dead.Put(outbox.Entry{
		EventID:     ev.ID,
		EventKey:    ev.Key,
		Template:    ev.Template,
		Channel:     string(d.Channel),
		RecipientID: ev.Recipient.ID,
		Delivery:    payload,
		Error:       cause.Error(),
		FailedAt:    o.now().UnixNano(),
	})
	if err != nil {
		slog.Warn("dead letter write failed", "eventId", ev.ID, "channel", d.Channel, "err", err)
	}
}

// record writes the audit entry; failure to audit is logged, not returned.
func (o *Orchestrator) record(ctx context.Context, ev Event, res *Result) {
	if o.audit == nil {
		return
	}
	channels, err := json.Marshal(res.Channels)
	if err != nil {
		slog.Warn("notification audit encode failed", "eventId", ev.ID, "err", err)
		return
	}
	err = o.audit.InsertNotification(ctx, model.NotificationRecord{
		ID:          ev.ID,
		EventKey:    ev.Key,
		RecipientID: ev.Recipient.ID,
		Template:    ev.Template,
		EventType:   ev.EventType,
		Priority:    string(ev.Priority),
		Status:      res.Status,
		Channels:    channels,
		CreatedAt:   o.now(),
	})
	if err != nil {
		slog.Warn("notification audit write failed", "eventId", ev.ID, "err", err)
	}
}
