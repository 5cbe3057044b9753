// Package conversion turns a matched service request into a confirmed booking.
//
// The booking insert and the request's move to "converted" commit in one
// transaction. A partial unique index on bookings(request_id) guarantees at
// most one active booking per request even under concurrent calls; a losing
// caller gets the winner's booking back.
package conversion

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"jobmate/fulfillment-service/internal/apperr"
	"jobmate/fulfillment-service/internal/events"
	"jobmate/fulfillment-service/internal/lifecycle"
	"jobmate/fulfillment-service/internal/model"
	"jobmate/fulfillment-service/internal/notify"
	"jobmate/fulfillment-service/internal/store"
	"jobmate/fulfillment-service/internal/textnorm"
)

// DefaultEstimatedHours prices requests that carry no estimate.
var DefaultEstimatedHours = decimal.NewFromInt(2)

// ProviderLookup resolves one provider from the directory.
type ProviderLookup interface {
	GetProvider(ctx context.Context, id string) (*model.Provider, error)
}

// Result is the outcome of Convert. Created is false when an existing
// booking was returned.
type Result struct {
	Booking *model.Booking `json:"booking"`
	Created bool           `json:"created"`
}

// Orchestrator runs conversions.
type Orchestrator struct {
	store     *store.Store
	lifecycle *lifecycle.Service
	providers ProviderLookup
	pub       events.Publisher
	notifier  lifecycle.Notifier
	hours     decimal.Decimal
	now       func() time.Time
	newID     func() string

	// skipPrecheck disables the in-transaction duplicate lookup so tests can
	// drive the unique-index path.
	skipPrecheck bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier sends booking confirmations through n.
func WithNotifier(n lifecycle.Notifier) Option { return func(o *Orchestrator) { o.notifier = n } }

// WithPublisher publishes EVENT_BOOKING_CREATED through p.
func WithPublisher(p events.Publisher) Option { return func(o *Orchestrator) { o.pub = p } }

// WithDefaultHours overrides DefaultEstimatedHours.
func WithDefaultHours(h decimal.Decimal) Option { return func(o *Orchestrator) { o.hours = h } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// New returns an Orchestrator.
func New(st *store.Store, lc *lifecycle.Service, providers ProviderLookup, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		lifecycle: lc,
		providers: providers,
		pub:       events.Nop{},
		hours:     DefaultEstimatedHours,
		now:       time.Now,
		newID:     func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

var convertible = map[lifecycle.Status]bool{
	lifecycle.RequestNew:        true,
	lifecycle.RequestProcessing: true,
	lifecycle.RequestAssigned:   true,
}

// Convert books providerID's service serviceID for requestID.
//
// Returns NotFound for an unknown request, InvalidState when the request can
// no longer be converted, ProviderUnavailable when the provider does not
// actively offer the service. When the request already has an active booking
// that booking is returned unchanged.
func (o *Orchestrator) Convert(ctx context.Context, requestID, providerID, serviceID, actor string) (*Result, error) {
	switch {
	case requestID == "" || providerID == "" || serviceID == "":
		return nil, apperr.Validation("requestId, providerId and serviceId are required")
	case actor == "":
		return nil, apperr.Validation("an actor id is required")
	}

	var (
		res      *Result
		req      *model.ServiceRequest
		provider *model.Provider
		changes  []lifecycle.Change
	)
	err := o.store.InTx(ctx, func(q *store.Queries) error {
		var err error
		req, err = q.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}

		if !o.skipPrecheck {
			existing, ok, err := q.ActiveBooking(ctx, requestID)
			if err != nil {
				return err
			}
			if ok {
				res = &Result{Booking: existing}
				return nil
			}
		}

		from, err := lifecycle.RequestGraph.ParseStatus(req.Status)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "stored status")
		}
		if !convertible[from] {
			return apperr.New(apperr.KindInvalidState, "request %s is %s and cannot be converted", requestID, from)
		}

		var svc model.ProviderService
		provider, svc, err = o.resolveService(ctx, providerID, serviceID, req.ServiceType)
		if err != nil {
			return err
		}

		b := o.newBooking(req, provider, svc, actor)
		if err := q.InsertBooking(ctx, b); err != nil {
			return err
		}
		changes, err = o.lifecycle.AdvanceSystem(ctx, q, model.EntityRequest, requestID,
			from, lifecycle.RequestConverted, actor, "booking "+b.ID)
		if err != nil {
			return err
		}
		res = &Result{Booking: b, Created: true}
		return nil
	})

	if apperr.Is(err, apperr.KindConcurrencyConflict) {
		existing, ok, lookupErr := o.store.Queries().ActiveBooking(ctx, requestID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if !ok {
			return nil, err
		}
		slog.Info("concurrent conversion resolved to existing booking", "requestId", requestID, "bookingId", existing.ID)
		return &Result{Booking: existing}, nil
	}
	if err != nil {
		return nil, err
	}
	if !res.Created {
		return res, nil
	}

	o.lifecycle.Committed(ctx, changes)
	o.announce(ctx, req, provider, res.Booking)
	return res, nil
}

func (o *Orchestrator) resolveService(ctx context.Context, providerID, serviceID, serviceType string) (*model.Provider, model.ProviderService, error) {
	p, err := o.providers.GetProvider(ctx, providerID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, model.ProviderService{}, apperr.New(apperr.KindProviderUnavailable, "provider %s does not exist", providerID)
	}
	if err != nil {
		return nil, model.ProviderService{}, apperr.Wrap(apperr.KindInternal, err, "provider directory")
	}
	svc, ok := p.ServiceByID(serviceID)
	switch {
	case !ok:
		return nil, svc, apperr.New(apperr.KindProviderUnavailable, "provider %s has no service %s", providerID, serviceID)
	case !svc.Active:
		return nil, svc, apperr.New(apperr.KindProviderUnavailable, "service %s of provider %s is inactive", serviceID, providerID)
	case !textnorm.Equal(svc.ServiceType, serviceType):
		return nil, svc, apperr.New(apperr.KindProviderUnavailable,
			"service %s is %s, request needs %s", serviceID, svc.ServiceType, serviceType)
	}
	return p, svc, nil
}

func (o *Orchestrator) newBooking(req *model.ServiceRequest, p *model.Provider, svc model.ProviderService, actor string) *model.Booking {
	hours := req.EstimatedHours
	if !hours.IsPositive() {
		hours = o.hours
	}
	return &model.Booking{
		ID:             o.newID(),
		RequestID:      req.ID,
		ProviderID:     p.ID,
		ServiceID:      svc.ID,
		ServiceType:    svc.ServiceType,
		Location:       req.Location,
		ScheduledAt:    req.PreferredAt,
		HourlyRate:     svc.HourlyRate,
		EstimatedHours: hours,
		Price:          svc.HourlyRate.Mul(hours).Round(2),
		Status:         model.BookingConfirmed,
		CreatedBy:      actor,
		CreatedAt:      o.now().UTC(),
	}
}

// announce publishes the booking event and confirms to both parties. Nothing
// here can fail the conversion.
func (o *Orchestrator) announce(ctx context.Context, req *model.ServiceRequest, p *model.Provider, b *model.Booking) {
	err := o.pub.Publish(ctx, events.Event{
		Type:       events.TypeBookingCreated,
		EntityType: "booking",
		EntityID:   b.ID,
		Actor:      b.CreatedBy,
		At:         b.CreatedAt,
		Data:       map[string]string{"requestId": b.RequestID, "providerId": b.ProviderID, "price": b.Price.StringFixed(2)},
	})
	if err != nil {
		slog.Warn("publish EVENT_BOOKING_CREATED failed", "bookingId", b.ID, "err", err)
	}

	if o.notifier == nil {
		return
	}
	date := "to be scheduled"
	if b.ScheduledAt != nil {
		date = b.ScheduledAt.Format("2006-01-02 15:04")
	}
	data := func(name string) map[string]string {
		return map[string]string{
			"name": name, "serviceType": b.ServiceType, "date": date,
			"price": b.Price.StringFixed(2), "bookingId": b.ID,
		}
	}
	recipients := []struct {
		to   notify.Recipient
		name string
	}{
		{notify.Recipient{ID: req.RecipientID(), Contact: req.Client}, orDefault(req.Client.Name, "there")},
		{notify.Recipient{ID: p.ID, Contact: p.Contact}, orDefault(p.BusinessName, p.ID)},
	}
	for _, r := range recipients {
		if _, err := o.notifier.Enqueue(ctx, notify.TemplateBookingConfirmation, r.to, data(r.name)); err != nil {
			slog.Warn("booking confirmation not queued", "bookingId", b.ID, "recipient", r.to.ID, "err", err)
		}
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
