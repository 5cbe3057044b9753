package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"jobmate/fulfillment-service/internal/apperr"
	"jobmate/fulfillment-service/internal/events"
	"jobmate/fulfillment-service/internal/model"
	"jobmate/fulfillment-service/internal/notify"
	"jobmate/fulfillment-service/internal/store"
)

// ─── Types ───────────────────────────────────────────────────────────────────

// Change is one committed status move.
type Change struct {
	EntityType model.EntityType
	EntityID   string
	From       Status
	To         Status
	Actor      string
	Comment    string
	At         time.Time
	// Record is nil when the audit append failed.
	Record *model.StatusTransitionRecord
}

// Result is what Transition returns.
type Result struct {
	EntityType model.EntityType              `json:"entityType"`
	EntityID   string                        `json:"entityId"`
	From       Status                        `json:"from"`
	Status     Status                        `json:"status"`
	Changed    bool                          `json:"changed"`
	Record     *model.StatusTransitionRecord `json:"record,omitempty"`
}

// SideEffect runs after a transition into a given status has committed.
// Its error is logged, never returned to the caller.
type SideEffect func(ctx context.Context, c Change) error

// Hook runs inside the transition's transaction, right after the status
// write. Its error rolls the transition back.
type Hook func(ctx context.Context, q *store.Queries, c Change) error

// Notifier is the part of the notification orchestrator side effects use.
type Notifier interface {
	Enqueue(ctx context.Context, template string, to notify.Recipient, data map[string]string) (notify.Ack, error)
}

type effectKey struct {
	entity model.EntityType
	status Status
}

// ─── Service ─────────────────────────────────────────────────────────────────

// Service applies transitions. It is transport-agnostic.
type Service struct {
	store    *store.Store
	pub      events.Publisher
	notifier Notifier
	effects  map[effectKey][]SideEffect
	hooks    map[effectKey][]Hook
	now      func() time.Time
	newID    func() string
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier enables notification side effects.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService returns a Service with the built-in side effects registered.
func NewService(st *store.Store, pub events.Publisher, opts ...Option) *Service {
	s := &Service{
		store:   st,
		pub:     pub,
		effects: make(map[effectKey][]SideEffect),
		hooks:   make(map[effectKey][]Hook),
		now:     time.Now,
		newID:   func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	if s.pub == nil {
		s.pub = events.Nop{}
	}
	for _, opt := range opts {
		opt(s)
	}
	s.OnEnterTx(model.EntityApplication, ApplicationApproved, provisionAccount)
	s.OnEnter(model.EntityApplication, ApplicationApproved, s.welcomeProvider)
	return s
}

// OnEnterTx registers fn to run in the same transaction whenever entity
// enters status.
func (s *Service) OnEnterTx(entity model.EntityType, status Status, fn Hook) {
	k := effectKey{entity, status}
	s.hooks[k] = append(s.hooks[k], fn)
}

// OnEnter registers fn to run whenever entity enters status.
func (s *Service) OnEnter(entity model.EntityType, status Status, fn SideEffect) {
	k := effectKey{entity, status}
	s.effects[k] = append(s.effects[k], fn)
}

// Transition moves an entity to target on behalf of actor.
//
// Returns a validation error for an empty actor, an unknown entity type or an
// unknown status; NotFound when the entity does not exist; InvalidTransition
// when target is not an allowed next status. Moving to the current status is
// a successful no-op.
func (s *Service) Transition(ctx context.Context, entity model.EntityType, entityID, target, actor, comment string) (*Result, error) {
	if actor == "" {
		return nil, apperr.Validation("an actor id is required")
	}
	g, err := GraphFor(entity)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	to, err := g.ParseStatus(target)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}

	var (
		res    *Result
		change Change
	)
	err = s.store.InTx(ctx, func(q *store.Queries) error {
		from, err := currentStatus(ctx, q, g, entityID)
		if err != nil {
			return err
		}
		res = &Result{EntityType: entity, EntityID: entityID, From: from, Status: from}
		if from == to {
			return nil
		}
		if !g.IsTransitionAllowed(from, to) {
			if g.IsSystemTransitionAllowed(from, to) {
				return apperr.New(apperr.KindInvalidTransition,
					"only conversion may move a %s to %s", entity, to)
			}
			return apperr.New(apperr.KindInvalidTransition,
				"transition %s → %s is not allowed", from, to)
		}

		change, err = s.apply(ctx, q, g, entityID, from, to, actor, comment)
		if err != nil {
			return err
		}
		res.Status, res.Changed, res.Record = to, true, change.Record
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Changed {
		s.Committed(ctx, []Change{change})
	}
	return res, nil
}

// AdvanceSystem walks an entity from → to along the shortest legal path,
// system-only edges included, inside the caller's transaction. Every hop is
// recorded. The caller must pass the returned changes to Committed once its
// transaction commits.
func (s *Service) AdvanceSystem(ctx context.Context, q *store.Queries, entity model.EntityType, entityID string, from, to Status, actor, comment string) ([]Change, error) {
	g, err := GraphFor(entity)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	path, ok := g.Path(from, to)
	if !ok {
		return nil, apperr.New(apperr.KindInvalidTransition, "%s cannot reach %s from %s", entity, to, from)
	}

	changes := make([]Change, 0, len(path))
	cur := from
	for _, next := range path {
		c, err := s.apply(ctx, q, g, entityID, cur, next, actor, comment)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
		cur = next
	}
	return changes, nil
}

// Committed publishes events and runs side effects for changes whose
// transaction has committed. Failures are logged only.
func (s *Service) Committed(ctx context.Context, changes []Change) {
	for _, c := range changes {
		err := s.pub.Publish(ctx, events.Event{
			Type:       events.TypeStatusChanged,
			EntityType: string(c.EntityType),
			EntityID:   c.EntityID,
			From:       string(c.From),
			To:         string(c.To),
			Actor:      c.Actor,
			At:         c.At,
		})
		if err != nil {
			slog.Warn("publish EVENT_STATUS_CHANGED failed", "entityId", c.EntityID, "err", err)
		}

		for _, fn := range s.effects[effectKey{c.EntityType, c.To}] {
			if err := fn(ctx, c); err != nil {
				slog.Warn("transition side effect failed",
					"entityType", c.EntityType, "entityId", c.EntityID, "status", c.To, "err", err)
			}
		}
	}
}

// History returns the audit trail of an entity, oldest first.
func (s *Service) History(ctx context.Context, entity model.EntityType, entityID string) ([]model.StatusTransitionRecord, error) {
	g, err := GraphFor(entity)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	q := s.store.Queries()
	if _, err := currentStatus(ctx, q, g, entityID); err != nil {
		return nil, err
	}
	return q.History(ctx, entity, entityID)
}

// ─── Internals ───────────────────────────────────────────────────────────────

// apply writes the status, runs the in-transaction hooks, then appends the
// audit record under a savepoint. An audit failure leaves the status write in
// place; a hook failure does not.
func (s *Service) apply(ctx context.Context, q *store.Queries, g *Graph, entityID string, from, to Status, actor, comment string) (Change, error) {
	at := s.now().UTC()
	var err error
	switch g.Entity() {
	case model.EntityRequest:
		err = q.SetRequestStatus(ctx, entityID, string(to), at)
	case model.EntityApplication:
		err = q.SetApplicationStatus(ctx, entityID, string(to), at)
	}
	if err != nil {
		return Change{}, err
	}

	c := Change{
		EntityType: g.Entity(), EntityID: entityID,
		From: from, To: to, Actor: actor, Comment: comment, At: at,
	}
	for _, fn := range s.hooks[effectKey{c.EntityType, to}] {
		if err := fn(ctx, q, c); err != nil {
			return Change{}, err
		}
	}
	rec := model.StatusTransitionRecord{
		ID:         s.newID(),
		EntityID:   entityID,
		EntityType: g.Entity(),
		FromStatus: string(from),
		ToStatus:   string(to),
		Actor:      actor,
		Comment:    comment,
		Timestamp:  at,
	}
	if err := q.BestEffort(ctx, func() error { return q.AppendTransition(ctx, rec) }); err != nil {
		slog.Warn("audit append failed; transition kept", "entityType", g.Entity(), "entityId", entityID,
			"from", from, "to", to, "err", err)
		return c, nil
	}
	c.Record = &rec
	return c, nil
}

func currentStatus(ctx context.Context, q *store.Queries, g *Graph, entityID string) (Status, error) {
	var raw string
	switch g.Entity() {
	case model.EntityRequest:
		r, err := q.GetRequest(ctx, entityID)
		if err != nil {
			return "", err
		}
		raw = r.Status
	case model.EntityApplication:
		a, err := q.GetApplication(ctx, entityID)
		if err != nil {
			return "", err
		}
		raw = a.Status
	}
	st, err := g.ParseStatus(raw)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err, "stored status")
	}
	return st, nil
}

// provisionAccount creates the provider account of an approved application.
func provisionAccount(ctx context.Context, q *store.Queries, c Change) error {
	_, err := q.ProvisionProviderAccount(ctx, c.EntityID, c.At)
	return err
}

// welcomeProvider tells the applicant their account is ready.
func (s *Service) welcomeProvider(ctx context.Context, c Change) error {
	if s.notifier == nil {
		return nil
	}
	app, err := s.store.Queries().GetApplication(ctx, c.EntityID)
	if err != nil {
		return err
	}
	_, err = s.notifier.Enqueue(ctx, notify.TemplateApplicationApproved,
		notify.Recipient{ID: app.ID, Contact: app.Contact},
		map[string]string{"name": app.ApplicantName})
	return err
}
