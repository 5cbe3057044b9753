package lifecycle_test

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/fulfillment-service/internal/apperr"
	"jobmate/fulfillment-service/internal/events"
	"jobmate/fulfillment-service/internal/lifecycle"
	"jobmate/fulfillment-service/internal/model"
	"jobmate/fulfillment-service/internal/notify"
	"jobmate/fulfillment-service/internal/store"
	"jobmate/fulfillment-service/internal/store/storetest"
)

var t0 = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []string
	names []string
}

func (f *fakeNotifier) Enqueue(_ context.Context, template string, to notify.Recipient, data map[string]string) (notify.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, template+":"+to.ID)
	f.names = append(f.names, data["name"])
	return notify.Ack{EventID: "ev-" + to.ID}, nil
}

func newService(t *testing.T) (*lifecycle.Service, *store.Store, *events.Recorder, *fakeNotifier) {
	t.Helper()
	st := storetest.Open(t)
	rec := &events.Recorder{}
	n := &fakeNotifier{}
	svc := lifecycle.NewService(st, rec, lifecycle.WithNotifier(n), lifecycle.WithClock(func() time.Time { return t0 }))
	return svc, st, rec, n
}

func seedRequest(t *testing.T, st *store.Store, id string, status lifecycle.Status) {
	t.Helper()
	require.NoError(t, st.Queries().CreateRequest(context.Background(), &model.ServiceRequest{
		ID: id, ClientID: "client-1", ServiceType: "menage", Status: string(status),
		CreatedAt: t0, UpdatedAt: t0,
	}))
}

func seedApplication(t *testing.T, st *store.Store, id string, status lifecycle.Status) {
	t.Helper()
	require.NoError(t, st.Queries().CreateApplication(context.Background(), &model.JobApplication{
		ID: id, ApplicantName: "Bob", Contact: model.Contact{Email: "bob@example.com"},
		ServiceTypes: []string{"menage"}, Status: string(status), CreatedAt: t0, UpdatedAt: t0,
	}))
}

func requestStatus(t *testing.T, st *store.Store, id string) string {
	t.Helper()
	r, err := st.Queries().GetRequest(context.Background(), id)
	require.NoError(t, err)
	return r.Status
}

// ── every (state, target) pair ─────────────────────────────────────────────

func TestTransition_RequestMatrix(t *testing.T) {
	svc, st, _, _ := newService(t)
	ctx := context.Background()

	for _, from := range lifecycle.RequestGraph.Statuses() {
		for _, to := range lifecycle.RequestGraph.Statuses() {
			id := fmt.Sprintf("req-%s-%s", from, to)
			seedRequest(t, st, id, from)

			res, err := svc.Transition(ctx, model.EntityRequest, id, string(to), "actor-x", "")
			switch {
			case from == to:
				require.NoError(t, err, "%s → %s", from, to)
				assert.False(t, res.Changed, "%s → %s should be a no-op", from, to)
			case slices.Contains(requestEdges, pair{from, to}):
				require.NoError(t, err, "%s → %s", from, to)
				assert.True(t, res.Changed)
				assert.Equal(t, to, res.Status)
				assert.Equal(t, string(to), requestStatus(t, st, id))
			default:
				require.Error(t, err, "%s → %s", from, to)
				assert.True(t, apperr.Is(err, apperr.KindInvalidTransition), "%s → %s: %v", from, to, err)
				assert.Equal(t, string(from), requestStatus(t, st, id), "status must be unchanged")
			}
		}
	}
}

func TestTransition_ApplicationMatrix(t *testing.T) {
	svc, st, _, _ := newService(t)
	ctx := context.Background()

	for _, from := range lifecycle.ApplicationGraph.Statuses() {
		for _, to := range lifecycle.ApplicationGraph.Statuses() {
			id := fmt.Sprintf("app-%s-%s", from, to)
			seedApplication(t, st, id, from)

			_, err := svc.Transition(ctx, model.EntityApplication, id, string(to), "actor-x", "")
			want := from == to || slices.Contains(applicationEdges, pair{from, to})
			if want {
				assert.NoError(t, err, "%s → %s", from, to)
			} else {
				assert.True(t, apperr.Is(err, apperr.KindInvalidTransition), "%s → %s: %v", from, to, err)
			}
		}
	}
}

// ── contract details ───────────────────────────────────────────────────────

func TestTransition_DirectConvertIsRejected(t *testing.T) {
	svc, st, _, _ := newService(t)
	seedRequest(t, st, "req1", lifecycle.RequestAssigned)

	_, err := svc.Transition(context.Background(), model.EntityRequest, "req1", "converted", "actorX", "")

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))
	assert.Contains(t, err.Error(), "only conversion")
	assert.Equal(t, "assigned", requestStatus(t, st, "req1"))
}

func TestTransition_RecordsAuditAndPublishes(t *testing.T) {
	svc, st, rec, _ := newService(t)
	ctx := context.Background()
	seedRequest(t, st, "req-1", lifecycle.RequestNew)

	res, err := svc.Transition(ctx, model.EntityRequest, "req-1", "processing", "admin1", "picked up")
	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.Equal(t, "new", res.Record.FromStatus)
	assert.Equal(t, "processing", res.Record.ToStatus)
	assert.Equal(t, "admin1", res.Record.Actor)
	assert.Equal(t, "picked up", res.Record.Comment)

	history, err := svc.History(ctx, model.EntityRequest, "req-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, res.Record.ID, history[0].ID)

	require.Len(t, rec.Events, 1)
	assert.Equal(t, events.TypeStatusChanged, rec.Events[0].Type)
	assert.Equal(t, "processing", rec.Events[0].To)
}

func TestTransition_NoOpWritesNothing(t *testing.T) {
	svc, st, rec, _ := newService(t)
	ctx := context.Background()
	seedRequest(t, st, "req-1", lifecycle.RequestProcessing)

	res, err := svc.Transition(ctx, model.EntityRequest, "req-1", "processing", "admin1", "")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Nil(t, res.Record)

	history, err := svc.History(ctx, model.EntityRequest, "req-1")
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, rec.Events)
}

func TestTransition_Validation(t *testing.T) {
	svc, st, _, _ := newService(t)
	ctx := context.Background()
	seedRequest(t, st, "req-1", lifecycle.RequestNew)

	cases := []struct {
		name    string
		entity  model.EntityType
		target  string
		actor   string
		wantErr apperr.Kind
	}{
		{"missing actor", model.EntityRequest, "processing", "", apperr.KindValidation},
		{"unknown status", model.EntityRequest, "Processing", "a", apperr.KindValidation},
		{"unknown entity", "invoice", "processing", "a", apperr.KindValidation},
		{"foreign status", model.EntityRequest, "under_review", "a", apperr.KindValidation},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := svc.Transition(ctx, c.entity, "req-1", c.target, c.actor, "")
			assert.Equal(t, c.wantErr, apperr.KindOf(err), "%v", err)
		})
	}
	assert.Equal(t, "new", requestStatus(t, st, "req-1"))
}

func TestTransition_NotFound(t *testing.T) {
	svc, _, _, _ := newService(t)
	_, err := svc.Transition(context.Background(), model.EntityRequest, "missing", "processing", "a", "")
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "%v", err)

	_, err = svc.History(context.Background(), model.EntityApplication, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "%v", err)
}

// The status write commits even when the audit append fails.
func TestTransition_AuditFailureStillCommits(t *testing.T) {
	svc, st, _, _ := newService(t)
	ctx := context.Background()
	seedRequest(t, st, "req-1", lifecycle.RequestNew)

	_, err := st.DB().ExecContext(ctx, `DROP TABLE status_transitions`)
	require.NoError(t, err)

	res, err := svc.Transition(ctx, model.EntityRequest, "req-1", "processing", "admin1", "")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Nil(t, res.Record, "no audit record could be written")
	assert.Equal(t, "processing", requestStatus(t, st, "req-1"))
}

// ── side effects ───────────────────────────────────────────────────────────

func TestTransition_ApprovedProvisionsAccountOnce(t *testing.T) {
	svc, st, _, n := newService(t)
	ctx := context.Background()
	seedApplication(t, st, "app-1", lifecycle.ApplicationUnderReview)

	_, err := svc.Transition(ctx, model.EntityApplication, "app-1", "approved", "hr1", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"application_approved:app-1"}, n.sent)
	assert.Equal(t, []string{"Bob"}, n.names)

	created, err := st.Queries().ProvisionProviderAccount(ctx, "app-1", t0)
	require.NoError(t, err)
	assert.False(t, created, "account must already exist")
}

// Approval and account creation commit together: no approved application
// is ever left without an account.
func TestTransition_ProvisioningFailureRollsBackApproval(t *testing.T) {
	svc, st, rec, n := newService(t)
	ctx := context.Background()
	seedApplication(t, st, "app-1", lifecycle.ApplicationInterviewScheduled)

	_, err := st.DB().ExecContext(ctx, `DROP TABLE provider_accounts`)
	require.NoError(t, err)

	_, err = svc.Transition(ctx, model.EntityApplication, "app-1", "approved", "hr1", "")
	require.Error(t, err)

	app, err := st.Queries().GetApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, "interview_scheduled", app.Status)
	assert.Empty(t, n.sent, "no welcome for a rolled-back approval")
	assert.Empty(t, rec.Events)

	history, err := svc.History(ctx, model.EntityApplication, "app-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestOnEnterTx_FailureRollsBack(t *testing.T) {
	svc, st, _, _ := newService(t)
	ctx := context.Background()
	seedRequest(t, st, "req-1", lifecycle.RequestProcessing)

	svc.OnEnterTx(model.EntityRequest, lifecycle.RequestOnHold, func(context.Context, *store.Queries, lifecycle.Change) error {
		return fmt.Errorf("hold reason required")
	})

	_, err := svc.Transition(ctx, model.EntityRequest, "req-1", "on_hold", "admin1", "")
	require.ErrorContains(t, err, "hold reason required")
	assert.Equal(t, "processing", requestStatus(t, st, "req-1"))
}

func TestTransition_SideEffectFailureIsNotFatal(t *testing.T) {
	svc, st, _, _ := newService(t)
	ctx := context.Background()
	seedRequest(t, st, "req-1", lifecycle.RequestProcessing)

	var calls int
	svc.OnEnter(model.EntityRequest, lifecycle.RequestOnHold, func(context.Context, lifecycle.Change) error {
		calls++
		return fmt.Errorf("downstream unavailable")
	})

	res, err := svc.Transition(ctx, model.EntityRequest, "req-1", "on_hold", "admin1", "")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.RequestOnHold, res.Status)
	assert.Equal(t, 1, calls)
}

// ── system path ────────────────────────────────────────────────────────────

func TestAdvanceSystem_WalksAndRecordsEveryHop(t *testing.T) {
	svc, st, rec, _ := newService(t)
	ctx := context.Background()
	seedRequest(t, st, "req-1", lifecycle.RequestNew)

	var changes []lifecycle.Change
	err := st.InTx(ctx, func(q *store.Queries) error {
		var err error
		changes, err = svc.AdvanceSystem(ctx, q, model.EntityRequest, "req-1",
			lifecycle.RequestNew, lifecycle.RequestConverted, "admin1", "booking b1")
		return err
	})
	require.NoError(t, err)
	svc.Committed(ctx, changes)

	require.Len(t, changes, 3)
	assert.Equal(t, "converted", requestStatus(t, st, "req-1"))

	history, err := svc.History(ctx, model.EntityRequest, "req-1")
	require.NoError(t, err)
	var hops []string
	for _, h := range history {
		hops = append(hops, h.FromStatus+">"+h.ToStatus)
	}
	assert.ElementsMatch(t, []string{"new>processing", "processing>assigned", "assigned>converted"}, hops)
	assert.Len(t, rec.Events, 3)
}

func TestAdvanceSystem_UnreachableTarget(t *testing.T) {
	svc, st, _, _ := newService(t)
	ctx := context.Background()
	seedRequest(t, st, "req-1", lifecycle.RequestRejected)

	err := st.InTx(ctx, func(q *store.Queries) error {
		_, err := svc.AdvanceSystem(ctx, q, model.EntityRequest, "req-1",
			lifecycle.RequestRejected, lifecycle.RequestConverted, "admin1", "")
		return err
	})
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition), "%v", err)
	assert.Equal(t, "rejected", requestStatus(t, st, "req-1"))
}
