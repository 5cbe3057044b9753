package conversion_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/fulfillment-service/internal/apperr"
	"jobmate/fulfillment-service/internal/conversion"
	"jobmate/fulfillment-service/internal/directory"
	"jobmate/fulfillment-service/internal/events"
	"jobmate/fulfillment-service/internal/lifecycle"
	"jobmate/fulfillment-service/internal/model"
	"jobmate/fulfillment-service/internal/notify"
	"jobmate/fulfillment-service/internal/store"
	"jobmate/fulfillment-service/internal/store/storetest"
)

var t0 = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

type queued struct {
	mu    sync.Mutex
	calls []string
}

func (q *queued) Enqueue(_ context.Context, template string, to notify.Recipient, data map[string]string) (notify.Ack, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, template+":"+to.ID+":"+data["price"])
	return notify.Ack{}, nil
}

type fixture struct {
	st   *store.Store
	conv *conversion.Orchestrator
	pub  *events.Recorder
	sent *queued
}

var providerA = model.Provider{
	ID:            "providerA",
	BusinessName:  "Atelier Propre",
	Contact:       model.Contact{Email: "a@example.com"},
	RatingAverage: 4.5,
	Available:     true,
	Services: []model.ProviderService{
		{ID: "serviceX", ServiceType: "menage", HourlyRate: decimal.RequireFromString("25.50"), Active: true},
		{ID: "serviceOff", ServiceType: "menage", HourlyRate: decimal.NewFromInt(20), Active: false},
		{ID: "serviceGarden", ServiceType: "jardinage", HourlyRate: decimal.NewFromInt(30), Active: true},
	},
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storetest.Open(t)
	pub := &events.Recorder{}
	sent := &queued{}
	clock := lifecycle.WithClock(func() time.Time { return t0 })
	lc := lifecycle.NewService(st, pub, clock)
	conv := conversion.New(st, lc, directory.NewStatic([]model.Provider{providerA}),
		conversion.WithNotifier(sent), conversion.WithPublisher(pub),
		conversion.WithClock(func() time.Time { return t0 }))
	return &fixture{st: st, conv: conv, pub: pub, sent: sent}
}

func (f *fixture) seed(t *testing.T, id, status string, hours int64) {
	t.Helper()
	require.NoError(t, f.st.Queries().CreateRequest(context.Background(), &model.ServiceRequest{
		ID: id, ClientID: "client1", Client: model.Contact{Name: "Alice", Email: "alice@example.com"},
		ServiceType: "Ménage", Location: model.Location{Text: "Paris 15e"},
		EstimatedHours: decimal.NewFromInt(hours), Status: status, CreatedAt: t0, UpdatedAt: t0,
	}))
}

func (f *fixture) status(t *testing.T, id string) string {
	t.Helper()
	r, err := f.st.Queries().GetRequest(context.Background(), id)
	require.NoError(t, err)
	return r.Status
}

func (f *fixture) bookings(t *testing.T, id string) int {
	t.Helper()
	n, err := f.st.Queries().CountBookings(context.Background(), id)
	require.NoError(t, err)
	return n
}

func TestConvert_CreatesBookingAndConverts(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "req1", "assigned", 3)

	res, err := f.conv.Convert(context.Background(), "req1", "providerA", "serviceX", "admin1")
	require.NoError(t, err)

	require.True(t, res.Created)
	b := res.Booking
	assert.Equal(t, "req1", b.RequestID)
	assert.Equal(t, "providerA", b.ProviderID)
	assert.Equal(t, "serviceX", b.ServiceID)
	assert.Equal(t, "menage", b.ServiceType)
	assert.Equal(t, "Paris 15e", b.Location.Text)
	assert.Equal(t, model.BookingConfirmed, b.Status)
	assert.Equal(t, "76.50", b.Price.StringFixed(2))
	assert.Equal(t, "admin1", b.CreatedBy)

	assert.Equal(t, "converted", f.status(t, "req1"))
	assert.Equal(t, 1, f.bookings(t, "req1"))

	var types []string
	for _, e := range f.pub.Events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{events.TypeStatusChanged, events.TypeBookingCreated}, types)
	assert.ElementsMatch(t, []string{
		"booking_confirmation:client1:76.50",
		"booking_confirmation:providerA:76.50",
	}, f.sent.calls)
}

// Converting the same request twice yields one booking; the replay returns it.
func TestConvert_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "req1", "assigned", 2)

	first, err := f.conv.Convert(ctx, "req1", "providerA", "serviceX", "admin1")
	require.NoError(t, err)
	second, err := f.conv.Convert(ctx, "req1", "providerA", "serviceX", "admin2")
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Equal(t, first.Booking.ID, second.Booking.ID)
	assert.Equal(t, "admin1", second.Booking.CreatedBy)
	assert.Equal(t, 1, f.bookings(t, "req1"))
	assert.Len(t, f.sent.calls, 2, "the replay sends nothing")
}

func TestConvert_FromNewWalksEveryHop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "req1", "new", 0)

	res, err := f.conv.Convert(ctx, "req1", "providerA", "serviceX", "admin1")
	require.NoError(t, err)
	assert.Equal(t, "51.00", res.Booking.Price.StringFixed(2), "default 2 hours")

	history, err := f.st.Queries().History(ctx, model.EntityRequest, "req1")
	require.NoError(t, err)
	assert.Len(t, history, 3)
	assert.Equal(t, "converted", f.status(t, "req1"))
}

func TestConvert_Errors(t *testing.T) {
	cases := []struct {
		name      string
		status    string
		requestID string
		provider  string
		service   string
		actor     string
		want      apperr.Kind
	}{
		{"unknown request", "assigned", "missing", "providerA", "serviceX", "admin1", apperr.KindNotFound},
		{"rejected request", "rejected", "req1", "providerA", "serviceX", "admin1", apperr.KindInvalidState},
		{"cancelled request", "cancelled", "req1", "providerA", "serviceX", "admin1", apperr.KindInvalidState},
		{"on hold request", "on_hold", "req1", "providerA", "serviceX", "admin1", apperr.KindInvalidState},
		{"unknown provider", "assigned", "req1", "nobody", "serviceX", "admin1", apperr.KindProviderUnavailable},
		{"unknown service", "assigned", "req1", "providerA", "serviceY", "admin1", apperr.KindProviderUnavailable},
		{"inactive service", "assigned", "req1", "providerA", "serviceOff", "admin1", apperr.KindProviderUnavailable},
		{"wrong service type", "assigned", "req1", "providerA", "serviceGarden", "admin1", apperr.KindProviderUnavailable},
		{"missing actor", "assigned", "req1", "providerA", "serviceX", "", apperr.KindValidation},
		{"missing service", "assigned", "req1", "providerA", "", "admin1", apperr.KindValidation},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, "req1", c.status, 2)

			_, err := f.conv.Convert(context.Background(), c.requestID, c.provider, c.service, c.actor)
			require.Error(t, err)
			assert.Equal(t, c.want, apperr.KindOf(err), "%v", err)

			assert.Equal(t, c.status, f.status(t, "req1"), "no side effect on failure")
			assert.Zero(t, f.bookings(t, "req1"))
			assert.Empty(t, f.pub.Events)
			assert.Empty(t, f.sent.calls)
		})
	}
}

// A failure after the booking insert rolls the booking back too.
func TestConvert_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "req1", "assigned", 2)

	_, err := f.st.DB().ExecContext(ctx,
		`CREATE TRIGGER block_convert BEFORE UPDATE OF status ON service_requests
		 WHEN NEW.status = 'converted' BEGIN SELECT RAISE(ABORT, 'blocked'); END`)
	require.NoError(t, err)

	_, err = f.conv.Convert(ctx, "req1", "providerA", "serviceX", "admin1")
	require.Error(t, err)

	assert.Equal(t, "assigned", f.status(t, "req1"))
	assert.Zero(t, f.bookings(t, "req1"))
	assert.Empty(t, f.sent.calls)
}

func TestConvert_ConcurrentCallsYieldOneBooking(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "req1", "assigned", 2)

	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.conv.Convert(context.Background(), "req1", "providerA", "serviceX", "admin1")
			errs[i] = err
			if err == nil {
				ids[i] = res.Booking.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, f.bookings(t, "req1"))
}

// A guest request has no client id; its confirmation is still delivered,
// addressed by request.
func TestConvert_GuestClientIsConfirmed(t *testing.T) {
	st := storetest.Open(t)
	ctx := context.Background()

	var (
		mu         sync.Mutex
		deliveries []notify.Delivery
	)
	orch := notify.NewOrchestrator(notify.Senders{
		Message: notify.SenderFunc(func(_ context.Context, d notify.Delivery) error {
			mu.Lock()
			defer mu.Unlock()
			deliveries = append(deliveries, d)
			return nil
		}),
	}, nil)
	lc := lifecycle.NewService(st, nil)
	conv := conversion.New(st, lc, directory.NewStatic([]model.Provider{providerA}),
		conversion.WithNotifier(orch), conversion.WithClock(func() time.Time { return t0 }))

	require.NoError(t, st.Queries().CreateRequest(ctx, &model.ServiceRequest{
		ID: "req-guest", Client: model.Contact{Name: "Alice", Email: "alice@example.com"},
		ServiceType: "menage", EstimatedHours: decimal.NewFromInt(2), Status: "assigned",
		CreatedAt: t0, UpdatedAt: t0,
	}))

	_, err := conv.Convert(ctx, "req-guest", "providerA", "serviceX", "admin1")
	require.NoError(t, err)
	orch.Wait()

	mu.Lock()
	defer mu.Unlock()
	recipients := map[string]string{}
	for _, d := range deliveries {
		recipients[d.Recipient.ID] = d.Recipient.Contact.Email
	}
	assert.Equal(t, map[string]string{
		"request:req-guest": "alice@example.com",
		"providerA":         "a@example.com",
	}, recipients)
}
