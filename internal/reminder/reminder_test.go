package reminder_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/fulfillment-service/internal/model"
	"jobmate/fulfillment-service/internal/notify"
	"jobmate/fulfillment-service/internal/reminder"
	"jobmate/fulfillment-service/internal/store"
	"jobmate/fulfillment-service/internal/store/storetest"
)

var t0 = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

type sent struct {
	template string
	to       string
	data     map[string]string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeNotifier) Enqueue(_ context.Context, template string, to notify.Recipient, data map[string]string) (notify.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return notify.Ack{}, f.err
	}
	f.sent = append(f.sent, sent{template, to.ID, data})
	return notify.Ack{EventID: "ev"}, nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func seed(t *testing.T, st *store.Store, id, status string, at time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.Queries().CreateRequest(ctx, &model.ServiceRequest{
		ID: "req-" + id, ClientID: "client-" + id,
		Client:      model.Contact{Name: "Alice", Email: "alice@example.com"},
		ServiceType: "menage", Status: "converted", CreatedAt: t0, UpdatedAt: t0,
	}))
	require.NoError(t, st.Queries().InsertBooking(ctx, &model.Booking{
		ID: id, RequestID: "req-" + id, ProviderID: "prov-a", ServiceID: "svc-x",
		ServiceType: "menage", Location: model.Location{Text: "Paris 15e"},
		ScheduledAt: &at, HourlyRate: decimal.NewFromInt(25), EstimatedHours: decimal.NewFromInt(2),
		Price: decimal.NewFromInt(50), Status: status, CreatedBy: "admin1", CreatedAt: t0,
	}))
}

func TestWorker_RemindsBookingsWithinWindow(t *testing.T) {
	st := storetest.Open(t)
	n := &fakeNotifier{}
	w := reminder.NewWorker(st, n).WithClock(func() time.Time { return t0 })

	seed(t, st, "soon", model.BookingConfirmed, t0.Add(3*time.Hour))
	seed(t, st, "later", model.BookingConfirmed, t0.Add(30*time.Hour))
	seed(t, st, "past", model.BookingConfirmed, t0.Add(-time.Hour))
	seed(t, st, "cancelled", model.BookingCancelled, t0.Add(2*time.Hour))

	stats, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reminder.Stats{Due: 1, Sent: 1}, stats)

	require.Len(t, n.sent, 1)
	got := n.sent[0]
	assert.Equal(t, notify.TemplateReminder24h, got.template)
	assert.Equal(t, "client-soon", got.to)
	assert.Equal(t, map[string]string{
		"name": "Alice", "serviceType": "menage", "date": "2026-10-16 12:00", "location": "Paris 15e",
	}, got.data)
}

func TestWorker_RemindsOnce(t *testing.T) {
	st := storetest.Open(t)
	n := &fakeNotifier{}
	w := reminder.NewWorker(st, n).WithClock(func() time.Time { return t0 })
	seed(t, st, "b1", model.BookingConfirmed, t0.Add(time.Hour))

	_, err := w.Run(context.Background())
	require.NoError(t, err)
	stats, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, reminder.Stats{}, stats)
	assert.Equal(t, 1, n.count())
}

func TestWorker_EnqueueFailureIsCounted(t *testing.T) {
	st := storetest.Open(t)
	n := &fakeNotifier{err: errors.New("queue full")}
	w := reminder.NewWorker(st, n).WithClock(func() time.Time { return t0 })
	seed(t, st, "b1", model.BookingConfirmed, t0.Add(time.Hour))

	stats, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reminder.Stats{Due: 1, Failed: 1}, stats)
}

func TestScheduler_RunsImmediatelyOnStart(t *testing.T) {
	st := storetest.Open(t)
	n := &fakeNotifier{}
	w := reminder.NewWorker(st, n).WithClock(func() time.Time { return t0 })
	seed(t, st, "b1", model.BookingConfirmed, t0.Add(time.Hour))

	s := reminder.NewScheduler(w, time.Hour)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	assert.Eventually(t, func() bool { return n.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWorker_RemindsGuestClient(t *testing.T) {
	st := storetest.Open(t)
	ctx := context.Background()
	at := t0.Add(2 * time.Hour)

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

	require.NoError(t, st.Queries().CreateRequest(ctx, &model.ServiceRequest{
		ID: "req-guest", Client: model.Contact{Name: "Alice", Email: "alice@example.com"},
		ServiceType: "menage", Status: "converted", CreatedAt: t0, UpdatedAt: t0,
	}))
	require.NoError(t, st.Queries().InsertBooking(ctx, &model.Booking{
		ID: "b-guest", RequestID: "req-guest", ProviderID: "prov-a", ServiceID: "svc-x",
		ServiceType: "menage", ScheduledAt: &at, HourlyRate: decimal.NewFromInt(25),
		EstimatedHours: decimal.NewFromInt(2), Price: decimal.NewFromInt(50),
		Status: model.BookingConfirmed, CreatedBy: "admin1", CreatedAt: t0,
	}))

	stats, err := reminder.NewWorker(st, orch).WithClock(func() time.Time { return t0 }).Run(ctx)
	require.NoError(t, err)
	orch.Wait()

	assert.Equal(t, reminder.Stats{Due: 1, Sent: 1}, stats)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, deliveries, 1)
	assert.Equal(t, "request:req-guest", deliveries[0].Recipient.ID)
	assert.Equal(t, notify.ChannelMessage, deliveries[0].Channel)
	assert.Contains(t, deliveries[0].Body, "the agreed address")
}
