package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/fulfillment-service/internal/events"
)

type failing struct{ err error }

func (f failing) Publish(context.Context, events.Event) error { return f.err }

func TestMulti_PublishesToAllAndJoinsErrors(t *testing.T) {
	rec := &events.Recorder{}
	boom := errors.New("broker down")
	m := events.Multi{failing{boom}, rec}

	err := m.Publish(context.Background(), events.Event{Type: events.TypeStatusChanged, EntityID: "req-1"})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	require.Len(t, rec.Events, 1, "a failing backend must not block the others")
	assert.Equal(t, "req-1", rec.Events[0].EntityID)
}

func TestMulti_EmptyIsNoop(t *testing.T) {
	assert.NoError(t, events.Multi{}.Publish(context.Background(), events.Event{}))
	assert.NoError(t, events.Nop{}.Publish(context.Background(), events.Event{}))
}
