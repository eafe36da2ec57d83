package watch

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	m := NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)), client)
	t.Cleanup(m.Close)
	return m
}

func TestSubscribeReceivesPublishedEvents(t *testing.T) {
	m := newTestManager(t)
	businessID := uuid.New()

	var received atomic.Value
	m.Subscribe("daily_cash_snapshot", businessID, func(e Event) {
		received.Store(e)
	})
	// Give the listener a moment to register.
	time.Sleep(50 * time.Millisecond)

	event := Event{
		Entity:     "daily_cash_snapshot",
		BusinessID: businessID,
		EntityID:   uuid.NewString(),
		Action:     "closed",
		At:         time.Now().UTC(),
	}
	require.NoError(t, m.Publish(context.Background(), event))

	require.Eventually(t, func() bool {
		got, ok := received.Load().(Event)
		return ok && got.EntityID == event.EntityID && got.Action == "closed"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEventsAreScopedToBusiness(t *testing.T) {
	m := newTestManager(t)
	businessA := uuid.New()
	businessB := uuid.New()

	var count atomic.Int64
	m.Subscribe("wallet_transaction", businessA, func(Event) {
		count.Add(1)
	})
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, m.Publish(context.Background(), Event{
		Entity:     "wallet_transaction",
		BusinessID: businessB,
		EntityID:   uuid.NewString(),
		Action:     "recorded",
	}))
	time.Sleep(100 * time.Millisecond)
	require.Zero(t, count.Load())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m := newTestManager(t)
	businessID := uuid.New()

	var count atomic.Int64
	m.Subscribe("settlement", businessID, func(Event) {
		count.Add(1)
	})
	time.Sleep(50 * time.Millisecond)

	m.Unsubscribe("settlement", businessID)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, m.Publish(context.Background(), Event{
		Entity:     "settlement",
		BusinessID: businessID,
		EntityID:   uuid.NewString(),
		Action:     "settled",
	}))
	time.Sleep(100 * time.Millisecond)
	require.Zero(t, count.Load())
}
