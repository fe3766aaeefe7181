package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/events"
	"github.com/noah-isme/backend-pos/internal/resilience"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestBreakerTransitions(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	b := resilience.NewBreaker(2, 0.5, time.Minute).WithTarget("test").WithClock(c.now)
	ctx := context.Background()

	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.Equal(t, resilience.Open, b.State())
	require.False(t, b.Allow(ctx))

	c.advance(time.Minute)
	require.True(t, b.Allow(ctx), "probe after cool-off")
	require.Equal(t, resilience.HalfOpen, b.State())
	require.False(t, b.Allow(ctx), "only one probe at a time")

	b.Report(ctx, false)
	require.Equal(t, resilience.Open, b.State())

	c.advance(time.Minute)
	require.True(t, b.Allow(ctx))
	b.Report(ctx, true)
	require.Equal(t, resilience.Closed, b.State())
	require.True(t, b.Allow(ctx))
}

func TestBreakerStaysClosedBelowRatio(t *testing.T) {
	b := resilience.NewBreaker(4, 0.5, time.Minute)
	ctx := context.Background()
	for _, ok := range []bool{true, true, false, true, true, false} {
		require.True(t, b.Allow(ctx))
		b.Report(ctx, ok)
	}
	require.Equal(t, resilience.Closed, b.State())
}

func TestNotifierShortCircuits(t *testing.T) {
	calls := 0
	next := events.NotifierFunc(func(context.Context, db.DomainEvent) error {
		calls++
		return errors.New("redis unavailable")
	})
	n := resilience.Notifier{Next: next, Breaker: resilience.NewBreaker(1, 1, time.Hour).WithTarget("notifier-test")}
	ev := db.DomainEvent{ID: uuid.New(), Topic: events.TopicSaleCompleted}

	require.Error(t, n.Notify(context.Background(), ev))
	err := n.Notify(context.Background(), ev)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Equal(t, 1, calls)
}

func TestNotifierWithoutBreakerPassesThrough(t *testing.T) {
	calls := 0
	n := resilience.Notifier{Next: events.NotifierFunc(func(context.Context, db.DomainEvent) error {
		calls++
		return nil
	})}
	require.NoError(t, n.Notify(context.Background(), db.DomainEvent{Topic: events.TopicStockLow}))
	require.Equal(t, 1, calls)
}
