package resilience

import (
	"context"
	"fmt"

	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/events"
)

// Notifier guards an events.Notifier with a Breaker. While the breaker is
// open events are still persisted by the bus but not handed to Next.
type Notifier struct {
	Next    events.Notifier
	Breaker *Breaker
}

var _ events.Notifier = Notifier{}

// Notify forwards ev unless the breaker refuses the call.
func (n Notifier) Notify(ctx context.Context, ev db.DomainEvent) error {
	if n.Next == nil {
		return nil
	}
	if n.Breaker == nil {
		return n.Next.Notify(ctx, ev)
	}
	if !n.Breaker.Allow(ctx) {
		return fmt.Errorf("notify %s: %w", ev.Topic, ErrOpenCircuit)
	}
	err := n.Next.Notify(ctx, ev)
	n.Breaker.Report(ctx, err == nil)
	return err
}
