// Package jobs runs background work on asynq: low-stock alerts, periodic
// stock ledger verification and report cache refreshes triggered by domain
// events.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/events"
)

// Task type names.
const (
	TypeLowStockAlert = "stock:low_alert"
	TypeStockVerify   = "stock:verify"
	TypeReportRefresh = "report:refresh"
)

const (
	// QueueDefault carries maintenance tasks.
	QueueDefault = "default"
	// reportRefreshDelay collapses bursts of sales into one refresh.
	reportRefreshDelay = 30 * time.Second
	reportRefreshID    = "report-refresh"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Notifier turns persisted domain events into queued tasks. It implements
// events.Notifier.
type Notifier struct {
	Client     Enqueuer
	AlertQueue string
}

var _ events.Notifier = Notifier{}

// Notify enqueues the follow-up work for ev. Topics without background work
// are ignored.
func (n Notifier) Notify(ctx context.Context, ev db.DomainEvent) error {
	if n.Client == nil {
		return errors.New("jobs: enqueuer not configured")
	}
	switch ev.Topic {
	case events.TopicStockLow:
		queue := n.AlertQueue
		if queue == "" {
			queue = QueueDefault
		}
		task := asynq.NewTask(TypeLowStockAlert, ev.Payload)
		return n.enqueue(ctx, task, asynq.Queue(queue), asynq.TaskID("low-stock:"+ev.ID.String()), asynq.MaxRetry(5))
	case events.TopicSaleCompleted, events.TopicReturnCreated, events.TopicStockAdjusted, events.TopicPOItemReceived:
		task := asynq.NewTask(TypeReportRefresh, nil)
		return n.enqueue(ctx, task, asynq.Queue(QueueDefault), asynq.TaskID(reportRefreshID), asynq.ProcessIn(reportRefreshDelay), asynq.MaxRetry(2))
	default:
		return nil
	}
}

func (n Notifier) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	_, err := n.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return nil
}

// RegisterPeriodic schedules ledger verification on the given interval.
func RegisterPeriodic(s *asynq.Scheduler, verifyEvery time.Duration) error {
	if verifyEvery <= 0 {
		return nil
	}
	_, err := s.Register("@every "+verifyEvery.String(), asynq.NewTask(TypeStockVerify, nil), asynq.Queue(QueueDefault), asynq.MaxRetry(0))
	if err != nil {
		return fmt.Errorf("register %s: %w", TypeStockVerify, err)
	}
	return nil
}
