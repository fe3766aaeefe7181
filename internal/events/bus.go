package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-pos/internal/db"
)

// EventStore defines the persistence operations required by the event bus.
type EventStore interface {
	InsertDomainEvent(ctx context.Context, arg db.InsertDomainEventParams) (db.DomainEvent, error)
}

// Notifier reacts to emitted events (background jobs, cache invalidation).
type Notifier interface {
	Notify(ctx context.Context, event db.DomainEvent) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event db.DomainEvent) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, event db.DomainEvent) error { return f(ctx, event) }

// Bus persists domain events and fans them out to downstream handlers.
type Bus struct {
	Store     EventStore
	Notifiers []Notifier
}

// Emit records the event and dispatches it to all configured notifiers.
// Notifier failures are joined into the returned error after the event has
// been persisted; the returned event is valid whenever persistence succeeded.
func (b *Bus) Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (db.DomainEvent, error) {
	if b == nil || b.Store == nil {
		return db.DomainEvent{}, errors.New("events: store not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return db.DomainEvent{}, errors.New("events: topic is required")
	}
	if aggregateID == uuid.Nil {
		return db.DomainEvent{}, errors.New("events: aggregate id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return db.DomainEvent{}, fmt.Errorf("events: encode payload: %w", err)
	}
	ev, err := b.Store.InsertDomainEvent(ctx, db.InsertDomainEventParams{
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     encoded,
	})
	if err != nil {
		return db.DomainEvent{}, fmt.Errorf("events: persist event: %w", err)
	}
	var joined error
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, ev); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return ev, joined
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	case json.RawMessage:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	default:
		return json.Marshal(v)
	}
}

// Payloads carried by the topics above.

// SaleCompleted is the payload of TopicSaleCompleted.
type SaleCompleted struct {
	SaleID        string `json:"saleId"`
	InvoiceNo     string `json:"invoiceNo"`
	CashierID     string `json:"cashierId"`
	Total         string `json:"total"`
	PaymentMethod string `json:"paymentMethod"`
	Items         int    `json:"items"`
}

// ReturnCreated is the payload of TopicReturnCreated.
type ReturnCreated struct {
	ReturnID    string `json:"returnId"`
	SaleID      string `json:"saleId"`
	RefundTotal string `json:"refundTotal"`
	Units       int32  `json:"units"`
}

// StockLow is the payload of TopicStockLow.
type StockLow struct {
	ProductID string `json:"productId"`
	Sku       string `json:"sku"`
	Name      string `json:"name"`
	Stock     int32  `json:"stock"`
	MinStock  int32  `json:"minStock"`
}
