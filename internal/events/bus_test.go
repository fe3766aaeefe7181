package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/events"
)

type stubStore struct {
	lastParams db.InsertDomainEventParams
}

func (s *stubStore) InsertDomainEvent(_ context.Context, arg db.InsertDomainEventParams) (db.DomainEvent, error) {
	s.lastParams = arg
	return db.DomainEvent{
		ID:          uuid.New(),
		Topic:       arg.Topic,
		AggregateID: arg.AggregateID,
		Payload:     arg.Payload,
		OccurredAt:  time.Now(),
	}, nil
}

type captureNotifier struct {
	events []db.DomainEvent
}

func (c *captureNotifier) Notify(_ context.Context, event db.DomainEvent) error {
	c.events = append(c.events, event)
	return nil
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	aggregate := uuid.New()
	event, err := bus.Emit(context.Background(), events.TopicSaleCompleted, aggregate, events.SaleCompleted{InvoiceNo: "INV-1"})
	require.NoError(t, err)
	require.Equal(t, events.TopicSaleCompleted, store.lastParams.Topic)
	require.Equal(t, aggregate, store.lastParams.AggregateID)
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "INV-1", decoded["invoiceNo"])
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	boom := errors.New("boom")
	bus := events.Bus{
		Store: &stubStore{},
		Notifiers: []events.Notifier{events.NotifierFunc(func(context.Context, db.DomainEvent) error {
			return boom
		})},
	}
	event, err := bus.Emit(context.Background(), events.TopicStockLow, uuid.New(), nil)
	require.ErrorIs(t, err, boom)
	require.NotEqual(t, uuid.Nil, event.ID)
	require.JSONEq(t, `{}`, string(event.Payload))
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), " ", uuid.New(), nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicStockLow, uuid.Nil, nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicStockLow, uuid.New(), []byte("{"))
	require.Error(t, err)
}
