package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/events"
	"github.com/noah-isme/backend-pos/internal/jobs"
	"github.com/noah-isme/backend-pos/internal/lock"
)

type enqueued struct {
	task *asynq.Task
	opts []asynq.Option
}

type stubClient struct {
	got []enqueued
	err error
}

func (s *stubClient) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.got = append(s.got, enqueued{task: task, opts: opts})
	return &asynq.TaskInfo{ID: uuid.NewString(), Type: task.Type()}, nil
}

func TestNotifierRoutesTopics(t *testing.T) {
	client := &stubClient{}
	n := jobs.Notifier{Client: client, AlertQueue: "alerts"}
	ctx := context.Background()

	payload := []byte(`{"productId":"p","sku":"S","stock":1,"minStock":2}`)
	require.NoError(t, n.Notify(ctx, db.DomainEvent{ID: uuid.New(), Topic: events.TopicStockLow, Payload: payload}))
	require.NoError(t, n.Notify(ctx, db.DomainEvent{ID: uuid.New(), Topic: events.TopicSaleCompleted}))
	require.NoError(t, n.Notify(ctx, db.DomainEvent{ID: uuid.New(), Topic: "something.else"}))

	require.Len(t, client.got, 2)
	require.Equal(t, jobs.TypeLowStockAlert, client.got[0].task.Type())
	require.JSONEq(t, string(payload), string(client.got[0].task.Payload()))
	require.Equal(t, jobs.TypeReportRefresh, client.got[1].task.Type())
}

func TestNotifierTreatsDuplicateAsDone(t *testing.T) {
	n := jobs.Notifier{Client: &stubClient{err: asynq.ErrTaskIDConflict}}
	require.NoError(t, n.Notify(context.Background(), db.DomainEvent{ID: uuid.New(), Topic: events.TopicReturnCreated}))

	n = jobs.Notifier{Client: &stubClient{err: errors.New("redis down")}}
	require.Error(t, n.Notify(context.Background(), db.DomainEvent{ID: uuid.New(), Topic: events.TopicStockLow, Payload: []byte(`{}`)}))
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestLowStockAlertFeed(t *testing.T) {
	rdb := newRedis(t)
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	h := &jobs.Handlers{R: rdb, Logger: zerolog.Nop(), Now: func() time.Time { return at }}

	for _, sku := range []string{"A", "B"} {
		raw, err := json.Marshal(events.StockLow{ProductID: uuid.NewString(), Sku: sku, Stock: 1, MinStock: 3})
		require.NoError(t, err)
		require.NoError(t, h.HandleLowStock(context.Background(), asynq.NewTask(jobs.TypeLowStockAlert, raw)))
	}

	err := h.HandleLowStock(context.Background(), asynq.NewTask(jobs.TypeLowStockAlert, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	rec := httptest.NewRecorder()
	jobs.AlertFeed{R: rdb}.List(rec, httptest.NewRequest(http.MethodGet, "/stock/alerts?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data []jobs.Alert `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.Equal(t, "B", resp.Data[0].Sku)
	require.True(t, resp.Data[0].RaisedAt.Equal(at))
}

type stubVerifier struct {
	calls int
	rows  []db.StockDriftRow
}

func (s *stubVerifier) Verify(context.Context) ([]db.StockDriftRow, error) {
	s.calls++
	return s.rows, nil
}

func TestStockVerifyUsesLock(t *testing.T) {
	rdb := newRedis(t)
	v := &stubVerifier{rows: []db.StockDriftRow{{ProductID: uuid.New(), Sku: "X", Stock: 3}}}
	h := &jobs.Handlers{
		Stock:   v,
		Locker:  lock.Locker{R: rdb},
		LockTTL: time.Second,
		Logger:  zerolog.Nop(),
	}
	require.NoError(t, h.HandleStockVerify(context.Background(), asynq.NewTask(jobs.TypeStockVerify, nil)))
	require.Equal(t, 1, v.calls)

	// Another replica holds the lock: the run is skipped, not failed.
	require.NoError(t, rdb.Set(context.Background(), lock.Key("stock-verify"), "other", time.Second).Err())
	require.NoError(t, h.HandleStockVerify(context.Background(), asynq.NewTask(jobs.TypeStockVerify, nil)))
	require.Equal(t, 1, v.calls)
}

type stubReports struct {
	invalidated int
}

func (s *stubReports) Invalidate(context.Context) error {
	s.invalidated++
	return nil
}

func (s *stubReports) Range(_, _ time.Time, _ int) (time.Time, time.Time, error) {
	to := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return to.AddDate(0, 0, -30), to, nil
}

func TestReportRefreshInvalidatesAndWarms(t *testing.T) {
	reports := &stubReports{}
	var warmed []time.Time
	h := &jobs.Handlers{
		Reports: reports,
		Warm: func(_ context.Context, from, to time.Time) error {
			warmed = append(warmed, from, to)
			return nil
		},
	}
	require.NoError(t, h.HandleReportRefresh(context.Background(), asynq.NewTask(jobs.TypeReportRefresh, nil)))
	require.Equal(t, 1, reports.invalidated)
	require.Len(t, warmed, 2)
}

func TestMuxRegistersEveryTask(t *testing.T) {
	mux := (&jobs.Handlers{Logger: zerolog.Nop()}).Mux()
	for _, typ := range []string{jobs.TypeLowStockAlert, jobs.TypeStockVerify, jobs.TypeReportRefresh} {
		h, pattern := mux.Handler(asynq.NewTask(typ, nil))
		require.NotNil(t, h)
		require.Equal(t, typ, pattern)
	}
}
