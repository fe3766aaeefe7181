package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/events"
	"github.com/noah-isme/backend-pos/internal/lock"
)

const (
	alertsKey      = "pos:alerts:low_stock"
	alertsKeep     = 200
	verifyLockName = "stock-verify"
)

// Verifier checks stock counters against the movement ledger.
type Verifier interface {
	Verify(ctx context.Context) ([]db.StockDriftRow, error)
}

// ReportCache is the slice of the analytics service the refresh job needs.
type ReportCache interface {
	Invalidate(ctx context.Context) error
	Range(from, to time.Time, days int) (time.Time, time.Time, error)
}

// ReportWarmer builds a report so the next reader hits the cache.
type ReportWarmer func(ctx context.Context, from, to time.Time) error

// Alert is a low-stock notice kept for the dashboard feed.
type Alert struct {
	events.StockLow
	RaisedAt time.Time `json:"raisedAt"`
}

// Handlers executes queued tasks.
type Handlers struct {
	R       *redis.Client
	Stock   Verifier
	Reports ReportCache
	Warm    ReportWarmer
	Locker  lock.Locker
	LockTTL time.Duration
	Logger  zerolog.Logger
	Now     func() time.Time
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Mux routes task types to handlers.
func (h *Handlers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeLowStockAlert, h.HandleLowStock)
	mux.HandleFunc(TypeStockVerify, h.HandleStockVerify)
	mux.HandleFunc(TypeReportRefresh, h.HandleReportRefresh)
	return mux
}

// HandleLowStock records the alert in the dashboard feed.
func (h *Handlers) HandleLowStock(ctx context.Context, t *asynq.Task) error {
	var payload events.StockLow
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode low stock payload: %v: %w", err, asynq.SkipRetry)
	}
	alert := Alert{StockLow: payload, RaisedAt: h.now().UTC()}
	h.Logger.Warn().
		Str("product_id", payload.ProductID).
		Str("sku", payload.Sku).
		Int32("stock", payload.Stock).
		Int32("min_stock", payload.MinStock).
		Msg("stock at or below minimum")
	if h.R == nil {
		return nil
	}
	raw, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	pipe := h.R.TxPipeline()
	pipe.LPush(ctx, alertsKey, raw)
	pipe.LTrim(ctx, alertsKey, 0, alertsKeep-1)
	_, err = pipe.Exec(ctx)
	return err
}

// HandleStockVerify compares counters with the ledger. Only one worker runs
// it at a time.
func (h *Handlers) HandleStockVerify(ctx context.Context, _ *asynq.Task) error {
	if h.Stock == nil {
		return errors.New("jobs: stock verifier not configured")
	}
	run := func(ctx context.Context) error {
		drift, err := h.Stock.Verify(ctx)
		if err != nil {
			return err
		}
		if len(drift) == 0 {
			h.Logger.Info().Msg("stock ledger consistent")
			return nil
		}
		for _, d := range drift {
			h.Logger.Error().
				Str("product_id", d.ProductID.String()).
				Str("sku", d.Sku).
				Int32("stock", d.Stock).
				Int64("ledger_total", d.LedgerTotal).
				Msg("stock ledger drift")
		}
		return nil
	}
	if h.Locker.R == nil {
		return run(ctx)
	}
	ttl := h.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	err := h.Locker.TryWithLock(ctx, verifyLockName, ttl, run)
	if errors.Is(err, lock.ErrNotAcquired) {
		h.Logger.Info().Msg("stock verification already running elsewhere")
		return nil
	}
	return err
}

// HandleReportRefresh drops cached reports and rebuilds the default window.
func (h *Handlers) HandleReportRefresh(ctx context.Context, _ *asynq.Task) error {
	if h.Reports == nil {
		return nil
	}
	if err := h.Reports.Invalidate(ctx); err != nil {
		return fmt.Errorf("invalidate reports: %w", err)
	}
	if h.Warm == nil {
		return nil
	}
	from, to, err := h.Reports.Range(time.Time{}, time.Time{}, 0)
	if err != nil {
		return err
	}
	return h.Warm(ctx, from, to)
}

// AlertFeed serves the most recent low-stock alerts.
type AlertFeed struct {
	R *redis.Client
}

// Recent returns up to n alerts, newest first.
func (f AlertFeed) Recent(ctx context.Context, n int64) ([]Alert, error) {
	out := []Alert{}
	if f.R == nil {
		return out, nil
	}
	if n <= 0 || n > alertsKeep {
		n = alertsKeep
	}
	rows, err := f.R.LRange(ctx, alertsKey, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		var a Alert
		if json.Unmarshal([]byte(row), &a) == nil {
			out = append(out, a)
		}
	}
	return out, nil
}

// List handles GET /stock/alerts.
func (f AlertFeed) List(w http.ResponseWriter, r *http.Request) {
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), 50)
	alerts, err := f.Recent(r.Context(), int64(limit))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, alerts)
}
