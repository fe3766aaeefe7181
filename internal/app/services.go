package app

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-pos/internal/analytics"
	"github.com/noah-isme/backend-pos/internal/audit"
	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/config"
	"github.com/noah-isme/backend-pos/internal/coupon"
	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/events"
	"github.com/noah-isme/backend-pos/internal/jobs"
	"github.com/noah-isme/backend-pos/internal/party"
	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/promotion"
	"github.com/noah-isme/backend-pos/internal/purchase"
	"github.com/noah-isme/backend-pos/internal/resilience"
	"github.com/noah-isme/backend-pos/internal/returns"
	"github.com/noah-isme/backend-pos/internal/sale"
	"github.com/noah-isme/backend-pos/internal/stock"
)

// Services are the domain services built over one set of Dependencies.
type Services struct {
	Bus        *events.Bus
	Catalog    *catalog.Service
	Reports    *analytics.Service
	Pricing    *pricing.Service
	Promotions *promotion.Service
	Coupons    *coupon.Service
	Sales      *sale.Service
	Returns    *returns.Service
	Stock      *stock.Service
	Purchases  *purchase.Service
	Parties    *party.Service
	Audit      audit.Service
}

// NewServices builds the domain services over live connections. Persisted
// events are handed to the asynq client for background follow-up.
func NewServices(d *Dependencies) (*Services, error) {
	var tasks jobs.Enqueuer
	if d.Tasks != nil {
		tasks = d.Tasks
	}
	return BuildServices(d.Config, d.Store, d.Redis, tasks)
}

// BuildServices builds the domain services over any store. rdb and tasks may
// be nil, which disables caching and background follow-up.
func BuildServices(cfg *config.Config, store db.Store, rdb *redis.Client, tasks jobs.Enqueuer) (*Services, error) {
	var notifiers []events.Notifier
	if tasks != nil {
		breaker := resilience.NewBreaker(
			EnvInt("TASKS_BREAKER_MIN_CALLS", 5),
			EnvFloat("TASKS_BREAKER_FAILURE_RATIO", 0.5),
			EnvDurationMillis("TASKS_BREAKER_OPEN_MS", 30000),
		).WithTarget("asynq")
		notifiers = append(notifiers, resilience.Notifier{
			Next:    jobs.Notifier{Client: tasks, AlertQueue: cfg.LowStockAlertTopic},
			Breaker: breaker,
		})
	}
	bus := &events.Bus{Store: store, Notifiers: notifiers}
	reports := &analytics.Service{
		Q:              store,
		R:              rdb,
		TTL:            cfg.ReportCacheTTL,
		DefaultRange:   30,
		TopN:           cfg.TopProductsLimit,
		NotSellingDays: cfg.NotSellingDays,
	}
	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{
		Store:   store,
		Cache:   catalog.NewCache(rdb, cfg.CatalogCacheTTL),
		Reports: reports,
	})
	if err != nil {
		return nil, err
	}
	pricingSvc := &pricing.Service{Store: store, TaxBps: cfg.TaxRateBps}
	return &Services{
		Bus:        bus,
		Catalog:    catalogSvc,
		Reports:    reports,
		Pricing:    pricingSvc,
		Promotions: &promotion.Service{Store: store},
		Coupons:    &coupon.Service{Q: store},
		Sales:      &sale.Service{Store: store, Pricing: pricingSvc, Events: bus, InvoicePrefix: cfg.InvoicePrefix},
		Returns:    &returns.Service{Store: store, Events: bus},
		Stock:      &stock.Service{Store: store, Events: bus},
		Purchases:  &purchase.Service{Store: store, Events: bus},
		Parties:    &party.Service{Q: store},
		Audit:      audit.Service{Store: store, Enabled: cfg.AuditEnabled, SamplingRate: 1},
	}, nil
}

// WarmReport builds the report for [from, to) so it lands in the cache.
func (s *Services) WarmReport(ctx context.Context, from, to time.Time) error {
	_, err := s.Reports.Report(ctx, from, to)
	return err
}
