package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/obs"
)

const (
	cachePrefix   = "pos:report"
	generationKey = "pos:report:gen"
	pageSize      = 500
)

// Querier defines the database access required for reporting.
type Querier interface {
	ListSalesBetween(ctx context.Context, from, to time.Time) ([]db.Sale, error)
	ListProducts(ctx context.Context, arg db.ListProductsParams) ([]db.Product, error)
	ListCategories(ctx context.Context) ([]db.Category, error)
}

// Service loads report inputs from the store and caches built reports in Redis.
type Service struct {
	Q              Querier
	R              *redis.Client
	TTL            time.Duration
	DefaultRange   int
	TopN           int
	NotSellingDays int
	Now            func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// Range resolves a report window. A zero from/to falls back to the last
// DefaultRange days ending now.
func (s *Service) Range(from, to time.Time, days int) (time.Time, time.Time, error) {
	if from.IsZero() || to.IsZero() {
		if days <= 0 {
			days = s.DefaultRange
		}
		if days <= 0 {
			days = 30
		}
		to = s.now().UTC()
		from = to.AddDate(0, 0, -days)
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("from must be before to")
	}
	return from, to, nil
}

// Report builds the report for [from, to). Cached copies are keyed by the
// window and the current cache generation; Invalidate moves to a new
// generation so stale entries are never read again.
func (s *Service) Report(ctx context.Context, from, to time.Time) (Report, error) {
	if s == nil || s.Q == nil {
		return Report{}, fmt.Errorf("analytics service not configured")
	}
	start := time.Now()
	gen := s.generation(ctx)
	key := cacheKey(cachePrefix, gen, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339), s.TopN, s.NotSellingDays)
	var cached Report
	if s.load(ctx, key, &cached) {
		observeBuild("hit", start)
		return cached, nil
	}

	now := s.now()
	w := Window{From: from, To: to, Now: now, TopN: s.TopN, NotSellingDays: s.notSellingDays()}
	loadFrom := from
	if idle := now.AddDate(0, 0, -w.NotSellingDays); idle.Before(loadFrom) {
		loadFrom = idle
	}
	loadTo := to
	if now.After(loadTo) {
		loadTo = now.Add(time.Second)
	}
	sales, err := s.Q.ListSalesBetween(ctx, loadFrom, loadTo)
	if err != nil {
		return Report{}, fmt.Errorf("list sales: %w", err)
	}
	products, err := s.allProducts(ctx)
	if err != nil {
		return Report{}, err
	}
	categories, err := s.Q.ListCategories(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list categories: %w", err)
	}

	report := Aggregate(sales, products, categories, w)
	s.store(ctx, key, report)
	observeBuild("miss", start)
	return report, nil
}

func (s *Service) notSellingDays() int {
	if s.NotSellingDays > 0 {
		return s.NotSellingDays
	}
	return 30
}

func (s *Service) allProducts(ctx context.Context) ([]db.Product, error) {
	var out []db.Product
	for offset := int32(0); ; offset += pageSize {
		rows, err := s.Q.ListProducts(ctx, db.ListProductsParams{IncludeDeleted: true, Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("list products: %w", err)
		}
		out = append(out, rows...)
		if len(rows) < pageSize {
			return out, nil
		}
	}
}

// Invalidate retires every cached report.
func (s *Service) Invalidate(ctx context.Context) error {
	if s == nil || s.R == nil {
		return nil
	}
	return s.R.Incr(ctx, generationKey).Err()
}

func (s *Service) generation(ctx context.Context) int64 {
	if s.R == nil || s.TTL <= 0 {
		return 0
	}
	gen, err := s.R.Get(ctx, generationKey).Int64()
	if err != nil {
		return 0
	}
	return gen
}

func (s *Service) load(ctx context.Context, key string, dst any) bool {
	if s.R == nil || s.TTL <= 0 {
		return false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}

func observeBuild(cache string, start time.Time) {
	if obs.ReportBuildDuration != nil {
		obs.ReportBuildDuration.WithLabelValues(cache).Observe(obs.DurationMillis(time.Since(start)))
	}
}
