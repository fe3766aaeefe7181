package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SalesCommittedTotal counts checkout commits by outcome.
	SalesCommittedTotal *prometheus.CounterVec
	// SaleAmountTotal accumulates committed sale totals by payment method.
	SaleAmountTotal *prometheus.CounterVec
	// InsufficientStockTotal counts guarded decrements that were refused.
	InsufficientStockTotal prometheus.Counter
	// ReturnsProcessedTotal counts return requests by outcome.
	ReturnsProcessedTotal *prometheus.CounterVec
	// StockMovementsTotal counts ledger entries by movement kind.
	StockMovementsTotal *prometheus.CounterVec
	// StockDriftProducts reports how many products disagreed with their ledger on the last verification.
	StockDriftProducts prometheus.Gauge
	// ReportBuildDuration records report aggregation latency in milliseconds.
	ReportBuildDuration *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SalesCommittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_committed_total",
			Help:      "Count of checkout commit attempts by outcome.",
		}, []string{"result"})
		SaleAmountTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sale_amount_total",
			Help:      "Sum of committed sale totals by payment method.",
		}, []string{"method"})
		InsufficientStockTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insufficient_stock_total",
			Help:      "Number of stock decrements refused because stock was insufficient.",
		})
		ReturnsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "returns_processed_total",
			Help:      "Count of sales returns by outcome.",
		}, []string{"result"})
		StockMovementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_movements_total",
			Help:      "Count of stock ledger entries by movement kind.",
		}, []string{"kind"})
		StockDriftProducts = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stock_drift_products",
			Help:      "Products whose stock counter disagreed with the movement ledger at the last verification.",
		})
		ReportBuildDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_build_duration_ms",
			Help:      "Report aggregation latency in milliseconds.",
			Buckets:   []float64{5, 25, 100, 250, 1000, 5000},
		}, []string{"cache"})

		mustRegisterCollector(reg, SalesCommittedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SalesCommittedTotal = v
			}
		})
		mustRegisterCollector(reg, SaleAmountTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SaleAmountTotal = v
			}
		})
		mustRegisterCollector(reg, InsufficientStockTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				InsufficientStockTotal = v
			}
		})
		mustRegisterCollector(reg, ReturnsProcessedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ReturnsProcessedTotal = v
			}
		})
		mustRegisterCollector(reg, StockMovementsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				StockMovementsTotal = v
			}
		})
		mustRegisterCollector(reg, StockDriftProducts, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				StockDriftProducts = v
			}
		})
		mustRegisterCollector(reg, ReportBuildDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				ReportBuildDuration = v
			}
		})
	})
}

// The helpers below tolerate unregistered collectors so packages can be
// exercised in tests without wiring metrics.

// ObserveSale records the outcome of a checkout commit.
func ObserveSale(result, method string, amount float64) {
	if SalesCommittedTotal != nil {
		SalesCommittedTotal.WithLabelValues(result).Inc()
	}
	if result == "ok" && SaleAmountTotal != nil {
		SaleAmountTotal.WithLabelValues(method).Add(amount)
	}
	if result == "insufficient_stock" && InsufficientStockTotal != nil {
		InsufficientStockTotal.Inc()
	}
}

// ObserveReturn records the outcome of a return request.
func ObserveReturn(result string) {
	if ReturnsProcessedTotal != nil {
		ReturnsProcessedTotal.WithLabelValues(result).Inc()
	}
}

// ObserveMovement records a stock ledger entry.
func ObserveMovement(kind string) {
	if StockMovementsTotal != nil {
		StockMovementsTotal.WithLabelValues(kind).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
