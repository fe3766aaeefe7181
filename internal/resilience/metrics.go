package resilience

import "github.com/prometheus/client_golang/prometheus"

var (
	breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pos",
		Name:      "breaker_state",
		Help:      "Current breaker state: 0=closed, 1=open, 2=half-open.",
	}, []string{"target"})
	breakerOpened = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pos",
		Name:      "breaker_open_total",
		Help:      "Times a breaker opened.",
	}, []string{"target"})
)

func init() {
	prometheus.MustRegister(breakerState, breakerOpened)
}
