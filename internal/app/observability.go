package app

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/config"
	"github.com/noah-isme/backend-pos/internal/obs"
)

// Observability is the logging, metrics and tracing setup shared by the
// binaries. It is configured from OBS_* variables.
type Observability struct {
	Logger           zerolog.Logger
	MetricsEnabled   bool
	MetricsNamespace string
	TracingEnabled   bool
	shutdown         func(context.Context) error
}

// InitObservability builds the process logger, registers domain metrics and
// starts the tracer provider. Tracing failures are logged and tracing stays
// off.
func InitObservability(ctx context.Context, cfg *config.Config, component string) *Observability {
	o := &Observability{
		Logger: obs.NewLogger(EnvOrDefault("OBS_LOG_FORMAT", "json"), EnvOrDefault("OBS_LOG_LEVEL", "info")).
			With().Str("env", cfg.AppEnv).Str("component", component).Logger(),
		MetricsEnabled:   EnvBool("OBS_ENABLE_PROMETHEUS", true),
		MetricsNamespace: EnvOrDefault("OBS_METRICS_NAMESPACE", "pos"),
		TracingEnabled:   EnvBool("OBS_ENABLE_TRACING", false),
	}
	obs.MustRegisterDomainMetrics(o.MetricsNamespace, nil)

	if o.TracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "pos-" + component,
			Endpoint:      EnvOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      EnvOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: EnvFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			o.Logger.Error().Err(err).Msg("initialise tracing")
			o.TracingEnabled = false
		} else {
			o.shutdown = shutdown
		}
	}
	return o
}

// Shutdown flushes pending spans.
func (o *Observability) Shutdown(ctx context.Context) {
	if o.shutdown == nil {
		return
	}
	if err := o.shutdown(ctx); err != nil {
		o.Logger.Error().Err(err).Msg("shutdown tracer")
	}
}
