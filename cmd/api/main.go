package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-pos/internal/app"
	"github.com/noah-isme/backend-pos/internal/auth"
	"github.com/noah-isme/backend-pos/internal/config"
	"github.com/noah-isme/backend-pos/internal/health"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	o := app.InitObservability(ctx, cfg, "api")
	logger := o.Logger
	defer o.Shutdown(context.Background())

	deps, err := app.Open(ctx, cfg, o, "pos-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("open dependencies")
	}
	defer deps.Close()

	svcs, err := app.NewServices(deps)
	if err != nil {
		logger.Fatal().Err(err).Msg("build services")
	}

	verifier, err := auth.NewVerifier(auth.Config{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		ClockSkew: 30 * time.Second,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("configure token verifier")
	}

	apiLimiter, err := ratelimit.NewFixed(deps.Redis, "pos:rl:api", time.Minute, int64(cfg.RateLimitPerMinute))
	if err != nil {
		logger.Fatal().Err(err).Msg("configure rate limiter")
	}
	saleLimiter := ratelimit.Sliding{
		Client: deps.Redis,
		Prefix: "pos:rl:sale:",
		Window: time.Minute,
		Max:    cfg.SaleRateLimitPerMinute,
	}

	var httpMetrics *obs.HTTPMetrics
	if o.MetricsEnabled {
		buckets := obs.ParseBucketsCSV(app.EnvOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(o.MetricsNamespace, buckets, nil)
	}

	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cfg.CORSAllowedOrigins = origins

	var handler http.Handler = newRouter(routerDeps{
		Config:      cfg,
		Logger:      logger,
		Services:    svcs,
		Redis:       deps.Redis,
		Verifier:    verifier,
		Checker:     health.Deps{Pool: deps.Pool, Redis: deps.Redis},
		HTTPMetrics: httpMetrics,
		APILimiter:  apiLimiter,
		SaleLimiter: saleLimiter,
		Pprof:       app.EnvBool("OBS_ENABLE_PPROF", false),
	})
	if o.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "pos-api")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
		return
	case <-ctx.Done():
	}

	health.SetReady(false)
	grace := app.EnvDurationMillis("HTTP_SHUTDOWN_GRACE_MS", 15000)
	logger.Info().Dur("grace", grace).Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}
