package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/app"
	"github.com/noah-isme/backend-pos/internal/config"
	"github.com/noah-isme/backend-pos/internal/health"
	"github.com/noah-isme/backend-pos/internal/jobs"
	"github.com/noah-isme/backend-pos/internal/lock"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	o := app.InitObservability(ctx, cfg, "worker")
	logger := o.Logger
	defer o.Shutdown(context.Background())

	deps, err := app.Open(ctx, cfg, o, "pos-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("open dependencies")
	}
	defer deps.Close()

	svcs, err := app.NewServices(deps)
	if err != nil {
		logger.Fatal().Err(err).Msg("build services")
	}

	redisOpt, err := app.RedisConnOpt(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("configure task queue")
	}

	handlers := &jobs.Handlers{
		R:       deps.Redis,
		Stock:   svcs.Stock,
		Reports: svcs.Reports,
		Warm:    svcs.WarmReport,
		Locker:  lock.Locker{R: deps.Redis, RetryBackoff: 200 * time.Millisecond},
		LockTTL: app.EnvDurationMillis("WORKER_VERIFY_LOCK_TTL_MS", 600000),
		Logger:  logger,
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues: map[string]int{
			jobs.QueueDefault:      3,
			cfg.LowStockAlertTopic: 6,
		},
		Logger:   asynqLogger{l: logger},
		LogLevel: asynq.WarnLevel,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
		ShutdownTimeout: app.EnvDurationMillis("WORKER_SHUTDOWN_GRACE_MS", 20000),
	})

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: asynqLogger{l: logger}, LogLevel: asynq.WarnLevel})
	if err := jobs.RegisterPeriodic(scheduler, cfg.StockVerifyInterval); err != nil {
		logger.Fatal().Err(err).Msg("register periodic tasks")
	}

	if addr := app.EnvOrDefault("WORKER_HTTP_ADDR", ""); addr != "" {
		go serveOps(addr, health.Handler{Checker: health.Deps{Pool: deps.Pool, Redis: deps.Redis}}, logger)
	}

	if err := srv.Start(handlers.Mux()); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	logger.Info().
		Int("concurrency", cfg.WorkerConcurrency).
		Dur("verify_every", cfg.StockVerifyInterval).
		Msg("worker starting")

	<-ctx.Done()
	health.SetReady(false)
	logger.Info().Msg("worker draining")
	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func serveOps(addr string, h health.Handler, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health/live", h.Live)
	mux.HandleFunc("/health/ready", h.Ready)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("worker ops listener")
	}
}

// asynqLogger routes asynq's internal logs through zerolog.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...any) { a.l.Debug().Str("source", "asynq").Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info().Str("source", "asynq").Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn().Str("source", "asynq").Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error().Str("source", "asynq").Msg(fmt.Sprint(args...)) }

func (a asynqLogger) Fatal(args ...any) {
	a.l.Error().Str("source", "asynq").Msg(fmt.Sprint(args...))
	os.Exit(1)
}
