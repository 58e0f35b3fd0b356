package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/lab-api/internal/config"
	"github.com/jwalitptl/lab-api/internal/notifier"
	"github.com/jwalitptl/lab-api/internal/repository/postgres"
	"github.com/jwalitptl/lab-api/internal/service/event"
	retention "github.com/jwalitptl/lab-api/internal/worker"
	"github.com/jwalitptl/lab-api/pkg/logger"
	"github.com/jwalitptl/lab-api/pkg/messaging"
	"github.com/jwalitptl/lab-api/pkg/messaging/redis"
	"github.com/jwalitptl/lab-api/pkg/metrics"
	"github.com/jwalitptl/lab-api/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level := logger.ParseLevel(cfg.Log.Level)
	zerolog.SetGlobalLevel(level)
	appLogger := logger.NewLogger(&logger.Config{
		Level:      level,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
	})

	m := metrics.NewMetrics("lab", "worker")

	db, err := postgres.NewDB(postgres.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	alertRepo := postgres.NewAlertRepository(db)
	resultRepo := postgres.NewResultRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	// Escalations still land in the database when Redis is down; only
	// the supervisory queue goes quiet.
	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.Logger)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, escalation events disabled")
		broker = messaging.NewNopBroker()
	}
	defer broker.Close()

	emitter := event.NewEmitter(broker, appLogger, m)

	directory := notifier.NewStaticDirectory(cfg.Directory.Providers, cfg.Directory.DefaultDomain)
	mailer := notifier.NewEmailNotifier(notifier.EmailConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		From:     cfg.SMTP.From,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
	}, directory)

	dispatcher := worker.NewDispatcher(alertRepo, resultRepo, mailer, emitter, worker.DispatcherConfig{
		BatchSize:      cfg.Dispatcher.BatchSize,
		PollInterval:   cfg.Dispatcher.PollInterval,
		BaseDelay:      cfg.Dispatcher.BaseDelay,
		MaxAttempts:    cfg.Dispatcher.MaxAttempts,
		AttemptTimeout: cfg.Dispatcher.AttemptTimeout,
	}, appLogger, m)

	pruner := retention.NewRetentionWorker(alertRepo, auditRepo, retention.RetentionConfig{
		AlertDays: cfg.Retention.AlertDays,
		AuditDays: cfg.Retention.AuditDays,
		Interval:  cfg.Retention.Interval,
	}, appLogger, m)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	probeSrv := probeServer(cfg.Server.MetricsPort, db)
	go func() {
		appLogger.Info("starting worker probes", "addr", probeSrv.Addr)
		if err := probeSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start probe server")
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		dispatcher.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		pruner.Start(ctx)
	}()

	<-ctx.Done()
	appLogger.Info("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := probeSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("probe server forced to shutdown")
	}

	wg.Wait()
	appLogger.Info("worker exited")
}

// probeServer serves liveness, readiness, and metrics for the worker
// process on its own port.
func probeServer(port int, db interface {
	PingContext(ctx context.Context) error
}) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
}
