package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/lab-api/internal/config"
	"github.com/jwalitptl/lab-api/internal/handler"
	alertHandler "github.com/jwalitptl/lab-api/internal/handler/alert"
	auditHandler "github.com/jwalitptl/lab-api/internal/handler/audit"
	catalogHandler "github.com/jwalitptl/lab-api/internal/handler/catalog"
	orderHandler "github.com/jwalitptl/lab-api/internal/handler/order"
	statsHandler "github.com/jwalitptl/lab-api/internal/handler/stats"
	"github.com/jwalitptl/lab-api/internal/repository/postgres"
	"github.com/jwalitptl/lab-api/internal/router"
	alertService "github.com/jwalitptl/lab-api/internal/service/alert"
	auditService "github.com/jwalitptl/lab-api/internal/service/audit"
	catalogService "github.com/jwalitptl/lab-api/internal/service/catalog"
	"github.com/jwalitptl/lab-api/internal/service/event"
	orderService "github.com/jwalitptl/lab-api/internal/service/order"
	resultService "github.com/jwalitptl/lab-api/internal/service/result"
	statsService "github.com/jwalitptl/lab-api/internal/service/stats"
	"github.com/jwalitptl/lab-api/pkg/auth"
	"github.com/jwalitptl/lab-api/pkg/logger"
	"github.com/jwalitptl/lab-api/pkg/messaging"
	"github.com/jwalitptl/lab-api/pkg/messaging/redis"
	"github.com/jwalitptl/lab-api/pkg/metrics"
	"github.com/jwalitptl/lab-api/pkg/validator"
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

	if err := validator.RegisterBinding(); err != nil {
		log.Fatal().Err(err).Msg("failed to register request validators")
	}

	m := metrics.NewMetrics("lab", "api")

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

	orderRepo := postgres.NewOrderRepository(db)
	resultRepo := postgres.NewResultRepository(db)
	alertRepo := postgres.NewAlertRepository(db)
	catalogRepo := postgres.NewTestCatalogRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	// Lifecycle events are best-effort, so a dead Redis degrades the
	// broker to a no-op instead of blocking startup.
	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.Logger)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, lifecycle events disabled")
		broker = messaging.NewNopBroker()
	}
	defer broker.Close()

	emitter := event.NewEmitter(broker, appLogger, m)
	auditSvc := auditService.NewService(auditRepo, appLogger)
	catalogSvc := catalogService.NewService(catalogRepo, auditSvc, appLogger)
	alertSvc := alertService.NewService(alertRepo, auditSvc, emitter, appLogger)
	orderSvc := orderService.NewService(orderRepo, resultRepo, catalogSvc, auditSvc, emitter, appLogger)
	resultSvc := resultService.NewService(orderRepo, resultRepo, catalogSvc, alertSvc, auditSvc, emitter, appLogger)
	statsSvc, err := statsService.NewService(orderRepo, alertRepo, cfg.Stats.Timezone)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build stats service")
	}

	r := router.NewRouter(
		handler.NewHandler(db),
		orderHandler.NewHandler(orderSvc, resultSvc),
		alertHandler.NewHandler(alertSvc),
		statsHandler.NewHandler(statsSvc),
		catalogHandler.NewHandler(catalogSvc),
		auditHandler.NewHandler(auditSvc),
		auth.NewTokenParser(cfg.Auth.JWTSecret),
		m,
		router.RouterConfig{
			RateLimit:      rate.Limit(cfg.RateLimit.RPS),
			RateBurst:      cfg.RateLimit.Burst,
			RequestTimeout: cfg.Server.RequestTimeout,
			CORS:           router.DefaultRouterConfig().CORS,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLogger.Info("starting api server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down api server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	appLogger.Info("server exited")
}
