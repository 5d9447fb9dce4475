package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/logicaltax/backend/internal/config"
	"github.com/logicaltax/backend/internal/handler"
	"github.com/logicaltax/backend/internal/lock"
	"github.com/logicaltax/backend/internal/logging"
	"github.com/logicaltax/backend/internal/metrics"
	appMiddleware "github.com/logicaltax/backend/internal/middleware"
	"github.com/logicaltax/backend/internal/repository"
	"github.com/logicaltax/backend/internal/service"
	"github.com/logicaltax/backend/pkg/payment"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup("info", "json")
		log.Fatal().Err(err).Msg("config error")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database error")
	}
	defer db.Close()

	if err := repository.RunMigrations(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("migration error")
	}
	log.Info().Msg("database connected and migrated")

	m := metrics.New()

	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	qaRepo := repository.NewQARepository(db)

	var provider payment.Provider
	if cfg.StripeEnabled() {
		provider = payment.NewStripeProvider(payment.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			PriceID:       cfg.StripePriceID,
			HTTPTimeout:   cfg.ProviderTimeout,
		})
		log.Info().Msg("payment provider: stripe")
	} else {
		provider = payment.NewStaticProvider(0)
		log.Warn().Msg("STRIPE_SECRET_KEY not set; every checkout is treated as paid")
	}

	checks := map[string]handler.Pinger{"database": db}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("redis error")
		}
		locker = lock.NewRedisLocker(rdb, "kb:lock:subscription:", cfg.LockTTL)
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		log.Info().Msg("subscription locks: redis")
	}

	var access service.AccessResolver
	if cfg.AccessCheckDisabled {
		access = service.NewOpenAccess(m)
		log.Warn().Msg("ACCESS_CHECK_DISABLED is set; paid content is open to every signed-in user")
	} else {
		access = service.NewAccessService(subRepo, userRepo, provider, locker, m, cfg.ProviderTimeout)
	}

	authSvc := service.NewAuthService(cfg.JWTSecret, cfg.AdminEmail, cfg.AdminPassword, userRepo, access)
	if err := authSvc.SeedAdmin(ctx); err != nil {
		log.Fatal().Err(err).Msg("admin seed error")
	}

	billingSvc := service.NewBillingService(subRepo, userRepo, provider, locker, m, cfg.ProviderTimeout, cfg.PublicURL)
	categorySvc := service.NewCategoryService(categoryRepo)
	qaSvc := service.NewQAService(qaRepo, categoryRepo)
	statsSvc := service.NewStatsService(userRepo.Count, qaRepo.Count, categoryRepo.Count, subRepo.CountActive)

	poller := service.NewSubscriptionPoller(subRepo, provider, locker, m, service.PollerConfig{
		Interval:   cfg.PollInterval,
		StaleAfter: cfg.PollStaleAfter,
		BatchSize:  cfg.PollBatchSize,
	}, cfg.ProviderTimeout)
	if cfg.StripeEnabled() {
		if err := poller.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("poller error")
		}
	}

	limiter := appMiddleware.NewRateLimiter(20, 40)
	defer limiter.Stop()
	strict := appMiddleware.NewRateLimiter(1, 5)
	defer strict.Stop()

	router := newRouter(routerDeps{
		corsOrigins: cfg.CORSOrigins,
		metrics:     m,
		auth:        authSvc,
		access:      access,
		billing:     billingSvc,
		categories:  categorySvc,
		entries:     qaSvc,
		stats:       statsSvc,
		health:      handler.NewHealthHandler(checks),
		limiter:     limiter,
		strict:      strict,
	})

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           newMetricsRouter(m),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("knowledge base backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server error")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("metrics shutdown failed")
		}
	}
	if err := poller.Stop(); err != nil {
		log.Error().Err(err).Msg("poller shutdown failed")
	}
}
