package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/bananabot/pricing/internal/api"
	"github.com/bananabot/pricing/internal/auth"
	"github.com/bananabot/pricing/internal/cache"
	"github.com/bananabot/pricing/internal/config"
	"github.com/bananabot/pricing/internal/crypto"
	"github.com/bananabot/pricing/internal/ledger"
	"github.com/bananabot/pricing/internal/notifications"
	"github.com/bananabot/pricing/internal/pricing"
	"github.com/bananabot/pricing/internal/queue"
	"github.com/bananabot/pricing/internal/ratelimit"
	"github.com/bananabot/pricing/internal/repository"
	"github.com/bananabot/pricing/internal/secrets"
	"github.com/bananabot/pricing/internal/spend"
	"github.com/bananabot/pricing/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	slog.Info("starting pricing service", "addr", cfg.Addr, "version", "0.1.0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.SecretNamePrefix != "" && cfg.AWSRegion != "" {
		secretStore, err := secrets.NewAWSSecretsManager(ctx, cfg.AWSRegion)
		if err != nil {
			slog.Error("failed to init secrets manager", "error", err)
			os.Exit(1)
		}
		cfg.ResolveSecrets(ctx, secretStore)
	}

	shutdownTracing, err := telemetry.Init(ctx, "pricing-service", cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to init telemetry", "error", err)
		os.Exit(1)
	}

	var (
		db          *sql.DB
		tariffRepo  repository.TariffRepository
		settingRepo repository.SettingsRepository
		userRepo    repository.UserRepository
		callerRepo  repository.CallerRepository
		tracker     ledger.Tracker
		checkers    []api.HealthChecker
	)

	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			pingCancel()
			slog.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		pingCancel()

		var encryptor *crypto.Encryptor
		if cfg.EncryptionKey != "" {
			encryptor, err = crypto.NewEncryptor(cfg.EncryptionKey)
			if err != nil {
				slog.Error("invalid encryption key", "error", err)
				os.Exit(1)
			}
		}

		tariffRepo = repository.NewPostgresTariffRepository(db)
		settingRepo = repository.NewPostgresSettingsRepository(db)
		userRepo = repository.NewPostgresUserRepository(db)
		callerRepo = repository.NewPostgresCallerRepository(db, encryptor)
		tracker = repository.NewPostgresQuoteRepository(db)
		checkers = append(checkers, api.NewPostgresHealthChecker(db))

		slog.Info("using postgres storage")
	} else {
		tariffRepo = repository.NewInMemoryTariffRepository()
		settingRepo = repository.NewInMemorySettingsRepository()
		userRepo = repository.NewInMemoryUserRepository()
		callerRepo = repository.NewInMemoryCallerRepository()
		tracker = ledger.NewInMemoryTracker()

		slog.Info("using in-memory storage")
	}

	var snapshotCache cache.Cache
	if cfg.RedisURL != "" {
		snapshotCache, err = cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			slog.Warn("failed to connect to redis for cache, using in-memory", "error", err)
			snapshotCache = cache.NewInMemoryCache()
		} else {
			slog.Info("using redis cache")
		}
	} else {
		snapshotCache = cache.NewInMemoryCache()
		slog.Info("using in-memory cache")
	}

	tariffStore := cache.NewTariffStore(tariffRepo, snapshotCache, cfg.CacheTTL)
	settingsStore := cache.NewSettingsStore(settingRepo, snapshotCache, cfg.CacheTTL)

	engine := pricing.NewEngine(tariffStore, settingsStore, userRepo,
		pricing.WithCreditPrice(cfg.CreditPrice))

	var rateLimiter ratelimit.RateLimiter
	if cfg.RedisURL != "" {
		rateLimiter, err = ratelimit.NewRedisRateLimiter(cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		slog.Info("using redis rate limiter")

		if checker, err := api.NewRedisHealthChecker(cfg.RedisURL); err == nil {
			checkers = append(checkers, checker)
		}
	} else {
		rateLimiter = ratelimit.NewInMemoryRateLimiter()
		slog.Info("using in-memory rate limiter")
	}

	var quoteQueue queue.Queue
	if cfg.QuoteQueueURL != "" && cfg.AWSRegion != "" {
		quoteQueue, err = queue.NewSQSQueue(ctx, cfg.AWSRegion, cfg.QuoteQueueURL)
		if err != nil {
			slog.Error("failed to init quote queue", "error", err)
			os.Exit(1)
		}
		slog.Info("publishing quote events", "queue", cfg.QuoteQueueURL)
	}

	var alertNotifiers []notifications.Notifier
	if cfg.AlertTopicArn != "" && cfg.AWSRegion != "" {
		snsNotifier, err := notifications.NewSNSNotifier(ctx, cfg.AWSRegion, cfg.AlertTopicArn)
		if err != nil {
			slog.Error("failed to init sns notifier", "error", err)
			os.Exit(1)
		}
		alertNotifiers = append(alertNotifiers, snsNotifier)
	}
	if cfg.AlertWebhookURL != "" {
		alertNotifiers = append(alertNotifiers, notifications.NewWebhookNotifier(cfg.AlertWebhookURL))
	}

	var notifier notifications.Notifier
	if len(alertNotifiers) > 0 {
		notifier = notifications.NewMultiNotifier(alertNotifiers...)
	}

	var dedup spend.AlertDeduplicator
	if cfg.RedisURL != "" {
		dedup, err = spend.NewRedisDeduplicator(cfg.RedisURL, time.Hour)
		if err != nil {
			slog.Warn("failed to init redis deduplicator, using in-memory", "error", err)
			dedup = spend.NewInMemoryDeduplicator()
		}
	} else {
		dedup = spend.NewInMemoryDeduplicator()
	}

	monitor := spend.NewMonitor(tracker, userRepo, dedup, spend.Thresholds{
		Warning:  cfg.SpendWarningThreshold,
		Critical: cfg.SpendCriticalThreshold,
	})
	monitor.OnAlert(spend.LogAlertHandler)
	if notifier != nil {
		monitor.OnAlert(spend.NotifierAlertHandler(notifier))
	}

	handler := api.NewHandler(api.HandlerConfig{
		Engine:      engine,
		Callers:     callerRepo,
		Tariffs:     tariffRepo,
		RateLimiter: rateLimiter,
		Ledger:      tracker,
		Queue:       quoteQueue,
		Monitor:     monitor,
		Checkers:    checkers,
	})

	adminHandler := api.NewAdminHandler(api.AdminHandlerConfig{
		Tariffs:       tariffRepo,
		Settings:      settingRepo,
		Users:         userRepo,
		Callers:       callerRepo,
		Ledger:        tracker,
		Notifier:      notifier,
		TariffCache:   tariffStore,
		SettingsCache: settingsStore,

		DefaultRateLimitRPM: cfg.RateLimitRPM,
	})

	mux := http.NewServeMux()
	mux.Handle("/v1/", handler)
	mux.Handle("/health", handler)
	mux.Handle("/health/", handler)
	mux.Handle("/metrics", handler)

	var adminRoutes http.Handler = adminHandler
	if cfg.AdminAuthEnabled {
		adminRoutes = auth.BasicAuthMiddleware(auth.AdminAccount{
			Username:     cfg.AdminUsername,
			PasswordHash: cfg.AdminPasswordHash,
		}, adminHandler)
		slog.Info("admin endpoints require basic auth")
	}
	mux.Handle("/admin/", adminRoutes)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Warn("tracing shutdown error", "error", err)
	}

	if db != nil {
		db.Close()
	}

	slog.Info("server stopped")
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
