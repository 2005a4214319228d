package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"upandup/internal/gateway"
	"upandup/internal/gateway/cache"
	gatewaymetrics "upandup/internal/gateway/metrics"
	"upandup/internal/gateway/providers"
	ledgerhandler "upandup/internal/ledger/handler"
	ledgermetrics "upandup/internal/ledger/metrics"
	"upandup/internal/ledger/service"
	"upandup/internal/ledger/store"
	"upandup/internal/ledger/workers/reverify"
	"upandup/internal/partnerauth"
	"upandup/internal/platform/config"
	"upandup/internal/platform/database"
	"upandup/internal/platform/health"
	"upandup/internal/platform/httpserver"
	"upandup/internal/platform/kafka/producer"
	"upandup/internal/platform/logger"
	"upandup/internal/platform/redis"
	httptransport "upandup/internal/transport/http"
	"upandup/migrations"
	"upandup/pkg/platform/audit/outbox"
	outboxmetrics "upandup/pkg/platform/audit/outbox/metrics"
	outboxpg "upandup/pkg/platform/audit/outbox/store/postgres"
	outboxworker "upandup/pkg/platform/audit/outbox/worker"
	"upandup/pkg/platform/middleware/request"
	"upandup/pkg/platform/tracer"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal/ledger.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	log.Info("initializing upandup",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
		"gateway_provider", cfg.Gateway.Provider,
	)

	healthHandler := health.New(cfg.Server.Environment)
	tr := tracer.NewOTel("upandup")

	st, tx, outboxStore, closeDB, err := buildStore(ctx, cfg, log, healthHandler)
	if err != nil {
		return err
	}
	defer closeDB()

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck // shutdown path
		healthHandler.RegisterCheck("redis", redisClient.Check)
		go redisClient.RunPoolStats(ctx, 15*time.Second)
	}

	gwMetrics := gatewaymetrics.New()
	provider, err := providers.New(cfg.Gateway, providers.Deps{
		Tracer:  tr,
		Metrics: gwMetrics,
		Logger:  log,
	})
	if err != nil {
		return err
	}
	var dids gateway.DIDGateway = provider
	if redisClient != nil {
		dids = cache.New(provider, redisClient.Client,
			cache.WithTTL(cfg.Redis.DIDCacheTTL),
			cache.WithMetrics(gwMetrics),
			cache.WithLogger(log),
		)
	}

	ledgerMetrics := ledgermetrics.New()
	svc := service.New(st, tx, dids, provider,
		service.WithMetrics(ledgerMetrics),
		service.WithLogger(log),
		service.WithTracer(tr),
		service.WithDocumentVerifier(providers.DocumentVerifier(cfg.Gateway, provider)),
		service.WithLockWait(cfg.Ledger.LockWait),
		service.WithGatewayTimeout(cfg.Ledger.GatewayCallTimeout),
		service.WithReverifyMaxAge(cfg.Ledger.ReverifyMaxAge),
	)

	publisher, closePublisher, err := buildPublisher(cfg, log, healthHandler)
	if err != nil {
		return err
	}
	defer closePublisher()

	outboxWorker := outboxworker.New(outboxStore, publisher,
		outboxworker.WithTopic(cfg.Kafka.Topic),
		outboxworker.WithPollInterval(cfg.Kafka.PollInterval),
		outboxworker.WithMetrics(outboxmetrics.New()),
		outboxworker.WithLogger(log),
	)
	outboxWorker.Start(ctx)

	sweeper, err := reverify.New(svc,
		reverify.WithInterval(cfg.Ledger.ReverifyInterval),
		reverify.WithBatchSize(cfg.Ledger.ReverifyBatchSize),
		reverify.WithConcurrency(cfg.Ledger.ReverifyParallelism),
		reverify.WithMetrics(ledgerMetrics),
		reverify.WithLogger(log),
	)
	if err != nil {
		return err
	}
	go func() {
		if err := sweeper.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("re-verification sweeper stopped", "error", err)
		}
	}()

	tokens := partnerauth.NewTokenService(cfg.Auth.PartnerJWTKey, cfg.Auth.PartnerJWTIssuer, cfg.Auth.PartnerTokenTTL)
	router := httptransport.NewRouter(httptransport.Deps{
		Ledger:         ledgerhandler.New(svc, log),
		PartnerTokens:  partnerauth.NewHandler(tokens, svc, log),
		Health:         healthHandler,
		TokenValidator: tokens,
		AdminToken:     cfg.Auth.AdminToken,
		Metrics:        request.NewMetrics(),
		TrustedProxies: cfg.Server.TrustedProxies,
		Logger:         log,
	})
	if cfg.Auth.AdminToken == "" {
		log.Warn("ADMIN_API_TOKEN not set; admin routes are disabled")
	}

	srv := httpserver.New(cfg.Server.Addr, router)
	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	if err := outboxWorker.Stop(shutdownCtx); err != nil {
		log.Error("outbox worker did not drain", "error", err)
	}
	return nil
}

// buildStore selects PostgreSQL when DATABASE_URL is set and the in-memory
// store otherwise.
func buildStore(ctx context.Context, cfg config.Config, log *slog.Logger, h *health.Handler) (store.Store, store.TxRunner, outbox.Store, func(), error) {
	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if pool == nil {
		if cfg.Server.IsProduction() {
			return nil, nil, nil, nil, errors.New("DATABASE_URL is required in production")
		}
		log.Warn("DATABASE_URL not set; using in-memory store")
		mem := store.NewInMemory(nil)
		return mem, mem, mem.Outbox(), func() {}, nil
	}

	if cfg.Database.AutoMigrate {
		applied, err := database.Migrate(ctx, pool.DB(), migrations.FS)
		if err != nil {
			pool.Close() //nolint:errcheck // startup failure
			return nil, nil, nil, nil, err
		}
		if len(applied) > 0 {
			log.Info("applied database migrations", "versions", applied)
		}
	}
	if err := pool.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		log.Warn("database pool metrics not registered", "error", err)
	}
	h.RegisterCheck("database", pool.Check)
	closeDB := func() {
		if err := pool.Close(); err != nil {
			log.Error("close database", "error", err)
		}
	}
	return store.NewPostgres(pool.DB()), store.NewPostgresTxRunner(pool.DB()), outboxpg.New(pool.DB()), closeDB, nil
}

// buildPublisher returns the Kafka producer when brokers are configured and
// a logging publisher otherwise.
func buildPublisher(cfg config.Config, log *slog.Logger, h *health.Handler) (producer.Publisher, func(), error) {
	if cfg.Kafka.Brokers == "" {
		log.Warn("KAFKA_BROKERS not set; ledger events are logged, not published")
		return producer.NewLogPublisher(log), func() {}, nil
	}
	p, err := producer.New(producer.Config{
		Brokers:         cfg.Kafka.Brokers,
		Acks:            cfg.Kafka.Acks,
		Retries:         cfg.Kafka.Retries,
		DeliveryTimeout: cfg.Kafka.DeliveryTimeout,
		ClientID:        "upandup-ledger",
	}, log)
	if err != nil {
		return nil, nil, err
	}
	h.RegisterCheck("kafka", p.Check)
	return p, p.Close, nil
}
