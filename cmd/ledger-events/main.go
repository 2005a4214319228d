// Command ledger-events consumes the ledger event topic and stores every
// event in the ledger_events table, giving operators a queryable history of
// partner, worker and credential transitions.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"upandup/internal/platform/config"
	"upandup/internal/platform/database"
	"upandup/internal/platform/httpserver"
	kafkaconsumer "upandup/internal/platform/kafka/consumer"
	"upandup/internal/platform/logger"
	"upandup/migrations"
	auditconsumer "upandup/pkg/platform/audit/consumer"
	auditmetrics "upandup/pkg/platform/audit/metrics"
	auditpostgres "upandup/pkg/platform/audit/store/postgres"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	group := cfg.Kafka.ConsumerGroup
	topic := cfg.Kafka.Topic
	reset := "earliest"
	logLevel := cfg.Server.LogLevel
	metricsAddr := ":9091"
	flagSet := pflag.NewFlagSet("ledger-events", pflag.ContinueOnError)
	flagSet.StringVarP(&group, "group", "g", group, "kafka consumer group")
	flagSet.StringVarP(&topic, "topic", "t", topic, "ledger event topic")
	flagSet.StringVar(&reset, "offset-reset", reset, "where a new group starts: earliest or latest")
	flagSet.StringVar(&metricsAddr, "metrics-addr", metricsAddr, "listen address for /metrics; empty disables it")
	flagSet.StringVar(&logLevel, "log-level", logLevel, "debug, info, warn or error")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if cfg.Kafka.Brokers == "" {
		return errors.New("KAFKA_BROKERS is required")
	}

	log := logger.NewWithLevel(logLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if pool == nil {
		return errors.New("DATABASE_URL is required")
	}
	defer pool.Close() //nolint:errcheck // process exit
	if cfg.Database.AutoMigrate {
		applied, err := database.Migrate(ctx, pool.DB(), migrations.FS)
		if err != nil {
			return err
		}
		if len(applied) > 0 {
			log.Info("applied database migrations", "versions", applied)
		}
	}

	c, err := kafkaconsumer.New(kafkaconsumer.Config{
		Brokers:         cfg.Kafka.Brokers,
		GroupID:         group,
		Topics:          []string{topic},
		AutoOffsetReset: reset,
	}, auditconsumer.NewHandler(auditpostgres.New(pool.DB()), log,
		auditconsumer.WithMetrics(auditmetrics.New()),
	), log)
	if err != nil {
		return err
	}
	if err := c.Check(ctx); err != nil {
		return err
	}

	var metricsServer *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = httpserver.New(metricsAddr, mux)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	log.Info("consuming ledger events", "topic", topic, "group", group)
	c.Start(ctx)
	<-ctx.Done()

	log.Info("stopping ledger event consumer")
	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if metricsServer != nil {
		_ = metricsServer.Shutdown(stopCtx)
	}
	return c.Stop(stopCtx)
}
