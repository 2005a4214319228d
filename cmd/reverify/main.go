// Command reverify runs a single re-verification sweep against the ledger
// database and exits. It is meant for cron jobs and manual backfills; the
// server runs the same sweep on a timer.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"upandup/internal/gateway/providers"
	"upandup/internal/ledger/service"
	"upandup/internal/ledger/store"
	"upandup/internal/ledger/workers/reverify"
	"upandup/internal/platform/config"
	"upandup/internal/platform/database"
	"upandup/internal/platform/logger"
	"upandup/pkg/platform/tracer"
)

type options struct {
	batchSize   int
	concurrency int
	maxAge      time.Duration
	timeout     time.Duration
	logLevel    string
}

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

	opts := options{
		batchSize:   cfg.Ledger.ReverifyBatchSize,
		concurrency: cfg.Ledger.ReverifyParallelism,
		maxAge:      cfg.Ledger.ReverifyMaxAge,
		timeout:     10 * time.Minute,
		logLevel:    cfg.Server.LogLevel,
	}
	flagSet := pflag.NewFlagSet("reverify", pflag.ContinueOnError)
	flagSet.IntVarP(&opts.batchSize, "batch-size", "b", opts.batchSize, "maximum credentials to re-check in this sweep")
	flagSet.IntVarP(&opts.concurrency, "concurrency", "c", opts.concurrency, "workers re-checked in parallel")
	flagSet.DurationVar(&opts.maxAge, "max-age", opts.maxAge, "re-check verified credentials last checked longer ago than this")
	flagSet.DurationVar(&opts.timeout, "timeout", opts.timeout, "abort the sweep after this long")
	flagSet.StringVar(&opts.logLevel, "log-level", opts.logLevel, "debug, info, warn or error")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	log := logger.NewWithLevel(opts.logLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if pool == nil {
		return errors.New("DATABASE_URL is required")
	}
	defer pool.Close() //nolint:errcheck // process exit

	provider, err := providers.New(cfg.Gateway, providers.Deps{
		Tracer: tracer.NewOTel("upandup-reverify"),
		Logger: log,
	})
	if err != nil {
		return err
	}

	svc := service.New(store.NewPostgres(pool.DB()), store.NewPostgresTxRunner(pool.DB()), provider, provider,
		service.WithLogger(log),
		service.WithLockWait(cfg.Ledger.LockWait),
		service.WithGatewayTimeout(cfg.Ledger.GatewayCallTimeout),
		service.WithReverifyMaxAge(opts.maxAge),
	)
	sweeper, err := reverify.New(svc,
		reverify.WithBatchSize(opts.batchSize),
		reverify.WithConcurrency(opts.concurrency),
		reverify.WithLogger(log),
	)
	if err != nil {
		return err
	}

	result, err := sweeper.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("due=%d awaiting=%d checked=%d expired=%d issued=%d rejected=%d pending=%d unavailable=%d busy=%d skipped=%d failed=%d\n",
		result.Due, result.Awaiting, result.Checked, result.Expired, result.Issued, result.Rejected, result.Pending,
		result.Unavailable, result.Busy, result.Skipped, result.Failed)
	if result.Failed > 0 {
		return fmt.Errorf("%d credentials failed re-verification", result.Failed)
	}
	return nil
}
