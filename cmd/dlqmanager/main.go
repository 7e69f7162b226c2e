package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"example.com/gamification/internal/bootstrap"
	"example.com/gamification/internal/config"
	"example.com/gamification/internal/logging"
	"example.com/gamification/internal/outbox"
	httptransport "example.com/gamification/internal/transport/http"
)

const (
	defaultDLQBatchSize = 50
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := bootstrap.ConnectPostgres(ctx, cfg.PostgresURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, logger.Named("dlq"))
	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httptransport.Serve(gctx, metricsSrv, "metrics", logger)
	})
	g.Go(func() error {
		ticker := time.NewTicker(cfg.DLQPollInterval)
		defer ticker.Stop()

		logger.Info("dlq manager started",
			zap.Duration("interval", cfg.DLQPollInterval),
			zap.Int("max_retries", cfg.DLQMaxRetries),
		)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				processed, err := manager.RunOnce(gctx, defaultDLQBatchSize)
				if err != nil {
					logger.Error("dlq manager error", zap.Error(err))
				} else if processed > 0 {
					logger.Info("dlq entries processed", zap.Int("count", processed))
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("dlq manager stopped with error", zap.Error(err))
	}
}
