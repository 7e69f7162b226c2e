package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"example.com/gamification/internal/bootstrap"
	"example.com/gamification/internal/config"
	"example.com/gamification/internal/consumer"
	"example.com/gamification/internal/domain"
	"example.com/gamification/internal/logging"
	httptransport "example.com/gamification/internal/transport/http"
)

// handlerRetries bounds in-process retries of store failures before the
// consumer exits with the record uncommitted.
const handlerRetries = 3

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

	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	aggregates, closeCache, err := bootstrap.OpenCache(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open aggregate cache", zap.Error(err))
	}
	defer closeCache()

	service := domain.NewService(store.Repos, aggregates, domain.WithLogger(logger.Named("domain")))
	handler := consumer.NewActivityHandler(service, logger.Named("handler"))

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httptransport.Serve(gctx, metricsSrv, "metrics", logger)
	})

	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})
		proc := consumer.NewProcessor(reader, handler,
			consumer.WithLogger(logger.With(zap.String("topic", topic))),
			consumer.WithRetry(handlerRetries, 200*time.Millisecond),
		)

		topic := topic
		g.Go(func() error {
			defer reader.Close()
			logger.Info("consumer started", zap.String("topic", topic), zap.String("group", cfg.ConsumerGroupID))
			if err := proc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// non-zero exit so the supervisor restarts from the committed offset
		logger.Fatal("consumer stopped with error", zap.Error(err))
	}
	logger.Info("consumer shutdown complete")
}
