package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"example.com/gamification/internal/api"
	"example.com/gamification/internal/auth"
	"example.com/gamification/internal/bootstrap"
	"example.com/gamification/internal/config"
	"example.com/gamification/internal/domain"
	"example.com/gamification/internal/logging"
	"example.com/gamification/internal/outbox"
	httptransport "example.com/gamification/internal/transport/http"
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
	handler := api.NewHandler(service, logger.Named("api"))
	router := api.NewRouter(handler, auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, logger.Named("http"))
	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httptransport.Serve(gctx, server, "api", logger)
	})

	if store.Pool != nil {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, logger.Named("kafka"))
		defer producer.Close()

		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher := outbox.NewDispatcher(store.Pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize, logger.Named("outbox"))
		g.Go(func() error {
			return dispatcher.Run(gctx)
		})
	} else {
		logger.Info("outbox dispatcher disabled for the in-memory store")
	}

	logger.Info("gamification api started",
		zap.String("environment", cfg.Env),
		zap.String("store", cfg.StoreDriver),
		zap.Bool("redis_cache", cfg.RedisURL != ""),
	)
	if err := g.Wait(); err != nil {
		logger.Error("gamification api stopped with error", zap.Error(err))
	}
}
