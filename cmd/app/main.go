package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/forkline/ordersync/internal/api"
	"github.com/forkline/ordersync/internal/cache"
	"github.com/forkline/ordersync/internal/config"
	"github.com/forkline/ordersync/internal/engine"
	"github.com/forkline/ordersync/internal/httpapi"
	"github.com/forkline/ordersync/internal/observability"
	"github.com/forkline/ordersync/internal/persist"
	"github.com/forkline/ordersync/internal/persist/sqlitekv"
	"github.com/forkline/ordersync/internal/session"
	"github.com/forkline/ordersync/internal/transport"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	sess, err := session.New(cfg.RestaurantID)
	if err != nil {
		logger.Fatal("no active restaurant in session", zap.Error(err))
	}

	kv, err := sqlitekv.Open(cfg.SnapshotPath)
	if err != nil {
		logger.Fatal("cannot open snapshot store", zap.Error(err))
	}
	defer kv.Close()
	store := persist.NewAdapter(kv, logger)

	orders, err := cache.New(cfg.Sync.CancelledWindow)
	if err != nil {
		logger.Fatal("cannot build order cache", zap.Error(err))
	}

	fetcher := api.NewClient(
		cfg.APIBaseURL,
		api.RetryPolicy{Attempts: cfg.Retry.Attempts, Base: cfg.Retry.Base, Max: cfg.Retry.Max},
		api.BreakerPolicy{
			Threshold:   cfg.Breaker.Threshold,
			OpenTimeout: cfg.Breaker.OpenTimeout,
			MaxHalfOpen: cfg.Breaker.MaxHalfOpen,
		},
		logger,
	)

	metrics := observability.NewInmem(256)

	eng := engine.New(engine.Config{
		PollInterval:    cfg.Sync.PollInterval,
		FreshnessWindow: cfg.Sync.FreshnessWindow,
		CancelledLimit:  cfg.Sync.CancelledWindow,
	}, orders, fetcher, store, logger, metrics)

	channel := transport.NewChannel(transport.Config{
		Brokers:   cfg.Kafka.Brokers,
		EmitTopic: cfg.Kafka.EmitTopic,
		GroupID:   cfg.Kafka.Group,
		Backoff:   transport.Backoff{Base: cfg.Reconnect.Base, Max: cfg.Reconnect.Max},
	}, sess.OrderChannel(cfg.Kafka.TopicPrefix), logger)

	eng.BindTransport(channel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng.Start(ctx)
	defer eng.Teardown()

	if err := channel.Connect(ctx); err != nil {
		logger.Fatal("cannot start live channel", zap.Error(err))
	}
	defer channel.Teardown()

	server := httpapi.New(eng, channel.Ready, logger, metrics)
	logger.Info("order sync console service up",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("restaurant", sess.RestaurantID),
	)
	if err := server.ListenAndServe(ctx, cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server stopped", zap.Error(err))
	}
	logger.Info("shutting down")
}
