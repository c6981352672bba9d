package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/drblury/railflow/internal/classifier"
	"github.com/drblury/railflow/internal/feed"
	"github.com/drblury/railflow/internal/pipeline"
	"github.com/drblury/railflow/internal/relay"
	"github.com/drblury/railflow/internal/runtime"
	"github.com/drblury/railflow/internal/runtime/logging"
	"github.com/drblury/railflow/internal/runtime/metrics"
	"github.com/drblury/railflow/transport"
)

func newRelayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Relay the movement feed to the broker",
		Long: `Subscribes to the open-data feed and publishes activations to train_activation
and cancellations to train_cancellation. An unreachable broker at startup is
fatal; a lost feed session is retried with backoff until the budget runs out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(cmd, a)
		},
	}
}

func runRelay(cmd *cobra.Command, a *app) error {
	ctx := cmd.Context()
	cfg, logger := a.cfg, a.logger
	if err := cfg.ValidateRelay(); err != nil {
		return err
	}
	logger.Info("Starting relay", logging.LogFields{"config": cfg})

	m := metrics.New(nil)
	if err := m.Register(); err != nil {
		return err
	}

	tr, err := transport.Build(ctx, cfg, transport.RolePublisher, logging.NewWatermillAdapter(logger))
	if err != nil {
		return err
	}
	publisher, err := relay.NewPublisher(tr.Publisher, logger, relay.WithMetrics(m))
	if err != nil {
		_ = tr.Close()
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("Failed to close broker publisher", err, nil)
		}
	}()

	p, err := pipeline.New(classifier.New(), publisher, logger,
		pipeline.WithConcurrency(cfg.PublishConcurrency),
		pipeline.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	client, err := feed.NewClient(feed.Config{
		Endpoint:         cfg.FeedEndpoint(),
		Login:            cfg.FeedUsername,
		Passcode:         cfg.FeedPassword,
		ClientID:         cfg.FeedClientID,
		Destination:      cfg.FeedTopic,
		SubscriptionName: cfg.FeedSubscription,
		Heartbeat:        cfg.FeedHeartbeat,
		ReconnectInitial: cfg.FeedReconnectInitial,
		ReconnectMax:     cfg.FeedReconnectMax,
		MaxReconnects:    cfg.FeedReconnectAttempts,
	}, logger, feed.WithMetrics(m))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Run(gctx, p.Handle)
	})
	if cfg.MetricsEnabled {
		g.Go(func() error {
			return runtime.ServeHTTP(gctx, fmt.Sprintf(":%d", cfg.MetricsPort), promhttp.Handler(), logger)
		})
	}

	err = g.Wait()
	logger.Info("Relay stopped", logging.LogFields{"status": client.Status().String()})
	return err
}
