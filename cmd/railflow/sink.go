package main

import (
	"github.com/spf13/cobra"

	"github.com/drblury/railflow/internal/runtime"
	"github.com/drblury/railflow/internal/runtime/logging"
	"github.com/drblury/railflow/internal/runtime/metrics"
	"github.com/drblury/railflow/internal/sink"
	"github.com/drblury/railflow/internal/store"
	"github.com/drblury/railflow/transport"
)

func newSinkCmd(a *app) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "sink",
		Short: "Persist relayed events to PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSink(cmd, a, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations before consuming")
	return cmd
}

func runSink(cmd *cobra.Command, a *app, migrate bool) error {
	ctx := cmd.Context()
	cfg, logger := a.cfg, a.logger
	if err := cfg.ValidateSink(); err != nil {
		return err
	}

	st, err := openStore(cmd, a, migrate)
	if err != nil {
		return err
	}
	defer st.Close()

	m := metrics.New(nil)
	if err := m.Register(); err != nil {
		return err
	}

	svc, err := runtime.NewService(ctx, cfg, logger, runtime.ServiceDependencies{Role: transport.RoleSubscriber})
	if err != nil {
		return err
	}

	s, err := sink.New(st, logger, sink.WithMetrics(m))
	if err != nil {
		_ = svc.Close()
		return err
	}
	if err := s.Register(svc); err != nil {
		_ = svc.Close()
		return err
	}

	logger.Info("Starting sink", logging.LogFields{"consumer_group": cfg.KafkaConsumerGroup})
	return svc.Start(ctx)
}

func openStore(cmd *cobra.Command, a *app, migrate bool) (*store.Store, error) {
	if migrate {
		a.logger.Info("Applying database migrations", nil)
		if err := store.Migrate(a.cfg.PostgresURL); err != nil {
			return nil, err
		}
	}
	return store.Open(cmd.Context(), a.cfg.PostgresURL)
}
