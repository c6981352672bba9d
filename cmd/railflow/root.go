package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/drblury/railflow/internal/runtime/config"
	"github.com/drblury/railflow/internal/runtime/logging"
	_ "github.com/drblury/railflow/transport/transports"
)

// app carries what every subcommand shares once the root has loaded it.
type app struct {
	cfgFile string
	stderr  io.Writer

	cfg    *config.Config
	logger logging.ServiceLogger
}

func (a *app) load() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(cfg.LogLevel, cfg.LogFormat, a.stderr)
	return nil
}

func (a *app) log() logging.ServiceLogger {
	if a.logger == nil {
		return logging.New("info", "json", a.stderr)
	}
	return a.logger
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "railflow",
		Short: "Railway movement relay",
		Long: `railflow subscribes to the open-data train movement feed, relays activations
and cancellations to a message broker, stores them, and serves them over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (environment variables take precedence)")

	root.AddCommand(
		newRelayCmd(a),
		newSinkCmd(a),
		newServeCmd(a),
		newProvisionCmd(a),
	)
	return root
}

// execute runs the CLI and logs the error that ends it.
func execute(ctx context.Context, args []string) error {
	return executeWith(ctx, args, os.Stderr)
}

func executeWith(ctx context.Context, args []string, stderr io.Writer) error {
	a := &app{stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil {
		a.log().Error("railflow exited", err, logging.LogFields{"command": commandName(root, args)})
	}
	return err
}

func commandName(root *cobra.Command, args []string) string {
	cmd, _, err := root.Find(args)
	if err != nil || cmd == nil {
		return root.Name()
	}
	return cmd.CommandPath()
}
