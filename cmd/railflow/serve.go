package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drblury/railflow/internal/api"
	"github.com/drblury/railflow/internal/runtime"
)

func newServeCmd(a *app) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateAPI(); err != nil {
				return err
			}
			st, err := openStore(cmd, a, migrate)
			if err != nil {
				return err
			}
			defer st.Close()

			return runtime.ServeHTTP(cmd.Context(), fmt.Sprintf(":%d", a.cfg.APIPort), api.NewRouter(st, a.logger), a.logger)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations before serving")
	return cmd
}
