package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP service",
		Long: `Serves health, readiness and Prometheus endpoints plus a small API to
start a crawl (POST /v1/runs), read the latest report (GET /v1/runs/latest)
and read records (GET /v1/records). Listens on server.port until SIGINT or
SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return appInstance.Serve(cmd.Context())
		},
	}
}
