// Package serve provides the command that runs the viewer API.
package serve

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-artifacts/internal/api"
	"github.com/tphakala/birdnet-artifacts/internal/app"
)

// Command creates the serve command.
func Command(ctx *app.Context) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the detection viewer API",
		Long:  "Serve the JSON API, stored artifacts and Prometheus metrics for the detection viewer until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				ctx.Settings.WebServer.Listen = listen
			}

			a, err := ctx.Open()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			server, err := api.New(a.Settings,
				api.WithDataStore(a.Store),
				api.WithGenerator(a.Manager),
				api.WithArtifactFS(a.Files),
				api.WithMetrics(a.Metrics),
				api.WithBuildInfo(a.Build))
			if err != nil {
				return err
			}

			runCtx, cancel := context.WithCancel(cmd.Context())
			wait := app.RotateLogsOnHangup(runCtx)
			defer func() {
				cancel()
				wait()
			}()

			return server.StartWithGracefulShutdown(runCtx)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address, host:port (default from config)")

	return cmd
}
