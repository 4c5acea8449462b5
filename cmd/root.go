package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-artifacts/cmd/cleanup"
	"github.com/tphakala/birdnet-artifacts/cmd/initconfig"
	"github.com/tphakala/birdnet-artifacts/cmd/process"
	"github.com/tphakala/birdnet-artifacts/cmd/review"
	"github.com/tphakala/birdnet-artifacts/cmd/serve"
	"github.com/tphakala/birdnet-artifacts/cmd/stats"
	"github.com/tphakala/birdnet-artifacts/internal/app"
	"github.com/tphakala/birdnet-artifacts/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(ctx *app.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "birdnet-artifacts",
		Short:         "Generate audio clips and spectrograms for stored detections",
		Version:       ctx.Build.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	setupFlags(rootCmd, ctx)

	initConfigCmd := initconfig.Command(ctx)
	subcommands := []*cobra.Command{
		process.Command(ctx),
		stats.Command(ctx),
		review.Command(ctx),
		cleanup.Command(ctx),
		serve.Command(ctx),
		initConfigCmd,
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// init-config writes the file the others would read
		if cmd.Name() == initConfigCmd.Name() {
			return nil
		}

		closeLogging, err := initialize(ctx)
		if err != nil {
			return err
		}
		ctx.OnClose(closeLogging)
		cmd.SetContext(ctx.Trace(cmd.Context()))
		return nil
	}

	return rootCmd
}

// initialize loads the settings and starts logging before a subcommand runs.
func initialize(ctx *app.Context) (func(), error) {
	settings, err := conf.Load(ctx.ConfigFile)
	if err != nil {
		return nil, err
	}
	if ctx.Debug {
		settings.Debug = true
	}
	ctx.Settings = settings

	closeLogging, err := app.InitLogging(settings, ctx.Build)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	app.GetLogger().Debug("settings loaded")
	return closeLogging, nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, ctx *app.Context) {
	rootCmd.PersistentFlags().StringVarP(&ctx.ConfigFile, "config", "c", "", "Path to config.yaml (default: search the standard config paths)")
	rootCmd.PersistentFlags().BoolVarP(&ctx.Debug, "debug", "d", false, "Enable debug output")
}
