// Package initconfig provides the command that writes a default
// configuration file.
package initconfig

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-artifacts/internal/app"
	"github.com/tphakala/birdnet-artifacts/internal/conf"
)

// DefaultPath is written when no path argument is given.
const DefaultPath = "config.yaml"

// Command creates the init-config command.
func Command(ctx *app.Context) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a configuration file with default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := DefaultPath
			switch {
			case len(args) == 1:
				path = args[0]
			case ctx.ConfigFile != "":
				path = ctx.ConfigFile
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}

			if err := conf.WriteDefaultConfig(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	return cmd
}
