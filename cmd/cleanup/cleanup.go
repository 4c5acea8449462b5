// Package cleanup provides the command that removes artifacts left behind
// by interrupted writes.
package cleanup

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-artifacts/internal/app"
	"github.com/tphakala/birdnet-artifacts/internal/observability/metrics"
	"github.com/tphakala/birdnet-artifacts/internal/resolver"
)

// Command creates the cleanup command.
func Command(ctx *app.Context) *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete incomplete clips and spectrograms",
		Long: `Delete clips and spectrograms smaller than 1 KiB, which are leftovers of
interrupted writes. Without --session every session directory is scanned.
Detections whose files are removed keep their stored paths; reprocess them
with "process --id".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.Open()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			dir := ""
			if session != "" {
				dir = resolver.NewNamer(a.Settings.Naming).SessionDirName(session)
			}

			result, err := a.Files.CleanupIncomplete(dir)
			a.Metrics.Storage.RecordCleanup(metrics.KindAudio, result.AudioSegments)
			a.Metrics.Storage.RecordCleanup(metrics.KindSpectrogram, result.Spectrograms)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d incomplete files (%d clips, %d spectrograms)\n",
				result.Total(), result.AudioSegments, result.Spectrograms)
			return nil
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", "", "Limit cleanup to one session name")

	return cmd
}
