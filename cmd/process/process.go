// Package process provides the command that generates artifacts for
// pending detections.
package process

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-artifacts/internal/app"
	"github.com/tphakala/birdnet-artifacts/internal/processing"
)

// Command creates the process command.
func Command(ctx *app.Context) *cobra.Command {
	var (
		id        uint
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Generate audio clips and spectrograms for pending detections",
		Long: `Process every detection that has no audio clip yet, oldest first, in batches.
With --id, process a single detection regardless of its current state.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if batchSize < 0 {
				return fmt.Errorf("batch size must not be negative")
			}

			a, err := ctx.Open()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := cmd.OutOrStdout()
			if cmd.Flags().Changed("id") {
				ok, message := a.Manager.ProcessOne(cmd.Context(), id)
				fmt.Fprintln(out, message)
				if !ok {
					return fmt.Errorf("detection %d was not processed", id)
				}
				return nil
			}

			if batchSize == 0 {
				batchSize = ctx.Settings.Processing.BatchSize
			}
			run, err := a.Manager.ProcessAllPending(cmd.Context(), batchSize)
			printSummary(out, run)
			return err
		},
	}

	cmd.Flags().UintVar(&id, "id", 0, "Process only this detection ID")
	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 0, "Detections per batch (default from config)")

	return cmd
}

// printSummary writes the end-of-run report.
func printSummary(w io.Writer, run processing.RunStatistics) {
	if run.Processed == 0 && !run.Aborted && len(run.Errors) == 0 {
		fmt.Fprintln(w, "No pending detections")
		return
	}

	fmt.Fprintf(w, "Processed:            %d of %d\n", run.Processed, run.TotalPending)
	fmt.Fprintf(w, "Succeeded:            %d (%.1f%%)\n", run.Succeeded, run.SuccessRate())
	fmt.Fprintf(w, "Audio clips:          %d\n", run.AudioSucceeded)
	fmt.Fprintf(w, "Spectrograms:         %d\n", run.SpectrogramSucceeded)
	if run.SpectrogramFailed > 0 {
		fmt.Fprintf(w, "Spectrogram failures: %d\n", run.SpectrogramFailed)
	}
	fmt.Fprintf(w, "Failed:               %d\n", run.Failed)
	fmt.Fprintf(w, "Batches:              %d\n", run.Batches)
	if run.Aborted {
		fmt.Fprintln(w, "Run was cancelled before all detections were processed")
	}

	const maxShown = 10
	for i, msg := range run.Errors {
		if i == maxShown {
			fmt.Fprintf(w, "  ... and %d more\n", len(run.Errors)-maxShown)
			break
		}
		fmt.Fprintf(w, "  %s\n", msg)
	}
}
