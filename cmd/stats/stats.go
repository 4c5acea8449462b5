// Package stats provides the command that reports processing progress,
// review state and storage usage.
package stats

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-artifacts/internal/app"
	"github.com/tphakala/birdnet-artifacts/internal/artifactfs"
	"github.com/tphakala/birdnet-artifacts/internal/datastore"
	"github.com/tphakala/birdnet-artifacts/internal/processing"
	"github.com/tphakala/birdnet-artifacts/internal/resolver"
)

// SessionReport is one session row with its artifact file counts.
type SessionReport struct {
	datastore.SessionSummary
	Directory string                  `json:"directory"`
	Files     artifactfs.SessionFiles `json:"files"`
}

// Report is everything the stats command prints.
type Report struct {
	Processing processing.Statistics   `json:"processing"`
	Quality    datastore.QualityCounts `json:"quality"`
	Sessions   []SessionReport         `json:"sessions,omitempty"`
}

// Command creates the stats command.
func Command(ctx *app.Context) *cobra.Command {
	var (
		format   string
		sessions bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show processing progress, review counts and storage usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.CheckFormat(format); err != nil {
				return err
			}

			a, err := ctx.Open()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			report, err := collect(cmd.Context(), a, sessions)
			if err != nil {
				return err
			}

			if format == app.FormatJSON {
				return app.PrintJSON(cmd.OutOrStdout(), report)
			}
			return printTable(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", app.FormatTable, "Output format: table, json")
	cmd.Flags().BoolVarP(&sessions, "sessions", "s", false, "Include per-session counts")

	return cmd
}

func collect(ctx context.Context, a *app.App, withSessions bool) (Report, error) {
	var report Report

	stats, err := a.Manager.GetStatistics(ctx)
	if err != nil {
		return report, err
	}
	report.Processing = stats

	quality, err := a.Store.QualityCounts(ctx)
	if err != nil {
		return report, err
	}
	report.Quality = quality

	if !withSessions {
		return report, nil
	}

	summaries, err := a.Store.Sessions(ctx)
	if err != nil {
		return report, err
	}
	namer := resolver.NewNamer(a.Settings.Naming)
	for _, s := range summaries {
		dir := namer.SessionDirName(s.SessionName)
		files, err := a.Files.SessionFileCounts(dir)
		if err != nil {
			return report, err
		}
		report.Sessions = append(report.Sessions, SessionReport{SessionSummary: s, Directory: dir, Files: files})
	}
	return report, nil
}

func printTable(out io.Writer, r Report) error {
	p := r.Processing
	w := app.NewTabWriter(out)

	fmt.Fprintln(w, "PROGRESS\t")
	fmt.Fprintf(w, "  Detections\t%d\n", p.Total)
	fmt.Fprintf(w, "  Audio clips\t%d (%.1f%%)\n", p.ProcessedAudio, p.AudioProgressPercent)
	fmt.Fprintf(w, "  Spectrograms\t%d (%.1f%%)\n", p.ProcessedSpectrogram, p.SpectrogramProgressPercent)
	fmt.Fprintf(w, "  Pending\t%d\n", p.Pending)

	fmt.Fprintln(w, "REVIEW\t")
	fmt.Fprintf(w, "  Pending\t%d\n", r.Quality.Pending)
	fmt.Fprintf(w, "  Approved\t%d\n", r.Quality.Approved)
	fmt.Fprintf(w, "  Rejected\t%d\n", r.Quality.Rejected)

	s := p.Storage
	fmt.Fprintln(w, "STORAGE\t")
	fmt.Fprintf(w, "  Audio clips\t%d files, %.1f MB\n", s.AudioSegments, s.AudioSegmentsMB)
	fmt.Fprintf(w, "  Spectrograms\t%d files, %.1f MB\n", s.Spectrograms, s.SpectrogramsMB)
	fmt.Fprintf(w, "  Total\t%.1f MB\n", s.TotalMB)
	if s.FreeSpaceUnknown {
		fmt.Fprintln(w, "  Free\tunknown")
	} else {
		fmt.Fprintf(w, "  Free\t%d MB\n", s.FreeMB)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(r.Sessions) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	w = app.NewTabWriter(out)
	fmt.Fprintln(w, "SESSION\tDETECTIONS\tSPECIES\tPROCESSED\tCLIPS\tSPECTROGRAMS")
	for _, s := range r.Sessions {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
			s.SessionName, s.DetectionCount, s.SpeciesCount, s.ProcessedCount,
			s.Files.AudioSegments, s.Files.Spectrograms)
	}
	return w.Flush()
}
