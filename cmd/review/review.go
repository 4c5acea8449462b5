// Package review provides the command that records a quality review
// decision for a detection.
package review

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-artifacts/internal/app"
	"github.com/tphakala/birdnet-artifacts/internal/datastore"
	"github.com/tphakala/birdnet-artifacts/internal/errors"
)

// Command creates the review command.
func Command(ctx *app.Context) *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "review <detection-id> <pending|approved|rejected>",
		Short: "Set the quality review status of a detection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || id == 0 {
				return errors.ValidationError(fmt.Sprintf("invalid detection id %q", args[0]))
			}
			status := datastore.QualityStatus(args[1])
			if !status.Valid() {
				return errors.ValidationError(fmt.Sprintf("invalid status %q, want pending, approved or rejected", args[1]))
			}

			a, err := ctx.Open()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			n, err := a.Store.UpdateQualityStatus(cmd.Context(), uint(id), status, notes)
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("detection ID %d not found", id)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Detection %d marked %s\n", id, status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&notes, "notes", "n", "", "Review notes")

	return cmd
}
