package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"jobmate/fulfillment-service/internal/app"
)

// NewRemindersCommand creates the reminders command.
func NewRemindersCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reminders",
		Short: "Run one 24h reminder cycle now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				stats, err := a.Reminders.Run(ctx)
				if err != nil {
					return err
				}
				return opts.emit(cmd, stats, func(w io.Writer) {
					fmt.Fprintf(w, "due=%d sent=%d skipped=%d failed=%d\n", stats.Due, stats.Sent, stats.Skipped, stats.Failed)
				})
			})
		},
	}
}
