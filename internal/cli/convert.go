package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"jobmate/fulfillment-service/internal/app"
)

// NewConvertCommand creates the convert command.
func NewConvertCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <request-id> <provider-id> <service-id>",
		Short: "Book a provider's service for a request",
		Long: `Book a provider's service for a request.

Re-running the command for a request that already has a booking prints the
existing booking.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Conversion.Convert(ctx, args[0], args[1], args[2], opts.Actor)
				if err != nil {
					return err
				}
				return opts.emit(cmd, res, func(w io.Writer) {
					verb := "created"
					if !res.Created {
						verb = "existing"
					}
					b := res.Booking
					fmt.Fprintf(w, "booking %s (%s): request %s, provider %s, %s\n",
						b.ID, verb, b.RequestID, b.ProviderID, b.Price.StringFixed(2))
				})
			})
		},
	}
}
