package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"jobmate/fulfillment-service/internal/app"
	"jobmate/fulfillment-service/internal/model"
	"jobmate/fulfillment-service/internal/notify"
)

// NotifyOptions holds flags for the notify command.
type NotifyOptions struct {
	*RootOptions
	Recipient string
	Contact   model.Contact
	Data      map[string]string
}

// NewNotifyCommand creates the notify command.
func NewNotifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NotifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "notify <template>",
		Short: "Render a template and dispatch it synchronously",
		Long: `Render a template and dispatch it synchronously.

Example:
  fulfillctl notify emergency_cancellation --to client-1 --email a@example.com \
    --phone +33600000000 --data clientName=Alice --data serviceType=menage \
    --data date=2026-03-10 --data reason="provider illness"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to := notify.Recipient{ID: opts.Recipient, Contact: opts.Contact}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Notify.Notify(ctx, args[0], to, opts.Data)
				if err != nil {
					return err
				}
				return opts.emit(cmd, res, func(w io.Writer) {
					fmt.Fprintf(w, "event %s: %s\n", res.EventID, res.Status)
					for _, ch := range notify.Channels {
						r, ok := res.Channels[ch]
						if !ok || !r.Attempted {
							continue
						}
						state := "ok"
						if !r.Succeeded {
							state = "failed: " + r.Error
						}
						fmt.Fprintf(w, "  %-7s %s\n", ch, state)
					}
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Recipient, "to", "", "recipient id (required)")
	cmd.Flags().StringVar(&opts.Contact.Name, "name", "", "recipient name")
	cmd.Flags().StringVar(&opts.Contact.Email, "email", "", "recipient email")
	cmd.Flags().StringVar(&opts.Contact.Phone, "phone", "", "recipient phone")
	cmd.Flags().StringVar(&opts.Contact.PushToken, "push-token", "", "recipient push token")
	cmd.Flags().StringToStringVar(&opts.Data, "data", nil, "template field as key=value (repeatable)")
	cmd.MarkFlagRequired("to")

	return cmd
}

// NewTemplatesCommand lists the template catalogue.
func NewTemplatesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List notification templates and their required fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(_ context.Context, a *app.App) error {
				t := a.Notify.Templates()
				defs := make([]notify.Definition, 0)
				for _, name := range t.Names() {
					def, _ := t.Definition(name)
					defs = append(defs, def)
				}
				return opts.emit(cmd, defs, func(w io.Writer) {
					for _, d := range defs {
						fmt.Fprintf(w, "%-24s %-7s %s\n", d.Name, d.Priority, strings.Join(d.Required, ", "))
					}
				})
			})
		},
	}
}
