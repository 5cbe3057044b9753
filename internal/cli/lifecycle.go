package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"jobmate/fulfillment-service/internal/app"
	"jobmate/fulfillment-service/internal/model"
)

// TransitionOptions holds flags for the transition command.
type TransitionOptions struct {
	*RootOptions
	Comment string
}

// NewTransitionCommand creates the transition command.
func NewTransitionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TransitionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "transition <request|application> <id> <status>",
		Short: "Move a request or application to a new status",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Lifecycle.Transition(ctx, model.EntityType(args[0]), args[1], args[2], opts.Actor, opts.Comment)
				if err != nil {
					return err
				}
				return opts.emit(cmd, res, func(w io.Writer) {
					if !res.Changed {
						fmt.Fprintf(w, "%s %s already %s\n", res.EntityType, res.EntityID, res.Status)
						return
					}
					fmt.Fprintf(w, "%s %s: %s → %s\n", res.EntityType, res.EntityID, res.From, res.Status)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Comment, "comment", "", "comment stored on the audit record")

	return cmd
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <request|application> <id>",
		Short: "Print the audit trail of a request or application",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				records, err := a.Lifecycle.History(ctx, model.EntityType(args[0]), args[1])
				if err != nil {
					return err
				}
				return opts.emit(cmd, records, func(w io.Writer) {
					for _, r := range records {
						fmt.Fprintf(w, "%s  %s → %s  by %s", r.Timestamp.Format("2006-01-02 15:04:05"), r.FromStatus, r.ToStatus, r.Actor)
						if r.Comment != "" {
							fmt.Fprintf(w, "  (%s)", r.Comment)
						}
						fmt.Fprintln(w)
					}
				})
			})
		},
	}
}
