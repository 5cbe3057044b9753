package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"jobmate/fulfillment-service/internal/app"
	"jobmate/fulfillment-service/internal/outbox"
)

// NewOutboxCommand creates the outbox command group.
func NewOutboxCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and drain failed channel deliveries",
	}
	cmd.AddCommand(newOutboxListCommand(opts))
	cmd.AddCommand(newOutboxRelayCommand(opts))
	return cmd
}

func newOutboxListCommand(opts *RootOptions) *cobra.Command {
	var relayed bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending (or relayed) deliveries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state := outbox.StatePending
			if relayed {
				state = outbox.StateRelayed
			}
			return opts.withApp(cmd, func(_ context.Context, a *app.App) error {
				ob, err := requireOutbox(a)
				if err != nil {
					return err
				}
				entries := make([]outbox.Entry, 0)
				if err := ob.Scan(state, func(e outbox.Entry) error {
					entries = append(entries, e)
					return nil
				}); err != nil {
					return err
				}
				return opts.emit(cmd, entries, func(w io.Writer) {
					for _, e := range entries {
						fmt.Fprintf(w, "%s  %-7s %-22s to %-12s attempts=%d  %s\n",
							time.Unix(0, e.FailedAt).UTC().Format("2006-01-02 15:04:05"),
							e.Channel, e.Template, e.RecipientID, e.Attempts, e.Error)
					}
					fmt.Fprintf(w, "%d %s\n", len(entries), state)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&relayed, "relayed", false, "list relayed entries instead of pending ones")

	return cmd
}

func newOutboxRelayCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Publish pending deliveries to the retry topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				ob, err := requireOutbox(a)
				if err != nil {
					return err
				}
				if len(a.Config.KafkaBrokers) == 0 {
					return errors.New("KAFKA_BROKERS is required to relay")
				}
				relay, err := outbox.NewRelay(ob, a.Config.KafkaBrokers, a.Config.RetryTopic)
				if err != nil {
					return err
				}
				defer relay.Close()

				n, err := relay.RelayOnce(ctx)
				if err != nil {
					return err
				}
				summary := map[string]any{"relayed": n, "topic": a.Config.RetryTopic}
				return opts.emit(cmd, summary, func(w io.Writer) {
					fmt.Fprintf(w, "relayed %d deliveries to %s\n", n, a.Config.RetryTopic)
				})
			})
		},
	}
}

func requireOutbox(a *app.App) (*outbox.Outbox, error) {
	if a.Outbox == nil {
		return nil, errors.New("OUTBOX_DIR is not set")
	}
	return a.Outbox, nil
}
