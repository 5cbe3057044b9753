// Package cli implements fulfillctl, the operator command line of the
// fulfillment service. Commands run the core in-process against the
// configured datastore.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"jobmate/fulfillment-service/internal/app"
	"jobmate/fulfillment-service/internal/config"
)

// OpenFunc builds the wired core for one command.
type OpenFunc func(ctx context.Context) (*app.App, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"
	Actor  string
	Open   OpenFunc
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// OpenFromEnv loads configuration from the environment (REDIS_URL optional)
// and wires the core.
func OpenFromEnv(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadLocal()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

// NewRootCommand creates the fulfillctl root command.
func NewRootCommand(open OpenFunc) *cobra.Command {
	opts := &RootOptions{Open: open}

	cmd := &cobra.Command{
		Use:   "fulfillctl",
		Short: "Operate the fulfillment pipeline",
		Long:  "Search providers, move requests and applications, convert bookings and drain the notification outbox.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Actor, "actor", "fulfillctl", "actor id recorded on writes")

	cmd.AddCommand(NewSearchCommand(opts))
	cmd.AddCommand(NewTransitionCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewConvertCommand(opts))
	cmd.AddCommand(NewNotifyCommand(opts))
	cmd.AddCommand(NewTemplatesCommand(opts))
	cmd.AddCommand(NewOutboxCommand(opts))
	cmd.AddCommand(NewRemindersCommand(opts))

	return cmd
}

// withApp opens the core, runs fn and closes the core.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := o.Open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// emit writes v as indented JSON, or calls text in text mode.
func (o *RootOptions) emit(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
