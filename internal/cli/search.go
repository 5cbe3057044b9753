package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"jobmate/fulfillment-service/internal/app"
	"jobmate/fulfillment-service/internal/matching"
	"jobmate/fulfillment-service/internal/model"
)

// SearchOptions holds flags for the search command.
type SearchOptions struct {
	*RootOptions
	Area      string
	Lat, Lng  float64
	Urgency   string
	MinRating float64
	MaxPrice  string
	Geo       bool
	Limit     int
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SearchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "search <service-type>",
		Short: "Rank providers for a service type",
		Long: `Rank providers for a service type.

Example:
  fulfillctl search menage --area "Paris 15e" --max-price 30 --urgency high`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Area, "area", "", "free-text area")
	cmd.Flags().Float64Var(&opts.Lat, "lat", 0, "area latitude")
	cmd.Flags().Float64Var(&opts.Lng, "lng", 0, "area longitude")
	cmd.Flags().StringVar(&opts.Urgency, "urgency", "normal", "urgency level (low|normal|high|urgent)")
	cmd.Flags().Float64Var(&opts.MinRating, "min-rating", 0, "minimum provider rating")
	cmd.Flags().StringVar(&opts.MaxPrice, "max-price", "", "maximum hourly rate (required)")
	cmd.Flags().BoolVar(&opts.Geo, "geo", false, "score by distance")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum candidates (0 = all)")
	cmd.MarkFlagRequired("max-price")

	return cmd
}

func runSearch(cmd *cobra.Command, opts *SearchOptions, serviceType string) error {
	maxPrice, err := decimal.NewFromString(opts.MaxPrice)
	if err != nil {
		return fmt.Errorf("invalid --max-price %q: %w", opts.MaxPrice, err)
	}
	c := matching.Criteria{
		ServiceType:    serviceType,
		Location:       model.Location{Text: opts.Area},
		Urgency:        model.Urgency(opts.Urgency),
		MinRating:      opts.MinRating,
		MaxPrice:       maxPrice,
		UseGeolocation: opts.Geo,
		Limit:          opts.Limit,
	}
	if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
		c.Location.Geo = &model.Coordinates{Lat: opts.Lat, Lng: opts.Lng}
	}

	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		res, err := a.Engine.Search(ctx, c)
		if err != nil {
			return err
		}
		return opts.emit(cmd, res, func(w io.Writer) {
			for _, cand := range res.Candidates {
				mark := " "
				if cand.Recommended {
					mark = "*"
				}
				fmt.Fprintf(w, "%s %3d  %-12s %-24s %s/h  rating %.1f\n",
					mark, cand.CompositeScore, cand.ProviderID, cand.BusinessName,
					cand.HourlyRate.StringFixed(2), cand.Rating)
			}
			q := res.Quality
			fmt.Fprintf(w, "found %d, score %.1f, competition %s\n", q.ProvidersFound, q.Score, q.CompetitionLevel)
		})
	})
}
