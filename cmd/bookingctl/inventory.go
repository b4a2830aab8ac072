package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-guesthouse-bookings/internal/bookings"
	"github.com/ariefcatur/go-guesthouse-bookings/internal/postgres"
)

// rangeFlags parses --from/--to into a half-open range of nights.
type rangeFlags struct {
	from, to string
}

func (f *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "first night, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.to, "to", "", "day after the last night, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
}

func (f *rangeFlags) parse() (time.Time, time.Time, error) {
	from, err := bookings.ParseDate(f.from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := bookings.ParseDate(f.to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if err := bookings.ValidateRange(from, to); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func (a *app) ratesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Edit nightly rates",
	}

	var (
		ghID       int64
		priceCents int64
		rng        rangeFlags
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Override the nightly price for every night in a range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, to, err := rng.parse()
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(s *postgres.Store) error {
				rates := bookings.NewRates(s, bookings.NewLedger(s, a.log()))
				nights := bookings.Nights(from, to)
				err := rates.BulkSetRate(cmd.Context(), ghID, nights, priceCents)

				var bulk *bookings.BulkError
				if errors.As(err, &bulk) {
					for _, f := range bulk.Failures {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", bookings.FormatDate(f.Date), f.Err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "applied %d of %d night(s)\n", len(nights)-len(bulk.Failures), len(nights))
					return fmt.Errorf("%d night(s) failed", len(bulk.Failures))
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d night(s) at %s\n", len(nights), formatCents(priceCents))
				return nil
			})
		},
	}
	set.Flags().Int64Var(&ghID, "guesthouse", 0, "guesthouse id")
	set.Flags().Int64Var(&priceCents, "price-cents", 0, "nightly price in cents")
	_ = set.MarkFlagRequired("guesthouse")
	_ = set.MarkFlagRequired("price-cents")
	rng.register(set)

	var baseGhID, basePrice int64
	base := &cobra.Command{
		Use:   "base",
		Short: "Change the base price used for nights without an override",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(s *postgres.Store) error {
				gh, err := bookings.NewRates(s, bookings.NewLedger(s, a.log())).SetBaseRate(cmd.Context(), baseGhID, basePrice)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "guesthouse %d base price now %s\n", gh.ID, formatCents(gh.PriceCents))
				return nil
			})
		},
	}
	base.Flags().Int64Var(&baseGhID, "guesthouse", 0, "guesthouse id")
	base.Flags().Int64Var(&basePrice, "price-cents", 0, "base nightly price in cents")
	_ = base.MarkFlagRequired("guesthouse")
	_ = base.MarkFlagRequired("price-cents")

	cmd.AddCommand(set, base)
	return cmd
}

func (a *app) availabilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Inspect room availability",
	}

	var (
		ghID int64
		rng  rangeFlags
	)
	show := &cobra.Command{
		Use:   "show",
		Short: "Print rooms and price per night",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, to, err := rng.parse()
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(s *postgres.Store) error {
				rs, err := bookings.NewLedger(s, a.log()).QueryRange(cmd.Context(), ghID, from, to)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "DATE\tAVAILABLE\tTOTAL\tPRICE")
				for _, d := range rs.Days {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", bookings.FormatDate(d.Date), d.AvailableRooms, d.TotalRooms, formatCents(d.PricePerNightCents))
				}
				fmt.Fprintf(tw, "\nbookable rooms for the whole range: %d, nightly sum %s\n", rs.MinAvailable(), formatCents(rs.NightlySumCents()))
				return tw.Flush()
			})
		},
	}
	show.Flags().Int64Var(&ghID, "guesthouse", 0, "guesthouse id")
	_ = show.MarkFlagRequired("guesthouse")
	rng.register(show)

	cmd.AddCommand(show)
	return cmd
}
