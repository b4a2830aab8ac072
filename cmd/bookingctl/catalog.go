package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-guesthouse-bookings/internal/bookings"
	"github.com/ariefcatur/go-guesthouse-bookings/internal/postgres"
)

func (a *app) guesthousesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "guesthouses",
		Aliases: []string{"gh"},
		Short:   "Manage guesthouses",
	}

	var gh bookings.Guesthouse
	var inactive bool
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a guesthouse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if gh.Name == "" {
				return errors.New("--name is required")
			}
			if gh.TotalRooms < 0 || gh.PriceCents < 0 {
				return errors.New("--rooms and --price-cents must not be negative")
			}
			gh.IsActive = !inactive
			return a.withStore(cmd.Context(), func(s *postgres.Store) error {
				out, err := s.CreateGuesthouse(cmd.Context(), gh)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created guesthouse %d (%s)\n", out.ID, out.Name)
				return nil
			})
		},
	}
	add.Flags().StringVar(&gh.Name, "name", "", "guesthouse name")
	add.Flags().Int64Var(&gh.PriceCents, "price-cents", 0, "base nightly price in cents")
	add.Flags().IntVar(&gh.TotalRooms, "rooms", 1, "default room count per night")
	add.Flags().BoolVar(&inactive, "inactive", false, "create without taking bookings")

	list := &cobra.Command{
		Use:   "list",
		Short: "List guesthouses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(s *postgres.Store) error {
				ghs, err := s.ListGuesthouses(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tPRICE\tROOMS\tACTIVE")
				for _, g := range ghs {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%t\n", g.ID, g.Name, formatCents(g.PriceCents), g.TotalRooms, g.IsActive)
				}
				return tw.Flush()
			})
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func (a *app) packagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "packages",
		Short: "Manage booking packages",
	}

	var p bookings.Package
	var inactive bool
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a package",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if p.Name == "" {
				return errors.New("--name is required")
			}
			if p.PriceMultiplierPct <= 0 {
				return errors.New("--multiplier-pct must be positive")
			}
			p.IsActive = !inactive
			return a.withStore(cmd.Context(), func(s *postgres.Store) error {
				out, err := s.CreatePackage(cmd.Context(), p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created package %d (%s)\n", out.ID, out.Name)
				return nil
			})
		},
	}
	add.Flags().StringVar(&p.Name, "name", "", "package name")
	add.Flags().IntVar(&p.PriceMultiplierPct, "multiplier-pct", 100, "price multiplier, 100 = base price")
	add.Flags().BoolVar(&p.PerGuest, "per-guest", false, "multiply the total by the number of guests")
	add.Flags().BoolVar(&inactive, "inactive", false, "create the package disabled")

	cmd.AddCommand(add)
	return cmd
}

func formatCents(c int64) string {
	return fmt.Sprintf("%d.%02d", c/100, c%100)
}
