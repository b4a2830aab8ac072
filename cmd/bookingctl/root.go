package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-guesthouse-bookings/internal/config"
	"github.com/ariefcatur/go-guesthouse-bookings/internal/postgres"
	"github.com/ariefcatur/go-guesthouse-bookings/internal/telemetry"
)

type app struct {
	cfg    config.Config
	dsn    string
	logger *slog.Logger
}

func newRootCmd(cfg config.Config) *cobra.Command {
	a := &app{cfg: cfg}

	root := &cobra.Command{
		Use:           "bookingctl",
		Short:         "Operate the guesthouse booking database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.logger = telemetry.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, "bookingctl")
		},
	}
	root.PersistentFlags().StringVar(&a.dsn, "dsn", cfg.PostgresDSN, "Postgres connection string")

	root.AddCommand(
		a.migrateCmd(),
		a.guesthousesCmd(),
		a.packagesCmd(),
		a.ratesCmd(),
		a.availabilityCmd(),
		a.tokenCmd(),
	)
	return root
}

// withStore opens the pool for one command and closes it afterwards.
func (a *app) withStore(ctx context.Context, fn func(*postgres.Store) error) error {
	db, err := postgres.Connect(ctx, a.dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(postgres.NewStore(db))
}

func (a *app) log() *slog.Logger {
	if a.logger == nil {
		return telemetry.NewLogger(os.Stderr, a.cfg.LogLevel, "bookingctl")
	}
	return a.logger
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(s *postgres.Store) error {
				if err := postgres.Migrate(cmd.Context(), s.DB); err != nil {
					return err
				}
				a.log().Info("schema up to date")
				return nil
			})
		},
	}
}
