package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-guesthouse-bookings/internal/httpx"
)

func (a *app) tokenCmd() *cobra.Command {
	var (
		user string
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			p := httpx.Principal{UserID: user, Role: httpx.Role(role)}
			if user == "" {
				return errors.New("--user is required")
			}
			// every known role can at least book
			if !p.Can(httpx.CapBook) {
				return fmt.Errorf("unknown role %q", role)
			}
			tok, err := httpx.NewAuthenticator(a.cfg.JWTSecret).Sign(p, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "subject (user id)")
	cmd.Flags().StringVar(&role, "role", string(httpx.RoleTraveler), "admin, editor, agent, traveler or viewer")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
