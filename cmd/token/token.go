// Package token provides a command that issues bearer tokens signed with
// the configured secret, for scripts and local testing.
package token

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitesafe/hsetrack/internal/access"
	"github.com/sitesafe/hsetrack/internal/conf"
)

// Command creates the token command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor := access.Actor{ID: subject, Role: access.Role(role)}
			if !actor.Role.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			signed, err := access.SignToken(settings.Security.JWTSecret, settings.Security.Issuer, actor, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "User id")
	cmd.Flags().StringVar(&role, "role", string(access.RoleHSE), "admin, hse or management")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}
