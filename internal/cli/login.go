package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tansive/apiaccess/pkg/api"
)

// tokenEnv supplies the login token when --token is not given.
const tokenEnv = "APIACCESS_TOKEN"

// newLoginCmd creates and returns a new login command
func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Start a session with a token from the identity service",
		Long: `Store a token obtained from the identity service as the current session.
Later commands use it until you log out. Logging in with a different token
ends any impersonation in progress.

Example:
  apiaccess login --token eyJhbGciOi...
  APIACCESS_TOKEN=eyJhbGciOi... apiaccess login`,
		RunE: runLogin,
	}
	cmd.Flags().String("token", "", "Token issued by the identity service")
	return cmd
}

func runLogin(cmd *cobra.Command, args []string) error {
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = strings.TrimSpace(os.Getenv(tokenEnv))
	}
	if token == "" {
		return fmt.Errorf("no token provided. Use --token or set %s", tokenEnv)
	}

	return withClient(cmd, token, func(ctx context.Context, c *api.Client, _ *terminalHost) error {
		principal := c.Principal()
		if principal == "" {
			return errors.New("token has no subject")
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"status":     "success",
				"netid":      principal,
				"expires_at": formatExpiry(c.Expiry()),
			})
		}
		okLabel.Fprintf(cmd.OutOrStdout(), "✓ Logged in as %s\n", principal)
		if exp := c.Expiry(); !exp.IsZero() {
			fmt.Fprintf(cmd.OutOrStdout(), "Token expires at: %s\n", formatExpiry(exp))
		}
		return nil
	})
}

// newLogoutCmd creates and returns a new logout command
func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Long: `End the session and print the identity service URL that completes the
logout. While impersonating, the session of the real user is ended.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, "", func(ctx context.Context, c *api.Client, host *terminalHost) error {
				if c.Token() == "" {
					warnLabel.Fprintln(cmd.ErrOrStderr(), "Not logged in")
					return nil
				}
				if err := c.Logout(ctx); err != nil {
					return handled(err)
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), map[string]string{
						"status":     "success",
						"logout_url": host.LastRedirect(),
					})
				}
				okLabel.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
				return nil
			})
		},
	}
}

type whoami struct {
	NetID         string                  `json:"netid" yaml:"netid"`
	ExpiresAt     string                  `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Impersonation api.ImpersonationStatus `json:"impersonation" yaml:"impersonation"`
}

// newWhoamiCmd creates and returns a new whoami command
func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current user and impersonation status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, "", func(ctx context.Context, c *api.Client, _ *terminalHost) error {
				if c.Token() == "" {
					return errors.New("not logged in")
				}
				return printOutput(cmd.OutOrStdout(), whoami{
					NetID:         c.Principal(),
					ExpiresAt:     formatExpiry(c.Expiry()),
					Impersonation: c.ImpersonationStatus(),
				})
			})
		},
	}
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.RFC3339)
}
