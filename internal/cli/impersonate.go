package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tansive/apiaccess/pkg/api"
)

// newImpersonateCmd creates and returns a new impersonate command
func newImpersonateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "impersonate NETID",
		Short: "Act as another user",
		Long: `Obtain a token for NETID from the identity service and use it for later
commands. Impersonating again while impersonating switches to the new user;
the grant is always made on behalf of the real user.

Example:
  apiaccess impersonate jdoe`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, "", func(ctx context.Context, c *api.Client, _ *terminalHost) error {
				if err := c.Impersonate(ctx, args[0]); err != nil {
					return handled(err)
				}
				return printStatus(cmd, c.ImpersonationStatus())
			})
		},
	}
}

// newUnimpersonateCmd creates and returns a new unimpersonate command
func newUnimpersonateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unimpersonate",
		Short: "Stop acting as another user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, "", func(ctx context.Context, c *api.Client, _ *terminalHost) error {
				if err := c.ExitImpersonation(ctx); err != nil {
					return handled(err)
				}
				return printStatus(cmd, c.ImpersonationStatus())
			})
		},
	}
}

// newCanImpersonateCmd creates and returns a new can-impersonate command
func newCanImpersonateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "can-impersonate [NETID]",
		Short: "Check whether you may impersonate a user, or anyone",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, "", func(ctx context.Context, c *api.Client, _ *terminalHost) error {
				netid := ""
				allowed := false
				if len(args) == 1 {
					netid = args[0]
					allowed = c.MayImpersonate(ctx, netid)
				} else {
					allowed = c.MayImpersonateAnyone(ctx)
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), map[string]any{"netid": netid, "authorized": allowed})
				}
				target := "anyone"
				if netid != "" {
					target = netid
				}
				if allowed {
					okLabel.Fprintf(cmd.OutOrStdout(), "✓ You may impersonate %s\n", target)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "You may not impersonate %s\n", target)
				}
				return nil
			})
		},
	}
}

func printStatus(cmd *cobra.Command, status api.ImpersonationStatus) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), status)
	}
	if status.Impersonating {
		okLabel.Fprintf(cmd.OutOrStdout(), "✓ Acting as %s (signed in as %s)\n", status.ImpersonatedUser, status.ImpersonatedBy)
	} else {
		okLabel.Fprintln(cmd.OutOrStdout(), "✓ Acting as yourself")
	}
	return nil
}
