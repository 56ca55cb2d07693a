package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// authLogoutCmd revokes and deletes the stored session.
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out of Tidal",
	Long: `Log out of Tidal.

Revokes the stored tokens with Tidal (best effort) and deletes the
local session file. Logging out when no session is stored is a no-op.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogout,
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	manager, _, err := authStack()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	manager.Logout(ctx)
	authPrintln("Logged out of Tidal.")
	return nil
}
