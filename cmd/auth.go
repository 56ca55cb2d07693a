package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tidal-mcp/internal/auth"
	"tidal-mcp/internal/config"
	"tidal-mcp/internal/tidal"
	"tidal-mcp/pkg/logging"
)

var authQuiet bool

// authCmd represents the auth command group.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the Tidal session",
	Long: `Manage the local Tidal session used by the MCP server.

The auth command group lets you log in ahead of time (so the first tool
call needs no browser interaction), inspect the stored session, and log
out.

Examples:
  tidal-mcp auth login    # Run the browser login flow now
  tidal-mcp auth status   # Show session and subscription details
  tidal-mcp auth logout   # Revoke and delete the stored session`,
}

// authStack wires the authentication collaborators the way the serve
// command does, minus the MCP server.
func authStack() (*auth.Manager, *tidal.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logging.Init(logging.ParseLevel(cfg.LogLevel), os.Stderr)

	client := tidal.NewClient(cfg.APIURL, nil)
	manager, err := auth.NewManager(cfg, client)
	if err != nil {
		return nil, nil, err
	}
	return manager, client, nil
}

func authPrintln(format string, args ...interface{}) {
	if !authQuiet {
		fmt.Printf(format+"\n", args...)
	}
}

func init() {
	rootCmd.AddCommand(authCmd)

	authCmd.PersistentFlags().BoolVarP(&authQuiet, "quiet", "q", false, "Suppress informational output")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authLogoutCmd)
}
