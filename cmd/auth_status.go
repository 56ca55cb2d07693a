package cmd

import (
	"context"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// authStatusCmd shows the current session state.
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the Tidal session status",
	Long: `Show whether a valid Tidal session is stored.

The stored session is verified against the live Tidal API, so an
"authenticated" result means tool calls will work right now, not merely
that a token file exists. Exit code 2 means no valid session.`,
	Args: cobra.NoArgs,
	RunE: runAuthStatus,
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	manager, _, err := authStack()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if !manager.IsAuthenticated(ctx) {
		authPrintln("Not authenticated. Run 'tidal-mcp auth login' to log in.")
		return errAuthRequired
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendRow(table.Row{"Status", "authenticated"})
	t.AppendRow(table.Row{"User ID", manager.CurrentUserID()})

	if profile := manager.UserInfo(ctx); profile != nil {
		if profile.Username != "" {
			t.AppendRow(table.Row{"Username", profile.Username})
		}
		if profile.Email != "" {
			t.AppendRow(table.Row{"Email", profile.Email})
		}
		if profile.CountryCode != "" {
			t.AppendRow(table.Row{"Country", profile.CountryCode})
		}
		if profile.Subscription != "" {
			t.AppendRow(table.Row{"Subscription", profile.Subscription})
		}
	}

	if !authQuiet {
		t.Render()
	}
	return nil
}
