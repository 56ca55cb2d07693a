package cmd

import (
	"context"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

// authLoginCmd runs the browser OAuth flow ahead of time.
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with Tidal",
	Long: `Authenticate with Tidal using the browser OAuth flow.

If a valid session is already stored it is reused and no browser opens.
Otherwise the system browser is opened on the Tidal login page and the
command waits for the redirect (5 minutes by default, configurable via
TIDAL_AUTH_TIMEOUT).

Set TIDAL_NO_BROWSER=1 to print the authorization URL instead of
opening a browser, e.g. on a headless machine.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	manager, _, err := authStack()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var s *spinner.Spinner
	if !authQuiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " Waiting for Tidal authorization..."
		s.Start()
	}

	ok := manager.Authenticate(ctx)

	if s != nil {
		s.Stop()
	}

	if !ok {
		return errAuthFailed
	}

	authPrintln("Logged in to Tidal as user %s", manager.CurrentUserID())
	return nil
}
