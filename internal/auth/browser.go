package auth

import (
	"os"

	"github.com/skratchdot/open-golang/open"
)

// openBrowser launches the system browser at the given URL. Failures
// are not fatal to the flow: the authorization URL is printed so the
// user can open it manually, and the callback listener keeps waiting.
var openBrowser = func(url string) error {
	return open.Run(url)
}

// browserDisabled reports whether browser launching has been turned
// off (headless hosts, CI).
func browserDisabled() bool {
	return os.Getenv("TIDAL_NO_BROWSER") != ""
}
