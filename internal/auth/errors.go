package auth

import "errors"

// ErrNotAuthenticated is returned by accessors that require a valid
// session (AuthHeaders, SessionHandle). Unlike authentication and
// refresh failures, which collapse to boolean results, this error
// propagates: calling these methods without a session is a programming
// error in the calling layer, and the tool layer maps it to a
// user-facing "please authenticate" response.
var ErrNotAuthenticated = errors.New("not authenticated: no valid Tidal session")

// ErrNoAccessToken is returned by AuthHeaders when no access token is
// held, so callers never see headers containing an empty bearer value.
var ErrNoAccessToken = errors.New("no access token available")
