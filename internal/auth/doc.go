// Package auth implements the OAuth2-PKCE authentication and session
// lifecycle for the Tidal MCP server.
//
// The package owns a single in-memory session per process. The Manager
// orchestrates the full flow: it first tries to restore and validate a
// persisted session, and only then drives a browser-based
// authorization-code-with-PKCE flow through a short-lived local
// callback listener.
//
// # Session persistence
//
// The session is persisted as a single JSON file (default
// ~/.tidal-mcp/session.json) with owner-only permissions. The store
// fails closed: corrupt JSON, group/other-readable permission bits, or
// a past expiry all degrade to "no session" and delete the file, so
// the system can always fall back to a fresh OAuth flow.
//
// # Security events
//
// Every authentication state transition is emitted as a structured
// security event through a dedicated logger that is not subject to the
// application log level. This is an audit trail, not debug logging.
package auth
