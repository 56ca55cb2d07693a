package auth

import (
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Security event names. Every authentication state transition emits
// exactly one of these.
const (
	EventAuthAttemptStarted    = "auth_attempt_started"
	EventExistingSessionValid  = "existing_session_valid"
	EventNewSessionEstablished = "new_session_established"
	EventAuthFailed            = "auth_failed"
	EventTokenRefreshed        = "token_refreshed"
	EventTokenExpired          = "token_expired"
	EventSessionInvalidated    = "session_invalidated"
	EventSessionFileRejected   = "session_file_rejected"
	EventLogoutStarted         = "logout_started"
	EventLogoutCompleted       = "logout_completed"
	EventTokenRevokeFailed     = "token_revoke_failed"
)

// SecurityLog emits structured audit records for authentication state
// transitions. It carries its own slog handler pinned at Info level so
// the audit trail survives even when the application logger is
// configured to suppress output.
type SecurityLog struct {
	logger      *slog.Logger
	sessionFile string
}

// NewSecurityLog creates the audit logger. Records are written to
// stderr; pass a different writer in tests.
func NewSecurityLog(sessionFile string, w io.Writer) *SecurityLog {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return &SecurityLog{
		logger:      slog.New(handler).With(slog.String("audit", "tidal-auth")),
		sessionFile: sessionFile,
	}
}

// Emit writes one security event. userID may be empty when no identity
// is known yet. Extra key/value pairs carry transition-specific detail
// and must never contain token values.
func (l *SecurityLog) Emit(event, userID string, extra ...any) {
	attrs := []any{
		slog.String("event", event),
		slog.String("event_id", uuid.NewString()),
		slog.String("session_file", l.sessionFile),
	}
	if userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	attrs = append(attrs, extra...)

	l.logger.Info("SECURITY_AUDIT", attrs...)
}
