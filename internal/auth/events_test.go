package auth

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecurityLog_EmitFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewSecurityLog("/tmp/session.json", &buf)

	log.Emit(EventSessionInvalidated, "42", "reason", "token_expired")

	out := buf.String()
	assert.Contains(t, out, "SECURITY_AUDIT")
	assert.Contains(t, out, "event=session_invalidated")
	assert.Contains(t, out, "event_id=")
	assert.Contains(t, out, "session_file=/tmp/session.json")
	assert.Contains(t, out, "user_id=42")
	assert.Contains(t, out, "reason=token_expired")
	assert.Contains(t, out, "audit=tidal-auth")
}

func TestSecurityLog_EmptyUserIDOmitted(t *testing.T) {
	var buf bytes.Buffer
	log := NewSecurityLog("/tmp/session.json", &buf)

	log.Emit(EventAuthAttemptStarted, "")

	assert.NotContains(t, buf.String(), "user_id=")
}

func TestSecurityLog_DistinctEventIDs(t *testing.T) {
	var buf bytes.Buffer
	log := NewSecurityLog("/tmp/session.json", &buf)

	log.Emit(EventLogoutStarted, "42")
	first := buf.String()
	buf.Reset()
	log.Emit(EventLogoutCompleted, "42")

	assert.NotEqual(t, first, buf.String())
}
