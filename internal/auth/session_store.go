package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tidal-mcp/pkg/logging"
)

const (
	// sessionFileMode is the only acceptable permission set for the
	// session file: owner read/write, nothing for group or other.
	sessionFileMode os.FileMode = 0o600

	// sessionDirMode is the permission set for the containing directory.
	sessionDirMode os.FileMode = 0o700

	// groupOtherBits masks the permission bits that must never be set
	// on the session file or its directory.
	groupOtherBits os.FileMode = 0o077
)

// SessionStore reads and writes the single persisted session file.
//
// The store fails closed on every integrity problem: insecure
// permission bits, malformed JSON, missing required fields, or a past
// expiry all cause the file to be deleted and Load to report "no
// session". Failures never propagate as errors to the Manager; the
// system must always be able to fall back to a fresh OAuth flow.
type SessionStore struct {
	path   string
	events *SecurityLog
}

// NewSessionStore creates a store for the session file at path,
// creating the containing directory with owner-only permissions.
// Directory creation is idempotent; an existing directory is tightened
// to owner-only if needed.
func NewSessionStore(path string, events *SecurityLog) (*SessionStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, sessionDirMode); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	// MkdirAll leaves an existing directory's mode untouched.
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat session directory: %w", err)
	}
	if info.Mode().Perm()&groupOtherBits != 0 {
		if err := os.Chmod(dir, sessionDirMode); err != nil {
			return nil, fmt.Errorf("failed to restrict session directory permissions: %w", err)
		}
	}

	return &SessionStore{path: path, events: events}, nil
}

// Path returns the session file path.
func (s *SessionStore) Path() string {
	return s.path
}

// Load reads the persisted session record. It returns nil (not an
// error) when the file is absent, and nil after deleting the file when
// the file is group/other-accessible, the JSON is malformed, the
// access token is missing, or the record has already expired.
func (s *SessionStore) Load() *SessionRecord {
	info, err := os.Lstat(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn("SessionStore", "Failed to stat session file: %v", err)
		}
		return nil
	}

	if info.Mode().Perm()&groupOtherBits != 0 {
		s.events.Emit(EventSessionFileRejected, "",
			"path", s.path,
			"reason", "insecure_permissions",
			"mode", fmt.Sprintf("%#o", info.Mode().Perm()),
		)
		s.Clear()
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		logging.Warn("SessionStore", "Failed to read session file: %v", err)
		s.Clear()
		return nil
	}

	var record SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		s.events.Emit(EventSessionFileRejected, "",
			"path", s.path,
			"reason", "corrupt_json",
		)
		s.Clear()
		return nil
	}

	if record.AccessToken == "" {
		s.events.Emit(EventSessionFileRejected, record.UserID,
			"path", s.path,
			"reason", "missing_access_token",
		)
		s.Clear()
		return nil
	}

	if record.ExpiresAt != nil && time.Now().After(*record.ExpiresAt) {
		s.events.Emit(EventSessionFileRejected, record.UserID,
			"path", s.path,
			"reason", "expired",
			"expires_at", record.ExpiresAt.Format(time.RFC3339),
		)
		s.Clear()
		return nil
	}

	return &record
}

// Save writes the record as indented JSON. The file is created with
// owner-only permissions from the moment of creation; there is no
// window where it exists with a wider mode. After writing, the
// resulting permission bits are re-read and the file is deleted if a
// platform or filesystem quirk widened them.
func (s *SessionStore) Save(record *SessionRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, sessionFileMode)
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		s.Clear()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := f.Close(); err != nil {
		s.Clear()
		return fmt.Errorf("failed to close session file: %w", err)
	}

	// An existing file keeps its prior mode; a umask or an exotic
	// filesystem can also widen a fresh one. Verify and fail closed.
	info, err := os.Stat(s.path)
	if err != nil {
		s.Clear()
		return fmt.Errorf("failed to verify session file: %w", err)
	}
	if info.Mode().Perm()&groupOtherBits != 0 {
		s.events.Emit(EventSessionFileRejected, record.UserID,
			"path", s.path,
			"reason", "insecure_permissions_after_save",
			"mode", fmt.Sprintf("%#o", info.Mode().Perm()),
		)
		s.Clear()
		return fmt.Errorf("session file was created with insecure permissions %#o", info.Mode().Perm())
	}

	return nil
}

// Clear deletes the session file if present. It is a no-op when the
// file does not exist and never returns an error.
func (s *SessionStore) Clear() {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		logging.Warn("SessionStore", "Failed to remove session file: %v", err)
	}
}
