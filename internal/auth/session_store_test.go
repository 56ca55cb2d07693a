package auth

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SessionStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "session.json")
	store, err := NewSessionStore(path, NewSecurityLog(path, io.Discard))
	require.NoError(t, err)
	return store
}

func validRecord() *SessionRecord {
	expiresAt := time.Now().Add(1 * time.Hour)
	return &SessionRecord{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		SessionID:    "session-1",
		UserID:       "12345",
		CountryCode:  "US",
		ExpiresAt:    &expiresAt,
		SavedAt:      time.Now().UTC(),
	}
}

func TestSessionStore_DirectoryPermissions(t *testing.T) {
	store := newTestStore(t)

	info, err := os.Stat(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0), info.Mode().Perm()&0o077,
		"session directory must not be group/other accessible")
}

func TestSessionStore_LoadAbsent(t *testing.T) {
	store := newTestStore(t)
	assert.Nil(t, store.Load())
}

func TestSessionStore_SaveLoadRoundtrip(t *testing.T) {
	store := newTestStore(t)
	record := validRecord()

	require.NoError(t, store.Save(record))

	// File must be owner-only from creation
	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0), info.Mode().Perm()&0o077)

	loaded := store.Load()
	require.NotNil(t, loaded)
	assert.Equal(t, record.AccessToken, loaded.AccessToken)
	assert.Equal(t, record.RefreshToken, loaded.RefreshToken)
	assert.Equal(t, record.SessionID, loaded.SessionID)
	assert.Equal(t, record.UserID, loaded.UserID)
	assert.Equal(t, record.CountryCode, loaded.CountryCode)
	require.NotNil(t, loaded.ExpiresAt)
	assert.WithinDuration(t, *record.ExpiresAt, *loaded.ExpiresAt, time.Second)
}

func TestSessionStore_SaveWritesIndentedJSON(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(validRecord()))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"access_token\"")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, key := range []string{"access_token", "refresh_token", "session_id", "user_id", "country_code", "expires_at", "saved_at"} {
		assert.Contains(t, decoded, key)
	}
}

func TestSessionStore_LoadRejectsInsecurePermissions(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(validRecord()))
	require.NoError(t, os.Chmod(store.Path(), 0o644))

	assert.Nil(t, store.Load(), "group/other-readable session file must not be trusted")

	_, err := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err), "insecure session file must be deleted")
}

func TestSessionStore_LoadRejectsCorruptJSON(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o600))

	assert.Nil(t, store.Load())

	_, err := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err), "corrupt session file must be deleted")
}

func TestSessionStore_LoadRejectsMissingAccessToken(t *testing.T) {
	store := newTestStore(t)
	record := validRecord()
	record.AccessToken = ""
	data, err := json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path(), data, 0o600))

	assert.Nil(t, store.Load())

	_, err = os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestSessionStore_LoadRejectsExpiredRecord(t *testing.T) {
	store := newTestStore(t)
	record := validRecord()
	expired := time.Now().Add(-1 * time.Minute)
	record.ExpiresAt = &expired
	data, err := json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path(), data, 0o600))

	assert.Nil(t, store.Load(), "expired persisted record must yield no session")

	_, err = os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err), "expired session file must be deleted")
}

func TestSessionStore_ClearIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(validRecord()))

	store.Clear()
	_, err := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err))

	// Second clear with no file present must not panic or error
	store.Clear()
}

func TestSessionStore_ConstructionIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.json")
	events := NewSecurityLog(path, io.Discard)

	_, err := NewSessionStore(path, events)
	require.NoError(t, err)
	_, err = NewSessionStore(path, events)
	require.NoError(t, err)
}

func TestSessionStore_ConstructionTightensLooseDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, "session.json")
	_, err := NewSessionStore(path, NewSecurityLog(path, io.Discard))
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0), info.Mode().Perm()&0o077)
}
