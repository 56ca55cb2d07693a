package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidal-mcp/internal/auth"
	"tidal-mcp/internal/config"
	"tidal-mcp/internal/tidal"
)

// newTestServer wires a Server against a fake Tidal API with a valid
// persisted session, so catalog handlers run without any OAuth flow.
func newTestServer(t *testing.T) (*Server, *http.ServeMux) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sessionId": "sess-1", "userId": 42, "countryCode": "US"}`))
	})

	api := httptest.NewServer(mux)
	t.Cleanup(api.Close)

	cfg := &config.Config{
		ClientID:    "client-id",
		AuthURL:     "https://login.example.com/authorize",
		TokenURL:    "https://auth.example.com/token",
		APIURL:      api.URL,
		SessionFile: filepath.Join(t.TempDir(), "session.json"),
	}

	events := auth.NewSecurityLog(cfg.SessionFile, io.Discard)
	store, err := auth.NewSessionStore(cfg.SessionFile, events)
	require.NoError(t, err)

	expiresAt := time.Now().Add(time.Hour)
	require.NoError(t, store.Save(&auth.SessionRecord{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		UserID:       "42",
		CountryCode:  "US",
		ExpiresAt:    &expiresAt,
		SavedAt:      time.Now().UTC(),
	}))

	client := tidal.NewClient(api.URL, nil)
	manager, err := auth.NewManager(cfg, client, auth.WithSecurityLogWriter(io.Discard))
	require.NoError(t, err)

	return New(Config{Version: "test"}, manager, tidal.NewService(client)), mux
}

func toolRequest(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text
}

func decodeResult(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &decoded))
	return decoded
}

func TestHandleAuthStatus(t *testing.T) {
	s, mux := newTestServer(t)
	mux.HandleFunc("/users/42", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 42, "username": "listener", "email": "a@example.com"}`))
	})
	mux.HandleFunc("/users/42/subscription", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"subscription": {"type": "HIFI"}}`))
	})

	result, err := s.handleAuthStatus(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	decoded := decodeResult(t, result)
	assert.Equal(t, true, decoded["authenticated"])
	assert.Equal(t, "42", decoded["user_id"])
	assert.Equal(t, "listener", decoded["username"])
	assert.Equal(t, "HIFI", decoded["subscription"])
}

func TestHandleSearch(t *testing.T) {
	s, mux := newTestServer(t)
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "daft punk", r.URL.Query().Get("query"))
		assert.Equal(t, "TRACKS", r.URL.Query().Get("types"))
		w.Write([]byte(`{"tracks": {"items": [
			{"id": 1, "title": "One More Time", "artist": {"name": "Daft Punk"}, "album": {"title": "Discovery"}}
		]}}`))
	})

	result, err := s.handleSearch(context.Background(), toolRequest(map[string]interface{}{
		"query": "daft punk",
		"types": "tracks",
		"limit": float64(5),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "One More Time")
}

func TestHandleSearchRequiresQuery(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleSearch(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleFavoriteTracks(t *testing.T) {
	s, mux := newTestServer(t)
	mux.HandleFunc("/users/42/favorites/tracks", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items": [{"item": {"id": 9, "title": "Fav", "artist": {"name": "X"}, "album": {"title": "Y"}}}]}`))
	})

	result, err := s.handleFavoriteTracks(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	decoded := decodeResult(t, result)
	tracks, ok := decoded["tracks"].([]interface{})
	require.True(t, ok)
	assert.Len(t, tracks, 1)
}

func TestHandlePlaylistTracksRequiresID(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handlePlaylistTracks(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "playlist_id")
}

func TestHandleCreatePlaylistWithTracks(t *testing.T) {
	s, mux := newTestServer(t)
	mux.HandleFunc("/users/42/playlists", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"uuid": "new-pl", "title": "Mix"}`))
	})

	var gotTrackIDs string
	mux.HandleFunc("/playlists/new-pl/items", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotTrackIDs = r.PostForm.Get("trackIds")
		w.Write([]byte(`{}`))
	})

	result, err := s.handleCreatePlaylist(context.Background(), toolRequest(map[string]interface{}{
		"title":     "Mix",
		"track_ids": []interface{}{float64(1), float64(2)},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "1,2", gotTrackIDs)
	decoded := decodeResult(t, result)
	assert.Equal(t, float64(2), decoded["tracks_added"])
}

func TestCatalogToolRejectsUnauthenticated(t *testing.T) {
	mux := http.NewServeMux()
	// Sessions endpoint rejects the token, so no session can validate.
	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	api := httptest.NewServer(mux)
	t.Cleanup(api.Close)

	cfg := &config.Config{
		ClientID:    "client-id",
		AuthURL:     "https://login.example.com/authorize",
		TokenURL:    "https://auth.example.com/token",
		APIURL:      api.URL,
		SessionFile: filepath.Join(t.TempDir(), "session.json"),
		AuthTimeout: 50 * time.Millisecond,
	}

	t.Setenv("TIDAL_NO_BROWSER", "1")

	client := tidal.NewClient(api.URL, nil)
	manager, err := auth.NewManager(cfg, client, auth.WithSecurityLogWriter(io.Discard))
	require.NoError(t, err)

	s := New(Config{Version: "test"}, manager, tidal.NewService(client))

	result, err := s.handleFavoriteTracks(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "tidal_login")
}

func TestUnauthorizedAPIInvalidatesSession(t *testing.T) {
	s, mux := newTestServer(t)
	mux.HandleFunc("/users/42/favorites/tracks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	result := s.catalogError("Failed to fetch favorite tracks",
		tidal.ErrUnauthorized)
	assert.True(t, result.IsError)
	assert.Empty(t, s.auth.CurrentUserID(), "a 401 from the API clears the session")
}

func TestToolRegistration(t *testing.T) {
	s, _ := newTestServer(t)
	require.NotNil(t, s.server)
}

func TestIntArg(t *testing.T) {
	args := map[string]interface{}{"a": float64(7), "b": 3, "c": "x"}
	assert.Equal(t, 7, intArg(args, "a", 0))
	assert.Equal(t, 3, intArg(args, "b", 0))
	assert.Equal(t, 9, intArg(args, "c", 9))
	assert.Equal(t, 9, intArg(args, "missing", 9))
}

func TestCsvArg(t *testing.T) {
	args := map[string]interface{}{"types": " tracks, albums ,,artists "}
	assert.Equal(t, []string{"tracks", "albums", "artists"}, csvArg(args, "types"))
	assert.Nil(t, csvArg(args, "missing"))
}

func TestIntSliceArg(t *testing.T) {
	args := map[string]interface{}{"ids": []interface{}{float64(1), 2, "skip"}}
	assert.Equal(t, []int{1, 2}, intSliceArg(args, "ids"))
	assert.Nil(t, intSliceArg(args, "missing"))
}
