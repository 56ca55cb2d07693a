package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"tidal-mcp/internal/tidal"
	"tidal-mcp/pkg/logging"
)

// registerTools registers all Tidal MCP tools
func (s *Server) registerTools() {
	// Authentication
	loginTool := mcp.NewTool("tidal_login",
		mcp.WithDescription("Authenticate with Tidal. Opens the system browser for the Tidal login flow; an existing valid session is reused without opening anything."),
	)
	s.server.AddTool(loginTool, s.handleLogin)

	logoutTool := mcp.NewTool("tidal_logout",
		mcp.WithDescription("Log out of Tidal, revoking and deleting the stored session."),
	)
	s.server.AddTool(logoutTool, s.handleLogout)

	authStatusTool := mcp.NewTool("tidal_auth_status",
		mcp.WithDescription("Report whether a valid Tidal session is held, including user and subscription details when authenticated."),
	)
	s.server.AddTool(authStatusTool, s.handleAuthStatus)

	// Catalog
	searchTool := mcp.NewTool("search_music",
		mcp.WithDescription("Search the Tidal catalog for tracks, albums, artists, or playlists"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query text"),
		),
		mcp.WithString("types",
			mcp.Description("Comma-separated result types to include: tracks, albums, artists, playlists (default: all)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results per type (1-50, default 20)"),
		),
	)
	s.server.AddTool(searchTool, s.handleSearch)

	favoritesTool := mcp.NewTool("get_favorite_tracks",
		mcp.WithDescription("List the authenticated user's favorite tracks, most recently added first"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum tracks to return (1-50, default 20)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Number of tracks to skip for pagination"),
		),
	)
	s.server.AddTool(favoritesTool, s.handleFavoriteTracks)

	playlistsTool := mcp.NewTool("get_user_playlists",
		mcp.WithDescription("List the authenticated user's playlists"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum playlists to return (1-50, default 20)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Number of playlists to skip for pagination"),
		),
	)
	s.server.AddTool(playlistsTool, s.handleUserPlaylists)

	playlistTracksTool := mcp.NewTool("get_playlist_tracks",
		mcp.WithDescription("List the tracks of a playlist"),
		mcp.WithString("playlist_id",
			mcp.Required(),
			mcp.Description("UUID of the playlist"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum tracks to return (1-50, default 20)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Number of tracks to skip for pagination"),
		),
	)
	s.server.AddTool(playlistTracksTool, s.handlePlaylistTracks)

	recommendationsTool := mcp.NewTool("get_recommendations",
		mcp.WithDescription("Get track recommendations. Seeds from the given track, or from the user's latest favorite when no track is given."),
		mcp.WithNumber("track_id",
			mcp.Description("Track id to seed recommendations from"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum tracks to return (1-50, default 20)"),
		),
	)
	s.server.AddTool(recommendationsTool, s.handleRecommendations)

	createPlaylistTool := mcp.NewTool("create_playlist",
		mcp.WithDescription("Create a new playlist, optionally populating it with tracks"),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Playlist title"),
		),
		mcp.WithString("description",
			mcp.Description("Playlist description"),
		),
		mcp.WithArray("track_ids",
			mcp.Description("Track ids to add to the new playlist, in order"),
		),
	)
	s.server.AddTool(createPlaylistTool, s.handleCreatePlaylist)
}

// requireAuth makes sure a usable token is held before a catalog call.
// Returns a non-nil tool error result when authentication is impossible
// without user interaction succeeding.
func (s *Server) requireAuth(ctx context.Context) *mcp.CallToolResult {
	if !s.auth.EnsureValidToken(ctx) {
		return mcp.NewToolResultError("Not authenticated with Tidal. Run the tidal_login tool first.")
	}
	return nil
}

func (s *Server) handleLogin(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.auth.Authenticate(ctx) {
		return mcp.NewToolResultError("Tidal authentication failed. Check the server logs and try again."), nil
	}

	response := map[string]interface{}{
		"status":  "authenticated",
		"user_id": s.auth.CurrentUserID(),
	}
	if profile := s.auth.UserInfo(ctx); profile != nil {
		response["username"] = profile.Username
		response["country_code"] = profile.CountryCode
		response["subscription"] = profile.Subscription
	}

	return jsonResult(response)
}

func (s *Server) handleLogout(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.auth.Logout(ctx)
	return jsonResult(map[string]interface{}{"status": "logged_out"})
}

func (s *Server) handleAuthStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.auth.IsAuthenticated(ctx) {
		return jsonResult(map[string]interface{}{"authenticated": false})
	}

	response := map[string]interface{}{
		"authenticated": true,
		"user_id":       s.auth.CurrentUserID(),
	}
	if profile := s.auth.UserInfo(ctx); profile != nil {
		response["username"] = profile.Username
		response["email"] = profile.Email
		response["country_code"] = profile.CountryCode
		response["subscription"] = profile.Subscription
	}

	return jsonResult(response)
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required"), nil
	}

	if result := s.requireAuth(ctx); result != nil {
		return result, nil
	}

	args := request.GetArguments()
	types := csvArg(args, "types")
	limit := intArg(args, "limit", 0)

	results, err := s.catalog.Search(ctx, query, types, limit)
	if err != nil {
		return s.catalogError("Search failed", err), nil
	}

	return jsonResult(results)
}

func (s *Server) handleFavoriteTracks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if result := s.requireAuth(ctx); result != nil {
		return result, nil
	}

	args := request.GetArguments()
	tracks, err := s.catalog.FavoriteTracks(ctx, intArg(args, "limit", 0), intArg(args, "offset", 0))
	if err != nil {
		return s.catalogError("Failed to fetch favorite tracks", err), nil
	}

	return jsonResult(map[string]interface{}{"tracks": tracks})
}

func (s *Server) handleUserPlaylists(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if result := s.requireAuth(ctx); result != nil {
		return result, nil
	}

	args := request.GetArguments()
	playlists, err := s.catalog.UserPlaylists(ctx, intArg(args, "limit", 0), intArg(args, "offset", 0))
	if err != nil {
		return s.catalogError("Failed to fetch playlists", err), nil
	}

	return jsonResult(map[string]interface{}{"playlists": playlists})
}

func (s *Server) handlePlaylistTracks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	playlistID, err := request.RequireString("playlist_id")
	if err != nil {
		return mcp.NewToolResultError("playlist_id argument is required"), nil
	}

	if result := s.requireAuth(ctx); result != nil {
		return result, nil
	}

	args := request.GetArguments()
	tracks, err := s.catalog.PlaylistTracks(ctx, playlistID, intArg(args, "limit", 0), intArg(args, "offset", 0))
	if err != nil {
		return s.catalogError(fmt.Sprintf("Failed to fetch tracks for playlist %s", playlistID), err), nil
	}

	return jsonResult(map[string]interface{}{"playlist_id": playlistID, "tracks": tracks})
}

func (s *Server) handleRecommendations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if result := s.requireAuth(ctx); result != nil {
		return result, nil
	}

	args := request.GetArguments()
	tracks, err := s.catalog.Recommendations(ctx, intArg(args, "track_id", 0), intArg(args, "limit", 0))
	if err != nil {
		return s.catalogError("Failed to fetch recommendations", err), nil
	}

	return jsonResult(map[string]interface{}{"tracks": tracks})
}

func (s *Server) handleCreatePlaylist(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("title argument is required"), nil
	}

	if result := s.requireAuth(ctx); result != nil {
		return result, nil
	}

	args := request.GetArguments()
	description, _ := args["description"].(string)
	trackIDs := intSliceArg(args, "track_ids")

	playlist, err := s.catalog.CreatePlaylist(ctx, title, description)
	if err != nil {
		return s.catalogError("Failed to create playlist", err), nil
	}

	if len(trackIDs) > 0 {
		if err := s.catalog.AddPlaylistTracks(ctx, playlist.UUID, trackIDs); err != nil {
			// The playlist exists; report the partial outcome rather
			// than a bare error.
			return jsonResult(map[string]interface{}{
				"playlist": playlist,
				"warning":  fmt.Sprintf("playlist created but adding tracks failed: %v", err),
			})
		}
	}

	return jsonResult(map[string]interface{}{
		"playlist":     playlist,
		"tracks_added": len(trackIDs),
	})
}

// catalogError converts a service failure into a tool error. An auth
// rejection invalidates the session so the next call reruns the flow.
func (s *Server) catalogError(msg string, err error) *mcp.CallToolResult {
	logging.Warn("MCPServer", "%s: %v", msg, err)

	if errors.Is(err, tidal.ErrUnauthorized) {
		s.auth.Invalidate("api_rejected_token")
		return mcp.NewToolResultError("Tidal session is no longer valid. Run the tidal_login tool to re-authenticate.")
	}

	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", msg, err))
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// intArg reads an optional numeric argument. JSON numbers arrive as
// float64; accept int for direct in-process calls.
func intArg(args map[string]interface{}, key string, def int) int {
	switch n := args[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return def
}

// csvArg splits a comma-separated string argument into trimmed parts.
func csvArg(args map[string]interface{}, key string) []string {
	raw, ok := args[key].(string)
	if !ok || raw == "" {
		return nil
	}

	var parts []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// intSliceArg reads an optional array-of-numbers argument.
func intSliceArg(args map[string]interface{}, key string) []int {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}

	ids := make([]int, 0, len(raw))
	for _, v := range raw {
		switch n := v.(type) {
		case float64:
			ids = append(ids, int(n))
		case int:
			ids = append(ids, n)
		}
	}
	return ids
}
