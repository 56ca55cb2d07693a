package tidal

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"tidal-mcp/pkg/logging"
)

const (
	// DefaultLimit is used when a caller passes no page size.
	DefaultLimit = 20

	// MaxLimit caps the page size accepted by the Tidal API.
	MaxLimit = 50
)

// Service is the catalog/library wrapper consumed by the MCP tool
// layer. It operates on an already-authenticated Client; obtaining and
// keeping that client valid is the auth manager's job.
type Service struct {
	client *Client
}

// NewService creates a catalog service over the given API client.
func NewService(client *Client) *Service {
	return &Service{client: client}
}

// clampLimit forces a pagination limit into the 1..MaxLimit range.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Search queries the catalog. types selects which result lists to
// request (artists, albums, tracks, playlists); empty means all.
func (s *Service) Search(ctx context.Context, query string, types []string, limit int) (*SearchResults, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query must not be empty")
	}

	identity, err := s.client.CurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}

	apiTypes := "ARTISTS,ALBUMS,TRACKS,PLAYLISTS"
	if len(types) > 0 {
		upper := make([]string, 0, len(types))
		for _, t := range types {
			upper = append(upper, strings.ToUpper(strings.TrimSpace(t)))
		}
		apiTypes = strings.Join(upper, ",")
	}

	params := url.Values{
		"query":       {query},
		"types":       {apiTypes},
		"limit":       {strconv.Itoa(clampLimit(limit))},
		"countryCode": {identity.CountryCode},
	}

	var raw struct {
		Artists struct {
			Items []rawArtist `json:"items"`
		} `json:"artists"`
		Albums struct {
			Items []rawAlbum `json:"items"`
		} `json:"albums"`
		Tracks struct {
			Items []rawTrack `json:"items"`
		} `json:"tracks"`
		Playlists struct {
			Items []rawPlaylist `json:"items"`
		} `json:"playlists"`
	}
	if err := s.client.get(ctx, "/search", params, &raw); err != nil {
		return nil, err
	}

	results := &SearchResults{}
	for _, a := range raw.Artists.Items {
		results.Artists = append(results.Artists, a.toArtist())
	}
	for _, a := range raw.Albums.Items {
		results.Albums = append(results.Albums, a.toAlbum())
	}
	for _, t := range raw.Tracks.Items {
		results.Tracks = append(results.Tracks, t.toTrack())
	}
	for _, p := range raw.Playlists.Items {
		results.Playlists = append(results.Playlists, p.toPlaylist())
	}

	logging.Debug("Tidal", "Search %q returned %d tracks, %d albums, %d artists, %d playlists",
		query, len(results.Tracks), len(results.Albums), len(results.Artists), len(results.Playlists))

	return results, nil
}

// FavoriteTracks lists the user's favorite tracks.
func (s *Service) FavoriteTracks(ctx context.Context, limit, offset int) ([]Track, error) {
	identity, err := s.client.CurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"limit":          {strconv.Itoa(clampLimit(limit))},
		"offset":         {strconv.Itoa(max(offset, 0))},
		"countryCode":    {identity.CountryCode},
		"order":          {"DATE"},
		"orderDirection": {"DESC"},
	}

	var raw struct {
		Items []struct {
			Item rawTrack `json:"item"`
		} `json:"items"`
	}
	path := "/users/" + identity.UserID + "/favorites/tracks"
	if err := s.client.get(ctx, path, params, &raw); err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(raw.Items))
	for _, item := range raw.Items {
		tracks = append(tracks, item.Item.toTrack())
	}
	return tracks, nil
}

// UserPlaylists lists the user's playlists.
func (s *Service) UserPlaylists(ctx context.Context, limit, offset int) ([]Playlist, error) {
	identity, err := s.client.CurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"limit":       {strconv.Itoa(clampLimit(limit))},
		"offset":      {strconv.Itoa(max(offset, 0))},
		"countryCode": {identity.CountryCode},
	}

	var raw struct {
		Items []rawPlaylist `json:"items"`
	}
	path := "/users/" + identity.UserID + "/playlists"
	if err := s.client.get(ctx, path, params, &raw); err != nil {
		return nil, err
	}

	playlists := make([]Playlist, 0, len(raw.Items))
	for _, p := range raw.Items {
		playlists = append(playlists, p.toPlaylist())
	}
	return playlists, nil
}

// PlaylistTracks lists the tracks of one playlist.
func (s *Service) PlaylistTracks(ctx context.Context, playlistID string, limit, offset int) ([]Track, error) {
	if playlistID == "" {
		return nil, fmt.Errorf("playlist id must not be empty")
	}

	identity, err := s.client.CurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"limit":       {strconv.Itoa(clampLimit(limit))},
		"offset":      {strconv.Itoa(max(offset, 0))},
		"countryCode": {identity.CountryCode},
	}

	var raw struct {
		Items []rawTrack `json:"items"`
	}
	if err := s.client.get(ctx, "/playlists/"+playlistID+"/tracks", params, &raw); err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(raw.Items))
	for _, t := range raw.Items {
		tracks = append(tracks, t.toTrack())
	}
	return tracks, nil
}

// Recommendations returns tracks similar to the given seed track via
// the track radio endpoint. When seedTrackID is zero, the most recent
// favorite track is used as the seed.
func (s *Service) Recommendations(ctx context.Context, seedTrackID, limit int) ([]Track, error) {
	identity, err := s.client.CurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}

	if seedTrackID == 0 {
		favorites, err := s.FavoriteTracks(ctx, 1, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to pick recommendation seed: %w", err)
		}
		if len(favorites) == 0 {
			return nil, fmt.Errorf("no favorite tracks to seed recommendations from")
		}
		seedTrackID = favorites[0].ID
	}

	params := url.Values{
		"limit":       {strconv.Itoa(clampLimit(limit))},
		"countryCode": {identity.CountryCode},
	}

	var raw struct {
		Items []rawTrack `json:"items"`
	}
	path := "/tracks/" + strconv.Itoa(seedTrackID) + "/radio"
	if err := s.client.get(ctx, path, params, &raw); err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(raw.Items))
	for _, t := range raw.Items {
		tracks = append(tracks, t.toTrack())
	}
	return tracks, nil
}

// CreatePlaylist creates an empty playlist for the user.
func (s *Service) CreatePlaylist(ctx context.Context, title, description string) (*Playlist, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("playlist title must not be empty")
	}

	identity, err := s.client.CurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"title":       {title},
		"description": {description},
	}
	query := url.Values{"countryCode": {identity.CountryCode}}

	var raw rawPlaylist
	path := "/users/" + identity.UserID + "/playlists"
	if err := s.client.postForm(ctx, path, query, form, &raw); err != nil {
		return nil, err
	}

	playlist := raw.toPlaylist()
	return &playlist, nil
}

// AddPlaylistTracks appends tracks to a playlist.
func (s *Service) AddPlaylistTracks(ctx context.Context, playlistID string, trackIDs []int) error {
	if playlistID == "" {
		return fmt.Errorf("playlist id must not be empty")
	}
	if len(trackIDs) == 0 {
		return nil
	}

	identity, err := s.client.CurrentIdentity(ctx)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(trackIDs))
	for _, id := range trackIDs {
		ids = append(ids, strconv.Itoa(id))
	}

	form := url.Values{
		"trackIds":           {strings.Join(ids, ",")},
		"onArtifactNotFound": {"SKIP"},
	}
	query := url.Values{"countryCode": {identity.CountryCode}}

	return s.client.postForm(ctx, "/playlists/"+playlistID+"/items", query, form, nil)
}

// Raw API shapes, translated to domain objects below.

type rawArtist struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (a rawArtist) toArtist() Artist {
	return Artist{ID: a.ID, Name: a.Name}
}

type rawAlbum struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"releaseDate"`
	NumTracks   int    `json:"numberOfTracks"`
	Artist      struct {
		Name string `json:"name"`
	} `json:"artist"`
}

func (a rawAlbum) toAlbum() Album {
	return Album{
		ID:          a.ID,
		Title:       a.Title,
		Artist:      a.Artist.Name,
		ReleaseDate: a.ReleaseDate,
		NumTracks:   a.NumTracks,
	}
}

type rawTrack struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Duration int    `json:"duration"`
	URL      string `json:"url"`
	Artist   struct {
		Name string `json:"name"`
	} `json:"artist"`
	Album struct {
		Title string `json:"title"`
	} `json:"album"`
}

func (t rawTrack) toTrack() Track {
	return Track{
		ID:       t.ID,
		Title:    t.Title,
		Artist:   t.Artist.Name,
		Album:    t.Album.Title,
		Duration: t.Duration,
		URL:      t.URL,
	}
}

type rawPlaylist struct {
	UUID        string `json:"uuid"`
	Title       string `json:"title"`
	Description string `json:"description"`
	NumTracks   int    `json:"numberOfTracks"`
	Created     string `json:"created"`
	LastUpdated string `json:"lastUpdated"`
}

func (p rawPlaylist) toPlaylist() Playlist {
	return Playlist{
		UUID:        p.UUID,
		Title:       p.Title,
		Description: p.Description,
		NumTracks:   p.NumTracks,
		Created:     p.Created,
		LastUpdated: p.LastUpdated,
	}
}
