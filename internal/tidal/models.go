package tidal

// Identity is the result of validating the live session against the
// Tidal API. An empty UserID means the session is not valid.
type Identity struct {
	SessionID   string `json:"sessionId"`
	UserID      string `json:"userId"`
	CountryCode string `json:"countryCode"`
}

// UserProfile holds identity and subscription fields read from the
// live session.
type UserProfile struct {
	ID           string `json:"id"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	Email        string `json:"email,omitempty"`
	CountryCode  string `json:"countryCode,omitempty"`
	Subscription string `json:"subscription,omitempty"`
}

// Artist is a Tidal artist.
type Artist struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Album is a Tidal album.
type Album struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist,omitempty"`
	ReleaseDate string `json:"releaseDate,omitempty"`
	NumTracks   int    `json:"numberOfTracks,omitempty"`
}

// Track is a Tidal track.
type Track struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist,omitempty"`
	Album    string `json:"album,omitempty"`
	Duration int    `json:"duration,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Playlist is a Tidal playlist.
type Playlist struct {
	UUID        string `json:"uuid"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	NumTracks   int    `json:"numberOfTracks"`
	Created     string `json:"created,omitempty"`
	LastUpdated string `json:"lastUpdated,omitempty"`
}

// SearchResults aggregates the typed result lists of one search call.
type SearchResults struct {
	Artists   []Artist   `json:"artists,omitempty"`
	Albums    []Album    `json:"albums,omitempty"`
	Tracks    []Track    `json:"tracks,omitempty"`
	Playlists []Playlist `json:"playlists,omitempty"`
}
