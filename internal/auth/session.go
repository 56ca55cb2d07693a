package auth

import "time"

// DefaultCountryCode is used until the user identity has been resolved.
const DefaultCountryCode = "US"

// Session is the single in-memory authentication session for this
// process. It is held exclusively by the Manager and never shared by
// reference with other components.
type Session struct {
	// AccessToken is the bearer credential for the Tidal API.
	// An empty AccessToken means the session is unauthenticated,
	// regardless of the other fields.
	AccessToken string

	// RefreshToken is the long-lived credential used to mint new
	// access tokens without repeating user consent.
	RefreshToken string

	// TokenExpiresAt is the absolute expiry of AccessToken.
	TokenExpiresAt time.Time

	// SessionID is the opaque Tidal session identifier.
	SessionID string

	// UserID is the Tidal user identity, known only after a successful
	// token exchange or session validation.
	UserID string

	// CountryCode defaults to "US" and is updated once the user
	// identity is resolved.
	CountryCode string
}

// IsExpired reports whether the access token expiry has passed.
// Sessions without an expiry are treated as non-expiring.
func (s *Session) IsExpired() bool {
	if s.TokenExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(s.TokenExpiresAt)
}

// SessionRecord is the on-disk projection of a Session. It is written
// on every successful token acquisition or refresh and deleted on
// invalidation, logout, or any integrity failure at load time.
type SessionRecord struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	SessionID    string     `json:"session_id,omitempty"`
	UserID       string     `json:"user_id,omitempty"`
	CountryCode  string     `json:"country_code"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	SavedAt      time.Time  `json:"saved_at"`
}

// ToSession reconstructs an in-memory Session from a persisted record.
func (r *SessionRecord) ToSession() *Session {
	session := &Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		SessionID:    r.SessionID,
		UserID:       r.UserID,
		CountryCode:  r.CountryCode,
	}
	if session.CountryCode == "" {
		session.CountryCode = DefaultCountryCode
	}
	if r.ExpiresAt != nil {
		session.TokenExpiresAt = *r.ExpiresAt
	}
	return session
}

// NewRecord projects a Session into its persisted form, stamping the
// write time.
func NewRecord(s *Session) *SessionRecord {
	record := &SessionRecord{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		SessionID:    s.SessionID,
		UserID:       s.UserID,
		CountryCode:  s.CountryCode,
		SavedAt:      time.Now().UTC(),
	}
	if !s.TokenExpiresAt.IsZero() {
		expiresAt := s.TokenExpiresAt
		record.ExpiresAt = &expiresAt
	}
	return record
}
