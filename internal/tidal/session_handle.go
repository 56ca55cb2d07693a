package tidal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrUnauthorized marks an API rejection of the installed access token.
// Callers match it with errors.Is to distinguish credential failures
// from transport or server errors.
var ErrUnauthorized = errors.New("tidal api rejected the access token")

// SessionHandle is the narrow capability surface the auth subsystem
// needs from the Tidal API client: set tokens on the live session,
// resolve the current identity, and read the user profile. The auth
// manager treats the handle as opaque beyond these operations.
type SessionHandle interface {
	// SetTokens installs the credentials on the live session.
	SetTokens(accessToken, refreshToken string, expiry time.Time)

	// ClearTokens removes any installed credentials.
	ClearTokens()

	// CurrentIdentity resolves the identity behind the installed
	// tokens. An error or empty user id means the session is invalid.
	CurrentIdentity(ctx context.Context) (*Identity, error)

	// UserProfile reads identity and subscription fields from the
	// live session, never from cached state.
	UserProfile(ctx context.Context) (*UserProfile, error)
}

// Client implements SessionHandle over the Tidal REST API and carries
// the authenticated request helper the Service is built on.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
	identity    *Identity
}

// NewClient creates an API client for the given base URL. httpClient
// may be nil, in which case a client with a 30-second timeout is used.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// SetTokens implements SessionHandle. The refresh token and expiry are
// accepted for interface completeness but only the access token is
// needed for API calls; refresh is the auth manager's job.
func (c *Client) SetTokens(accessToken, refreshToken string, expiry time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
	c.identity = nil
}

// ClearTokens implements SessionHandle.
func (c *Client) ClearTokens() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	c.identity = nil
}

// CurrentIdentity implements SessionHandle. It calls the sessions
// endpoint with the installed token and caches the result until the
// tokens change.
func (c *Client) CurrentIdentity(ctx context.Context) (*Identity, error) {
	c.mu.RLock()
	cached := c.identity
	c.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	var raw struct {
		SessionID   string          `json:"sessionId"`
		UserID      json.RawMessage `json:"userId"`
		CountryCode string          `json:"countryCode"`
	}
	if err := c.get(ctx, "/sessions", nil, &raw); err != nil {
		return nil, err
	}

	identity := &Identity{
		SessionID:   raw.SessionID,
		UserID:      decodeUserID(raw.UserID),
		CountryCode: raw.CountryCode,
	}
	if identity.UserID == "" {
		return nil, fmt.Errorf("session response contains no user id")
	}

	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()

	return identity, nil
}

// UserProfile implements SessionHandle.
func (c *Client) UserProfile(ctx context.Context) (*UserProfile, error) {
	identity, err := c.CurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}

	var raw struct {
		ID        json.RawMessage `json:"id"`
		Username  string          `json:"username"`
		FirstName string          `json:"firstName"`
		LastName  string          `json:"lastName"`
		Email     string          `json:"email"`
	}
	query := url.Values{"countryCode": {identity.CountryCode}}
	if err := c.get(ctx, "/users/"+identity.UserID, query, &raw); err != nil {
		return nil, err
	}

	profile := &UserProfile{
		ID:          decodeUserID(raw.ID),
		Username:    raw.Username,
		FirstName:   raw.FirstName,
		LastName:    raw.LastName,
		Email:       raw.Email,
		CountryCode: identity.CountryCode,
	}

	// Subscription info lives on its own endpoint; its absence is not
	// an error.
	var sub struct {
		Subscription struct {
			Type string `json:"type"`
		} `json:"subscription"`
	}
	if err := c.get(ctx, "/users/"+identity.UserID+"/subscription", query, &sub); err == nil {
		profile.Subscription = sub.Subscription.Type
	}

	return profile, nil
}

// decodeUserID tolerates user ids arriving as either a JSON number or
// a string.
func decodeUserID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asNumber int64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return strconv.FormatInt(asNumber, 10)
	}
	return ""
}

// get performs an authenticated GET and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, query url.Values, v interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, nil, v)
}

// postForm performs an authenticated form-encoded POST.
func (c *Client) postForm(ctx context.Context, path string, query url.Values, form url.Values, v interface{}) error {
	return c.do(ctx, http.MethodPost, path, query, form, v)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, form url.Values, v interface{}) error {
	c.mu.RLock()
	token := c.accessToken
	c.mu.RUnlock()

	if token == "" {
		return fmt.Errorf("no access token installed on session")
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// The API has historically accepted either header name; send both.
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Tidal-Token", token)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%s %s failed with status %d: %w", method, path, resp.StatusCode, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s failed with status %d", method, path, resp.StatusCode)
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
