package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"tidal-mcp/internal/config"
	"tidal-mcp/internal/tidal"
	"tidal-mcp/pkg/logging"
)

// Manager owns the single in-memory session and orchestrates the
// authentication lifecycle: restoring a persisted session, driving the
// browser-based PKCE flow, refreshing tokens, and invalidating state.
//
// Every path that detects an invalid, expired, or corrupt session
// funnels through one invalidate operation that clears the in-memory
// fields, the persisted file, and emits a security event. There is no
// state where a subset of the session fields survives invalidation.
type Manager struct {
	cfg       *config.Config
	store     *SessionStore
	exchanger *TokenExchanger
	handle    tidal.SessionHandle
	events    *SecurityLog

	httpClient *http.Client

	mu      sync.Mutex
	session *Session

	refreshGroup singleflight.Group
}

// Option configures the Manager.
type Option func(*Manager)

// WithHTTPClient sets the HTTP client used for token revocation and
// the token exchange client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(m *Manager) {
		m.httpClient = httpClient
	}
}

// WithSecurityLogWriter redirects the security audit trail, primarily
// for tests.
func WithSecurityLogWriter(w io.Writer) Option {
	return func(m *Manager) {
		m.events = NewSecurityLog(m.cfg.SessionFile, w)
	}
}

// NewManager creates the auth manager. The session directory is
// created (owner-only) and any persisted session is restored into
// memory; validation of the restored session is deferred to the first
// IsAuthenticated or Authenticate call.
func NewManager(cfg *config.Config, handle tidal.SessionHandle, opts ...Option) (*Manager, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client id is required")
	}

	m := &Manager{
		cfg:        cfg,
		handle:     handle,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		session:    &Session{CountryCode: DefaultCountryCode},
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.events == nil {
		m.events = NewSecurityLog(cfg.SessionFile, nil)
	}

	store, err := NewSessionStore(cfg.SessionFile, m.events)
	if err != nil {
		return nil, err
	}
	m.store = store
	m.exchanger = NewTokenExchanger(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret, m.httpClient)

	if record := m.store.Load(); record != nil {
		m.session = record.ToSession()
		m.handle.SetTokens(m.session.AccessToken, m.session.RefreshToken, m.session.TokenExpiresAt)
		logging.Debug("Auth", "Restored persisted session for user %s", m.session.UserID)
	}

	return m, nil
}

// IsAuthenticated reports whether a valid session is held. The expiry
// check is local; when it passes, one lightweight capability check is
// made against the live API. Any failure invalidates the session.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isAuthenticatedLocked(ctx)
}

func (m *Manager) isAuthenticatedLocked(ctx context.Context) bool {
	if m.session.AccessToken == "" {
		return false
	}

	if m.session.IsExpired() {
		m.events.Emit(EventTokenExpired, m.session.UserID,
			"expires_at", m.session.TokenExpiresAt.Format(time.RFC3339))
		m.invalidateLocked("token_expired")
		return false
	}

	identity, err := m.handle.CurrentIdentity(ctx)
	if err != nil || identity.UserID == "" {
		if err != nil {
			logging.Debug("Auth", "Session validation failed: %v", err)
		}
		m.invalidateLocked("session_validation_failed")
		return false
	}

	m.session.SessionID = identity.SessionID
	m.session.UserID = identity.UserID
	if identity.CountryCode != "" {
		m.session.CountryCode = identity.CountryCode
	}

	return true
}

// Authenticate establishes a valid session. It first tries to validate
// the existing in-memory/persisted session without any token-endpoint
// traffic; if that fails, it drives the full OAuth2-PKCE flow: open
// the system browser on the authorization URL, wait for the local
// callback, exchange the code, persist the result.
//
// All failures collapse to a false return. An error at any point
// invalidates whatever partial state may have accumulated; partial
// authentication never leaves stale tokens in memory or on disk.
func (m *Manager) Authenticate(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events.Emit(EventAuthAttemptStarted, m.session.UserID)

	if m.isAuthenticatedLocked(ctx) {
		m.events.Emit(EventExistingSessionValid, m.session.UserID)
		logging.Info("Auth", "Using existing Tidal session for user %s", m.session.UserID)
		return true
	}

	if err := m.runOAuthFlowLocked(ctx); err != nil {
		m.events.Emit(EventAuthFailed, "", "error", err.Error())
		logging.Warn("Auth", "Authentication failed: %v", err)
		m.invalidateLocked("authentication_failed")
		return false
	}

	m.events.Emit(EventNewSessionEstablished, m.session.UserID,
		"expires_at", m.session.TokenExpiresAt.Format(time.RFC3339))
	logging.Info("Auth", "Authenticated to Tidal as user %s", m.session.UserID)
	return true
}

// runOAuthFlowLocked drives one complete PKCE flow. The PKCE pair and
// state are fresh per attempt and discarded when this returns.
func (m *Manager) runOAuthFlowLocked(ctx context.Context) error {
	pkce, err := GeneratePKCE()
	if err != nil {
		return err
	}

	state, err := GenerateState()
	if err != nil {
		return err
	}

	callback := NewCallbackServer(m.cfg.CallbackPort, m.cfg.CallbackPath)
	redirectURI, err := callback.Start(ctx)
	if err != nil {
		return err
	}
	defer callback.Stop()

	authURL, err := m.buildAuthorizationURL(redirectURI, state, pkce)
	if err != nil {
		return err
	}

	if browserDisabled() {
		logging.Info("Auth", "Open this URL to authorize: %s", authURL)
	} else if err := openBrowser(authURL); err != nil {
		logging.Warn("Auth", "Could not open browser (%v); open this URL to authorize: %s", err, authURL)
	}

	timeout := m.cfg.AuthTimeout
	if timeout <= 0 {
		timeout = DefaultCallbackTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := callback.WaitForCallback(waitCtx)
	if err != nil {
		return fmt.Errorf("no authorization callback received: %w", err)
	}

	if result.IsError() {
		// The user denied consent or the provider rejected the
		// request; no token exchange is attempted.
		if result.ErrorDescription != "" {
			return fmt.Errorf("authorization failed: %s - %s", result.Error, result.ErrorDescription)
		}
		return fmt.Errorf("authorization failed: %s", result.Error)
	}

	if result.State != state {
		return fmt.Errorf("state mismatch - possible CSRF attack")
	}

	if result.Code == "" {
		return fmt.Errorf("callback contained no authorization code")
	}

	token, err := m.exchanger.ExchangeCode(ctx, result.Code, pkce.CodeVerifier, redirectURI)
	if err != nil {
		return fmt.Errorf("token exchange failed: %w", err)
	}

	return m.adoptTokenLocked(ctx, token)
}

// adoptTokenLocked installs a freshly exchanged token, resolves the
// user identity through the live session, and persists the result.
func (m *Manager) adoptTokenLocked(ctx context.Context, token *oauth2.Token) error {
	m.session = &Session{
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		TokenExpiresAt: token.Expiry,
		CountryCode:    DefaultCountryCode,
	}
	m.handle.SetTokens(token.AccessToken, token.RefreshToken, token.Expiry)

	identity, err := m.handle.CurrentIdentity(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve user identity: %w", err)
	}

	m.session.SessionID = identity.SessionID
	m.session.UserID = identity.UserID
	if identity.CountryCode != "" {
		m.session.CountryCode = identity.CountryCode
	}

	if err := m.store.Save(NewRecord(m.session)); err != nil {
		// The in-memory session is still valid for this process; the
		// next process start will need a fresh flow.
		logging.Warn("Auth", "Failed to persist session: %v", err)
	}

	return nil
}

// buildAuthorizationURL constructs the browser-navigable authorization
// request.
func (m *Manager) buildAuthorizationURL(redirectURI, state string, pkce *PKCEChallenge) (string, error) {
	authURL, err := url.Parse(m.cfg.AuthURL)
	if err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}

	query := authURL.Query()
	query.Set("response_type", "code")
	query.Set("client_id", m.cfg.ClientID)
	query.Set("redirect_uri", redirectURI)
	query.Set("state", state)
	query.Set("code_challenge", pkce.CodeChallenge)
	query.Set("code_challenge_method", pkce.CodeChallengeMethod)
	authURL.RawQuery = query.Encode()

	return authURL.String(), nil
}

// EnsureValidToken makes sure a usable token is held, preferring the
// cheapest path: an already-valid session, then a refresh, then the
// full OAuth flow. The refresh token is snapshotted before the
// validity check because an expired session is invalidated (fully
// cleared) by that check; the snapshot keeps the no-interaction
// refresh path available.
func (m *Manager) EnsureValidToken(ctx context.Context) bool {
	refreshToken := m.heldRefreshToken()

	if m.IsAuthenticated(ctx) {
		return true
	}

	if refreshToken != "" && m.refreshWith(ctx, refreshToken) {
		return true
	}

	return m.Authenticate(ctx)
}

func (m *Manager) heldRefreshToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.RefreshToken
}

// RefreshAccessToken exchanges the held refresh token for a new access
// token. Returns false without side effects when no refresh token is
// held. On any failure the session is invalidated; a failed refresh
// never leaves a half-updated token in memory. Concurrent callers are
// deduplicated into a single token-endpoint call.
func (m *Manager) RefreshAccessToken(ctx context.Context) bool {
	refreshToken := m.heldRefreshToken()
	if refreshToken == "" {
		return false
	}
	return m.refreshWith(ctx, refreshToken)
}

func (m *Manager) refreshWith(ctx context.Context, refreshToken string) bool {
	ok, _, _ := m.refreshGroup.Do("refresh", func() (interface{}, error) {
		return m.doRefresh(ctx, refreshToken), nil
	})
	return ok.(bool)
}

func (m *Manager) doRefresh(ctx context.Context, refreshToken string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, err := m.exchanger.Refresh(ctx, refreshToken)
	if err != nil {
		logging.Warn("Auth", "Token refresh failed: %v", err)
		m.invalidateLocked("refresh_failed")
		return false
	}

	m.session.AccessToken = token.AccessToken
	m.session.TokenExpiresAt = token.Expiry
	// Some providers rotate the refresh token, some don't; keep the
	// prior one when the response omits it.
	m.session.RefreshToken = refreshToken
	if token.RefreshToken != "" {
		m.session.RefreshToken = token.RefreshToken
	}
	m.handle.SetTokens(m.session.AccessToken, m.session.RefreshToken, m.session.TokenExpiresAt)

	if err := m.store.Save(NewRecord(m.session)); err != nil {
		logging.Warn("Auth", "Failed to persist refreshed session: %v", err)
	}

	m.events.Emit(EventTokenRefreshed, m.session.UserID,
		"expires_at", m.session.TokenExpiresAt.Format(time.RFC3339))
	return true
}

// AuthHeaders returns the Authorization and X-Tidal-Token headers for
// the current access token. The duplication is deliberate: the API has
// historically accepted either header name.
func (m *Manager) AuthHeaders() (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.AccessToken == "" {
		return nil, ErrNoAccessToken
	}

	return map[string]string{
		"Authorization": "Bearer " + m.session.AccessToken,
		"X-Tidal-Token": m.session.AccessToken,
	}, nil
}

// SessionHandle returns the live API session handle for the service
// layer. It fails with ErrNotAuthenticated unless a valid session is
// held; this is the sole hand-off point to the catalog component.
func (m *Manager) SessionHandle(ctx context.Context) (tidal.SessionHandle, error) {
	if !m.IsAuthenticated(ctx) {
		return nil, ErrNotAuthenticated
	}
	return m.handle, nil
}

// UserInfo returns identity and subscription fields read from the live
// session, never from stale cached state. Returns nil when not
// authenticated.
func (m *Manager) UserInfo(ctx context.Context) *tidal.UserProfile {
	if !m.IsAuthenticated(ctx) {
		return nil
	}

	profile, err := m.handle.UserProfile(ctx)
	if err != nil {
		logging.Warn("Auth", "Failed to read user profile: %v", err)
		return nil
	}
	return profile
}

// CurrentUserID returns the user id of the held session, or empty when
// unauthenticated. It performs no network calls.
func (m *Manager) CurrentUserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.UserID
}

// Logout revokes the tokens best-effort, then unconditionally clears
// the in-memory session and the persisted file. It is idempotent;
// logging out when already logged out is a no-op.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events.Emit(EventLogoutStarted, m.session.UserID)

	if m.session.RefreshToken != "" || m.session.AccessToken != "" {
		if err := m.revokeLocked(ctx); err != nil {
			// Revocation failures are logged, never raised; local
			// state is cleared regardless.
			m.events.Emit(EventTokenRevokeFailed, m.session.UserID, "error", err.Error())
			logging.Warn("Auth", "Token revocation failed: %v", err)
		}
	}

	m.session = &Session{CountryCode: DefaultCountryCode}
	m.handle.ClearTokens()
	m.store.Clear()

	m.events.Emit(EventLogoutCompleted, "")
}

// revokeLocked posts the refresh token (or, failing that, the access
// token) to the revocation endpoint.
func (m *Manager) revokeLocked(ctx context.Context) error {
	if m.cfg.RevokeURL == "" {
		return nil
	}

	token := m.session.RefreshToken
	tokenTypeHint := "refresh_token"
	if token == "" {
		token = m.session.AccessToken
		tokenTypeHint = "access_token"
	}

	data := url.Values{
		"token":           {token},
		"token_type_hint": {tokenTypeHint},
		"client_id":       {m.cfg.ClientID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.RevokeURL, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("revocation endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Invalidate clears the session with the given reason. Exposed for the
// tool layer to force re-authentication after a hard API failure.
func (m *Manager) Invalidate(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidateLocked(reason)
}

// invalidateLocked is the single funnel for session teardown: it
// atomically clears all in-memory fields, clears the persisted file,
// and emits a security event carrying the triggering reason.
func (m *Manager) invalidateLocked(reason string) {
	userID := m.session.UserID
	m.session = &Session{CountryCode: DefaultCountryCode}
	m.handle.ClearTokens()
	m.store.Clear()
	m.events.Emit(EventSessionInvalidated, userID, "reason", reason)
}
