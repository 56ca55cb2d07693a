package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"tidal-mcp/pkg/logging"
)

// DefaultHTTPTimeout is the default timeout for token endpoint calls.
const DefaultHTTPTimeout = 30 * time.Second

// defaultExpiresIn is assumed when the provider omits expires_in.
const defaultExpiresIn = 3600

// TokenExchanger performs the two token-endpoint operations of the
// PKCE flow: exchanging an authorization code and refreshing an access
// token. It makes exactly one well-formed outbound call per invocation
// and interprets exactly one response; network-level failures are the
// caller's concern.
type TokenExchanger struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewTokenExchanger creates a token exchange client. httpClient may be
// nil, in which case a client with a 30-second timeout is used.
func NewTokenExchanger(tokenURL, clientID, clientSecret string, httpClient *http.Client) *TokenExchanger {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &TokenExchanger{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
	}
}

// ExchangeCode swaps an authorization code for tokens. A non-200
// response or a response lacking an access token is a hard failure.
func (e *TokenExchanger) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*oauth2.Token, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"client_id":     {e.clientID},
		"code_verifier": {codeVerifier},
	}

	return e.doTokenRequest(ctx, data)
}

// Refresh obtains a new access token using a refresh token. A non-200
// response is a failure; the caller must treat it as "refresh
// impossible, re-authentication required".
func (e *TokenExchanger) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {e.clientID},
	}

	return e.doTokenRequest(ctx, data)
}

func (e *TokenExchanger) doTokenRequest(ctx context.Context, data url.Values) (*oauth2.Token, error) {
	if e.clientSecret != "" {
		data.Set("client_secret", e.clientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// The body may contain sensitive hints; log at debug, keep the
		// error message to the status code.
		logging.Debug("TokenExchange", "Token request failed: status=%d body=%s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		Scope        string `json:"scope"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token response contains no access token")
	}

	expiresIn := tokenResp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}

	return &oauth2.Token{
		AccessToken:  tokenResp.AccessToken,
		TokenType:    tokenResp.TokenType,
		RefreshToken: tokenResp.RefreshToken,
		Expiry:       time.Now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}
