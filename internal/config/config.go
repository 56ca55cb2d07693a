package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults for every configuration knob. Only the client id has no
// default; the subsystem is usable with nothing else configured.
const (
	DefaultAuthURL      = "https://login.tidal.com/authorize"
	DefaultTokenURL     = "https://auth.tidal.com/v1/oauth2/token"
	DefaultRevokeURL    = "https://auth.tidal.com/v1/oauth2/revoke"
	DefaultAPIURL       = "https://api.tidal.com/v1"
	DefaultCallbackPort = 8080
	DefaultCallbackPath = "/callback"
	DefaultAuthTimeout  = 300 * time.Second
	DefaultLogLevel     = "info"
)

// DefaultCacheDirName is the directory under the user home that holds
// the persisted session file.
const DefaultCacheDirName = ".tidal-mcp"

// Config holds the runtime configuration for the tidal-mcp server.
// All values come from TIDAL_* environment variables with documented
// defaults; only ClientID is required.
type Config struct {
	// ClientID is the OAuth client id registered with Tidal. Required.
	ClientID string

	// ClientSecret is the optional OAuth client secret. The PKCE flow
	// does not need one, but some client registrations carry it.
	ClientSecret string

	// AuthURL is the OAuth authorization endpoint.
	AuthURL string

	// TokenURL is the OAuth token endpoint.
	TokenURL string

	// RevokeURL is the OAuth token revocation endpoint.
	RevokeURL string

	// APIURL is the base URL of the Tidal REST API.
	APIURL string

	// CallbackPort is the local port for the OAuth callback listener.
	CallbackPort int

	// CallbackPath is the path the OAuth redirect lands on.
	CallbackPath string

	// SessionFile is the path of the persisted session JSON file.
	SessionFile string

	// CacheDir is the directory holding the session file and other
	// local state.
	CacheDir string

	// AuthTimeout bounds the wait for the OAuth callback.
	AuthTimeout time.Duration

	// LogLevel is the application log level (debug, info, warn, error).
	LogLevel string
}

// Load reads configuration from the environment. It returns an error
// when the required client id is missing so misconfiguration surfaces
// at construction time rather than at first use.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TIDAL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("auth-url", DefaultAuthURL)
	v.SetDefault("token-url", DefaultTokenURL)
	v.SetDefault("revoke-url", DefaultRevokeURL)
	v.SetDefault("api-url", DefaultAPIURL)
	v.SetDefault("callback-port", DefaultCallbackPort)
	v.SetDefault("callback-path", DefaultCallbackPath)
	v.SetDefault("auth-timeout", DefaultAuthTimeout)
	v.SetDefault("log-level", DefaultLogLevel)

	cfg := &Config{
		ClientID:     strings.TrimSpace(v.GetString("client-id")),
		ClientSecret: v.GetString("client-secret"),
		AuthURL:      v.GetString("auth-url"),
		TokenURL:     v.GetString("token-url"),
		RevokeURL:    v.GetString("revoke-url"),
		APIURL:       strings.TrimSuffix(v.GetString("api-url"), "/"),
		CallbackPort: v.GetInt("callback-port"),
		CallbackPath: v.GetString("callback-path"),
		SessionFile:  v.GetString("session-file"),
		CacheDir:     v.GetString("cache-dir"),
		AuthTimeout:  v.GetDuration("auth-timeout"),
		LogLevel:     v.GetString("log-level"),
	}

	if cfg.ClientID == "" {
		return nil, fmt.Errorf("TIDAL_CLIENT_ID is required")
	}

	if cfg.CacheDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		cfg.CacheDir = filepath.Join(homeDir, DefaultCacheDirName)
	}

	if cfg.SessionFile == "" {
		cfg.SessionFile = filepath.Join(cfg.CacheDir, "session.json")
	}

	if !strings.HasPrefix(cfg.CallbackPath, "/") {
		cfg.CallbackPath = "/" + cfg.CallbackPath
	}

	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = DefaultAuthTimeout
	}

	return cfg, nil
}

// RedirectURI returns the redirect URI registered for the local
// callback listener.
func (c *Config) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d%s", c.CallbackPort, c.CallbackPath)
}
