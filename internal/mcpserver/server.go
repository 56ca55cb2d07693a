package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"tidal-mcp/internal/auth"
	"tidal-mcp/internal/tidal"
	"tidal-mcp/pkg/logging"
)

// Transport names accepted by Config.Transport.
const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
)

// Config holds the MCP server transport settings.
type Config struct {
	// Transport selects stdio, sse, or streamable-http.
	Transport string

	// Host and Port apply to the HTTP transports.
	Host string
	Port int

	// Version is reported to MCP clients during initialization.
	Version string
}

// Server exposes the Tidal tools over the Model Context Protocol. All
// collaborators are injected; the server holds no authentication state
// of its own.
type Server struct {
	config  Config
	auth    *auth.Manager
	catalog *tidal.Service
	server  *server.MCPServer

	sseServer            *server.SSEServer
	streamableHTTPServer *server.StreamableHTTPServer

	mu      sync.Mutex
	started bool
}

// New creates the MCP server and registers all tools.
func New(config Config, authManager *auth.Manager, catalog *tidal.Service) *Server {
	if config.Version == "" {
		config.Version = "dev"
	}

	mcpServer := server.NewMCPServer(
		"tidal-mcp",
		config.Version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
	)

	s := &Server{
		config:  config,
		auth:    authManager,
		catalog: catalog,
		server:  mcpServer,
	}
	s.registerTools()

	return s
}

// Start runs the configured transport. The stdio transport blocks until
// the client closes the connection; the HTTP transports block until
// Stop is called or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("mcp server already started")
	}
	s.started = true

	switch s.config.Transport {
	case TransportSSE:
		addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
		baseURL := fmt.Sprintf("http://%s", addr)
		s.sseServer = server.NewSSEServer(
			s.server,
			server.WithBaseURL(baseURL),
			server.WithSSEEndpoint("/sse"),
			server.WithMessageEndpoint("/message"),
			server.WithKeepAlive(true),
			server.WithKeepAliveInterval(30*time.Second),
		)
		sseServer := s.sseServer
		s.mu.Unlock()

		logging.Info("MCPServer", "Starting MCP server with SSE transport on %s", addr)
		if err := sseServer.Start(addr); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil

	case TransportStreamableHTTP:
		addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
		s.streamableHTTPServer = server.NewStreamableHTTPServer(s.server)
		streamableServer := s.streamableHTTPServer
		s.mu.Unlock()

		logging.Info("MCPServer", "Starting MCP server with streamable-http transport on %s", addr)
		if err := streamableServer.Start(addr); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil

	case TransportStdio, "":
		s.mu.Unlock()
		logging.Info("MCPServer", "Starting MCP server with stdio transport")
		return server.ServeStdio(s.server)

	default:
		s.mu.Unlock()
		return fmt.Errorf("unknown transport %q (expected %s, %s, or %s)",
			s.config.Transport, TransportStdio, TransportSSE, TransportStreamableHTTP)
	}
}

// Stop shuts down the HTTP transports. The stdio transport stops when
// its stdin closes.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sseServer != nil {
		if err := s.sseServer.Shutdown(ctx); err != nil {
			return err
		}
		s.sseServer = nil
	}
	if s.streamableHTTPServer != nil {
		if err := s.streamableHTTPServer.Shutdown(ctx); err != nil {
			return err
		}
		s.streamableHTTPServer = nil
	}

	s.started = false
	return nil
}
