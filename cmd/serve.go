package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tidal-mcp/internal/auth"
	"tidal-mcp/internal/config"
	"tidal-mcp/internal/mcpserver"
	"tidal-mcp/internal/tidal"
	"tidal-mcp/pkg/logging"
)

// shutdownTimeout bounds graceful shutdown of the HTTP transports.
const shutdownTimeout = 10 * time.Second

var (
	serveTransport string
	serveHost      string
	servePort      int
	serveDebug     bool
)

// serveCmd starts the MCP server. This is the main command of
// tidal-mcp; an MCP client (Claude Desktop, Cursor, ...) launches it
// with the stdio transport, or connects over HTTP when --transport
// selects sse or streamable-http.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Tidal MCP server",
	Long: `Starts the MCP server exposing Tidal tools to AI assistants.

By default the server speaks MCP over stdio, which is what MCP client
configurations expect. Use --transport sse or --transport
streamable-http together with --host/--port to serve over HTTP instead.

Configuration comes from TIDAL_* environment variables; only
TIDAL_CLIENT_ID is required. Authentication happens lazily: the first
tool call that needs a session triggers the browser login flow, or run
the tidal_login tool (or 'tidal-mcp auth login') explicitly.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if serveDebug {
		level = "debug"
	}
	logging.Init(logging.ParseLevel(level), os.Stderr)

	client := tidal.NewClient(cfg.APIURL, nil)
	manager, err := auth.NewManager(cfg, client)
	if err != nil {
		return fmt.Errorf("failed to initialize authentication: %w", err)
	}

	server := mcpserver.New(mcpserver.Config{
		Transport: serveTransport,
		Host:      serveHost,
		Port:      servePort,
		Version:   GetVersion(),
	}, manager, tidal.NewService(client))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logging.Info("Serve", "Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Stop(shutdownCtx)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveTransport, "transport", mcpserver.TransportStdio,
		"Transport to use (stdio, sse, streamable-http)")
	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "Host to bind for HTTP transports")
	serveCmd.Flags().IntVar(&servePort, "port", 8090, "Port to bind for HTTP transports")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
}
