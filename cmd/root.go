package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed.
	ExitCodeAuthFailed = 3
)

// errAuthRequired marks commands that need a valid session but found none.
var errAuthRequired = errors.New("not authenticated")

// errAuthFailed marks a failed OAuth flow.
var errAuthFailed = errors.New("authentication failed")

// rootCmd represents the base command for the tidal-mcp application.
var rootCmd = &cobra.Command{
	Use:   "tidal-mcp",
	Short: "MCP server for the Tidal music streaming service",
	Long: `tidal-mcp exposes Tidal search, favorites, playlists, and
recommendations as MCP tools for AI assistants, handling the Tidal
OAuth login and session lifecycle locally.`,
	// SilenceUsage prevents Cobra from printing the usage message on
	// errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from the
// main package to inject the build-time version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "tidal-mcp version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps error types to semantic exit codes for scripting.
func getExitCode(err error) int {
	if errors.Is(err, errAuthRequired) {
		return ExitCodeAuthRequired
	}
	if errors.Is(err, errAuthFailed) {
		return ExitCodeAuthFailed
	}
	return ExitCodeError
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
