package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/thechompapp/chompauth/auth"
	"github.com/thechompapp/chompauth/remote"
	bboltstore "github.com/thechompapp/chompauth/store/bbolt"
)

// Version is the CLI version, overridden at build time with -ldflags.
var Version = "dev"

var (
	dataDir   string
	serverURL string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "chompauth",
	Short: "Client-side authentication engine for the Chomp discovery app",
	Long: `chompauth drives the Chomp client authentication engine from the command
line: log in and out against a Chomp backend, inspect session and
permission state, and replay mutations queued while offline.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "Directory for persistent engine state")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8090", "Base URL of the remote authentication service")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chompauth"
	}
	return filepath.Join(home, ".chompauth")
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openEngine constructs the engine over the CLI's bbolt state database.
// The caller must call the returned cleanup when done.
func openEngine() (*auth.Engine, func(), error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := bboltstore.NewFromFile(filepath.Join(dataDir, "state.db"), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open state database: %w", err)
	}

	svc := remote.NewClient(serverURL)
	engine := auth.New(svc, st, auth.WithLogger(newLogger()))
	cleanup := func() {
		engine.Close()
		st.Close()
	}
	return engine, cleanup, nil
}
