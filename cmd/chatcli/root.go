package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"realtime-chat/internal/client"
	"realtime-chat/internal/devicestore"
	"realtime-chat/internal/logger"
)

var (
	version = "dev"

	serverURL string
	dataDir   string
	verbose   bool

	store *devicestore.Store
)

var errSignedOut = errors.New("not signed in: run 'chatcli login <token>' or 'chatcli dev-token'")

var rootCmd = &cobra.Command{
	Use:     "chatcli",
	Short:   "Terminal client for the realtime chat service",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		if err := logger.Init(level, "console"); err != nil {
			return err
		}
		var err error
		store, err = devicestore.Open(dataDir)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if store != nil {
		_ = store.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	home, _ := os.UserHomeDir()
	defaultServer := os.Getenv("CHAT_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8083"
	}
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", defaultServer, "chat service base URL")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", filepath.Join(home, ".chatcli"), "local device storage directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// signedIn returns a client for the saved session. The PIN gate, when set,
// is checked first.
func signedIn() (*client.Client, error) {
	if err := unlock(); err != nil {
		return nil, err
	}
	token, err := store.Token()
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, errSignedOut
	}
	return client.New(serverURL, token), nil
}
