package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	flagConfig string
	flagDebug  bool

	rootCmd = &cobra.Command{
		Use:   "skiff",
		Short: "Single-VM Lifecycle Engine",
		Long: `Skiff - Single-VM Lifecycle Engine

Skiff converges one named VM at a time onto a desired state, with no
state file to drift out of date. Your cloud IS the state: every run
looks up what actually exists before it acts, journals what it decided,
and retries transient provider failures with bounded backoff.

Bring a VM up, take it down, watch it continuously, and package the
workspace it should run.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// init sets up the root command
func init() {
	rootCmd.SetVersionTemplate(`Skiff {{.Version}} - Single-VM Lifecycle Engine
`)
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
}

// applyLogLevel resolves the global log level from config and flags.
// The --debug flag wins over the config file.
func applyLogLevel(level string) {
	resolved := zerolog.InfoLevel
	if level != "" {
		if parsed, err := zerolog.ParseLevel(level); err == nil {
			resolved = parsed
		}
	}
	if flagDebug {
		resolved = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(resolved)
}
