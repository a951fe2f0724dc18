package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/hookwatch/internal/config"
	"github.com/rmacdonaldsmith/hookwatch/pkg/httpclient"
)

var (
	// Global flags
	configPath string
	serverURL  string
	token      string
	timeout    time.Duration
	logLevel   string

	// Set up by initializeClient
	cfg    *config.Config
	logger *slog.Logger
	client *httpclient.Client
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hookwatch",
		Short: "Watch webhook deliveries arriving at a hookwatch gateway",
		Long: `hookwatch shows the recent webhook deliveries stored by a gateway and
then follows new ones as they arrive, over SSE or WebSocket, falling back to
polling when the live feed is unavailable.`,
		PersistentPreRunE: initializeClient,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Gateway URL (default http://localhost:8000)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Admin JWT, needed only for stats on secured gateways")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Request timeout (default 30s)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newLatestCommand())
	rootCmd.AddCommand(newShowCommand())
	rootCmd.AddCommand(newStatsCommand())
	rootCmd.AddCommand(newHealthCommand())

	return rootCmd
}

// initializeClient loads the config, applies flag overrides and builds the
// gateway client.
func initializeClient(cmd *cobra.Command, args []string) error {
	// Skip client initialization for help commands
	if cmd.Name() == "help" || cmd.Parent() == nil {
		return nil
	}

	var err error
	if configPath != "" {
		cfg, err = config.LoadWithDefaults(configPath)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
	}

	if serverURL != "" {
		cfg.Monitor.ServerURL = serverURL
	}
	if token != "" {
		cfg.Monitor.Token = token
	}
	if timeout != 0 {
		cfg.Monitor.Timeout = timeout
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	applyWatchFlags(cmd, &cfg.Monitor)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err = config.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	client, err = httpclient.NewClient(cfg.Monitor.ClientConfig())
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}
