package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/hookwatch/internal/config"
)

const (
	// Application info
	appName    = "hookwatch-gateway"
	appVersion = "0.1.0"
)

var (
	// Global flags
	configPath string
	secretKey  string
	logLevel   string
	logFormat  string

	// Set up by loadConfig
	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               appName,
		Short:             "Receive, store and broadcast webhook deliveries",
		Version:           appVersion,
		PersistentPreRunE: loadConfig,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&secretKey, "secret", "", "JWT secret for admin endpoints (env HOOKWATCH_SECRET)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newTokenCommand())

	return rootCmd
}

// loadConfig reads the config file and applies flag and environment overrides.
func loadConfig(cmd *cobra.Command, args []string) error {
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

	if env := os.Getenv("HOOKWATCH_SECRET"); env != "" {
		cfg.Gateway.SecretKey = env
	}
	if env := os.Getenv("HOOKWATCH_POSTGRES_DSN"); env != "" {
		cfg.Store.PostgresDSN = env
	}
	if secretKey != "" {
		cfg.Gateway.SecretKey = secretKey
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	applyServeFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err = config.NewLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}
