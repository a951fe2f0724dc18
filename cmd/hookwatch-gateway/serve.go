package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/hookwatch/internal/config"
	"github.com/rmacdonaldsmith/hookwatch/internal/eventstore"
	"github.com/rmacdonaldsmith/hookwatch/internal/gateway"
)

var (
	serveAddr        string
	serveBackend     string
	serveSQLitePath  string
	servePostgresDSN string
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE:  runServe,
	}

	cmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default :8000)")
	cmd.Flags().StringVar(&serveBackend, "store", "", "Event store backend: memory, sqlite or postgres")
	cmd.Flags().StringVar(&serveSQLitePath, "sqlite-path", "", "SQLite database file")
	cmd.Flags().StringVar(&servePostgresDSN, "postgres-dsn", "", "Postgres connection string (env HOOKWATCH_POSTGRES_DSN)")

	return cmd
}

// applyServeFlags copies explicitly set serve flags over the config.
func applyServeFlags(cmd *cobra.Command, c *config.Config) {
	if cmd.Name() != "serve" {
		return
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		c.Gateway.Addr = serveAddr
	}
	if flags.Changed("store") {
		c.Store.Backend = serveBackend
	}
	if flags.Changed("sqlite-path") {
		c.Store.SQLitePath = serveSQLitePath
	}
	if flags.Changed("postgres-dsn") {
		c.Store.PostgresDSN = servePostgresDSN
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	logger.Info("starting", "app", appName, "version", appVersion, "addr", cfg.Gateway.Addr, "store", cfg.Store.Backend)

	store, err := eventstore.Open(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("error closing event store", "error", err)
		}
	}()

	server := gateway.NewServer(store, cfg.Gateway, logger, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("gateway stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.Gateway.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("graceful stop: %w", err)
	}
	if err := <-errCh; err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}
