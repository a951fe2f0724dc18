package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check gateway health",
		Long:  "Check that the gateway is up and whether its event store is ready",
		RunE:  runHealth,
	}
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Monitor.Timeout)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Checking health of %s...\n", cfg.Monitor.ServerURL)

	health, err := client.GetHealth(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}
	fmt.Fprintf(out, "✅ %s is %s\n", health.Source, health.Status)

	ready, err := client.GetReady(ctx)
	if err != nil {
		return fmt.Errorf("failed to check readiness: %w", err)
	}
	if ready.Ready {
		fmt.Fprintf(out, "✅ Store ready (%s)\n", ready.DB.Backend)
		return nil
	}

	fmt.Fprintf(out, "❌ Store not ready (%s/%s)\n", ready.DB.Backend, ready.DB.Mode)
	if ready.DB.Detail != "" {
		fmt.Fprintf(out, "Detail: %s\n", ready.DB.Detail)
	}
	return fmt.Errorf("store not ready")
}
