package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/hookwatch/internal/presenter"
	"github.com/rmacdonaldsmith/hookwatch/pkg/monitor"
)

var latestLimit int

func newLatestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "List the most recent stored deliveries",
		RunE:  runLatest,
	}

	cmd.Flags().IntVar(&latestLimit, "limit", 20, "Number of events to list (1-200)")

	return cmd
}

func runLatest(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Monitor.Timeout)
	defer cancel()

	events, err := client.LatestEvents(ctx, monitor.HistoryQuery{Limit: latestLimit})
	if err != nil {
		return fmt.Errorf("failed to fetch events: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "📭 No events stored")
		return nil
	}

	fmt.Fprintf(out, "📋 %d events, newest first:\n", len(events))
	for _, evt := range events {
		fmt.Fprintf(out, "  %s\n", presenter.FormatRow(evt))
	}
	return nil
}
