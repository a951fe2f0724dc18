package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
)

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show delivery totals by source, kind and namespace",
		Long:  "Show delivery totals. Gateways with a secret configured require an admin --token.",
		RunE:  runStats,
	}
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Monitor.Timeout)
	defer cancel()

	resp, err := client.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch stats: %w", err)
	}

	out := cmd.OutOrStdout()
	if !resp.Ready {
		fmt.Fprintf(out, "⚠️  Store not ready (%s/%s): %s\n", resp.DB.Backend, resp.DB.Mode, resp.DB.Detail)
		return nil
	}

	fmt.Fprintf(out, "📊 %d events stored (%s)\n", resp.Stats.EventsTotal, resp.DB.Backend)
	printCounts(out, "By source", resp.Stats.BySource)
	printCounts(out, "By kind", resp.Stats.ByKind)
	printCounts(out, "By namespace", resp.Stats.ByNamespace)
	return nil
}

// printCounts lists counts largest first, ties by name.
func printCounts(out io.Writer, title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	fmt.Fprintf(out, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(out, "  %-24s %d\n", k, counts[k])
	}
}
