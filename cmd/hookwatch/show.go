package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/hookwatch/internal/presenter"
	"github.com/rmacdonaldsmith/hookwatch/pkg/httpclient"
	"github.com/rmacdonaldsmith/hookwatch/pkg/monitor"
)

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <event-id>",
		Short: "Show one stored delivery with headers, body and payload",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Monitor.Timeout)
	defer cancel()

	id := args[0]
	evt, err := client.GetEvent(ctx, id)
	switch {
	case errors.Is(err, httpclient.ErrEventNotFound):
		presenter.RenderDetail(cmd.OutOrStdout(), monitor.NewDetail(id, monitor.Event{}, false))
		return err
	case err != nil:
		return fmt.Errorf("failed to fetch event: %w", err)
	}

	presenter.RenderDetail(cmd.OutOrStdout(), monitor.NewDetail(id, evt, true))
	return nil
}
