package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/hookwatch/internal/config"
	"github.com/rmacdonaldsmith/hookwatch/internal/monitor"
	"github.com/rmacdonaldsmith/hookwatch/internal/presenter"
	"github.com/rmacdonaldsmith/hookwatch/pkg/httpclient"
)

var (
	watchTransport   string
	watchSource      string
	watchLimit       int
	watchDeadline    time.Duration
	watchPoll        time.Duration
	watchMetricsAddr string
	watchQuiet       bool
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow webhook deliveries live",
		Long: `Load recent history, then follow new deliveries as they arrive.

While watching, type a command and press enter:
  l          list the visible events
  s <id>     show one event from the local cache
  r          clear the view (cached events stay available to s)
  f          fetch history once more
  q          quit`,
		RunE: runWatch,
	}

	cmd.Flags().StringVar(&watchTransport, "transport", "", "Live feed transport: sse or websocket")
	cmd.Flags().StringVar(&watchSource, "source", "", "Only follow deliveries from this source")
	cmd.Flags().IntVar(&watchLimit, "history-limit", 0, "Events fetched by each history request")
	cmd.Flags().DurationVar(&watchDeadline, "fallback-deadline", 0, "Silence allowed on the live feed before polling")
	cmd.Flags().DurationVar(&watchPoll, "poll-interval", 0, "Polling interval once the live feed is abandoned")
	cmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve monitor metrics on this address (e.g. :9100)")
	cmd.Flags().BoolVar(&watchQuiet, "quiet", false, "Do not echo each new event")

	return cmd
}

// applyWatchFlags copies explicitly set watch flags over the config.
func applyWatchFlags(cmd *cobra.Command, m *config.MonitorConfig) {
	if cmd.Name() != "watch" {
		return
	}
	flags := cmd.Flags()
	if flags.Changed("transport") {
		m.Transport = watchTransport
	}
	if flags.Changed("source") {
		m.Source = watchSource
	}
	if flags.Changed("history-limit") {
		m.HistoryLimit = watchLimit
	}
	if flags.Changed("fallback-deadline") {
		m.FallbackDeadline = watchDeadline
	}
	if flags.Changed("poll-interval") {
		m.PollInterval = watchPoll
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	view := presenter.NewTerminal(out)
	view.SetQuiet(watchQuiet)

	opts := []monitor.Option{monitor.WithLogger(logger)}
	if watchMetricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, monitor.WithMetrics(monitor.NewMetrics(reg)))
		go serveMetrics(ctx, watchMetricsAddr, reg)
	}

	dialer := httpclient.PushDialer{
		Client:    client,
		Transport: cfg.Monitor.Transport,
		Config:    httpclient.StreamConfig{Source: cfg.Monitor.Source},
	}
	session := monitor.NewSession(cfg.Monitor.SessionConfig(), client, dialer, view, opts...)

	fmt.Fprintf(out, "👀 Watching %s (%s)\n", cfg.Monitor.ServerURL, cfg.Monitor.Transport)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go readCommands(ctx, cancel, cmd.InOrStdin(), out, session, view)

	if err := session.Run(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "👋 Stopped")
	return nil
}

// readCommands drives the session from line commands until quit or EOF.
func readCommands(ctx context.Context, quit context.CancelFunc, in io.Reader, out io.Writer, session *monitor.Session, view *presenter.Terminal) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "l", "list":
			view.Render(out)
		case "s", "show":
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: s <id>")
				continue
			}
			presenter.RenderDetail(out, session.Detail(fields[1]))
		case "r", "reset":
			err = session.Reset(ctx)
		case "f", "refresh":
			err = session.Refresh(ctx)
		case "q", "quit":
			quit()
			return
		default:
			fmt.Fprintf(out, "unknown command %q\n", fields[0])
		}

		if errors.Is(err, monitor.ErrSessionStopped) || errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			fmt.Fprintf(out, "❌ %v\n", err)
		}
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "addr", addr, "error", err)
		fmt.Fprintf(os.Stderr, "⚠️  metrics server: %v\n", err)
	}
}
