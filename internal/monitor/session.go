package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rmacdonaldsmith/hookwatch/pkg/monitor"
)

// Default session settings.
const (
	DefaultHistoryLimit     = 80
	DefaultFallbackDeadline = 4 * time.Second
	DefaultPollInterval     = 2500 * time.Millisecond
	DefaultInboxSize        = 256
)

// ErrSessionStopped is returned by commands sent to a session whose Run has returned.
var ErrSessionStopped = errors.New("session stopped")

// Config configures a Session.
type Config struct {
	// History is the fixed query used by the initial load and every poll.
	History monitor.HistoryQuery

	// FallbackDeadline is how long the push channel may stay silent before
	// the session gives up on it.
	FallbackDeadline time.Duration

	// PollInterval is the polling cadence once push is abandoned.
	PollInterval time.Duration

	// InboxSize bounds the loop's message queue.
	InboxSize int
}

// DefaultConfig returns the standard monitor settings.
func DefaultConfig() Config {
	return Config{
		History: monitor.HistoryQuery{
			Limit:          DefaultHistoryLimit,
			IncludeBody:    true,
			IncludePayload: true,
		},
		FallbackDeadline: DefaultFallbackDeadline,
		PollInterval:     DefaultPollInterval,
		InboxSize:        DefaultInboxSize,
	}
}

// SetDefaults fills zero-valued durations and sizes.
func (c *Config) SetDefaults() {
	if c.History.Limit == 0 {
		c.History.Limit = DefaultHistoryLimit
	}
	if c.FallbackDeadline == 0 {
		c.FallbackDeadline = DefaultFallbackDeadline
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.InboxSize == 0 {
		c.InboxSize = DefaultInboxSize
	}
}

// Option customizes a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithMetrics sets the collectors the session reports to.
func WithMetrics(metrics *Metrics) Option {
	return func(s *Session) { s.metrics = metrics }
}

// WithScheduler replaces the wall-clock timers.
func WithScheduler(scheduler Scheduler) Option {
	return func(s *Session) { s.scheduler = scheduler }
}

// Session is one monitor session. It owns the event cache and drives the
// connection state machine:
//
//	INITIAL --history ok--> CONNECTING --first push message--> LIVE
//	CONNECTING --transport error | deadline--> POLLING
//	LIVE --transport error--> POLLING
//
// POLLING is terminal. A failed initial history load ends Run with an error
// and nothing else is attempted.
//
// All cache mutation and all presenter calls happen on the goroutine running
// Run. Push readers, timers and commands only post messages to its inbox.
type Session struct {
	cfg       Config
	store     *Store
	feed      *feed
	history   *HistoryLoader
	push      *PushClient
	presenter monitor.Presenter
	scheduler Scheduler
	metrics   *Metrics
	logger    *slog.Logger

	inbox   chan message
	done    chan struct{}
	started atomic.Bool
	state   atomic.Int32

	// Owned by the loop goroutine.
	gotFirst  bool
	pushOpen  bool
	deadline  Timer
	pollTimer Timer
}

// NewSession creates a session. Nothing happens until Run is called.
func NewSession(cfg Config, source monitor.HistorySource, dialer monitor.PushDialer, presenter monitor.Presenter, opts ...Option) *Session {
	cfg.SetDefaults()

	s := &Session{
		cfg:       cfg,
		store:     NewStore(),
		presenter: presenter,
		scheduler: wallClock{},
		inbox:     make(chan message, cfg.InboxSize),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}

	s.feed = &feed{store: s.store, presenter: presenter, metrics: s.metrics}
	s.history = newHistoryLoader(source, cfg.History, s.feed, s.logger)
	s.push = newPushClient(dialer, s.logger)
	return s
}

// Run loads history, opens the push channel and processes deliveries until
// ctx is cancelled. The only error it returns is a failed initial load (or a
// second call to Run).
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return monitor.ErrSessionRunning
	}
	defer close(s.done)
	defer s.teardown()

	s.setState(monitor.StateInitial)
	s.presenter.SetMode(monitor.ModeInitial)
	s.presenter.SetStatus(monitor.Status{Text: "Loading history…", Level: monitor.LevelWarn})

	added, err := s.history.Load(ctx)
	if err != nil {
		return fmt.Errorf("initial history load: %w", err)
	}
	s.logger.Info("history loaded", "new", added, "cached", s.store.Len())
	s.presenter.SetStatus(monitor.Status{Text: "History loaded", Level: monitor.LevelOK})

	s.connect(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session stopped", "state", s.State())
			return nil
		case m := <-s.inbox:
			s.handle(ctx, m)
		}
	}
}

// State returns the current connection state.
func (s *Session) State() monitor.State {
	return monitor.State(s.state.Load())
}

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Lookup returns the cached event for key.
func (s *Session) Lookup(key string) (monitor.Event, bool) {
	return s.store.Get(key)
}

// Detail builds the selection view for key from the cache only.
func (s *Session) Detail(key string) monitor.Detail {
	evt, ok := s.store.Get(key)
	return monitor.NewDetail(key, evt, ok)
}

// Cached returns the number of cached events.
func (s *Session) Cached() int {
	return s.store.Len()
}

// Reset clears the visible list and the rendered set. Cached events stay
// available to Detail. It returns once the presenter has been reset.
func (s *Session) Reset(ctx context.Context) error {
	done := make(chan struct{})
	if err := s.send(ctx, resetView{done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-s.done:
		return ErrSessionStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh triggers one extra history fetch. Its outcome is reported like a poll.
func (s *Session) Refresh(ctx context.Context) error {
	return s.send(ctx, refreshRequested{})
}

func (s *Session) send(ctx context.Context, m message) error {
	select {
	case <-s.done:
		return ErrSessionStopped
	default:
	}
	select {
	case s.inbox <- m:
		return nil
	case <-s.done:
		return ErrSessionStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post is used by timers and push readers.
func (s *Session) post(m message) {
	select {
	case s.inbox <- m:
	case <-s.done:
	}
}

func (s *Session) handle(ctx context.Context, m message) {
	defer func() {
		if r := recover(); r != nil {
			s.fail(fmt.Errorf("panic handling %T: %v", m, r))
		}
	}()

	switch m := m.(type) {
	case pushDelivered:
		if !s.pushOpen {
			s.logger.Debug("push message after close ignored", "key", m.event.Key())
			return
		}
		s.markLive()
		s.feed.deliver(originPush, m.event)

	case pushDiscarded:
		if !s.pushOpen {
			return
		}
		s.markLive()
		s.metrics.Discarded.Inc()
		s.logger.Debug("discarded malformed push message", "error", m.err)

	case transportFailed:
		s.fallback(reasonTransportError, m.err)

	case deadlineElapsed:
		// A message that won the race already cancelled the fallback.
		if s.gotFirst {
			return
		}
		s.fallback(reasonDeadline, nil)

	case pollTick:
		s.fetch(ctx, "poll")

	case refreshRequested:
		s.fetch(ctx, "refresh")

	case historyFetched:
		if m.err != nil {
			s.metrics.Polls.WithLabelValues("error").Inc()
			s.fail(fmt.Errorf("history %s: %w", m.origin, m.err))
			return
		}
		s.metrics.Polls.WithLabelValues("ok").Inc()
		s.history.Ingest(m.events)

	case resetView:
		defer close(m.done)
		s.store.ResetView()
		s.presenter.Reset()
		s.logger.Debug("view reset", "cached", s.store.Len())
	}
}

func (s *Session) connect(ctx context.Context) {
	s.setState(monitor.StateConnecting)
	s.presenter.SetMode(monitor.ModePush)
	s.presenter.SetStatus(monitor.Status{Text: "Connecting…", Level: monitor.LevelWarn})

	// The deadline covers the handshake too: a dial that stalls is treated
	// like a silent channel.
	s.deadline = s.scheduler.AfterFunc(s.cfg.FallbackDeadline, func() {
		s.post(deadlineElapsed{})
	})
	s.pushOpen = true
	s.push.Open(ctx, s.post)
}

func (s *Session) markLive() {
	if s.gotFirst {
		return
	}
	s.gotFirst = true
	s.stopDeadline()
	s.setState(monitor.StateLive)
	s.presenter.SetStatus(monitor.Status{Text: "Connected (live)", Level: monitor.LevelOK})
	s.logger.Info("push channel live")
}

func (s *Session) fallback(reason string, err error) {
	s.closePush()
	s.stopDeadline()
	if s.pollTimer != nil {
		s.logger.Debug("already polling", "reason", reason, "error", err)
		return
	}
	s.metrics.Fallbacks.WithLabelValues(reason).Inc()
	s.logger.Warn("push unavailable, falling back to polling",
		"reason", reason,
		"error", err,
		"interval", s.cfg.PollInterval,
	)
	s.startPolling()
}

// startPolling is idempotent: at most one polling timer exists per session.
func (s *Session) startPolling() {
	if s.pollTimer != nil {
		return
	}
	s.setState(monitor.StatePolling)
	s.presenter.SetMode(monitor.ModePolling)
	s.presenter.SetStatus(monitor.Status{Text: "Polling", Level: monitor.LevelWarn})
	s.pollTimer = s.scheduler.Every(s.cfg.PollInterval, func() {
		s.post(pollTick{})
	})
}

func (s *Session) closePush() {
	s.pushOpen = false
	s.push.Close()
}

// fetch runs the request off the loop; the result comes back as a message.
func (s *Session) fetch(ctx context.Context, origin string) {
	go func() {
		events, err := s.history.Fetch(ctx)
		s.post(historyFetched{origin: origin, events: events, err: err})
	}()
}

// fail is the last-resort error boundary: the error is logged and shown in
// the status label, and the session keeps running.
func (s *Session) fail(err error) {
	s.logger.Error("session error", "error", err)
	s.presenter.SetStatus(monitor.Status{Text: "error: " + err.Error(), Level: monitor.LevelBad})
}

func (s *Session) stopDeadline() {
	if s.deadline != nil {
		s.deadline.Stop()
		s.deadline = nil
	}
}

func (s *Session) teardown() {
	s.closePush()
	s.stopDeadline()
	if s.pollTimer != nil {
		s.pollTimer.Stop()
	}
}

func (s *Session) setState(state monitor.State) {
	s.state.Store(int32(state))
	s.metrics.State.Set(float64(state))
}
