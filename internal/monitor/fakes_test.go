package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/hookwatch/pkg/monitor"
)

func evt(id, source string) monitor.Event {
	return monitor.Event{EventID: id, Source: source}
}

// fakeSource serves queued batches; once the queue is empty it repeats the last one.
type fakeSource struct {
	mu      sync.Mutex
	batches [][]monitor.Event
	errs    []error
	calls   int
	queries []monitor.HistoryQuery
}

func (f *fakeSource) LatestEvents(ctx context.Context, q monitor.HistoryQuery) ([]monitor.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.calls
	f.calls++
	f.queries = append(f.queries, q)

	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	if idx >= len(f.batches) {
		idx = len(f.batches) - 1
	}
	return f.batches[idx], nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeChannel is a push channel driven by the test.
type fakeChannel struct {
	messages chan []byte
	errs     chan error

	mu     sync.Mutex
	closes int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		messages: make(chan []byte, 16),
		errs:     make(chan error, 1),
	}
}

func (c *fakeChannel) Messages() <-chan []byte { return c.messages }
func (c *fakeChannel) Errors() <-chan error    { return c.errs }

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeChannel) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type fakeDialer struct {
	mu      sync.Mutex
	channel *fakeChannel
	err     error
	dials   int
	aborted int

	// release, when set, stalls each dial until it is closed or the dial
	// context ends.
	release chan struct{}
}

func (d *fakeDialer) OpenPush(ctx context.Context) (monitor.PushChannel, error) {
	d.mu.Lock()
	d.dials++
	release, ch, err := d.release, d.channel, d.err
	d.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			d.mu.Lock()
			d.aborted++
			d.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) Aborted() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.aborted
}

// recordingPresenter keeps the visible list newest first, like the terminal view.
type recordingPresenter struct {
	mu       sync.Mutex
	rows     []string
	added    []string
	resets   int
	statuses []monitor.Status
	modes    []monitor.Mode
	panicOn  string
}

func (p *recordingPresenter) Add(e monitor.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panicOn != "" && e.Key() == p.panicOn {
		panic("render failed")
	}
	p.added = append(p.added, e.Key())
	p.rows = append([]string{e.Key()}, p.rows...)
}

func (p *recordingPresenter) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	p.rows = nil
}

func (p *recordingPresenter) SetStatus(s monitor.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, s)
}

func (p *recordingPresenter) SetMode(m monitor.Mode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modes = append(p.modes, m)
}

func (p *recordingPresenter) Rows() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.rows...)
}

func (p *recordingPresenter) Added() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.added...)
}

func (p *recordingPresenter) LastStatus() monitor.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.statuses) == 0 {
		return monitor.Status{}
	}
	return p.statuses[len(p.statuses)-1]
}

func (p *recordingPresenter) LastMode() monitor.Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.modes) == 0 {
		return ""
	}
	return p.modes[len(p.modes)-1]
}

// manualScheduler records timers; tests fire them explicitly.
type manualScheduler struct {
	mu        sync.Mutex
	oneShots  []*manualTimer
	intervals []*manualTimer
}

type manualTimer struct {
	mu    sync.Mutex
	d     time.Duration
	f     func()
	stops int
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
	return t.stops == 1
}

func (t *manualTimer) Stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

// Fire runs the callback whether or not the timer was stopped, which models
// a timer that expired just before Stop was called.
func (t *manualTimer) Fire() {
	t.f()
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{d: d, f: f}
	s.oneShots = append(s.oneShots, t)
	return t
}

func (s *manualScheduler) Every(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{d: d, f: f}
	s.intervals = append(s.intervals, t)
	return t
}

func (s *manualScheduler) OneShots() []*manualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*manualTimer(nil), s.oneShots...)
}

func (s *manualScheduler) Intervals() []*manualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*manualTimer(nil), s.intervals...)
}

// harness runs a session in the background against fakes.
type harness struct {
	t         *testing.T
	session   *Session
	source    *fakeSource
	dialer    *fakeDialer
	channel   *fakeChannel
	presenter *recordingPresenter
	sched     *manualScheduler
	metrics   *Metrics

	cancel context.CancelFunc
	result chan error
}

func newHarness(t *testing.T, source *fakeSource) *harness {
	t.Helper()

	ch := newFakeChannel()
	h := &harness{
		t:         t,
		source:    source,
		channel:   ch,
		dialer:    &fakeDialer{channel: ch},
		presenter: &recordingPresenter{},
		sched:     &manualScheduler{},
		metrics:   NewMetrics(nil),
		result:    make(chan error, 1),
	}
	h.session = NewSession(DefaultConfig(), h.source, h.dialer, h.presenter,
		WithScheduler(h.sched),
		WithMetrics(h.metrics),
	)
	return h
}

func (h *harness) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.result <- h.session.Run(ctx) }()
	h.t.Cleanup(h.stop)
}

func (h *harness) stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	h.cancel = nil
	select {
	case <-h.result:
	case <-time.After(2 * time.Second):
		h.t.Error("session did not stop")
	}
}

func (h *harness) waitState(want monitor.State) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.session.State() == want },
		time.Second, 5*time.Millisecond, "state never became %s (now %s)", want, h.session.State())
}

func (h *harness) waitDeadlineTimer() *manualTimer {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return len(h.sched.OneShots()) == 1 },
		time.Second, 5*time.Millisecond, "deadline timer never scheduled")
	return h.sched.OneShots()[0]
}

func (h *harness) push(raw string) {
	h.channel.messages <- []byte(raw)
}

// settle waits until every message queued so far has been processed, using a
// refresh as a barrier: the loop handles its inbox in order.
func (h *harness) settle() {
	h.t.Helper()
	before := h.source.Calls()
	require.NoError(h.t, h.session.Refresh(context.Background()))
	require.Eventually(h.t, func() bool { return h.source.Calls() > before },
		time.Second, 5*time.Millisecond)
}

var errBackend = errors.New("backend unavailable")
