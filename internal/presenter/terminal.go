// Package presenter renders monitor sessions for humans.
package presenter

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rmacdonaldsmith/hookwatch/pkg/monitor"
)

// Terminal is a line-oriented monitor.Presenter. Every call is echoed to the
// writer as it happens; the visible list is kept newest first and can be
// re-rendered with Render.
type Terminal struct {
	mu     sync.Mutex
	out    io.Writer
	rows   []monitor.Event
	status monitor.Status
	mode   monitor.Mode
	quiet  bool
}

// NewTerminal creates a presenter writing to out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out, mode: monitor.ModeInitial}
}

// SetQuiet suppresses the per-event echo. The list is still maintained.
func (t *Terminal) SetQuiet(quiet bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.quiet = quiet
}

// Add prepends evt to the visible list.
func (t *Terminal) Add(evt monitor.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rows = append([]monitor.Event{evt}, t.rows...)
	if !t.quiet {
		fmt.Fprintf(t.out, "📨 %s\n", FormatRow(evt))
	}
}

// Reset clears the visible list.
func (t *Terminal) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rows = nil
	fmt.Fprintln(t.out, "🧹 View cleared")
}

// SetStatus updates the status label.
func (t *Terminal) SetStatus(s monitor.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s == t.status {
		return
	}
	t.status = s
	fmt.Fprintf(t.out, "%s %s\n", levelIcon(s.Level), s.Text)
}

// SetMode updates the delivery mode label.
func (t *Terminal) SetMode(m monitor.Mode) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if m == t.mode {
		return
	}
	t.mode = m
	fmt.Fprintf(t.out, "🔀 Mode: %s\n", m)
}

// Rows returns the visible list, newest first.
func (t *Terminal) Rows() []monitor.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]monitor.Event(nil), t.rows...)
}

// Status returns the current status label and mode.
func (t *Terminal) Status() (monitor.Status, monitor.Mode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, t.mode
}

// Render writes the header and the visible list to w.
func (t *Terminal) Render(w io.Writer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(w, "%s %s [%s] - %d events\n", levelIcon(t.status.Level), t.status.Text, t.mode, len(t.rows))
	for i, evt := range t.rows {
		fmt.Fprintf(w, "%3d  %s\n", i+1, FormatRow(evt))
	}
}

// FormatRow is the one-line summary of an event.
func FormatRow(evt monitor.Event) string {
	when := evt.When()
	if when == "" {
		when = "-"
	}
	source := evt.Source
	if source == "" {
		source = "unknown"
	}
	status := evt.Status
	if status == "" {
		status = "ok"
	}
	return fmt.Sprintf("%-27s  %-14s  %-6s  %s", when, source, status, evt.Key())
}

// RenderDetail writes the detail view of one event.
func RenderDetail(w io.Writer, d monitor.Detail) {
	if d.Found {
		fmt.Fprintf(w, "🔎 Event %s\n", d.ID)
	} else {
		fmt.Fprintf(w, "❓ Event %s\n", d.ID)
	}
	fmt.Fprintf(w, "   Source: %s\n", d.Source)
	fmt.Fprintf(w, "   Headers:\n%s\n", indent(d.HeadersText()))
	if d.Body != "" {
		fmt.Fprintf(w, "   Body:\n%s\n", indent(d.Body))
	} else {
		fmt.Fprintf(w, "   Body: (empty)\n")
	}
	fmt.Fprintf(w, "   Payload:\n%s\n", indent(d.PayloadText()))
}

func indent(s string) string {
	const pad = "      "
	return pad + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n"+pad)
}

func levelIcon(l monitor.Level) string {
	switch l {
	case monitor.LevelOK:
		return "✅"
	case monitor.LevelBad:
		return "❌"
	case monitor.LevelWarn:
		return "⚠️"
	default:
		return "ℹ️"
	}
}
