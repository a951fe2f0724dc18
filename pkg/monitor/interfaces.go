package monitor

import (
	"context"
)

// State is the connection state of a monitor session.
type State int32

const (
	// StateInitial is the state before the first history load completes.
	StateInitial State = iota
	// StateConnecting means the push channel is open but has not delivered yet.
	StateConnecting
	// StateLive means the push channel has delivered at least one message.
	StateLive
	// StatePolling means push was abandoned; the session polls history for the rest of its life.
	StatePolling
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "INITIAL"
	case StateConnecting:
		return "CONNECTING"
	case StateLive:
		return "LIVE"
	case StatePolling:
		return "POLLING"
	default:
		return "UNKNOWN"
	}
}

// Mode is the delivery mode label shown next to the status.
type Mode string

const (
	ModeInitial Mode = "initial"
	ModePush    Mode = "sse"
	ModePolling Mode = "polling"
)

// Level is the severity of a status label.
type Level string

const (
	LevelOK   Level = "ok"
	LevelWarn Level = "warn"
	LevelBad  Level = "bad"
)

// Status is a user-visible status label.
type Status struct {
	Text  string
	Level Level
}

// Presenter renders the monitor view. All calls are made from the session's
// loop goroutine.
type Presenter interface {
	// Add renders a summary row for an event seen for the first time.
	// New rows go to the top of the visible list.
	Add(evt Event)

	// Reset clears the visible list and the current selection.
	Reset()

	// SetStatus updates the status label.
	SetStatus(status Status)

	// SetMode updates the delivery mode label.
	SetMode(mode Mode)
}

// HistoryQuery holds the fixed parameters of a history fetch.
type HistoryQuery struct {
	Limit          int
	IncludeBody    bool
	IncludePayload bool
}

// HistorySource fetches the most recent events in one request.
type HistorySource interface {
	LatestEvents(ctx context.Context, query HistoryQuery) ([]Event, error)
}

// PushChannel is an open one-way server-to-client delivery channel.
type PushChannel interface {
	// Messages delivers one encoded event per message.
	Messages() <-chan []byte

	// Errors reports transport failures. The channel is unusable after the first one.
	Errors() <-chan error

	// Close releases the channel. It is safe to call more than once.
	Close() error
}

// PushDialer opens push channels.
type PushDialer interface {
	OpenPush(ctx context.Context) (PushChannel, error)
}
