package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rmacdonaldsmith/hookwatch/pkg/eventstore"
)

// Query limits for /events/latest.
const (
	DefaultLatestLimit  = 50
	MaxLatestLimit      = 200
	DefaultBodyMaxChars = 4000
	MinBodyMaxChars     = 256
	MaxBodyMaxChars     = 200000
)

// Display statuses carried on every event.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// EventView is the JSON shape of a stored or broadcast event.
type EventView struct {
	EventID       string          `json:"event_id"`
	Kind          string          `json:"kind"`
	Source        string          `json:"source"`
	Namespace     *string         `json:"namespace"`
	CorrelationID string          `json:"correlation_id"`
	ParentEventID *string         `json:"parent_event_id"`
	ReceivedAt    string          `json:"received_at"`
	Timestamp     string          `json:"timestamp"`
	Status        string          `json:"status"`
	Method        string          `json:"method"`
	Host          string          `json:"host"`
	Path          string          `json:"path"`
	RemoteAddr    string          `json:"remote_addr"`
	StatusCode    *int            `json:"status_code"`
	HeadersJSON   string          `json:"headers_json"`
	BodySHA256    string          `json:"body_sha256"`
	JSONParsed    *string         `json:"json_parsed"`
	VerifyStatus  string          `json:"verify_status"`
	VerifyReason  *string         `json:"verify_reason"`
	DedupeKey     string          `json:"dedupe_key"`
	BodyRaw       *string         `json:"body_raw,omitempty"`
	JSONObj       json.RawMessage `json:"json_obj,omitempty"`
}

// ViewOptions selects the optional parts of an EventView.
type ViewOptions struct {
	IncludeBody  bool
	BodyMaxChars int
	IncludeJSON  bool
}

// NewEventView renders rec for the wire.
func NewEventView(rec *eventstore.Record, opts ViewOptions) EventView {
	v := EventView{
		EventID:       rec.EventID,
		Kind:          rec.Kind,
		Source:        rec.Source,
		Namespace:     optional(rec.Namespace),
		CorrelationID: rec.CorrelationID,
		ParentEventID: optional(rec.ParentEventID),
		ReceivedAt:    rec.ReceivedAtText(),
		Timestamp:     rec.ReceivedAtText(),
		Status:        displayStatus(rec),
		Method:        rec.Method,
		Host:          rec.Host,
		Path:          rec.Path,
		RemoteAddr:    rec.RemoteAddr,
		HeadersJSON:   rec.HeadersJSON,
		BodySHA256:    rec.BodySHA256,
		JSONParsed:    optional(rec.JSONParsed),
		VerifyStatus:  rec.VerifyStatus,
		VerifyReason:  optional(rec.VerifyReason),
		DedupeKey:     rec.DedupeKey,
	}
	if rec.StatusCode != 0 {
		code := rec.StatusCode
		v.StatusCode = &code
	}
	if opts.IncludeBody {
		body := truncate(strings.ToValidUTF8(string(rec.BodyRaw), "\uFFFD"), opts.BodyMaxChars)
		v.BodyRaw = &body
	}
	if opts.IncludeJSON && rec.JSONParsed != "" {
		v.JSONObj = json.RawMessage(rec.JSONParsed)
	}
	return v
}

// truncate cuts s to max characters and notes the original length.
// A max of zero or less disables truncation.
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	n := utf8.RuneCountInString(s)
	if n <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + fmt.Sprintf("...(%d chars)", n)
}

func displayStatus(rec *eventstore.Record) string {
	if rec.VerifyStatus == "failed" {
		return StatusError
	}
	return StatusOK
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// WebhookResponse acknowledges a delivery.
type WebhookResponse struct {
	Status    string `json:"status"`
	Length    int    `json:"length"`
	EventID   string `json:"event_id"`
	Persisted bool   `json:"persisted"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// MonitorResponse is the body of GET /webhooks/monitor.
type MonitorResponse struct {
	Count    int         `json:"count"`
	Returned int         `json:"returned"`
	Events   []EventView `json:"events"`
}

// LatestResponse is the body of GET /events/latest.
type LatestResponse struct {
	Ready    bool              `json:"ready"`
	DB       eventstore.Status `json:"db"`
	Returned int               `json:"returned"`
	Events   []EventView       `json:"events"`
}

// EventResponse is the body of GET /events/{id}.
type EventResponse struct {
	Ready bool              `json:"ready"`
	DB    eventstore.Status `json:"db"`
	Event *EventView        `json:"event"`
}

// StatsResponse is the body of GET /events/stats/summary.
type StatsResponse struct {
	Ready bool              `json:"ready"`
	DB    eventstore.Status `json:"db"`
	Stats eventstore.Stats  `json:"stats"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Source string `json:"source"`
}

// ReadyResponse is the body of GET /health/ready.
type ReadyResponse struct {
	Ready bool              `json:"ready"`
	DB    eventstore.Status `json:"db"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
