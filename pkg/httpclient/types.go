package httpclient

import (
	"encoding/json"
	"time"

	"github.com/rmacdonaldsmith/hookwatch/pkg/eventstore"
)

// Default endpoint paths on the gateway.
const (
	DefaultLatestPath    = "/events/latest"
	DefaultEventPath     = "/events/"
	DefaultStatsPath     = "/events/stats/summary"
	DefaultHealthPath    = "/health"
	DefaultStreamPath    = "/webhooks/monitor/stream"
	DefaultWebSocketPath = "/webhooks/monitor/ws"
)

// Config holds client configuration
type Config struct {
	// ServerURL is the base URL of the gateway (e.g., "http://localhost:8000")
	ServerURL string

	// Token is an optional bearer token, needed only for admin endpoints
	Token string

	// Timeout for non-streaming HTTP requests
	Timeout time.Duration

	// Endpoint paths, relative to ServerURL
	LatestPath    string
	EventPath     string
	StatsPath     string
	HealthPath    string
	StreamPath    string
	WebSocketPath string

	// StreamBufferSize for push channels
	StreamBufferSize int
}

// SetDefaults sets reasonable default values for the config
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.LatestPath == "" {
		c.LatestPath = DefaultLatestPath
	}
	if c.EventPath == "" {
		c.EventPath = DefaultEventPath
	}
	if c.StatsPath == "" {
		c.StatsPath = DefaultStatsPath
	}
	if c.HealthPath == "" {
		c.HealthPath = DefaultHealthPath
	}
	if c.StreamPath == "" {
		c.StreamPath = DefaultStreamPath
	}
	if c.WebSocketPath == "" {
		c.WebSocketPath = DefaultWebSocketPath
	}
	if c.StreamBufferSize == 0 {
		c.StreamBufferSize = 100
	}
}

// EventResponse is the body of GET /events/{id}
type EventResponse struct {
	Ready bool              `json:"ready"`
	DB    eventstore.Status `json:"db"`
	Event json.RawMessage   `json:"event"`
}

// StatsResponse is the body of GET /events/stats/summary
type StatsResponse struct {
	Ready bool              `json:"ready"`
	DB    eventstore.Status `json:"db"`
	Stats eventstore.Stats  `json:"stats"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status string `json:"status"`
	Source string `json:"source"`
}

// ReadyResponse represents the readiness check response
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
