package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rmacdonaldsmith/hookwatch/pkg/eventstore"
)

// Config holds server configuration
type Config struct {
	Addr string `yaml:"addr"`

	// SecretKey signs admin tokens. Empty leaves admin endpoints open.
	SecretKey string `yaml:"secret_key"`

	MaxBodyBytes          int64         `yaml:"max_body_bytes"`
	RecentCapacity        int           `yaml:"recent_capacity"`
	SubscriberBuffer      int           `yaml:"subscriber_buffer"`
	KeepaliveInterval     time.Duration `yaml:"keepalive_interval"`
	BroadcastBodyMaxChars int           `yaml:"broadcast_body_max_chars"`
	ShutdownTimeout       time.Duration `yaml:"shutdown_timeout"`
}

// SetDefaults sets reasonable default values for the config
func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8000"
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.RecentCapacity == 0 {
		c.RecentCapacity = DefaultRecentCapacity
	}
	if c.SubscriberBuffer == 0 {
		c.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if c.KeepaliveInterval == 0 {
		c.KeepaliveInterval = 15 * time.Second
	}
	if c.BroadcastBodyMaxChars == 0 {
		c.BroadcastBodyMaxChars = DefaultBodyMaxChars
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Validate checks the config for errors
func (c *Config) Validate() error {
	if c.MaxBodyBytes < 0 {
		return errors.New("max_body_bytes cannot be negative")
	}
	if c.RecentCapacity < 0 {
		return errors.New("recent_capacity cannot be negative")
	}
	if c.KeepaliveInterval < 0 {
		return errors.New("keepalive_interval cannot be negative")
	}
	if c.SecretKey != "" && len(c.SecretKey) < 16 {
		return errors.New("secret_key must be at least 16 characters")
	}
	return nil
}

// Server represents the gateway HTTP server
type Server struct {
	store      eventstore.Store
	hub        *Hub
	jwtAuth    *JWTAuth
	handlers   *Handlers
	middleware *Middleware
	metrics    *Metrics
	registry   *prometheus.Registry
	server     *http.Server
	config     Config
	logger     *slog.Logger
}

// NewServer creates a new gateway server. A nil registry gets a fresh one
// carrying the Go runtime and process collectors.
func NewServer(store eventstore.Store, config Config, logger *slog.Logger, registry *prometheus.Registry) *Server {
	config.SetDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	var jwtAuth *JWTAuth
	if config.SecretKey != "" {
		jwtAuth = NewJWTAuth(config.SecretKey)
	}

	metrics := NewMetrics(registry)
	hub := NewHub(config.RecentCapacity, metrics, logger)

	server := &Server{
		store:      store,
		hub:        hub,
		jwtAuth:    jwtAuth,
		handlers:   NewHandlers(store, hub, config, metrics, logger),
		middleware: NewMiddleware(jwtAuth, metrics, logger),
		metrics:    metrics,
		registry:   registry,
		config:     config,
		logger:     logger,
	}

	server.server = &http.Server{
		Addr:              config.Addr,
		Handler:           server.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
	return server
}

// Handler returns the routed handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Hub returns the broadcast hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop. It returns nil after a graceful stop.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("gateway listening", "addr", ln.Addr().String(), "admin_auth", s.jwtAuth != nil)
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop ends the monitor streams and gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Close()
	return s.server.Shutdown(ctx)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Apply global middleware
	withMiddleware := func(handler http.HandlerFunc) http.Handler {
		return s.middleware.Recovery(
			s.middleware.Logging(
				s.middleware.CORS(
					s.middleware.ContentType(handler))))
	}

	// Webhook intake and monitor feed
	mux.Handle("POST /webhooks/{source}", withMiddleware(s.handlers.ReceiveWebhook))
	mux.Handle("GET /webhooks/monitor", withMiddleware(s.handlers.Monitor))
	mux.Handle("GET /webhooks/monitor/stream", withMiddleware(s.handlers.MonitorStream))
	mux.Handle("GET /webhooks/monitor/ws", withMiddleware(s.handlers.MonitorWebSocket))

	// Stored events
	mux.Handle("GET /events/latest", withMiddleware(s.handlers.LatestEvents))
	mux.Handle("GET /events/{id}", withMiddleware(s.handlers.GetEvent))
	mux.Handle("GET /events/stats/summary", withMiddleware(s.middleware.AdminRequired(s.handlers.StatsSummary)))

	// Health and metrics
	mux.Handle("GET /health", withMiddleware(s.handlers.Health))
	mux.Handle("GET /health/ready", withMiddleware(s.handlers.Ready))
	mux.Handle("GET /metrics", withMiddleware(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}).ServeHTTP))

	// Root endpoint with API info
	mux.Handle("GET /{$}", withMiddleware(s.handleRoot))

	return mux
}

// handleRoot provides API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"service": ServiceName,
		"endpoints": map[string]string{
			"webhook":   "POST /webhooks/{source}",
			"monitor":   "GET /webhooks/monitor",
			"stream":    "GET /webhooks/monitor/stream",
			"websocket": "GET /webhooks/monitor/ws",
			"latest":    "GET /events/latest",
			"event":     "GET /events/{id}",
			"stats":     "GET /events/stats/summary",
			"health":    "GET /health",
			"ready":     "GET /health/ready",
			"metrics":   "GET /metrics",
		},
	}
	writeJSON(w, info, http.StatusOK)
}
