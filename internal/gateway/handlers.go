package gateway

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rmacdonaldsmith/hookwatch/pkg/eventstore"
)

// ServiceName identifies the gateway in health responses.
const ServiceName = "hookwatch-gateway"

const wsWriteWait = 10 * time.Second

var sourcePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Handlers contains all HTTP request handlers
type Handlers struct {
	store    eventstore.Store
	hub      *Hub
	config   Config
	metrics  *Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandlers creates a new handlers instance
func NewHandlers(store eventstore.Store, hub *Hub, config Config, metrics *Metrics, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:   store,
		hub:     hub,
		config:  config,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Webhook endpoints

// ReceiveWebhook handles POST /webhooks/{source}
func (h *Handlers) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	source := r.PathValue("source")
	if !sourcePattern.MatchString(source) {
		writeError(w, fmt.Sprintf("Invalid source %q", source), http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, fmt.Sprintf("Body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "Failed to read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.metrics.Received.WithLabelValues(source).Inc()

	rec := eventstore.NewRecord(eventstore.Inbound{
		Source:        source,
		Method:        r.Method,
		Host:          r.Host,
		Path:          r.URL.Path,
		RemoteAddr:    r.RemoteAddr,
		Headers:       r.Header,
		Body:          body,
		CorrelationID: r.Header.Get("X-Correlation-Id"),
	})

	resp := WebhookResponse{
		Status:  "received",
		Length:  len(body),
		EventID: rec.EventID,
	}

	inserted, err := h.store.Append(r.Context(), rec)
	switch {
	case err != nil:
		h.metrics.Appends.WithLabelValues("error").Inc()
		h.logger.Warn("webhook not persisted", "source", source, "event_id", rec.EventID, "error", err)
	case inserted:
		h.metrics.Appends.WithLabelValues("inserted").Inc()
		resp.Persisted = true
	default:
		h.metrics.Appends.WithLabelValues("duplicate").Inc()
		resp.Duplicate = true
		h.logger.Debug("duplicate webhook", "source", source, "dedupe_key", rec.DedupeKey)
	}

	if !resp.Duplicate {
		h.hub.Publish(NewEventView(rec, ViewOptions{
			IncludeBody:  true,
			BodyMaxChars: h.config.BroadcastBodyMaxChars,
			IncludeJSON:  true,
		}))
	}

	h.logger.Info("webhook received",
		"source", source,
		"event_id", rec.EventID,
		"length", len(body),
		"persisted", resp.Persisted,
	)
	writeJSON(w, resp, http.StatusOK)
}

// Monitor handles GET /webhooks/monitor
func (h *Handlers) Monitor(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query(), "limit", DefaultLatestLimit, 1, h.hub.capacity)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	count, events := h.hub.Recent(limit)
	writeJSON(w, MonitorResponse{
		Count:    count,
		Returned: len(events),
		Events:   events,
	}, http.StatusOK)
}

// MonitorStream handles GET /webhooks/monitor/stream as server-sent events.
func (h *Handlers) MonitorStream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	source := r.URL.Query().Get("source")
	sub := h.hub.Subscribe(source, h.config.SubscriberBuffer)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := io.WriteString(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		h.logger.Warn("streaming unsupported", "error", err)
		return
	}
	h.logger.Debug("monitor stream opened", "source", source, "remote", r.RemoteAddr)

	ticker := time.NewTicker(h.config.KeepaliveInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}

		case data, ok := <-sub.Events():
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// MonitorWebSocket handles GET /webhooks/monitor/ws. Each event is one text frame.
func (h *Handlers) MonitorWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(r.URL.Query().Get("source"), h.config.SubscriberBuffer)
	defer sub.Close()

	// Reads only detect the peer going away; clients send nothing we use.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.config.KeepaliveInterval)
	defer ticker.Stop()

	closeWith := func(code int) {
		msg := websocket.FormatCloseMessage(code, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	}

	for {
		select {
		case <-gone:
			return

		case <-r.Context().Done():
			closeWith(websocket.CloseNormalClosure)
			return

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}

		case data, ok := <-sub.Events():
			if !ok {
				closeWith(websocket.CloseGoingAway)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

// Event endpoints

// LatestEvents handles GET /events/latest. It answers 200 even when the
// store is unavailable; the body says so.
func (h *Handlers) LatestEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q, "limit", DefaultLatestLimit, 1, MaxLatestLimit)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	bodyMax, err := intParam(q, "body_max_chars", DefaultBodyMaxChars, MinBodyMaxChars, MaxBodyMaxChars)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	includeBody, err := boolParam(q, "include_body")
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	includeJSON, err := boolParam(q, "include_json_obj")
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	status := h.store.Status(ctx)
	resp := LatestResponse{Ready: status.Ready, DB: status, Events: []EventView{}}
	if !status.Ready {
		writeJSON(w, resp, http.StatusOK)
		return
	}

	records, err := h.store.Latest(ctx, limit)
	if err != nil {
		h.logger.Warn("latest events query failed", "error", err)
		resp.Ready = false
		resp.DB = failedStatus(status, err)
		writeJSON(w, resp, http.StatusOK)
		return
	}

	opts := ViewOptions{IncludeBody: includeBody, BodyMaxChars: bodyMax, IncludeJSON: includeJSON}
	for _, rec := range records {
		resp.Events = append(resp.Events, NewEventView(rec, opts))
	}
	resp.Returned = len(resp.Events)
	writeJSON(w, resp, http.StatusOK)
}

// GetEvent handles GET /events/{id}. A missing event is reported as null.
func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := h.store.Status(ctx)
	resp := EventResponse{Ready: status.Ready, DB: status}
	if !status.Ready {
		writeJSON(w, resp, http.StatusOK)
		return
	}

	rec, err := h.store.Get(ctx, r.PathValue("id"))
	switch {
	case errors.Is(err, eventstore.ErrNotFound):
	case err != nil:
		h.logger.Warn("event lookup failed", "event_id", r.PathValue("id"), "error", err)
		resp.Ready = false
		resp.DB = failedStatus(status, err)
	default:
		view := NewEventView(rec, ViewOptions{
			IncludeBody:  true,
			BodyMaxChars: MaxBodyMaxChars,
			IncludeJSON:  true,
		})
		resp.Event = &view
	}
	writeJSON(w, resp, http.StatusOK)
}

// StatsSummary handles GET /events/stats/summary
func (h *Handlers) StatsSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := h.store.Status(ctx)
	resp := StatsResponse{Ready: status.Ready, DB: status, Stats: eventstore.NewStats()}
	if !status.Ready {
		writeJSON(w, resp, http.StatusOK)
		return
	}

	stats, err := h.store.Stats(ctx)
	if err != nil {
		h.logger.Warn("stats query failed", "error", err)
		resp.Ready = false
		resp.DB = failedStatus(status, err)
		writeJSON(w, resp, http.StatusOK)
		return
	}
	resp.Stats = stats
	writeJSON(w, resp, http.StatusOK)
}

// Health endpoints

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok", Source: ServiceName}, http.StatusOK)
}

// Ready handles GET /health/ready
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	status := h.store.Status(r.Context())
	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, ReadyResponse{Ready: status.Ready, DB: status}, code)
}

// Helper methods

func failedStatus(s eventstore.Status, err error) eventstore.Status {
	return eventstore.Status{
		Enabled: s.Enabled,
		Mode:    eventstore.ModeError,
		Backend: s.Backend,
		Detail:  err.Error(),
	}
}

func intParam(q url.Values, name string, def, min, max int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be between %d and %d", name, min, max)
	}
	return v, nil
}

func boolParam(q url.Values, name string) (bool, error) {
	switch strings.ToLower(q.Get(name)) {
	case "", "0", "false", "no", "off":
		return false, nil
	case "1", "true", "yes", "on":
		return true, nil
	default:
		return false, fmt.Errorf("%s must be a boolean", name)
	}
}
