package gateway

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/hookwatch/pkg/eventstore"
)

func TestReceiveWebhook(t *testing.T) {
	ts := newTestServer(t, Config{}, nil)

	resp, out := ts.post("/webhooks/github", `{"action":"opened"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "received", out.Status)
	assert.Equal(t, len(`{"action":"opened"}`), out.Length)
	assert.NotEmpty(t, out.EventID)
	assert.True(t, out.Persisted)
	assert.False(t, out.Duplicate)

	var got EventResponse
	ts.getJSON("/events/"+out.EventID, "", &got)
	require.NotNil(t, got.Event)
	assert.Equal(t, "github", got.Event.Source)
	assert.Equal(t, "/webhooks/github", got.Event.Path)
	assert.Equal(t, http.MethodPost, got.Event.Method)
	assert.Equal(t, eventstore.KindInboundHTTP, got.Event.Kind)
	assert.Equal(t, got.Event.ReceivedAt, got.Event.Timestamp)
	assert.Equal(t, StatusOK, got.Event.Status)
	assert.JSONEq(t, `{"action":"opened"}`, string(got.Event.JSONObj))
	require.NotNil(t, got.Event.BodyRaw)
	assert.Equal(t, `{"action":"opened"}`, *got.Event.BodyRaw)
	assert.Contains(t, got.Event.HeadersJSON, `"content-type":"application/json"`)
}

func TestReceiveWebhook_Duplicate(t *testing.T) {
	ts := newTestServer(t, Config{}, nil)

	_, first := ts.post("/webhooks/github", `{"n":1}`)
	_, second := ts.post("/webhooks/github", `{"n":1}`)

	assert.True(t, first.Persisted)
	assert.False(t, second.Persisted)
	assert.True(t, second.Duplicate)

	count, recent := ts.server.Hub().Recent(0)
	assert.Equal(t, 1, count, "duplicates are not broadcast")
	assert.Equal(t, first.EventID, recent[0].EventID)

	_, other := ts.post("/webhooks/stripe", `{"n":1}`)
	assert.True(t, other.Persisted, "same body under another source is a new delivery")
}

func TestReceiveWebhook_InvalidSource(t *testing.T) {
	ts := newTestServer(t, Config{}, nil)

	resp, _ := ts.post("/webhooks/-github", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReceiveWebhook_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t, Config{MaxBodyBytes: 8}, nil)

	resp, _ := ts.post("/webhooks/github", `{"far":"too large"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestReceiveWebhook_StoreFailureStillBroadcasts(t *testing.T) {
	store := &stubStore{
		status: eventstore.Status{Enabled: true, Mode: eventstore.ModeError, Backend: "sqlite"},
		err:    errQuery,
	}
	ts := newTestServer(t, Config{}, store)

	resp, out := ts.post("/webhooks/github", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, out.Persisted)
	assert.False(t, out.Duplicate)

	count, _ := ts.server.Hub().Recent(0)
	assert.Equal(t, 1, count)
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, Config{}, nil)

	resp, err := http.Get(ts.url("/webhooks/github"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMonitor_RecentOldestFirst(t *testing.T) {
	ts := newTestServer(t, Config{}, nil)

	var ids []string
	for _, body := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		_, out := ts.post("/webhooks/github", body)
		ids = append(ids, out.EventID)
	}

	var got MonitorResponse
	resp := ts.getJSON("/webhooks/monitor?limit=2", "", &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, got.Count)
	assert.Equal(t, 2, got.Returned)
	require.Len(t, got.Events, 2)
	assert.Equal(t, ids[1], got.Events[0].EventID)
	assert.Equal(t, ids[2], got.Events[1].EventID)

	resp = ts.getJSON("/webhooks/monitor?limit=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLatestEvents(t *testing.T) {
	ts := newTestServer(t, Config{}, nil)

	long := `{"data":"` + strings.Repeat("x", 300) + `"}`
	ts.post("/webhooks/github", `{"n":1}`)
	_, newest := ts.post("/webhooks/stripe", long)

	t.Run("defaults", func(t *testing.T) {
		var got LatestResponse
		ts.getJSON("/events/latest", "", &got)
		assert.True(t, got.Ready)
		assert.Equal(t, eventstore.ModeOK, got.DB.Mode)
		assert.Equal(t, 2, got.Returned)
		require.Len(t, got.Events, 2)
		assert.Equal(t, newest.EventID, got.Events[0].EventID, "newest first")
		assert.Nil(t, got.Events[0].BodyRaw)
		assert.Nil(t, got.Events[0].JSONObj)
	})

	t.Run("limit", func(t *testing.T) {
		var got LatestResponse
		ts.getJSON("/events/latest?limit=1", "", &got)
		assert.Equal(t, 1, got.Returned)
	})

	t.Run("body_truncated", func(t *testing.T) {
		var got LatestResponse
		ts.getJSON("/events/latest?limit=1&include_body=1&body_max_chars=256&include_json_obj=true", "", &got)
		require.Len(t, got.Events, 1)
		require.NotNil(t, got.Events[0].BodyRaw)

		body := *got.Events[0].BodyRaw
		assert.True(t, strings.HasPrefix(body, long[:256]))
		assert.True(t, strings.HasSuffix(body, "...(311 chars)"), body)
		assert.JSONEq(t, long, string(got.Events[0].JSONObj))
	})

	t.Run("invalid_params", func(t *testing.T) {
		for _, q := range []string{"limit=0", "limit=201", "limit=abc", "body_max_chars=10", "include_body=maybe"} {
			resp := ts.getJSON("/events/latest?"+q, "", nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		}
	})
}

func TestLatestEvents_StoreUnavailable(t *testing.T) {
	t.Run("not_ready", func(t *testing.T) {
		store := &stubStore{status: eventstore.Status{Enabled: false, Mode: eventstore.ModeDisabled, Backend: "postgres", Detail: "no dsn"}}
		ts := newTestServer(t, Config{}, store)

		var got LatestResponse
		resp := ts.getJSON("/events/latest", "", &got)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.False(t, got.Ready)
		assert.Equal(t, eventstore.ModeDisabled, got.DB.Mode)
		assert.Equal(t, "no dsn", got.DB.Detail)
		assert.Empty(t, got.Events)
	})

	t.Run("query_error", func(t *testing.T) {
		store := &stubStore{status: eventstore.Status{Ready: true, Enabled: true, Mode: eventstore.ModeOK, Backend: "sqlite"}, err: errQuery}
		ts := newTestServer(t, Config{}, store)

		var got LatestResponse
		resp := ts.getJSON("/events/latest", "", &got)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.False(t, got.Ready)
		assert.Equal(t, eventstore.ModeError, got.DB.Mode)
		assert.Equal(t, errQuery.Error(), got.DB.Detail)
		assert.NotNil(t, got.Events)
	})
}

func TestGetEvent_Missing(t *testing.T) {
	ts := newTestServer(t, Config{}, nil)

	resp, err := http.Get(ts.url("/events/does-not-exist"))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"event":null`)
	assert.Contains(t, string(body), `"ready":true`)
}

func TestStatsSummary(t *testing.T) {
	ts := newTestServer(t, Config{}, nil)
	ts.post("/webhooks/github", `{"n":1}`)
	ts.post("/webhooks/github", `{"n":2}`)
	ts.post("/webhooks/stripe", `{"n":1}`)

	var got StatsResponse
	resp := ts.getJSON("/events/stats/summary", "", &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, got.Ready)
	assert.EqualValues(t, 3, got.Stats.EventsTotal)
	assert.EqualValues(t, 2, got.Stats.BySource["github"])
	assert.EqualValues(t, 1, got.Stats.BySource["stripe"])
	assert.EqualValues(t, 3, got.Stats.ByKind[eventstore.KindInboundHTTP])
}

func TestStatsSummary_AdminAuth(t *testing.T) {
	ts := newTestServer(t, Config{SecretKey: testSecret}, nil)
	auth := NewJWTAuth(testSecret)

	resp := ts.getJSON("/events/stats/summary", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.getJSON("/events/stats/summary", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	viewer, _, err := auth.GenerateToken("viewer", false, 0)
	require.NoError(t, err)
	resp = ts.getJSON("/events/stats/summary", viewer, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	admin, _, err := auth.GenerateToken("ops", true, 0)
	require.NoError(t, err)
	var got StatsResponse
	resp = ts.getJSON("/events/stats/summary", admin, &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, got.Ready)

	// Other read endpoints stay open.
	resp = ts.getJSON("/events/latest", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Config{}, nil)

	var health HealthResponse
	resp := ts.getJSON("/health", "", &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, ServiceName, health.Source)

	var ready ReadyResponse
	resp = ts.getJSON("/health/ready", "", &ready)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, ready.Ready)
	assert.Equal(t, "memory", ready.DB.Backend)
}

func TestHealth_ReadyReportsDegradedStore(t *testing.T) {
	store := &stubStore{status: eventstore.Status{Enabled: true, Mode: eventstore.ModeDegraded, Backend: "sqlite", Detail: "disk I/O error"}}
	ts := newTestServer(t, Config{}, store)

	var ready ReadyResponse
	resp := ts.getJSON("/health/ready", "", &ready)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.False(t, ready.Ready)
	assert.Equal(t, eventstore.ModeDegraded, ready.DB.Mode)

	// Liveness does not depend on the store.
	resp = ts.getJSON("/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, Config{}, nil)
	ts.post("/webhooks/github", `{}`)

	resp, err := http.Get(ts.url("/metrics"))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `hookwatch_gateway_webhooks_received_total{source="github"} 1`)
	assert.Contains(t, string(body), `hookwatch_gateway_store_appends_total{result="inserted"} 1`)

	// Request metrics are recorded after the response is written.
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(ts.server.metrics.Requests.WithLabelValues("POST /webhooks/{source}", "200")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRootAndCORS(t *testing.T) {
	ts := newTestServer(t, Config{}, nil)

	var info map[string]interface{}
	resp := ts.getJSON("/", "", &info)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ServiceName, info["service"])
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = ts.getJSON("/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...(6 chars)", truncate("abcdef", 3))
	assert.Equal(t, "héé...(5 chars)", truncate("héééé", 3), "counts characters, not bytes")
	assert.Equal(t, "abcdef", truncate("abcdef", 0))
}
