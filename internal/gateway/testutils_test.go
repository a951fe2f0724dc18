package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	memstore "github.com/rmacdonaldsmith/hookwatch/internal/eventstore"
	"github.com/rmacdonaldsmith/hookwatch/pkg/eventstore"
)

const testSecret = "test-secret-key-0123456789"

type testServer struct {
	t      *testing.T
	server *Server
	http   *httptest.Server
	store  eventstore.Store
}

func newTestServer(t *testing.T, cfg Config, store eventstore.Store) *testServer {
	t.Helper()
	if store == nil {
		store = memstore.NewInMemoryStore(0)
	}
	srv := NewServer(store, cfg, nil, prometheus.NewRegistry())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Hub().Close()
		ts.Close()
		_ = store.Close()
	})
	return &testServer{t: t, server: srv, http: ts, store: store}
}

func (ts *testServer) url(path string) string {
	return ts.http.URL + path
}

func (ts *testServer) post(path, body string) (*http.Response, WebhookResponse) {
	ts.t.Helper()
	resp, err := http.Post(ts.url(path), "application/json", strings.NewReader(body))
	require.NoError(ts.t, err)
	defer resp.Body.Close()

	var out WebhookResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(ts.t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func (ts *testServer) getJSON(path, token string, into interface{}) *http.Response {
	ts.t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.url(path), nil)
	require.NoError(ts.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(ts.t, err)
	if into != nil {
		require.NoError(ts.t, json.Unmarshal(data, into), string(data))
	}
	return resp
}

// stubStore reports a fixed status and fails every query with err.
type stubStore struct {
	status eventstore.Status
	err    error
}

func (s *stubStore) Append(ctx context.Context, rec *eventstore.Record) (bool, error) {
	return false, s.err
}

func (s *stubStore) Latest(ctx context.Context, limit int) ([]*eventstore.Record, error) {
	return nil, s.err
}

func (s *stubStore) Get(ctx context.Context, eventID string) (*eventstore.Record, error) {
	return nil, s.err
}

func (s *stubStore) Stats(ctx context.Context) (eventstore.Stats, error) {
	return eventstore.Stats{}, s.err
}

func (s *stubStore) Status(ctx context.Context) eventstore.Status {
	return s.status
}

func (s *stubStore) Close() error { return nil }

var errQuery = errors.New("database is locked")
