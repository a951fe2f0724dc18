package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/rmacdonaldsmith/hookwatch/pkg/monitor"
)

// Client provides HTTP client for the hookwatch gateway API
type Client struct {
	config     Config
	httpClient *http.Client
	// streamClient has no overall timeout; push streams stay open.
	streamClient *http.Client
	token        string
	baseURL      *url.URL
}

// NewClient creates a new gateway HTTP client
func NewClient(config Config) (*Client, error) {
	config.SetDefaults()

	if config.ServerURL == "" {
		return nil, fmt.Errorf("ServerURL is required")
	}

	baseURL, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid ServerURL %q: scheme must be http or https", config.ServerURL)
	}

	return &Client{
		config:       config,
		httpClient:   &http.Client{Timeout: config.Timeout},
		streamClient: &http.Client{},
		token:        config.Token,
		baseURL:      baseURL,
	}, nil
}

// LatestEvents fetches the most recent events. It implements monitor.HistorySource.
func (c *Client) LatestEvents(ctx context.Context, q monitor.HistoryQuery) ([]monitor.Event, error) {
	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.IncludeBody {
		params.Set("include_body", "1")
	}
	if q.IncludePayload {
		params.Set("include_json_obj", "1")
	}

	body, err := c.get(ctx, "fetch history", c.config.LatestPath, params)
	if err != nil {
		return nil, err
	}

	events, err := monitor.DecodeEventList(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}
	return events, nil
}

// GetEvent fetches one event by id, with body and parsed payload.
func (c *Client) GetEvent(ctx context.Context, id string) (monitor.Event, error) {
	params := url.Values{}
	params.Set("include_body", "1")
	params.Set("include_json_obj", "1")

	body, err := c.get(ctx, "fetch event", c.config.EventPath+url.PathEscape(id), params)
	if err != nil {
		return monitor.Event{}, err
	}

	var resp EventResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return monitor.Event{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if !resp.Ready {
		return monitor.Event{}, fmt.Errorf("%w: %s", ErrStoreNotReady, resp.DB.Detail)
	}

	raw := bytes.TrimSpace(resp.Event)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return monitor.Event{}, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return monitor.DecodeEvent(raw)
}

// GetStats returns the gateway's event summary. It requires an admin token
// when the gateway has auth enabled.
func (c *Client) GetStats(ctx context.Context) (*StatsResponse, error) {
	body, err := c.get(ctx, "fetch stats", c.config.StatsPath, nil)
	if err != nil {
		return nil, err
	}

	var resp StatsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// GetHealth returns the liveness status of the gateway
func (c *Client) GetHealth(ctx context.Context) (*HealthResponse, error) {
	body, err := c.get(ctx, "health check", c.config.HealthPath, nil)
	if err != nil {
		return nil, err
	}

	var resp HealthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// GetReady returns whether the gateway's event store is available
func (c *Client) GetReady(ctx context.Context) (*ReadyResponse, error) {
	// A gateway whose store is down answers 503 with the same body.
	body, err := c.getAccepting(ctx, "readiness check", c.config.HealthPath+"/ready", nil, http.StatusServiceUnavailable)
	if err != nil {
		return nil, err
	}

	var resp ReadyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// SetToken sets the bearer token sent with every request
func (c *Client) SetToken(token string) {
	c.token = token
}

// GetToken returns the current bearer token
func (c *Client) GetToken() string {
	return c.token
}

// endpoint resolves path against the server URL
func (c *Client) endpoint(path string, params url.Values) *url.URL {
	u := &url.URL{Path: path}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return c.baseURL.ResolveReference(u)
}

// get performs a GET request and returns the body of a 2xx response
func (c *Client) get(ctx context.Context, op, path string, params url.Values) ([]byte, error) {
	return c.getAccepting(ctx, op, path, params)
}

// getAccepting is get that also returns the body for the listed non-2xx codes.
func (c *Client) getAccepting(ctx context.Context, op, path string, params url.Values, accept ...int) ([]byte, error) {
	target := c.endpoint(path, params).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, URL: target, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, URL: target, StatusCode: resp.StatusCode, Err: err}
	}

	if (resp.StatusCode < 200 || resp.StatusCode > 299) && !slices.Contains(accept, resp.StatusCode) {
		return nil, &NetworkError{Op: op, URL: target, StatusCode: resp.StatusCode, Err: apiError(resp, body)}
	}
	return body, nil
}

func apiError(resp *http.Response, body []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("API error: %s", string(bytes.TrimSpace(body)))
	}
	if errResp.Message != "" {
		return fmt.Errorf("API error: %s - %s", errResp.Error, errResp.Message)
	}
	return fmt.Errorf("API error: %s - %s", resp.Status, errResp.Error)
}
