package httpclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/rmacdonaldsmith/hookwatch/pkg/monitor"
)

const maxSSELine = 4 * 1024 * 1024

// StreamClient handles Server-Sent Events streaming. It implements
// monitor.PushChannel: each SSE event's data is delivered as one message,
// and the first failure (including the server closing the stream) is
// reported on Errors. There is no reconnection.
type StreamClient struct {
	messages  chan []byte
	errors    chan error
	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// StreamConfig configures the streaming client
type StreamConfig struct {
	// Source filters the feed to one webhook source (optional)
	Source string

	// BufferSize for the message channel
	BufferSize int
}

// Stream connects to the SSE feed. Connection and handshake failures are
// returned directly; later failures arrive on Errors.
func (c *Client) Stream(ctx context.Context, config StreamConfig) (*StreamClient, error) {
	if config.BufferSize == 0 {
		config.BufferSize = c.config.StreamBufferSize
	}

	params := url.Values{}
	if config.Source != "" {
		params.Set("source", config.Source)
	}
	target := c.endpoint(c.config.StreamPath, params).String()

	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create streaming request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		cancel()
		return nil, &NetworkError{Op: "open stream", URL: target, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, &NetworkError{Op: "open stream", URL: target, StatusCode: resp.StatusCode, Err: apiError(resp, body)}
	}

	sc := &StreamClient{
		messages: make(chan []byte, config.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
	go sc.run(streamCtx, resp.Body)
	return sc, nil
}

// Messages returns the channel of raw event payloads
func (sc *StreamClient) Messages() <-chan []byte {
	return sc.messages
}

// Errors returns the channel for receiving the terminal error
func (sc *StreamClient) Errors() <-chan error {
	return sc.errors
}

// Done returns a channel that's closed when streaming ends
func (sc *StreamClient) Done() <-chan struct{} {
	return sc.done
}

// Close stops the stream and waits for the reader to exit. It is safe to
// call more than once.
func (sc *StreamClient) Close() error {
	sc.closeOnce.Do(sc.cancel)
	<-sc.done
	return nil
}

func (sc *StreamClient) run(ctx context.Context, body io.ReadCloser) {
	defer close(sc.done)
	defer close(sc.messages)
	defer close(sc.errors)
	defer body.Close()

	err := sc.processSSEStream(ctx, body)
	if ctx.Err() != nil {
		// Closed by the caller.
		return
	}
	if err == nil {
		err = monitor.ErrStreamClosed
	}
	sc.errors <- err
}

// processSSEStream reads Server-Sent Events until the stream ends. Multi-line
// data fields are joined with "\n"; comments and other fields are ignored.
func (sc *StreamClient) processSSEStream(ctx context.Context, reader io.Reader) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			// Blank line dispatches the event
			if len(data) == 0 {
				continue
			}
			payload := []byte(strings.Join(data, "\n"))
			data = data[:0]

			select {
			case sc.messages <- payload:
			case <-ctx.Done():
				return ctx.Err()
			}

		case strings.HasPrefix(line, ":"):
			// Keepalive comment
			continue

		case strings.HasPrefix(line, "data:"):
			value := strings.TrimPrefix(line, "data:")
			data = append(data, strings.TrimPrefix(value, " "))
		}
		// Other SSE fields (id:, event:, retry:) are ignored
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}
