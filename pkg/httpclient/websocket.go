package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rmacdonaldsmith/hookwatch/pkg/monitor"
)

// WebSocketClient receives the gateway's event feed over a WebSocket. Like
// StreamClient it implements monitor.PushChannel and never reconnects.
type WebSocketClient struct {
	conn *websocket.Conn

	messages chan []byte
	errors   chan error
	done     chan struct{}
	stop     chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
}

// WebSocket dials the feed. Handshake failures are returned directly.
func (c *Client) WebSocket(ctx context.Context, config StreamConfig) (*WebSocketClient, error) {
	if config.BufferSize == 0 {
		config.BufferSize = c.config.StreamBufferSize
	}

	params := url.Values{}
	if config.Source != "" {
		params.Set("source", config.Source)
	}
	u := c.endpoint(c.config.WebSocketPath, params)
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	target := u.String()

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, &NetworkError{Op: "open websocket", URL: target, StatusCode: status, Err: err}
	}

	wc := &WebSocketClient{
		conn:     conn,
		messages: make(chan []byte, config.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
	}
	context.AfterFunc(ctx, func() { wc.Close() })

	go wc.readLoop()
	return wc, nil
}

// Messages returns the channel of raw event payloads
func (wc *WebSocketClient) Messages() <-chan []byte {
	return wc.messages
}

// Errors returns the channel for receiving the terminal error
func (wc *WebSocketClient) Errors() <-chan error {
	return wc.errors
}

// Done returns a channel that's closed when the read loop ends
func (wc *WebSocketClient) Done() <-chan struct{} {
	return wc.done
}

// Close sends a close frame and closes the connection. It is safe to call
// more than once.
func (wc *WebSocketClient) Close() error {
	var err error
	wc.closeOnce.Do(func() {
		wc.closed.Store(true)
		close(wc.stop)
		wc.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = wc.conn.Close()
	})
	<-wc.done
	return err
}

func (wc *WebSocketClient) readLoop() {
	defer close(wc.done)
	defer close(wc.messages)
	defer close(wc.errors)

	for {
		msgType, data, err := wc.conn.ReadMessage()
		if err != nil {
			// Ignore errors after Close() is called
			if wc.closed.Load() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = fmt.Errorf("%w: %v", monitor.ErrStreamClosed, err)
			}
			wc.errors <- err
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		// Blocks when the consumer falls behind; Close unblocks the read.
		select {
		case wc.messages <- data:
		case <-wc.stop:
			return
		}
	}
}
