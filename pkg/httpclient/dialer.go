package httpclient

import (
	"context"
	"fmt"

	"github.com/rmacdonaldsmith/hookwatch/pkg/monitor"
)

// Push transports.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// PushDialer opens the gateway's live feed over SSE or WebSocket. It
// implements monitor.PushDialer.
type PushDialer struct {
	Client    *Client
	Transport string
	Config    StreamConfig
}

// OpenPush connects using the configured transport.
func (d PushDialer) OpenPush(ctx context.Context) (monitor.PushChannel, error) {
	switch d.Transport {
	case "", TransportSSE:
		sc, err := d.Client.Stream(ctx, d.Config)
		if err != nil {
			return nil, err
		}
		return sc, nil
	case TransportWebSocket:
		wc, err := d.Client.WebSocket(ctx, d.Config)
		if err != nil {
			return nil, err
		}
		return wc, nil
	default:
		return nil, fmt.Errorf("unknown push transport %q", d.Transport)
	}
}
