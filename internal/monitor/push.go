package monitor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rmacdonaldsmith/hookwatch/pkg/monitor"
)

// PushClient adapts a push channel to the session: it decodes each message
// and reports deliveries, discards and transport failures as loop messages.
type PushClient struct {
	dialer monitor.PushDialer
	logger *slog.Logger

	mu         sync.Mutex
	channel    monitor.PushChannel
	cancelDial context.CancelFunc
	closed     bool

	stop      chan struct{}
	closeOnce sync.Once
}

func newPushClient(dialer monitor.PushDialer, logger *slog.Logger) *PushClient {
	return &PushClient{
		dialer: dialer,
		logger: logger,
		stop:   make(chan struct{}),
	}
}

// Open dials the push channel in the background and forwards to sink. It
// never blocks: a dial failure arrives through sink as transportFailed, like
// any later failure. A channel that connects after Close is closed at once.
func (p *PushClient) Open(ctx context.Context, sink func(message)) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	dialCtx, cancel := context.WithCancel(ctx)
	p.cancelDial = cancel
	p.mu.Unlock()

	go p.dial(dialCtx, sink)
}

func (p *PushClient) dial(ctx context.Context, sink func(message)) {
	ch, err := p.dialer.OpenPush(ctx)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		if err != nil {
			p.logger.Debug("push dial abandoned", "error", err)
			return
		}
		if cerr := ch.Close(); cerr != nil {
			p.logger.Debug("push channel close failed", "error", cerr)
		}
		return
	}
	if err != nil {
		p.mu.Unlock()
		sink(transportFailed{err: &monitor.StreamTransportError{Err: err}})
		return
	}
	p.channel = ch
	p.mu.Unlock()

	p.pump(ch, sink)
}

// Close cancels a pending dial and closes the underlying channel. It is safe
// to call more than once and before Open.
func (p *PushClient) Close() {
	p.closeOnce.Do(func() {
		close(p.stop)

		p.mu.Lock()
		ch := p.channel
		cancel := p.cancelDial
		p.closed = true
		p.mu.Unlock()

		if ch != nil {
			if err := ch.Close(); err != nil {
				p.logger.Debug("push channel close failed", "error", err)
			}
		}
		if cancel != nil {
			cancel()
		}
	})
}

func (p *PushClient) pump(ch monitor.PushChannel, sink func(message)) {
	messages, errs := ch.Messages(), ch.Errors()

	for {
		if messages == nil && errs == nil {
			sink(transportFailed{err: &monitor.StreamTransportError{Err: monitor.ErrStreamClosed}})
			return
		}

		select {
		case <-p.stop:
			return

		case data, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			p.forward(data, sink)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			// Messages that arrived before the failure are still delivered first.
			p.drain(messages, sink)
			sink(transportFailed{err: &monitor.StreamTransportError{Err: err}})
			return
		}
	}
}

func (p *PushClient) drain(messages <-chan []byte, sink func(message)) {
	if messages == nil {
		return
	}
	for {
		select {
		case data, ok := <-messages:
			if !ok {
				return
			}
			p.forward(data, sink)
		default:
			return
		}
	}
}

func (p *PushClient) forward(data []byte, sink func(message)) {
	evt, err := monitor.DecodeEvent(data)
	if err != nil {
		sink(pushDiscarded{err: err})
		return
	}
	sink(pushDelivered{event: evt})
}
