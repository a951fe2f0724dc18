// Package monitor provides the types and interfaces for the hookwatch live monitor.
//
// This package defines the core abstractions shared by the monitor session and its collaborators:
//   - Event: one webhook event as delivered by the history endpoint or the push channel
//   - Presenter: the display side that renders new rows, status changes and details
//   - HistorySource / PushDialer / PushChannel: the three delivery paths the session merges
//   - Detail: the selection view, always built from the local cache
//
// The interfaces use Go idioms:
//   - context.Context on every network operation
//   - Channels for push delivery (PushChannel.Messages / PushChannel.Errors)
//   - io.Closer-style Close for the push channel, safe to call more than once
//   - Typed errors (StreamTransportError, MessageDecodeError, HeaderParseError) checked with errors.As
//
// Example usage:
//
//	evt, err := monitor.DecodeEvent(data)
//	if err != nil {
//		return err // *monitor.MessageDecodeError
//	}
//	fmt.Println(evt.Key()) // event_id, else id, else correlation_id, else "(no-id)"
//
//	detail := monitor.NewDetail(id, evt, true)
//	fmt.Println(detail.HeadersText())
package monitor
