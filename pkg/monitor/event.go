package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// NoID is the key used for events that carry none of the id fields.
const NoID = "(no-id)"

// Event represents one webhook event as seen by the monitor.
//
// Field values are taken leniently from the wire: strings are used as-is and
// numbers keep their JSON text, so an in-memory gateway that numbers events
// 1, 2, 3 still yields usable ids.
type Event struct {
	EventID       string `json:"event_id,omitempty"`
	ID            string `json:"id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`

	Source     string `json:"source,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
	ReceivedAt string `json:"received_at,omitempty"`
	Status     string `json:"status,omitempty"`

	// HeadersJSON is the string-encoded header mapping. It is parsed only
	// when a detail view is built.
	HeadersJSON string `json:"headers_json,omitempty"`

	BodyRaw string `json:"body_raw,omitempty"`

	// Payload is the structured body, if the server parsed one.
	Payload interface{} `json:"json_obj,omitempty"`

	// Raw is the exact JSON object of the delivery this Event was decoded from.
	Raw json.RawMessage `json:"-"`
}

// Key derives the cache key: event_id, else id, else correlation_id, else NoID.
func (e Event) Key() string {
	switch {
	case e.EventID != "":
		return e.EventID
	case e.ID != "":
		return e.ID
	case e.CorrelationID != "":
		return e.CorrelationID
	default:
		return NoID
	}
}

// When returns the best display timestamp.
func (e Event) When() string {
	if e.Timestamp != "" {
		return e.Timestamp
	}
	return e.ReceivedAt
}

// UnmarshalJSON decodes an event object. Only JSON objects are accepted.
func (e *Event) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("event must be a JSON object, got null")
	}

	*e = Event{
		EventID:       idField(fields["event_id"]),
		ID:            idField(fields["id"]),
		CorrelationID: idField(fields["correlation_id"]),
		Source:        textField(fields["source"]),
		Timestamp:     textField(fields["timestamp"]),
		ReceivedAt:    textField(fields["received_at"]),
		Status:        textField(fields["status"]),
		BodyRaw:       textField(fields["body_raw"]),
	}

	// headers_json is canonical; the in-memory webhook buffer sends a plain
	// "headers" object instead.
	if raw, ok := fields["headers_json"]; ok && !isNull(raw) {
		e.HeadersJSON = blobField(raw)
	} else if raw, ok := fields["headers"]; ok && !isNull(raw) {
		e.HeadersJSON = blobField(raw)
	}

	payload, ok := fields["json_obj"]
	if !ok || isNull(payload) {
		payload = fields["json"]
	}
	if len(payload) > 0 && !isNull(payload) {
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return fmt.Errorf("invalid json_obj: %w", err)
		}
	}

	e.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// DecodeEvent decodes a single pushed message into an Event.
// Anything that is not a JSON object yields a *MessageDecodeError.
func DecodeEvent(data []byte) (Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Event{}, &MessageDecodeError{Size: len(data), Err: fmt.Errorf("not a JSON object")}
	}

	var evt Event
	if err := json.Unmarshal(trimmed, &evt); err != nil {
		return Event{}, &MessageDecodeError{Size: len(data), Err: err}
	}
	return evt, nil
}

// DecodeEventList decodes a history response.
//
// The body may be a bare array of events or an object carrying the array
// under "events" (preferred) or "items". Any other well-formed shape yields
// an empty list. Array elements that are not objects are skipped.
func DecodeEventList(data []byte) ([]Event, error) {
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("history response is not valid JSON")
	}

	var items []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
	case '{':
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, err
		}
		for _, key := range []string{"events", "items"} {
			if list, ok := arrayField(envelope[key]); ok {
				items = list
				break
			}
		}
	}

	events := make([]Event, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			continue
		}
		var evt Event
		if err := json.Unmarshal(item, &evt); err != nil {
			continue
		}
		events = append(events, evt)
	}
	return events, nil
}

func arrayField(raw json.RawMessage) ([]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false
	}
	return list, true
}

// idField returns the field as an id, or "" when it is absent, empty, zero,
// or not a scalar.
func idField(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	if n, err := strconv.ParseFloat(string(raw), 64); err == nil {
		if n == 0 {
			return ""
		}
		return string(raw)
	}
	return ""
}

// textField returns strings as-is and other scalars in their JSON text form.
func textField(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '{', '[':
		return ""
	default:
		return string(raw)
	}
}

// blobField returns a string value as-is and any other value as its JSON text.
func blobField(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
