package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
)

// NotInCache is the diagnostic error text for a selection the cache cannot resolve.
const NotInCache = "event not in cache"

// Detail is the selection view of one event. It is always built from the
// local cache and never triggers a fetch.
type Detail struct {
	ID     string
	Found  bool
	Source string

	// Headers holds the parsed headers_json, or a diagnostic object when the
	// event is missing or the blob does not parse.
	Headers interface{}

	Body    string
	Payload interface{}
}

// NewDetail builds the selection view for id. When found is false the view
// carries a diagnostic {error, id} object instead of headers.
func NewDetail(id string, evt Event, found bool) Detail {
	if !found {
		return Detail{
			ID:      id,
			Source:  "unknown",
			Headers: map[string]interface{}{"error": NotInCache, "id": id},
			Payload: map[string]interface{}{},
		}
	}

	d := Detail{
		ID:      id,
		Found:   true,
		Source:  evt.Source,
		Body:    evt.BodyRaw,
		Payload: evt.Payload,
	}
	if d.Source == "" {
		d.Source = "unknown"
	}
	if d.Payload == nil {
		d.Payload = map[string]interface{}{}
	}

	headers, err := ParseHeaders(evt.HeadersJSON)
	if err != nil {
		parseErr := &HeaderParseError{Raw: evt.HeadersJSON, Err: err}
		errors.As(err, &parseErr)
		d.Headers = map[string]interface{}{
			"_parse_error": parseErr.Error(),
			"_raw":         parseErr.Raw,
		}
	} else {
		d.Headers = headers
	}
	return d
}

// ParseHeaders parses a headers_json blob. An empty blob is an empty mapping.
func ParseHeaders(raw string) (interface{}, error) {
	if raw == "" {
		return map[string]interface{}{}, nil
	}
	var headers interface{}
	if err := json.Unmarshal([]byte(raw), &headers); err != nil {
		return nil, &HeaderParseError{Raw: raw, Err: err}
	}
	return headers, nil
}

// HeadersText returns the pretty-printed headers view.
func (d Detail) HeadersText() string {
	return Pretty(d.Headers)
}

// PayloadText returns the pretty-printed payload view.
func (d Detail) PayloadText() string {
	return Pretty(d.Payload)
}

// Pretty renders v as indented JSON, falling back to fmt for values JSON cannot encode.
func Pretty(v interface{}) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}
