package eventstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// KindInboundHTTP is the kind of every record created from a webhook delivery.
	KindInboundHTTP = "inbound_http"

	// VerifyUnknown is the verification status of a record nobody has verified.
	VerifyUnknown = "unknown"

	// TimeLayout is the wire and storage format of ReceivedAt.
	TimeLayout = "2006-01-02T15:04:05.000000Z"
)

// Record is one inbound webhook delivery.
type Record struct {
	EventID       string
	Kind          string
	Source        string
	Namespace     string
	CorrelationID string
	ParentEventID string
	ReceivedAt    time.Time

	// Request line and peer
	Method     string
	Host       string
	Path       string
	RemoteAddr string
	StatusCode int

	// HeadersJSON is the request header mapping encoded as a JSON object.
	HeadersJSON string
	BodyRaw     []byte
	BodySHA256  string

	// JSONParsed is the compacted body if it was valid JSON, else empty.
	JSONParsed string

	VerifyStatus string
	VerifyReason string
	DedupeKey    string
}

// Inbound describes a webhook request as the gateway received it.
type Inbound struct {
	Source        string
	Method        string
	Host          string
	Path          string
	RemoteAddr    string
	Headers       http.Header
	Body          []byte
	CorrelationID string
}

// NewRecord builds a Record from an inbound request, assigning a fresh event
// id, a correlation id if the request carried none, and the dedupe key.
func NewRecord(in Inbound) *Record {
	body := make([]byte, len(in.Body))
	copy(body, in.Body)

	sum := sha256.Sum256(body)
	bodySHA := hex.EncodeToString(sum[:])

	correlationID := in.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	return &Record{
		EventID:       uuid.NewString(),
		Kind:          KindInboundHTTP,
		Source:        in.Source,
		CorrelationID: correlationID,
		ReceivedAt:    time.Now().UTC(),
		Method:        in.Method,
		Host:          in.Host,
		Path:          in.Path,
		RemoteAddr:    in.RemoteAddr,
		HeadersJSON:   encodeHeaders(in.Headers),
		BodyRaw:       body,
		BodySHA256:    bodySHA,
		JSONParsed:    compactJSON(body),
		VerifyStatus:  VerifyUnknown,
		DedupeKey:     DedupeKey(in.Source, in.Path, bodySHA),
	}
}

// DedupeKey is the stable identity of a delivery: the same body posted to
// the same path for the same source is stored once.
func DedupeKey(source, path, bodySHA256 string) string {
	sum := sha256.Sum256([]byte(source + "|" + path + "|" + bodySHA256))
	return hex.EncodeToString(sum[:])
}

// ReceivedAtText formats ReceivedAt with TimeLayout.
func (r *Record) ReceivedAtText() string {
	return r.ReceivedAt.UTC().Format(TimeLayout)
}

// Copy returns a deep copy of the record.
func (r *Record) Copy() *Record {
	c := *r
	c.BodyRaw = make([]byte, len(r.BodyRaw))
	copy(c.BodyRaw, r.BodyRaw)
	return &c
}

// encodeHeaders flattens headers into a JSON object with lower-cased names.
// Repeated values are joined with ", ".
func encodeHeaders(h http.Header) string {
	flat := make(map[string]string, len(h))
	for name, values := range h {
		flat[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	data, err := json.Marshal(flat)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func compactJSON(body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 || !json.Valid(body) {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return ""
	}
	return buf.String()
}
