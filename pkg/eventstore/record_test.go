package eventstore

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRecord(t *testing.T) {
	body := []byte(`{ "action": "opened" }`)
	rec := NewRecord(Inbound{
		Source:     "github",
		Method:     http.MethodPost,
		Host:       "example.com",
		Path:       "/webhooks/github",
		RemoteAddr: "10.0.0.1:5555",
		Headers:    http.Header{"X-Github-Event": {"push"}, "Accept": {"a", "b"}},
		Body:       body,
	})

	sum := sha256.Sum256(body)
	bodySHA := hex.EncodeToString(sum[:])

	assert.NotEmpty(t, rec.EventID)
	assert.NotEmpty(t, rec.CorrelationID)
	assert.NotEqual(t, rec.EventID, rec.CorrelationID)
	assert.Equal(t, KindInboundHTTP, rec.Kind)
	assert.Equal(t, VerifyUnknown, rec.VerifyStatus)
	assert.Equal(t, bodySHA, rec.BodySHA256)
	assert.Equal(t, DedupeKey("github", "/webhooks/github", bodySHA), rec.DedupeKey)
	assert.Equal(t, `{"action":"opened"}`, rec.JSONParsed)
	assert.JSONEq(t, `{"x-github-event":"push","accept":"a, b"}`, rec.HeadersJSON)

	body[0] = 'X'
	assert.Equal(t, byte('{'), rec.BodyRaw[0], "body is copied")
}

func TestNewRecord_NonJSONBody(t *testing.T) {
	rec := NewRecord(Inbound{Source: "form", Body: []byte("a=1&b=2")})
	assert.Empty(t, rec.JSONParsed)
	assert.Equal(t, "{}", rec.HeadersJSON)
}

func TestNewRecord_KeepsCorrelationID(t *testing.T) {
	rec := NewRecord(Inbound{Source: "s", CorrelationID: "corr-1"})
	assert.Equal(t, "corr-1", rec.CorrelationID)
}

func TestDedupeKey(t *testing.T) {
	a := DedupeKey("github", "/webhooks/github", "abc")
	assert.Equal(t, a, DedupeKey("github", "/webhooks/github", "abc"))
	assert.NotEqual(t, a, DedupeKey("stripe", "/webhooks/github", "abc"))
	assert.Len(t, a, 64)
}

func TestRecordReceivedAtText(t *testing.T) {
	rec := &Record{}
	rec.ReceivedAt = rec.ReceivedAt.AddDate(2025, 0, 0)
	assert.Equal(t, "2026-01-01T00:00:00.000000Z", rec.ReceivedAtText())
}
