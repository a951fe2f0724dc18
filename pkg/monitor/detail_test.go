package monitor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDetail(t *testing.T) {
	t.Run("missing_event_returns_diagnostic", func(t *testing.T) {
		d := NewDetail("ghost", Event{}, false)

		assert.False(t, d.Found)
		assert.Equal(t, "unknown", d.Source)
		assert.Equal(t, map[string]interface{}{"error": "event not in cache", "id": "ghost"}, d.Headers)
		assert.Empty(t, d.Body)
		assert.Equal(t, "{}", d.PayloadText())
	})

	t.Run("renders_cached_event", func(t *testing.T) {
		evt := Event{
			EventID:     "a",
			Source:      "docusign",
			HeadersJSON: `{"content-type":"application/json"}`,
			BodyRaw:     `{"envelopeId":"X"}`,
			Payload:     map[string]interface{}{"envelopeId": "X"},
		}

		d := NewDetail("a", evt, true)

		assert.True(t, d.Found)
		assert.Equal(t, "docusign", d.Source)
		assert.Equal(t, map[string]interface{}{"content-type": "application/json"}, d.Headers)
		assert.Equal(t, `{"envelopeId":"X"}`, d.Body)
		assert.Equal(t, "{\n  \"envelopeId\": \"X\"\n}", d.PayloadText())
	})

	t.Run("malformed_headers_become_diagnostic", func(t *testing.T) {
		evt := Event{EventID: "a", HeadersJSON: "{bad json"}

		d := NewDetail("a", evt, true)

		headers, ok := d.Headers.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "{bad json", headers["_raw"])
		assert.NotEmpty(t, headers["_parse_error"])
		assert.Contains(t, d.HeadersText(), "_parse_error")
	})

	t.Run("defaults_for_sparse_event", func(t *testing.T) {
		d := NewDetail("a", Event{EventID: "a"}, true)

		assert.Equal(t, "unknown", d.Source)
		assert.Equal(t, "{}", d.HeadersText())
		assert.Equal(t, "{}", d.PayloadText())
	})
}

func TestParseHeaders(t *testing.T) {
	t.Run("empty_blob_is_empty_mapping", func(t *testing.T) {
		headers, err := ParseHeaders("")
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{}, headers)
	})

	t.Run("bad_blob_is_header_parse_error", func(t *testing.T) {
		_, err := ParseHeaders("{bad json")
		require.Error(t, err)

		var parseErr *HeaderParseError
		require.True(t, errors.As(err, &parseErr))
		assert.Equal(t, "{bad json", parseErr.Raw)
	})
}

func TestPretty(t *testing.T) {
	assert.Equal(t, "{}", Pretty(map[string]interface{}{}))
	assert.Equal(t, "null", Pretty(nil))
	assert.Equal(t, "[\n  1,\n  2\n]", Pretty([]int{1, 2}))

	// Channels cannot be encoded; fall back to fmt.
	ch := make(chan int)
	assert.NotEmpty(t, Pretty(ch))
}
