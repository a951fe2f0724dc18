package gateway

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func view(id, source string) EventView {
	return EventView{EventID: id, Source: source, Status: StatusOK}
}

func TestHub_PublishFansOut(t *testing.T) {
	hub := NewHub(10, nil, nil)
	all := hub.Subscribe("", 4)
	github := hub.Subscribe("github", 4)
	defer all.Close()
	defer github.Close()

	hub.Publish(view("a", "stripe"))
	hub.Publish(view("b", "github"))

	var got EventView
	require.NoError(t, json.Unmarshal(<-all.Events(), &got))
	assert.Equal(t, "a", got.EventID)
	require.NoError(t, json.Unmarshal(<-all.Events(), &got))
	assert.Equal(t, "b", got.EventID)

	require.NoError(t, json.Unmarshal(<-github.Events(), &got))
	assert.Equal(t, "b", got.EventID)
	assert.Len(t, github.Events(), 0)
}

func TestHub_SlowSubscriberDrops(t *testing.T) {
	metrics := NewMetrics(nil)
	hub := NewHub(10, metrics, nil)
	slow := hub.Subscribe("", 1)
	defer slow.Close()

	hub.Publish(view("a", "s"))
	hub.Publish(view("b", "s"))
	hub.Publish(view("c", "s"))

	assert.Len(t, slow.Events(), 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Dropped))

	count, _ := hub.Recent(0)
	assert.Equal(t, 3, count, "drops do not affect the recent ring")
}

func TestHub_RecentIsBounded(t *testing.T) {
	hub := NewHub(3, nil, nil)
	for i := 0; i < 5; i++ {
		hub.Publish(view(fmt.Sprint(i), "s"))
	}

	count, events := hub.Recent(0)
	assert.Equal(t, 3, count)
	require.Len(t, events, 3)
	assert.Equal(t, "2", events[0].EventID)
	assert.Equal(t, "4", events[2].EventID)

	_, events = hub.Recent(2)
	require.Len(t, events, 2)
	assert.Equal(t, "3", events[0].EventID)
}

func TestHub_Close(t *testing.T) {
	metrics := NewMetrics(nil)
	hub := NewHub(10, metrics, nil)
	sub := hub.Subscribe("", 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Subscribers))

	hub.Close()
	hub.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.Subscribers))
	sub.Close()

	late := hub.Subscribe("", 1)
	_, ok = <-late.Events()
	assert.False(t, ok, "subscribers after close get a closed channel")
	late.Close()

	hub.Publish(view("a", "s"))
	assert.Equal(t, 0, hub.Subscribers())
}

func TestHub_SubscriberCloseIsIdempotent(t *testing.T) {
	hub := NewHub(10, nil, nil)
	sub := hub.Subscribe("", 1)
	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.Subscribers())

	hub.Publish(view("a", "s"))
}
