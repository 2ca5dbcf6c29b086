package sse

import (
	"encoding/json"
	"testing"
	"time"

	"lookout/internal/pipeline"
	"lookout/internal/tracking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversBroadcastToClient(t *testing.T) {
	h := NewHub()
	go h.Run()

	client := make(Client, 10)
	h.Register(client)
	defer h.Unregister(client)

	h.Broadcast([]byte("hello"))

	select {
	case msg := <-client:
		assert.Equal(t, "hello", string(msg))
	case <-time.After(time.Second):
		t.Fatal("broadcast was not delivered")
	}
}

func TestHubDropsStalledClient(t *testing.T) {
	h := NewHub()
	go h.Run()

	// Unbuffered and never read: the first broadcast cannot be delivered and
	// the hub must evict the client instead of blocking.
	client := make(Client)
	h.Register(client)

	h.Broadcast([]byte("one"))

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-client:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond, "stalled client was not evicted")
}

func TestBroadcastEventSerializesPipelineEvent(t *testing.T) {
	h := NewHub()
	go h.Run()

	client := make(Client, 1)
	h.Register(client)
	defer h.Unregister(client)

	h.BroadcastEvent(pipeline.Event{
		ID:      "ev-1",
		TrackID: 7,
		Name:    "alice",
		Status:  tracking.StatusKnown,
	})

	select {
	case msg := <-client:
		var ev pipeline.Event
		require.NoError(t, json.Unmarshal(msg, &ev))
		assert.Equal(t, "ev-1", ev.ID)
		assert.EqualValues(t, 7, ev.TrackID)
		assert.Equal(t, tracking.StatusKnown, ev.Status)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}
