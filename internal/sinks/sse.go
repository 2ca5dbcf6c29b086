package sinks

import (
	"lookout/internal/pipeline"
	"lookout/internal/server/sse"
)

// SSESink forwards pipeline events to the SSE hub. The hub's broadcast
// channel is buffered and dropping, so Publish never blocks.
type SSESink struct {
	hub *sse.Hub
}

// NewSSESink wraps a hub as a pipeline sink.
func NewSSESink(hub *sse.Hub) *SSESink {
	return &SSESink{hub: hub}
}

// Name identifies the sink in logs.
func (s *SSESink) Name() string { return "sse" }

// Publish broadcasts the event to all connected SSE clients.
func (s *SSESink) Publish(ev pipeline.Event) {
	s.hub.BroadcastEvent(ev)
}
