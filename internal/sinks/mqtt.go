package sinks

import (
	"time"

	"lookout/internal/mqtt"
	"lookout/internal/pipeline"

	log "github.com/sirupsen/logrus"
)

// MQTTSink publishes pipeline events to an MQTT topic. Broker round-trips
// happen on a worker goroutine fed by a buffered channel; when the broker is
// slow or down, events are dropped instead of stalling the pipeline.
type MQTTSink struct {
	publisher *mqtt.Publisher
	topic     string
	events    chan pipeline.Event
	stopCh    chan struct{}
	done      chan struct{}
}

// NewMQTTSink creates an MQTT sink for the given topic.
func NewMQTTSink(publisher *mqtt.Publisher, topic string, queueSize int) *MQTTSink {
	if queueSize < 1 {
		queueSize = 64
	}
	return &MQTTSink{
		publisher: publisher,
		topic:     topic,
		events:    make(chan pipeline.Event, queueSize),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Name identifies the sink in logs.
func (s *MQTTSink) Name() string { return "mqtt" }

// Publish queues an event for the broker. Drops when the queue is full.
func (s *MQTTSink) Publish(ev pipeline.Event) {
	select {
	case s.events <- ev:
	default:
		log.Warnf("MQTT sink queue full, dropping event %s", ev.ID)
	}
}

// Start launches the publishing worker.
func (s *MQTTSink) Start() {
	go func() {
		defer close(s.done)
		for {
			select {
			case <-s.stopCh:
				return
			case ev := <-s.events:
				if !s.publisher.IsConnected() {
					continue
				}
				if err := s.publisher.Publish(s.topic, ev); err != nil {
					log.Errorf("Failed to publish event %s to MQTT: %v", ev.ID, err)
				}
			}
		}
	}()
	log.Infof("MQTT sink started (topic %s)", s.topic)
}

// Stop shuts the publishing worker down.
func (s *MQTTSink) Stop() {
	close(s.stopCh)
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		log.Warn("MQTT sink worker did not stop in time")
	}
}
