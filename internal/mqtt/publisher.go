package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"lookout/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Publisher pushes pipeline events to an MQTT broker. It only publishes;
// nothing is consumed from the broker.
type Publisher struct {
	config      config.MQTTConfig
	client      mqtt.Client
	isConnected bool
}

// NewPublisher creates a new MQTT publisher.
func NewPublisher(cfg config.MQTTConfig) *Publisher {
	return &Publisher{
		config: cfg,
	}
}

// Start connects the publisher to the broker. Disabled configuration is a
// no-op, not an error.
func (p *Publisher) Start() error {
	if !p.config.Enabled {
		log.Info("MQTT publisher is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()

	brokerURL := fmt.Sprintf("tcp://%s:%d", p.config.Broker, p.config.Port)
	opts.AddBroker(brokerURL)

	opts.SetClientID(p.config.ClientID)

	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}

	opts.SetOnConnectHandler(p.onConnectHandler)
	opts.SetConnectionLostHandler(p.connectionLostHandler)

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	p.client = mqtt.NewClient(opts)

	log.Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to connect to MQTT broker: %v", token.Error())
		return token.Error()
	}

	log.Info("MQTT publisher connected successfully")
	return nil
}

// Stop disconnects the publisher from the broker.
func (p *Publisher) Stop() {
	if p.client != nil && p.client.IsConnected() {
		log.Info("Disconnecting MQTT publisher...")
		p.client.Disconnect(250)
		p.isConnected = false
		log.Info("MQTT publisher disconnected")
	}
}

// IsConnected reports whether the publisher currently has a broker connection.
func (p *Publisher) IsConnected() bool {
	return p.client != nil && p.client.IsConnected()
}

func (p *Publisher) onConnectHandler(client mqtt.Client) {
	log.Infof("Connected to MQTT broker at %s:%d", p.config.Broker, p.config.Port)
	p.isConnected = true
}

func (p *Publisher) connectionLostHandler(client mqtt.Client, err error) {
	log.Errorf("MQTT connection lost: %v", err)
	p.isConnected = false
}

// Publish sends a payload to a topic without the retain flag.
func (p *Publisher) Publish(topic string, payload interface{}) error {
	return p.publish(topic, payload, false)
}

// PublishRetain sends a payload to a topic with the retain flag set.
func (p *Publisher) PublishRetain(topic string, payload interface{}) error {
	return p.publish(topic, payload, true)
}

func (p *Publisher) publish(topic string, payload interface{}, retain bool) error {
	if !p.IsConnected() {
		return fmt.Errorf("MQTT publisher is not connected")
	}

	var payloadBytes []byte
	var err error

	switch v := payload.(type) {
	case string:
		payloadBytes = []byte(v)
	case []byte:
		payloadBytes = v
	default:
		payloadBytes, err = json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal payload to JSON: %w", err)
		}
	}

	token := p.client.Publish(topic, 1, retain, payloadBytes)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish message to topic %s: %w", topic, token.Error())
	}

	log.Debugf("Published message to topic: %s", topic)
	return nil
}
