package events

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/tagwatch-core/internal/engine"
	"github.com/nerrad567/tagwatch-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/tagwatch-core/internal/infrastructure/nats"
)

// MQTTClient is the part of *mqtt.Client used by MQTTPublisher.
type MQTTClient interface {
	Topics() mqtt.Topics
	PublishDefault(topic string, payload []byte) error
}

// MQTTPublisher maps events onto the MQTT topic tree:
// liveData to live/{connection}/{tag}, alarm to alarm/{severity}.
type MQTTPublisher struct {
	client MQTTClient
}

// NewMQTTPublisher wraps an MQTT client.
func NewMQTTPublisher(client MQTTClient) *MQTTPublisher {
	return &MQTTPublisher{client: client}
}

// Topic returns the topic an event is published on.
func (p *MQTTPublisher) Topic(event string, payload any) (string, error) {
	topics := p.client.Topics()
	switch v := payload.(type) {
	case LiveData:
		return topics.Live(v.SourceID, v.TagID), nil
	case *LiveData:
		return topics.Live(v.SourceID, v.TagID), nil
	case engine.Alarm:
		return topics.Alarm(string(v.Severity)), nil
	case *engine.Alarm:
		return topics.Alarm(string(v.Severity)), nil
	}
	if event == "" {
		return "", fmt.Errorf("%w: %T", ErrUnroutable, payload)
	}
	return topics.Event(event), nil
}

// Publish implements Publisher.
func (p *MQTTPublisher) Publish(event string, payload any) error {
	topic, err := p.Topic(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling %s payload: %w", event, err)
	}
	return p.client.PublishDefault(topic, data)
}

// NATS publishes each event on {prefix}.{event}; *nats.Publisher already
// has the right shape.
var _ Publisher = (*nats.Publisher)(nil)
