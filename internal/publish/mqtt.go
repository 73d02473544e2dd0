package publish

import (
	"context"
	"time"

	"codeberg.org/mutker/hrvmon/internal/errors"
	"codeberg.org/mutker/hrvmon/internal/logger"
	"codeberg.org/mutker/hrvmon/internal/measurement"
	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttClientID       = "hrvmon"
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
	mqttRetryInterval  = 5 * time.Second
)

// MQTTPublisher publishes snapshots to an MQTT broker with QoS 0.
type MQTTPublisher struct {
	client paho.Client
	topic  string
	log    logger.Logger
}

// NewMQTTPublisher connects to broker, for example tcp://localhost:1883.
func NewMQTTPublisher(broker, topic string, log logger.Logger) (*MQTTPublisher, error) {
	errFactory := errors.New()

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(mqttClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(mqttRetryInterval).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost")
		})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		client.Disconnect(0)
		return nil, errFactory.WithData(ErrConnect, broker)
	}
	if err := token.Error(); err != nil {
		return nil, errFactory.Wrap(ErrConnect, err)
	}

	log.Info().Str("broker", broker).Str("topic", topic).Msg("MQTT publisher connected")

	return &MQTTPublisher{client: client, topic: topic, log: log}, nil
}

// Publish sends one snapshot, not retained.
func (p *MQTTPublisher) Publish(_ context.Context, snap measurement.Snapshot) error {
	errFactory := errors.New()

	payload, err := FormatPayload(time.Now(), snap)
	if err != nil {
		return err
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return errFactory.WithData(ErrTimeout, p.topic)
	}
	if err := token.Error(); err != nil {
		return errFactory.Wrap(ErrPublish, err)
	}
	return nil
}

// IsConnected reports whether the client currently holds a connection.
func (p *MQTTPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
