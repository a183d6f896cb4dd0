package sink

import (
	"context"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/herlein/gowmbus/pkg/config"
)

const mqttConnectTimeout = 10 * time.Second

// mqttPublisher is the part of mqtt.Client the sink uses
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes each value to <prefix>/<meter id>/<field>[_<unit>]
type MQTT struct {
	client mqttPublisher
	prefix string
	qos    byte
	retain bool
}

// NewMQTT connects to the broker. The connection re-establishes itself after
// a disconnect.
func NewMQTT(cfg config.MQTTConfig, logger *zap.Logger) (*MQTT, error) {
	logger = logger.Named("mqtt")

	id := cfg.ClientID
	if id == "" {
		hostname, _ := os.Hostname()
		id = "gowmbus-" + hostname
	}
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(id).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("connection lost", zap.Error(err))
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info("connected", zap.String("host", cfg.Host), zap.Int("port", cfg.Port))
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s:%d timed out", cfg.Host, cfg.Port)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return newMQTT(client, cfg), nil
}

func newMQTT(client mqttPublisher, cfg config.MQTTConfig) *MQTT {
	return &MQTT{
		client: client,
		prefix: cfg.TopicPrefix,
		qos:    cfg.QoS,
		retain: cfg.Retain,
	}
}

func (s *MQTT) Name() string { return NameMQTT }

func (s *MQTT) topic(meterID, name string) string {
	if s.prefix == "" {
		return meterID + "/" + name
	}
	return s.prefix + "/" + meterID + "/" + name
}

func (s *MQTT) publish(ctx context.Context, topic, payload string) error {
	token := s.client.Publish(topic, s.qos, s.retain, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MQTT) PublishNumeric(ctx context.Context, meterID, field, unit string, value float64) error {
	return s.publish(ctx, s.topic(meterID, valueName(field, unit)), formatFloat(value))
}

func (s *MQTT) PublishText(ctx context.Context, meterID, field, value string) error {
	return s.publish(ctx, s.topic(meterID, field), value)
}

// Close disconnects from the broker
func (s *MQTT) Close() {
	s.client.Disconnect(250)
}
