package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	commands "plantops-cloud/internal/commands/domain"
)

// BusConfig carries the broker connection settings.
type BusConfig struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	TelemetryTopic string
	ControlTopic   string
	QoS            byte
	ConnectTimeout time.Duration
}

// Handler receives each raw telemetry payload off the bus.
type Handler func(ctx context.Context, payload []byte)

// Bus is the MQTT attachment. It subscribes to the telemetry topic and
// publishes control messages; reconnects resubscribe automatically via
// the OnConnect hook.
type Bus struct {
	cfg     BusConfig
	client  mqtt.Client
	handler Handler
	logger  *log.Logger
}

// NewBus prepares a bus client without connecting. Connection happens
// in Start so the handler is registered before the first message.
func NewBus(cfg BusConfig, logger *log.Logger) (*Bus, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("ingest: empty broker url")
	}
	if cfg.TelemetryTopic == "" || cfg.ControlTopic == "" {
		return nil, errors.New("ingest: telemetry and control topics are required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "plantops-cloud"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Bus{cfg: cfg, logger: logger}, nil
}

// Start connects and subscribes the handler to the telemetry topic.
func (b *Bus) Start(handler Handler) error {
	if handler == nil {
		return errors.New("ingest: nil handler")
	}
	b.handler = handler

	opts := mqtt.NewClientOptions().
		AddBroker(b.cfg.BrokerURL).
		SetClientID(b.cfg.ClientID).
		SetUsername(b.cfg.Username).
		SetPassword(b.cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(b.cfg.ConnectTimeout).
		SetOrderMatters(false)

	opts.OnConnect = func(client mqtt.Client) {
		b.logger.Printf("mqtt: connected to %s, subscribing %s", b.cfg.BrokerURL, b.cfg.TelemetryTopic)
		token := client.Subscribe(b.cfg.TelemetryTopic, b.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			b.handler(context.Background(), msg.Payload())
		})
		if token.Wait() && token.Error() != nil {
			b.logger.Printf("mqtt: subscribe %s failed: %v", b.cfg.TelemetryTopic, token.Error())
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		b.logger.Printf("mqtt: connection lost: %v", err)
	}

	b.client = mqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(b.cfg.ConnectTimeout) {
		return fmt.Errorf("mqtt: connect to %s timed out", b.cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connect to %s: %w", b.cfg.BrokerURL, err)
	}
	return nil
}

// PublishControl sends a control message on the per-device control
// topic. Satisfies the command service's Publisher.
func (b *Bus) PublishControl(ctx context.Context, msg commands.ControlMessage) error {
	if b.client == nil || !b.client.IsConnected() {
		return errors.New("mqtt: not connected")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mqtt: marshal control message: %w", err)
	}
	topic := fmt.Sprintf("%s/%s", b.cfg.ControlTopic, msg.DeviceID)
	token := b.client.Publish(topic, b.cfg.QoS, false, body)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects, allowing in-flight work a short drain window.
func (b *Bus) Close() {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(250)
	}
}
