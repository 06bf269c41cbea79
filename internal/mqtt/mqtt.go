// Package mqtt publishes device state and adapter availability to a broker.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pvs_monitor/internal/config"
	"pvs_monitor/internal/logger"
	"pvs_monitor/internal/models"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"

	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// ClientAPI is the broker surface the publisher needs; tests substitute a fake.
type ClientAPI interface {
	Publish(topic string, qos byte, retain bool, payload []byte) error
	Disconnect()
}

// DeviceState is the retained payload on <prefix>/device/state/<serial>.
type DeviceState struct {
	Serial     string            `json:"serial"`
	DeviceType models.DeviceType `json:"device_type"`
	Model      string            `json:"model"`
	Name       string            `json:"name"`
	State      string            `json:"state,omitempty"`
	Metrics    map[string]any    `json:"metrics"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type Publisher struct {
	cli    ClientAPI
	prefix string
	qos    byte
	log    *logger.Logger
}

func NewPublisher(cli ClientAPI, topicPrefix string, qos byte, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{
		cli:    cli,
		prefix: strings.TrimSuffix(topicPrefix, "/"),
		qos:    qos,
		log:    log,
	}
}

// StatusTopic carries online/offline and the broker-side last will.
func StatusTopic(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/adapter/status"
}

func (p *Publisher) DeviceTopic(serial string) string {
	return p.prefix + "/device/state/" + serial
}

func (p *Publisher) PublishDeviceState(s DeviceState) error {
	if s.Serial == "" {
		return errors.New("device state without serial")
	}
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode state for %s: %w", s.Serial, err)
	}
	if err := p.cli.Publish(p.DeviceTopic(s.Serial), p.qos, true, body); err != nil {
		return fmt.Errorf("publish state for %s: %w", s.Serial, err)
	}
	return nil
}

func (p *Publisher) PublishAvailability(online bool) error {
	payload := PayloadOffline
	if online {
		payload = PayloadOnline
	}
	if err := p.cli.Publish(StatusTopic(p.prefix), p.qos, true, []byte(payload)); err != nil {
		return fmt.Errorf("publish availability: %w", err)
	}
	return nil
}

// Close announces offline before disconnecting so subscribers do not wait for the will.
func (p *Publisher) Close() {
	if err := p.PublishAvailability(false); err != nil {
		p.log.Warnw("mqtt_offline_publish_failed", "error", err)
	}
	p.cli.Disconnect()
}

// pahoClient adapts a connected paho client to ClientAPI.
type pahoClient struct {
	cli paho.Client
}

func (c *pahoClient) Publish(topic string, qos byte, retain bool, payload []byte) error {
	t := c.cli.Publish(topic, qos, retain, payload)
	if !t.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	return t.Error()
}

func (c *pahoClient) Disconnect() { c.cli.Disconnect(250) }

// ClientOptions builds the paho options for cfg, including the offline last will.
func ClientOptions(cfg config.MQTTConfig, log *logger.Logger) *paho.ClientOptions {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "pvs-monitor-" + uuid.NewString()[:8]
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetKeepAlive(cfg.KeepAlive).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(connectTimeout).
		SetWill(StatusTopic(cfg.TopicPrefix), PayloadOffline, byte(cfg.QoS), true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(paho.Client) { log.Infow("mqtt_connected", "broker", cfg.Broker, "client_id", clientID) }
	opts.OnConnectionLost = func(_ paho.Client, err error) { log.Warnw("mqtt_connection_lost", "error", err) }
	return opts
}

// Connect dials the broker and returns a publisher bound to it.
func Connect(cfg config.MQTTConfig, log *logger.Logger) (*Publisher, error) {
	if log == nil {
		log = logger.Nop()
	}
	cli := paho.NewClient(ClientOptions(cfg, log))
	t := cli.Connect()
	if !t.WaitTimeout(connectTimeout) {
		cli.Disconnect(0)
		return nil, fmt.Errorf("connect mqtt %s: timed out", cfg.Broker)
	}
	if err := t.Error(); err != nil {
		return nil, fmt.Errorf("connect mqtt %s: %w", cfg.Broker, err)
	}
	return NewPublisher(&pahoClient{cli: cli}, cfg.TopicPrefix, byte(cfg.QoS), log), nil
}
