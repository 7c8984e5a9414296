package publish

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/xtxerr/lenedastat/config"
	"github.com/xtxerr/lenedastat/internal/errors"
	"github.com/xtxerr/lenedastat/internal/logging"
	"github.com/xtxerr/lenedastat/internal/series"
)

// MQTTConfig holds MQTT sink settings.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Retain      bool
	Timeout     time.Duration
}

// MQTT publishes each record to <prefix>/<series_id>/records and the
// newest record of a batch, retained, to <prefix>/<series_id>/state.
type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client
	log    *slog.Logger
}

// NewMQTT connects to the broker.
func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, errors.NewMissingField("publish.mqtt.broker")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = config.DefaultMQTTClientID
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(timeoutOrDefault(cfg.Timeout))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	return connectMQTT(cfg, mqtt.NewClient(opts))
}

// connectMQTT starts connecting client. A broker that does not answer within
// the timeout is not fatal: the client keeps retrying in the background and
// publishes fail, and are counted as sink errors, until it is connected.
func connectMQTT(cfg MQTTConfig, client mqtt.Client) (*MQTT, error) {
	m := newMQTTWithClient(cfg, client)

	token := client.Connect()
	if !token.WaitTimeout(timeoutOrDefault(cfg.Timeout)) {
		m.log.Warn("mqtt broker not reachable, retrying in background", "broker", cfg.Broker)
		return m, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect mqtt %s: %w: %w", cfg.Broker, errors.ErrConnectionFailed, err)
	}
	return m, nil
}

// newMQTTWithClient wires an existing client without connecting it.
func newMQTTWithClient(cfg MQTTConfig, client mqtt.Client) *MQTT {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = config.DefaultMQTTTopicPrefix
	}
	cfg.TopicPrefix = strings.TrimRight(cfg.TopicPrefix, "/")
	return &MQTT{cfg: cfg, client: client, log: logging.Component("mqtt")}
}

// Name identifies the sink in logs and metrics.
func (m *MQTT) Name() string {
	return "mqtt"
}

// Topic returns the topic for a series and leaf.
func (m *MQTT) Topic(seriesID, leaf string) string {
	return m.cfg.TopicPrefix + "/" + seriesID + "/" + leaf
}

// Emit publishes every record of b.
func (m *MQTT) Emit(ctx context.Context, b series.Batch) error {
	if b.Empty() {
		return nil
	}

	for _, r := range b.Records {
		if err := m.publish(ctx, m.Topic(b.Meta.ID, "records"), false, NewMessage(b, r)); err != nil {
			return err
		}
	}

	last := b.Records[len(b.Records)-1]
	return m.publish(ctx, m.Topic(b.Meta.ID, "state"), m.cfg.Retain, NewMessage(b, last))
}

func (m *MQTT) publish(ctx context.Context, topic string, retain bool, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	token := m.client.Publish(topic, m.cfg.QoS, retain, payload)
	if !token.WaitTimeout(timeoutOrDefault(m.cfg.Timeout)) {
		return errors.Wrapf(errors.ErrTimeout, "publish %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w: %w", topic, errors.ErrPublish, err)
	}
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	if m.client == nil {
		return nil
	}
	connected := m.client.IsConnected()
	// Disconnect also stops a connect retry still in progress.
	m.client.Disconnect(250)
	if connected {
		m.log.Info("mqtt disconnected", "broker", m.cfg.Broker)
	}
	return nil
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return config.DefaultPublishTimeout
	}
	return d
}
