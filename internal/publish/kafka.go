package publish

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/xtxerr/lenedastat/config"
	"github.com/xtxerr/lenedastat/internal/errors"
	"github.com/xtxerr/lenedastat/internal/series"
)

// KafkaConfig holds Kafka sink settings.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Timeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes one message per record, keyed by series ID so that a
// series stays on one partition and keeps its order.
type Kafka struct {
	cfg    KafkaConfig
	writer messageWriter
}

// NewKafka creates a Kafka sink. Connections are opened on first write.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.NewMissingField("publish.kafka.brokers")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		cfg.Topic = config.DefaultKafkaTopic
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 5 * time.Millisecond,
	}
	return newKafkaWithWriter(cfg, w), nil
}

// newKafkaWithWriter wires an existing writer. It is used in tests.
func newKafkaWithWriter(cfg KafkaConfig, w messageWriter) *Kafka {
	return &Kafka{cfg: cfg, writer: w}
}

// Name identifies the sink in logs and metrics.
func (k *Kafka) Name() string {
	return "kafka"
}

// Emit writes all records of b in one call.
func (k *Kafka) Emit(ctx context.Context, b series.Batch) error {
	if b.Empty() {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(b.Records))
	for _, r := range b.Records {
		payload, err := NewMessage(b, r).Encode()
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(b.Meta.ID),
			Value: payload,
			Time:  r.PeriodStart,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(k.cfg.Timeout))
	defer cancel()

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write kafka %s: %w: %w", k.cfg.Topic, errors.ErrPublish, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
