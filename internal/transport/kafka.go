package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/tjfontaine/polyglot-telemetry/internal/core/domain"
	"github.com/tjfontaine/polyglot-telemetry/internal/core/ports"
)

// KafkaConfig configures Kafka publishing of event batches.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	ClientID     string
	BatchTimeout time.Duration
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaTransport writes one message per batch, keyed by session id. It has
// no fire-and-forget primitive.
type KafkaTransport struct {
	writer kafkaWriter
	topic  string
}

var _ ports.Transport = (*KafkaTransport)(nil)

// NewKafka creates a Kafka transport.
func NewKafka(cfg KafkaConfig) (*KafkaTransport, error) {
	brokers := normalizeBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka transport requires at least one broker")
	}
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		return nil, fmt.Errorf("kafka transport requires topic")
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
		BatchTimeout:           batchTimeout,
	}
	if cfg.ClientID != "" {
		writer.Transport = &kafka.Transport{ClientID: cfg.ClientID}
	}

	return &KafkaTransport{writer: writer, topic: topic}, nil
}

// Send writes batch and waits for all in-sync replicas to acknowledge it.
func (t *KafkaTransport) Send(ctx context.Context, batch []*domain.InteractionEvent) error {
	if len(batch) == 0 {
		return nil
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	first := batch[0]
	msg := kafka.Message{
		Key:   []byte(first.SessionID),
		Value: payload,
		Time:  first.Timestamp.UTC(),
		Headers: []kafka.Header{
			{Key: "content_type", Value: []byte("application/json")},
			{Key: "batch_size", Value: []byte(strconv.Itoa(len(batch)))},
			{Key: "first_event_id", Value: []byte(first.ID)},
		},
	}

	if err := t.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing batch to topic %q: %w", t.topic, err)
	}
	return nil
}

// Close releases writer resources.
func (t *KafkaTransport) Close() error {
	if t == nil || t.writer == nil {
		return nil
	}
	return t.writer.Close()
}

func normalizeBrokers(brokers []string) []string {
	out := make([]string, 0, len(brokers))
	for _, broker := range brokers {
		broker = strings.TrimSpace(broker)
		if broker == "" {
			continue
		}
		out = append(out, broker)
	}
	return out
}
