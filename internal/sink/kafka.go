package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"tradepulse-go/internal/signal"
)

// KafkaWriter is the subset of *kafka.Writer the sink needs.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes each signal as a JSON message keyed by symbol.
type KafkaSink struct {
	writer KafkaWriter
}

var _ Sink = (*KafkaSink)(nil)

// NewKafkaWriter builds a batching writer for topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// NewKafkaSink wraps w.
func NewKafkaSink(w KafkaWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Publish(ctx context.Context, s signal.Signal) error {
	msg, err := kafkaMessage(s)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, msg)
}

func kafkaMessage(s signal.Signal) (kafka.Message, error) {
	value, err := json.Marshal(s)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(s.Symbol),
		Value: value,
		Time:  s.Timestamp,
		Headers: []kafka.Header{
			{Key: "strategy", Value: []byte(s.Strategy)},
			{Key: "type", Value: []byte(s.Type)},
		},
	}, nil
}

func (k *KafkaSink) Close() error { return k.writer.Close() }
