package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/shanehull/bullionscraper/internal/types"
)

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each snapshot as one JSON message keyed by its source.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

func NewKafkaSink(brokers []string, topic string, requiredAcks int, writeTimeout time.Duration) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(requiredAcks),
		Compression:  kafka.Gzip,
		MaxAttempts:  3,
		WriteTimeout: writeTimeout,
		BatchSize:    1,
	}
	return &KafkaSink{writer: writer, topic: topic}, nil
}

func (k *KafkaSink) Name() string { return "kafka" }
func (k *KafkaSink) Close() error { return k.writer.Close() }

func (k *KafkaSink) Write(ctx context.Context, s types.Snapshot) error {
	msg, err := snapshotMessage(s)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write to %s: %w", k.topic, err)
	}
	return nil
}

func snapshotMessage(s types.Snapshot) (kafka.Message, error) {
	value, err := json.Marshal(s)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	return kafka.Message{
		Key:   []byte(s.Source()),
		Value: value,
		Time:  s.TakenAt(),
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}, nil
}
