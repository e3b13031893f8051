package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rzpsarthak13/sqlkit/internal/core"
	"github.com/rzpsarthak13/sqlkit/internal/registry"
)

// MessageWriter is the producing side of a kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageReader is the consuming side of a kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaFeed produces every event to a topic, keyed by table so that the
// events of one table stay ordered within a partition.
type KafkaFeed struct {
	writer MessageWriter
	reader MessageReader
	topic  string

	mu     sync.RWMutex
	closed bool
}

// NewKafkaFeed creates a producer for cfg.Topic. A consumer is created too
// when cfg.GroupID is set.
func NewKafkaFeed(cfg registry.KafkaConfig) (*KafkaFeed, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("Kafka topic is required")
	}

	log.Printf("[KAFKA] Brokers: %v, Topic: %s, Group: %s", cfg.Brokers, cfg.Topic, cfg.GroupID)

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		BatchBytes:   int64(cfg.MaxMessageBytes),
		MaxAttempts:  3,
	}

	var reader MessageReader
	if cfg.GroupID != "" {
		reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			GroupID:     cfg.GroupID,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
			MaxWait:     cfg.MaxWait,
			StartOffset: kafka.FirstOffset,
		})
	}
	return NewKafkaFeedWithClients(writer, reader, cfg.Topic), nil
}

// NewKafkaFeedWithClients creates a feed over existing clients. reader may be
// nil for a producer-only feed.
func NewKafkaFeedWithClients(writer MessageWriter, reader MessageReader, topic string) *KafkaFeed {
	return &KafkaFeed{writer: writer, reader: reader, topic: topic}
}

// Publish produces ev as JSON.
func (f *KafkaFeed) Publish(ctx context.Context, ev *core.ChangeEvent) error {
	if err := validate(ev); err != nil {
		return err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrFeedClosed
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Table),
		Value: data,
		Time:  ev.Timestamp,
		Headers: []kafka.Header{
			{Key: "operation", Value: []byte(ev.Operation)},
			{Key: "table", Value: []byte(ev.Table)},
		},
	}

	start := time.Now()
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		log.Printf("[KAFKA] ERROR: failed to produce %s on %s to %s: %v (%v)", ev.Operation, ev.Table, f.topic, err, time.Since(start))
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	return nil
}

// Consume reads up to max events, waiting at most wait for each one, and
// commits their offsets. Undecodable messages are committed and skipped.
func (f *KafkaFeed) Consume(ctx context.Context, max int, wait time.Duration) ([]*core.ChangeEvent, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, ErrFeedClosed
	}
	if f.reader == nil {
		return nil, fmt.Errorf("kafka feed on %s has no consumer group", f.topic)
	}
	if max <= 0 {
		max = 100
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}

	out := make([]*core.ChangeEvent, 0, max)
	for len(out) < max {
		readCtx, cancel := context.WithTimeout(ctx, wait)
		msg, err := f.reader.FetchMessage(readCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				break
			}
			return out, fmt.Errorf("failed to read from %s: %w", f.topic, err)
		}

		var ev core.ChangeEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			log.Printf("[KAFKA] ERROR: skipping undecodable message (partition %d, offset %d): %v", msg.Partition, msg.Offset, err)
		} else {
			out = append(out, &ev)
		}
		if err := f.reader.CommitMessages(ctx, msg); err != nil {
			log.Printf("[KAFKA] WARNING: failed to commit offset %d of partition %d: %v", msg.Offset, msg.Partition, err)
		}
	}
	return out, nil
}

// Close closes the producer and the consumer.
func (f *KafkaFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	var errs []error
	if err := f.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close writer: %w", err))
	}
	if f.reader != nil {
		if err := f.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close reader: %w", err))
		}
	}
	return errors.Join(errs...)
}
