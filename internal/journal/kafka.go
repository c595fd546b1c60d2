// Package journal streams a best-effort record of handled events and emitted
// notifications to Kafka and archives notifications to object storage. It is
// observability plumbing: journal failures are logged, never fatal to the
// invocation that triggered them.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerConfig contains configurable parameters for the Kafka producer.
type ProducerConfig struct {
	Brokers []string
	Topic   string

	// MaxAttempts is how many times a produce is retried on transient error.
	// Defaults to 3 if <= 0.
	MaxAttempts int

	// WriteTimeout is the per-attempt timeout. Defaults to 10s if zero.
	WriteTimeout time.Duration
}

// Producer is a thin wrapper over kafka-go's Writer with produce-with-retries
// behavior. Messages are keyed by execution id so entries for one execution
// land on one partition.
type Producer struct {
	writer      *kafka.Writer
	maxAttempts int
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		Async:        false,
	})
	return &Producer{writer: w, maxAttempts: cfg.MaxAttempts}, nil
}

// ProduceJSON marshals v and produces it under key, retrying with backoff.
func (p *Producer) ProduceJSON(ctx context.Context, key []byte, v interface{}) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := p.writer.WriteMessages(attemptCtx, kafka.Message{
			Key:   key,
			Value: value,
			Time:  time.Now().UTC(),
		})
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(backoff)
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return fmt.Errorf("produce failed after %d attempts: %w", p.maxAttempts, lastErr)
}

// Close shuts down the underlying writer.
func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
