package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/rl1809/wip-inventory/internal/port"
)

var _ port.AuditSink = (*KafkaSink)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type BreakerConfig struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// KafkaSink publishes audit events as JSON. Messages are keyed by part id so
// events for one part stay ordered within a partition. A circuit breaker stops
// publishing while the brokers keep failing.
type KafkaSink struct {
	logger  *zap.Logger
	writer  messageWriter
	breaker *gobreaker.CircuitBreaker
	topic   string
	newID   func() string
}

func NewKafkaSink(logger *zap.Logger, brokers []string, topic string, cfg BreakerConfig) *KafkaSink {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	return newKafkaSink(logger, writer, topic, cfg)
}

func newKafkaSink(logger *zap.Logger, writer messageWriter, topic string, cfg BreakerConfig) *KafkaSink {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "audit-kafka",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &KafkaSink{
		logger:  logger,
		writer:  writer,
		breaker: breaker,
		topic:   topic,
		newID:   uuid.NewString,
	}
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

func (k *KafkaSink) State() gobreaker.State {
	return k.breaker.State()
}

func (k *KafkaSink) Record(ctx context.Context, event port.AuditEvent) error {
	doc := newDocument(k.newID(), event)
	value, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(partKey(event)),
		Value: value,
	}

	_, err = k.breaker.Execute(func() (interface{}, error) {
		return nil, k.writer.WriteMessages(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("audit topic %s unavailable: %w", k.topic, err)
	}
	if err != nil {
		k.logger.Error("failed to publish audit event",
			zap.Error(err),
			zap.String("topic", k.topic),
			zap.String("event_type", doc.EventType),
		)
		return err
	}
	return nil
}

func partKey(event port.AuditEvent) string {
	switch {
	case event.Result != nil:
		return event.Result.PartID
	case event.Transaction != nil:
		return event.Transaction.PartID
	}
	if id, ok := event.Context["part_id"].(string); ok {
		return id
	}
	return event.Operation
}
