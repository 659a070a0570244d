package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"confhub/internal/metrics"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafka.Writer used by the change log
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter creates a writer for the change log topic
func NewKafkaWriter(brokers []string, topic string, batchTimeout time.Duration) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batchTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// KafkaChangeLog writes every change committed by this instance to a
// Kafka topic as an audit stream. Messages are keyed by config ID so a
// config's versions stay ordered within a partition.
type KafkaChangeLog struct {
	writer MessageWriter
	bus    Bus
	buffer int
	logger *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewKafkaChangeLog creates a new change log
func NewKafkaChangeLog(writer MessageWriter, bus Bus, buffer int, logger *zap.Logger) *KafkaChangeLog {
	return &KafkaChangeLog{
		writer: writer,
		bus:    bus,
		buffer: buffer,
		logger: logger.With(zap.String("component", "kafka_changelog")),
	}
}

// Start subscribes to the bus and starts writing
func (l *KafkaChangeLog) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	sub := l.bus.Subscribe(l.buffer)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer sub.Close()
		l.run(ctx, sub)
	}()
}

// Stop stops writing and closes the writer
func (l *KafkaChangeLog) Stop() error {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
	return l.writer.Close()
}

func (l *KafkaChangeLog) run(ctx context.Context, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			if !event.IsLocal() {
				continue
			}
			l.write(ctx, event)
		}
	}
}

func (l *KafkaChangeLog) write(ctx context.Context, event ConfigChanged) {
	payload, err := json.Marshal(event)
	if err != nil {
		l.logger.Error("Failed to encode change event", zap.Error(err))
		return
	}

	msg := kafka.Message{
		Key:   []byte(event.ConfigID),
		Value: payload,
		Time:  event.At,
		Headers: []kafka.Header{
			{Key: "project_id", Value: []byte(event.ProjectID)},
			{Key: "operation", Value: []byte(event.Operation)},
		},
	}
	if err := l.writer.WriteMessages(ctx, msg); err != nil {
		metrics.EventsExported.WithLabelValues("kafka", "error").Inc()
		l.logger.Error("Failed to write change event to kafka",
			zap.Error(err),
			zap.String("config", event.Name),
			zap.Int64("version", event.Version))
		return
	}
	metrics.EventsExported.WithLabelValues("kafka", "ok").Inc()
}
