package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"auction-service/internal/models"
	"auction-service/internal/util"
)

// Publisher delivers a domain event to a transport
type Publisher interface {
	Publish(ctx context.Context, key string, event models.Event) error
	Close() error
}

type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	return &Producer{writer: writer}
}

// Publish writes an event to Kafka. Events with the same key land on the
// same partition so per-auction order is kept.
func (p *Producer) Publish(ctx context.Context, key string, event models.Event) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	meta := event.Meta()
	msg := kafka.Message{
		Key:   []byte(key),
		Value: eventBytes,
		Time:  meta.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(meta.EventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	util.GetLogger().Debug("Published event",
		zap.String("key", key),
		zap.String("event_type", meta.EventType),
		zap.String("event_id", meta.EventID))
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// messageReader is the part of *kafka.Reader the consumer needs
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	defaultRetryBase = 200 * time.Millisecond
	defaultRetryMax  = 30 * time.Second
)

// Consumer represents a Kafka consumer
type Consumer struct {
	reader    messageReader
	topic     string
	retryBase time.Duration
	retryMax  time.Duration
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	return newConsumer(reader, topic)
}

func newConsumer(reader messageReader, topic string) *Consumer {
	return &Consumer{
		reader:    reader,
		topic:     topic,
		retryBase: defaultRetryBase,
		retryMax:  defaultRetryMax,
	}
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// MessageHandler is a function type for handling messages
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// StartConsuming starts consuming messages with a handler. A failed message
// is retried with backoff until the handler succeeds; committing a later
// offset first would skip it for good. Handlers drop payloads they can
// never process by returning nil.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	log := util.GetLogger().With(zap.String("topic", c.topic))
	log.Info("Starting Kafka consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				log.Info("Consumer context cancelled, stopping")
				return ctx.Err()
			}
			log.Error("Error fetching message", zap.Error(err))
			if err := sleep(ctx, time.Second); err != nil {
				return err
			}
			continue
		}

		if err := c.handle(ctx, msg, handler); err != nil {
			log.Info("Consumer context cancelled, stopping")
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.Error("Error committing message", zap.Error(err))
		}
	}
}

// handle runs handler on msg until it succeeds. It only returns an error
// when ctx is done.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler MessageHandler) error {
	backoff := c.retryBase
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		util.GetLogger().Error("Error handling message, retrying",
			zap.String("topic", c.topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		if err := sleep(ctx, backoff); err != nil {
			return err
		}
		backoff = min(backoff*2, c.retryMax)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
