package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"auction-service/internal/models"
	"auction-service/internal/util"
)

const (
	auctionStreamName    = "AUCTION_EVENTS"
	auctionSubjectPrefix = "auction.events"
)

// JetStreamPublisher publishes domain events to a NATS JetStream stream
type JetStreamPublisher struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewJetStreamPublisher connects to NATS and ensures the auction stream exists
func NewJetStreamPublisher(ctx context.Context, url string) (*JetStreamPublisher, error) {
	conn, err := nats.Connect(url, nats.Name(util.ServiceName))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        auctionStreamName,
		Description: "Auction lifecycle events",
		Subjects:    []string{auctionSubjectPrefix + ".>"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Duplicates:  2 * time.Minute,
		Replicas:    1,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}

	util.GetLogger().Info("JetStream stream ready", zap.String("stream", auctionStreamName))
	return &JetStreamPublisher{conn: conn, js: js}, nil
}

// Subject returns the subject an event type is published on
func Subject(eventType string) string {
	return auctionSubjectPrefix + "." + strings.ToLower(eventType)
}

// Publish waits for the stream to acknowledge the event. The event ID is
// the message ID so redelivered publishes are deduplicated.
func (p *JetStreamPublisher) Publish(ctx context.Context, key string, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	meta := event.Meta()
	msg := nats.NewMsg(Subject(meta.EventType))
	msg.Data = data
	msg.Header.Set("Auction-Key", key)

	ack, err := p.js.PublishMsg(ctx, msg, jetstream.WithMsgID(meta.EventID))
	if err != nil {
		return fmt.Errorf("failed to publish to JetStream: %w", err)
	}

	util.GetLogger().Debug("Published event",
		zap.String("subject", msg.Subject),
		zap.Uint64("seq", ack.Sequence),
		zap.String("event_id", meta.EventID))
	return nil
}

// Close drains the NATS connection
func (p *JetStreamPublisher) Close() error {
	return p.conn.Drain()
}

// NopPublisher discards events
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, models.Event) error { return nil }
func (NopPublisher) Close() error                                        { return nil }
