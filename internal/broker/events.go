package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"auction-service/internal/models"
	"auction-service/internal/util"
)

// EventPublisher builds and publishes auction domain events
type EventPublisher struct {
	publisher Publisher
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(publisher Publisher) *EventPublisher {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &EventPublisher{publisher: publisher}
}

// Close closes the underlying transport
func (ep *EventPublisher) Close() error {
	return ep.publisher.Close()
}

func newBaseEvent(eventType string, now time.Time) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: now,
	}
}

func auctionKey(auctionID int64) string {
	return fmt.Sprintf("auction-%d", auctionID)
}

func (ep *EventPublisher) publish(ctx context.Context, auctionID int64, event models.Event) error {
	eventType := event.Meta().EventType
	if err := ep.publisher.Publish(ctx, auctionKey(auctionID), event); err != nil {
		util.EventsPublishedTotal.WithLabelValues(eventType, "error").Inc()
		return err
	}
	util.EventsPublishedTotal.WithLabelValues(eventType, "ok").Inc()
	return nil
}

// PublishAuctionCreated publishes AuctionCreated event
func (ep *EventPublisher) PublishAuctionCreated(ctx context.Context, a *models.Auction) error {
	return ep.publish(ctx, a.ID, &models.AuctionCreatedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeAuctionCreated, a.CreatedAt),
		AuctionID:   a.ID,
		ItemInstID:  a.ItemInstID,
		SellerID:    a.SellerID,
		StartPrice:  a.StartPrice,
		BuyNowPrice: a.BuyNowPrice,
		EndTime:     a.EndTime,
	})
}

// PublishBidAccepted publishes BidAccepted event
func (ep *EventPublisher) PublishBidAccepted(ctx context.Context, a *models.Auction, bidderID, amount int64, at time.Time) error {
	return ep.publish(ctx, a.ID, &models.BidAcceptedEvent{
		BaseEvent: newBaseEvent(models.EventTypeBidAccepted, at),
		AuctionID: a.ID,
		BidderID:  bidderID,
		Amount:    amount,
		BidTime:   at,
	})
}

// PublishAuctionSold publishes AuctionSold event for a buy-now settlement
func (ep *EventPublisher) PublishAuctionSold(ctx context.Context, a *models.Auction, buyerID int64, at time.Time) error {
	return ep.publish(ctx, a.ID, &models.AuctionSoldEvent{
		BaseEvent: newBaseEvent(models.EventTypeAuctionSold, at),
		AuctionID: a.ID,
		BuyerID:   buyerID,
		Price:     a.CurrentHighestBid,
		SoldAt:    at,
	})
}

// PublishAuctionClosed publishes AuctionClosed event for an expired auction
func (ep *EventPublisher) PublishAuctionClosed(ctx context.Context, a *models.Auction, at time.Time) error {
	return ep.publish(ctx, a.ID, &models.AuctionClosedEvent{
		BaseEvent:       newBaseEvent(models.EventTypeAuctionClosed, at),
		AuctionID:       a.ID,
		Status:          a.Status,
		HighestBid:      a.CurrentHighestBid,
		LeadingBidderID: a.LeadingBidderID,
		ClosedAt:        at,
	})
}

// PublishAuctionCancelled publishes AuctionCancelled event
func (ep *EventPublisher) PublishAuctionCancelled(ctx context.Context, a *models.Auction, reason string, at time.Time) error {
	return ep.publish(ctx, a.ID, &models.AuctionCancelledEvent{
		BaseEvent: newBaseEvent(models.EventTypeAuctionCancelled, at),
		AuctionID: a.ID,
		SellerID:  a.SellerID,
		Reason:    reason,
	})
}

// EventHandler handles incoming events
type EventHandler struct {
	onSellerRemoved func(context.Context, *models.SellerRemovedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnSellerRemoved registers a handler for SellerRemoved events
func (eh *EventHandler) OnSellerRemoved(handler func(context.Context, *models.SellerRemovedEvent) error) {
	eh.onSellerRemoved = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		util.EventsConsumedTotal.WithLabelValues("unknown", "malformed").Inc()
		// a payload that never parses would block the partition forever
		util.GetLogger().Warn("Dropping malformed event", zap.Error(err), zap.Int64("offset", msg.Offset))
		return nil
	}

	log := util.GetLogger().With(
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))
	log.Debug("Handling event")

	switch baseEvent.EventType {
	case models.EventTypeSellerRemoved:
		if eh.onSellerRemoved == nil {
			return nil
		}
		var event models.SellerRemovedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			util.EventsConsumedTotal.WithLabelValues(baseEvent.EventType, "malformed").Inc()
			log.Warn("Dropping malformed SellerRemoved event", zap.Error(err))
			return nil
		}
		if err := eh.onSellerRemoved(ctx, &event); err != nil {
			util.EventsConsumedTotal.WithLabelValues(baseEvent.EventType, "error").Inc()
			return err
		}
		util.EventsConsumedTotal.WithLabelValues(baseEvent.EventType, "ok").Inc()

	default:
		log.Debug("Ignoring unhandled event type")
	}

	return nil
}
