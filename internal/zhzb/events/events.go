// Package events publishes market events to Kafka.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Jonas0119/zhzb/internal/zhzb/models"
)

// TradeSettled is the event type emitted after a fill commits
const TradeSettled = "trade.settled"

// Envelope carries the metadata shared by every event
type Envelope struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	EventVersion int       `json:"event_version"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id,omitempty"`
}

// NewEnvelope stamps a fresh event id and timestamp
func NewEnvelope(eventType string, version int, requestID string) (Envelope, error) {
	if eventType == "" {
		return Envelope{}, fmt.Errorf("event_type is required")
	}
	if version <= 0 {
		return Envelope{}, fmt.Errorf("event_version must be positive")
	}
	return Envelope{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		EventVersion: version,
		Timestamp:    time.Now().UTC(),
		RequestID:    requestID,
	}, nil
}

// TradeSettledEvent describes one committed fill
type TradeSettledEvent struct {
	Envelope
	SellOrderID     int64            `json:"sell_order_id"`
	BuyOrderID      int64            `json:"buy_order_id"`
	SellerID        int64            `json:"seller_id"`
	BuyerID         int64            `json:"buyer_id"`
	PointType       models.PointType `json:"point_type"`
	Amount          decimal.Decimal  `json:"amount"`
	UnitPrice       decimal.Decimal  `json:"unit_price"`
	Cost            decimal.Decimal  `json:"cost"`
	Fee             decimal.Decimal  `json:"fee"`
	RemainingAmount decimal.Decimal  `json:"remaining_amount"`
}

// Publisher sends a JSON encoded value to a topic
type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, value any) error
	Close() error
}

// NopPublisher drops every event. It is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishJSON(context.Context, string, string, any) error { return nil }
func (NopPublisher) Close() error                                           { return nil }
