package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType is SELL for listings and BUY for fills
type OrderType string

const (
	OrderSell OrderType = "SELL"
	OrderBuy  OrderType = "BUY"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusActive    OrderStatus = "ACTIVE"
	StatusPaid      OrderStatus = "PAID"
	StatusCompleted OrderStatus = "COMPLETED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// Numeric policy of the market
const (
	MoneyPlaces  = 2
	PointsPlaces = 4
)

var (
	// FeeRate is charged on the gross cost of a fill and deducted from the seller's proceeds
	FeeRate = decimal.RequireFromString("0.003")
	// MaxQuantity bounds amounts and prices accepted from callers
	MaxQuantity = decimal.NewFromInt(1_000_000)
)

// RoundMoney rounds a cash value to two decimal places
func RoundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(MoneyPlaces) }

// RoundPoints rounds a point quantity to four decimal places
func RoundPoints(d decimal.Decimal) decimal.Decimal { return d.Round(PointsPlaces) }

// ValidateQuantity rejects non-positive or absurdly large values
func ValidateQuantity(name string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidInput, name)
	}
	if d.GreaterThan(MaxQuantity) {
		return fmt.Errorf("%w: %s must not exceed %s", ErrInvalidInput, name, MaxQuantity)
	}
	return nil
}

// Order represents a sell listing or a buyer's fill
type Order struct {
	ID              int64           `json:"id"`
	Type            OrderType       `json:"type"`
	Status          OrderStatus     `json:"status"`
	PointType       PointType       `json:"point_type"`
	Amount          decimal.Decimal `json:"amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	Fee             decimal.Decimal `json:"fee"`
	UserID          int64           `json:"user_id"`
	SellerID        int64           `json:"seller_id"`
	SellerName      string          `json:"seller_name,omitempty"`
	BuyerName       string          `json:"buyer_name,omitempty"`
	Rating          *int            `json:"rating,omitempty"`
	Comment         string          `json:"comment,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusActive: {StatusActive, StatusCompleted, StatusCancelled},
	StatusPaid:   {StatusCompleted},
}

// IsTerminal reports whether no transition may leave the status
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether the state machine permits moving to next
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the order to next, stamping completion time when it finishes
func (o *Order) TransitionTo(next OrderStatus, now time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidOrderStatus, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = now
	if next == StatusCompleted {
		o.CompletedAt = &now
	}
	return nil
}

// Fill decrements the remaining amount of an active sell order. The order
// completes when nothing is left.
func (o *Order) Fill(amount decimal.Decimal, now time.Time) error {
	if o.Status != StatusActive {
		return ErrOrderNotAvailable
	}
	if o.RemainingAmount.LessThan(amount) {
		return ErrInsufficientRemaining
	}
	o.RemainingAmount = RoundPoints(o.RemainingAmount.Sub(amount))
	next := StatusActive
	if o.RemainingAmount.IsZero() {
		next = StatusCompleted
	}
	return o.TransitionTo(next, now)
}
