package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PointType is one of the two point denominations traded on the market
type PointType string

const (
	PointAIC PointType = "AIC"
	PointHH  PointType = "HH"
)

// ParsePointType normalizes and validates a point type
func ParsePointType(s string) (PointType, error) {
	switch PointType(strings.ToUpper(strings.TrimSpace(s))) {
	case PointAIC:
		return PointAIC, nil
	case PointHH:
		return PointHH, nil
	}
	return "", fmt.Errorf("%w: unknown point type %q", ErrInvalidInput, s)
}

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a registered user
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Account holds the balances owned by a single user
type Account struct {
	UserID          int64           `json:"user_id"`
	Username        string          `json:"username"`
	AICPoints       decimal.Decimal `json:"aic_points"`
	HHPoints        decimal.Decimal `json:"hh_points"`
	FrozenAICPoints decimal.Decimal `json:"frozen_aic_points"`
	FrozenHHPoints  decimal.Decimal `json:"frozen_hh_points"`
	Balance         decimal.Decimal `json:"balance"`
	FrozenBalance   decimal.Decimal `json:"frozen_balance"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Available returns the spendable quantity of the given point type
func (a *Account) Available(pt PointType) decimal.Decimal {
	if pt == PointHH {
		return a.HHPoints
	}
	return a.AICPoints
}

// Frozen returns the quantity of the given point type reserved by open sell orders
func (a *Account) Frozen(pt PointType) decimal.Decimal {
	if pt == PointHH {
		return a.FrozenHHPoints
	}
	return a.FrozenAICPoints
}

// Transaction types
type TransactionType string

const (
	TxRecharge TransactionType = "RECHARGE"
	TxWithdraw TransactionType = "WITHDRAW"
	TxBuy      TransactionType = "BUY"
	TxSell     TransactionType = "SELL"
	TxFee      TransactionType = "FEE"
)

// Transaction statuses
type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxCompleted TransactionStatus = "COMPLETED"
	TxFailed    TransactionStatus = "FAILED"
)

// Transaction is an append-only ledger record of a balance-affecting event
type Transaction struct {
	ID             int64             `json:"id"`
	UserID         int64             `json:"user_id"`
	Type           TransactionType   `json:"type"`
	Status         TransactionStatus `json:"status"`
	Title          string            `json:"title"`
	Amount         decimal.Decimal   `json:"amount"`
	BalanceAfter   decimal.Decimal   `json:"balance_after"`
	Description    string            `json:"description,omitempty"`
	RelatedOrderID *int64            `json:"related_order_id,omitempty"`
	PaymentRef     string            `json:"payment_ref,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// BankCard is a withdrawal destination registered by a user
type BankCard struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	CardNumber string    `json:"card_number"`
	HolderName string    `json:"holder_name"`
	BankName   string    `json:"bank_name"`
	Phone      string    `json:"phone"`
	IsDefault  bool      `json:"is_default"`
	CreatedAt  time.Time `json:"created_at"`
}

// Announcement statuses
const (
	AnnouncementDraft     = "draft"
	AnnouncementPublished = "published"
	AnnouncementArchived  = "archived"
)

// Announcement is a notice shown to all users
type Announcement struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	IsImportant bool      `json:"is_important"`
	ViewCount   int64     `json:"view_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AdminLog records an administrative action
type AdminLog struct {
	ID           int64          `json:"id"`
	AdminID      int64          `json:"admin_id"`
	AdminName    string         `json:"admin_name,omitempty"`
	Action       string         `json:"action"`
	TargetUserID *int64         `json:"target_user_id,omitempty"`
	TargetName   string         `json:"target_user_name,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// SettlementResult summarizes a fill
type SettlementResult struct {
	OrderID         int64           `json:"order_id"`
	BuyOrderID      int64           `json:"buy_order_id"`
	Cost            decimal.Decimal `json:"cost"`
	Fee             decimal.Decimal `json:"fee"`
	FinalPay        decimal.Decimal `json:"final_pay"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
}

// WalletInfo is the cash and point overview of an account
type WalletInfo struct {
	Balance       decimal.Decimal               `json:"balance"`
	FrozenBalance decimal.Decimal               `json:"frozen_balance"`
	Points        map[PointType]decimal.Decimal `json:"points"`
	FrozenPoints  map[PointType]decimal.Decimal `json:"frozen_points"`
}

// PointsBalance is the point overview of an account
type PointsBalance struct {
	AIC       decimal.Decimal `json:"AIC"`
	HH        decimal.Decimal `json:"HH"`
	FrozenAIC decimal.Decimal `json:"frozenAIC"`
	FrozenHH  decimal.Decimal `json:"frozenHH"`
}

// DashboardStats aggregates platform totals for administrators
type DashboardStats struct {
	TotalUsers   int64           `json:"total_users"`
	TodayUsers   int64           `json:"today_new_users"`
	TotalAIC     decimal.Decimal `json:"total_aic"`
	TotalHH      decimal.Decimal `json:"total_hh"`
	TotalBalance decimal.Decimal `json:"total_balance"`
}

// UserSummary is a user row in the admin user list
type UserSummary struct {
	ID        int64           `json:"id"`
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	Role      string          `json:"role"`
	AICPoints decimal.Decimal `json:"aic_points"`
	HHPoints  decimal.Decimal `json:"hh_points"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

// Page is a paginated result
type Page[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

// NewPage computes the page count for a result slice
func NewPage[T any](items []T, total int64, page, limit int) Page[T] {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, Page: page, Limit: limit, TotalPages: pages}
}

// PaymentStatusResponse represents the response from the payment gateway
type PaymentStatusResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// Payment gateway statuses
const (
	PaymentProcessing = "PROCESSING"
	PaymentSucceeded  = "SUCCEEDED"
	PaymentFailed     = "FAILED"
)
