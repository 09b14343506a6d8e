package models

import "errors"

// Business errors returned by the market, wallet and admin services.
// Callers classify them with errors.Is.
var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrAccountNotFound       = errors.New("account not found")
	ErrOrderNotFound         = errors.New("order not found")
	ErrInsufficientPoints    = errors.New("insufficient points")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientRemaining = errors.New("insufficient remaining amount")
	ErrOrderNotAvailable     = errors.New("order not available")
	ErrOrderNotCancelable    = errors.New("order not cancelable")
	ErrInvalidOrderStatus    = errors.New("invalid order status")
	ErrForbidden             = errors.New("forbidden")

	ErrNegativeBalance      = errors.New("balance would become negative")
	ErrUserExists           = errors.New("username or email already taken")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrCardNotFound         = errors.New("bank card not found")
	ErrAnnouncementNotFound = errors.New("announcement not found")
	ErrTransactionNotFound  = errors.New("transaction not found")
)
