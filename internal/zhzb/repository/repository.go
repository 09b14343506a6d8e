package repository

import (
	"context"
	"time"

	"github.com/Jonas0119/zhzb/internal/zhzb/models"
)

// Repository defines the interface for data access operations.
// Reads outside WithinTx take no locks and may observe slightly stale data.
type Repository interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User, acct *models.Account) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetAccount(ctx context.Context, userID int64) (*models.Account, error)
	ListUsers(ctx context.Context, offset, limit int, search string) ([]models.UserSummary, int64, error)
	GetStats(ctx context.Context, since time.Time) (*models.DashboardStats, error)

	// Order operations
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	ListActiveOrders(ctx context.Context, pointType models.PointType) ([]models.Order, error)
	ListUserOrders(ctx context.Context, userID int64) ([]models.Order, error)

	// Transaction log operations
	ListUserTransactions(ctx context.Context, userID int64) ([]models.Transaction, error)
	ListPendingRecharges(ctx context.Context, limit int) ([]models.Transaction, error)

	// Bank card operations
	CreateCard(ctx context.Context, card *models.BankCard) error
	ListCards(ctx context.Context, userID int64) ([]models.BankCard, error)
	GetCard(ctx context.Context, id, userID int64) (*models.BankCard, error)
	DeleteCard(ctx context.Context, id, userID int64) error

	// Announcement operations
	CreateAnnouncement(ctx context.Context, a *models.Announcement) error
	ListAnnouncements(ctx context.Context) ([]models.Announcement, error)
	ViewAnnouncement(ctx context.Context, id int64) (*models.Announcement, error)

	ListAdminLogs(ctx context.Context, offset, limit int) ([]models.AdminLog, int64, error)

	// WithinTx runs fn as one atomic unit. Records locked through Tx stay
	// locked until fn returns; a non-nil error discards every write.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// Initialize and close
	InitDB(databaseURI string) error
	Close() error
}

// AccountStore is the ledger's view of balances inside a transaction
type AccountStore interface {
	LockAccount(ctx context.Context, userID int64) (*models.Account, error)
	SaveAccount(ctx context.Context, acct *models.Account) error
}

// OrderStore holds sell and buy orders
type OrderStore interface {
	LockOrder(ctx context.Context, id int64) (*models.Order, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	SaveOrder(ctx context.Context, order *models.Order) error
}

// TransactionLog is append-only apart from the PENDING -> terminal status change
type TransactionLog interface {
	AppendTransaction(ctx context.Context, rec *models.Transaction) error
	LockTransaction(ctx context.Context, id int64) (*models.Transaction, error)
	CompleteTransaction(ctx context.Context, rec *models.Transaction) error
}

// UserStore covers administrative user mutations
type UserStore interface {
	LockUser(ctx context.Context, id int64) (*models.User, error)
	SaveUserRole(ctx context.Context, id int64, role string) error
	AddAdminLog(ctx context.Context, entry *models.AdminLog) error
}

// AnnouncementStore creates notices alongside their audit entry
type AnnouncementStore interface {
	CreateAnnouncement(ctx context.Context, a *models.Announcement) error
}

// Tx is the unit of work handed to WithinTx callbacks
type Tx interface {
	AccountStore
	OrderStore
	TransactionLog
	UserStore
	AnnouncementStore
}

func clampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}
	return offset, limit
}
