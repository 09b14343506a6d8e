// Package ledger applies balance changes to user accounts inside a single
// repository transaction and journals the cash-affecting ones.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Jonas0119/zhzb/internal/zhzb/models"
	"github.com/Jonas0119/zhzb/internal/zhzb/repository"
	"github.com/shopspring/decimal"
)

// Field names one balance column of an account
type Field string

const (
	AvailableAIC Field = "available_aic"
	AvailableHH  Field = "available_hh"
	FrozenAIC    Field = "frozen_aic"
	FrozenHH     Field = "frozen_hh"
	Cash         Field = "balance"
	FrozenCash   Field = "frozen_balance"
)

// AvailableField returns the spendable field for a point type
func AvailableField(pt models.PointType) Field {
	if pt == models.PointHH {
		return AvailableHH
	}
	return AvailableAIC
}

// FrozenField returns the reserved field for a point type
func FrozenField(pt models.PointType) Field {
	if pt == models.PointHH {
		return FrozenHH
	}
	return FrozenAIC
}

func (f Field) isCash() bool { return f == Cash || f == FrozenCash }

func (f Field) ref(a *models.Account) (*decimal.Decimal, error) {
	switch f {
	case AvailableAIC:
		return &a.AICPoints, nil
	case AvailableHH:
		return &a.HHPoints, nil
	case FrozenAIC:
		return &a.FrozenAICPoints, nil
	case FrozenHH:
		return &a.FrozenHHPoints, nil
	case Cash:
		return &a.Balance, nil
	case FrozenCash:
		return &a.FrozenBalance, nil
	}
	return nil, fmt.Errorf("unknown balance field %q", f)
}

// Ledger caches the accounts locked by the enclosing transaction. It is not
// safe for concurrent use; create one per WithinTx callback.
type Ledger struct {
	accounts repository.AccountStore
	journal  repository.TransactionLog
	loaded   map[int64]*models.Account
	dirty    map[int64]bool
	now      func() time.Time
}

// New binds a ledger to the account store and transaction log of one transaction
func New(accounts repository.AccountStore, journal repository.TransactionLog) *Ledger {
	return &Ledger{
		accounts: accounts,
		journal:  journal,
		loaded:   make(map[int64]*models.Account),
		dirty:    make(map[int64]bool),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Account returns the locked account of userID, taking the lock on first use
func (l *Ledger) Account(ctx context.Context, userID int64) (*models.Account, error) {
	if a, ok := l.loaded[userID]; ok {
		return a, nil
	}
	a, err := l.accounts.LockAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	l.loaded[userID] = a
	return a, nil
}

// ApplyDelta adds delta to one field. The new value is checked before the
// account is touched, so a failed call leaves the account unchanged.
func (l *Ledger) ApplyDelta(ctx context.Context, userID int64, field Field, delta decimal.Decimal) error {
	a, err := l.Account(ctx, userID)
	if err != nil {
		return err
	}
	cur, err := field.ref(a)
	if err != nil {
		return err
	}

	next := cur.Add(delta)
	if field.isCash() {
		next = models.RoundMoney(next)
	} else {
		next = models.RoundPoints(next)
	}
	if next.IsNegative() {
		return fmt.Errorf("%w: user %d %s is %s, delta %s", models.ErrNegativeBalance, userID, field, cur, delta)
	}

	*cur = next
	a.UpdatedAt = l.now()
	l.dirty[userID] = true
	return nil
}

// Freeze moves amount of a point type from available to frozen
func (l *Ledger) Freeze(ctx context.Context, userID int64, pt models.PointType, amount decimal.Decimal) error {
	a, err := l.Account(ctx, userID)
	if err != nil {
		return err
	}
	if a.Available(pt).LessThan(amount) {
		return fmt.Errorf("%w: %s available %s, requested %s", models.ErrInsufficientPoints, pt, a.Available(pt), amount)
	}
	if err := l.ApplyDelta(ctx, userID, AvailableField(pt), amount.Neg()); err != nil {
		return err
	}
	return l.ApplyDelta(ctx, userID, FrozenField(pt), amount)
}

// Unfreeze moves amount of a point type from frozen back to available
func (l *Ledger) Unfreeze(ctx context.Context, userID int64, pt models.PointType, amount decimal.Decimal) error {
	if err := l.ApplyDelta(ctx, userID, FrozenField(pt), amount.Neg()); err != nil {
		return err
	}
	return l.ApplyDelta(ctx, userID, AvailableField(pt), amount)
}

// Entry describes a journal record to append
type Entry struct {
	UserID      int64
	Type        models.TransactionType
	Status      models.TransactionStatus
	Title       string
	Description string
	Amount      decimal.Decimal
	OrderID     *int64
	PaymentRef  string
}

// Record appends a journal entry whose balance_after is the account's cash
// balance at this moment.
func (l *Ledger) Record(ctx context.Context, e Entry) (*models.Transaction, error) {
	a, err := l.Account(ctx, e.UserID)
	if err != nil {
		return nil, err
	}
	status := e.Status
	if status == "" {
		status = models.TxCompleted
	}
	rec := &models.Transaction{
		UserID:         e.UserID,
		Type:           e.Type,
		Status:         status,
		Title:          e.Title,
		Description:    e.Description,
		Amount:         models.RoundMoney(e.Amount),
		BalanceAfter:   a.Balance,
		RelatedOrderID: e.OrderID,
		PaymentRef:     e.PaymentRef,
		CreatedAt:      l.now(),
	}
	if err := l.journal.AppendTransaction(ctx, rec); err != nil {
		return nil, fmt.Errorf("append %s record for user %d: %w", e.Type, e.UserID, err)
	}
	return rec, nil
}

// Flush writes every modified account back to the store
func (l *Ledger) Flush(ctx context.Context) error {
	ids := make([]int64, 0, len(l.dirty))
	for id := range l.dirty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := l.accounts.SaveAccount(ctx, l.loaded[id]); err != nil {
			return fmt.Errorf("save account %d: %w", id, err)
		}
		delete(l.dirty, id)
	}
	return nil
}
