package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Jonas0119/zhzb/internal/zhzb/ledger"
	"github.com/Jonas0119/zhzb/internal/zhzb/models"
	"github.com/Jonas0119/zhzb/internal/zhzb/repository"
	"github.com/Jonas0119/zhzb/internal/zhzb/utils"
)

// WalletService handles cash balances, recharges, withdrawals and bank cards
type WalletService struct {
	repo    repository.Repository
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewWalletService creates a new wallet service
func NewWalletService(repo repository.Repository, logger *slog.Logger, metrics *Metrics) *WalletService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WalletService{
		repo:    repo,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Info returns the cash and point balances of a user
func (s *WalletService) Info(ctx context.Context, userID int64) (*models.WalletInfo, error) {
	acct, err := s.repo.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.WalletInfo{
		Balance:       acct.Balance,
		FrozenBalance: acct.FrozenBalance,
		Points: map[models.PointType]decimal.Decimal{
			models.PointAIC: acct.AICPoints,
			models.PointHH:  acct.HHPoints,
		},
		FrozenPoints: map[models.PointType]decimal.Decimal{
			models.PointAIC: acct.FrozenAICPoints,
			models.PointHH:  acct.FrozenHHPoints,
		},
	}, nil
}

// PointsBalance returns the point balances of a user
func (s *WalletService) PointsBalance(ctx context.Context, userID int64) (*models.PointsBalance, error) {
	acct, err := s.repo.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.PointsBalance{
		AIC:       acct.AICPoints,
		HH:        acct.HHPoints,
		FrozenAIC: acct.FrozenAICPoints,
		FrozenHH:  acct.FrozenHHPoints,
	}, nil
}

// Recharge credits cash immediately and records a completed recharge
func (s *WalletService) Recharge(ctx context.Context, userID int64, amount decimal.Decimal) (*models.Transaction, error) {
	amount = models.RoundMoney(amount)
	if err := models.ValidateQuantity("amount", amount); err != nil {
		return nil, err
	}

	var rec *models.Transaction
	err := s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		l := ledger.New(tx, tx)
		if err := l.ApplyDelta(ctx, userID, ledger.Cash, amount); err != nil {
			return err
		}
		var err error
		rec, err = l.Record(ctx, ledger.Entry{
			UserID: userID,
			Type:   models.TxRecharge,
			Title:  "Account recharge",
			Amount: amount,
		})
		if err != nil {
			return err
		}
		return l.Flush(ctx)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncRecharge(string(models.TxCompleted))
	s.logger.Info("account recharged", "user_id", userID, "amount", amount.String(), "transaction_id", rec.ID)
	return rec, nil
}

// RequestRecharge records a pending recharge awaiting payment confirmation.
// The balance is untouched until ConfirmRecharge.
func (s *WalletService) RequestRecharge(ctx context.Context, userID int64, amount decimal.Decimal) (*models.Transaction, error) {
	amount = models.RoundMoney(amount)
	if err := models.ValidateQuantity("amount", amount); err != nil {
		return nil, err
	}

	var rec *models.Transaction
	err := s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		l := ledger.New(tx, tx)
		var err error
		rec, err = l.Record(ctx, ledger.Entry{
			UserID:     userID,
			Type:       models.TxRecharge,
			Status:     models.TxPending,
			Title:      "Account recharge",
			Amount:     amount,
			PaymentRef: uuid.NewString(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncRecharge(string(models.TxPending))
	s.logger.Info("recharge requested", "user_id", userID, "amount", amount.String(), "payment_ref", rec.PaymentRef)
	return rec, nil
}

// ConfirmRecharge settles a pending recharge. A successful payment credits
// the balance; a failed one only closes the record.
func (s *WalletService) ConfirmRecharge(ctx context.Context, txID int64, success bool) (*models.Transaction, error) {
	var rec *models.Transaction
	err := s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		rec, err = tx.LockTransaction(ctx, txID)
		if err != nil {
			return err
		}
		if rec.Type != models.TxRecharge || rec.Status != models.TxPending {
			return fmt.Errorf("%w: transaction %d is %s %s", models.ErrInvalidOrderStatus, txID, rec.Type, rec.Status)
		}

		l := ledger.New(tx, tx)
		acct, err := l.Account(ctx, rec.UserID)
		if err != nil {
			return err
		}
		if !success {
			rec.Status = models.TxFailed
			rec.BalanceAfter = acct.Balance
			return tx.CompleteTransaction(ctx, rec)
		}

		if err := l.ApplyDelta(ctx, rec.UserID, ledger.Cash, rec.Amount); err != nil {
			return err
		}
		rec.Status = models.TxCompleted
		rec.BalanceAfter = acct.Balance
		if err := tx.CompleteTransaction(ctx, rec); err != nil {
			return err
		}
		return l.Flush(ctx)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncRecharge(string(rec.Status))
	s.logger.Info("recharge settled", "transaction_id", txID, "user_id", rec.UserID, "status", rec.Status)
	return rec, nil
}

// Withdraw debits cash towards one of the user's bank cards
func (s *WalletService) Withdraw(ctx context.Context, userID int64, amount decimal.Decimal, cardID int64) (*models.Transaction, error) {
	amount = models.RoundMoney(amount)
	if err := models.ValidateQuantity("amount", amount); err != nil {
		return nil, err
	}
	card, err := s.repo.GetCard(ctx, cardID, userID)
	if err != nil {
		return nil, err
	}

	var rec *models.Transaction
	err = s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		l := ledger.New(tx, tx)
		acct, err := l.Account(ctx, userID)
		if err != nil {
			return err
		}
		if acct.Balance.LessThan(amount) {
			return fmt.Errorf("%w: balance %s, requested %s", models.ErrInsufficientBalance, acct.Balance, amount)
		}
		if err := l.ApplyDelta(ctx, userID, ledger.Cash, amount.Neg()); err != nil {
			return err
		}
		rec, err = l.Record(ctx, ledger.Entry{
			UserID:      userID,
			Type:        models.TxWithdraw,
			Title:       "Withdrawal",
			Description: fmt.Sprintf("%s card ending %s", card.BankName, lastDigits(card.CardNumber)),
			Amount:      amount.Neg(),
		})
		if err != nil {
			return err
		}
		return l.Flush(ctx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal recorded", "user_id", userID, "amount", amount.String(), "card_id", cardID)
	return rec, nil
}

// Transactions returns the user's ledger records, newest first
func (s *WalletService) Transactions(ctx context.Context, userID int64) ([]models.Transaction, error) {
	return s.repo.ListUserTransactions(ctx, userID)
}

// ListCards returns the user's bank cards
func (s *WalletService) ListCards(ctx context.Context, userID int64) ([]models.BankCard, error) {
	return s.repo.ListCards(ctx, userID)
}

// AddCard registers a bank card after checking its number
func (s *WalletService) AddCard(ctx context.Context, userID int64, card models.BankCard) (*models.BankCard, error) {
	card.CardNumber = strings.ReplaceAll(strings.TrimSpace(card.CardNumber), " ", "")
	card.HolderName = strings.TrimSpace(card.HolderName)
	card.BankName = strings.TrimSpace(card.BankName)
	if !utils.ValidateCardNumber(card.CardNumber) {
		return nil, fmt.Errorf("%w: card number fails checksum", models.ErrInvalidInput)
	}
	if card.HolderName == "" || card.BankName == "" {
		return nil, fmt.Errorf("%w: holder name and bank name are required", models.ErrInvalidInput)
	}

	card.ID = 0
	card.UserID = userID
	card.CreatedAt = s.now()
	if err := s.repo.CreateCard(ctx, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// DeleteCard removes one of the user's bank cards
func (s *WalletService) DeleteCard(ctx context.Context, userID, cardID int64) error {
	return s.repo.DeleteCard(ctx, cardID, userID)
}

func lastDigits(number string) string {
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}
