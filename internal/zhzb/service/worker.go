package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Jonas0119/zhzb/internal/zhzb/models"
	"github.com/Jonas0119/zhzb/internal/zhzb/repository"
)

const rechargeBatchSize = 50

// PaymentStatusSource reports the gateway status of a payment reference
type PaymentStatusSource interface {
	PaymentStatus(ctx context.Context, reference string) (*models.PaymentStatusResponse, error)
}

// RechargeProcessor settles pending recharges in the background
type RechargeProcessor struct {
	repo       repository.Repository
	wallet     *WalletService
	gateway    PaymentStatusSource
	interval   time.Duration
	pendingTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time

	pauseUntil time.Time
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// NewRechargeProcessor creates a new recharge processor
func NewRechargeProcessor(repo repository.Repository, wallet *WalletService, gateway PaymentStatusSource, interval, pendingTTL time.Duration, logger *slog.Logger) *RechargeProcessor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RechargeProcessor{
		repo:       repo,
		wallet:     wallet,
		gateway:    gateway,
		interval:   interval,
		pendingTTL: pendingTTL,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		stopCh:     make(chan struct{}),
	}
}

// Start starts the recharge processor
func (p *RechargeProcessor) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.processLoop()
	}()
}

// Stop stops the recharge processor and waits for the current batch
func (p *RechargeProcessor) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *RechargeProcessor) processLoop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), p.interval*4)
			p.ProcessPending(ctx)
			cancel()
		case <-p.stopCh:
			return
		}
	}
}

// ProcessPending runs one pass over the pending recharges
func (p *RechargeProcessor) ProcessPending(ctx context.Context) {
	if p.now().Before(p.pauseUntil) {
		return
	}

	pending, err := p.repo.ListPendingRecharges(ctx, rechargeBatchSize)
	if err != nil {
		p.logger.Error("list pending recharges", "error", err)
		return
	}

	for _, rec := range pending {
		if ctx.Err() != nil {
			return
		}
		if !p.processRecharge(ctx, rec) {
			return
		}
	}
}

// processRecharge returns false when the pass should stop early
func (p *RechargeProcessor) processRecharge(ctx context.Context, rec models.Transaction) bool {
	if p.pendingTTL > 0 && p.now().Sub(rec.CreatedAt) > p.pendingTTL {
		p.settle(ctx, rec, false, "expired")
		return true
	}

	status, err := p.gateway.PaymentStatus(ctx, rec.PaymentRef)
	if err != nil {
		if retryAfter, ok := isRateLimited(err); ok {
			p.pauseUntil = p.now().Add(retryAfter)
			p.logger.Warn("payment gateway throttled", "retry_after", retryAfter)
			return false
		}
		p.logger.Error("payment status lookup", "transaction_id", rec.ID, "payment_ref", rec.PaymentRef, "error", err)
		return true
	}
	if status == nil {
		return true
	}

	switch status.Status {
	case models.PaymentSucceeded:
		p.settle(ctx, rec, true, status.Status)
	case models.PaymentFailed:
		p.settle(ctx, rec, false, status.Status)
	}
	return true
}

func (p *RechargeProcessor) settle(ctx context.Context, rec models.Transaction, success bool, reason string) {
	_, err := p.wallet.ConfirmRecharge(ctx, rec.ID, success)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrInvalidOrderStatus):
		// settled concurrently, e.g. by an administrator
		p.logger.Debug("recharge already settled", "transaction_id", rec.ID)
	default:
		p.logger.Error("settle recharge", "transaction_id", rec.ID, "reason", reason, "error", err)
	}
}
