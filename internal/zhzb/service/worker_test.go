package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Jonas0119/zhzb/internal/zhzb/models"
	"github.com/Jonas0119/zhzb/internal/zhzb/repository"
)

type fakeGateway struct {
	mu       sync.Mutex
	statuses map[string]string
	err      error
	calls    int
}

func (g *fakeGateway) PaymentStatus(_ context.Context, ref string) (*models.PaymentStatusResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	status, ok := g.statuses[ref]
	if !ok {
		return nil, nil
	}
	return &models.PaymentStatusResponse{Reference: ref, Status: status}, nil
}

type processorFixture struct {
	repo    *repository.MemoryRepository
	wallet  *WalletService
	gateway *fakeGateway
	proc    *RechargeProcessor
	userID  int64
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	repo := repository.NewMemoryRepository()
	wallet := NewWalletService(repo, discardLogger(), nil)
	gateway := &fakeGateway{statuses: map[string]string{}}
	return &processorFixture{
		repo:    repo,
		wallet:  wallet,
		gateway: gateway,
		proc:    NewRechargeProcessor(repo, wallet, gateway, time.Hour, 30*time.Minute, discardLogger()),
		userID:  seedAccount(t, repo, "alice", "0", "0", "0"),
	}
}

func (f *processorFixture) request(t *testing.T, amount string) *models.Transaction {
	t.Helper()
	rec, err := f.wallet.RequestRecharge(context.Background(), f.userID, dec(amount))
	require.NoError(t, err)
	return rec
}

func (f *processorFixture) status(t *testing.T, id int64) models.TransactionStatus {
	t.Helper()
	recs, err := f.repo.ListUserTransactions(context.Background(), f.userID)
	require.NoError(t, err)
	for _, rec := range recs {
		if rec.ID == id {
			return rec.Status
		}
	}
	t.Fatalf("transaction %d not found", id)
	return ""
}

func TestProcessPendingSettlesByGatewayStatus(t *testing.T) {
	f := newProcessorFixture(t)
	paid := f.request(t, "10")
	declined := f.request(t, "20")
	waiting := f.request(t, "30")
	f.gateway.statuses[paid.PaymentRef] = models.PaymentSucceeded
	f.gateway.statuses[declined.PaymentRef] = models.PaymentFailed
	f.gateway.statuses[waiting.PaymentRef] = models.PaymentProcessing

	f.proc.ProcessPending(context.Background())

	require.Equal(t, models.TxCompleted, f.status(t, paid.ID))
	require.Equal(t, models.TxFailed, f.status(t, declined.ID))
	require.Equal(t, models.TxPending, f.status(t, waiting.ID))
	requireDec(t, "10", account(t, f.repo, f.userID).Balance)

	pending, err := f.repo.ListPendingRecharges(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestProcessPendingExpiresStaleRecharges(t *testing.T) {
	f := newProcessorFixture(t)
	stale := f.request(t, "10")
	f.gateway.statuses[stale.PaymentRef] = models.PaymentSucceeded
	f.proc.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }

	f.proc.ProcessPending(context.Background())

	require.Equal(t, models.TxFailed, f.status(t, stale.ID))
	require.Zero(t, f.gateway.calls)
	requireDec(t, "0", account(t, f.repo, f.userID).Balance)
}

func TestProcessPendingBacksOffWhenThrottled(t *testing.T) {
	f := newProcessorFixture(t)
	f.request(t, "10")
	f.request(t, "20")
	f.gateway.err = &RateLimitError{RetryAfter: time.Minute}

	f.proc.ProcessPending(context.Background())
	require.Equal(t, 1, f.gateway.calls, "pass stops at the first throttled lookup")

	f.proc.ProcessPending(context.Background())
	require.Equal(t, 1, f.gateway.calls, "paused until retry-after elapses")

	f.gateway.err = nil
	f.proc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	f.proc.ProcessPending(context.Background())
	require.Equal(t, 3, f.gateway.calls)
}

func TestProcessPendingContinuesPastLookupErrors(t *testing.T) {
	f := newProcessorFixture(t)
	f.request(t, "10")
	f.request(t, "20")
	f.gateway.err = errors.New("connection refused")

	f.proc.ProcessPending(context.Background())
	require.Equal(t, 2, f.gateway.calls)
}

func TestProcessorStartStop(t *testing.T) {
	f := newProcessorFixture(t)
	rec := f.request(t, "5")
	f.gateway.statuses[rec.PaymentRef] = models.PaymentSucceeded
	f.proc.interval = 10 * time.Millisecond

	f.proc.Start()
	require.Eventually(t, func() bool {
		bal, err := f.repo.GetAccount(context.Background(), f.userID)
		return err == nil && bal.Balance.Equal(dec("5"))
	}, time.Second, 10*time.Millisecond)
	f.proc.Stop()
}
