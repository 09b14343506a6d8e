package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Jonas0119/zhzb/internal/zhzb/models"
)

func seedUser(t *testing.T, r Repository, name string, balance string) int64 {
	t.Helper()
	id, err := r.CreateUser(context.Background(),
		&models.User{Username: name, Email: name + "@example.com", PasswordHash: "x"},
		&models.Account{AICPoints: decimal.NewFromInt(100), Balance: decimal.RequireFromString(balance)},
	)
	require.NoError(t, err)
	return id
}

func TestMemoryCreateUserRejectsDuplicates(t *testing.T) {
	r := NewMemoryRepository()
	seedUser(t, r, "alice", "10")

	_, err := r.CreateUser(context.Background(),
		&models.User{Username: "other", Email: "alice@example.com"}, &models.Account{})
	require.ErrorIs(t, err, models.ErrUserExists)

	u, err := r.GetUserByLogin(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, "alice", u.Username)

	missing, err := r.GetUserByLogin(context.Background(), "nobody")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestMemoryWithinTxCommitsOnSuccess(t *testing.T) {
	r := NewMemoryRepository()
	id := seedUser(t, r, "alice", "10")
	ctx := context.Background()

	err := r.WithinTx(ctx, func(tx Tx) error {
		a, err := tx.LockAccount(ctx, id)
		if err != nil {
			return err
		}
		a.Balance = decimal.NewFromInt(25)
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		return tx.AppendTransaction(ctx, &models.Transaction{UserID: id, Type: models.TxRecharge, Status: models.TxCompleted})
	})
	require.NoError(t, err)

	a, err := r.GetAccount(ctx, id)
	require.NoError(t, err)
	require.True(t, a.Balance.Equal(decimal.NewFromInt(25)))

	recs, err := r.ListUserTransactions(ctx, id)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestMemoryWithinTxDiscardsOnError(t *testing.T) {
	r := NewMemoryRepository()
	id := seedUser(t, r, "alice", "10")
	ctx := context.Background()
	boom := errors.New("boom")

	err := r.WithinTx(ctx, func(tx Tx) error {
		a, err := tx.LockAccount(ctx, id)
		if err != nil {
			return err
		}
		a.Balance = decimal.Zero
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, &models.Order{Type: models.OrderSell, Status: models.StatusActive, UserID: id}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	a, _ := r.GetAccount(ctx, id)
	require.True(t, a.Balance.Equal(decimal.NewFromInt(10)))
	orders, _ := r.ListUserOrders(ctx, id)
	require.Empty(t, orders)
}

func TestMemorySaveRequiresLock(t *testing.T) {
	r := NewMemoryRepository()
	id := seedUser(t, r, "alice", "10")
	ctx := context.Background()

	err := r.WithinTx(ctx, func(tx Tx) error {
		return tx.SaveAccount(ctx, &models.Account{UserID: id})
	})
	require.Error(t, err)
}

func TestMemoryLockQueuesBehindHolder(t *testing.T) {
	r := NewMemoryRepository()
	id := seedUser(t, r, "alice", "0")
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.WithinTx(ctx, func(tx Tx) error {
				a, err := tx.LockAccount(ctx, id)
				if err != nil {
					return err
				}
				time.Sleep(time.Millisecond)
				a.Balance = a.Balance.Add(decimal.NewFromInt(1))
				return tx.SaveAccount(ctx, a)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	a, _ := r.GetAccount(ctx, id)
	require.True(t, a.Balance.Equal(decimal.NewFromInt(workers)), "got %s", a.Balance)
}

func TestMemoryLockHonoursContext(t *testing.T) {
	r := NewMemoryRepository()
	id := seedUser(t, r, "alice", "0")

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = r.WithinTx(context.Background(), func(tx Tx) error {
			if _, err := tx.LockAccount(context.Background(), id); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.LockAccount(ctx, id)
		return err
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryOrderListings(t *testing.T) {
	r := NewMemoryRepository()
	alice := seedUser(t, r, "alice", "0")
	bob := seedUser(t, r, "bob", "0")
	ctx := context.Background()

	base := time.Now().UTC()
	orders := []*models.Order{
		{Type: models.OrderSell, Status: models.StatusActive, PointType: models.PointAIC, UserID: alice, SellerID: alice, CreatedAt: base},
		{Type: models.OrderSell, Status: models.StatusActive, PointType: models.PointHH, UserID: alice, SellerID: alice, CreatedAt: base.Add(time.Second)},
		{Type: models.OrderSell, Status: models.StatusCancelled, PointType: models.PointAIC, UserID: alice, SellerID: alice, CreatedAt: base.Add(2 * time.Second)},
		{Type: models.OrderBuy, Status: models.StatusPaid, PointType: models.PointAIC, UserID: bob, SellerID: alice, CreatedAt: base.Add(3 * time.Second)},
	}
	require.NoError(t, r.WithinTx(ctx, func(tx Tx) error {
		for _, o := range orders {
			if err := tx.CreateOrder(ctx, o); err != nil {
				return err
			}
		}
		return nil
	}))

	all, err := r.ListActiveOrders(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, orders[1].ID, all[0].ID, "newest first")

	aic, err := r.ListActiveOrders(ctx, models.PointAIC)
	require.NoError(t, err)
	require.Len(t, aic, 1)
	require.Equal(t, orders[0].ID, aic[0].ID)

	mine, err := r.ListUserOrders(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 3)

	_, err = r.GetOrder(ctx, 999)
	require.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestMemoryCardsAreScopedToOwner(t *testing.T) {
	r := NewMemoryRepository()
	alice := seedUser(t, r, "alice", "0")
	bob := seedUser(t, r, "bob", "0")
	ctx := context.Background()

	card := &models.BankCard{UserID: alice, CardNumber: "4111111111111111", HolderName: "A", BankName: "B"}
	require.NoError(t, r.CreateCard(ctx, card))

	_, err := r.GetCard(ctx, card.ID, bob)
	require.ErrorIs(t, err, models.ErrCardNotFound)
	require.ErrorIs(t, r.DeleteCard(ctx, card.ID, bob), models.ErrCardNotFound)
	require.NoError(t, r.DeleteCard(ctx, card.ID, alice))

	cards, err := r.ListCards(ctx, alice)
	require.NoError(t, err)
	require.Empty(t, cards)
}

func TestMemoryAnnouncementViews(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	pub := &models.Announcement{Title: "t", Content: "c", Status: models.AnnouncementPublished}
	draft := &models.Announcement{Title: "d", Content: "c", Status: models.AnnouncementDraft}
	require.NoError(t, r.CreateAnnouncement(ctx, pub))
	require.NoError(t, r.CreateAnnouncement(ctx, draft))

	list, err := r.ListAnnouncements(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	a, err := r.ViewAnnouncement(ctx, pub.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, a.ViewCount)
	a, _ = r.ViewAnnouncement(ctx, pub.ID)
	require.EqualValues(t, 2, a.ViewCount)

	_, err = r.ViewAnnouncement(ctx, draft.ID)
	require.ErrorIs(t, err, models.ErrAnnouncementNotFound)
}

func TestMemoryListUsersAndStats(t *testing.T) {
	r := NewMemoryRepository()
	seedUser(t, r, "alice", "10")
	seedUser(t, r, "bob", "5.5")
	seedUser(t, r, "carol", "1")
	ctx := context.Background()

	users, total, err := r.ListUsers(ctx, 0, 2, "")
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, users, 2)

	users, total, err = r.ListUsers(ctx, 0, 10, "BO")
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "bob", users[0].Username)

	stats, err := r.GetStats(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.TotalUsers)
	require.EqualValues(t, 3, stats.TodayUsers)
	require.Equal(t, "16.5", stats.TotalBalance.String())
	require.Equal(t, "300", stats.TotalAIC.String())
}
