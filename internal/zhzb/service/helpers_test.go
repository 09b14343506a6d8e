package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Jonas0119/zhzb/internal/zhzb/events"
	"github.com/Jonas0119/zhzb/internal/zhzb/models"
	"github.com/Jonas0119/zhzb/internal/zhzb/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}

func seedAccount(t *testing.T, repo repository.Repository, name, aic, hh, balance string) int64 {
	t.Helper()
	id, err := repo.CreateUser(context.Background(),
		&models.User{Username: name, Email: name + "@example.com", PasswordHash: "x"},
		&models.Account{AICPoints: dec(aic), HHPoints: dec(hh), Balance: dec(balance)},
	)
	require.NoError(t, err)
	return id
}

func account(t *testing.T, repo repository.Repository, id int64) *models.Account {
	t.Helper()
	a, err := repo.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	keys   []string
	values []any
	err    error
}

func (p *recordingPublisher) PublishJSON(_ context.Context, topic, key string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	p.values = append(p.values, value)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

var _ events.Publisher = (*recordingPublisher)(nil)

var errPublish = errors.New("broker down")
