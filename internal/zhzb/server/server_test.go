package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Jonas0119/zhzb/internal/zhzb/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		RunAddress: ":0",
		JWTSecret:  "test-secret",
		JWTTTL:     time.Hour,
		Env:        "test",
	}
	cfg.RateLimit.PerMinute = 1000
	cfg.Kafka.TradeTopic = "trades"
	cfg.Signup.AICPoints = 100
	cfg.Signup.Balance = 1000
	cfg.Admin.Username = "root"
	cfg.Admin.Email = "root@example.com"
	cfg.Admin.Password = "rootpass"
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	s, err := NewServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		ts.Close()
		require.NoError(t, s.Shutdown(context.Background()))
	})
	return ts
}

type client struct {
	t     *testing.T
	base  string
	token string
}

func (c *client) do(method, path string, body any, out any) int {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func login(t *testing.T, base, username, password string) *client {
	t.Helper()
	c := &client{t: t, base: base}
	var res struct {
		Token string `json:"token"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/auth/login",
		map[string]string{"username": username, "password": password}, &res))
	c.token = res.Token
	return c
}

func register(t *testing.T, base, username string) *client {
	t.Helper()
	c := &client{t: t, base: base}
	var res struct {
		Token string `json:"token"`
	}
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username": username, "email": username + "@example.com", "password": "secret1",
	}, &res))
	require.NotEmpty(t, res.Token)
	c.token = res.Token
	return c
}

func TestTradeFlow(t *testing.T) {
	ts := newTestServer(t, testConfig())
	alice := register(t, ts.URL, "alice")
	bob := register(t, ts.URL, "bob")

	var order struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	require.Equal(t, http.StatusCreated, alice.do(http.MethodPost, "/api/market/sell",
		map[string]any{"pointType": "AIC", "amount": "100", "unitPrice": "1.00"}, &order))
	require.Equal(t, "ACTIVE", order.Status)

	var listed []json.RawMessage
	anon := &client{t: t, base: ts.URL}
	require.Equal(t, http.StatusOK, anon.do(http.MethodGet, "/api/market/orders?pointType=AIC", nil, &listed))
	require.Len(t, listed, 1)

	var fill struct {
		Fee             decimal.Decimal `json:"fee"`
		FinalPay        decimal.Decimal `json:"final_pay"`
		RemainingAmount decimal.Decimal `json:"remaining_amount"`
	}
	require.Equal(t, http.StatusOK, bob.do(http.MethodPost, fmt.Sprintf("/api/market/buy/%d", order.ID),
		map[string]any{"amount": 40}, &fill))
	require.Equal(t, "0.12", fill.Fee.String())
	require.Equal(t, "40.12", fill.FinalPay.String())
	require.Equal(t, "60", fill.RemainingAmount.String())

	var wallet struct {
		Balance decimal.Decimal            `json:"balance"`
		Points  map[string]decimal.Decimal `json:"points"`
	}
	require.Equal(t, http.StatusOK, bob.do(http.MethodGet, "/api/wallet/info", nil, &wallet))
	require.Equal(t, "959.88", wallet.Balance.StringFixed(2))
	require.Equal(t, "140", wallet.Points["AIC"].String())

	var balance struct {
		FrozenAIC decimal.Decimal `json:"frozenAIC"`
	}
	require.Equal(t, http.StatusOK, alice.do(http.MethodGet, "/api/points/balance", nil, &balance))
	require.Equal(t, "60", balance.FrozenAIC.String())

	var cancelled struct {
		Released decimal.Decimal `json:"released_amount"`
	}
	require.Equal(t, http.StatusForbidden, bob.do(http.MethodDelete, fmt.Sprintf("/api/market/orders/%d", order.ID), nil, nil))
	require.Equal(t, http.StatusOK, alice.do(http.MethodDelete, fmt.Sprintf("/api/market/orders/%d", order.ID), nil, &cancelled))
	require.Equal(t, "60", cancelled.Released.String())

	require.Equal(t, http.StatusBadRequest, bob.do(http.MethodPost, fmt.Sprintf("/api/market/buy/%d", order.ID),
		map[string]any{"amount": 1}, nil))
}

func TestErrorStatuses(t *testing.T) {
	ts := newTestServer(t, testConfig())
	alice := register(t, ts.URL, "alice")
	anon := &client{t: t, base: ts.URL}

	require.Equal(t, http.StatusUnauthorized, anon.do(http.MethodGet, "/api/wallet/info", nil, nil))
	require.Equal(t, http.StatusForbidden, alice.do(http.MethodGet, "/api/admin/stats", nil, nil))
	require.Equal(t, http.StatusNotFound, alice.do(http.MethodGet, "/api/market/orders/999", nil, nil))
	require.Equal(t, http.StatusBadRequest, alice.do(http.MethodGet, "/api/market/orders/abc", nil, nil))
	require.Equal(t, http.StatusBadRequest, alice.do(http.MethodPost, "/api/market/sell",
		map[string]any{"pointType": "AIC", "amount": "100000", "unitPrice": "1"}, nil))
	require.Equal(t, http.StatusConflict, anon.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "secret1",
	}, nil))
	require.Equal(t, http.StatusUnauthorized, anon.do(http.MethodPost, "/api/auth/login",
		map[string]string{"username": "alice", "password": "wrong-password"}, nil))
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t, testConfig())
	alice := register(t, ts.URL, "alice")
	root := login(t, ts.URL, "root", "rootpass")

	var stats struct {
		TotalUsers int64 `json:"total_users"`
	}
	require.Equal(t, http.StatusOK, root.do(http.MethodGet, "/api/admin/stats", nil, &stats))
	require.EqualValues(t, 2, stats.TotalUsers)

	var profile struct {
		ID int64 `json:"id"`
	}
	require.Equal(t, http.StatusOK, alice.do(http.MethodGet, "/api/auth/profile", nil, &profile))

	require.Equal(t, http.StatusOK, root.do(http.MethodPost, fmt.Sprintf("/api/admin/users/%d/points", profile.ID),
		map[string]any{"pointType": "HH", "amount": "5", "reason": "bonus"}, nil))
	require.Equal(t, http.StatusCreated, root.do(http.MethodPost, "/api/admin/announcements",
		map[string]any{"title": "Maintenance", "content": "Tonight"}, nil))

	var notices []json.RawMessage
	require.Equal(t, http.StatusOK, alice.do(http.MethodGet, "/api/announcements", nil, &notices))
	require.Len(t, notices, 1)

	require.Equal(t, http.StatusOK, root.do(http.MethodPut, fmt.Sprintf("/api/admin/users/%d/role", profile.ID),
		map[string]any{"role": "admin"}, nil))
	require.Equal(t, http.StatusOK, alice.do(http.MethodGet, "/api/admin/stats", nil, nil))
}

func TestRateLimitedPublicRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.PerMinute = 2
	ts := newTestServer(t, cfg)
	anon := &client{t: t, base: ts.URL}

	require.Equal(t, http.StatusOK, anon.do(http.MethodGet, "/api/market/orders", nil, nil))
	require.Equal(t, http.StatusOK, anon.do(http.MethodGet, "/api/market/orders", nil, nil))
	require.Equal(t, http.StatusTooManyRequests, anon.do(http.MethodGet, "/api/market/orders", nil, nil))
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.Contains(string(body), "http_requests_total"))
	require.True(t, strings.Contains(string(body), "go_goroutines"))
}
