package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Jonas0119/zhzb/internal/zhzb/models"
)

func TestPaymentGatewayStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/payments/ok":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"reference":"ok","status":"SUCCEEDED"}`))
		case "/api/payments/unknown":
			w.WriteHeader(http.StatusNoContent)
		case "/api/payments/slow":
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
		case "/api/payments/garbage":
			_, _ = w.Write([]byte(`{`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	gw := NewPaymentGateway(srv.URL)
	ctx := context.Background()

	status, err := gw.PaymentStatus(ctx, "ok")
	require.NoError(t, err)
	require.Equal(t, models.PaymentSucceeded, status.Status)
	require.Equal(t, "ok", status.Reference)

	status, err = gw.PaymentStatus(ctx, "unknown")
	require.NoError(t, err)
	require.Nil(t, status)

	_, err = gw.PaymentStatus(ctx, "slow")
	retryAfter, limited := isRateLimited(err)
	require.True(t, limited)
	require.Equal(t, 30*time.Second, retryAfter)

	_, err = gw.PaymentStatus(ctx, "garbage")
	require.ErrorContains(t, err, "decode payment status")

	_, err = gw.PaymentStatus(ctx, "boom")
	require.ErrorContains(t, err, "status 500")
	_, limited = isRateLimited(err)
	require.False(t, limited)
}
