package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Jonas0119/zhzb/internal/zhzb/models"
)

// RateLimitError is returned when the gateway asks us to back off
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("payment gateway rate limited, retry after %s", e.RetryAfter)
}

// PaymentGateway handles communication with the payment gateway
type PaymentGateway struct {
	baseURL    string
	httpClient *http.Client
}

// NewPaymentGateway creates a new payment gateway client
func NewPaymentGateway(baseURL string) *PaymentGateway {
	return &PaymentGateway{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// PaymentStatus fetches the status of a payment. It returns nil, nil when the
// gateway does not know the reference yet.
func (g *PaymentGateway) PaymentStatus(ctx context.Context, reference string) (*models.PaymentStatusResponse, error) {
	endpoint := fmt.Sprintf("%s/api/payments/%s", g.baseURL, url.PathEscape(reference))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusNotFound:
		return nil, nil
	case http.StatusTooManyRequests:
		retryAfter := time.Minute
		if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			retryAfter = time.Duration(seconds) * time.Second
		}
		return nil, &RateLimitError{RetryAfter: retryAfter}
	default:
		return nil, fmt.Errorf("payment gateway returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var status models.PaymentStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("decode payment status: %w", err)
	}
	return &status, nil
}

func isRateLimited(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
