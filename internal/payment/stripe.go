package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// StripeClient talks to a Stripe-compatible payment-intent API. Calls here
// are the only network-blocking operations in the checkout flow; failures
// surface as models.PaymentError and leave local state unchanged, so the
// caller retries using the intent id as the idempotency key.
type StripeClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewStripeClient creates a client for the given API base URL.
func NewStripeClient(baseURL, secretKey string) *StripeClient {
	return &StripeClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: util.GetLogger(),
	}
}

// CreateIntent creates a new payment intent for amount in the currency's
// minor unit (cents).
func (c *StripeClient) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", currency)
	form.Set("automatic_payment_methods[enabled]", "true")
	form.Set("automatic_payment_methods[allow_redirects]", "never")
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	return c.do(ctx, "create_intent", http.MethodPost, "/v1/payment_intents", form)
}

// RetrieveIntent fetches the current state of an intent.
func (c *StripeClient) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	return c.do(ctx, "retrieve_intent", http.MethodGet, "/v1/payment_intents/"+url.PathEscape(intentID), nil)
}

// ConfirmIntent confirms an intent with the given payment method. Only the
// non-production test path uses this; real confirmations happen on the
// client against the provider directly.
func (c *StripeClient) ConfirmIntent(ctx context.Context, intentID, method string) (*Intent, error) {
	form := url.Values{}
	form.Set("payment_method", method)
	return c.do(ctx, "confirm_intent", http.MethodPost, "/v1/payment_intents/"+url.PathEscape(intentID)+"/confirm", form)
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *StripeClient) do(ctx context.Context, op, method, path string, form url.Values) (*Intent, error) {
	start := time.Now()
	defer func() {
		util.PaymentProviderLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &models.PaymentError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &models.PaymentError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.PaymentError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			c.logger.Warn("Payment provider rejected request",
				zap.String("op", op),
				zap.Int("status", resp.StatusCode),
				zap.String("type", apiErr.Error.Type))
			return nil, &models.PaymentError{Op: op, Message: apiErr.Error.Message}
		}
		return nil, &models.PaymentError{
			Op:      op,
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}

	var intent Intent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, &models.PaymentError{Op: op, Err: fmt.Errorf("failed to decode intent: %w", err)}
	}
	return &intent, nil
}
