// Package paymongo implements the payment-gateway capability consumed by the
// reimbursement workflow: create a checkout session, query its payment status.
package paymongo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://api.paymongo.com/v1"

// Gateway is the capability boundary the reimbursement service depends on.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetCheckoutStatus(ctx context.Context, sessionID string) (string, error)
}

type CheckoutRequest struct {
	Amount        decimal.Decimal
	Description   string
	ReportID      uuid.UUID
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	CustomerName  string
}

type CheckoutSession struct {
	SessionID   string
	CheckoutURL string
}

// Client talks to the PayMongo REST API using basic auth on the secret key.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL, secretKey string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// CreateCheckoutSession creates a GCash-enabled checkout session. Amounts are
// sent in centavos; the gateway rejects anything under one peso.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	centavos := req.Amount.Mul(decimal.NewFromInt(100)).IntPart()
	if centavos < 100 {
		return nil, fmt.Errorf("amount must be at least 1.00 PHP (got %s)", req.Amount.StringFixed(2))
	}

	attributes := map[string]interface{}{
		"description":          req.Description,
		"payment_method_types": []string{"gcash"},
		"line_items": []map[string]interface{}{
			{
				"currency":    "PHP",
				"amount":      centavos,
				"description": req.Description,
				"name":        fmt.Sprintf("Reimbursement - Report %s", req.ReportID),
				"quantity":    1,
			},
		},
		"success_url": req.SuccessURL,
		"cancel_url":  req.CancelURL,
	}
	if req.CustomerEmail != "" {
		attributes["customer_email"] = req.CustomerEmail
		name := req.CustomerName
		if name == "" {
			name = req.CustomerEmail
		}
		attributes["billing"] = map[string]interface{}{
			"email": req.CustomerEmail,
			"name":  name,
		}
	}

	payload := map[string]interface{}{
		"data": map[string]interface{}{"attributes": attributes},
	}

	var parsed struct {
		Data struct {
			ID         string `json:"id"`
			Attributes struct {
				CheckoutURL string `json:"checkout_url"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/checkout_sessions", payload, &parsed); err != nil {
		return nil, err
	}
	if parsed.Data.ID == "" || parsed.Data.Attributes.CheckoutURL == "" {
		return nil, fmt.Errorf("checkout session response missing id or checkout_url")
	}

	c.logger.Info("checkout session created",
		zap.String("session_id", parsed.Data.ID),
		zap.String("report_id", req.ReportID.String()))

	return &CheckoutSession{
		SessionID:   parsed.Data.ID,
		CheckoutURL: parsed.Data.Attributes.CheckoutURL,
	}, nil
}

// GetCheckoutStatus returns the gateway's view of a session. A non-empty
// payments array means the session is paid regardless of its status field.
func (c *Client) GetCheckoutStatus(ctx context.Context, sessionID string) (string, error) {
	var parsed struct {
		Data struct {
			Attributes struct {
				Status   string            `json:"status"`
				Payments []json.RawMessage `json:"payments"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/checkout_sessions/"+sessionID, nil, &parsed); err != nil {
		return "", err
	}

	if len(parsed.Data.Attributes.Payments) > 0 {
		return "paid", nil
	}
	if parsed.Data.Attributes.Status == "" {
		return "unknown", nil
	}
	return parsed.Data.Attributes.Status, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	token := base64.StdEncoding.EncodeToString([]byte(c.secretKey + ":"))
	httpReq.Header.Set("Authorization", "Basic "+token)
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("paymongo request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("paymongo response read failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("paymongo error response",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", raw))
		return fmt.Errorf("paymongo error (%d): %s", resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("paymongo response parse failed: %w", err)
	}
	return nil
}
