package paymongo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCreateCheckoutSession(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/checkout_sessions", r.URL.Path)
		assert.Contains(t, r.Header.Get("Authorization"), "Basic ")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"cs_123","attributes":{"checkout_url":"https://pm.link/abc"}}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test_x", zap.NewNop())
	session, err := client.CreateCheckoutSession(context.Background(), CheckoutRequest{
		Amount:        decimal.RequireFromString("450.00"),
		Description:   "Expense reimbursement",
		ReportID:      uuid.New(),
		SuccessURL:    "http://localhost/success",
		CancelURL:     "http://localhost/cancel",
		CustomerEmail: "driver@expense.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_123", session.SessionID)
	assert.Equal(t, "https://pm.link/abc", session.CheckoutURL)

	attrs := captured["data"].(map[string]interface{})["attributes"].(map[string]interface{})
	lineItems := attrs["line_items"].([]interface{})
	first := lineItems[0].(map[string]interface{})
	assert.EqualValues(t, 45000, first["amount"], "amounts are sent in centavos")
	assert.Equal(t, "PHP", first["currency"])
	assert.Equal(t, []interface{}{"gcash"}, attrs["payment_method_types"])
	assert.Equal(t, "driver@expense.com", attrs["customer_email"])
}

func TestCreateCheckoutSessionRejectsSubPesoAmounts(t *testing.T) {
	client := NewClient("http://unused", "sk_test_x", zap.NewNop())
	_, err := client.CreateCheckoutSession(context.Background(), CheckoutRequest{
		Amount: decimal.RequireFromString("0.99"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 1.00 PHP")
}

func TestGetCheckoutStatusPaymentsArrayImpliesPaid(t *testing.T) {
	responses := map[string]string{
		"/checkout_sessions/cs_active": `{"data":{"attributes":{"status":"active","payments":[]}}}`,
		"/checkout_sessions/cs_paid":   `{"data":{"attributes":{"status":"active","payments":[{"id":"pay_1"}]}}}`,
		"/checkout_sessions/cs_blank":  `{"data":{"attributes":{}}}`,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := responses[r.URL.Path]
		require.True(t, ok, "unexpected path %s", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test_x", zap.NewNop())

	status, err := client.GetCheckoutStatus(context.Background(), "cs_active")
	require.NoError(t, err)
	assert.Equal(t, "active", status)

	status, err = client.GetCheckoutStatus(context.Background(), "cs_paid")
	require.NoError(t, err)
	assert.Equal(t, "paid", status)

	status, err = client.GetCheckoutStatus(context.Background(), "cs_blank")
	require.NoError(t, err)
	assert.Equal(t, "unknown", status)
}

func TestErrorResponsesSurfaceStatusAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"detail":"bad key"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_bad", zap.NewNop())
	_, err := client.GetCheckoutStatus(context.Background(), "cs_any")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "bad key")
}
