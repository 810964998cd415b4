package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"backend/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubReimbursementService struct {
	service.ReimbursementService
	confirmedSessions []string
	confirmErr        error
}

func (s *stubReimbursementService) ConfirmPaymentBySession(_ context.Context, sessionID, _ string) error {
	s.confirmedSessions = append(s.confirmedSessions, sessionID)
	return s.confirmErr
}

func signWebhook(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(h *WebhookHandler, body, signature string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h.RegisterRoutes(router.Group(""))

	req := httptest.NewRequest(http.MethodPost, "/webhook/paymongo", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("Paymongo-Signature", signature)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const paidEventBody = `{"data":{"attributes":{"type":"checkout_session.payment.paid","data":{"id":"cs_123"}}}}`

func TestWebhookAcceptsValidSignature(t *testing.T) {
	stub := &stubReimbursementService{}
	h := NewWebhookHandler(stub, "whsk_secret", zap.NewNop())

	sig := signWebhook("whsk_secret", "1700000000", []byte(paidEventBody))
	rec := postWebhook(h, paidEventBody, fmt.Sprintf("t=1700000000,te=%s,li=%s", sig, sig))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, stub.confirmedSessions, 1)
	assert.Equal(t, "cs_123", stub.confirmedSessions[0])
}

func TestWebhookAcceptsTestModeSignatureOnly(t *testing.T) {
	stub := &stubReimbursementService{}
	h := NewWebhookHandler(stub, "whsk_secret", zap.NewNop())

	sig := signWebhook("whsk_secret", "1700000000", []byte(paidEventBody))
	rec := postWebhook(h, paidEventBody, "t=1700000000,te="+sig)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, stub.confirmedSessions, 1)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	stub := &stubReimbursementService{}
	h := NewWebhookHandler(stub, "whsk_secret", zap.NewNop())

	cases := []string{
		"",
		"garbage",
		"t=1700000000,te=deadbeef",
		"t=1700000000,te=" + signWebhook("wrong_secret", "1700000000", []byte(paidEventBody)),
		// Valid signature over a different timestamp.
		"t=1700000001,te=" + signWebhook("whsk_secret", "1700000000", []byte(paidEventBody)),
	}
	for _, header := range cases {
		rec := postWebhook(h, paidEventBody, header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
	assert.Empty(t, stub.confirmedSessions)
}

func TestWebhookIgnoresOtherEventTypes(t *testing.T) {
	stub := &stubReimbursementService{}
	h := NewWebhookHandler(stub, "whsk_secret", zap.NewNop())

	body := `{"data":{"attributes":{"type":"checkout_session.payment.failed","data":{"id":"cs_123"}}}}`
	sig := signWebhook("whsk_secret", "1700000000", []byte(body))
	rec := postWebhook(h, body, "t=1700000000,li="+sig)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, stub.confirmedSessions)
}

func TestWebhookAcksProcessingFailures(t *testing.T) {
	// The gateway retries on non-2xx; a processing failure must still ack.
	stub := &stubReimbursementService{confirmErr: errors.New("db down")}
	h := NewWebhookHandler(stub, "whsk_secret", zap.NewNop())

	sig := signWebhook("whsk_secret", "1700000000", []byte(paidEventBody))
	rec := postWebhook(h, paidEventBody, "t=1700000000,li="+sig)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, stub.confirmedSessions, 1)
}

func TestWebhookRejectsWhenSecretUnset(t *testing.T) {
	stub := &stubReimbursementService{}
	h := NewWebhookHandler(stub, "", zap.NewNop())

	sig := signWebhook("", "1700000000", []byte(paidEventBody))
	rec := postWebhook(h, paidEventBody, "t=1700000000,li="+sig)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
