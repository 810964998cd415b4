package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"backend/internal/model"
	"backend/internal/service"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const paidEventType = "checkout_session.payment.paid"

// webhookEvent mirrors the PayMongo event envelope down to the
// checkout session id we need.
type webhookEvent struct {
	Data struct {
		Attributes struct {
			Type string `json:"type"`
			Data struct {
				ID string `json:"id"`
			} `json:"data"`
		} `json:"attributes"`
	} `json:"data"`
}

type WebhookHandler struct {
	reimbursementService service.ReimbursementService
	webhookSecret        string
	logger               *zap.Logger
}

func NewWebhookHandler(reimbursementService service.ReimbursementService, webhookSecret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		reimbursementService: reimbursementService,
		webhookSecret:        webhookSecret,
		logger:               logger,
	}
}

func (h *WebhookHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/webhook/paymongo", h.HandlePayMongo)
}

// HandlePayMongo processes PayMongo webhook events
// @Summary      PayMongo webhook receiver
// @Description  Verifies the signature and applies checkout_session.payment.paid events
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Success      200  {object}  response.Response
// @Failure      401  {object}  response.Response
// @Router       /webhook/paymongo [post]
func (h *WebhookHandler) HandlePayMongo(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "unreadable body"))
		return
	}

	if !h.verifySignature(c.GetHeader("Paymongo-Signature"), body) {
		h.logger.Warn("webhook rejected: bad signature")
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "invalid signature"))
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Warn("webhook body not parseable", zap.Error(err))
		c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"received": true}))
		return
	}

	if event.Data.Attributes.Type != paidEventType || event.Data.Attributes.Data.ID == "" {
		c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"received": true}))
		return
	}

	// The gateway retries on non-2xx, so processing failures still ack.
	if err := h.reimbursementService.ConfirmPaymentBySession(c.Request.Context(), event.Data.Attributes.Data.ID, model.PaymentStatusPaid); err != nil {
		h.logger.Error("webhook payment confirmation failed",
			zap.String("session_id", event.Data.Attributes.Data.ID),
			zap.Error(err))
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"received": true}))
}

// verifySignature checks the Paymongo-Signature header, formatted as
// "t=<timestamp>,te=<test signature>,li=<live signature>". The signature
// is HMAC-SHA256 over "<timestamp>.<raw body>" keyed by the webhook secret.
func (h *WebhookHandler) verifySignature(header string, body []byte) bool {
	if h.webhookSecret == "" || header == "" {
		return false
	}

	var timestamp, testSig, liveSig string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "te":
			testSig = value
		case "li":
			liveSig = value
		}
	}
	if timestamp == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, candidate := range []string{liveSig, testSig} {
		if candidate != "" && hmac.Equal([]byte(expected), []byte(candidate)) {
			return true
		}
	}
	return false
}
