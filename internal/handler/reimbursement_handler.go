package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type ConfirmPaymentRequest struct {
	Status string `json:"status" binding:"required"`
}

type ManualReimburseRequest struct {
	Remarks string `json:"remarks"`
}

type ReimbursementHandler struct {
	reimbursementService service.ReimbursementService
}

func NewReimbursementHandler(reimbursementService service.ReimbursementService) *ReimbursementHandler {
	return &ReimbursementHandler{reimbursementService: reimbursementService}
}

func (h *ReimbursementHandler) RegisterRoutes(router *gin.RouterGroup) {
	finance := router.Group("/api/finance", middleware.RequireRole(model.RoleFinance))
	{
		finance.GET("/queue", h.Queue)
		finance.POST("/reports/:id/checkout", h.InitiateCheckout)
		finance.POST("/reports/:id/refresh", h.RefreshStatus)
		finance.POST("/reports/:id/confirm", h.ConfirmPayment)
		finance.POST("/reports/:id/mark-reimbursed", h.MarkReimbursedManual)
	}
}

// Queue lists approved reports eligible for reimbursement
// @Summary      Finance reimbursement queue
// @Description  Approved, not yet reimbursed reports: within budget or cleared by the CEO
// @Tags         reimbursement
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response
// @Router       /api/finance/queue [get]
func (h *ReimbursementHandler) Queue(c *gin.Context) {
	params := pagination.Parse(c)
	reports, total, err := h.reimbursementService.FinanceQueue(c.Request.Context(), params.Page, params.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   reports,
		"total":  total,
		"page":   params.Page,
		"limit":  params.Limit,
	})
}

// InitiateCheckout creates or replaces the report's checkout session
// @Summary      Initiate a reimbursement checkout
// @Tags         reimbursement
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Report ID"
// @Success      201  {object}  response.Response{data=service.PaymentResponse}
// @Failure      409  {object}  response.Response
// @Failure      502  {object}  response.Response
// @Router       /api/finance/reports/{id}/checkout [post]
func (h *ReimbursementHandler) InitiateCheckout(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "unknown actor"))
		return
	}
	reportID, ok := pathID(c)
	if !ok {
		return
	}

	payment, err := h.reimbursementService.InitiateCheckout(c.Request.Context(), actorID, reportID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, payment))
}

// RefreshStatus polls the gateway and applies whatever status it reports
// @Summary      Refresh a payment's status from the gateway
// @Tags         reimbursement
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Report ID"
// @Success      200  {object}  response.Response{data=service.ReportResponse}
// @Failure      502  {object}  response.Response
// @Router       /api/finance/reports/{id}/refresh [post]
func (h *ReimbursementHandler) RefreshStatus(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "unknown actor"))
		return
	}
	reportID, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.reimbursementService.RefreshStatus(c.Request.Context(), actorID, reportID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ConfirmPayment applies an externally observed payment status
// @Summary      Confirm a payment status
// @Tags         reimbursement
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                 true  "Report ID"
// @Param        payload  body      ConfirmPaymentRequest  true  "External status"
// @Success      200      {object}  response.Response{data=service.ReportResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/finance/reports/{id}/confirm [post]
func (h *ReimbursementHandler) ConfirmPayment(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "unknown actor"))
		return
	}
	reportID, ok := pathID(c)
	if !ok {
		return
	}

	var req ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	result, err := h.reimbursementService.ConfirmPayment(c.Request.Context(), actorID, reportID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// MarkReimbursedManual marks a report reimbursed without the gateway
// @Summary      Manually mark a report reimbursed
// @Tags         reimbursement
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                  true   "Report ID"
// @Param        payload  body      ManualReimburseRequest  false  "Remarks"
// @Success      200      {object}  response.Response{data=service.ReportResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/finance/reports/{id}/mark-reimbursed [post]
func (h *ReimbursementHandler) MarkReimbursedManual(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "unknown actor"))
		return
	}
	reportID, ok := pathID(c)
	if !ok {
		return
	}

	var req ManualReimburseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.Remarks = ""
	}

	result, err := h.reimbursementService.MarkReimbursedManual(c.Request.Context(), actorID, reportID, req.Remarks)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
