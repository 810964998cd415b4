package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type WorkflowHandler struct {
	workflowService service.WorkflowService
}

func NewWorkflowHandler(workflowService service.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{workflowService: workflowService}
}

func (h *WorkflowHandler) RegisterRoutes(router *gin.RouterGroup) {
	manager := router.Group("/api/manager", middleware.RequireRole(model.RoleManager))
	{
		manager.GET("/pending", h.ListManagerPending)
		manager.PUT("/reports/:id/approve", h.ApproveAsManager)
		manager.PUT("/reports/:id/reject", h.RejectAsManager)
		manager.PUT("/reports/:id/forward", h.ForwardToCEO)
	}

	ceo := router.Group("/api/ceo", middleware.RequireRole(model.RoleCEO))
	{
		ceo.GET("/pending", h.ListCEOPending)
		ceo.PUT("/reports/:id/approve", h.ApproveAsCEO)
		ceo.PUT("/reports/:id/reject", h.RejectAsCEO)
	}
}

// ListManagerPending lists reports awaiting manager review
// @Summary      List reports pending manager review
// @Tags         workflow
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response
// @Router       /api/manager/pending [get]
func (h *WorkflowHandler) ListManagerPending(c *gin.Context) {
	h.listPending(c, model.RoleManager)
}

// ListCEOPending lists over-budget reports awaiting CEO review
// @Summary      List reports pending CEO approval
// @Tags         workflow
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response
// @Router       /api/ceo/pending [get]
func (h *WorkflowHandler) ListCEOPending(c *gin.Context) {
	h.listPending(c, model.RoleCEO)
}

func (h *WorkflowHandler) listPending(c *gin.Context, role string) {
	params := pagination.Parse(c)
	reports, total, err := h.workflowService.PendingForRole(c.Request.Context(), role, params.Page, params.Limit)
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

// ApproveAsManager approves a submitted report; over-budget reports escalate to the CEO
// @Summary      Manager approval
// @Tags         workflow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                   true   "Report ID"
// @Param        payload  body      service.DecisionRequest  false  "Decision remarks"
// @Success      200      {object}  response.Response{data=service.ReportResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/manager/reports/{id}/approve [put]
func (h *WorkflowHandler) ApproveAsManager(c *gin.Context) {
	h.decide(c, func(actor, report uuid.UUID, req service.DecisionRequest) (service.ReportResponse, error) {
		return h.workflowService.ApproveAsManager(c.Request.Context(), actor, report, req.Remarks)
	})
}

// RejectAsManager rejects a submitted report
// @Summary      Manager rejection
// @Tags         workflow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                   true  "Report ID"
// @Param        payload  body      service.DecisionRequest  true  "Decision remarks"
// @Success      200      {object}  response.Response{data=service.ReportResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/manager/reports/{id}/reject [put]
func (h *WorkflowHandler) RejectAsManager(c *gin.Context) {
	h.decide(c, func(actor, report uuid.UUID, req service.DecisionRequest) (service.ReportResponse, error) {
		return h.workflowService.RejectAsManager(c.Request.Context(), actor, report, req.Remarks)
	})
}

// ForwardToCEO escalates an over-budget report without an approval decision
// @Summary      Forward a report to the CEO
// @Tags         workflow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                   true   "Report ID"
// @Param        payload  body      service.DecisionRequest  false  "Remarks"
// @Success      200      {object}  response.Response{data=service.ReportResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/manager/reports/{id}/forward [put]
func (h *WorkflowHandler) ForwardToCEO(c *gin.Context) {
	h.decide(c, func(actor, report uuid.UUID, req service.DecisionRequest) (service.ReportResponse, error) {
		return h.workflowService.ForwardToCEO(c.Request.Context(), actor, report, req.Remarks)
	})
}

// ApproveAsCEO approves an escalated report, optionally reallocating budgets
// @Summary      CEO approval
// @Tags         workflow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                   true   "Report ID"
// @Param        payload  body      service.DecisionRequest  false  "Remarks and optional allocations"
// @Success      200      {object}  response.Response{data=service.ReportResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/ceo/reports/{id}/approve [put]
func (h *WorkflowHandler) ApproveAsCEO(c *gin.Context) {
	h.decide(c, func(actor, report uuid.UUID, req service.DecisionRequest) (service.ReportResponse, error) {
		return h.workflowService.ApproveAsCEO(c.Request.Context(), actor, report, req)
	})
}

// RejectAsCEO rejects an escalated report
// @Summary      CEO rejection
// @Tags         workflow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                   true  "Report ID"
// @Param        payload  body      service.DecisionRequest  true  "Decision remarks"
// @Success      200      {object}  response.Response{data=service.ReportResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/ceo/reports/{id}/reject [put]
func (h *WorkflowHandler) RejectAsCEO(c *gin.Context) {
	h.decide(c, func(actor, report uuid.UUID, req service.DecisionRequest) (service.ReportResponse, error) {
		return h.workflowService.RejectAsCEO(c.Request.Context(), actor, report, req.Remarks)
	})
}

func (h *WorkflowHandler) decide(c *gin.Context, fn func(actor, report uuid.UUID, req service.DecisionRequest) (service.ReportResponse, error)) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "unknown actor"))
		return
	}
	reportID, ok := pathID(c)
	if !ok {
		return
	}

	var req service.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// Empty body is fine; remarks are validated by the service.
		req = service.DecisionRequest{}
	}

	result, err := fn(actorID, reportID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
