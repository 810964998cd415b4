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

type ReportHandler struct {
	reportService service.ReportService
	budgetService service.BudgetService
}

func NewReportHandler(reportService service.ReportService, budgetService service.BudgetService) *ReportHandler {
	return &ReportHandler{reportService: reportService, budgetService: budgetService}
}

func (h *ReportHandler) RegisterRoutes(router *gin.RouterGroup) {
	reports := router.Group("/api/reports")
	{
		reports.POST("", middleware.RequireRole(model.RoleDriver), h.SubmitReport)
		reports.PUT("/:id", middleware.RequireRole(model.RoleDriver), h.ResubmitReport)
		reports.GET("/mine", middleware.RequireRole(model.RoleDriver), h.ListMyReports)
		reports.GET("/:id", middleware.RequireRole(model.RoleDriver, model.RoleManager, model.RoleCEO, model.RoleFinance), h.GetReport)
		reports.GET("/:id/trail", middleware.RequireRole(model.RoleManager, model.RoleCEO, model.RoleFinance), h.GetTrail)
		reports.GET("/:id/exceedance", middleware.RequireRole(model.RoleManager, model.RoleCEO, model.RoleFinance), h.GetExceedance)
	}
}

// SubmitReport creates a new expense report
// @Summary      Submit an expense report
// @Description  Creates a report from a batch of expense items; the budget check is computed against current-month spend
// @Tags         reports
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.SubmitReportRequest  true  "Report payload"
// @Success      201      {object}  response.Response{data=service.ReportResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/reports [post]
func (h *ReportHandler) SubmitReport(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "unknown actor"))
		return
	}

	var req service.SubmitReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	result, err := h.reportService.Submit(c.Request.Context(), actorID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// ResubmitReport replaces the items of a non-approved report and restarts the workflow
// @Summary      Resubmit an expense report
// @Tags         reports
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                       true  "Report ID"
// @Param        payload  body      service.SubmitReportRequest  true  "Updated report payload"
// @Success      200      {object}  response.Response{data=service.ReportResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/reports/{id} [put]
func (h *ReportHandler) ResubmitReport(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "unknown actor"))
		return
	}
	reportID, ok := pathID(c)
	if !ok {
		return
	}

	var req service.SubmitReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	result, err := h.reportService.Resubmit(c.Request.Context(), actorID, reportID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ListMyReports returns the authenticated driver's reports
// @Summary      List own reports
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response
// @Router       /api/reports/mine [get]
func (h *ReportHandler) ListMyReports(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "unknown actor"))
		return
	}

	params := pagination.Parse(c)
	reports, total, err := h.reportService.ListByUser(c.Request.Context(), actorID, params.Page, params.Limit)
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

// GetReport returns one report with its items
// @Summary      Get a report
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Report ID"
// @Success      200  {object}  response.Response{data=service.ReportResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/reports/{id} [get]
func (h *ReportHandler) GetReport(c *gin.Context) {
	reportID, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.reportService.Get(c.Request.Context(), reportID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// GetTrail returns the active approval trail of a report
// @Summary      Get a report's approval trail
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Report ID"
// @Success      200  {object}  response.Response
// @Router       /api/reports/{id}/trail [get]
func (h *ReportHandler) GetTrail(c *gin.Context) {
	reportID, ok := pathID(c)
	if !ok {
		return
	}

	trail, err := h.reportService.Trail(c.Request.Context(), reportID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, trail))
}

// GetExceedance returns the per-category budget breakdown for a report
// @Summary      Compute budget exceedance
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Report ID"
// @Success      200  {object}  response.Response
// @Router       /api/reports/{id}/exceedance [get]
func (h *ReportHandler) GetExceedance(c *gin.Context) {
	reportID, ok := pathID(c)
	if !ok {
		return
	}

	breakdown, err := h.budgetService.ComputeExceedance(c.Request.Context(), reportID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, breakdown))
}
