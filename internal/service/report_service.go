package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// --- DTOs ---

type ExpenseItemInput struct {
	Category    string `json:"category" binding:"required"`
	Amount      string `json:"amount" binding:"required"` // decimal string, 2 dp
	Date        string `json:"date" binding:"required"`   // YYYY-MM-DD
	Description string `json:"description"`
	ReceiptPath string `json:"receipt_path"`
}

type SubmitReportRequest struct {
	Items     []ExpenseItemInput `json:"items" binding:"required"`
	TripStart string             `json:"trip_start"` // YYYY-MM-DD, optional
	TripEnd   string             `json:"trip_end"`
	TripDays  int                `json:"trip_days"`
}

type ExpenseItemResponse struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Description string `json:"description"`
	ReceiptPath string `json:"receipt_path"`
}

type ReportResponse struct {
	ID             string                `json:"id"`
	UserID         string                `json:"user_id"`
	SubmissionDate string                `json:"submission_date"`
	Status         string                `json:"status"`
	BudgetCheck    string                `json:"budget_check"`
	TotalAmount    string                `json:"total_amount"`
	ForwardedToCEO bool                  `json:"forwarded_to_ceo"`
	CEOApproved    bool                  `json:"ceo_approved"`
	Reimbursed     bool                  `json:"reimbursed"`
	TripStart      *string               `json:"trip_start"`
	TripEnd        *string               `json:"trip_end"`
	TripDays       int                   `json:"trip_days"`
	Items          []ExpenseItemResponse `json:"items"`
}

type ApprovalResponse struct {
	ID           string  `json:"id"`
	ReportID     string  `json:"report_id"`
	ApproverID   string  `json:"approver_id"`
	ApproverName string  `json:"approver_name"`
	Stage        string  `json:"stage"`
	Decision     string  `json:"decision"`
	Remarks      string  `json:"remarks"`
	DecisionDate *string `json:"decision_date"`
}

// --- Interface ---

// ReportService owns the report aggregate: submission, resubmission, totals
// and the budget classification computed at creation time.
type ReportService interface {
	Submit(ctx context.Context, userID uuid.UUID, req SubmitReportRequest) (ReportResponse, error)
	// Resubmit replaces the items of a non-approved report, recomputes the
	// total and budget check, clears prior approvals and workflow flags, and
	// returns the report to SUBMITTED.
	Resubmit(ctx context.Context, userID, reportID uuid.UUID, req SubmitReportRequest) (ReportResponse, error)
	Get(ctx context.Context, reportID uuid.UUID) (ReportResponse, error)
	ListByUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]ReportResponse, int64, error)
	Trail(ctx context.Context, reportID uuid.UUID) ([]ApprovalResponse, error)
}

type reportService struct {
	reportRepo   repository.ReportRepository
	approvalRepo repository.ApprovalRepository
	auditRepo    repository.AuditRepository
	budgetSvc    BudgetService
	txManager    repository.TransactionManager
	now          func() time.Time
}

func NewReportService(
	reportRepo repository.ReportRepository,
	approvalRepo repository.ApprovalRepository,
	auditRepo repository.AuditRepository,
	budgetSvc BudgetService,
	txManager repository.TransactionManager,
) ReportService {
	return &reportService{
		reportRepo:   reportRepo,
		approvalRepo: approvalRepo,
		auditRepo:    auditRepo,
		budgetSvc:    budgetSvc,
		txManager:    txManager,
		now:          time.Now,
	}
}

// --- Implementation ---

func parseItems(inputs []ExpenseItemInput) ([]model.ExpenseItem, error) {
	if len(inputs) == 0 {
		return nil, apperror.Validation("a report requires at least one expense item")
	}

	items := make([]model.ExpenseItem, 0, len(inputs))
	for i, in := range inputs {
		if in.Category == "" {
			return nil, apperror.Validation("item %d: category is required", i+1)
		}
		amount, err := decimal.NewFromString(in.Amount)
		if err != nil {
			return nil, apperror.Validation("item %d: invalid amount %q", i+1, in.Amount)
		}
		if !amount.IsPositive() {
			return nil, apperror.Validation("item %d: amount must be positive", i+1)
		}
		if !amount.Equal(amount.Round(2)) {
			return nil, apperror.Validation("item %d: amount must have at most 2 decimal places", i+1)
		}
		date, err := time.Parse(dateLayout, in.Date)
		if err != nil {
			return nil, apperror.Validation("item %d: invalid date %q, expected YYYY-MM-DD", i+1, in.Date)
		}
		items = append(items, model.ExpenseItem{
			Category:    in.Category,
			Amount:      amount,
			Date:        date,
			Description: in.Description,
			ReceiptPath: in.ReceiptPath,
		})
	}
	return items, nil
}

func sumItems(items []model.ExpenseItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total
}

func parseTripContext(req SubmitReportRequest) (*time.Time, *time.Time, int, error) {
	var start, end *time.Time
	if req.TripStart != "" {
		t, err := time.Parse(dateLayout, req.TripStart)
		if err != nil {
			return nil, nil, 0, apperror.Validation("invalid trip_start %q", req.TripStart)
		}
		start = &t
	}
	if req.TripEnd != "" {
		t, err := time.Parse(dateLayout, req.TripEnd)
		if err != nil {
			return nil, nil, 0, apperror.Validation("invalid trip_end %q", req.TripEnd)
		}
		end = &t
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, 0, apperror.Validation("trip_end must not be before trip_start")
	}

	days := req.TripDays
	if days <= 0 {
		days = 1
		if start != nil && end != nil {
			days = int(end.Sub(*start).Hours()/24) + 1
		}
	}
	return start, end, days, nil
}

func (s *reportService) Submit(ctx context.Context, userID uuid.UUID, req SubmitReportRequest) (ReportResponse, error) {
	items, err := parseItems(req.Items)
	if err != nil {
		return ReportResponse{}, err
	}
	tripStart, tripEnd, tripDays, err := parseTripContext(req)
	if err != nil {
		return ReportResponse{}, err
	}

	now := s.now().UTC()
	report := model.ExpenseReport{
		UserID:         userID,
		SubmissionDate: now,
		Status:         model.ReportStatusSubmitted,
		TotalAmount:    sumItems(items),
		TripStart:      tripStart,
		TripEnd:        tripEnd,
		TripDays:       tripDays,
		Version:        1,
		Items:          items,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		check, evalErr := s.budgetSvc.EvaluateItems(txCtx, items, now, uuid.Nil)
		if evalErr != nil {
			return evalErr
		}
		report.BudgetCheck = check

		if createErr := s.reportRepo.Create(txCtx, &report); createErr != nil {
			return fmt.Errorf("failed to create expense report: %w", createErr)
		}

		return s.auditRepo.Create(txCtx, &model.AuditLog{
			Action:      model.ActionSubmitReport,
			Module:      "reports",
			Role:        model.RoleDriver,
			PerformedBy: &userID,
			ReportID:    &report.ID,
			Details:     reportAuditDetails(&report),
		})
	})
	if err != nil {
		return ReportResponse{}, err
	}

	return toReportResponse(&report), nil
}

func (s *reportService) Resubmit(ctx context.Context, userID, reportID uuid.UUID, req SubmitReportRequest) (ReportResponse, error) {
	items, err := parseItems(req.Items)
	if err != nil {
		return ReportResponse{}, err
	}
	tripStart, tripEnd, tripDays, err := parseTripContext(req)
	if err != nil {
		return ReportResponse{}, err
	}

	var report *model.ExpenseReport
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		report, err = s.reportRepo.FindByID(txCtx, reportID)
		if err != nil {
			return err
		}
		if report.UserID != userID {
			return apperror.NotFound("expense report %s not found", reportID)
		}
		if report.Status == model.ReportStatusApproved {
			return apperror.InvalidState("an approved report cannot be edited; it is locked")
		}

		if err := s.reportRepo.ReplaceItems(txCtx, report.ID, items); err != nil {
			return fmt.Errorf("failed to replace report items: %w", err)
		}

		now := s.now().UTC()
		check, evalErr := s.budgetSvc.EvaluateItems(txCtx, items, now, report.ID)
		if evalErr != nil {
			return evalErr
		}

		// Resubmission restarts the workflow: all approvals are superseded
		// and every decision flag resets.
		if err := s.approvalRepo.VoidByReport(txCtx, report.ID); err != nil {
			return fmt.Errorf("failed to void prior approvals: %w", err)
		}

		report.SubmissionDate = now
		report.Status = model.ReportStatusSubmitted
		report.BudgetCheck = check
		report.TotalAmount = sumItems(items)
		report.ForwardedToCEO = false
		report.CEOApproved = false
		report.Reimbursed = false
		report.LedgerPosted = false
		report.TripStart = tripStart
		report.TripEnd = tripEnd
		report.TripDays = tripDays
		report.Items = items

		if err := s.reportRepo.UpdateWithVersion(txCtx, report); err != nil {
			return err
		}

		return s.auditRepo.Create(txCtx, &model.AuditLog{
			Action:      model.ActionResubmitReport,
			Module:      "reports",
			Role:        model.RoleDriver,
			PerformedBy: &userID,
			ReportID:    &report.ID,
			Details:     reportAuditDetails(report),
		})
	})
	if err != nil {
		return ReportResponse{}, err
	}

	return toReportResponse(report), nil
}

func (s *reportService) Get(ctx context.Context, reportID uuid.UUID) (ReportResponse, error) {
	report, err := s.reportRepo.FindByID(ctx, reportID)
	if err != nil {
		return ReportResponse{}, err
	}
	return toReportResponse(report), nil
}

func (s *reportService) ListByUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]ReportResponse, int64, error) {
	reports, total, err := s.reportRepo.ListByUser(ctx, userID, page, limit)
	if err != nil {
		return nil, 0, err
	}
	res := make([]ReportResponse, 0, len(reports))
	for i := range reports {
		res = append(res, toReportResponse(&reports[i]))
	}
	return res, total, nil
}

func (s *reportService) Trail(ctx context.Context, reportID uuid.UUID) ([]ApprovalResponse, error) {
	if _, err := s.reportRepo.FindByID(ctx, reportID); err != nil {
		return nil, err
	}
	approvals, err := s.approvalRepo.ListByReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	res := make([]ApprovalResponse, 0, len(approvals))
	for _, a := range approvals {
		res = append(res, toApprovalResponse(a))
	}
	return res, nil
}

// --- Helpers ---

func reportAuditDetails(report *model.ExpenseReport) string {
	details, _ := json.Marshal(map[string]interface{}{
		"total_amount": report.TotalAmount.StringFixed(2),
		"budget_check": report.BudgetCheck,
		"item_count":   len(report.Items),
	})
	return string(details)
}

func toReportResponse(report *model.ExpenseReport) ReportResponse {
	items := make([]ExpenseItemResponse, 0, len(report.Items))
	for _, item := range report.Items {
		items = append(items, ExpenseItemResponse{
			ID:          item.ID.String(),
			Category:    item.Category,
			Amount:      item.Amount.StringFixed(2),
			Date:        item.Date.Format(dateLayout),
			Description: item.Description,
			ReceiptPath: item.ReceiptPath,
		})
	}

	res := ReportResponse{
		ID:             report.ID.String(),
		UserID:         report.UserID.String(),
		SubmissionDate: report.SubmissionDate.Format(time.RFC3339),
		Status:         report.Status,
		BudgetCheck:    report.BudgetCheck,
		TotalAmount:    report.TotalAmount.StringFixed(2),
		ForwardedToCEO: report.ForwardedToCEO,
		CEOApproved:    report.CEOApproved,
		Reimbursed:     report.Reimbursed,
		TripDays:       report.TripDays,
		Items:          items,
	}
	if report.TripStart != nil {
		s := report.TripStart.Format(dateLayout)
		res.TripStart = &s
	}
	if report.TripEnd != nil {
		s := report.TripEnd.Format(dateLayout)
		res.TripEnd = &s
	}
	return res
}

func toApprovalResponse(a model.Approval) ApprovalResponse {
	res := ApprovalResponse{
		ID:         a.ID.String(),
		ReportID:   a.ReportID.String(),
		ApproverID: a.ApproverID.String(),
		Stage:      a.Stage,
		Decision:   a.Decision,
		Remarks:    a.Remarks,
	}
	if a.Approver != nil {
		res.ApproverName = a.Approver.Name
	}
	if a.DecisionDate != nil {
		s := a.DecisionDate.Format(time.RFC3339)
		res.DecisionDate = &s
	}
	return res
}
