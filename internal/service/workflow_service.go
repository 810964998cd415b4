package service

import (
	"context"
	"encoding/json"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	ws "backend/internal/websocket"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- DTOs ---

type DecisionRequest struct {
	Remarks string `json:"remarks"`
	// Allocations lets the CEO adjust category allocations inline with an
	// approval, e.g. {"Fuel": "1500.00"}.
	Allocations map[string]string `json:"allocations"`
}

// --- Interface ---

// WorkflowService is the state machine driving a report from SUBMITTED
// through manager review, conditional CEO escalation and rejection. Every
// transition is one transaction over the report, its budgets, the approval
// trail and the audit log.
type WorkflowService interface {
	ApproveAsManager(ctx context.Context, actorID, reportID uuid.UUID, remarks string) (ReportResponse, error)
	RejectAsManager(ctx context.Context, actorID, reportID uuid.UUID, remarks string) (ReportResponse, error)
	// ForwardToCEO escalates an over-budget submitted report without a
	// manager approval decision (and without posting spend).
	ForwardToCEO(ctx context.Context, actorID, reportID uuid.UUID, remarks string) (ReportResponse, error)
	ApproveAsCEO(ctx context.Context, actorID, reportID uuid.UUID, req DecisionRequest) (ReportResponse, error)
	RejectAsCEO(ctx context.Context, actorID, reportID uuid.UUID, remarks string) (ReportResponse, error)
	// PendingForRole returns the reports awaiting a decision by the role.
	PendingForRole(ctx context.Context, role string, page, limit int) ([]ReportResponse, int64, error)
}

type workflowService struct {
	reportRepo   repository.ReportRepository
	approvalRepo repository.ApprovalRepository
	budgetRepo   repository.BudgetRepository
	auditRepo    repository.AuditRepository
	budgetSvc    BudgetService
	txManager    repository.TransactionManager
	hub          *ws.Hub
	logger       *zap.Logger
	now          func() time.Time
}

func NewWorkflowService(
	reportRepo repository.ReportRepository,
	approvalRepo repository.ApprovalRepository,
	budgetRepo repository.BudgetRepository,
	auditRepo repository.AuditRepository,
	budgetSvc BudgetService,
	txManager repository.TransactionManager,
	hub *ws.Hub,
	logger *zap.Logger,
) WorkflowService {
	return &workflowService{
		reportRepo:   reportRepo,
		approvalRepo: approvalRepo,
		budgetRepo:   budgetRepo,
		auditRepo:    auditRepo,
		budgetSvc:    budgetSvc,
		txManager:    txManager,
		hub:          hub,
		logger:       logger,
		now:          time.Now,
	}
}

// --- Implementation ---

func (s *workflowService) ApproveAsManager(ctx context.Context, actorID, reportID uuid.UUID, remarks string) (ReportResponse, error) {
	var report *model.ExpenseReport
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		report, err = s.reportRepo.FindByID(txCtx, reportID)
		if err != nil {
			return err
		}
		if report.Status != model.ReportStatusSubmitted {
			return apperror.InvalidState("report is %s; only submitted reports can be approved by a manager", report.Status)
		}

		if report.BudgetCheck == model.BudgetCheckWithinBudget {
			report.Status = model.ReportStatusApproved
		} else {
			// Over budget: escalate to the CEO. Spend still posts at the
			// manager stage regardless of the budget outcome.
			report.Status = model.ReportStatusPendingCEOApproval
			report.ForwardedToCEO = true
		}

		if err := s.postSpend(txCtx, report); err != nil {
			return err
		}
		if err := s.recordDecision(txCtx, report.ID, actorID, model.StageManager, model.DecisionApproved, remarks); err != nil {
			return err
		}
		if err := s.reportRepo.UpdateWithVersion(txCtx, report); err != nil {
			return err
		}
		return s.audit(txCtx, model.ActionManagerApprove, model.RoleManager, actorID, report, remarks)
	})
	if err != nil {
		return ReportResponse{}, err
	}

	s.broadcast("report.manager_approved", report, actorID)
	return toReportResponse(report), nil
}

func (s *workflowService) RejectAsManager(ctx context.Context, actorID, reportID uuid.UUID, remarks string) (ReportResponse, error) {
	if remarks == "" {
		return ReportResponse{}, apperror.Validation("rejection remarks are required")
	}

	var report *model.ExpenseReport
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		report, err = s.reportRepo.FindByID(txCtx, reportID)
		if err != nil {
			return err
		}
		if report.Status != model.ReportStatusSubmitted {
			return apperror.InvalidState("report is %s; only submitted reports can be rejected by a manager", report.Status)
		}

		report.Status = model.ReportStatusRejected

		if err := s.recordDecision(txCtx, report.ID, actorID, model.StageManager, model.DecisionRejected, remarks); err != nil {
			return err
		}
		if err := s.reportRepo.UpdateWithVersion(txCtx, report); err != nil {
			return err
		}
		return s.audit(txCtx, model.ActionManagerReject, model.RoleManager, actorID, report, remarks)
	})
	if err != nil {
		return ReportResponse{}, err
	}

	s.broadcast("report.manager_rejected", report, actorID)
	return toReportResponse(report), nil
}

func (s *workflowService) ForwardToCEO(ctx context.Context, actorID, reportID uuid.UUID, remarks string) (ReportResponse, error) {
	var report *model.ExpenseReport
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		report, err = s.reportRepo.FindByID(txCtx, reportID)
		if err != nil {
			return err
		}
		if report.Status != model.ReportStatusSubmitted {
			return apperror.InvalidState("report is %s; only submitted reports can be forwarded", report.Status)
		}
		if report.BudgetCheck != model.BudgetCheckOverBudget {
			return apperror.InvalidState("only over-budget reports require CEO approval")
		}

		report.Status = model.ReportStatusPendingCEOApproval
		report.ForwardedToCEO = true

		if err := s.recordDecision(txCtx, report.ID, actorID, model.StageManager, model.DecisionPending, remarks); err != nil {
			return err
		}
		if err := s.reportRepo.UpdateWithVersion(txCtx, report); err != nil {
			return err
		}
		return s.audit(txCtx, model.ActionForwardToCEO, model.RoleManager, actorID, report, remarks)
	})
	if err != nil {
		return ReportResponse{}, err
	}

	s.broadcast("report.forwarded_to_ceo", report, actorID)
	return toReportResponse(report), nil
}

func (s *workflowService) ApproveAsCEO(ctx context.Context, actorID, reportID uuid.UUID, req DecisionRequest) (ReportResponse, error) {
	var report *model.ExpenseReport
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		report, err = s.reportRepo.FindByID(txCtx, reportID)
		if err != nil {
			return err
		}
		if report.Status != model.ReportStatusPendingCEOApproval {
			return apperror.InvalidState("report is %s; only reports pending CEO approval can be approved by the CEO", report.Status)
		}

		// Inline reallocation supplied with the decision, applied within the
		// same transaction as the approval.
		for category, raw := range req.Allocations {
			allocated, parseErr := decimal.NewFromString(raw)
			if parseErr != nil {
				return apperror.Validation("invalid allocation for category %q: %s", category, raw)
			}
			if allocated.IsNegative() {
				return apperror.Validation("allocation for category %q must not be negative", category)
			}
			if err := s.budgetRepo.UpdateAllocated(txCtx, category, allocated); err != nil {
				return err
			}
		}

		report.Status = model.ReportStatusApproved
		report.CEOApproved = true
		report.ForwardedToCEO = false

		if err := s.recordDecision(txCtx, report.ID, actorID, model.StageCEO, model.DecisionApproved, req.Remarks); err != nil {
			return err
		}
		if err := s.reportRepo.UpdateWithVersion(txCtx, report); err != nil {
			return err
		}
		return s.audit(txCtx, model.ActionCEOApprove, model.RoleCEO, actorID, report, req.Remarks)
	})
	if err != nil {
		return ReportResponse{}, err
	}

	s.broadcast("report.ceo_approved", report, actorID)
	return toReportResponse(report), nil
}

func (s *workflowService) RejectAsCEO(ctx context.Context, actorID, reportID uuid.UUID, remarks string) (ReportResponse, error) {
	if remarks == "" {
		return ReportResponse{}, apperror.Validation("rejection remarks are required")
	}

	var report *model.ExpenseReport
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		report, err = s.reportRepo.FindByID(txCtx, reportID)
		if err != nil {
			return err
		}
		if report.Status != model.ReportStatusPendingCEOApproval {
			return apperror.InvalidState("report is %s; only reports pending CEO approval can be rejected by the CEO", report.Status)
		}

		report.Status = model.ReportStatusRejected
		report.CEOApproved = false
		report.ForwardedToCEO = false

		if err := s.recordDecision(txCtx, report.ID, actorID, model.StageCEO, model.DecisionRejected, remarks); err != nil {
			return err
		}
		if err := s.reportRepo.UpdateWithVersion(txCtx, report); err != nil {
			return err
		}
		return s.audit(txCtx, model.ActionCEOReject, model.RoleCEO, actorID, report, remarks)
	})
	if err != nil {
		return ReportResponse{}, err
	}

	s.broadcast("report.ceo_rejected", report, actorID)
	return toReportResponse(report), nil
}

func (s *workflowService) PendingForRole(ctx context.Context, role string, page, limit int) ([]ReportResponse, int64, error) {
	var (
		reports []model.ExpenseReport
		total   int64
		err     error
	)
	switch role {
	case model.RoleManager:
		reports, total, err = s.reportRepo.ListByStatus(ctx, model.ReportStatusSubmitted, page, limit)
	case model.RoleCEO:
		reports, total, err = s.reportRepo.ListByStatus(ctx, model.ReportStatusPendingCEOApproval, page, limit)
	case model.RoleFinance:
		reports, total, err = s.reportRepo.ListFinanceQueue(ctx, page, limit)
	default:
		return nil, 0, apperror.Validation("role %q has no pending queue", role)
	}
	if err != nil {
		return nil, 0, err
	}

	res := make([]ReportResponse, 0, len(reports))
	for i := range reports {
		res = append(res, toReportResponse(&reports[i]))
	}
	return res, total, nil
}

// --- Helpers ---

// postSpend posts the report's spend to the budget ledger exactly once per
// approval cycle, guarded by the report's LedgerPosted marker.
func (s *workflowService) postSpend(ctx context.Context, report *model.ExpenseReport) error {
	if report.LedgerPosted {
		return nil
	}
	if err := s.budgetSvc.ApplySpend(ctx, report.Items); err != nil {
		return err
	}
	report.LedgerPosted = true
	return nil
}

func (s *workflowService) recordDecision(ctx context.Context, reportID, actorID uuid.UUID, stage, decision, remarks string) error {
	now := s.now().UTC()
	return s.approvalRepo.Create(ctx, &model.Approval{
		ReportID:     reportID,
		ApproverID:   actorID,
		Stage:        stage,
		Decision:     decision,
		Remarks:      remarks,
		DecisionDate: &now,
	})
}

func (s *workflowService) audit(ctx context.Context, action, role string, actorID uuid.UUID, report *model.ExpenseReport, remarks string) error {
	details, _ := json.Marshal(map[string]interface{}{
		"status":       report.Status,
		"budget_check": report.BudgetCheck,
		"remarks":      remarks,
	})
	return s.auditRepo.Create(ctx, &model.AuditLog{
		Action:      action,
		Module:      "workflow",
		Role:        role,
		PerformedBy: &actorID,
		ReportID:    &report.ID,
		Details:     string(details),
	})
}

// broadcast pushes a transition event to connected dashboards. Best effort:
// a missing hub never fails the transition that already committed.
func (s *workflowService) broadcast(eventType string, report *model.ExpenseReport, actorID uuid.UUID) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(ws.Event{
		Type:      eventType,
		ReportID:  report.ID.String(),
		Status:    report.Status,
		Actor:     actorID.String(),
		Timestamp: s.now(),
	})
}
