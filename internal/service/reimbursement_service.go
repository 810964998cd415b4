package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/internal/paymongo"
	"backend/internal/repository"
	ws "backend/internal/websocket"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// --- DTOs ---

type PaymentResponse struct {
	ID          string  `json:"id"`
	ReportID    string  `json:"report_id"`
	SessionID   string  `json:"session_id"`
	CheckoutURL string  `json:"checkout_url"`
	Status      string  `json:"status"`
	Amount      string  `json:"amount"`
	CreatedAt   string  `json:"created_at"`
	PaidAt      *string `json:"paid_at"`
}

// --- Interface ---

// ReimbursementService bridges asynchronous payment confirmations into the
// workflow without double-crediting the budget ledger. It is safe to invoke
// redundantly and out of order: webhook delivery, manual refresh and operator
// override all converge on the same idempotent confirmation path.
type ReimbursementService interface {
	// InitiateCheckout creates (or replaces) the report's single active
	// checkout session. Fails with AlreadyPaidError when the active session
	// already reports paid.
	InitiateCheckout(ctx context.Context, actorID, reportID uuid.UUID) (PaymentResponse, error)
	// ConfirmPayment applies an external payment status. Anything other than
	// "paid" only updates the payment record. "paid" marks the report
	// reimbursed and posts ledger spend exactly once.
	ConfirmPayment(ctx context.Context, actorID, reportID uuid.UUID, externalStatus string) (ReportResponse, error)
	// ConfirmPaymentBySession resolves the report through its gateway
	// session id (webhook path) before confirming.
	ConfirmPaymentBySession(ctx context.Context, sessionID, externalStatus string) error
	// RefreshStatus polls the gateway and confirms whatever it reports.
	RefreshStatus(ctx context.Context, actorID, reportID uuid.UUID) (ReportResponse, error)
	// MarkReimbursedManual is the administrative escape hatch: the same
	// idempotent reimbursement path, bypassing the gateway.
	MarkReimbursedManual(ctx context.Context, actorID, reportID uuid.UUID, remarks string) (ReportResponse, error)
	// FinanceQueue lists approved reports finance may reimburse.
	FinanceQueue(ctx context.Context, page, limit int) ([]ReportResponse, int64, error)
}

type reimbursementService struct {
	reportRepo   repository.ReportRepository
	paymentRepo  repository.PaymentRepository
	approvalRepo repository.ApprovalRepository
	userRepo     repository.UserRepository
	auditRepo    repository.AuditRepository
	budgetSvc    BudgetService
	gateway      paymongo.Gateway
	txManager    repository.TransactionManager
	hub          *ws.Hub
	logger       *zap.Logger
	baseURL      string
	now          func() time.Time
}

func NewReimbursementService(
	reportRepo repository.ReportRepository,
	paymentRepo repository.PaymentRepository,
	approvalRepo repository.ApprovalRepository,
	userRepo repository.UserRepository,
	auditRepo repository.AuditRepository,
	budgetSvc BudgetService,
	gateway paymongo.Gateway,
	txManager repository.TransactionManager,
	hub *ws.Hub,
	logger *zap.Logger,
	baseURL string,
) ReimbursementService {
	return &reimbursementService{
		reportRepo:   reportRepo,
		paymentRepo:  paymentRepo,
		approvalRepo: approvalRepo,
		userRepo:     userRepo,
		auditRepo:    auditRepo,
		budgetSvc:    budgetSvc,
		gateway:      gateway,
		txManager:    txManager,
		hub:          hub,
		logger:       logger,
		baseURL:      baseURL,
		now:          time.Now,
	}
}

// --- Implementation ---

// reimbursable reports whether finance may act on the report.
func reimbursable(report *model.ExpenseReport) error {
	if report.Status != model.ReportStatusApproved {
		return apperror.InvalidState("report is %s; only approved reports can be reimbursed", report.Status)
	}
	if report.BudgetCheck == model.BudgetCheckOverBudget && !report.CEOApproved {
		return apperror.InvalidState("over-budget report requires CEO approval before reimbursement")
	}
	return nil
}

func (s *reimbursementService) InitiateCheckout(ctx context.Context, actorID, reportID uuid.UUID) (PaymentResponse, error) {
	report, err := s.reportRepo.FindByID(ctx, reportID)
	if err != nil {
		return PaymentResponse{}, err
	}
	if err := reimbursable(report); err != nil {
		return PaymentResponse{}, err
	}
	if report.Reimbursed {
		return PaymentResponse{}, apperror.AlreadyPaid("report %s is already reimbursed", reportID)
	}

	existing, err := s.paymentRepo.FindByReport(ctx, reportID)
	if err != nil {
		return PaymentResponse{}, err
	}
	if existing != nil && existing.Status == model.PaymentStatusPaid {
		return PaymentResponse{}, apperror.AlreadyPaid("active payment session for report %s is already paid", reportID)
	}

	owner, err := s.userRepo.FindByID(ctx, report.UserID)
	if err != nil {
		return PaymentResponse{}, err
	}

	// External call happens before any local mutation: a gateway failure
	// must leave local state untouched.
	session, err := s.gateway.CreateCheckoutSession(ctx, paymongo.CheckoutRequest{
		Amount:        report.TotalAmount,
		Description:   fmt.Sprintf("Expense reimbursement for report %s", report.ID),
		ReportID:      report.ID,
		SuccessURL:    s.baseURL + "/finance/reimbursements/success",
		CancelURL:     s.baseURL + "/finance/reimbursements/cancel",
		CustomerEmail: owner.Email,
		CustomerName:  owner.Name,
	})
	if err != nil {
		return PaymentResponse{}, apperror.ExternalService(err, "payment gateway rejected checkout creation")
	}

	payment := existing
	if payment == nil {
		payment = &model.ReimbursementPayment{ReportID: report.ID}
	}
	payment.SessionID = session.SessionID
	payment.CheckoutURL = session.CheckoutURL
	payment.Status = model.PaymentStatusUnpaid
	payment.Amount = report.TotalAmount
	payment.ProcessedBy = actorID
	payment.PaidAt = nil

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.paymentRepo.Save(txCtx, payment); err != nil {
			return fmt.Errorf("failed to save payment session: %w", err)
		}
		details, _ := json.Marshal(map[string]string{
			"session_id": session.SessionID,
			"amount":     report.TotalAmount.StringFixed(2),
		})
		return s.auditRepo.Create(txCtx, &model.AuditLog{
			Action:      model.ActionInitiateCheckout,
			Module:      "reimbursement",
			Role:        model.RoleFinance,
			PerformedBy: &actorID,
			ReportID:    &report.ID,
			Details:     string(details),
		})
	})
	if err != nil {
		return PaymentResponse{}, err
	}

	return toPaymentResponse(payment), nil
}

func (s *reimbursementService) ConfirmPayment(ctx context.Context, actorID, reportID uuid.UUID, externalStatus string) (ReportResponse, error) {
	var report *model.ExpenseReport
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		payment, err := s.paymentRepo.FindByReport(txCtx, reportID)
		if err != nil {
			return err
		}
		if payment == nil {
			return apperror.NotFound("report %s has no payment session", reportID)
		}

		// Non-paid statuses only track the session; the workflow is untouched.
		if externalStatus != model.PaymentStatusPaid {
			payment.Status = externalStatus
			if err := s.paymentRepo.Save(txCtx, payment); err != nil {
				return err
			}
			report, err = s.reportRepo.FindByID(txCtx, reportID)
			return err
		}

		report, err = s.applyReimbursement(txCtx, actorID, reportID, payment, model.ActionConfirmPayment, "")
		return err
	})
	if err != nil {
		return ReportResponse{}, err
	}

	if externalStatus == model.PaymentStatusPaid {
		s.broadcast("report.reimbursed", report, actorID)
	}
	return toReportResponse(report), nil
}

func (s *reimbursementService) ConfirmPaymentBySession(ctx context.Context, sessionID, externalStatus string) error {
	payment, err := s.paymentRepo.FindBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	if payment == nil {
		return apperror.NotFound("no payment session %q", sessionID)
	}
	_, err = s.ConfirmPayment(ctx, uuid.Nil, payment.ReportID, externalStatus)
	return err
}

func (s *reimbursementService) RefreshStatus(ctx context.Context, actorID, reportID uuid.UUID) (ReportResponse, error) {
	payment, err := s.paymentRepo.FindByReport(ctx, reportID)
	if err != nil {
		return ReportResponse{}, err
	}
	if payment == nil {
		return ReportResponse{}, apperror.NotFound("report %s has no payment session", reportID)
	}

	status, err := s.gateway.GetCheckoutStatus(ctx, payment.SessionID)
	if err != nil {
		// Abort with local state unchanged; the caller retries.
		return ReportResponse{}, apperror.ExternalService(err, "payment status query failed")
	}

	return s.ConfirmPayment(ctx, actorID, reportID, status)
}

func (s *reimbursementService) MarkReimbursedManual(ctx context.Context, actorID, reportID uuid.UUID, remarks string) (ReportResponse, error) {
	var report *model.ExpenseReport
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		payment, err := s.paymentRepo.FindByReport(txCtx, reportID)
		if err != nil {
			return err
		}
		report, err = s.applyReimbursement(txCtx, actorID, reportID, payment, model.ActionManualReimburse, remarks)
		return err
	})
	if err != nil {
		return ReportResponse{}, err
	}

	s.broadcast("report.reimbursed", report, actorID)
	return toReportResponse(report), nil
}

func (s *reimbursementService) FinanceQueue(ctx context.Context, page, limit int) ([]ReportResponse, int64, error) {
	reports, total, err := s.reportRepo.ListFinanceQueue(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}
	res := make([]ReportResponse, 0, len(reports))
	for i := range reports {
		res = append(res, toReportResponse(&reports[i]))
	}
	return res, total, nil
}

// applyReimbursement is the single idempotent reimbursement path shared by
// webhook confirmation, manual refresh and operator override. The report's
// Reimbursed flag is re-read inside the enclosing transaction, so two racing
// confirmations cannot both post ledger spend. payment may be nil (manual
// override without a session).
func (s *reimbursementService) applyReimbursement(ctx context.Context, actorID, reportID uuid.UUID, payment *model.ReimbursementPayment, action, remarks string) (*model.ExpenseReport, error) {
	report, err := s.reportRepo.FindByID(ctx, reportID)
	if err != nil {
		return nil, err
	}

	if report.Reimbursed {
		// Duplicate webhook delivery or a concurrent confirmation already
		// applied this payment: success, no further effect.
		s.logger.Info("reimbursement already applied",
			zap.String("report_id", reportID.String()))
		if payment != nil && payment.Status != model.PaymentStatusPaid {
			payment.Status = model.PaymentStatusPaid
			if err := s.paymentRepo.Save(ctx, payment); err != nil {
				return nil, err
			}
		}
		return report, nil
	}

	if err := reimbursable(report); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	report.Reimbursed = true
	if !report.LedgerPosted {
		if err := s.budgetSvc.ApplySpend(ctx, report.Items); err != nil {
			return nil, err
		}
		report.LedgerPosted = true
	}
	if err := s.reportRepo.UpdateWithVersion(ctx, report); err != nil {
		return nil, err
	}

	if payment != nil {
		payment.Status = model.PaymentStatusPaid
		payment.PaidAt = &now
		if actorID != uuid.Nil {
			payment.ProcessedBy = actorID
		}
		if err := s.paymentRepo.Save(ctx, payment); err != nil {
			return nil, err
		}
	}

	financeActor := actorID
	if financeActor == uuid.Nil {
		// Webhook-triggered confirmations have no human actor; attribute the
		// decision to the session's initiator.
		if payment != nil {
			financeActor = payment.ProcessedBy
		}
	}
	if err := s.approvalRepo.Create(ctx, &model.Approval{
		ReportID:     report.ID,
		ApproverID:   financeActor,
		Stage:        model.StageFinance,
		Decision:     model.DecisionApproved,
		Remarks:      remarks,
		DecisionDate: &now,
	}); err != nil {
		return nil, err
	}

	details, _ := json.Marshal(map[string]string{
		"amount":  report.TotalAmount.StringFixed(2),
		"remarks": remarks,
	})
	auditEntry := &model.AuditLog{
		Action:   action,
		Module:   "reimbursement",
		Role:     model.RoleFinance,
		ReportID: &report.ID,
		Details:  string(details),
	}
	if actorID != uuid.Nil {
		auditEntry.PerformedBy = &actorID
	}
	if err := s.auditRepo.Create(ctx, auditEntry); err != nil {
		return nil, err
	}

	return report, nil
}

func (s *reimbursementService) broadcast(eventType string, report *model.ExpenseReport, actorID uuid.UUID) {
	if s.hub == nil || report == nil {
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

func toPaymentResponse(p *model.ReimbursementPayment) PaymentResponse {
	res := PaymentResponse{
		ID:          p.ID.String(),
		ReportID:    p.ReportID.String(),
		SessionID:   p.SessionID,
		CheckoutURL: p.CheckoutURL,
		Status:      p.Status,
		Amount:      p.Amount.StringFixed(2),
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
	if p.PaidAt != nil {
		s := p.PaidAt.Format(time.RFC3339)
		res.PaidAt = &s
	}
	return res
}
