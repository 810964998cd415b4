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

// --- DTOs ---

type CreateBudgetRequest struct {
	Category  string `json:"category" binding:"required"`
	Allocated string `json:"allocated" binding:"required"` // decimal string
}

type BudgetResponse struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Allocated string `json:"allocated"`
	Spent     string `json:"spent"`
}

// CategoryExceedance is the per-category breakdown behind a budget check.
type CategoryExceedance struct {
	Category       string `json:"category"`
	Allocated      string `json:"allocated"`
	MonthSpent     string `json:"month_spent"`     // current-month item total excluding the report itself
	ReportAmount   string `json:"report_amount"`   // the report's own total for the category
	Projected      string `json:"projected"`       // month spent + report amount
	OverBudget     bool   `json:"over_budget"`
	ExcessAmount   string `json:"excess_amount"`
	Unbudgeted     bool   `json:"unbudgeted"` // no allocation row: never over budget
}

// --- Interface ---

// BudgetService is the budget ledger: it answers whether spend would exceed a
// category's monthly allocation and posts realized spend.
type BudgetService interface {
	// CheckWouldExceed reports whether adding candidateAmount to the
	// category's current-month item total (excluding excludeReportID's own
	// items) would strictly exceed its allocation.
	CheckWouldExceed(ctx context.Context, category string, candidateAmount decimal.Decimal, asOf time.Time, excludeReportID uuid.UUID) (bool, error)
	// EvaluateItems classifies a prospective set of report items. The report
	// is over budget if any category's monthly projection exceeds its
	// allocation.
	EvaluateItems(ctx context.Context, items []model.ExpenseItem, asOf time.Time, excludeReportID uuid.UUID) (string, error)
	// ApplySpend posts realized spend to every category present in items.
	// Idempotency is the caller's responsibility; categories without a
	// budget row are skipped.
	ApplySpend(ctx context.Context, items []model.ExpenseItem) error
	// Reallocate updates allocations inline with a CEO decision.
	Reallocate(ctx context.Context, actorID uuid.UUID, allocations map[string]string) error
	// ComputeExceedance derives the per-category breakdown for a report.
	ComputeExceedance(ctx context.Context, reportID uuid.UUID) ([]CategoryExceedance, error)

	ListBudgets(ctx context.Context) ([]BudgetResponse, error)
	CreateBudget(ctx context.Context, req CreateBudgetRequest) (BudgetResponse, error)
}

type budgetService struct {
	budgetRepo repository.BudgetRepository
	reportRepo repository.ReportRepository
	auditRepo  repository.AuditRepository
	txManager  repository.TransactionManager
}

func NewBudgetService(
	budgetRepo repository.BudgetRepository,
	reportRepo repository.ReportRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) BudgetService {
	return &budgetService{
		budgetRepo: budgetRepo,
		reportRepo: reportRepo,
		auditRepo:  auditRepo,
		txManager:  txManager,
	}
}

// --- Implementation ---

func monthWindow(asOf time.Time) (time.Time, time.Time) {
	start := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// categoryTotals groups item amounts by category, preserving first-seen order.
func categoryTotals(items []model.ExpenseItem) ([]string, map[string]decimal.Decimal) {
	order := make([]string, 0, len(items))
	totals := make(map[string]decimal.Decimal, len(items))
	for _, item := range items {
		if _, seen := totals[item.Category]; !seen {
			order = append(order, item.Category)
			totals[item.Category] = decimal.Zero
		}
		totals[item.Category] = totals[item.Category].Add(item.Amount)
	}
	return order, totals
}

func (s *budgetService) CheckWouldExceed(ctx context.Context, category string, candidateAmount decimal.Decimal, asOf time.Time, excludeReportID uuid.UUID) (bool, error) {
	budget, err := s.budgetRepo.FindByCategory(ctx, category)
	if err != nil {
		return false, err
	}
	if budget == nil {
		// Unbudgeted category: no limit to exceed.
		return false, nil
	}

	monthStart, monthEnd := monthWindow(asOf)
	monthSpent, err := s.reportRepo.SumCategoryForMonth(ctx, category, monthStart, monthEnd, excludeReportID)
	if err != nil {
		return false, err
	}

	return monthSpent.Add(candidateAmount).GreaterThan(budget.Allocated), nil
}

func (s *budgetService) EvaluateItems(ctx context.Context, items []model.ExpenseItem, asOf time.Time, excludeReportID uuid.UUID) (string, error) {
	categories, totals := categoryTotals(items)
	for _, category := range categories {
		over, err := s.CheckWouldExceed(ctx, category, totals[category], asOf, excludeReportID)
		if err != nil {
			return "", err
		}
		if over {
			return model.BudgetCheckOverBudget, nil
		}
	}
	return model.BudgetCheckWithinBudget, nil
}

func (s *budgetService) ApplySpend(ctx context.Context, items []model.ExpenseItem) error {
	categories, totals := categoryTotals(items)
	for _, category := range categories {
		if err := s.budgetRepo.AddSpent(ctx, category, totals[category]); err != nil {
			return fmt.Errorf("failed to post spend for category %q: %w", category, err)
		}
	}
	return nil
}

func (s *budgetService) Reallocate(ctx context.Context, actorID uuid.UUID, allocations map[string]string) error {
	if len(allocations) == 0 {
		return nil
	}

	parsed := make(map[string]decimal.Decimal, len(allocations))
	for category, raw := range allocations {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return apperror.Validation("invalid allocation for category %q: %s", category, raw)
		}
		if amount.IsNegative() {
			return apperror.Validation("allocation for category %q must not be negative", category)
		}
		parsed[category] = amount
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		for category, amount := range parsed {
			if err := s.budgetRepo.UpdateAllocated(txCtx, category, amount); err != nil {
				return err
			}
		}

		details, _ := json.Marshal(allocations)
		audit := &model.AuditLog{
			Action:      model.ActionReallocateBudget,
			Module:      "budget",
			Role:        model.RoleCEO,
			PerformedBy: &actorID,
			Details:     string(details),
		}
		return s.auditRepo.Create(txCtx, audit)
	})
}

func (s *budgetService) ComputeExceedance(ctx context.Context, reportID uuid.UUID) ([]CategoryExceedance, error) {
	report, err := s.reportRepo.FindByID(ctx, reportID)
	if err != nil {
		return nil, err
	}

	monthStart, monthEnd := monthWindow(report.SubmissionDate.UTC())
	categories, totals := categoryTotals(report.Items)

	result := make([]CategoryExceedance, 0, len(categories))
	for _, category := range categories {
		own := totals[category]
		monthSpent, err := s.reportRepo.SumCategoryForMonth(ctx, category, monthStart, monthEnd, report.ID)
		if err != nil {
			return nil, err
		}
		projected := monthSpent.Add(own)

		entry := CategoryExceedance{
			Category:     category,
			MonthSpent:   monthSpent.StringFixed(2),
			ReportAmount: own.StringFixed(2),
			Projected:    projected.StringFixed(2),
			ExcessAmount: decimal.Zero.StringFixed(2),
		}

		budget, err := s.budgetRepo.FindByCategory(ctx, category)
		if err != nil {
			return nil, err
		}
		if budget == nil {
			entry.Unbudgeted = true
			entry.Allocated = decimal.Zero.StringFixed(2)
		} else {
			entry.Allocated = budget.Allocated.StringFixed(2)
			if projected.GreaterThan(budget.Allocated) {
				entry.OverBudget = true
				entry.ExcessAmount = projected.Sub(budget.Allocated).StringFixed(2)
			}
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *budgetService) ListBudgets(ctx context.Context) ([]BudgetResponse, error) {
	budgets, err := s.budgetRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]BudgetResponse, 0, len(budgets))
	for _, b := range budgets {
		res = append(res, toBudgetResponse(b))
	}
	return res, nil
}

func (s *budgetService) CreateBudget(ctx context.Context, req CreateBudgetRequest) (BudgetResponse, error) {
	if req.Category == "" {
		return BudgetResponse{}, apperror.Validation("category is required")
	}
	allocated, err := decimal.NewFromString(req.Allocated)
	if err != nil {
		return BudgetResponse{}, apperror.Validation("invalid allocated amount: %s", req.Allocated)
	}
	if allocated.IsNegative() {
		return BudgetResponse{}, apperror.Validation("allocated amount must not be negative")
	}

	existing, err := s.budgetRepo.FindByCategory(ctx, req.Category)
	if err != nil {
		return BudgetResponse{}, err
	}
	if existing != nil {
		return BudgetResponse{}, apperror.Validation("budget category %q already exists", req.Category)
	}

	budget := model.Budget{
		Category:  req.Category,
		Allocated: allocated,
		Spent:     decimal.Zero,
	}
	if err := s.budgetRepo.Create(ctx, &budget); err != nil {
		return BudgetResponse{}, fmt.Errorf("failed to create budget: %w", err)
	}
	return toBudgetResponse(budget), nil
}

func toBudgetResponse(b model.Budget) BudgetResponse {
	return BudgetResponse{
		ID:        b.ID.String(),
		Category:  b.Category,
		Allocated: b.Allocated.StringFixed(2),
		Spent:     b.Spent.StringFixed(2),
	}
}
