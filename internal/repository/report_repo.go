package repository

import (
	"context"
	"errors"
	"time"

	"backend/internal/model"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ReportRepository interface {
	Create(ctx context.Context, report *model.ExpenseReport) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ExpenseReport, error)
	// UpdateWithVersion persists the report's mutable fields guarded by its
	// optimistic version. On success the in-memory Version is bumped.
	UpdateWithVersion(ctx context.Context, report *model.ExpenseReport) error
	ReplaceItems(ctx context.Context, reportID uuid.UUID, items []model.ExpenseItem) error
	ListByUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.ExpenseReport, int64, error)
	ListByStatus(ctx context.Context, status string, page, limit int) ([]model.ExpenseReport, int64, error)
	ListFinanceQueue(ctx context.Context, page, limit int) ([]model.ExpenseReport, int64, error)
	// SumCategoryForMonth totals item amounts for a category dated within
	// [monthStart, monthEnd), skipping items of excludeReportID.
	SumCategoryForMonth(ctx context.Context, category string, monthStart, monthEnd time.Time, excludeReportID uuid.UUID) (decimal.Decimal, error)
}

type reportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) Create(ctx context.Context, report *model.ExpenseReport) error {
	return GetDB(ctx, r.db).Create(report).Error
}

func (r *reportRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ExpenseReport, error) {
	var report model.ExpenseReport
	err := GetDB(ctx, r.db).Preload("Items").First(&report, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("expense report %s not found", id)
		}
		return nil, err
	}
	return &report, nil
}

func (r *reportRepository) UpdateWithVersion(ctx context.Context, report *model.ExpenseReport) error {
	res := GetDB(ctx, r.db).Model(&model.ExpenseReport{}).
		Where("id = ? AND version = ?", report.ID, report.Version).
		Updates(map[string]interface{}{
			"submission_date":  report.SubmissionDate,
			"status":           report.Status,
			"budget_check":     report.BudgetCheck,
			"total_amount":     report.TotalAmount,
			"forwarded_to_ceo": report.ForwardedToCEO,
			"ceo_approved":     report.CEOApproved,
			"reimbursed":       report.Reimbursed,
			"ledger_posted":    report.LedgerPosted,
			"trip_start":       report.TripStart,
			"trip_end":         report.TripEnd,
			"trip_days":        report.TripDays,
			"version":          report.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.ConcurrencyConflict("expense report %s was modified concurrently", report.ID)
	}
	report.Version++
	return nil
}

func (r *reportRepository) ReplaceItems(ctx context.Context, reportID uuid.UUID, items []model.ExpenseItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("report_id = ?", reportID).Delete(&model.ExpenseItem{}).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].ReportID = reportID
	}
	return db.Create(&items).Error
}

func (r *reportRepository) ListByUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.ExpenseReport, int64, error) {
	return r.list(ctx, GetDB(ctx, r.db).Where("user_id = ?", userID), page, limit)
}

func (r *reportRepository) ListByStatus(ctx context.Context, status string, page, limit int) ([]model.ExpenseReport, int64, error) {
	return r.list(ctx, GetDB(ctx, r.db).Where("status = ?", status), page, limit)
}

// ListFinanceQueue returns approved, not-yet-reimbursed reports that finance
// may act on: within budget, or over budget but cleared by the CEO.
func (r *reportRepository) ListFinanceQueue(ctx context.Context, page, limit int) ([]model.ExpenseReport, int64, error) {
	q := GetDB(ctx, r.db).
		Where("status = ? AND reimbursed = ?", model.ReportStatusApproved, false).
		Where("budget_check = ? OR ceo_approved = ?", model.BudgetCheckWithinBudget, true)
	return r.list(ctx, q, page, limit)
}

func (r *reportRepository) list(ctx context.Context, q *gorm.DB, page, limit int) ([]model.ExpenseReport, int64, error) {
	var total int64
	if err := q.Model(&model.ExpenseReport{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	var reports []model.ExpenseReport
	if err := q.Preload("Items").
		Order("submission_date DESC").
		Offset(offset).Limit(limit).
		Find(&reports).Error; err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

func (r *reportRepository) SumCategoryForMonth(ctx context.Context, category string, monthStart, monthEnd time.Time, excludeReportID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	q := GetDB(ctx, r.db).Model(&model.ExpenseItem{}).
		Select("SUM(amount)").
		Where("category = ? AND date >= ? AND date < ?", category, monthStart, monthEnd)
	if excludeReportID != uuid.Nil {
		q = q.Where("report_id <> ?", excludeReportID)
	}
	if err := q.Scan(&sum).Error; err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}
