package repository

import (
	"context"
	"errors"

	"backend/internal/model"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BudgetRepository interface {
	Create(ctx context.Context, budget *model.Budget) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Budget, error)
	// FindByCategory returns (nil, nil) on a lookup miss: an unbudgeted
	// category means "no limit", not an error.
	FindByCategory(ctx context.Context, category string) (*model.Budget, error)
	List(ctx context.Context) ([]model.Budget, error)
	// AddSpent increments the running spent total in place.
	AddSpent(ctx context.Context, category string, amount decimal.Decimal) error
	UpdateAllocated(ctx context.Context, category string, allocated decimal.Decimal) error
}

type budgetRepository struct {
	db *gorm.DB
}

func NewBudgetRepository(db *gorm.DB) BudgetRepository {
	return &budgetRepository{db: db}
}

func (r *budgetRepository) Create(ctx context.Context, budget *model.Budget) error {
	return GetDB(ctx, r.db).Create(budget).Error
}

func (r *budgetRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Budget, error) {
	var budget model.Budget
	err := GetDB(ctx, r.db).First(&budget, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("budget %s not found", id)
		}
		return nil, err
	}
	return &budget, nil
}

func (r *budgetRepository) FindByCategory(ctx context.Context, category string) (*model.Budget, error) {
	var budget model.Budget
	err := GetDB(ctx, r.db).First(&budget, "category = ?", category).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &budget, nil
}

func (r *budgetRepository) List(ctx context.Context) ([]model.Budget, error) {
	var budgets []model.Budget
	if err := GetDB(ctx, r.db).Order("category ASC").Find(&budgets).Error; err != nil {
		return nil, err
	}
	return budgets, nil
}

func (r *budgetRepository) AddSpent(ctx context.Context, category string, amount decimal.Decimal) error {
	res := GetDB(ctx, r.db).Model(&model.Budget{}).
		Where("category = ?", category).
		Update("spent", gorm.Expr("spent + ?", amount))
	return res.Error
}

func (r *budgetRepository) UpdateAllocated(ctx context.Context, category string, allocated decimal.Decimal) error {
	res := GetDB(ctx, r.db).Model(&model.Budget{}).
		Where("category = ?", category).
		Update("allocated", allocated)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("budget category %q not found", category)
	}
	return nil
}
