package repository

import (
	"context"
	"errors"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentRepository interface {
	// FindByReport returns (nil, nil) when the report has no session yet.
	FindByReport(ctx context.Context, reportID uuid.UUID) (*model.ReimbursementPayment, error)
	FindBySession(ctx context.Context, sessionID string) (*model.ReimbursementPayment, error)
	Save(ctx context.Context, payment *model.ReimbursementPayment) error
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) FindByReport(ctx context.Context, reportID uuid.UUID) (*model.ReimbursementPayment, error) {
	var payment model.ReimbursementPayment
	err := GetDB(ctx, r.db).First(&payment, "report_id = ?", reportID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) FindBySession(ctx context.Context, sessionID string) (*model.ReimbursementPayment, error) {
	var payment model.ReimbursementPayment
	err := GetDB(ctx, r.db).First(&payment, "session_id = ?", sessionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) Save(ctx context.Context, payment *model.ReimbursementPayment) error {
	return GetDB(ctx, r.db).Save(payment).Error
}
