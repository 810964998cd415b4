package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ApprovalRepository interface {
	Create(ctx context.Context, approval *model.Approval) error
	// ListByReport returns the active (non-voided) decision trail, oldest first.
	ListByReport(ctx context.Context, reportID uuid.UUID) ([]model.Approval, error)
	// VoidByReport tags every prior decision as superseded. Resubmission
	// restarts the trail without destroying the audit history.
	VoidByReport(ctx context.Context, reportID uuid.UUID) error
}

type approvalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) Create(ctx context.Context, approval *model.Approval) error {
	return GetDB(ctx, r.db).Create(approval).Error
}

func (r *approvalRepository) ListByReport(ctx context.Context, reportID uuid.UUID) ([]model.Approval, error) {
	var approvals []model.Approval
	err := GetDB(ctx, r.db).
		Preload("Approver").
		Where("report_id = ? AND voided = ?", reportID, false).
		Order("created_at ASC").
		Find(&approvals).Error
	if err != nil {
		return nil, err
	}
	return approvals, nil
}

func (r *approvalRepository) VoidByReport(ctx context.Context, reportID uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.Approval{}).
		Where("report_id = ? AND voided = ?", reportID, false).
		Update("voided", true).Error
}
