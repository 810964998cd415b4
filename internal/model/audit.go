package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionSubmitReport     = "SUBMIT_REPORT"
	ActionResubmitReport   = "RESUBMIT_REPORT"
	ActionManagerApprove   = "MANAGER_APPROVE"
	ActionManagerReject    = "MANAGER_REJECT"
	ActionForwardToCEO     = "FORWARD_TO_CEO"
	ActionCEOApprove       = "CEO_APPROVE"
	ActionCEOReject        = "CEO_REJECT"
	ActionInitiateCheckout = "INITIATE_CHECKOUT"
	ActionConfirmPayment   = "CONFIRM_PAYMENT"
	ActionManualReimburse  = "MANUAL_REIMBURSE"
	ActionReallocateBudget = "REALLOCATE_BUDGET"
)

// AuditLog tracks who did what to which report. Written in the same
// transaction as the state change it describes.
type AuditLog struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Action      string     `gorm:"type:varchar(50);not null;index" json:"action"`
	Module      string     `gorm:"type:varchar(50)" json:"module"`
	Role        string     `gorm:"type:varchar(20)" json:"role"`
	PerformedBy *uuid.UUID `gorm:"type:uuid;index" json:"performed_by"`
	ReportID    *uuid.UUID `gorm:"type:uuid;index" json:"report_id"`
	Details     string     `gorm:"type:text" json:"details"` // serialized JSON payload
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
}

func (l *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
