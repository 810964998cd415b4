package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApprovalStage enum constants
const (
	StageManager = "MANAGER"
	StageCEO     = "CEO"
	StageFinance = "FINANCE"
)

// ApprovalDecision enum constants
const (
	DecisionPending  = "PENDING"
	DecisionApproved = "APPROVED"
	DecisionRejected = "REJECTED"
)

// Approval is one decision event in a report's trail. Records are append-only;
// resubmission marks prior records voided instead of deleting them so the
// audit history survives.
type Approval struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ReportID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"report_id"`
	ApproverID   uuid.UUID  `gorm:"type:uuid;not null" json:"approver_id"`
	Approver     *User      `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`
	Stage        string     `gorm:"type:varchar(20);not null" json:"stage"`
	Decision     string     `gorm:"type:varchar(20);not null;default:'PENDING'" json:"decision"`
	Remarks      string     `gorm:"type:text" json:"remarks"`
	DecisionDate *time.Time `json:"decision_date"`
	Voided       bool       `gorm:"default:false;index" json:"voided"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (a *Approval) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
