package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReportStatus enum constants
const (
	ReportStatusSubmitted          = "SUBMITTED"
	ReportStatusPendingCEOApproval = "PENDING_CEO_APPROVAL"
	ReportStatusApproved           = "APPROVED"
	ReportStatusRejected           = "REJECTED"
)

// BudgetCheckStatus enum constants
const (
	BudgetCheckWithinBudget = "WITHIN_BUDGET"
	BudgetCheckOverBudget   = "OVER_BUDGET"
)

// ExpenseReport is the aggregate root of the approval workflow. Items are
// owned exclusively by the report and share its lifetime. Reimbursed is an
// overlay on APPROVED, not a separate status.
type ExpenseReport struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	User           *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	SubmissionDate time.Time       `gorm:"not null" json:"submission_date"`
	Status         string          `gorm:"type:varchar(30);not null;default:'SUBMITTED';index" json:"status"`
	BudgetCheck    string          `gorm:"type:varchar(20);not null;default:'WITHIN_BUDGET'" json:"budget_check"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total_amount"`

	ForwardedToCEO bool `gorm:"default:false" json:"forwarded_to_ceo"`
	CEOApproved    bool `gorm:"column:ceo_approved;default:false" json:"ceo_approved"`
	Reimbursed     bool `gorm:"default:false" json:"reimbursed"`
	// LedgerPosted guards budget spend posting so the workflow and the
	// reconciler never credit the same report twice.
	LedgerPosted bool `gorm:"default:false" json:"ledger_posted"`

	// Trip context for duration-aware budget review
	TripStart *time.Time `json:"trip_start"`
	TripEnd   *time.Time `json:"trip_end"`
	TripDays  int        `gorm:"default:1" json:"trip_days"`

	// Version enables optimistic concurrency control on workflow transitions
	Version int `gorm:"not null;default:1" json:"version"`

	Items []ExpenseItem `gorm:"foreignKey:ReportID;constraint:OnDelete:CASCADE" json:"items"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *ExpenseReport) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ExpenseItem is a single expense line belonging to exactly one report.
type ExpenseItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ReportID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"report_id"`
	Category    string          `gorm:"type:varchar(100);not null;index" json:"category"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Date        time.Time       `gorm:"not null;index" json:"date"`
	Description string          `gorm:"type:text" json:"description"`
	ReceiptPath string          `gorm:"type:text" json:"receipt_path"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (i *ExpenseItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
