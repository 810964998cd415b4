package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentStatus enum constants (mirrors the gateway's status strings)
const (
	PaymentStatusUnpaid  = "unpaid"
	PaymentStatusPaid    = "paid"
	PaymentStatusExpired = "expired"
)

// ReimbursementPayment is the single active checkout session of a report.
// Re-initiating a checkout replaces this row rather than adding another.
type ReimbursementPayment struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ReportID    uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null" json:"report_id"`
	SessionID   string          `gorm:"type:varchar(255);index" json:"session_id"`
	CheckoutURL string          `gorm:"type:text" json:"checkout_url"`
	Status      string          `gorm:"type:varchar(20);not null;default:'unpaid'" json:"status"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	ProcessedBy uuid.UUID       `gorm:"type:uuid" json:"processed_by"`
	CreatedAt   time.Time       `json:"created_at"`
	PaidAt      *time.Time      `json:"paid_at"`
}

func (p *ReimbursementPayment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
