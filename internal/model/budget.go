package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Budget holds the monthly allocation for one expense category.
// Spent only ever grows; corrections go through explicit reallocation.
type Budget struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Category  string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"category"`
	Allocated decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"allocated"`
	Spent     decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"spent"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (b *Budget) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
