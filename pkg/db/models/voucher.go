package models

import (
	"time"

	"github.com/google/uuid"
)

// Voucher is a discount code with a bounded usage counter. TimesUsed only
// advances through the guarded counter in the payments ledger, tied 1:1 to a
// booking entering the paid state; times_used <= max_uses always holds.
type Voucher struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code            string     `gorm:"column:code;not null;unique"`
	DiscountPercent int        `gorm:"column:discount_percent;not null"`
	MaxUses         int        `gorm:"column:max_uses;not null"`
	TimesUsed       int        `gorm:"column:times_used;not null;default:0"`
	Active          bool       `gorm:"column:active;not null;default:true"`
	ExpiresAt       *time.Time `gorm:"column:expires_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
