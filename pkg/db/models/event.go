package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event is an expo event with a bounded number of sellable booth slots.
// BoothsSold is only ever advanced by the guarded counter in the payments
// ledger; the invariant booths_sold <= booth_quota holds at all times.
type Event struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Title      string          `gorm:"column:title;not null"`
	Slug       string          `gorm:"column:slug;not null;unique"`
	City       string          `gorm:"column:city"`
	Venue      string          `gorm:"column:venue"`
	Published  bool            `gorm:"column:published;not null;default:false"`
	BoothPrice decimal.Decimal `gorm:"column:booth_price;type:numeric(14,2);not null"`
	BoothQuota int             `gorm:"column:booth_quota;not null"`
	BoothsSold int             `gorm:"column:booths_sold;not null;default:0"`
	StartsAt   time.Time       `gorm:"column:starts_at;not null"`
	EndsAt     time.Time       `gorm:"column:ends_at;not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
