package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/edulink-id/studyfair-backend/pkg/enums"
)

// Booking reserves one booth slot for one event. OrderID is the unique,
// immutable gateway-facing identifier; Amount is fixed at creation and is
// never rewritten by reconciliation (mismatches are flagged, not corrected).
type Booking struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID   uuid.UUID           `gorm:"column:event_id;type:uuid;not null;index"`
	OrderID   string              `gorm:"column:order_id;not null;unique"`
	Amount    decimal.Decimal     `gorm:"column:amount;type:numeric(14,2);not null"`
	VoucherID *uuid.UUID          `gorm:"column:voucher_id;type:uuid"`
	Status    enums.BookingStatus `gorm:"column:status;not null;default:'pending';index"`

	RepName    string `gorm:"column:rep_name;not null"`
	RepEmail   string `gorm:"column:rep_email;not null"`
	RepPhone   string `gorm:"column:rep_phone"`
	CampusName string `gorm:"column:campus_name;not null"`

	// Snap token state persisted by the charge orchestrator. TokenAmount
	// records the gross amount the token was issued for, so a retry with an
	// unchanged amount reuses the token instead of opening a new gateway
	// transaction.
	SnapToken     *string          `gorm:"column:snap_token"`
	TokenAmount   *decimal.Decimal `gorm:"column:token_amount;type:numeric(14,2)"`
	TokenIssuedAt *time.Time       `gorm:"column:token_issued_at"`

	PaymentType *string    `gorm:"column:payment_type"`
	PaidAt      *time.Time `gorm:"column:paid_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
