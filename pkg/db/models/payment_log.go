package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/edulink-id/studyfair-backend/pkg/enums"
)

// PaymentLog is an append-only record of one observed gateway status event
// for a booking. Rows are never updated; corrections are new rows. The log
// reconstructs payment history and surfaces duplicate or conflicting
// notifications for operational follow-up.
type PaymentLog struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID         uuid.UUID           `gorm:"column:booking_id;type:uuid;not null;index"`
	OrderID           string              `gorm:"column:order_id;not null;index"`
	Source            enums.PaymentSource `gorm:"column:source;not null"`
	TransactionStatus string              `gorm:"column:transaction_status;not null"`
	MappedStatus      enums.BookingStatus `gorm:"column:mapped_status;not null"`
	GrossAmount       decimal.Decimal     `gorm:"column:gross_amount;type:numeric(14,2);not null"`
	PaymentType       string              `gorm:"column:payment_type"`
	FraudStatus       string              `gorm:"column:fraud_status"`
	AmountMatch       bool                `gorm:"column:amount_match;not null;default:true"`
	Conflict          bool                `gorm:"column:conflict;not null;default:false"`
	Note              string              `gorm:"column:note"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime;index"`
}

func (PaymentLog) TableName() string { return "payment_logs" }
