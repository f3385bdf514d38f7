package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edulink-id/studyfair-backend/pkg/db/models"
)

// Ledger advances the booth and voucher counters when a booking settles.
// Every mutation is a single guarded UPDATE so the quota invariants hold
// under concurrency without read-modify-write.
type Ledger interface {
	WithTx(tx *gorm.DB) Ledger
	ReserveBooth(ctx context.Context, eventID uuid.UUID) (bool, error)
	ConsumeVoucher(ctx context.Context, voucherID uuid.UUID) (bool, error)
}

type ledger struct {
	db *gorm.DB
}

// NewLedger builds a ledger bound to the provided DB.
func NewLedger(db *gorm.DB) Ledger {
	return &ledger{db: db}
}

func (l *ledger) WithTx(tx *gorm.DB) Ledger {
	if tx == nil {
		return l
	}
	return &ledger{db: tx}
}

// ReserveBooth advances booths_sold by one if head-room remains. The guard
// lives in the WHERE clause; RowsAffected == 0 means the quota is exhausted.
func (l *ledger) ReserveBooth(ctx context.Context, eventID uuid.UUID) (bool, error) {
	result := l.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("id = ? AND booths_sold < booth_quota", eventID).
		Update("booths_sold", gorm.Expr("booths_sold + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ConsumeVoucher advances times_used by one if uses remain.
func (l *ledger) ConsumeVoucher(ctx context.Context, voucherID uuid.UUID) (bool, error) {
	result := l.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ? AND times_used < max_uses", voucherID).
		Update("times_used", gorm.Expr("times_used + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
