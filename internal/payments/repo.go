package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/edulink-id/studyfair-backend/internal/repo"
	"github.com/edulink-id/studyfair-backend/pkg/db/models"
	"github.com/edulink-id/studyfair-backend/pkg/enums"
	"github.com/edulink-id/studyfair-backend/pkg/pagination"
)

// Repository manages booking rows and the append-only payment log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindBookingByOrderID(ctx context.Context, orderID string) (*models.Booking, error)
	FindBookingByOrderIDForUpdate(ctx context.Context, orderID string) (*models.Booking, error)
	FindBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	FindEventByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	TransitionStatus(ctx context.Context, update StatusUpdate) (bool, error)
	SaveSnapToken(ctx context.Context, bookingID uuid.UUID, token string, amount decimal.Decimal, issuedAt time.Time) error
	AppendLog(ctx context.Context, entry *models.PaymentLog) error
	ListLogsByBooking(ctx context.Context, bookingID uuid.UUID, params pagination.Params) ([]models.PaymentLog, error)
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
}

// StatusUpdate describes a compare-and-set transition for one booking row.
// The update only lands when the row still holds From; RowsAffected reports
// whether it did.
type StatusUpdate struct {
	BookingID   uuid.UUID
	From        enums.BookingStatus
	To          enums.BookingStatus
	PaymentType *string
	PaidAt      *time.Time
}

type repository struct {
	base repo.Base
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx)}
}

func (r *repository) FindBookingByOrderID(ctx context.Context, orderID string) (*models.Booking, error) {
	var booking models.Booking
	err := r.base.DB(ctx).
		Where("order_id = ?", orderID).
		First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindBookingByOrderIDForUpdate locks the row for the duration of the
// surrounding transaction. The locking clause only applies on Postgres;
// sqlite serializes writers on its own.
func (r *repository) FindBookingByOrderIDForUpdate(ctx context.Context, orderID string) (*models.Booking, error) {
	query := r.base.DB(ctx)
	if query.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var booking models.Booking
	if err := query.Where("order_id = ?", orderID).First(&booking).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) FindBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.base.DB(ctx).
		Where("id = ?", id).
		First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) FindEventByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	err := r.base.DB(ctx).
		Where("id = ?", id).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) TransitionStatus(ctx context.Context, update StatusUpdate) (bool, error) {
	values := map[string]any{"status": update.To}
	if update.PaymentType != nil {
		values["payment_type"] = *update.PaymentType
	}
	if update.PaidAt != nil {
		values["paid_at"] = *update.PaidAt
	}

	result := r.base.DB(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND status = ?", update.BookingID, update.From).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) SaveSnapToken(ctx context.Context, bookingID uuid.UUID, token string, amount decimal.Decimal, issuedAt time.Time) error {
	return r.base.DB(ctx).
		Model(&models.Booking{}).
		Where("id = ?", bookingID).
		Updates(map[string]any{
			"snap_token":      token,
			"token_amount":    amount,
			"token_issued_at": issuedAt,
		}).Error
}

func (r *repository) AppendLog(ctx context.Context, entry *models.PaymentLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.base.DB(ctx).Create(entry).Error
}

func (r *repository) ListLogsByBooking(ctx context.Context, bookingID uuid.UUID, params pagination.Params) ([]models.PaymentLog, error) {
	query := r.base.DB(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC, id ASC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at > ?) OR (created_at = ? AND id > ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var logs []models.PaymentLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *repository) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.base.DB(ctx).
		Where("status = ? AND created_at < ?", enums.BookingStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}
