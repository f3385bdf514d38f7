package bookings

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edulink-id/studyfair-backend/internal/repo"
	"github.com/edulink-id/studyfair-backend/pkg/db/models"
)

// Repository manages persistence for bookings and their lookups.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateBooking(ctx context.Context, booking *models.Booking) error
	FindBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	FindEventByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	FindVoucherByCode(ctx context.Context, code string) (*models.Voucher, error)
}

type repository struct {
	base repo.Base
}

// NewRepository builds a bookings repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx)}
}

func (r *repository) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	return r.base.DB(ctx).Create(booking).Error
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

func (r *repository) FindVoucherByCode(ctx context.Context, code string) (*models.Voucher, error) {
	var voucher models.Voucher
	err := r.base.DB(ctx).
		Where("code = ?", code).
		First(&voucher).Error
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}
