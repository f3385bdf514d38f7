package bookings

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/edulink-id/studyfair-backend/internal/payments"
	"github.com/edulink-id/studyfair-backend/pkg/auth"
	"github.com/edulink-id/studyfair-backend/pkg/db"
	"github.com/edulink-id/studyfair-backend/pkg/db/models"
	"github.com/edulink-id/studyfair-backend/pkg/enums"
	pkgerrors "github.com/edulink-id/studyfair-backend/pkg/errors"
	"github.com/edulink-id/studyfair-backend/pkg/logger"
)

const orderIDAttempts = 3

// Service creates bookings and routes lifecycle actions through the
// reconciliation engine.
type Service struct {
	repo           Repository
	engine         *payments.Engine
	logg           *logger.Logger
	payTokenSecret string
	payTokenTTL    time.Duration
	now            func() time.Time
}

// ServiceParams collects the bookings service dependencies.
type ServiceParams struct {
	Repo           Repository
	Engine         *payments.Engine
	Logger         *logger.Logger
	PayTokenSecret string
	PayTokenTTL    time.Duration
	Now            func() time.Time
}

// NewService wires a bookings service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("reconciliation engine required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.PayTokenSecret == "" {
		return nil, fmt.Errorf("pay token secret required")
	}
	ttl := params.PayTokenTTL
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:           params.Repo,
		engine:         params.Engine,
		logg:           params.Logger,
		payTokenSecret: params.PayTokenSecret,
		payTokenTTL:    ttl,
		now:            now,
	}, nil
}

// CreateBooking opens a PENDING booking against a published event. The amount
// is computed and fixed here; reconciliation later flags divergence instead of
// rewriting it.
func (s *Service) CreateBooking(ctx context.Context, input CreateBookingInput) (*CreateBookingResult, error) {
	if input.EventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}

	event, err := s.repo.FindEventByID(ctx, input.EventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load event")
	}
	if !event.Published {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event is not open for booking")
	}
	if event.BoothsSold >= event.BoothQuota {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "booth quota exhausted")
	}

	amount := event.BoothPrice
	var voucherID *uuid.UUID
	if code := strings.TrimSpace(input.VoucherCode); code != "" {
		voucher, err := s.resolveVoucher(ctx, code)
		if err != nil {
			return nil, err
		}
		amount = applyDiscount(amount, voucher.DiscountPercent)
		voucherID = &voucher.ID
	}

	booking := &models.Booking{
		EventID:    event.ID,
		Amount:     amount,
		VoucherID:  voucherID,
		Status:     enums.BookingStatusPending,
		RepName:    input.RepName,
		RepEmail:   input.RepEmail,
		RepPhone:   input.RepPhone,
		CampusName: input.CampusName,
	}

	if err := s.createWithFreshOrderID(ctx, booking); err != nil {
		return nil, err
	}

	payToken, err := auth.MintPayToken(s.payTokenSecret, booking.OrderID, s.now(), s.payTokenTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint pay token")
	}

	ctx = s.logg.WithBookingID(ctx, booking.ID.String())
	s.logg.Info(ctx, "booking created")

	return &CreateBookingResult{
		BookingID: booking.ID,
		EventID:   event.ID,
		PayToken:  payToken,
	}, nil
}

// CancelBooking routes an operator cancellation through the engine so the
// terminal-state rules apply. A settled booking refuses with STATE_CONFLICT.
func (s *Service) CancelBooking(ctx context.Context, bookingID uuid.UUID) (*payments.Outcome, error) {
	booking, err := s.repo.FindBookingByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load booking")
	}

	outcome, err := s.engine.ApplyObservedStatus(ctx, payments.Observation{
		OrderID:           booking.OrderID,
		TransactionStatus: "cancel",
		Source:            enums.PaymentSourceManual,
		Note:              "operator cancellation",
	})
	if err != nil {
		return nil, err
	}
	if outcome.Result == payments.ResultConflict {
		return nil, pkgerrors.New(
			pkgerrors.CodeStateConflict,
			fmt.Sprintf("booking is %s and cannot be cancelled", outcome.Previous),
		)
	}
	return outcome, nil
}

func (s *Service) resolveVoucher(ctx context.Context, code string) (*models.Voucher, error) {
	voucher, err := s.repo.FindVoucherByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown voucher code")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load voucher")
	}
	if !voucher.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher is inactive")
	}
	if voucher.ExpiresAt != nil && voucher.ExpiresAt.Before(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher has expired")
	}
	if voucher.TimesUsed >= voucher.MaxUses {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher uses exhausted")
	}
	return voucher, nil
}

func (s *Service) createWithFreshOrderID(ctx context.Context, booking *models.Booking) error {
	for attempt := 0; attempt < orderIDAttempts; attempt++ {
		orderID, err := s.newOrderID()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order id")
		}
		booking.OrderID = orderID
		booking.ID = uuid.New()

		err = s.repo.CreateBooking(ctx, booking)
		if err == nil {
			return nil
		}
		if db.IsUniqueViolation(err, "") {
			continue
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create booking")
	}
	return pkgerrors.New(pkgerrors.CodeInternal, "order id collisions exhausted retries")
}

// newOrderID builds the gateway-facing order identifier, e.g.
// SF-20260301-9F2C4A1B.
func (s *Service) newOrderID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"SF-%s-%s",
		s.now().UTC().Format("20060102"),
		strings.ToUpper(hex.EncodeToString(buf)),
	), nil
}

func applyDiscount(price decimal.Decimal, percent int) decimal.Decimal {
	if percent <= 0 {
		return price
	}
	if percent >= 100 {
		return decimal.Zero
	}
	factor := decimal.NewFromInt(int64(100 - percent)).Div(decimal.NewFromInt(100))
	return price.Mul(factor).Round(2)
}
