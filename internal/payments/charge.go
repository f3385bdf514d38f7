package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/edulink-id/studyfair-backend/pkg/db/models"
	"github.com/edulink-id/studyfair-backend/pkg/enums"
	pkgerrors "github.com/edulink-id/studyfair-backend/pkg/errors"
	"github.com/edulink-id/studyfair-backend/pkg/logger"
	"github.com/edulink-id/studyfair-backend/pkg/metrics"
	"github.com/edulink-id/studyfair-backend/pkg/midtrans"
)

// Gateway is the slice of the payment gateway the charge and check flows use.
type Gateway interface {
	CreateSnapTransaction(ctx context.Context, params midtrans.SnapParams) (*midtrans.SnapResult, error)
	GetTransactionStatus(ctx context.Context, orderID string) (*midtrans.TransactionStatus, error)
	RedirectURL(token string) string
}

// ChargeRequest identifies the booking to open a payment for.
type ChargeRequest struct {
	BookingID       *uuid.UUID
	OrderID         string
	EnabledPayments []string
}

// ChargeResult carries the Snap token for the client to open the payment page.
type ChargeResult struct {
	OrderID     string          `json:"order_id"`
	Amount      decimal.Decimal `json:"amount"`
	Token       string          `json:"token"`
	RedirectURL string          `json:"redirect_url"`
	Reused      bool            `json:"reused"`
}

// ChargeService opens gateway transactions for pending bookings.
type ChargeService struct {
	repo    Repository
	gateway Gateway
	logg    *logger.Logger
	metrics *metrics.PaymentMetrics
	now     func() time.Time
}

// ChargeServiceParams collects the charge service dependencies.
type ChargeServiceParams struct {
	Repo    Repository
	Gateway Gateway
	Logger  *logger.Logger
	Metrics *metrics.PaymentMetrics
	Now     func() time.Time
}

// NewChargeService wires a charge service with the provided dependencies.
func NewChargeService(params ChargeServiceParams) (*ChargeService, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &ChargeService{
		repo:    params.Repo,
		gateway: params.Gateway,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

// CreateCharge issues a Snap token for a pending booking. A token issued
// earlier for the same amount is returned as-is so client retries do not
// open extra gateway transactions.
func (s *ChargeService) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	booking, err := s.loadBooking(ctx, req)
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, booking.OrderID)

	if booking.Status.IsTerminal() || booking.Status == enums.BookingStatusReview {
		return nil, pkgerrors.New(
			pkgerrors.CodeStateConflict,
			fmt.Sprintf("booking is %s, cannot open a charge", booking.Status),
		).WithDetails(map[string]any{"status": booking.Status})
	}

	event, err := s.repo.FindEventByID(ctx, booking.EventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load event")
	}
	if event.BoothsSold >= event.BoothQuota {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "booth quota exhausted")
	}

	if booking.SnapToken != nil && booking.TokenAmount != nil && booking.TokenAmount.Equal(booking.Amount) {
		s.logg.Info(ctx, "reusing existing snap token")
		return &ChargeResult{
			OrderID:     booking.OrderID,
			Amount:      booking.Amount,
			Token:       *booking.SnapToken,
			RedirectURL: s.gateway.RedirectURL(*booking.SnapToken),
			Reused:      true,
		}, nil
	}

	started := s.now()
	snap, err := s.gateway.CreateSnapTransaction(ctx, midtrans.SnapParams{
		OrderID:         booking.OrderID,
		GrossAmount:     booking.Amount,
		EnabledPayments: req.EnabledPayments,
		CustomerName:    booking.RepName,
		CustomerEmail:   booking.RepEmail,
		CustomerPhone:   booking.RepPhone,
	})
	s.metrics.ObserveGatewayLatency("snap_create", s.now().Sub(started))
	if err != nil {
		return nil, err
	}

	if err := s.repo.SaveSnapToken(ctx, booking.ID, snap.Token, booking.Amount, s.now().UTC()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist snap token")
	}

	s.logg.Info(ctx, "snap token issued")
	return &ChargeResult{
		OrderID:     booking.OrderID,
		Amount:      booking.Amount,
		Token:       snap.Token,
		RedirectURL: snap.RedirectURL,
		Reused:      false,
	}, nil
}

func (s *ChargeService) loadBooking(ctx context.Context, req ChargeRequest) (*models.Booking, error) {
	switch {
	case req.BookingID != nil && *req.BookingID != uuid.Nil:
		booking, err := s.repo.FindBookingByID(ctx, *req.BookingID)
		if err != nil {
			return nil, notFoundOrInternal(err)
		}
		return booking, nil
	case strings.TrimSpace(req.OrderID) != "":
		booking, err := s.repo.FindBookingByOrderID(ctx, req.OrderID)
		if err != nil {
			return nil, notFoundOrInternal(err)
		}
		return booking, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id or order id is required")
	}
}

func notFoundOrInternal(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load booking")
}
