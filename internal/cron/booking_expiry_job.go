package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/edulink-id/studyfair-backend/internal/payments"
	"github.com/edulink-id/studyfair-backend/pkg/db/models"
	"github.com/edulink-id/studyfair-backend/pkg/enums"
	"github.com/edulink-id/studyfair-backend/pkg/logger"
)

const expiryBatchSize = 200

type pendingBookingReader interface {
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
}

type statusApplier interface {
	ApplyObservedStatus(ctx context.Context, obs payments.Observation) (*payments.Outcome, error)
}

// BookingExpiryJobParams configure the pending booking expiry job.
type BookingExpiryJobParams struct {
	Logger     *logger.Logger
	Reader     pendingBookingReader
	Engine     statusApplier
	PendingTTL time.Duration
	Now        func() time.Time
}

// NewBookingExpiryJob builds the cron job that expires stale pending
// bookings. Each expiry goes through the reconciliation engine, which
// re-checks the status inside its own locked transaction, so a payment
// settling while the batch runs wins the race.
func NewBookingExpiryJob(params BookingExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("pending bookings reader required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("reconciliation engine required")
	}
	if params.PendingTTL <= 0 {
		return nil, fmt.Errorf("pending ttl must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &bookingExpiryJob{
		logg:       params.Logger,
		reader:     params.Reader,
		engine:     params.Engine,
		pendingTTL: params.PendingTTL,
		now:        now,
	}, nil
}

type bookingExpiryJob struct {
	logg       *logger.Logger
	reader     pendingBookingReader
	engine     statusApplier
	pendingTTL time.Duration
	now        func() time.Time
}

func (j *bookingExpiryJob) Name() string { return "booking-expiry" }

func (j *bookingExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.pendingTTL)
	stale, err := j.reader.ListPendingOlderThan(ctx, cutoff, expiryBatchSize)
	if err != nil {
		return fmt.Errorf("list stale pending bookings: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	var errs []error
	expired := 0
	for _, booking := range stale {
		outcome, err := j.engine.ApplyObservedStatus(ctx, payments.Observation{
			OrderID:           booking.OrderID,
			TransactionStatus: "expire",
			Source:            enums.PaymentSourceSystem,
			Note:              "pending past ttl",
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("expire %s: %w", booking.OrderID, err))
			continue
		}
		if outcome.Result == payments.ResultApplied {
			expired++
		}
	}

	j.logg.Info(ctx, fmt.Sprintf("expired %d of %d stale pending bookings", expired, len(stale)))
	return multierr.Combine(errs...)
}
