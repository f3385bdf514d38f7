package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/edulink-id/studyfair-backend/internal/payments"
	"github.com/edulink-id/studyfair-backend/pkg/db/models"
	"github.com/edulink-id/studyfair-backend/pkg/enums"
	"github.com/edulink-id/studyfair-backend/pkg/logger"
)

type stubPendingReader struct {
	bookings []models.Booking
	err      error
	cutoff   time.Time
}

func (s *stubPendingReader) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	s.cutoff = cutoff
	return s.bookings, s.err
}

type stubApplier struct {
	observations []payments.Observation
	outcomes     map[string]*payments.Outcome
	errs         map[string]error
}

func (s *stubApplier) ApplyObservedStatus(ctx context.Context, obs payments.Observation) (*payments.Outcome, error) {
	s.observations = append(s.observations, obs)
	if err, ok := s.errs[obs.OrderID]; ok {
		return nil, err
	}
	if outcome, ok := s.outcomes[obs.OrderID]; ok {
		return outcome, nil
	}
	return &payments.Outcome{Result: payments.ResultApplied, OrderID: obs.OrderID, Status: enums.BookingStatusExpired}, nil
}

func pendingBooking(orderID string) models.Booking {
	return models.Booking{
		ID:      uuid.New(),
		OrderID: orderID,
		Status:  enums.BookingStatusPending,
	}
}

func TestBookingExpiryJobExpiresStalePending(t *testing.T) {
	reader := &stubPendingReader{bookings: []models.Booking{pendingBooking("SF-1"), pendingBooking("SF-2")}}
	applier := &stubApplier{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	job, err := NewBookingExpiryJob(BookingExpiryJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test"}),
		Reader:     reader,
		Engine:     applier,
		PendingTTL: 24 * time.Hour,
		Now:        func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run job: %v", err)
	}

	if want := now.Add(-24 * time.Hour); !reader.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, reader.cutoff)
	}
	if len(applier.observations) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(applier.observations))
	}
	for _, obs := range applier.observations {
		if obs.TransactionStatus != "expire" {
			t.Fatalf("expected expire observation, got %q", obs.TransactionStatus)
		}
		if obs.Source != enums.PaymentSourceSystem {
			t.Fatalf("expected system source, got %q", obs.Source)
		}
	}
}

func TestBookingExpiryJobContinuesPastFailures(t *testing.T) {
	reader := &stubPendingReader{bookings: []models.Booking{pendingBooking("SF-1"), pendingBooking("SF-2")}}
	applier := &stubApplier{errs: map[string]error{"SF-1": errors.New("boom")}}

	job, err := NewBookingExpiryJob(BookingExpiryJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test"}),
		Reader:     reader,
		Engine:     applier,
		PendingTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected combined error")
	}
	if len(applier.observations) != 2 {
		t.Fatalf("expected both bookings attempted, got %d", len(applier.observations))
	}
}

func TestBookingExpiryJobNoStaleBookings(t *testing.T) {
	reader := &stubPendingReader{}
	applier := &stubApplier{}

	job, err := NewBookingExpiryJob(BookingExpiryJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test"}),
		Reader:     reader,
		Engine:     applier,
		PendingTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run job: %v", err)
	}
	if len(applier.observations) != 0 {
		t.Fatalf("expected no observations, got %d", len(applier.observations))
	}
}
