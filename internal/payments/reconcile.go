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

	"github.com/edulink-id/studyfair-backend/pkg/db"
	"github.com/edulink-id/studyfair-backend/pkg/db/models"
	"github.com/edulink-id/studyfair-backend/pkg/enums"
	pkgerrors "github.com/edulink-id/studyfair-backend/pkg/errors"
	"github.com/edulink-id/studyfair-backend/pkg/logger"
	"github.com/edulink-id/studyfair-backend/pkg/metrics"
)

// Result classifies what a reconciliation pass did with an observation.
type Result string

const (
	// ResultApplied means the booking moved to the mapped status.
	ResultApplied Result = "applied"
	// ResultNoOp means the observation matched the stored status already.
	ResultNoOp Result = "no_op"
	// ResultConflict means the observation was recorded but not applied.
	ResultConflict Result = "conflict"
)

// Observation is one gateway status sighting, whatever the entry point.
type Observation struct {
	OrderID           string
	TransactionStatus string
	FraudStatus       string
	StatusCode        string
	GrossAmount       string
	PaymentType       string
	Source            enums.PaymentSource
	// AllowPaidOverride permits repairing a terminal booking to PAID. Only
	// honored for manual observations.
	AllowPaidOverride bool
	Note              string
}

// Outcome reports the decision taken for one observation.
type Outcome struct {
	Result           Result
	BookingID        uuid.UUID
	OrderID          string
	Previous         enums.BookingStatus
	Status           enums.BookingStatus
	MappedStatus     enums.BookingStatus
	AmountMatch      bool
	InventoryChanged bool
	VoucherChanged   bool
	Note             string
}

// Engine is the single authority for booking status transitions. Every
// mutation path (webhook, manual reconcile, expiry cron) funnels through
// ApplyObservedStatus; nothing else writes booking status.
type Engine struct {
	tx      db.TxRunner
	repo    Repository
	ledger  Ledger
	logg    *logger.Logger
	metrics *metrics.PaymentMetrics
	now     func() time.Time
}

// EngineParams collects the engine dependencies.
type EngineParams struct {
	TxRunner db.TxRunner
	Repo     Repository
	Ledger   Ledger
	Logger   *logger.Logger
	Metrics  *metrics.PaymentMetrics
	Now      func() time.Time
}

// NewEngine wires a reconciliation engine with the provided dependencies.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		tx:      params.TxRunner,
		repo:    params.Repo,
		ledger:  params.Ledger,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

// ApplyObservedStatus maps the observation onto the lifecycle and applies it
// inside one transaction with the booking row locked. Duplicate observations
// are no-ops, observations against a terminal booking are recorded as
// conflicts without mutating anything, and the PAID path settles quota and
// voucher counters atomically with the status change.
func (e *Engine) ApplyObservedStatus(ctx context.Context, obs Observation) (*Outcome, error) {
	if strings.TrimSpace(obs.OrderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !obs.Source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid observation source %q", obs.Source))
	}

	mapped := MapStatus(obs.TransactionStatus, obs.FraudStatus)
	ctx = e.logg.WithOrderID(ctx, obs.OrderID)
	ctx = e.logg.WithSource(ctx, obs.Source.String())

	var outcome *Outcome
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		led := e.ledger.WithTx(tx)

		booking, err := repo.FindBookingByOrderIDForUpdate(ctx, obs.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load booking")
		}

		outcome, err = e.decide(ctx, repo, led, booking, obs, mapped)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.metrics.IncReconcileResult(string(outcome.Result), obs.Source.String())
	e.logg.Info(ctx, fmt.Sprintf(
		"reconcile %s: %s -> %s (%s)",
		outcome.Result, outcome.Previous, outcome.Status, obs.TransactionStatus,
	))
	return outcome, nil
}

func (e *Engine) decide(ctx context.Context, repo Repository, led Ledger, booking *models.Booking, obs Observation, mapped enums.BookingStatus) (*Outcome, error) {
	amountMatch, noteParts := e.checkAmount(booking, obs)

	outcome := &Outcome{
		BookingID:    booking.ID,
		OrderID:      booking.OrderID,
		Previous:     booking.Status,
		Status:       booking.Status,
		MappedStatus: mapped,
		AmountMatch:  amountMatch,
	}
	if obs.Note != "" {
		noteParts = append(noteParts, obs.Note)
	}

	appendLog := func(conflict bool, extra ...string) error {
		parts := append(append([]string{}, noteParts...), extra...)
		return repo.AppendLog(ctx, &models.PaymentLog{
			BookingID:         booking.ID,
			OrderID:           booking.OrderID,
			Source:            obs.Source,
			TransactionStatus: obs.TransactionStatus,
			MappedStatus:      mapped,
			GrossAmount:       grossOrStored(booking, obs),
			PaymentType:       obs.PaymentType,
			FraudStatus:       obs.FraudStatus,
			AmountMatch:       amountMatch,
			Conflict:          conflict,
			Note:              strings.Join(parts, "; "),
		})
	}

	switch {
	case mapped == booking.Status:
		outcome.Result = ResultNoOp
		outcome.Note = "duplicate observation"
		return outcome, appendLog(false, "duplicate observation")

	case booking.Status.IsTerminal():
		if mapped == enums.BookingStatusPaid && obs.AllowPaidOverride && obs.Source == enums.PaymentSourceManual {
			return e.applyPaidOverride(ctx, repo, led, booking, outcome, appendLog)
		}
		outcome.Result = ResultConflict
		outcome.Note = fmt.Sprintf("terminal status %s cannot move to %s", booking.Status, mapped)
		return outcome, appendLog(true, outcome.Note)

	case booking.Status == enums.BookingStatusReview &&
		mapped != enums.BookingStatusPaid && mapped != enums.BookingStatusFailed:
		// REVIEW only resolves to a settled or failed payment; a stale
		// pending/expiry sighting must not regress the review.
		outcome.Result = ResultConflict
		outcome.Note = fmt.Sprintf("review cannot move to %s", mapped)
		return outcome, appendLog(true, outcome.Note)

	case mapped == enums.BookingStatusPaid:
		return e.applyPaid(ctx, repo, led, booking, obs, outcome, appendLog)

	default:
		ok, err := repo.TransitionStatus(ctx, StatusUpdate{
			BookingID: booking.ID,
			From:      booking.Status,
			To:        mapped,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transition booking status")
		}
		if !ok {
			outcome.Result = ResultConflict
			outcome.Note = "booking changed concurrently"
			return outcome, appendLog(true, outcome.Note)
		}
		outcome.Result = ResultApplied
		outcome.Status = mapped
		return outcome, appendLog(false)
	}
}

// applyPaid settles the booking: booth head-room is claimed first, then the
// voucher, then the status flips. A full event downgrades the booking to
// REVIEW instead of overselling.
func (e *Engine) applyPaid(ctx context.Context, repo Repository, led Ledger, booking *models.Booking, obs Observation, outcome *Outcome, appendLog func(bool, ...string) error) (*Outcome, error) {
	reserved, err := led.ReserveBooth(ctx, booking.EventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reserve booth")
	}
	if !reserved {
		ok, err := repo.TransitionStatus(ctx, StatusUpdate{
			BookingID: booking.ID,
			From:      booking.Status,
			To:        enums.BookingStatusReview,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "move booking to review")
		}
		outcome.Result = ResultConflict
		outcome.Note = "booth quota exhausted at settlement"
		if ok {
			outcome.Status = enums.BookingStatusReview
		}
		return outcome, appendLog(true, outcome.Note)
	}

	var voucherNote []string
	if booking.VoucherID != nil {
		consumed, err := led.ConsumeVoucher(ctx, *booking.VoucherID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "consume voucher")
		}
		outcome.VoucherChanged = consumed
		if !consumed {
			// discount stays honored on the stored amount
			voucherNote = append(voucherNote, "voucher uses exhausted at settlement")
		}
	}

	paidAt := e.now().UTC()
	update := StatusUpdate{
		BookingID: booking.ID,
		From:      booking.Status,
		To:        enums.BookingStatusPaid,
		PaidAt:    &paidAt,
	}
	if obs.PaymentType != "" {
		update.PaymentType = &obs.PaymentType
	}
	ok, err := repo.TransitionStatus(ctx, update)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transition booking to paid")
	}
	if !ok {
		// rolls back the counter claims with the transaction
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "booking changed concurrently")
	}

	outcome.Result = ResultApplied
	outcome.Status = enums.BookingStatusPaid
	outcome.InventoryChanged = true
	return outcome, appendLog(false, voucherNote...)
}

// applyPaidOverride repairs a terminal booking to PAID on explicit operator
// request. Counters advance here because a non-PAID terminal state never
// claimed them; a PAID booking never reaches this path.
func (e *Engine) applyPaidOverride(ctx context.Context, repo Repository, led Ledger, booking *models.Booking, outcome *Outcome, appendLog func(bool, ...string) error) (*Outcome, error) {
	reserved, err := led.ReserveBooth(ctx, booking.EventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reserve booth")
	}
	if !reserved {
		outcome.Result = ResultConflict
		outcome.Note = "paid override refused: booth quota exhausted"
		return outcome, appendLog(true, outcome.Note)
	}

	var voucherNote []string
	if booking.VoucherID != nil {
		consumed, err := led.ConsumeVoucher(ctx, *booking.VoucherID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "consume voucher")
		}
		outcome.VoucherChanged = consumed
		if !consumed {
			voucherNote = append(voucherNote, "voucher uses exhausted at override")
		}
	}

	paidAt := e.now().UTC()
	ok, err := repo.TransitionStatus(ctx, StatusUpdate{
		BookingID: booking.ID,
		From:      booking.Status,
		To:        enums.BookingStatusPaid,
		PaidAt:    &paidAt,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "override booking to paid")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "booking changed concurrently")
	}

	outcome.Result = ResultApplied
	outcome.Status = enums.BookingStatusPaid
	outcome.InventoryChanged = true
	outcome.Note = "paid override applied"
	return outcome, appendLog(false, append([]string{"paid override applied"}, voucherNote...)...)
}

// checkAmount compares the observed gross amount with the amount fixed at
// booking creation. Mismatches are reported, never corrected.
func (e *Engine) checkAmount(booking *models.Booking, obs Observation) (bool, []string) {
	if strings.TrimSpace(obs.GrossAmount) == "" {
		return true, nil
	}
	gross, err := decimal.NewFromString(obs.GrossAmount)
	if err != nil {
		return false, []string{fmt.Sprintf("unparseable gross amount %q", obs.GrossAmount)}
	}
	if gross.Equal(booking.Amount) {
		return true, nil
	}
	return false, []string{fmt.Sprintf(
		"amount mismatch: observed %s, booked %s",
		gross.StringFixed(2), booking.Amount.StringFixed(2),
	)}
}

func grossOrStored(booking *models.Booking, obs Observation) decimal.Decimal {
	if gross, err := decimal.NewFromString(strings.TrimSpace(obs.GrossAmount)); err == nil {
		return gross
	}
	return booking.Amount
}
