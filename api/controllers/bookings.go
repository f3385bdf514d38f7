package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/edulink-id/studyfair-backend/api/responses"
	"github.com/edulink-id/studyfair-backend/api/validators"
	"github.com/edulink-id/studyfair-backend/internal/bookings"
	"github.com/edulink-id/studyfair-backend/internal/payments"
	"github.com/edulink-id/studyfair-backend/pkg/db/models"
	"github.com/edulink-id/studyfair-backend/pkg/enums"
	pkgerrors "github.com/edulink-id/studyfair-backend/pkg/errors"
	"github.com/edulink-id/studyfair-backend/pkg/logger"
	"github.com/edulink-id/studyfair-backend/pkg/pagination"
)

type bookingService interface {
	CreateBooking(ctx context.Context, input bookings.CreateBookingInput) (*bookings.CreateBookingResult, error)
	CancelBooking(ctx context.Context, bookingID uuid.UUID) (*payments.Outcome, error)
}

type paymentLogLister interface {
	FindBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListLogsByBooking(ctx context.Context, bookingID uuid.UUID, params pagination.Params) ([]models.PaymentLog, error)
}

// CreateBooking opens a PENDING booking and hands the caller a pay token.
func CreateBooking(svc bookingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}

		var input bookings.CreateBookingInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateBooking(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type outcomeView struct {
	BookingID uuid.UUID           `json:"booking_id"`
	OrderID   string              `json:"order_id"`
	Result    payments.Result     `json:"result"`
	Previous  enums.BookingStatus `json:"previous_status"`
	Status    enums.BookingStatus `json:"status"`
	Note      string              `json:"note,omitempty"`
}

func newOutcomeView(outcome *payments.Outcome) outcomeView {
	return outcomeView{
		BookingID: outcome.BookingID,
		OrderID:   outcome.OrderID,
		Result:    outcome.Result,
		Previous:  outcome.Previous,
		Status:    outcome.Status,
		Note:      outcome.Note,
	}
}

// CancelBooking lets an operator cancel a pending booking. Settled bookings
// refuse with STATE_CONFLICT.
func CancelBooking(svc bookingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}

		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := svc.CancelBooking(r.Context(), bookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOutcomeView(outcome))
	}
}

type paymentLogView struct {
	ID                uuid.UUID `json:"id"`
	OrderID           string    `json:"order_id"`
	Source            string    `json:"source"`
	TransactionStatus string    `json:"transaction_status"`
	MappedStatus      string    `json:"mapped_status"`
	GrossAmount       string    `json:"gross_amount"`
	PaymentType       string    `json:"payment_type,omitempty"`
	FraudStatus       string    `json:"fraud_status,omitempty"`
	AmountMatch       bool      `json:"amount_match"`
	Conflict          bool      `json:"conflict"`
	Note              string    `json:"note,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type paymentLogPage struct {
	Items      []paymentLogView `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// AdminBookingPaymentLogs returns the append-only status history for a booking.
func AdminBookingPaymentLogs(repo paymentLogLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments repository unavailable"))
			return
		}

		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if _, err := repo.FindBookingByID(r.Context(), bookingID); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "booking not found"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))

		logs, err := repo.ListLogsByBooking(r.Context(), bookingID, pagination.Params{Limit: limit, Cursor: cursor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment logs"))
			return
		}

		page := paymentLogPage{Items: make([]paymentLogView, 0, len(logs))}
		if len(logs) > limit {
			last := logs[limit-1]
			page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			logs = logs[:limit]
		}
		for _, entry := range logs {
			page.Items = append(page.Items, paymentLogView{
				ID:                entry.ID,
				OrderID:           entry.OrderID,
				Source:            string(entry.Source),
				TransactionStatus: entry.TransactionStatus,
				MappedStatus:      string(entry.MappedStatus),
				GrossAmount:       entry.GrossAmount.StringFixed(2),
				PaymentType:       entry.PaymentType,
				FraudStatus:       entry.FraudStatus,
				AmountMatch:       entry.AmountMatch,
				Conflict:          entry.Conflict,
				Note:              entry.Note,
				CreatedAt:         entry.CreatedAt,
			})
		}

		responses.WriteSuccess(w, page)
	}
}

func parseBookingID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "bookingId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id must be a uuid").WithDetails(map[string]any{"field": "bookingId"})
	}
	return id, nil
}
