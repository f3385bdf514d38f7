package controllers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edulink-id/studyfair-backend/api/middleware"
	"github.com/edulink-id/studyfair-backend/api/responses"
	"github.com/edulink-id/studyfair-backend/api/validators"
	"github.com/edulink-id/studyfair-backend/internal/payments"
	pkgAuth "github.com/edulink-id/studyfair-backend/pkg/auth"
	"github.com/edulink-id/studyfair-backend/pkg/config"
	"github.com/edulink-id/studyfair-backend/pkg/enums"
	pkgerrors "github.com/edulink-id/studyfair-backend/pkg/errors"
	"github.com/edulink-id/studyfair-backend/pkg/logger"
)

const (
	payTokenHeader  = "X-Pay-Token"
	opsSecretHeader = "X-Ops-Secret"
)

type chargeService interface {
	CreateCharge(ctx context.Context, req payments.ChargeRequest) (*payments.ChargeResult, error)
}

type checkService interface {
	Check(ctx context.Context, orderID string) (*payments.CheckResult, error)
}

type statusApplier interface {
	ApplyObservedStatus(ctx context.Context, obs payments.Observation) (*payments.Outcome, error)
}

type gatewaySyncer interface {
	SyncFromGateway(ctx context.Context, orderID, note string) (*payments.Outcome, error)
}

type chargeRequestBody struct {
	BookingID       *uuid.UUID `json:"booking_id" validate:"omitempty"`
	OrderID         string     `json:"order_id" validate:"omitempty,max=64"`
	EnabledPayments []string   `json:"enabled_payments" validate:"omitempty,max=16,dive,max=40"`
}

// ChargePayment opens (or re-serves) a Snap transaction for a booking. The
// public path authenticates with the pay token minted at booking creation;
// operators may instead address any booking by id or order id.
func ChargePayment(cfg *config.Config, svc chargeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "charge service unavailable"))
			return
		}

		var body chargeRequestBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		req := payments.ChargeRequest{EnabledPayments: body.EnabledPayments}

		if isAdmin(r.Context()) {
			req.BookingID = body.BookingID
			req.OrderID = strings.TrimSpace(body.OrderID)
			if req.BookingID == nil && req.OrderID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "booking_id or order_id is required"))
				return
			}
		} else {
			orderID, err := orderIDFromPayToken(cfg, r, strings.TrimSpace(body.OrderID))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			req.OrderID = orderID
		}

		result, err := svc.CreateCharge(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// CheckPayment returns the stored status alongside the live gateway view.
// Read-only; the advisory tells the caller whether a reconcile would act.
func CheckPayment(cfg *config.Config, svc checkService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "check service unavailable"))
			return
		}

		var orderID string
		if isAdmin(r.Context()) {
			orderID = strings.TrimSpace(r.URL.Query().Get("order_id"))
			if orderID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order_id is required"))
				return
			}
		} else {
			parsed, err := orderIDFromPayToken(cfg, r, strings.TrimSpace(r.URL.Query().Get("order_id")))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			orderID = parsed
		}

		result, err := svc.Check(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

type reconcileRequestBody struct {
	OrderID           string `json:"order_id" validate:"required,max=64"`
	TransactionStatus string `json:"transaction_status" validate:"omitempty,max=40"`
	FraudStatus       string `json:"fraud_status" validate:"omitempty,max=40"`
	StatusCode        string `json:"status_code" validate:"omitempty,max=8"`
	GrossAmount       string `json:"gross_amount" validate:"omitempty,max=24"`
	PaymentType       string `json:"payment_type" validate:"omitempty,max=40"`
	AllowPaidOverride bool   `json:"allow_paid_override"`
	Note              string `json:"note" validate:"omitempty,max=500"`
}

// ReconcilePayment re-derives a booking's status. Without an explicit
// transaction_status the gateway is polled and the result applied as a poll
// observation; with one, the body is applied as a manual observation, which
// is the only source that honors allow_paid_override.
func ReconcilePayment(cfg *config.Config, engine statusApplier, syncer gatewaySyncer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil || syncer == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile service unavailable"))
			return
		}

		if err := authorizeReconcile(cfg, r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body reconcileRequestBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var (
			outcome *payments.Outcome
			err     error
		)
		if body.TransactionStatus == "" {
			outcome, err = syncer.SyncFromGateway(r.Context(), body.OrderID, body.Note)
		} else {
			outcome, err = engine.ApplyObservedStatus(r.Context(), payments.Observation{
				OrderID:           strings.TrimSpace(body.OrderID),
				TransactionStatus: body.TransactionStatus,
				FraudStatus:       body.FraudStatus,
				StatusCode:        body.StatusCode,
				GrossAmount:       body.GrossAmount,
				PaymentType:       body.PaymentType,
				Source:            enums.PaymentSourceManual,
				AllowPaidOverride: body.AllowPaidOverride,
				Note:              body.Note,
			})
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOutcomeView(outcome))
	}
}

func isAdmin(ctx context.Context) bool {
	return middleware.RoleFromContext(ctx) == string(enums.ActorRoleAdmin)
}

// orderIDFromPayToken resolves the order a pay token authorizes. When the
// request names an order itself, the token must be bound to that exact
// order; otherwise the token's embedded order id is used.
func orderIDFromPayToken(cfg *config.Config, r *http.Request, requested string) (string, error) {
	token := strings.TrimSpace(r.Header.Get(payTokenHeader))
	if token == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing pay token")
	}
	if requested != "" {
		if err := pkgAuth.VerifyPayToken(cfg.Payments.PayTokenSecret, token, requested, time.Now()); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "pay token does not authorize this order")
		}
		return requested, nil
	}
	orderID, err := pkgAuth.ParsePayToken(cfg.Payments.PayTokenSecret, token, time.Now())
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid pay token")
	}
	return orderID, nil
}

func authorizeReconcile(cfg *config.Config, r *http.Request) error {
	if isAdmin(r.Context()) {
		return nil
	}
	if secret := strings.TrimSpace(r.Header.Get(opsSecretHeader)); secret != "" && cfg.Payments.OpsSecret != "" {
		if subtle.ConstantTimeCompare([]byte(secret), []byte(cfg.Payments.OpsSecret)) == 1 {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid ops secret")
	}
	if cfg.Payments.AllowInsecureReconcile && !cfg.App.IsProd() {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "reconcile requires operator credentials")
}
