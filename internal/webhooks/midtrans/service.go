package midtranswebhook

import (
	"context"
	"fmt"
	"strings"

	"github.com/edulink-id/studyfair-backend/internal/payments"
	"github.com/edulink-id/studyfair-backend/pkg/enums"
	pkgerrors "github.com/edulink-id/studyfair-backend/pkg/errors"
	"github.com/edulink-id/studyfair-backend/pkg/logger"
	"github.com/edulink-id/studyfair-backend/pkg/metrics"
)

// Notification is the gateway's webhook payload, the fields we act on.
type Notification struct {
	OrderID           string `json:"order_id" validate:"required"`
	StatusCode        string `json:"status_code" validate:"required"`
	GrossAmount       string `json:"gross_amount" validate:"required"`
	SignatureKey      string `json:"signature_key" validate:"required"`
	TransactionStatus string `json:"transaction_status" validate:"required"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	TransactionTime   string `json:"transaction_time"`
}

// SignatureVerifier checks the gateway's keyed hash on a notification.
type SignatureVerifier interface {
	VerifySignature(orderID, statusCode, grossAmount, signature string) bool
}

// Service validates webhook notifications and funnels them into the
// reconciliation engine.
type Service struct {
	engine   *payments.Engine
	verifier SignatureVerifier
	guard    *ReplayGuard
	logg     *logger.Logger
	metrics  *metrics.PaymentMetrics
}

// ServiceParams collects the webhook service dependencies. Guard is optional;
// without it every redelivery re-enters the engine, which stays correct.
type ServiceParams struct {
	Engine   *payments.Engine
	Verifier SignatureVerifier
	Guard    *ReplayGuard
	Logger   *logger.Logger
	Metrics  *metrics.PaymentMetrics
}

// NewService wires a webhook service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Engine == nil {
		return nil, fmt.Errorf("reconciliation engine required")
	}
	if params.Verifier == nil {
		return nil, fmt.Errorf("signature verifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		engine:   params.Engine,
		verifier: params.Verifier,
		guard:    params.Guard,
		logg:     params.Logger,
		metrics:  params.Metrics,
	}, nil
}

// HandleNotification verifies shape and signature, dampens exact replays,
// and applies the observed status. Signature failures are opaque to the
// caller and never touch the database.
func (s *Service) HandleNotification(ctx context.Context, notification Notification) (*payments.Outcome, error) {
	if err := validateShape(notification); err != nil {
		return nil, err
	}

	if !s.verifier.VerifySignature(
		notification.OrderID,
		notification.StatusCode,
		notification.GrossAmount,
		notification.SignatureKey,
	) {
		s.metrics.IncSignatureFailure()
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid signature")
	}

	ctx = s.logg.WithOrderID(ctx, notification.OrderID)

	notificationID := replayKey(notification)
	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, notificationID)
		if err != nil {
			// guard outage degrades to engine idempotency
			s.logg.Warn(ctx, "replay guard unavailable, applying without damper")
		} else if seen {
			s.metrics.IncWebhookReplay()
			s.logg.Info(ctx, "duplicate notification suppressed")
			return &payments.Outcome{
				Result:  payments.ResultNoOp,
				OrderID: notification.OrderID,
				Note:    "duplicate notification suppressed",
			}, nil
		}
	}

	outcome, err := s.engine.ApplyObservedStatus(ctx, payments.Observation{
		OrderID:           notification.OrderID,
		TransactionStatus: notification.TransactionStatus,
		FraudStatus:       notification.FraudStatus,
		StatusCode:        notification.StatusCode,
		GrossAmount:       notification.GrossAmount,
		PaymentType:       notification.PaymentType,
		Source:            enums.PaymentSourceWebhook,
	})
	if err != nil {
		if s.guard != nil {
			if delErr := s.guard.Delete(ctx, notificationID); delErr != nil {
				s.logg.Error(ctx, "release replay mark", delErr)
			}
		}
		return nil, err
	}
	return outcome, nil
}

func validateShape(notification Notification) error {
	missing := make([]string, 0, 5)
	for field, value := range map[string]string{
		"order_id":           notification.OrderID,
		"status_code":        notification.StatusCode,
		"gross_amount":       notification.GrossAmount,
		"signature_key":      notification.SignatureKey,
		"transaction_status": notification.TransactionStatus,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification is missing required fields").
			WithDetails(map[string]any{"missing": missing})
	}
	return nil
}

// replayKey covers every field the engine acts on. A redelivery that
// differs in any of them — a fraud upgrade sharing the status code, or a
// changed gross amount that must surface an amount mismatch — is a new
// observation, not a replay.
func replayKey(notification Notification) string {
	return strings.Join([]string{
		notification.OrderID,
		notification.TransactionStatus,
		notification.StatusCode,
		notification.FraudStatus,
		notification.GrossAmount,
	}, "|")
}
