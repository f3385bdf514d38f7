package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/edulink-id/studyfair-backend/pkg/enums"
	pkgerrors "github.com/edulink-id/studyfair-backend/pkg/errors"
	"github.com/edulink-id/studyfair-backend/pkg/logger"
	"github.com/edulink-id/studyfair-backend/pkg/metrics"
)

const (
	// AdvisoryAwaitingReconcile flags that the gateway view disagrees with
	// the stored status and a reconcile would change something.
	AdvisoryAwaitingReconcile = "awaiting_reconcile"
	// AdvisoryNone flags that the stored status reflects the gateway view.
	AdvisoryNone = "none"
)

// CheckResult pairs the stored snapshot with the live gateway view. The
// check path never mutates anything; a reconcile acts on the advisory.
type CheckResult struct {
	OrderID           string              `json:"order_id"`
	StoredStatus      enums.BookingStatus `json:"stored_status"`
	TransactionStatus string              `json:"transaction_status,omitempty"`
	FraudStatus       string              `json:"fraud_status,omitempty"`
	PaymentType       string              `json:"payment_type,omitempty"`
	MappedStatus      enums.BookingStatus `json:"mapped_status,omitempty"`
	Advisory          string              `json:"advisory"`
}

// CheckService reads live gateway status without touching the booking.
type CheckService struct {
	repo    Repository
	gateway Gateway
	logg    *logger.Logger
	metrics *metrics.PaymentMetrics
	now     func() time.Time
}

// CheckServiceParams collects the check service dependencies.
type CheckServiceParams struct {
	Repo    Repository
	Gateway Gateway
	Logger  *logger.Logger
	Metrics *metrics.PaymentMetrics
	Now     func() time.Time
}

// NewCheckService wires a check service with the provided dependencies.
func NewCheckService(params CheckServiceParams) (*CheckService, error) {
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
	return &CheckService{
		repo:    params.Repo,
		gateway: params.Gateway,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

// Check fetches the gateway's view of the order and reports whether it
// diverges from the stored status. A transaction the gateway has never seen
// (charge not opened yet) is not an error.
func (s *CheckService) Check(ctx context.Context, orderID string) (*CheckResult, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	booking, err := s.repo.FindBookingByOrderID(ctx, orderID)
	if err != nil {
		return nil, notFoundOrInternal(err)
	}

	ctx = s.logg.WithOrderID(ctx, booking.OrderID)

	started := s.now()
	status, err := s.gateway.GetTransactionStatus(ctx, booking.OrderID)
	s.metrics.ObserveGatewayLatency("status_fetch", s.now().Sub(started))
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return &CheckResult{
				OrderID:      booking.OrderID,
				StoredStatus: booking.Status,
				Advisory:     AdvisoryNone,
			}, nil
		}
		return nil, err
	}

	mapped := MapStatus(status.TransactionStatus, status.FraudStatus)
	advisory := AdvisoryNone
	if mapped != booking.Status && !booking.Status.IsTerminal() {
		advisory = AdvisoryAwaitingReconcile
	}

	return &CheckResult{
		OrderID:           booking.OrderID,
		StoredStatus:      booking.Status,
		TransactionStatus: status.TransactionStatus,
		FraudStatus:       status.FraudStatus,
		PaymentType:       status.PaymentType,
		MappedStatus:      mapped,
		Advisory:          advisory,
	}, nil
}
