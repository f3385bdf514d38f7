package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/edulink-id/studyfair-backend/pkg/enums"
	pkgerrors "github.com/edulink-id/studyfair-backend/pkg/errors"
	"github.com/edulink-id/studyfair-backend/pkg/logger"
)

// SyncService pulls the gateway's view of an order and feeds it through the
// reconciliation engine as a poll observation. It is the repair path for
// missed or out-of-order webhooks.
type SyncService struct {
	engine  *Engine
	gateway Gateway
	logg    *logger.Logger
}

// SyncServiceParams collects the sync service dependencies.
type SyncServiceParams struct {
	Engine  *Engine
	Gateway Gateway
	Logger  *logger.Logger
}

// NewSyncService wires a sync service with the provided dependencies.
func NewSyncService(params SyncServiceParams) (*SyncService, error) {
	if params.Engine == nil {
		return nil, fmt.Errorf("reconciliation engine required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &SyncService{
		engine:  params.Engine,
		gateway: params.Gateway,
		logg:    params.Logger,
	}, nil
}

// SyncFromGateway fetches the live transaction status for orderID and applies
// it. An order the gateway has never seen yields NOT_FOUND; nothing local is
// touched in that case.
func (s *SyncService) SyncFromGateway(ctx context.Context, orderID, note string) (*Outcome, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	status, err := s.gateway.GetTransactionStatus(ctx, orderID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "gateway has no transaction for order")
		}
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, orderID)
	s.logg.Info(ctx, fmt.Sprintf("polled gateway status %s for reconcile", status.TransactionStatus))

	return s.engine.ApplyObservedStatus(ctx, Observation{
		OrderID:           orderID,
		TransactionStatus: status.TransactionStatus,
		FraudStatus:       status.FraudStatus,
		StatusCode:        status.StatusCode,
		GrossAmount:       status.GrossAmount,
		PaymentType:       status.PaymentType,
		Source:            enums.PaymentSourcePoll,
		Note:              note,
	})
}
