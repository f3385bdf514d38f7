package payments

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/edulink-id/studyfair-backend/pkg/db/models"
	"github.com/edulink-id/studyfair-backend/pkg/enums"
	pkgerrors "github.com/edulink-id/studyfair-backend/pkg/errors"
	"github.com/edulink-id/studyfair-backend/pkg/logger"
	"github.com/edulink-id/studyfair-backend/pkg/midtrans"
)

type stubGateway struct {
	snapCalls   int
	snapResult  *midtrans.SnapResult
	snapErr     error
	status      *midtrans.TransactionStatus
	statusErr   error
	statusCalls int
}

func (s *stubGateway) CreateSnapTransaction(ctx context.Context, params midtrans.SnapParams) (*midtrans.SnapResult, error) {
	s.snapCalls++
	if s.snapErr != nil {
		return nil, s.snapErr
	}
	if s.snapResult != nil {
		return s.snapResult, nil
	}
	return &midtrans.SnapResult{Token: "tok-" + params.OrderID, RedirectURL: "https://pay.example/tok-" + params.OrderID}, nil
}

func (s *stubGateway) GetTransactionStatus(ctx context.Context, orderID string) (*midtrans.TransactionStatus, error) {
	s.statusCalls++
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return s.status, nil
}

func (s *stubGateway) RedirectURL(token string) string {
	return "https://pay.example/" + token
}

func newTestChargeService(t *testing.T, db *gorm.DB, gateway Gateway) *ChargeService {
	t.Helper()
	svc, err := NewChargeService(ChargeServiceParams{
		Repo:    NewRepository(db),
		Gateway: gateway,
		Logger:  logger.New(logger.Options{ServiceName: "payments-test"}),
		Now:     func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return svc
}

func TestCreateChargeIssuesToken(t *testing.T) {
	db := setupPaymentsTestDB(t)
	event := newTestEvent(t, db, 5, 0)
	booking := newTestBooking(t, db, event, enums.BookingStatusPending)
	gateway := &stubGateway{}
	svc := newTestChargeService(t, db, gateway)

	result, err := svc.CreateCharge(context.Background(), ChargeRequest{OrderID: booking.OrderID})
	require.NoError(t, err)

	assert.Equal(t, booking.OrderID, result.OrderID)
	assert.Equal(t, "tok-"+booking.OrderID, result.Token)
	assert.False(t, result.Reused)
	assert.Equal(t, 1, gateway.snapCalls)

	stored := reloadBooking(t, db, booking.ID)
	require.NotNil(t, stored.SnapToken)
	assert.Equal(t, result.Token, *stored.SnapToken)
	require.NotNil(t, stored.TokenAmount)
	assert.True(t, stored.TokenAmount.Equal(booking.Amount))
}

func TestCreateChargeReusesTokenForUnchangedAmount(t *testing.T) {
	db := setupPaymentsTestDB(t)
	event := newTestEvent(t, db, 5, 0)
	booking := newTestBooking(t, db, event, enums.BookingStatusPending)
	gateway := &stubGateway{}
	svc := newTestChargeService(t, db, gateway)

	first, err := svc.CreateCharge(context.Background(), ChargeRequest{OrderID: booking.OrderID})
	require.NoError(t, err)

	second, err := svc.CreateCharge(context.Background(), ChargeRequest{OrderID: booking.OrderID})
	require.NoError(t, err)

	assert.Equal(t, first.Token, second.Token)
	assert.True(t, second.Reused)
	assert.Equal(t, 1, gateway.snapCalls)
}

func TestCreateChargeRejectsSettledBooking(t *testing.T) {
	db := setupPaymentsTestDB(t)
	event := newTestEvent(t, db, 5, 1)
	booking := newTestBooking(t, db, event, enums.BookingStatusPaid)
	svc := newTestChargeService(t, db, &stubGateway{})

	_, err := svc.CreateCharge(context.Background(), ChargeRequest{OrderID: booking.OrderID})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestCreateChargeRejectsExhaustedQuota(t *testing.T) {
	db := setupPaymentsTestDB(t)
	event := newTestEvent(t, db, 2, 2)
	booking := newTestBooking(t, db, event, enums.BookingStatusPending)
	svc := newTestChargeService(t, db, &stubGateway{})

	_, err := svc.CreateCharge(context.Background(), ChargeRequest{OrderID: booking.OrderID})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestCreateChargeUnknownBooking(t *testing.T) {
	db := setupPaymentsTestDB(t)
	svc := newTestChargeService(t, db, &stubGateway{})

	_, err := svc.CreateCharge(context.Background(), ChargeRequest{OrderID: "SF-missing"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.CreateCharge(context.Background(), ChargeRequest{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCreateChargeReissuesAfterAmountChange(t *testing.T) {
	db := setupPaymentsTestDB(t)
	event := newTestEvent(t, db, 5, 0)
	booking := newTestBooking(t, db, event, enums.BookingStatusPending)
	gateway := &stubGateway{}
	svc := newTestChargeService(t, db, gateway)

	_, err := svc.CreateCharge(context.Background(), ChargeRequest{OrderID: booking.OrderID})
	require.NoError(t, err)

	// a stale token for another amount must not be reused
	newAmount := decimal.NewFromInt(2000000)
	require.NoError(t, db.Model(&models.Booking{}).Where("id = ?", booking.ID).Update("amount", newAmount).Error)

	result, err := svc.CreateCharge(context.Background(), ChargeRequest{OrderID: booking.OrderID})
	require.NoError(t, err)
	assert.False(t, result.Reused)
	assert.Equal(t, 2, gateway.snapCalls)
}
