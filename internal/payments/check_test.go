package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/edulink-id/studyfair-backend/pkg/enums"
	pkgerrors "github.com/edulink-id/studyfair-backend/pkg/errors"
	"github.com/edulink-id/studyfair-backend/pkg/logger"
	"github.com/edulink-id/studyfair-backend/pkg/midtrans"
)

func newTestCheckService(t *testing.T, db *gorm.DB, gateway Gateway) *CheckService {
	t.Helper()
	svc, err := NewCheckService(CheckServiceParams{
		Repo:    NewRepository(db),
		Gateway: gateway,
		Logger:  logger.New(logger.Options{ServiceName: "payments-test"}),
		Now:     func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return svc
}

func TestCheckReportsAwaitingReconcile(t *testing.T) {
	db := setupPaymentsTestDB(t)
	event := newTestEvent(t, db, 5, 0)
	booking := newTestBooking(t, db, event, enums.BookingStatusPending)
	gateway := &stubGateway{status: &midtrans.TransactionStatus{
		OrderID:           booking.OrderID,
		TransactionStatus: "settlement",
		StatusCode:        "200",
		GrossAmount:       booking.Amount.StringFixed(2),
	}}
	svc := newTestCheckService(t, db, gateway)

	result, err := svc.Check(context.Background(), booking.OrderID)
	require.NoError(t, err)

	assert.Equal(t, enums.BookingStatusPending, result.StoredStatus)
	assert.Equal(t, enums.BookingStatusPaid, result.MappedStatus)
	assert.Equal(t, AdvisoryAwaitingReconcile, result.Advisory)

	// check never mutates
	assert.Equal(t, enums.BookingStatusPending, reloadBooking(t, db, booking.ID).Status)
	assert.Equal(t, 0, reloadEvent(t, db, event.ID).BoothsSold)
}

func TestCheckReportsNoneWhenInSync(t *testing.T) {
	db := setupPaymentsTestDB(t)
	event := newTestEvent(t, db, 5, 0)
	booking := newTestBooking(t, db, event, enums.BookingStatusPending)
	gateway := &stubGateway{status: &midtrans.TransactionStatus{
		OrderID:           booking.OrderID,
		TransactionStatus: "pending",
	}}
	svc := newTestCheckService(t, db, gateway)

	result, err := svc.Check(context.Background(), booking.OrderID)
	require.NoError(t, err)
	assert.Equal(t, AdvisoryNone, result.Advisory)
}

func TestCheckHandlesUnopenedTransaction(t *testing.T) {
	db := setupPaymentsTestDB(t)
	event := newTestEvent(t, db, 5, 0)
	booking := newTestBooking(t, db, event, enums.BookingStatusPending)
	gateway := &stubGateway{statusErr: pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found at gateway")}
	svc := newTestCheckService(t, db, gateway)

	result, err := svc.Check(context.Background(), booking.OrderID)
	require.NoError(t, err)
	assert.Equal(t, AdvisoryNone, result.Advisory)
	assert.Empty(t, result.TransactionStatus)
}

func TestCheckPropagatesGatewayOutage(t *testing.T) {
	db := setupPaymentsTestDB(t)
	event := newTestEvent(t, db, 5, 0)
	booking := newTestBooking(t, db, event, enums.BookingStatusPending)
	gateway := &stubGateway{statusErr: pkgerrors.New(pkgerrors.CodeDependency, "payment gateway unreachable")}
	svc := newTestCheckService(t, db, gateway)

	_, err := svc.Check(context.Background(), booking.OrderID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}
