package payments

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/edulink-id/studyfair-backend/pkg/db/models"
	"github.com/edulink-id/studyfair-backend/pkg/enums"
	pkgerrors "github.com/edulink-id/studyfair-backend/pkg/errors"
	"github.com/edulink-id/studyfair-backend/pkg/logger"
)

func setupPaymentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	createPaymentsSchema(t, db)
	return db
}

func createPaymentsSchema(t *testing.T, db *gorm.DB) {
	t.Helper()

	events := `
CREATE TABLE IF NOT EXISTS events (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  slug TEXT NOT NULL UNIQUE,
  city TEXT,
  venue TEXT,
  published INTEGER NOT NULL DEFAULT 0,
  booth_price TEXT NOT NULL,
  booth_quota INTEGER NOT NULL,
  booths_sold INTEGER NOT NULL DEFAULT 0,
  starts_at DATETIME NOT NULL,
  ends_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`
	vouchers := `
CREATE TABLE IF NOT EXISTS vouchers (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  discount_percent INTEGER NOT NULL,
  max_uses INTEGER NOT NULL,
  times_used INTEGER NOT NULL DEFAULT 0,
  active INTEGER NOT NULL DEFAULT 1,
  expires_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	bookings := `
CREATE TABLE IF NOT EXISTS bookings (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  order_id TEXT NOT NULL UNIQUE,
  amount TEXT NOT NULL,
  voucher_id TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  rep_name TEXT NOT NULL,
  rep_email TEXT NOT NULL,
  rep_phone TEXT,
  campus_name TEXT NOT NULL,
  snap_token TEXT,
  token_amount TEXT,
  token_issued_at DATETIME,
  payment_type TEXT,
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	paymentLogs := `
CREATE TABLE IF NOT EXISTS payment_logs (
  id TEXT PRIMARY KEY,
  booking_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  source TEXT NOT NULL,
  transaction_status TEXT NOT NULL,
  mapped_status TEXT NOT NULL,
  gross_amount TEXT NOT NULL,
  payment_type TEXT,
  fraud_status TEXT,
  amount_match INTEGER NOT NULL DEFAULT 1,
  conflict INTEGER NOT NULL DEFAULT 0,
  note TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(events).Error)
	require.NoError(t, db.Exec(vouchers).Error)
	require.NoError(t, db.Exec(bookings).Error)
	require.NoError(t, db.Exec(paymentLogs).Error)
}

// setupConcurrentPaymentsTestDB backs the schema with a file so two
// goroutines can run real write transactions against it. Immediate
// transactions plus a busy timeout make the second writer queue behind the
// first instead of failing on a lock upgrade.
func setupConcurrentPaymentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000", filepath.Join(t.TempDir(), "payments.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	createPaymentsSchema(t, db)
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestEvent(t *testing.T, db *gorm.DB, quota, sold int) *models.Event {
	t.Helper()
	event := &models.Event{
		ID:         uuid.New(),
		Title:      "Jakarta Education Expo",
		Slug:       fmt.Sprintf("jakarta-expo-%s", uuid.NewString()),
		Published:  true,
		BoothPrice: decimal.NewFromInt(1500000),
		BoothQuota: quota,
		BoothsSold: sold,
		StartsAt:   time.Now().Add(30 * 24 * time.Hour),
		EndsAt:     time.Now().Add(31 * 24 * time.Hour),
	}
	require.NoError(t, db.Create(event).Error)
	return event
}

func newTestBooking(t *testing.T, db *gorm.DB, event *models.Event, status enums.BookingStatus) *models.Booking {
	t.Helper()
	booking := &models.Booking{
		ID:         uuid.New(),
		EventID:    event.ID,
		OrderID:    fmt.Sprintf("SF-%s", uuid.NewString()),
		Amount:     decimal.NewFromInt(1500000),
		Status:     status,
		RepName:    "Dewi Lestari",
		RepEmail:   "dewi@example.edu",
		CampusName: "Univ Test",
	}
	require.NoError(t, db.Create(booking).Error)
	return booking
}

func newTestVoucher(t *testing.T, db *gorm.DB, maxUses, used int) *models.Voucher {
	t.Helper()
	voucher := &models.Voucher{
		ID:              uuid.New(),
		Code:            fmt.Sprintf("EXPO-%s", uuid.NewString()[:8]),
		DiscountPercent: 10,
		MaxUses:         maxUses,
		TimesUsed:       used,
		Active:          true,
	}
	require.NoError(t, db.Create(voucher).Error)
	return voucher
}

func newTestEngine(t *testing.T, db *gorm.DB) *Engine {
	t.Helper()
	engine, err := NewEngine(EngineParams{
		TxRunner: gormTxRunner{db: db},
		Repo:     NewRepository(db),
		Ledger:   NewLedger(db),
		Logger:   logger.New(logger.Options{ServiceName: "payments-test"}),
		Now:      func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return engine
}

func settlementObservation(booking *models.Booking) Observation {
	return Observation{
		OrderID:           booking.OrderID,
		TransactionStatus: "settlement",
		StatusCode:        "200",
		GrossAmount:       booking.Amount.StringFixed(2),
		PaymentType:       "bank_transfer",
		Source:            enums.PaymentSourceWebhook,
	}
}

func reloadBooking(t *testing.T, db *gorm.DB, id uuid.UUID) *models.Booking {
	t.Helper()
	var booking models.Booking
	require.NoError(t, db.Where("id = ?", id).First(&booking).Error)
	return &booking
}

func reloadEvent(t *testing.T, db *gorm.DB, id uuid.UUID) *models.Event {
	t.Helper()
	var event models.Event
	require.NoError(t, db.Where("id = ?", id).First(&event).Error)
	return &event
}

func countLogs(t *testing.T, db *gorm.DB, bookingID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.PaymentLog{}).Where("booking_id = ?", bookingID).Count(&count).Error)
	return count
}

func TestApplySettlementMarksPaid(t *testing.T) {
	db := setupPaymentsTestDB(t)
	event := newTestEvent(t, db, 5, 0)
	booking := newTestBooking(t, db, event, enums.BookingStatusPending)
	engine := newTestEngine(t, db)

	outcome, err := engine.ApplyObservedStatus(context.Background(), settlementObservation(booking))
	require.NoError(t, err)

	assert.Equal(t, ResultApplied, outcome.Result)
	assert.Equal(t, enums.BookingStatusPaid, outcome.Status)
	assert.True(t, outcome.AmountMatch)
	assert.True(t, outcome.InventoryChanged)

	stored := reloadBooking(t, db, booking.ID)
	assert.Equal(t, enums.BookingStatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
	require.NotNil(t, stored.PaymentType)
	assert.Equal(t, "bank_transfer", *stored.PaymentType)
	assert.Equal(t, 1, reloadEvent(t, db, event.ID).BoothsSold)
	assert.EqualValues(t, 1, countLogs(t, db, booking.ID))
}

func TestDuplicateSettlementAppliesOnce(t *testing.T) {
	db := setupPaymentsTestDB(t)
	event := newTestEvent(t, db, 5, 0)
	booking := newTestBooking(t, db, event, enums.BookingStatusPending)
	engine := newTestEngine(t, db)

	first, err := engine.ApplyObservedStatus(context.Background(), settlementObservation(booking))
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, first.Result)

	second, err := engine.ApplyObservedStatus(context.Background(), settlementObservation(booking))
	require.NoError(t, err)
	assert.Equal(t, ResultNoOp, second.Result)
	assert.False(t, second.InventoryChanged)

	assert.Equal(t, 1, reloadEvent(t, db, event.ID).BoothsSold)
	assert.EqualValues(t, 2, countLogs(t, db, booking.ID))
}

func TestConcurrentSettlementAppliesOnce(t *testing.T) {
	db := setupConcurrentPaymentsTestDB(t)
	event := newTestEvent(t, db, 5, 0)
	booking := newTestBooking(t, db, event, enums.BookingStatusPending)
	engine := newTestEngine(t, db)

	webhook := settlementObservation(booking)
	manual := settlementObservation(booking)
	manual.Source = enums.PaymentSourceManual

	outcomes := make([]*Outcome, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, obs := range []Observation{webhook, manual} {
		wg.Add(1)
		go func(i int, obs Observation) {
			defer wg.Done()
			outcomes[i], errs[i] = engine.ApplyObservedStatus(context.Background(), obs)
		}(i, obs)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	applied := 0
	for _, outcome := range outcomes {
		switch outcome.Result {
		case ResultApplied:
			applied++
			assert.True(t, outcome.InventoryChanged)
		case ResultNoOp:
			assert.False(t, outcome.InventoryChanged)
		default:
			t.Fatalf("unexpected result %s", outcome.Result)
		}
	}
	assert.Equal(t, 1, applied, "exactly one of the racing observations settles")

	assert.Equal(t, enums.BookingStatusPaid, reloadBooking(t, db, booking.ID).Status)
	assert.Equal(t, 1, reloadEvent(t, db, event.ID).BoothsSold)
	assert.EqualValues(t, 2, countLogs(t, db, booking.ID))
}

func TestTerminalMismatchLoggedNotApplied(t *testing.T) {
	db := setupPaymentsTestDB(t)
	event := newTestEvent(t, db, 5, 0)
	booking := newTestBooking(t, db, event, enums.BookingStatusCancelled)
	engine := newTestEngine(t, db)

	outcome, err := engine.ApplyObservedStatus(context.Background(), settlementObservation(booking))
	require.NoError(t, err)

	assert.Equal(t, ResultConflict, outcome.Result)
	assert.Equal(t, enums.BookingStatusCancelled, reloadBooking(t, db, booking.ID).Status)
	assert.Equal(t, 0, reloadEvent(t, db, event.ID).BoothsSold)

	var entry models.PaymentLog
	require.NoError(t, db.Where("booking_id = ?", booking.ID).First(&entry).Error)
	assert.True(t, entry.Conflict)
}

func TestAmountMismatchReportedNotBlocking(t *testing.T) {
	db := setupPaymentsTestDB(t)
	event := newTestEvent(t, db, 5, 0)
	booking := newTestBooking(t, db, event, enums.BookingStatusPending)
	engine := newTestEngine(t, db)

	obs := settlementObservation(booking)
	obs.GrossAmount = "42.00"

	outcome, err := engine.ApplyObservedStatus(context.Background(), obs)
	require.NoError(t, err)

	assert.Equal(t, ResultApplied, outcome.Result)
	assert.False(t, outcome.AmountMatch)
	assert.Equal(t, enums.BookingStatusPaid, reloadBooking(t, db, booking.ID).Status)

	var entry models.PaymentLog
	require.NoError(t, db.Where("booking_id = ?", booking.ID).First(&entry).Error)
	assert.False(t, entry.AmountMatch)
	assert.Contains(t, entry.Note, "amount mismatch")
}

func TestQuotaNeverExceeded(t *testing.T) {
	db := setupPaymentsTestDB(t)
	event := newTestEvent(t, db, 1, 0)
	first := newTestBooking(t, db, event, enums.BookingStatusPending)
	second := newTestBooking(t, db, event, enums.BookingStatusPending)
	engine := newTestEngine(t, db)

	outcome, err := engine.ApplyObservedStatus(context.Background(), settlementObservation(first))
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, outcome.Result)

	outcome, err = engine.ApplyObservedStatus(context.Background(), settlementObservation(second))
	require.NoError(t, err)
	assert.Equal(t, ResultConflict, outcome.Result)
	assert.Equal(t, enums.BookingStatusReview, outcome.Status)

	assert.Equal(t, 1, reloadEvent(t, db, event.ID).BoothsSold)
	assert.Equal(t, enums.BookingStatusReview, reloadBooking(t, db, second.ID).Status)
}

func TestPaidOverrideRepairsTerminalBooking(t *testing.T) {
	db := setupPaymentsTestDB(t)
	event := newTestEvent(t, db, 5, 0)
	booking := newTestBooking(t, db, event, enums.BookingStatusExpired)
	engine := newTestEngine(t, db)

	obs := settlementObservation(booking)
	obs.Source = enums.PaymentSourceManual
	obs.AllowPaidOverride = true

	outcome, err := engine.ApplyObservedStatus(context.Background(), obs)
	require.NoError(t, err)

	assert.Equal(t, ResultApplied, outcome.Result)
	assert.Equal(t, enums.BookingStatusPaid, reloadBooking(t, db, booking.ID).Status)
	assert.Equal(t, 1, reloadEvent(t, db, event.ID).BoothsSold)
}

func TestPaidOverrideIgnoredForWebhookSource(t *testing.T) {
	db := setupPaymentsTestDB(t)
	event := newTestEvent(t, db, 5, 0)
	booking := newTestBooking(t, db, event, enums.BookingStatusExpired)
	engine := newTestEngine(t, db)

	obs := settlementObservation(booking)
	obs.AllowPaidOverride = true // webhook source must not be able to repair

	outcome, err := engine.ApplyObservedStatus(context.Background(), obs)
	require.NoError(t, err)

	assert.Equal(t, ResultConflict, outcome.Result)
	assert.Equal(t, enums.BookingStatusExpired, reloadBooking(t, db, booking.ID).Status)
	assert.Equal(t, 0, reloadEvent(t, db, event.ID).BoothsSold)
}

func TestReviewResolvesToPaid(t *testing.T) {
	db := setupPaymentsTestDB(t)
	event := newTestEvent(t, db, 5, 0)
	booking := newTestBooking(t, db, event, enums.BookingStatusReview)
	engine := newTestEngine(t, db)

	obs := settlementObservation(booking)
	obs.TransactionStatus = "capture"
	obs.FraudStatus = "accept"
	obs.Source = enums.PaymentSourceManual

	outcome, err := engine.ApplyObservedStatus(context.Background(), obs)
	require.NoError(t, err)

	assert.Equal(t, ResultApplied, outcome.Result)
	assert.Equal(t, enums.BookingStatusPaid, reloadBooking(t, db, booking.ID).Status)
	assert.Equal(t, 1, reloadEvent(t, db, event.ID).BoothsSold)
}

func TestReviewRejectsExpireObservation(t *testing.T) {
	db := setupPaymentsTestDB(t)
	event := newTestEvent(t, db, 5, 0)
	booking := newTestBooking(t, db, event, enums.BookingStatusReview)
	engine := newTestEngine(t, db)

	obs := settlementObservation(booking)
	obs.TransactionStatus = "expire"

	outcome, err := engine.ApplyObservedStatus(context.Background(), obs)
	require.NoError(t, err)

	assert.Equal(t, ResultConflict, outcome.Result)
	assert.Equal(t, enums.BookingStatusReview, reloadBooking(t, db, booking.ID).Status)
}

func TestVoucherConsumedOnSettlement(t *testing.T) {
	db := setupPaymentsTestDB(t)
	event := newTestEvent(t, db, 5, 0)
	voucher := newTestVoucher(t, db, 3, 0)
	booking := newTestBooking(t, db, event, enums.BookingStatusPending)
	require.NoError(t, db.Model(&models.Booking{}).Where("id = ?", booking.ID).Update("voucher_id", voucher.ID).Error)
	engine := newTestEngine(t, db)

	outcome, err := engine.ApplyObservedStatus(context.Background(), settlementObservation(booking))
	require.NoError(t, err)

	assert.Equal(t, ResultApplied, outcome.Result)
	assert.True(t, outcome.VoucherChanged)

	var stored models.Voucher
	require.NoError(t, db.Where("id = ?", voucher.ID).First(&stored).Error)
	assert.Equal(t, 1, stored.TimesUsed)
}

func TestVoucherExhaustionDoesNotBlockSettlement(t *testing.T) {
	db := setupPaymentsTestDB(t)
	event := newTestEvent(t, db, 5, 0)
	voucher := newTestVoucher(t, db, 1, 1)
	booking := newTestBooking(t, db, event, enums.BookingStatusPending)
	require.NoError(t, db.Model(&models.Booking{}).Where("id = ?", booking.ID).Update("voucher_id", voucher.ID).Error)
	engine := newTestEngine(t, db)

	outcome, err := engine.ApplyObservedStatus(context.Background(), settlementObservation(booking))
	require.NoError(t, err)

	assert.Equal(t, ResultApplied, outcome.Result)
	assert.False(t, outcome.VoucherChanged)
	assert.Equal(t, enums.BookingStatusPaid, reloadBooking(t, db, booking.ID).Status)

	var stored models.Voucher
	require.NoError(t, db.Where("id = ?", voucher.ID).First(&stored).Error)
	assert.Equal(t, 1, stored.TimesUsed)
}

func TestUnknownOrderReturnsNotFound(t *testing.T) {
	db := setupPaymentsTestDB(t)
	engine := newTestEngine(t, db)

	_, err := engine.ApplyObservedStatus(context.Background(), Observation{
		OrderID:           "SF-missing",
		TransactionStatus: "settlement",
		Source:            enums.PaymentSourceWebhook,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestPendingExpiresViaSystemObservation(t *testing.T) {
	db := setupPaymentsTestDB(t)
	event := newTestEvent(t, db, 5, 0)
	booking := newTestBooking(t, db, event, enums.BookingStatusPending)
	engine := newTestEngine(t, db)

	outcome, err := engine.ApplyObservedStatus(context.Background(), Observation{
		OrderID:           booking.OrderID,
		TransactionStatus: "expire",
		Source:            enums.PaymentSourceSystem,
		Note:              "pending past ttl",
	})
	require.NoError(t, err)

	assert.Equal(t, ResultApplied, outcome.Result)
	assert.Equal(t, enums.BookingStatusExpired, reloadBooking(t, db, booking.ID).Status)
	assert.Equal(t, 0, reloadEvent(t, db, event.ID).BoothsSold)
}
