package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"price-pulse/models"
)

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm open error: %v", err)
	}
	return NewGormStore(db), mock
}

func bookingRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "hotel_name", "location", "currency", "original_price", "current_price", "price_alert_active", "status"}).
		AddRow(1, 1, "Hotel Miramare", "Rimini", "EUR", "200.00", "200.00", true, models.BookingActive)
}

func TestGormStoreEvaluateCreatesAlertUnderRowLock(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "bookings" WHERE id = .* FOR UPDATE`).
		WillReturnRows(bookingRows())
	mock.ExpectQuery(`SELECT \* FROM "price_alerts" WHERE booking_id = .* AND status = `).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO "price_alerts"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectExec(`UPDATE "bookings" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	b := activeBooking(1, "200")
	res, err := NewEvaluator(store).Evaluate(context.Background(), &b, observation(1, 150, noon), defaultRule())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Alerted() || !res.Created || res.Alert.ID != 5 {
		t.Fatalf("unexpected result %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormStoreWithBookingLockNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "bookings" WHERE id = .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	called := false
	err := store.WithBookingLock(context.Background(), 99, func(tx StoreTx, b *models.Booking) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrNotFound) || called {
		t.Fatalf("expected ErrNotFound without calling fn, got %v (called=%v)", err, called)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormStoreWithBookingLockRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "bookings" WHERE id = .* FOR UPDATE`).
		WillReturnRows(bookingRows())
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := store.WithBookingLock(context.Background(), 1, func(tx StoreTx, b *models.Booking) error {
		if b.HotelName != "Hotel Miramare" || !b.CurrentPrice.Equal(dec("200")) {
			t.Errorf("unexpected booking %+v", b)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormStoreTransitionAlert(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "price_alerts" WHERE id = .* AND user_id = .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "booking_id", "status"}).AddRow(3, 1, 1, models.AlertNew))
	mock.ExpectExec(`UPDATE "price_alerts" SET "status"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	alert, err := store.TransitionAlert(context.Background(), 1, 3, models.AlertActioned)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert.Status != models.AlertActioned {
		t.Fatalf("status: got %s", alert.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormStoreTransitionAlertTerminal(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "price_alerts" WHERE id = .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "booking_id", "status"}).AddRow(3, 1, 1, models.AlertDismissed))
	mock.ExpectRollback()

	if _, err := store.TransitionAlert(context.Background(), 1, 3, models.AlertActioned); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormStoreDueAlerts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "price_alerts" WHERE .*status = .*dispatch_status = .*dispatch_after IS NULL OR dispatch_after <= `).
		WillReturnRows(sqlmock.NewRows([]string{"id", "booking_id", "status", "dispatch_status"}).
			AddRow(4, 1, models.AlertNew, models.DispatchPending))

	alerts, err := store.DueAlerts(context.Background(), time.Now(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts) != 1 || alerts[0].ID != 4 {
		t.Fatalf("unexpected alerts %+v", alerts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormStoreMarkAllRead(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE "price_alerts" SET "read_at"=.* WHERE user_id = .* AND read_at IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.MarkAllRead(context.Background(), 1, noon)
	if err != nil || n != 3 {
		t.Fatalf("got n=%d err=%v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormStoreMarkDispatchedSkipsRefreshedAlert(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE "price_alerts" SET .* WHERE .*id = .*dispatch_status = .*triggered_at = .*observed_price = `).
		WillReturnResult(sqlmock.NewResult(0, 0))

	alert := &models.PriceAlert{ID: 4, TriggeredAt: noon, ObservedPrice: dec("185")}
	marked, err := store.MarkDispatched(context.Background(), alert, noon)
	if err != nil || marked {
		t.Fatalf("expected no row marked, got marked=%v err=%v", marked, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
