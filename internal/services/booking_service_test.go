package services

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airvoyage/reservation-backend/internal/database"
	"github.com/airvoyage/reservation-backend/internal/gateway"
	"github.com/airvoyage/reservation-backend/internal/models"
)

func newServiceDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func testServiceLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// serviceDeps wires real repositories over one mocked connection, the way
// main.go wires them over the real pool.
type serviceDeps struct {
	mock      sqlmock.Sqlmock
	tx        *database.TxManager
	outbox    *database.OutboxRepository
	bookings  *database.BookingRepository
	tickets   *database.TicketRepository
	queries   *database.QueryRepository
	inventory *InventoryService
}

func newServiceDeps(t *testing.T) serviceDeps {
	t.Helper()
	db, mock := newServiceDB(t)
	logger := testServiceLogger()

	outbox := database.NewOutboxRepository(db, logger)
	bookings := database.NewBookingRepository(db, outbox, logger)
	tickets := database.NewTicketRepository(db, logger)
	queries := database.NewQueryRepository(db, bookings, tickets, logger)
	tx := database.NewTxManager(db, logger)
	inventoryRepo := database.NewInventoryRepository(db, outbox, logger)
	inventory := NewInventoryService(inventoryRepo, queries, tx, nil, 15*time.Minute, logger)

	return serviceDeps{
		mock:      mock,
		tx:        tx,
		outbox:    outbox,
		bookings:  bookings,
		tickets:   tickets,
		queries:   queries,
		inventory: inventory,
	}
}

func newTestBookingService(deps serviceDeps, payments gateway.PaymentGateway) *BookingService {
	return NewBookingService(
		deps.bookings, deps.tickets, deps.queries, deps.inventory,
		payments, deps.tx, 15*time.Minute, "https://booking.example.com/success", testServiceLogger(),
	)
}

func serviceInventoryColumns() []string {
	return []string{
		"flight_id",
		"economy_available", "economy_total", "economy_price_amount", "economy_price_currency",
		"business_available", "business_total", "business_price_amount", "business_price_currency",
		"first_available", "first_total", "first_price_amount", "first_price_currency",
		"version", "updated_at",
	}
}

func economyInventoryRows(available int, version int64) *sqlmock.Rows {
	return sqlmock.NewRows(serviceInventoryColumns()).
		AddRow("AV100",
			available, 10, int64(25000), "EUR",
			0, 0, int64(0), "",
			0, 0, int64(0), "",
			version, time.Now())
}

func serviceBookingColumns() []string {
	return []string{"id", "pnr_code", "status", "expires_at", "seats_released", "created_at", "updated_at", "version"}
}

func storedBookingRows(id uuid.UUID, status models.BookingStatus, seatsReleased bool) *sqlmock.Rows {
	var expiresAt interface{}
	if status == models.BookingStatusHeld {
		expiresAt = time.Now().Add(15 * time.Minute)
	}
	return sqlmock.NewRows(serviceBookingColumns()).
		AddRow(id, "AB12CD", string(status), expiresAt, seatsReleased, time.Now(), time.Now(), int64(1))
}

func storedPassengerRows(bookingID uuid.UUID) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "booking_id", "first_name", "last_name", "email", "date_of_birth", "gender", "type"}).
		AddRow(uuid.New(), bookingID, "Ada", "Lovelace", "ada@example.com", nil, "FEMALE", "ADULT")
}

func storedSegmentRows(bookingID uuid.UUID) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "booking_id", "flight_id", "cabin_class", "price_amount", "price_currency", "seat_number"}).
		AddRow(uuid.New(), bookingID, "AV100", "ECONOMY", int64(25000), "EUR", nil)
}

// declineAllGateway fails every checkout the way the provider reports a
// rejected card.
type declineAllGateway struct{}

func (declineAllGateway) CreateCheckout(context.Context, gateway.CreateCheckoutRequest) (*gateway.CheckoutSession, error) {
	return nil, models.NewDomainError(models.TagPaymentDeclined, "card was declined")
}

func (declineAllGateway) GetCheckoutStatus(context.Context, string) (*gateway.CheckoutStatus, error) {
	return nil, models.NewDomainError(models.TagCheckoutNotFound, "no checkout opened")
}

// acceptAllGateway opens a checkout for every booking.
type acceptAllGateway struct{}

func (acceptAllGateway) CreateCheckout(context.Context, gateway.CreateCheckoutRequest) (*gateway.CheckoutSession, error) {
	return &gateway.CheckoutSession{
		ID:          "co_test",
		CheckoutURL: "https://pay.example.com/co_test",
		ExpiresAt:   time.Now().Add(30 * time.Minute),
	}, nil
}

func (acceptAllGateway) GetCheckoutStatus(context.Context, string) (*gateway.CheckoutStatus, error) {
	return &gateway.CheckoutStatus{Kind: gateway.CheckoutPending}, nil
}

func oneSeatCommand() models.BookFlightCommand {
	return models.BookFlightCommand{
		Passengers: []models.PassengerInput{{
			FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com",
			Gender: "FEMALE", Type: "ADULT",
		}},
		Segments: []models.SegmentInput{{FlightID: "AV100", Cabin: "ECONOMY"}},
	}
}

// expectForwardPath scripts the happy hold-and-persist transaction for a
// one-passenger, one-segment booking.
func expectForwardPath(mock sqlmock.Sqlmock, inventoryVersion int64) {
	mock.ExpectBegin()
	mock.ExpectQuery("FROM flight_inventory").
		WithArgs("AV100").
		WillReturnRows(economyInventoryRows(10, inventoryVersion))
	mock.ExpectExec("UPDATE flight_inventory").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO event_outbox").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO bookings").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO passengers").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO segments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO event_outbox").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func TestBookFlightCompensatesOnCheckoutFailure(t *testing.T) {
	deps := newServiceDeps(t)
	service := newTestBookingService(deps, declineAllGateway{})
	bookingID := uuid.New()

	expectForwardPath(deps.mock, 1)

	// Compensation runs in a fresh transaction: reload, cancel, return the
	// held seats and persist the released marker together.
	deps.mock.ExpectBegin()
	deps.mock.ExpectQuery("FROM bookings WHERE id").
		WillReturnRows(storedBookingRows(bookingID, models.BookingStatusHeld, false))
	deps.mock.ExpectQuery("FROM passengers").
		WillReturnRows(storedPassengerRows(bookingID))
	deps.mock.ExpectQuery("FROM segments").
		WillReturnRows(storedSegmentRows(bookingID))
	deps.mock.ExpectQuery("FROM flight_inventory").
		WithArgs("AV100").
		WillReturnRows(economyInventoryRows(9, 2))
	deps.mock.ExpectExec("UPDATE flight_inventory").
		WillReturnResult(sqlmock.NewResult(0, 1))
	deps.mock.ExpectExec("INSERT INTO event_outbox").
		WillReturnResult(sqlmock.NewResult(0, 1))
	deps.mock.ExpectExec("UPDATE bookings").
		WillReturnResult(sqlmock.NewResult(0, 1))
	deps.mock.ExpectExec("INSERT INTO event_outbox").
		WillReturnResult(sqlmock.NewResult(0, 1))
	deps.mock.ExpectCommit()

	result, err := service.BookFlight(context.Background(), oneSeatCommand())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, models.HasTag(err, models.TagPaymentDeclined))

	// Every scripted statement ran: the booking was cancelled and its seat
	// went back to the pool exactly once.
	assert.NoError(t, deps.mock.ExpectationsWereMet())
}

func TestBookFlightRetriesLostSeatRace(t *testing.T) {
	deps := newServiceDeps(t)
	service := newTestBookingService(deps, acceptAllGateway{})

	// Under REPEATABLE READ the losing hold aborts the whole transaction with
	// SQLSTATE 40001, so the retry must reopen a fresh one.
	deps.mock.ExpectBegin()
	deps.mock.ExpectQuery("FROM flight_inventory").
		WithArgs("AV100").
		WillReturnRows(economyInventoryRows(10, 1))
	deps.mock.ExpectExec("UPDATE flight_inventory").
		WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access due to concurrent update"})
	deps.mock.ExpectRollback()

	expectForwardPath(deps.mock, 2)

	result, err := service.BookFlight(context.Background(), oneSeatCommand())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, string(models.BookingStatusHeld), result.Status)
	assert.Equal(t, "https://pay.example.com/co_test", result.CheckoutURL)
	assert.NoError(t, deps.mock.ExpectationsWereMet())
}

func TestCancelBookingReleasesSeatsOnce(t *testing.T) {
	deps := newServiceDeps(t)
	service := newTestBookingService(deps, acceptAllGateway{})
	bookingID := uuid.New()

	deps.mock.ExpectBegin()
	deps.mock.ExpectQuery("FROM bookings WHERE id").
		WithArgs(bookingID).
		WillReturnRows(storedBookingRows(bookingID, models.BookingStatusHeld, false))
	deps.mock.ExpectQuery("FROM passengers").
		WillReturnRows(storedPassengerRows(bookingID))
	deps.mock.ExpectQuery("FROM segments").
		WillReturnRows(storedSegmentRows(bookingID))
	deps.mock.ExpectQuery("FROM flight_inventory").
		WithArgs("AV100").
		WillReturnRows(economyInventoryRows(9, 3))
	deps.mock.ExpectExec("UPDATE flight_inventory").
		WillReturnResult(sqlmock.NewResult(0, 1))
	deps.mock.ExpectExec("INSERT INTO event_outbox").
		WillReturnResult(sqlmock.NewResult(0, 1))
	deps.mock.ExpectExec("UPDATE bookings").
		WillReturnResult(sqlmock.NewResult(0, 1))
	deps.mock.ExpectExec("INSERT INTO event_outbox").
		WillReturnResult(sqlmock.NewResult(0, 1))
	deps.mock.ExpectCommit()

	cancelled, err := service.CancelBooking(context.Background(), bookingID, "changed plans")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
	assert.True(t, cancelled.SeatsReleased)
	assert.NoError(t, deps.mock.ExpectationsWereMet())
}
