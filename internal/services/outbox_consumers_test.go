package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airvoyage/reservation-backend/internal/models"
)

func cancellationMessage(bookingID uuid.UUID) models.OutboxMessage {
	payload := fmt.Sprintf(`{"bookingId":%q,"pnrCode":"AB12CD","reason":"changed plans"}`, bookingID)
	return models.OutboxMessage{
		ID:            uuid.New(),
		AggregateType: models.AggregateBooking,
		AggregateID:   bookingID.String(),
		EventType:     models.EventBookingCancelled,
		Payload:       []byte(payload),
	}
}

func TestSeatReleaseConsumer(t *testing.T) {
	t.Run("redelivery for a released booking touches no inventory", func(t *testing.T) {
		deps := newServiceDeps(t)
		consumer := NewSeatReleaseConsumer(deps.bookings, deps.inventory, deps.tx, testServiceLogger())
		bookingID := uuid.New()

		// The cancellation already returned the seats in-line and persisted
		// the marker; the consumer must see it and stop.
		deps.mock.ExpectBegin()
		deps.mock.ExpectQuery("FROM bookings WHERE id").
			WillReturnRows(storedBookingRows(bookingID, models.BookingStatusCancelled, true))
		deps.mock.ExpectQuery("FROM passengers").
			WillReturnRows(storedPassengerRows(bookingID))
		deps.mock.ExpectQuery("FROM segments").
			WillReturnRows(storedSegmentRows(bookingID))
		deps.mock.ExpectCommit()

		require.NoError(t, consumer.Handle(context.Background(), cancellationMessage(bookingID)))

		// No inventory statement was scripted, so a second release would have
		// failed the mock. Availability cannot inflate past what was held.
		assert.NoError(t, deps.mock.ExpectationsWereMet())
	})

	t.Run("releases an unmarked booking and persists the marker", func(t *testing.T) {
		deps := newServiceDeps(t)
		consumer := NewSeatReleaseConsumer(deps.bookings, deps.inventory, deps.tx, testServiceLogger())
		bookingID := uuid.New()

		deps.mock.ExpectBegin()
		deps.mock.ExpectQuery("FROM bookings WHERE id").
			WillReturnRows(storedBookingRows(bookingID, models.BookingStatusCancelled, false))
		deps.mock.ExpectQuery("FROM passengers").
			WillReturnRows(storedPassengerRows(bookingID))
		deps.mock.ExpectQuery("FROM segments").
			WillReturnRows(storedSegmentRows(bookingID))
		deps.mock.ExpectQuery("FROM flight_inventory").
			WithArgs("AV100").
			WillReturnRows(economyInventoryRows(9, 7))
		deps.mock.ExpectExec("UPDATE flight_inventory").
			WillReturnResult(sqlmock.NewResult(0, 1))
		deps.mock.ExpectExec("INSERT INTO event_outbox").
			WillReturnResult(sqlmock.NewResult(0, 1))
		deps.mock.ExpectExec("UPDATE bookings").
			WillReturnResult(sqlmock.NewResult(0, 1))
		deps.mock.ExpectCommit()

		require.NoError(t, consumer.Handle(context.Background(), cancellationMessage(bookingID)))
		assert.NoError(t, deps.mock.ExpectationsWereMet())
	})

	t.Run("unknown booking acknowledges without touching inventory", func(t *testing.T) {
		deps := newServiceDeps(t)
		consumer := NewSeatReleaseConsumer(deps.bookings, deps.inventory, deps.tx, testServiceLogger())
		bookingID := uuid.New()

		deps.mock.ExpectBegin()
		deps.mock.ExpectQuery("FROM bookings WHERE id").
			WillReturnRows(sqlmock.NewRows(serviceBookingColumns()))
		deps.mock.ExpectCommit()

		require.NoError(t, consumer.Handle(context.Background(), cancellationMessage(bookingID)))
		assert.NoError(t, deps.mock.ExpectationsWereMet())
	})

	t.Run("rejects a malformed payload", func(t *testing.T) {
		deps := newServiceDeps(t)
		consumer := NewSeatReleaseConsumer(deps.bookings, deps.inventory, deps.tx, testServiceLogger())

		msg := models.OutboxMessage{
			ID:        uuid.New(),
			EventType: models.EventBookingCancelled,
			Payload:   []byte(`{"bookingId":42}`),
		}
		err := consumer.Handle(context.Background(), msg)
		assert.True(t, models.HasTag(err, models.TagMalformedPayload))
	})
}
