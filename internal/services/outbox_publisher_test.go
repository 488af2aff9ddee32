package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airvoyage/reservation-backend/internal/config"
	"github.com/airvoyage/reservation-backend/internal/database"
	"github.com/airvoyage/reservation-backend/internal/models"
)

func publisherConfig() config.OutboxConfig {
	return config.OutboxConfig{
		PollInterval: time.Second,
		BatchSize:    10,
		MaxRetries:   3,
		CallTimeout:  time.Second,
		Parallelism:  2,
	}
}

func outboxTestColumns() []string {
	return []string{
		"id", "aggregate_type", "aggregate_id", "event_type", "payload",
		"created_at", "processing_at", "published_at", "retry_count", "last_error",
	}
}

// expectClaim scripts the short claim transaction returning one row.
func expectClaim(mock sqlmock.Sqlmock, id uuid.UUID, eventType string, retryCount int) {
	rows := sqlmock.NewRows(outboxTestColumns()).
		AddRow(id, models.AggregateBooking, "agg-1", eventType, []byte(`{}`),
			time.Now(), nil, nil, retryCount, nil)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, aggregate_type").
		WithArgs(sqlmock.AnyArg(), 3, 10).
		WillReturnRows(rows)
	mock.ExpectExec("UPDATE event_outbox SET processing_at").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func TestOutboxPublisherRunOnce(t *testing.T) {
	t.Run("delivers to the registered consumer and marks published", func(t *testing.T) {
		db, mock := newServiceDB(t)
		publisher := NewOutboxPublisher(database.NewOutboxRepository(db, testServiceLogger()), publisherConfig(), testServiceLogger())

		id := uuid.New()
		expectClaim(mock, id, models.EventBookingCancelled, 0)
		mock.ExpectExec("UPDATE event_outbox SET published_at").
			WithArgs(sqlmock.AnyArg(), id).
			WillReturnResult(sqlmock.NewResult(0, 1))

		var delivered []models.OutboxMessage
		publisher.Register(models.EventBookingCancelled, func(ctx context.Context, msg models.OutboxMessage) error {
			delivered = append(delivered, msg)
			return nil
		})

		require.NoError(t, publisher.RunOnce(context.Background()))
		require.Len(t, delivered, 1)
		assert.Equal(t, id, delivered[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed delivery records the error and releases the claim", func(t *testing.T) {
		db, mock := newServiceDB(t)
		publisher := NewOutboxPublisher(database.NewOutboxRepository(db, testServiceLogger()), publisherConfig(), testServiceLogger())

		id := uuid.New()
		expectClaim(mock, id, models.EventBookingCancelled, 0)
		mock.ExpectExec("UPDATE event_outbox").
			WithArgs("consumer unavailable", id).
			WillReturnResult(sqlmock.NewResult(0, 1))

		publisher.Register(models.EventBookingCancelled, func(ctx context.Context, msg models.OutboxMessage) error {
			return errors.New("consumer unavailable")
		})

		require.NoError(t, publisher.RunOnce(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("last failed attempt dead-letters instead of requeueing", func(t *testing.T) {
		db, mock := newServiceDB(t)
		publisher := NewOutboxPublisher(database.NewOutboxRepository(db, testServiceLogger()), publisherConfig(), testServiceLogger())

		// retry_count 2 with a budget of 3: this delivery is the last one the
		// claim query will ever hand out.
		id := uuid.New()
		expectClaim(mock, id, models.EventBookingCancelled, 2)
		mock.ExpectExec("UPDATE event_outbox").
			WithArgs("consumer unavailable", id).
			WillReturnResult(sqlmock.NewResult(0, 1))

		attempts := 0
		publisher.Register(models.EventBookingCancelled, func(ctx context.Context, msg models.OutboxMessage) error {
			attempts++
			return errors.New("consumer unavailable")
		})

		require.NoError(t, publisher.RunOnce(context.Background()))
		assert.Equal(t, 1, attempts)

		// The bumped retry_count now fails the claim filter, so the next poll
		// finds nothing to deliver.
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, aggregate_type").
			WithArgs(sqlmock.AnyArg(), 3, 10).
			WillReturnRows(sqlmock.NewRows(outboxTestColumns()))
		mock.ExpectCommit()

		require.NoError(t, publisher.RunOnce(context.Background()))
		assert.Equal(t, 1, attempts)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("event without a consumer drains as published", func(t *testing.T) {
		db, mock := newServiceDB(t)
		publisher := NewOutboxPublisher(database.NewOutboxRepository(db, testServiceLogger()), publisherConfig(), testServiceLogger())

		id := uuid.New()
		expectClaim(mock, id, "SomebodyElsesEvent", 0)
		mock.ExpectExec("UPDATE event_outbox SET published_at").
			WithArgs(sqlmock.AnyArg(), id).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, publisher.RunOnce(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
