package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/airvoyage/reservation-backend/internal/models"
)

// staleClaimAge is how long a processing claim may sit before a competing
// publisher can steal the row, covering publishers that died mid-batch.
const staleClaimAge = 5 * time.Minute

// OutboxRepository handles the transactional outbox table
type OutboxRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *sqlx.DB, logger *logrus.Logger) *OutboxRepository {
	return &OutboxRepository{
		db:     db,
		logger: logger,
	}
}

// Append serializes the events into outbox rows inside the ambient
// transaction, one row per event in production order.
func (r *OutboxRepository) Append(ctx context.Context, events []models.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	q := QuerierFrom(ctx, r.db)

	query := `
		INSERT INTO event_outbox (
			id, aggregate_type, aggregate_id, event_type, payload, created_at, retry_count
		) VALUES ($1, $2, $3, $4, $5, $6, 0)`

	for _, event := range events {
		msg, err := models.NewOutboxMessage(event)
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, query,
			msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, msg.CreatedAt,
		); err != nil {
			return models.NewDomainError(models.TagOutboxPersistence, "failed to append %s event", msg.EventType).
				WithField("aggregateId", msg.AggregateID).
				WithCause(err)
		}
	}
	return nil
}

// ClaimBatch locks up to limit unpublished rows in created_at order, stamps
// processing_at on them, and returns them. It runs its own short transaction;
// SKIP LOCKED keeps competing publishers off the same rows.
func (r *OutboxRepository) ClaimBatch(ctx context.Context, limit, maxRetries int) ([]models.OutboxMessage, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	var messages []models.OutboxMessage
	selectQuery := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload,
		       created_at, processing_at, published_at, retry_count, last_error
		FROM event_outbox
		WHERE published_at IS NULL
		  AND (processing_at IS NULL OR processing_at < $1)
		  AND retry_count < $2
		ORDER BY created_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED`

	if err := tx.SelectContext(ctx, &messages, selectQuery, time.Now().Add(-staleClaimAge), maxRetries, limit); err != nil {
		return nil, fmt.Errorf("failed to select outbox batch: %w", err)
	}
	if len(messages) == 0 {
		return nil, tx.Commit()
	}

	ids := make([]uuid.UUID, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE event_outbox SET processing_at = $1 WHERE id = ANY($2)`,
		now, pq.Array(ids),
	); err != nil {
		return nil, fmt.Errorf("failed to claim outbox batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit outbox claim: %w", err)
	}
	for i := range messages {
		messages[i].ProcessingAt = &now
	}
	return messages, nil
}

// MarkPublished stamps a delivered message and clears its claim.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE event_outbox SET published_at = $1, processing_at = NULL WHERE id = $2`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox message published: %w", err)
	}
	return nil
}

// MarkFailed increments the retry counter, records the consumer error, and
// releases the claim so the next poll can retry.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, cause string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE event_outbox
		 SET retry_count = retry_count + 1, last_error = $1, processing_at = NULL
		 WHERE id = $2`,
		cause, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox message failed: %w", err)
	}
	return nil
}

// DeadLetters lists messages that exhausted their retry budget, oldest first.
func (r *OutboxRepository) DeadLetters(ctx context.Context, maxRetries, limit int) ([]models.OutboxMessage, error) {
	var messages []models.OutboxMessage
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload,
		       created_at, processing_at, published_at, retry_count, last_error
		FROM event_outbox
		WHERE published_at IS NULL AND retry_count >= $1
		ORDER BY created_at ASC
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &messages, query, maxRetries, limit); err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return messages, nil
}

// CountDeadLetters returns the number of dead-lettered messages.
func (r *OutboxRepository) CountDeadLetters(ctx context.Context, maxRetries int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM event_outbox WHERE published_at IS NULL AND retry_count >= $1`,
		maxRetries,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", err)
	}
	return count, nil
}

// Requeue resets a dead-lettered message for another delivery round.
// Returns false when the id does not name a dead letter.
func (r *OutboxRepository) Requeue(ctx context.Context, id uuid.UUID, maxRetries int) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE event_outbox
		 SET retry_count = 0, last_error = NULL, processing_at = NULL
		 WHERE id = $1 AND published_at IS NULL AND retry_count >= $2`,
		id, maxRetries,
	)
	if err != nil {
		return false, fmt.Errorf("failed to requeue outbox message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read requeue result: %w", err)
	}
	return affected > 0, nil
}

// PurgePublished deletes messages published before the cutoff and returns the
// number of rows removed. The maintenance cron calls this nightly.
func (r *OutboxRepository) PurgePublished(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM event_outbox WHERE published_at IS NOT NULL AND published_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge published outbox messages: %w", err)
	}
	return res.RowsAffected()
}
