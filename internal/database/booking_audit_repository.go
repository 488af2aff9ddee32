package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/airvoyage/reservation-backend/internal/models"
)

// BookingAuditRepository handles booking audit operations
type BookingAuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewBookingAuditRepository creates a new booking audit repository
func NewBookingAuditRepository(db *sqlx.DB, logger *logrus.Logger) *BookingAuditRepository {
	return &BookingAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log creates a new audit entry. Money-touching events must always leave a
// trail, so a failure here is logged loudly and returned.
func (r *BookingAuditRepository) Log(ctx context.Context, audit *models.BookingAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO audit_log (
			id, booking_id, pnr_code, checkout_id,
			event_type, event_source,
			expected_amount, received_amount, currency, amounts_match,
			request_payload, response_payload, raw_body,
			http_status_code, http_method, endpoint_url,
			error_message, error_tag,
			processing_time_ms, is_duplicate,
			ip_address, user_agent, device_info, correlation_id,
			created_at, processed_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6,
			$7, $8, $9, $10,
			$11, $12, $13,
			$14, $15, $16,
			$17, $18,
			$19, $20,
			$21, $22, $23, $24,
			$25, $26
		)`

	_, err := r.db.ExecContext(ctx, query,
		audit.ID, audit.BookingID, audit.PnrCode, audit.CheckoutID,
		audit.EventType, audit.EventSource,
		audit.ExpectedAmount, audit.ReceivedAmount, audit.Currency, audit.AmountsMatch,
		audit.RequestPayload, audit.ResponsePayload, audit.RawBody,
		audit.HTTPStatusCode, audit.HTTPMethod, audit.EndpointURL,
		audit.ErrorMessage, audit.ErrorTag,
		audit.ProcessingTimeMs, audit.IsDuplicate,
		audit.IPAddress, audit.UserAgent, audit.DeviceInfo, audit.CorrelationID,
		audit.CreatedAt, audit.ProcessedAt,
	)

	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"booking_id": audit.BookingID,
		}).Error("CRITICAL: Failed to log booking audit")
		return fmt.Errorf("failed to log booking audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"event_type": audit.EventType,
		"booking_id": audit.BookingID,
	}).Debug("Booking audit logged")

	return nil
}

// CheckDuplicate reports whether a webhook delivery for the same checkout and
// event type has already been processed.
func (r *BookingAuditRepository) CheckDuplicate(ctx context.Context, checkoutID string, eventType models.AuditEventType) (bool, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM audit_log
		WHERE checkout_id = $1
		AND event_type = $2
		AND is_duplicate = FALSE`

	err := r.db.GetContext(ctx, &count, query, checkoutID, eventType)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate: %w", err)
	}

	return count > 0, nil
}

// RecentByBooking lists a booking's audit trail, newest first.
func (r *BookingAuditRepository) RecentByBooking(ctx context.Context, bookingID uuid.UUID, limit int) ([]models.BookingAudit, error) {
	var audits []models.BookingAudit
	query := `
		SELECT id, booking_id, pnr_code, checkout_id,
		       event_type, event_source,
		       expected_amount, received_amount, currency, amounts_match,
		       request_payload, response_payload, raw_body,
		       http_status_code, http_method, endpoint_url,
		       error_message, error_tag,
		       processing_time_ms, is_duplicate,
		       ip_address, user_agent, device_info, correlation_id,
		       created_at, processed_at
		FROM audit_log
		WHERE booking_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &audits, query, bookingID, limit); err != nil {
		return nil, fmt.Errorf("failed to load booking audits: %w", err)
	}
	return audits, nil
}

// PurgeOlderThan removes audit rows beyond the retention window.
func (r *BookingAuditRepository) PurgeOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge booking audits: %w", err)
	}
	return res.RowsAffected()
}
