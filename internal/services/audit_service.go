package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/airvoyage/reservation-backend/internal/database"
	"github.com/airvoyage/reservation-backend/internal/models"
	"github.com/airvoyage/reservation-backend/internal/utils"
)

// AuditService records the money-touching trail of every booking: checkout
// attempts, webhook deliveries, state transitions and compensations.
// Logging is best-effort from the caller's view; failures are reported by the
// repository and never break the main flow.
type AuditService struct {
	repo   *database.BookingAuditRepository
	logger *logrus.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(repo *database.BookingAuditRepository, logger *logrus.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger,
	}
}

// RequestMeta carries the client-side context of an audited request.
type RequestMeta struct {
	IPAddress     string
	UserAgent     string
	CorrelationID string
}

func (s *AuditService) log(ctx context.Context, audit *models.BookingAudit) {
	if err := s.repo.Log(ctx, audit); err != nil {
		s.logger.WithError(err).Error("Audit write failed")
	}
}

func (s *AuditService) withMeta(audit *models.BookingAudit, meta RequestMeta) *models.BookingAudit {
	device := ""
	if meta.UserAgent != "" {
		device = utils.ParseUserAgent(meta.UserAgent).String()
	}
	return audit.SetMetadata(meta.IPAddress, meta.UserAgent, device, meta.CorrelationID)
}

// LogCheckoutCreated records a successfully opened checkout session.
func (s *AuditService) LogCheckoutCreated(ctx context.Context, bookingID uuid.UUID, pnr, checkoutID string, amount models.Money, meta RequestMeta, startedAt time.Time) {
	audit := models.NewBookingAudit(models.AuditEventCheckoutCreated, models.AuditSourceBackend).
		SetBooking(bookingID).
		SetPnr(pnr).
		SetCheckout(checkoutID).
		SetProcessingTime(startedAt)
	audit.SetAmounts(amount.Amount, amount.Amount, string(amount.Currency))
	s.log(ctx, s.withMeta(audit, meta))
}

// LogCheckoutFailed records a failed checkout attempt with its error tag.
func (s *AuditService) LogCheckoutFailed(ctx context.Context, bookingID uuid.UUID, pnr string, cause error, meta RequestMeta, startedAt time.Time) {
	audit := models.NewBookingAudit(models.AuditEventCheckoutFailed, models.AuditSourceBackend).
		SetBooking(bookingID).
		SetPnr(pnr).
		SetProcessingTime(startedAt)
	var tag *string
	if t, ok := models.TagOf(cause); ok {
		str := string(t)
		tag = &str
	}
	audit.SetError(cause.Error(), tag)
	s.log(ctx, s.withMeta(audit, meta))
}

// LogWebhookReceived records an accepted webhook delivery, flagging
// redeliveries of the same checkout event as duplicates.
func (s *AuditService) LogWebhookReceived(ctx context.Context, checkoutID, rawBody string, meta RequestMeta) bool {
	duplicate, err := s.repo.CheckDuplicate(ctx, checkoutID, models.AuditEventWebhookReceived)
	if err != nil {
		s.logger.WithError(err).Warn("Webhook duplicate check failed")
	}

	audit := models.NewBookingAudit(models.AuditEventWebhookReceived, models.AuditSourcePolarWebhook).
		SetCheckout(checkoutID).
		SetRawBody(rawBody)
	if duplicate {
		audit.MarkAsDuplicate()
	}
	s.log(ctx, s.withMeta(audit, meta))
	return duplicate
}

// LogWebhookRejected records a delivery that failed signature verification or
// payload parsing.
func (s *AuditService) LogWebhookRejected(ctx context.Context, rawBody string, cause error, meta RequestMeta) {
	audit := models.NewBookingAudit(models.AuditEventWebhookRejected, models.AuditSourcePolarWebhook).
		SetRawBody(rawBody)
	var tag *string
	if t, ok := models.TagOf(cause); ok {
		str := string(t)
		tag = &str
	}
	audit.SetError(cause.Error(), tag)
	s.log(ctx, s.withMeta(audit, meta))
}

// LogTransition records a booking state change driven by a given source.
func (s *AuditService) LogTransition(ctx context.Context, eventType models.AuditEventType, source models.AuditEventSource, bookingID uuid.UUID, pnr string, meta RequestMeta) {
	audit := models.NewBookingAudit(eventType, source).
		SetBooking(bookingID).
		SetPnr(pnr)
	s.log(ctx, s.withMeta(audit, meta))
}

// LogCompensation records a saga compensation run and its trigger.
func (s *AuditService) LogCompensation(ctx context.Context, bookingID uuid.UUID, cause error) {
	audit := models.NewBookingAudit(models.AuditEventCompensation, models.AuditSourceSystem).
		SetBooking(bookingID)
	var tag *string
	if t, ok := models.TagOf(cause); ok {
		str := string(t)
		tag = &str
	}
	audit.SetError(cause.Error(), tag)
	s.log(ctx, audit)
}

// Trail returns the newest audit entries for one booking.
func (s *AuditService) Trail(ctx context.Context, bookingID uuid.UUID, limit int) ([]models.BookingAudit, error) {
	return s.repo.RecentByBooking(ctx, bookingID, limit)
}
