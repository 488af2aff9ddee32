package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/airvoyage/reservation-backend/internal/models"
	"github.com/airvoyage/reservation-backend/internal/services"
	"github.com/airvoyage/reservation-backend/pkg/signature"
)

// maxWebhookBody caps the payload size read from the provider.
const maxWebhookBody = 1 << 20

// polarWebhookEvent is the wire shape of a Polar webhook delivery.
type polarWebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Metadata struct {
			BookingID string `json:"bookingId"`
		} `json:"metadata"`
	} `json:"data"`
}

// WebhookHandler receives payment provider callbacks. Signature failures are
// rejected with 401; transient processing failures return 503 so the provider
// redelivers; business failures are acknowledged with 200 because redelivery
// cannot fix them.
type WebhookHandler struct {
	bookingService *services.BookingService
	auditService   *services.AuditService
	secret         []byte
	logger         *logrus.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(
	bookingService *services.BookingService,
	auditService *services.AuditService,
	secret string,
	logger *logrus.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		bookingService: bookingService,
		auditService:   auditService,
		secret:         []byte(secret),
		logger:         logger,
	}
}

// transientTags are the failure classes a provider retry can resolve.
var transientTags = map[models.ErrorTag]bool{
	models.TagOptimisticLocking:    true,
	models.TagBookingPersistence:   true,
	models.TagInventoryPersistence: true,
	models.TagOutboxPersistence:    true,
	models.TagRequestTimeout:       true,
	models.TagNetworkError:         true,
}

// ============ POLAR WEBHOOK - POST /api/webhooks/polar ============

// HandlePolarWebhook godoc
// @Summary Payment provider webhook
// @Description Verifies the HMAC signature and applies checkout status updates to bookings
// @Tags webhooks
// @Accept json
// @Produce json
// @Param Webhook-Signature header string true "v1=<hex HMAC-SHA256>"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{} "Signature missing or invalid"
// @Failure 503 {object} map[string]interface{} "Transient failure, retry delivery"
// @Router /api/webhooks/polar [post]
func (h *WebhookHandler) HandlePolarWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	meta := requestMeta(c)

	sig := c.GetHeader("Webhook-Signature")
	if err := signature.Verify(h.secret, body, sig); err != nil {
		authErr := models.ErrWebhookAuthentication(err.Error())
		h.auditService.LogWebhookRejected(c.Request.Context(), string(body), authErr, meta)
		h.logger.WithError(err).WithField("ip", meta.IPAddress).Warn("Webhook signature rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var event polarWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		payloadErr := models.ErrMalformedPayload(err)
		h.auditService.LogWebhookRejected(c.Request.Context(), string(body), payloadErr, meta)
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	duplicate := h.auditService.LogWebhookReceived(c.Request.Context(), event.Data.ID, string(body), meta)
	if duplicate {
		h.logger.WithField("checkout_id", event.Data.ID).Info("Duplicate webhook delivery acknowledged")
	}

	if event.Type != "checkout.updated" {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	switch event.Data.Status {
	case "succeeded", "confirmed":
		h.handleCheckoutSucceeded(c, event, meta)
	case "expired", "failed":
		// The expiration reaper owns the failure path; the delivery is
		// acknowledged so the provider stops retrying.
		h.logger.WithFields(logrus.Fields{
			"checkout_id": event.Data.ID,
			"status":      event.Data.Status,
		}).Info("Checkout ended without payment")
		c.JSON(http.StatusOK, gin.H{"received": true})
	default:
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

func (h *WebhookHandler) handleCheckoutSucceeded(c *gin.Context, event polarWebhookEvent, meta services.RequestMeta) {
	bookingID, err := uuid.Parse(event.Data.Metadata.BookingID)
	if err != nil {
		h.auditService.LogWebhookRejected(c.Request.Context(), event.Data.ID, models.ErrMalformedPayload(err), meta)
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid bookingId metadata"})
		return
	}

	booking, err := h.bookingService.ConfirmBooking(c.Request.Context(), bookingID)
	if err != nil {
		tag, _ := models.TagOf(err)
		if transientTags[tag] {
			h.logger.WithError(err).WithField("booking_id", bookingID).
				Warn("Transient failure confirming booking, requesting redelivery")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporary failure, please retry"})
			return
		}

		// Business errors are final; acknowledge so the provider stops
		// retrying a delivery that can never succeed.
		h.logger.WithError(err).WithField("booking_id", bookingID).
			Warn("Webhook acknowledged without confirming booking")
		c.JSON(http.StatusOK, gin.H{
			"received": true,
			"applied":  false,
			"reason":   string(tag),
		})
		return
	}

	h.auditService.LogTransition(
		c.Request.Context(),
		models.AuditEventBookingConfirmed,
		models.AuditSourcePolarWebhook,
		booking.ID,
		booking.PnrCode,
		meta,
	)

	c.JSON(http.StatusOK, gin.H{
		"received":   true,
		"applied":    true,
		"booking_id": booking.ID,
		"status":     booking.Status,
	})
}
