package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/airvoyage/reservation-backend/internal/database"
	"github.com/airvoyage/reservation-backend/internal/services"
)

const deadLetterPageSize = 50

// AdminHandler exposes the operator surface: dead-letter inspection and
// requeue, manual reaper runs, audit trails and job status.
type AdminHandler struct {
	outbox             *database.OutboxRepository
	publisher          *services.OutboxPublisher
	expirationService  *services.ExpirationService
	maintenanceService *services.MaintenanceService
	auditService       *services.AuditService
	maxRetries         int
	logger             *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	outbox *database.OutboxRepository,
	publisher *services.OutboxPublisher,
	expirationService *services.ExpirationService,
	maintenanceService *services.MaintenanceService,
	auditService *services.AuditService,
	maxRetries int,
	logger *logrus.Logger,
) *AdminHandler {
	return &AdminHandler{
		outbox:             outbox,
		publisher:          publisher,
		expirationService:  expirationService,
		maintenanceService: maintenanceService,
		auditService:       auditService,
		maxRetries:         maxRetries,
		logger:             logger,
	}
}

// ============ DEAD LETTERS - GET /api/admin/outbox/dead-letters ============

// ListDeadLetters godoc
// @Summary List dead-lettered outbox messages
// @Description Returns messages that exhausted their delivery budget and wait for operator action
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max results"
// @Success 200 {array} models.OutboxMessage
// @Router /api/admin/outbox/dead-letters [get]
func (h *AdminHandler) ListDeadLetters(c *gin.Context) {
	limit := parseBoundedInt(c.Query("limit"), deadLetterPageSize, maxListLimit)

	messages, err := h.outbox.DeadLetters(c.Request.Context(), h.maxRetries, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dead_letters": messages,
		"count":        len(messages),
	})
}

// ============ REQUEUE - POST /api/admin/outbox/dead-letters/:id/requeue ============

// RequeueDeadLetter godoc
// @Summary Requeue a dead-lettered message
// @Description Resets the retry budget so the publisher picks the message up again
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Outbox message ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{} "Message is not dead-lettered"
// @Router /api/admin/outbox/dead-letters/{id}/requeue [post]
func (h *AdminHandler) RequeueDeadLetter(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message ID"})
		return
	}

	requeued, err := h.outbox.Requeue(c.Request.Context(), id, h.maxRetries)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !requeued {
		c.JSON(http.StatusNotFound, gin.H{"error": "message is not dead-lettered"})
		return
	}

	h.logger.WithField("message_id", id).Info("Dead letter requeued by operator")
	c.JSON(http.StatusOK, gin.H{"requeued": true, "message_id": id})
}

// ============ PUBLISHER RUN - POST /api/admin/outbox/run ============

// RunPublisher godoc
// @Summary Trigger one outbox delivery pass
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /api/admin/outbox/run [post]
func (h *AdminHandler) RunPublisher(c *gin.Context) {
	if err := h.publisher.RunOnce(c.Request.Context()); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ran": true})
}

// ============ REAPER RUN - POST /api/admin/reaper/run ============

// RunReaper godoc
// @Summary Trigger one expiration sweep
// @Description Expires lapsed holds immediately instead of waiting for the next tick
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /api/admin/reaper/run [post]
func (h *AdminHandler) RunReaper(c *gin.Context) {
	expired, err := h.expirationService.RunOnce(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": expired})
}

// ============ AUDIT TRAIL - GET /api/admin/bookings/:id/audit ============

// BookingAuditTrail godoc
// @Summary Audit trail for a booking
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Booking ID"
// @Param limit query int false "Max entries"
// @Success 200 {array} models.BookingAudit
// @Router /api/admin/bookings/{id}/audit [get]
func (h *AdminHandler) BookingAuditTrail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
		return
	}
	limit := parseBoundedInt(c.Query("limit"), deadLetterPageSize, maxListLimit)

	trail, err := h.auditService.Trail(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit": trail, "count": len(trail)})
}

// ============ JOB STATUS - GET /api/admin/jobs ============

// JobStatus godoc
// @Summary Scheduled job status
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /api/admin/jobs [get]
func (h *AdminHandler) JobStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.maintenanceService.JobStatus())
}
