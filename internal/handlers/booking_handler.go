package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/airvoyage/reservation-backend/internal/models"
	"github.com/airvoyage/reservation-backend/internal/services"
	"github.com/airvoyage/reservation-backend/internal/utils"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// BookingHandler exposes the booking saga and read models over HTTP.
type BookingHandler struct {
	bookingService   *services.BookingService
	inventoryService *services.InventoryService
	auditService     *services.AuditService
	logger           *logrus.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(
	bookingService *services.BookingService,
	inventoryService *services.InventoryService,
	auditService *services.AuditService,
	logger *logrus.Logger,
) *BookingHandler {
	return &BookingHandler{
		bookingService:   bookingService,
		inventoryService: inventoryService,
		auditService:     auditService,
		logger:           logger,
	}
}

func requestMeta(c *gin.Context) services.RequestMeta {
	return services.RequestMeta{
		IPAddress:     utils.GetRealIP(c),
		UserAgent:     utils.GetUserAgent(c),
		CorrelationID: c.GetHeader("X-Correlation-ID"),
	}
}

// ============ BOOK FLIGHT - POST /api/bookings ============

// BookFlight godoc
// @Summary Book a flight
// @Description Holds seats on every requested segment, creates the booking and opens a payment checkout session
// @Tags bookings
// @Accept json
// @Produce json
// @Param request body models.BookFlightCommand true "Passengers and segments"
// @Success 201 {object} models.BookFlightResult
// @Failure 400 {object} map[string]interface{} "Invalid input or unsupported currency"
// @Failure 402 {object} map[string]interface{} "Payment declined"
// @Failure 404 {object} map[string]interface{} "Flight not found"
// @Failure 409 {object} map[string]interface{} "Not enough seats or concurrent update"
// @Failure 503 {object} map[string]interface{} "Payment provider unavailable"
// @Failure 504 {object} map[string]interface{} "Booking timed out"
// @Router /api/bookings [post]
func (h *BookingHandler) BookFlight(c *gin.Context) {
	startedAt := time.Now()

	var cmd models.BookFlightCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.bookingService.BookFlight(c.Request.Context(), cmd)
	if err != nil {
		h.logger.WithError(err).Warn("Book flight failed")
		respondError(c, h.logger, err)
		return
	}

	h.auditService.LogCheckoutCreated(
		c.Request.Context(),
		result.BookingID,
		result.PnrCode,
		"",
		result.TotalPrice,
		requestMeta(c),
		startedAt,
	)

	c.JSON(http.StatusCreated, result)
}

// ============ LIST BOOKINGS - GET /api/bookings ============

// ListBookings godoc
// @Summary List bookings
// @Description Returns booking summaries, newest first
// @Tags bookings
// @Produce json
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {array} models.BookingSummary
// @Router /api/bookings [get]
func (h *BookingHandler) ListBookings(c *gin.Context) {
	limit := parseBoundedInt(c.Query("limit"), defaultListLimit, maxListLimit)
	offset := parseBoundedInt(c.Query("offset"), 0, 1<<30)

	summaries, err := h.bookingService.ListBookings(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if summaries == nil {
		summaries = []models.BookingSummary{}
	}
	c.JSON(http.StatusOK, summaries)
}

// ============ GET BOOKING - GET /api/bookings/:id ============

// GetBooking godoc
// @Summary Get a booking
// @Description Returns the summary of one booking by id
// @Tags bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} models.BookingSummary
// @Failure 404 {object} map[string]interface{} "Booking not found"
// @Router /api/bookings/{id} [get]
func (h *BookingHandler) GetBooking(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
		return
	}

	booking, err := h.bookingService.GetBooking(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	summary, err := h.bookingService.Summarize(c.Request.Context(), booking)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// ============ CONFIRM BOOKING - POST /api/bookings/:id/confirm ============

// ConfirmBooking godoc
// @Summary Confirm a booking
// @Description Confirms a held booking and issues its tickets. Redelivery on an already ticketed booking is a no-op.
// @Tags bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} models.BookingSummary
// @Failure 400 {object} map[string]interface{} "Booking is not confirmable"
// @Failure 404 {object} map[string]interface{} "Booking not found"
// @Failure 410 {object} map[string]interface{} "Hold has expired"
// @Router /api/bookings/{id}/confirm [post]
func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
		return
	}

	booking, err := h.bookingService.ConfirmBooking(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.auditService.LogTransition(
		c.Request.Context(),
		models.AuditEventBookingConfirmed,
		models.AuditSourceOperator,
		booking.ID,
		booking.PnrCode,
		requestMeta(c),
	)

	summary, err := h.bookingService.Summarize(c.Request.Context(), booking)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ============ CANCEL BOOKING - POST /api/bookings/:id/cancel ============

// CancelBookingRequest carries the optional cancellation reason.
type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

// CancelBooking godoc
// @Summary Cancel a booking
// @Description Cancels a non-terminal booking and releases its held seats
// @Tags bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param request body CancelBookingRequest false "Cancellation reason"
// @Success 200 {object} models.BookingSummary
// @Failure 400 {object} map[string]interface{} "Booking is already terminal"
// @Failure 404 {object} map[string]interface{} "Booking not found"
// @Router /api/bookings/{id}/cancel [post]
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
		return
	}

	var req CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}
	reason := req.Reason
	if reason == "" {
		reason = "cancelled by passenger"
	}

	booking, err := h.bookingService.CancelBooking(c.Request.Context(), id, reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.auditService.LogTransition(
		c.Request.Context(),
		models.AuditEventBookingCancelled,
		models.AuditSourcePassenger,
		booking.ID,
		booking.PnrCode,
		requestMeta(c),
	)

	summary, err := h.bookingService.Summarize(c.Request.Context(), booking)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ============ GET BY PNR - GET /api/bookings/pnr/:pnr ============

// GetBookingByPnr godoc
// @Summary Get a booking by record locator
// @Tags bookings
// @Produce json
// @Param pnr path string true "PNR code"
// @Success 200 {object} models.BookingSummary
// @Failure 404 {object} map[string]interface{} "Booking not found"
// @Router /api/bookings/pnr/{pnr} [get]
func (h *BookingHandler) GetBookingByPnr(c *gin.Context) {
	booking, err := h.bookingService.GetBookingByPnr(c.Request.Context(), c.Param("pnr"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	summary, err := h.bookingService.Summarize(c.Request.Context(), booking)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ============ PASSENGER HISTORY - GET /api/bookings/passenger/:id ============

// PassengerHistory godoc
// @Summary Booking history for a passenger
// @Description Returns every booking sharing the passenger's email, newest first
// @Tags bookings
// @Produce json
// @Param id path string true "Passenger ID"
// @Success 200 {array} models.PassengerBookingHistory
// @Router /api/bookings/passenger/{id} [get]
func (h *BookingHandler) PassengerHistory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid passenger ID"})
		return
	}

	history, err := h.bookingService.PassengerHistory(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if history == nil {
		history = []models.PassengerBookingHistory{}
	}
	c.JSON(http.StatusOK, history)
}

// ============ SEARCH - GET /api/bookings/search ============

// SearchBookings godoc
// @Summary Search bookings by passenger name
// @Tags bookings
// @Produce json
// @Param name query string true "Partial passenger name"
// @Param limit query int false "Max results (max 100)"
// @Success 200 {array} models.BookingSummary
// @Router /api/bookings/search [get]
func (h *BookingHandler) SearchBookings(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'name' is required"})
		return
	}
	limit := parseBoundedInt(c.Query("limit"), defaultListLimit, maxListLimit)

	summaries, err := h.bookingService.SearchBookings(c.Request.Context(), name, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if summaries == nil {
		summaries = []models.BookingSummary{}
	}
	c.JSON(http.StatusOK, summaries)
}

// ============ AVAILABILITY - GET /api/flights/:id/availability ============

// FlightAvailability godoc
// @Summary Seat availability for a flight
// @Description Returns per-cabin availability, served from cache when fresh
// @Tags flights
// @Produce json
// @Param id path string true "Flight ID"
// @Success 200 {object} models.FlightAvailability
// @Failure 404 {object} map[string]interface{} "Flight not found"
// @Router /api/flights/{id}/availability [get]
func (h *BookingHandler) FlightAvailability(c *gin.Context) {
	availability, err := h.inventoryService.GetAvailability(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, availability)
}

// parseBoundedInt parses a positive query integer, falling back to def and
// clamping at max.
func parseBoundedInt(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
