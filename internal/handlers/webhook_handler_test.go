package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airvoyage/reservation-backend/internal/database"
	"github.com/airvoyage/reservation-backend/internal/services"
	"github.com/airvoyage/reservation-backend/pkg/signature"
)

const webhookTestSecret = "whsec_local_test"

func testHandlerLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newHandlerDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

// newWebhookRouter builds the webhook route over a scripted booking database.
// The audit trail gets its own unscripted connection; audit writes are
// best-effort and their failures never reach the response.
func newWebhookRouter(t *testing.T, bookingDB *sqlx.DB) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := testHandlerLogger()

	outboxRepo := database.NewOutboxRepository(bookingDB, logger)
	bookingRepo := database.NewBookingRepository(bookingDB, outboxRepo, logger)
	ticketRepo := database.NewTicketRepository(bookingDB, logger)
	queryRepo := database.NewQueryRepository(bookingDB, bookingRepo, ticketRepo, logger)
	txManager := database.NewTxManager(bookingDB, logger)
	inventoryRepo := database.NewInventoryRepository(bookingDB, outboxRepo, logger)
	inventoryService := services.NewInventoryService(inventoryRepo, queryRepo, txManager, nil, 15*time.Minute, logger)
	bookingService := services.NewBookingService(
		bookingRepo, ticketRepo, queryRepo, inventoryService,
		nil, txManager, 15*time.Minute, "", logger,
	)

	auditDB, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { auditDB.Close() })
	auditService := services.NewAuditService(
		database.NewBookingAuditRepository(sqlx.NewDb(auditDB, "postgres"), logger), logger)

	router := gin.New()
	handler := NewWebhookHandler(bookingService, auditService, webhookTestSecret, logger)
	router.POST("/api/webhooks/polar", handler.HandlePolarWebhook)
	return router
}

func postWebhook(router *gin.Engine, body []byte, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/polar", bytes.NewReader(body))
	if sig != "" {
		req.Header.Set("Webhook-Signature", sig)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func signedBody(body []byte) string {
	return signature.Sign([]byte(webhookTestSecret), body)
}

func checkoutUpdatedBody(t *testing.T, status, bookingID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"type": "checkout.updated",
		"data": map[string]interface{}{
			"id":       "co_test",
			"status":   status,
			"metadata": map[string]string{"bookingId": bookingID},
		},
	})
	require.NoError(t, err)
	return body
}

func webhookBookingColumns() []string {
	return []string{"id", "pnr_code", "status", "expires_at", "seats_released", "created_at", "updated_at", "version"}
}

func TestHandlePolarWebhookSignature(t *testing.T) {
	t.Run("missing signature is rejected", func(t *testing.T) {
		db, _ := newHandlerDB(t)
		router := newWebhookRouter(t, db)

		w := postWebhook(router, checkoutUpdatedBody(t, "succeeded", uuid.NewString()), "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("tampered payload is rejected", func(t *testing.T) {
		db, _ := newHandlerDB(t)
		router := newWebhookRouter(t, db)

		body := checkoutUpdatedBody(t, "succeeded", uuid.NewString())
		sig := signedBody(body)
		tampered := bytes.Replace(body, []byte("succeeded"), []byte("failed999"), 1)

		w := postWebhook(router, tampered, sig)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("signature from the wrong secret is rejected", func(t *testing.T) {
		db, _ := newHandlerDB(t)
		router := newWebhookRouter(t, db)

		body := checkoutUpdatedBody(t, "succeeded", uuid.NewString())
		w := postWebhook(router, body, signature.Sign([]byte("somebody-elses-secret"), body))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestHandlePolarWebhookPayload(t *testing.T) {
	t.Run("malformed JSON with a valid signature is a bad request", func(t *testing.T) {
		db, _ := newHandlerDB(t)
		router := newWebhookRouter(t, db)

		body := []byte(`{"type": "checkout.updated",`)
		w := postWebhook(router, body, signedBody(body))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("succeeded checkout without a booking id is a bad request", func(t *testing.T) {
		db, _ := newHandlerDB(t)
		router := newWebhookRouter(t, db)

		body := checkoutUpdatedBody(t, "succeeded", "not-a-uuid")
		w := postWebhook(router, body, signedBody(body))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("non-checkout events are acknowledged", func(t *testing.T) {
		db, _ := newHandlerDB(t)
		router := newWebhookRouter(t, db)

		body := []byte(`{"type": "subscription.created", "data": {"id": "sub_1"}}`)
		w := postWebhook(router, body, signedBody(body))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("expired checkout is acknowledged without touching the booking", func(t *testing.T) {
		db, mock := newHandlerDB(t)
		router := newWebhookRouter(t, db)

		body := checkoutUpdatedBody(t, "expired", uuid.NewString())
		w := postWebhook(router, body, signedBody(body))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestHandlePolarWebhookClassification(t *testing.T) {
	t.Run("business failure is acknowledged as not applied", func(t *testing.T) {
		db, mock := newHandlerDB(t)
		router := newWebhookRouter(t, db)
		bookingID := uuid.New()

		// Unknown booking: redelivery can never fix it, so the provider must
		// stop retrying.
		mock.ExpectBegin()
		mock.ExpectQuery("FROM bookings WHERE id").
			WithArgs(bookingID).
			WillReturnRows(sqlmock.NewRows(webhookBookingColumns()))
		mock.ExpectRollback()

		body := checkoutUpdatedBody(t, "succeeded", bookingID.String())
		w := postWebhook(router, body, signedBody(body))
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["received"])
		assert.Equal(t, false, resp["applied"])
		assert.Equal(t, "BookingNotFound", resp["reason"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("transient failure asks the provider to redeliver", func(t *testing.T) {
		db, mock := newHandlerDB(t)
		router := newWebhookRouter(t, db)
		bookingID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("FROM bookings WHERE id").
			WithArgs(bookingID).
			WillReturnError(errors.New("connection reset by peer"))
		mock.ExpectRollback()

		body := checkoutUpdatedBody(t, "succeeded", bookingID.String())
		w := postWebhook(router, body, signedBody(body))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already ticketed booking is applied idempotently", func(t *testing.T) {
		db, mock := newHandlerDB(t)
		router := newWebhookRouter(t, db)
		bookingID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("FROM bookings WHERE id").
			WithArgs(bookingID).
			WillReturnRows(sqlmock.NewRows(webhookBookingColumns()).
				AddRow(bookingID, "AB12CD", "TICKETED", nil, false, time.Now(), time.Now(), int64(3)))
		mock.ExpectQuery("FROM passengers").
			WillReturnRows(sqlmock.NewRows([]string{"id", "booking_id", "first_name", "last_name", "email", "date_of_birth", "gender", "type"}).
				AddRow(uuid.New(), bookingID, "Ada", "Lovelace", "ada@example.com", nil, "FEMALE", "ADULT"))
		mock.ExpectQuery("FROM segments").
			WillReturnRows(sqlmock.NewRows([]string{"id", "booking_id", "flight_id", "cabin_class", "price_amount", "price_currency", "seat_number"}).
				AddRow(uuid.New(), bookingID, "AV100", "ECONOMY", int64(25000), "EUR", nil))
		mock.ExpectCommit()

		body := checkoutUpdatedBody(t, "succeeded", bookingID.String())
		w := postWebhook(router, body, signedBody(body))
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["applied"])
		assert.Equal(t, "TICKETED", resp["status"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
