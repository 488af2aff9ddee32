package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airvoyage/reservation-backend/internal/config"
	"github.com/airvoyage/reservation-backend/internal/models"
)

func notifyTestGateway(t *testing.T, handler http.HandlerFunc) *HTTPNotificationGateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewHTTPNotificationGateway(&config.NotifyConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Sender:  "tickets@airvoyage.example",
		Timeout: 5 * time.Second,
	}, testLogger())
}

func testDelivery() (TicketDelivery, Recipient) {
	return TicketDelivery{
			TicketNumber: "1761234567890",
			PnrCode:      "AB12CD",
			Segments:     []string{"AV100"},
		}, Recipient{
			Email: "ada@example.com",
			Name:  "Ada Lovelace",
		}
}

func TestSendTicket(t *testing.T) {
	t.Run("delivers and returns the message id", func(t *testing.T) {
		var captured map[string]interface{}
		gw := notifyTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{"messageId": "msg_1"})
		})

		ticket, recipient := testDelivery()
		id, err := gw.SendTicket(context.Background(), ticket, recipient)
		require.NoError(t, err)
		assert.Equal(t, "msg_1", id)
		assert.Equal(t, "ada@example.com", captured["to"])
		assert.Equal(t, "tickets@airvoyage.example", captured["from"])
	})

	t.Run("maps credential rejection", func(t *testing.T) {
		gw := notifyTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		ticket, recipient := testDelivery()
		_, err := gw.SendTicket(context.Background(), ticket, recipient)
		assert.True(t, models.HasTag(err, models.TagNotificationAuth))
	})

	t.Run("maps an invalid recipient", func(t *testing.T) {
		gw := notifyTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		})

		ticket, recipient := testDelivery()
		_, err := gw.SendTicket(context.Background(), ticket, recipient)
		assert.True(t, models.HasTag(err, models.TagInvalidRecipient))
	})

	t.Run("surfaces the rate limit window", func(t *testing.T) {
		gw := notifyTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "120")
			w.WriteHeader(http.StatusTooManyRequests)
		})

		ticket, recipient := testDelivery()
		_, err := gw.SendTicket(context.Background(), ticket, recipient)
		require.True(t, models.HasTag(err, models.TagNotificationRateLimit))
		assert.Equal(t, 120, models.AsDomainError(err).Fields["retryAfterSeconds"])
	})

	t.Run("maps server errors to unavailable", func(t *testing.T) {
		gw := notifyTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		ticket, recipient := testDelivery()
		_, err := gw.SendTicket(context.Background(), ticket, recipient)
		assert.True(t, models.HasTag(err, models.TagNotificationApiUnavailable))
	})
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	t.Run("integer seconds", func(t *testing.T) {
		assert.Equal(t, 90, ParseRetryAfter("90", now))
		assert.Equal(t, 0, ParseRetryAfter("0", now))
	})

	t.Run("negative seconds fall back to the default", func(t *testing.T) {
		assert.Equal(t, 60, ParseRetryAfter("-5", now))
	})

	t.Run("HTTP date", func(t *testing.T) {
		at := now.Add(2 * time.Minute)
		assert.Equal(t, 120, ParseRetryAfter(at.Format(http.TimeFormat), now))
	})

	t.Run("HTTP date in the past clamps to zero", func(t *testing.T) {
		at := now.Add(-time.Minute)
		assert.Equal(t, 0, ParseRetryAfter(at.Format(http.TimeFormat), now))
	})

	t.Run("absent or garbage values default to sixty seconds", func(t *testing.T) {
		assert.Equal(t, 60, ParseRetryAfter("", now))
		assert.Equal(t, 60, ParseRetryAfter("soon", now))
	})
}
