package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/airvoyage/reservation-backend/internal/config"
	"github.com/airvoyage/reservation-backend/internal/models"
)

// defaultRetryAfter applies when the provider rate-limits without saying for
// how long.
const defaultRetryAfter = 60

// HTTPNotificationGateway implements NotificationGateway over the ticket
// delivery provider's REST API.
type HTTPNotificationGateway struct {
	config *config.NotifyConfig
	logger *logrus.Logger
	client *http.Client
}

// NewHTTPNotificationGateway creates a new notification gateway client
func NewHTTPNotificationGateway(cfg *config.NotifyConfig, logger *logrus.Logger) *HTTPNotificationGateway {
	return &HTTPNotificationGateway{
		config: cfg,
		logger: logger,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type notifyRequest struct {
	To       string         `json:"to"`
	ToName   string         `json:"toName,omitempty"`
	From     string         `json:"from"`
	Template string         `json:"template"`
	Ticket   TicketDelivery `json:"ticket"`
}

type notifyResponse struct {
	MessageID string `json:"messageId"`
	Detail    string `json:"detail,omitempty"`
}

// SendTicket delivers one issued ticket to the passenger's mailbox.
func (g *HTTPNotificationGateway) SendTicket(ctx context.Context, ticket TicketDelivery, recipient Recipient) (string, error) {
	payload := notifyRequest{
		To:       recipient.Email,
		ToName:   recipient.Name,
		From:     g.config.Sender,
		Template: "ticket-issued",
		Ticket:   ticket,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", models.NewDomainError(models.TagNotificationApiUnavailable, "failed to serialize notification").
			WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+"/v1/messages", bytes.NewBuffer(raw))
	if err != nil {
		return "", models.NewDomainError(models.TagNotificationApiUnavailable, "failed to build notification request").
			WithCause(err)
	}
	req.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithError(err).Error("Failed to call notification API")
		return "", models.NewDomainError(models.TagNotificationApiUnavailable, "notification API unreachable").
			WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", models.NewDomainError(models.TagNotificationApiUnavailable, "failed to read notification response").
			WithCause(err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", models.NewDomainError(models.TagNotificationAuth, "notification API rejected credentials").
			WithField("statusCode", resp.StatusCode)
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return "", models.NewDomainError(models.TagInvalidRecipient, "recipient %s rejected", recipient.Email).
			WithField("recipient", recipient.Email)
	case http.StatusTooManyRequests:
		retryAfter := ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return "", models.NewDomainError(models.TagNotificationRateLimit, "notification API rate limited").
			WithField("retryAfterSeconds", retryAfter)
	default:
		return "", models.NewDomainError(models.TagNotificationApiUnavailable, "notification API returned status %d", resp.StatusCode).
			WithField("statusCode", resp.StatusCode)
	}

	var parsed notifyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", models.NewDomainError(models.TagNotificationApiUnavailable, "unreadable notification response").
			WithCause(err)
	}

	g.logger.WithFields(logrus.Fields{
		"message_id":    parsed.MessageID,
		"ticket_number": ticket.TicketNumber,
	}).Info("Ticket notification delivered")

	return parsed.MessageID, nil
}

// ParseRetryAfter reads a Retry-After header value as either integer seconds
// or an HTTP-date, falling back to 60 seconds when absent or unparseable.
func ParseRetryAfter(value string, now time.Time) int {
	if value == "" {
		return defaultRetryAfter
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return defaultRetryAfter
		}
		return seconds
	}
	if at, err := http.ParseTime(value); err == nil {
		seconds := int(at.Sub(now).Seconds())
		if seconds < 0 {
			return 0
		}
		return seconds
	}
	return defaultRetryAfter
}
