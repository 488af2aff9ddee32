package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/airvoyage/reservation-backend/internal/config"
	"github.com/airvoyage/reservation-backend/internal/models"
)

// PolarGateway implements PaymentGateway against the Polar checkout API.
type PolarGateway struct {
	config *config.PolarConfig
	logger *logrus.Logger
	client *http.Client
}

// NewPolarGateway creates a new Polar gateway client
func NewPolarGateway(cfg *config.PolarConfig, logger *logrus.Logger) *PolarGateway {
	return &PolarGateway{
		config: cfg,
		logger: logger,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// polarCheckoutRequest is the create-checkout payload. The booking id rides
// in metadata and backs the idempotency lookup.
type polarCheckoutRequest struct {
	AmountMinorUnits int64             `json:"amount"`
	Currency         string            `json:"currency"`
	CustomerEmail    string            `json:"customer_email"`
	CustomerName     string            `json:"customer_name,omitempty"`
	SuccessURL       string            `json:"success_url"`
	CancelURL        string            `json:"cancel_url,omitempty"`
	Metadata         map[string]string `json:"metadata"`
}

type polarCheckoutResponse struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	Status     string            `json:"status"`
	ExpiresAt  time.Time         `json:"expires_at"`
	Amount     int64             `json:"amount"`
	Currency   string            `json:"currency"`
	PaidAt     *time.Time        `json:"paid_at,omitempty"`
	PaymentID  string            `json:"payment_id,omitempty"`
	Detail     string            `json:"detail,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type polarListResponse struct {
	Items []polarCheckoutResponse `json:"items"`
}

// CreateCheckout opens a hosted checkout for the booking. A session already
// opened for the same booking id is returned instead of a new one.
func (g *PolarGateway) CreateCheckout(ctx context.Context, req CreateCheckoutRequest) (*CheckoutSession, error) {
	if !req.Amount.Currency.Valid() {
		return nil, models.ErrUnsupportedCurrency(string(req.Amount.Currency))
	}

	// Idempotency on booking id: reuse the open session if one exists
	if existing, err := g.findByBookingID(ctx, req.BookingID.String()); err == nil && existing != nil {
		g.logger.WithFields(logrus.Fields{
			"booking_id":  req.BookingID,
			"checkout_id": existing.ID,
		}).Info("Reusing existing checkout session")
		return existing, nil
	}

	payload := polarCheckoutRequest{
		AmountMinorUnits: req.Amount.Amount,
		Currency:         string(req.Amount.Currency),
		CustomerEmail:    req.CustomerEmail,
		CustomerName:     req.CustomerName,
		SuccessURL:       req.SuccessURL,
		CancelURL:        req.CancelURL,
		Metadata:         map[string]string{"bookingId": req.BookingID.String()},
	}

	body, status, err := g.do(ctx, http.MethodPost, "/v1/checkouts", payload)
	if err != nil {
		return nil, err
	}

	var resp polarCheckoutResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, models.NewDomainError(models.TagPaymentApiUnavailable, "unreadable checkout response").
			WithCause(err)
	}

	switch status {
	case http.StatusOK, http.StatusCreated:
	case http.StatusPaymentRequired, http.StatusUnprocessableEntity:
		reason := resp.Detail
		if reason == "" {
			reason = fmt.Sprintf("checkout rejected with status %d", status)
		}
		if strings.Contains(strings.ToLower(reason), "currency") {
			return nil, models.ErrUnsupportedCurrency(string(req.Amount.Currency))
		}
		return nil, models.NewDomainError(models.TagPaymentDeclined, "payment declined: %s", reason).
			WithField("reason", reason)
	default:
		return nil, models.NewDomainError(models.TagPaymentApiUnavailable, "checkout API returned status %d", status).
			WithField("statusCode", status)
	}

	if resp.URL == "" {
		return nil, models.NewDomainError(models.TagPaymentApiUnavailable, "checkout response missing URL")
	}

	g.logger.WithFields(logrus.Fields{
		"booking_id":  req.BookingID,
		"checkout_id": resp.ID,
	}).Info("Checkout session created")

	return &CheckoutSession{
		ID:          resp.ID,
		CheckoutURL: resp.URL,
		ExpiresAt:   resp.ExpiresAt,
	}, nil
}

// GetCheckoutStatus polls the provider-side state of a checkout.
func (g *PolarGateway) GetCheckoutStatus(ctx context.Context, checkoutID string) (*CheckoutStatus, error) {
	body, status, err := g.do(ctx, http.MethodGet, "/v1/checkouts/"+url.PathEscape(checkoutID), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, models.NewDomainError(models.TagCheckoutNotFound, "checkout %s not found", checkoutID).
			WithField("checkoutId", checkoutID)
	}
	if status != http.StatusOK {
		return nil, models.NewDomainError(models.TagPaymentApiUnavailable, "checkout API returned status %d", status).
			WithField("statusCode", status)
	}

	var resp polarCheckoutResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, models.NewDomainError(models.TagPaymentApiUnavailable, "unreadable checkout response").
			WithCause(err)
	}
	return g.toStatus(resp)
}

func (g *PolarGateway) toStatus(resp polarCheckoutResponse) (*CheckoutStatus, error) {
	switch resp.Status {
	case "open", "pending":
		return &CheckoutStatus{Kind: CheckoutPending}, nil
	case "succeeded", "confirmed":
		amount, err := models.NewMoney(resp.Amount, models.Currency(strings.ToUpper(resp.Currency)))
		if err != nil {
			return nil, models.NewDomainError(models.TagPaymentApiUnavailable, "checkout reports invalid amount").
				WithCause(err)
		}
		confirmation := &Confirmation{
			TransactionID: resp.PaymentID,
			Amount:        amount,
		}
		if resp.PaidAt != nil {
			confirmation.PaidAt = *resp.PaidAt
		}
		return &CheckoutStatus{Kind: CheckoutCompleted, Confirmation: confirmation}, nil
	case "expired":
		return &CheckoutStatus{Kind: CheckoutExpired}, nil
	case "failed":
		return &CheckoutStatus{Kind: CheckoutFailed, FailureReason: resp.Detail}, nil
	default:
		return nil, models.NewDomainError(models.TagPaymentApiUnavailable, "unknown checkout status %q", resp.Status).
			WithField("status", resp.Status)
	}
}

// findByBookingID looks up an open session carrying the booking id in its
// metadata. Lookup errors are swallowed; worst case we create a duplicate
// request the provider itself deduplicates.
func (g *PolarGateway) findByBookingID(ctx context.Context, bookingID string) (*CheckoutSession, error) {
	path := "/v1/checkouts?metadata.bookingId=" + url.QueryEscape(bookingID) + "&status=open"
	body, status, err := g.do(ctx, http.MethodGet, path, nil)
	if err != nil || status != http.StatusOK {
		return nil, err
	}

	var list polarListResponse
	if err := json.Unmarshal(body, &list); err != nil || len(list.Items) == 0 {
		return nil, nil
	}
	item := list.Items[0]
	return &CheckoutSession{
		ID:          item.ID,
		CheckoutURL: item.URL,
		ExpiresAt:   item.ExpiresAt,
	}, nil
}

// do executes one API call and returns the raw body with the status code.
// Transport failures surface PaymentApiUnavailable.
func (g *PolarGateway) do(ctx context.Context, method, path string, payload interface{}) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.config.BaseURL+path, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.config.AccessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithError(err).Error("Failed to call checkout API")
		return nil, 0, models.NewDomainError(models.TagPaymentApiUnavailable, "checkout API unreachable").
			WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, models.NewDomainError(models.TagPaymentApiUnavailable, "failed to read checkout response").
			WithCause(err)
	}

	g.logger.WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status_code": resp.StatusCode,
	}).Debug("Checkout API response received")

	return body, resp.StatusCode, nil
}
