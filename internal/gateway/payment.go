package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/airvoyage/reservation-backend/internal/models"
)

// CreateCheckoutRequest carries everything the payment provider needs to open
// a hosted checkout for one booking.
type CreateCheckoutRequest struct {
	BookingID     uuid.UUID
	Amount        models.Money
	CustomerEmail string
	CustomerName  string
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is the provider's handle for a pending payment.
type CheckoutSession struct {
	ID          string    `json:"id"`
	CheckoutURL string    `json:"checkoutUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// CheckoutStatusKind enumerates the provider-side lifecycle of a checkout.
type CheckoutStatusKind string

const (
	CheckoutPending   CheckoutStatusKind = "pending"
	CheckoutCompleted CheckoutStatusKind = "completed"
	CheckoutExpired   CheckoutStatusKind = "expired"
	CheckoutFailed    CheckoutStatusKind = "failed"
)

// Confirmation is the settled-payment detail attached to a completed checkout.
type Confirmation struct {
	TransactionID string       `json:"transactionId"`
	PaidAt        time.Time    `json:"paidAt"`
	Amount        models.Money `json:"amount"`
}

// CheckoutStatus is the answer to a status poll.
type CheckoutStatus struct {
	Kind          CheckoutStatusKind `json:"kind"`
	Confirmation  *Confirmation      `json:"confirmation,omitempty"`
	FailureReason string             `json:"failureReason,omitempty"`
}

// PaymentGateway is the payment provider contract. CreateCheckout must be
// idempotent on BookingID: retrying for the same booking returns the session
// already opened for it.
type PaymentGateway interface {
	CreateCheckout(ctx context.Context, req CreateCheckoutRequest) (*CheckoutSession, error)
	GetCheckoutStatus(ctx context.Context, checkoutID string) (*CheckoutStatus, error)
}
