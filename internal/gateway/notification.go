package gateway

import "context"

// TicketDelivery is the payload handed to the notification provider: one
// issued ticket plus the booking context the template needs.
type TicketDelivery struct {
	TicketNumber string   `json:"ticketNumber"`
	PnrCode      string   `json:"pnrCode"`
	Segments     []string `json:"segments"`
}

// Recipient addresses a ticket delivery.
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// NotificationGateway delivers issued tickets to passengers. Implementations
// surface NotificationRateLimit with the provider's Retry-After value so the
// outbox publisher can back off.
type NotificationGateway interface {
	SendTicket(ctx context.Context, ticket TicketDelivery, recipient Recipient) (messageID string, err error)
}
