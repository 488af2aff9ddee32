package models

import (
	"time"

	"github.com/google/uuid"
)

// Aggregate type discriminators stored in the outbox.
const (
	AggregateBooking   = "Booking"
	AggregateInventory = "FlightInventory"
)

// Event type tags. The outbox stores these in event_type and the publisher
// dispatches on them.
const (
	EventBookingCreated   = "BookingCreated"
	EventBookingConfirmed = "BookingConfirmed"
	EventBookingCancelled = "BookingCancelled"
	EventBookingExpired   = "BookingExpired"
	EventSeatsHeld        = "SeatsHeld"
	EventSeatsReleased    = "SeatsReleased"
	EventTicketIssued     = "TicketIssued"
)

// DomainEvent is produced by aggregates into an in-memory buffer and persisted
// to the outbox in the same transaction as the aggregate write.
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateType() string
	AggregateID() string
}

// EventEnvelope carries the fields shared by every domain event. It embeds
// into concrete events and doubles as the minimal shape consumers decode when
// they only need routing information.
type EventEnvelope struct {
	ID        uuid.UUID `json:"eventId"`
	At        time.Time `json:"occurredAt"`
	AggType   string    `json:"aggregateType"`
	AggID     string    `json:"aggregateId"`
	EventName string    `json:"eventType"`
}

func newEnvelope(eventType, aggType, aggID string, at time.Time) EventEnvelope {
	return EventEnvelope{
		ID:        uuid.New(),
		At:        at,
		AggType:   aggType,
		AggID:     aggID,
		EventName: eventType,
	}
}

func (e EventEnvelope) EventID() uuid.UUID    { return e.ID }
func (e EventEnvelope) EventType() string     { return e.EventName }
func (e EventEnvelope) OccurredAt() time.Time { return e.At }
func (e EventEnvelope) AggregateType() string { return e.AggType }
func (e EventEnvelope) AggregateID() string   { return e.AggID }

// BookingCreatedEvent signals a new booking entered Held state.
type BookingCreatedEvent struct {
	EventEnvelope
	BookingID uuid.UUID `json:"bookingId"`
	PnrCode   string    `json:"pnrCode"`
}

// BookingConfirmedEvent signals a successful payment confirmation.
type BookingConfirmedEvent struct {
	EventEnvelope
	BookingID uuid.UUID `json:"bookingId"`
	PnrCode   string    `json:"pnrCode"`
}

// BookingCancelledEvent signals a cancellation with its business reason.
type BookingCancelledEvent struct {
	EventEnvelope
	BookingID uuid.UUID `json:"bookingId"`
	PnrCode   string    `json:"pnrCode"`
	Reason    string    `json:"reason"`
}

// BookingExpiredEvent signals the hold lapsed before payment.
type BookingExpiredEvent struct {
	EventEnvelope
	BookingID uuid.UUID `json:"bookingId"`
	PnrCode   string    `json:"pnrCode"`
	ExpiredAt time.Time `json:"expiredAt"`
}

// TicketIssuedEvent signals tickets were written for a confirmed booking.
// The notification consumer uses it to deliver the ticket to the passenger.
type TicketIssuedEvent struct {
	EventEnvelope
	BookingID     uuid.UUID `json:"bookingId"`
	PnrCode       string    `json:"pnrCode"`
	TicketNumbers []string  `json:"ticketNumbers"`
}

// SeatsHeldEvent signals seats were counted out of a cabin's availability.
type SeatsHeldEvent struct {
	EventEnvelope
	FlightID string     `json:"flightId"`
	Cabin    CabinClass `json:"cabin"`
	Quantity int        `json:"quantity"`
}

// SeatsReleasedEvent signals seats returned to a cabin's availability.
type SeatsReleasedEvent struct {
	EventEnvelope
	FlightID string     `json:"flightId"`
	Cabin    CabinClass `json:"cabin"`
	Quantity int        `json:"quantity"`
}
