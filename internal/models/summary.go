package models

import (
	"time"

	"github.com/google/uuid"
)

// BookFlightCommand carries everything needed to hold seats and open a
// checkout in one call. Handlers bind it from the request body.
type BookFlightCommand struct {
	Passengers []PassengerInput `json:"passengers" binding:"required,min=1"`
	Segments   []SegmentInput   `json:"segments" binding:"required,min=1"`
}

// PassengerInput is the inbound shape of one traveller.
type PassengerInput struct {
	FirstName   string     `json:"firstName" binding:"required"`
	LastName    string     `json:"lastName" binding:"required"`
	Email       string     `json:"email" binding:"required"`
	DateOfBirth *time.Time `json:"dateOfBirth"`
	Gender      string     `json:"gender" binding:"required"`
	Type        string     `json:"type" binding:"required"`
}

// ToPassenger validates the input into a domain passenger.
func (in PassengerInput) ToPassenger() (Passenger, error) {
	return NewPassenger(in.FirstName, in.LastName, in.Email, in.DateOfBirth,
		Gender(in.Gender), PassengerType(in.Type))
}

// SegmentInput is the inbound shape of one requested flight leg.
type SegmentInput struct {
	FlightID string `json:"flightId" binding:"required"`
	Cabin    string `json:"cabin" binding:"required"`
}

// BookFlightResult is returned once seats are held and a checkout is open.
type BookFlightResult struct {
	BookingID   uuid.UUID `json:"bookingId"`
	PnrCode     string    `json:"pnrCode"`
	Status      string    `json:"status"`
	TotalPrice  Money     `json:"totalPrice"`
	ExpiresAt   time.Time `json:"expiresAt"`
	CheckoutURL string    `json:"checkoutUrl"`
}

// BookingSummary is the read model served by the booking detail endpoints.
type BookingSummary struct {
	BookingID     uuid.UUID        `json:"bookingId"`
	PnrCode       string           `json:"pnrCode"`
	Status        BookingStatus    `json:"status"`
	Passengers    []Passenger      `json:"passengers"`
	Segments      []BookingSegment `json:"segments"`
	TotalPrice    Money            `json:"totalPrice"`
	ExpiresAt     *time.Time       `json:"expiresAt,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	TicketNumbers []string         `json:"ticketNumbers,omitempty"`
}

// PassengerBookingHistory lists a passenger's bookings by email, newest first.
type PassengerBookingHistory struct {
	Email    string           `json:"email"`
	Bookings []BookingSummary `json:"bookings"`
}

// CabinAvailability is the per cabin slice of a flight availability answer.
type CabinAvailability struct {
	Cabin     CabinClass `json:"cabin"`
	Available int        `json:"available"`
	Capacity  int        `json:"capacity"`
	Price     Money      `json:"price"`
}

// FlightAvailability is the read model served by the availability endpoint.
// It is cacheable with a short TTL because holds change it constantly.
type FlightAvailability struct {
	FlightID string              `json:"flightId"`
	Cabins   []CabinAvailability `json:"cabins"`
	AsOf     time.Time           `json:"asOf"`
}
