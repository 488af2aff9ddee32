package models

import (
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/airvoyage/reservation-backend/pkg/validator"
)

// BookingStatus is the lifecycle state of a Passenger Name Record.
type BookingStatus string

const (
	BookingStatusHeld      BookingStatus = "HELD"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusTicketed  BookingStatus = "TICKETED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusExpired   BookingStatus = "EXPIRED"
)

// Valid reports whether the status is a known lifecycle state.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusHeld, BookingStatusConfirmed, BookingStatusTicketed,
		BookingStatusCancelled, BookingStatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusExpired
}

// PassengerType classifies a traveller for fare purposes.
type PassengerType string

const (
	PassengerAdult  PassengerType = "ADULT"
	PassengerChild  PassengerType = "CHILD"
	PassengerSenior PassengerType = "SENIOR"
	PassengerInfant PassengerType = "INFANT"
)

// Valid reports whether the passenger type is known.
func (t PassengerType) Valid() bool {
	switch t {
	case PassengerAdult, PassengerChild, PassengerSenior, PassengerInfant:
		return true
	}
	return false
}

// Gender as recorded on the travel document.
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

// Valid reports whether the gender value is known.
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

var iataRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// Route is an origin/destination pair of IATA airport codes.
type Route struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

// NewRoute validates both codes and that they differ.
func NewRoute(origin, destination string) (Route, error) {
	if !iataRegex.MatchString(origin) {
		return Route{}, ErrInvalidAmount("origin %q is not an IATA airport code", origin)
	}
	if !iataRegex.MatchString(destination) {
		return Route{}, ErrInvalidAmount("destination %q is not an IATA airport code", destination)
	}
	if origin == destination {
		return Route{}, ErrInvalidAmount("origin and destination must differ, got %s", origin)
	}
	return Route{Origin: origin, Destination: destination}, nil
}

// Schedule is a departure/arrival pair with arrival strictly after departure.
type Schedule struct {
	Departure time.Time `json:"departure"`
	Arrival   time.Time `json:"arrival"`
}

// NewSchedule validates the ordering of the two instants.
func NewSchedule(departure, arrival time.Time) (Schedule, error) {
	if !arrival.After(departure) {
		return Schedule{}, ErrInvalidAmount("arrival must be after departure")
	}
	return Schedule{Departure: departure, Arrival: arrival}, nil
}

var emailValidator = validator.NewEmailValidator()

// Passenger is owned by exactly one booking.
type Passenger struct {
	ID          uuid.UUID     `json:"id"`
	FirstName   string        `json:"firstName"`
	LastName    string        `json:"lastName"`
	Email       string        `json:"email"`
	DateOfBirth *time.Time    `json:"dateOfBirth,omitempty"`
	Gender      Gender        `json:"gender"`
	Type        PassengerType `json:"type"`
}

// NewPassenger validates and builds a passenger record.
func NewPassenger(firstName, lastName, email string, dateOfBirth *time.Time, gender Gender, ptype PassengerType) (Passenger, error) {
	if firstName == "" {
		return Passenger{}, ErrInvalidAmount("passenger first name is required")
	}
	if lastName == "" {
		return Passenger{}, ErrInvalidAmount("passenger last name is required")
	}
	sanitized, err := emailValidator.Validate(email)
	if err != nil {
		return Passenger{}, ErrInvalidAmount("passenger email: %v", err)
	}
	if dateOfBirth != nil && dateOfBirth.After(time.Now()) {
		return Passenger{}, ErrInvalidAmount("passenger date of birth cannot be in the future")
	}
	if !gender.Valid() {
		return Passenger{}, ErrInvalidAmount("unknown gender %q", gender)
	}
	if !ptype.Valid() {
		return Passenger{}, ErrInvalidAmount("unknown passenger type %q", ptype)
	}
	return Passenger{
		ID:          uuid.New(),
		FirstName:   firstName,
		LastName:    lastName,
		Email:       sanitized,
		DateOfBirth: dateOfBirth,
		Gender:      gender,
		Type:        ptype,
	}, nil
}

// BookingSegment is one flight leg of a booking. Price is the per-seat fare
// captured at hold time; all segments of a booking settle in one currency.
type BookingSegment struct {
	ID         uuid.UUID  `json:"id"`
	FlightID   string     `json:"flightId"`
	Cabin      CabinClass `json:"cabin"`
	Price      Money      `json:"price"`
	SeatNumber *string    `json:"seatNumber,omitempty"`
}

// NewBookingSegment validates and builds a segment.
func NewBookingSegment(flightID string, cabin CabinClass, price Money, seatNumber *string) (BookingSegment, error) {
	if err := ValidateFlightID(flightID); err != nil {
		return BookingSegment{}, ErrInvalidAmount("segment flight id: %v", err)
	}
	if !cabin.Valid() {
		return BookingSegment{}, ErrInvalidAmount("unknown cabin class %q", cabin)
	}
	if !price.Currency.Valid() {
		return BookingSegment{}, ErrUnsupportedCurrency(string(price.Currency))
	}
	return BookingSegment{
		ID:         uuid.New(),
		FlightID:   flightID,
		Cabin:      cabin,
		Price:      price,
		SeatNumber: seatNumber,
	}, nil
}

// Booking is the aggregate root for one Passenger Name Record.
// Invariants: a Held booking always carries ExpiresAt and no other status
// does; Cancelled and Expired are terminal; SeatsReleased flips to true at
// most once, when the held seats go back to the pool.
type Booking struct {
	ID            uuid.UUID
	PnrCode       string
	Status        BookingStatus
	Passengers    []Passenger
	Segments      []BookingSegment
	ExpiresAt     *time.Time
	CreatedAt     time.Time
	SeatsReleased bool
	Version       int64

	events []DomainEvent
}

// NewBooking creates a booking in Held state with a hold deadline and buffers
// the BookingCreated event.
func NewBooking(pnr string, passengers []Passenger, segments []BookingSegment, expiresAt time.Time) (*Booking, error) {
	if err := ValidatePnr(pnr); err != nil {
		return nil, err
	}
	if len(passengers) == 0 {
		return nil, ErrInvalidAmount("booking requires at least one passenger")
	}
	if len(segments) == 0 {
		return nil, ErrInvalidAmount("booking requires at least one segment")
	}
	currency := segments[0].Price.Currency
	for _, seg := range segments[1:] {
		if seg.Price.Currency != currency {
			return nil, ErrCurrencyMismatch(currency, seg.Price.Currency)
		}
	}

	now := time.Now().UTC()
	b := &Booking{
		ID:         uuid.New(),
		PnrCode:    pnr,
		Status:     BookingStatusHeld,
		Passengers: passengers,
		Segments:   segments,
		ExpiresAt:  &expiresAt,
		CreatedAt:  now,
	}
	b.record(BookingCreatedEvent{
		EventEnvelope: newEnvelope(EventBookingCreated, AggregateBooking, b.ID.String(), now),
		BookingID:     b.ID,
		PnrCode:       b.PnrCode,
	})
	return b, nil
}

// TotalPrice sums the per-seat segment fares multiplied by passenger count.
func (b *Booking) TotalPrice() (Money, error) {
	total := ZeroMoney(b.Segments[0].Price.Currency)
	for _, seg := range b.Segments {
		var err error
		total, err = total.Add(seg.Price.MultiplyBy(len(b.Passengers)))
		if err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

// Expired reports whether the hold deadline has strictly passed.
// A booking whose deadline equals now exactly is not yet expired.
func (b *Booking) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && b.ExpiresAt.Before(now)
}

// Confirm transitions Held to Confirmed upon payment success, clearing the
// hold deadline.
func (b *Booking) Confirm(now time.Time) error {
	if b.Status != BookingStatusHeld {
		return ErrBookingStatus(BookingStatusHeld, b.Status)
	}
	if b.Expired(now) {
		return ErrBookingExpired(b.ID.String())
	}
	b.Status = BookingStatusConfirmed
	b.ExpiresAt = nil
	b.record(BookingConfirmedEvent{
		EventEnvelope: newEnvelope(EventBookingConfirmed, AggregateBooking, b.ID.String(), now.UTC()),
		BookingID:     b.ID,
		PnrCode:       b.PnrCode,
	})
	return nil
}

// MarkTicketed transitions Confirmed to Ticketed after ticket issuance and
// buffers the TicketIssued event for the notification consumer.
func (b *Booking) MarkTicketed(ticketNumbers []string, now time.Time) error {
	if b.Status != BookingStatusConfirmed {
		return ErrBookingStatus(BookingStatusConfirmed, b.Status)
	}
	b.Status = BookingStatusTicketed
	b.record(TicketIssuedEvent{
		EventEnvelope: newEnvelope(EventTicketIssued, AggregateBooking, b.ID.String(), now.UTC()),
		BookingID:     b.ID,
		PnrCode:       b.PnrCode,
		TicketNumbers: ticketNumbers,
	})
	return nil
}

// Cancel moves any non-terminal booking to Cancelled, clearing the hold
// deadline.
func (b *Booking) Cancel(reason string) error {
	if b.Status.Terminal() {
		return ErrBookingStatus(BookingStatusHeld, b.Status)
	}
	b.Status = BookingStatusCancelled
	b.ExpiresAt = nil
	b.record(BookingCancelledEvent{
		EventEnvelope: newEnvelope(EventBookingCancelled, AggregateBooking, b.ID.String(), time.Now().UTC()),
		BookingID:     b.ID,
		PnrCode:       b.PnrCode,
		Reason:        reason,
	})
	return nil
}

// MarkExpired moves a booking past its hold deadline to Expired. It is a
// no-op when no deadline is set.
func (b *Booking) MarkExpired() {
	if b.ExpiresAt == nil {
		return
	}
	expiredAt := *b.ExpiresAt
	b.Status = BookingStatusExpired
	b.ExpiresAt = nil
	b.record(BookingExpiredEvent{
		EventEnvelope: newEnvelope(EventBookingExpired, AggregateBooking, b.ID.String(), time.Now().UTC()),
		BookingID:     b.ID,
		PnrCode:       b.PnrCode,
		ExpiredAt:     expiredAt,
	})
}

// MarkSeatsReleased records that every held seat went back to the pool. The
// writer that releases persists the flag in the same transaction; later
// release paths see it and skip, so a booking's seats are returned exactly
// once no matter how many paths fire.
func (b *Booking) MarkSeatsReleased() {
	b.SeatsReleased = true
}

// SeatsByFlight aggregates held seat counts per flight and cabin, one entry
// per segment. Consumers use it to return seats on cancellation.
func (b *Booking) SeatsByFlight() []SeatAllocation {
	allocations := make([]SeatAllocation, 0, len(b.Segments))
	for _, seg := range b.Segments {
		allocations = append(allocations, SeatAllocation{
			FlightID: seg.FlightID,
			Cabin:    seg.Cabin,
			Quantity: len(b.Passengers),
		})
	}
	return allocations
}

// SeatAllocation is the number of seats a booking holds in one cabin of one
// flight.
type SeatAllocation struct {
	FlightID string     `json:"flightId"`
	Cabin    CabinClass `json:"cabin"`
	Quantity int        `json:"quantity"`
}

// PrimaryPassenger returns the lead passenger whose email receives the
// checkout session and the issued tickets.
func (b *Booking) PrimaryPassenger() Passenger {
	return b.Passengers[0]
}

// DomainEvents returns the buffered events in production order.
func (b *Booking) DomainEvents() []DomainEvent {
	return b.events
}

// ClearEvents empties the buffer after the repository persisted the events.
func (b *Booking) ClearEvents() {
	b.events = nil
}

func (b *Booking) record(e DomainEvent) {
	b.events = append(b.events, e)
}
