package models

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// airlineAccountingPrefix is the three digit airline accounting code that
// leads every ticket number.
const airlineAccountingPrefix = "176"

var ticketNumberRegex = regexp.MustCompile(`^\d{13}$`)

// ValidateTicketNumber checks the IATA thirteen digit ticket number format.
func ValidateTicketNumber(number string) error {
	if !ticketNumberRegex.MatchString(number) {
		return NewDomainError(TagBookingPersistence, "invalid ticket number %q", number).
			WithField("field", "ticketNumber")
	}
	return nil
}

// GenerateTicketNumber produces a thirteen digit ticket number with the
// airline accounting prefix. Uniqueness is enforced by the tickets table's
// primary key; callers retry on collision.
func GenerateTicketNumber() (string, error) {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate ticket number: %w", err)
	}
	digits := make([]byte, 10)
	for i, b := range buf {
		digits[i] = '0' + b%10
	}
	return airlineAccountingPrefix + string(digits), nil
}

// TicketStatus tracks the lifecycle of one issued travel document.
type TicketStatus string

const (
	TicketStatusIssued    TicketStatus = "ISSUED"
	TicketStatusRefunded  TicketStatus = "REFUNDED"
	TicketStatusVoided    TicketStatus = "VOIDED"
	TicketStatusExchanged TicketStatus = "EXCHANGED"
)

// Valid reports whether the ticket status is known.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusIssued, TicketStatusRefunded, TicketStatusVoided, TicketStatusExchanged:
		return true
	}
	return false
}

// CouponStatus tracks the usage of one flight coupon.
type CouponStatus string

const (
	CouponStatusOpen      CouponStatus = "OPEN"
	CouponStatusUsed      CouponStatus = "USED"
	CouponStatusVoid      CouponStatus = "VOID"
	CouponStatusExchanged CouponStatus = "EXCHANGED"
	CouponStatusCheckedIn CouponStatus = "CHECKED_IN"
)

// Valid reports whether the coupon status is known.
func (s CouponStatus) Valid() bool {
	switch s {
	case CouponStatusOpen, CouponStatusUsed, CouponStatusVoid,
		CouponStatusExchanged, CouponStatusCheckedIn:
		return true
	}
	return false
}

// Coupon entitles one passenger to one segment of their itinerary. FlightID
// and SeatNumber are denormalized from the segment at issue time so the
// document stays readable after the booking changes.
type Coupon struct {
	ID         uuid.UUID    `json:"id" db:"id"`
	SegmentID  uuid.UUID    `json:"segmentId" db:"segment_id"`
	FlightID   string       `json:"flightId" db:"flight_id"`
	SeatNumber *string      `json:"seatNumber,omitempty" db:"seat_number"`
	Sequence   int          `json:"sequence" db:"sequence"`
	Status     CouponStatus `json:"status" db:"status"`
}

// Ticket is one passenger's issued travel document, one coupon per segment.
type Ticket struct {
	TicketNumber  string       `json:"ticketNumber" db:"ticket_number"`
	BookingID     uuid.UUID    `json:"bookingId" db:"booking_id"`
	PnrCode       string       `json:"pnrCode" db:"pnr_code"`
	Status        TicketStatus `json:"status" db:"status"`
	PassengerID   uuid.UUID    `json:"passengerId" db:"passenger_id"`
	PassengerName string       `json:"passengerName" db:"passenger_name"`
	Coupons       []Coupon     `json:"coupons"`
	IssuedAt      time.Time    `json:"issuedAt" db:"issued_at"`
}

// IssueTickets creates one Issued ticket per passenger of a confirmed
// booking, with one open coupon per segment in itinerary order.
func IssueTickets(b *Booking, now time.Time) ([]Ticket, error) {
	if b.Status != BookingStatusConfirmed {
		return nil, ErrBookingStatus(BookingStatusConfirmed, b.Status)
	}
	tickets := make([]Ticket, 0, len(b.Passengers))
	for _, p := range b.Passengers {
		number, err := GenerateTicketNumber()
		if err != nil {
			return nil, err
		}
		coupons := make([]Coupon, 0, len(b.Segments))
		for i, seg := range b.Segments {
			coupons = append(coupons, Coupon{
				ID:         uuid.New(),
				SegmentID:  seg.ID,
				FlightID:   seg.FlightID,
				SeatNumber: seg.SeatNumber,
				Sequence:   i + 1,
				Status:     CouponStatusOpen,
			})
		}
		tickets = append(tickets, Ticket{
			TicketNumber:  number,
			BookingID:     b.ID,
			PnrCode:       b.PnrCode,
			Status:        TicketStatusIssued,
			PassengerID:   p.ID,
			PassengerName: p.FirstName + " " + p.LastName,
			Coupons:       coupons,
			IssuedAt:      now.UTC(),
		})
	}
	return tickets, nil
}
