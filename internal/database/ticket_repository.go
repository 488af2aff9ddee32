package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/airvoyage/reservation-backend/internal/models"
)

// TicketRepository persists issued tickets and their coupons.
type TicketRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewTicketRepository creates a new ticket repository
func NewTicketRepository(db *sqlx.DB, logger *logrus.Logger) *TicketRepository {
	return &TicketRepository{
		db:     db,
		logger: logger,
	}
}

// SaveAll inserts the tickets with their coupons inside the ambient
// transaction. A ticket number collision surfaces TicketAlreadyIssued.
func (r *TicketRepository) SaveAll(ctx context.Context, tickets []models.Ticket) error {
	q := QuerierFrom(ctx, r.db)

	for _, t := range tickets {
		_, err := q.ExecContext(ctx, `
			INSERT INTO tickets (ticket_number, booking_id, pnr_code, status, passenger_id, passenger_name, issued_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			t.TicketNumber, t.BookingID, t.PnrCode, string(t.Status), t.PassengerID, t.PassengerName, t.IssuedAt,
		)
		if err != nil {
			return models.NewDomainError(models.TagBookingPersistence, "failed to save ticket for booking %s", t.BookingID).
				WithField("ticketNumber", t.TicketNumber).
				WithCause(err)
		}
		for _, c := range t.Coupons {
			_, err := q.ExecContext(ctx, `
				INSERT INTO coupons (id, ticket_number, segment_id, flight_id, seat_number, sequence, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				c.ID, t.TicketNumber, c.SegmentID, c.FlightID, c.SeatNumber, c.Sequence, string(c.Status),
			)
			if err != nil {
				return models.NewDomainError(models.TagBookingPersistence, "failed to save coupon for ticket %s", t.TicketNumber).
					WithCause(err)
			}
		}
	}
	return nil
}

// NumberExists reports whether a ticket number is already allocated.
func (r *TicketRepository) NumberExists(ctx context.Context, number string) (bool, error) {
	q := QuerierFrom(ctx, r.db)
	var count int
	if err := q.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM tickets WHERE ticket_number = $1`, number); err != nil {
		return false, models.NewDomainError(models.TagBookingPersistence, "failed to check ticket number").
			WithCause(err)
	}
	return count > 0, nil
}

// ByBookingID lists a booking's issued tickets with coupons, in issue order.
func (r *TicketRepository) ByBookingID(ctx context.Context, bookingID uuid.UUID) ([]models.Ticket, error) {
	q := QuerierFrom(ctx, r.db)

	var tickets []models.Ticket
	err := q.SelectContext(ctx, &tickets, `
		SELECT ticket_number, booking_id, pnr_code, status, passenger_id, passenger_name, issued_at
		FROM tickets WHERE booking_id = $1 ORDER BY issued_at, ticket_number`, bookingID)
	if err != nil {
		return nil, models.NewDomainError(models.TagBookingPersistence, "failed to load tickets for booking %s", bookingID).
			WithCause(err)
	}

	for i := range tickets {
		var coupons []models.Coupon
		err := q.SelectContext(ctx, &coupons, `
			SELECT id, segment_id, flight_id, seat_number, sequence, status
			FROM coupons WHERE ticket_number = $1 ORDER BY sequence`, tickets[i].TicketNumber)
		if err != nil {
			return nil, models.NewDomainError(models.TagBookingPersistence, "failed to load coupons for ticket %s", tickets[i].TicketNumber).
				WithCause(err)
		}
		tickets[i].Coupons = coupons
	}
	return tickets, nil
}

// NumbersByBookingID lists just the ticket numbers of a booking.
func (r *TicketRepository) NumbersByBookingID(ctx context.Context, bookingID uuid.UUID) ([]string, error) {
	q := QuerierFrom(ctx, r.db)
	var numbers []string
	err := q.SelectContext(ctx, &numbers,
		`SELECT ticket_number FROM tickets WHERE booking_id = $1 ORDER BY ticket_number`, bookingID)
	if err != nil {
		return nil, models.NewDomainError(models.TagBookingPersistence, "failed to load ticket numbers for booking %s", bookingID).
			WithCause(err)
	}
	return numbers, nil
}
