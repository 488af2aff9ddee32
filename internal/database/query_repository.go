package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/airvoyage/reservation-backend/internal/models"
)

// QueryRepository serves the read side: booking summaries, passenger history,
// name search and flight availability. It composes the aggregate repositories
// rather than duplicating their row mapping.
type QueryRepository struct {
	db       *sqlx.DB
	bookings *BookingRepository
	tickets  *TicketRepository
	logger   *logrus.Logger
}

// NewQueryRepository creates a new query repository
func NewQueryRepository(db *sqlx.DB, bookings *BookingRepository, tickets *TicketRepository, logger *logrus.Logger) *QueryRepository {
	return &QueryRepository{
		db:       db,
		bookings: bookings,
		tickets:  tickets,
		logger:   logger,
	}
}

// Summarize builds the read model for one booking.
func (r *QueryRepository) Summarize(ctx context.Context, b *models.Booking) (models.BookingSummary, error) {
	total, err := b.TotalPrice()
	if err != nil {
		return models.BookingSummary{}, err
	}
	numbers, err := r.tickets.NumbersByBookingID(ctx, b.ID)
	if err != nil {
		return models.BookingSummary{}, err
	}
	return models.BookingSummary{
		BookingID:     b.ID,
		PnrCode:       b.PnrCode,
		Status:        b.Status,
		Passengers:    b.Passengers,
		Segments:      b.Segments,
		TotalPrice:    total,
		ExpiresAt:     b.ExpiresAt,
		CreatedAt:     b.CreatedAt,
		TicketNumbers: numbers,
	}, nil
}

// ListBookings returns summaries newest first.
func (r *QueryRepository) ListBookings(ctx context.Context, limit, offset int) ([]models.BookingSummary, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids,
		`SELECT id FROM bookings ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, models.NewDomainError(models.TagBookingPersistence, "failed to list bookings").
			WithCause(err)
	}
	return r.summarizeIDs(ctx, ids)
}

// HistoryByPassengerID returns the booking history of the passenger's email,
// newest first. An unknown passenger id yields an empty history.
func (r *QueryRepository) HistoryByPassengerID(ctx context.Context, passengerID uuid.UUID) ([]models.PassengerBookingHistory, error) {
	var email string
	err := r.db.GetContext(ctx, &email,
		`SELECT email FROM passengers WHERE id = $1`, passengerID)
	if errors.Is(err, sql.ErrNoRows) {
		return []models.PassengerBookingHistory{}, nil
	}
	if err != nil {
		return nil, models.NewDomainError(models.TagBookingPersistence, "failed to load passenger %s", passengerID).
			WithCause(err)
	}

	var ids []uuid.UUID
	err = r.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT b.id
		FROM bookings b
		JOIN passengers p ON p.booking_id = b.id
		WHERE p.email = $1
		ORDER BY b.id`, email)
	if err != nil {
		return nil, models.NewDomainError(models.TagBookingPersistence, "failed to list bookings for passenger %s", passengerID).
			WithCause(err)
	}

	summaries, err := r.summarizeIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	// Newest first
	for i, j := 0, len(summaries)-1; i < j; i, j = i+1, j-1 {
		summaries[i], summaries[j] = summaries[j], summaries[i]
	}
	return []models.PassengerBookingHistory{{Email: email, Bookings: summaries}}, nil
}

// SearchByName finds bookings whose passengers match the given name,
// case-insensitive substring on first or last name.
func (r *QueryRepository) SearchByName(ctx context.Context, name string, limit int) ([]models.BookingSummary, error) {
	var ids []uuid.UUID
	pattern := "%" + name + "%"
	err := r.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT b.id
		FROM bookings b
		JOIN passengers p ON p.booking_id = b.id
		WHERE p.first_name ILIKE $1 OR p.last_name ILIKE $1
		ORDER BY b.id
		LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, models.NewDomainError(models.TagBookingPersistence, "failed to search bookings").
			WithCause(err)
	}
	return r.summarizeIDs(ctx, ids)
}

// Availability reads one flight's seat picture. Returns (nil, nil) when the
// flight is unknown.
func (r *QueryRepository) Availability(ctx context.Context, flightID string) (*models.FlightAvailability, error) {
	var row inventoryRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+inventoryColumns+` FROM flight_inventory WHERE flight_id = $1`, flightID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewDomainError(models.TagInventoryPersistence, "failed to load availability for flight %s", flightID).
			WithCause(err)
	}

	inv, err := row.toAggregate()
	if err != nil {
		return nil, err
	}
	cabins := make([]models.CabinAvailability, 0, len(inv.Buckets))
	for _, cabin := range models.AllCabins() {
		if b, ok := inv.Bucket(cabin); ok {
			cabins = append(cabins, models.CabinAvailability{
				Cabin:     cabin,
				Available: b.Available,
				Capacity:  b.Capacity,
				Price:     b.Price,
			})
		}
	}
	return &models.FlightAvailability{
		FlightID: flightID,
		Cabins:   cabins,
		AsOf:     time.Now().UTC(),
	}, nil
}

func (r *QueryRepository) summarizeIDs(ctx context.Context, ids []uuid.UUID) ([]models.BookingSummary, error) {
	summaries := make([]models.BookingSummary, 0, len(ids))
	for _, id := range ids {
		b, err := r.bookings.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if b == nil {
			continue
		}
		s, err := r.Summarize(ctx, b)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}
