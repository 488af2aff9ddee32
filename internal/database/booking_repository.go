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

type bookingRow struct {
	ID            uuid.UUID  `db:"id"`
	PnrCode       string     `db:"pnr_code"`
	Status        string     `db:"status"`
	ExpiresAt     *time.Time `db:"expires_at"`
	SeatsReleased bool       `db:"seats_released"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
	Version       int64      `db:"version"`
}

type passengerRow struct {
	ID          uuid.UUID  `db:"id"`
	BookingID   uuid.UUID  `db:"booking_id"`
	FirstName   string     `db:"first_name"`
	LastName    string     `db:"last_name"`
	Email       string     `db:"email"`
	DateOfBirth *time.Time `db:"date_of_birth"`
	Gender      string     `db:"gender"`
	Type        string     `db:"type"`
}

type segmentRow struct {
	ID            uuid.UUID `db:"id"`
	BookingID     uuid.UUID `db:"booking_id"`
	FlightID      string    `db:"flight_id"`
	CabinClass    string    `db:"cabin_class"`
	PriceAmount   int64     `db:"price_amount"`
	PriceCurrency string    `db:"price_currency"`
	SeatNumber    *string   `db:"seat_number"`
}

// BookingRepository persists Booking aggregates with optimistic locking and
// appends their events to the outbox in the same transaction.
type BookingRepository struct {
	db     *sqlx.DB
	outbox *OutboxRepository
	logger *logrus.Logger
}

// NewBookingRepository creates a new booking repository
func NewBookingRepository(db *sqlx.DB, outbox *OutboxRepository, logger *logrus.Logger) *BookingRepository {
	return &BookingRepository{
		db:     db,
		outbox: outbox,
		logger: logger,
	}
}

// Create inserts a new booking with its passengers and segments at version 1.
func (r *BookingRepository) Create(ctx context.Context, b *models.Booking) (*models.Booking, error) {
	q := QuerierFrom(ctx, r.db)

	_, err := q.ExecContext(ctx, `
		INSERT INTO bookings (id, pnr_code, status, expires_at, seats_released, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $6, 1)`,
		b.ID, b.PnrCode, string(b.Status), b.ExpiresAt, b.SeatsReleased, b.CreatedAt,
	)
	if err != nil {
		return nil, models.NewDomainError(models.TagBookingPersistence, "failed to create booking %s", b.ID).
			WithField("pnrCode", b.PnrCode).
			WithCause(err)
	}

	for _, p := range b.Passengers {
		_, err := q.ExecContext(ctx, `
			INSERT INTO passengers (id, booking_id, first_name, last_name, email, date_of_birth, gender, type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			p.ID, b.ID, p.FirstName, p.LastName, p.Email, p.DateOfBirth, string(p.Gender), string(p.Type),
		)
		if err != nil {
			return nil, models.NewDomainError(models.TagBookingPersistence, "failed to create passenger for booking %s", b.ID).
				WithCause(err)
		}
	}

	for _, s := range b.Segments {
		_, err := q.ExecContext(ctx, `
			INSERT INTO segments (id, booking_id, flight_id, cabin_class, price_amount, price_currency, seat_number)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			s.ID, b.ID, s.FlightID, string(s.Cabin), s.Price.Amount, string(s.Price.Currency), s.SeatNumber,
		)
		if err != nil {
			return nil, models.NewDomainError(models.TagBookingPersistence, "failed to create segment for booking %s", b.ID).
				WithCause(err)
		}
	}

	if err := r.outbox.Append(ctx, b.DomainEvents()); err != nil {
		return nil, err
	}
	b.Version = 1
	b.ClearEvents()
	return b, nil
}

// Save writes the mutable booking fields back with a compare-and-swap on the
// version column, then appends the buffered events to the outbox.
func (r *BookingRepository) Save(ctx context.Context, b *models.Booking) (*models.Booking, error) {
	q := QuerierFrom(ctx, r.db)

	res, err := q.ExecContext(ctx, `
		UPDATE bookings SET status = $1, expires_at = $2, seats_released = $3, updated_at = $4, version = version + 1
		WHERE id = $5 AND version = $6`,
		string(b.Status), b.ExpiresAt, b.SeatsReleased, time.Now(), b.ID, b.Version,
	)
	if err != nil {
		if isSerializationFailure(err) {
			return nil, models.ErrOptimisticLocking("Booking", b.ID.String(), b.Version, -1)
		}
		return nil, models.NewDomainError(models.TagBookingPersistence, "failed to save booking %s", b.ID).
			WithCause(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, models.NewDomainError(models.TagBookingPersistence, "failed to read save result for booking %s", b.ID).
			WithCause(err)
	}
	if affected == 0 {
		var actual int64
		if err := q.GetContext(ctx, &actual,
			`SELECT version FROM bookings WHERE id = $1`, b.ID); err != nil {
			actual = -1
		}
		return nil, models.ErrOptimisticLocking("Booking", b.ID.String(), b.Version, actual)
	}

	if err := r.outbox.Append(ctx, b.DomainEvents()); err != nil {
		return nil, err
	}
	b.Version++
	b.ClearEvents()
	return b, nil
}

// FindByID loads one booking with its passengers and segments.
// Returns (nil, nil) when the id is unknown.
func (r *BookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return r.findOne(ctx, `WHERE id = $1`, id)
}

// FindByPnr loads one booking by record locator. Returns (nil, nil) when the
// PNR is unknown.
func (r *BookingRepository) FindByPnr(ctx context.Context, pnr string) (*models.Booking, error) {
	return r.findOne(ctx, `WHERE pnr_code = $1`, pnr)
}

func (r *BookingRepository) findOne(ctx context.Context, where string, arg interface{}) (*models.Booking, error) {
	q := QuerierFrom(ctx, r.db)

	var row bookingRow
	err := q.GetContext(ctx, &row,
		`SELECT id, pnr_code, status, expires_at, seats_released, created_at, updated_at, version FROM bookings `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewDomainError(models.TagBookingPersistence, "failed to load booking").
			WithCause(err)
	}
	return r.hydrate(ctx, q, row)
}

// FindExpired lists Held bookings whose deadline strictly precedes the
// cutoff, oldest deadline first.
func (r *BookingRepository) FindExpired(ctx context.Context, before time.Time, limit int) ([]*models.Booking, error) {
	q := QuerierFrom(ctx, r.db)

	var rows []bookingRow
	err := q.SelectContext(ctx, &rows, `
		SELECT id, pnr_code, status, expires_at, seats_released, created_at, updated_at, version
		FROM bookings
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at ASC
		LIMIT $3`,
		string(models.BookingStatusHeld), before, limit,
	)
	if err != nil {
		return nil, models.NewDomainError(models.TagBookingPersistence, "failed to list expired bookings").
			WithCause(err)
	}

	bookings := make([]*models.Booking, 0, len(rows))
	for _, row := range rows {
		b, err := r.hydrate(ctx, q, row)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, nil
}

// PnrExists reports whether a record locator is already taken.
func (r *BookingRepository) PnrExists(ctx context.Context, pnr string) (bool, error) {
	q := QuerierFrom(ctx, r.db)
	var count int
	if err := q.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM bookings WHERE pnr_code = $1`, pnr); err != nil {
		return false, models.NewDomainError(models.TagBookingPersistence, "failed to check PNR").
			WithCause(err)
	}
	return count > 0, nil
}

// hydrate attaches passengers and segments and revalidates through the domain
// constructors so corrupt rows surface BookingPersistence.
func (r *BookingRepository) hydrate(ctx context.Context, q Querier, row bookingRow) (*models.Booking, error) {
	status := models.BookingStatus(row.Status)
	if !status.Valid() {
		return nil, models.NewDomainError(models.TagBookingPersistence, "booking %s has unknown status %q", row.ID, row.Status).
			WithField("field", "status")
	}

	var pRows []passengerRow
	err := q.SelectContext(ctx, &pRows, `
		SELECT id, booking_id, first_name, last_name, email, date_of_birth, gender, type
		FROM passengers WHERE booking_id = $1 ORDER BY id`, row.ID)
	if err != nil {
		return nil, models.NewDomainError(models.TagBookingPersistence, "failed to load passengers for booking %s", row.ID).
			WithCause(err)
	}

	var sRows []segmentRow
	err = q.SelectContext(ctx, &sRows, `
		SELECT id, booking_id, flight_id, cabin_class, price_amount, price_currency, seat_number
		FROM segments WHERE booking_id = $1 ORDER BY id`, row.ID)
	if err != nil {
		return nil, models.NewDomainError(models.TagBookingPersistence, "failed to load segments for booking %s", row.ID).
			WithCause(err)
	}

	passengers := make([]models.Passenger, 0, len(pRows))
	for _, p := range pRows {
		gender := models.Gender(p.Gender)
		ptype := models.PassengerType(p.Type)
		if !gender.Valid() || !ptype.Valid() {
			return nil, models.NewDomainError(models.TagBookingPersistence, "passenger %s of booking %s failed validation", p.ID, row.ID).
				WithField("field", "gender/type")
		}
		passengers = append(passengers, models.Passenger{
			ID:          p.ID,
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			Email:       p.Email,
			DateOfBirth: p.DateOfBirth,
			Gender:      gender,
			Type:        ptype,
		})
	}

	segments := make([]models.BookingSegment, 0, len(sRows))
	for _, s := range sRows {
		price, err := models.NewMoney(s.PriceAmount, models.Currency(s.PriceCurrency))
		if err != nil {
			return nil, models.NewDomainError(models.TagBookingPersistence, "segment %s of booking %s has invalid price", s.ID, row.ID).
				WithField("field", "price").
				WithCause(err)
		}
		cabin := models.CabinClass(s.CabinClass)
		if !cabin.Valid() {
			return nil, models.NewDomainError(models.TagBookingPersistence, "segment %s of booking %s has unknown cabin %q", s.ID, row.ID, s.CabinClass).
				WithField("field", "cabinClass")
		}
		segments = append(segments, models.BookingSegment{
			ID:         s.ID,
			FlightID:   s.FlightID,
			Cabin:      cabin,
			Price:      price,
			SeatNumber: s.SeatNumber,
		})
	}

	return &models.Booking{
		ID:            row.ID,
		PnrCode:       row.PnrCode,
		Status:        status,
		Passengers:    passengers,
		Segments:      segments,
		ExpiresAt:     row.ExpiresAt,
		SeatsReleased: row.SeatsReleased,
		CreatedAt:     row.CreatedAt,
		Version:       row.Version,
	}, nil
}
