package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/airvoyage/reservation-backend/internal/database"
	"github.com/airvoyage/reservation-backend/internal/gateway"
	"github.com/airvoyage/reservation-backend/internal/models"
)

const (
	// bookFlightTimeout caps the whole forward path of the saga.
	bookFlightTimeout = 30 * time.Second

	// compensationStepTimeout bounds each best-effort compensation step.
	compensationStepTimeout = 10 * time.Second

	// pnrAttempts and ticketNumberAttempts bound collision retries on the
	// random identifier generators.
	pnrAttempts          = 5
	ticketNumberAttempts = 3
)

// BookingService drives the booking saga: hold seats, persist the booking,
// open a checkout, and compensate when any forward step fails.
type BookingService struct {
	bookings   *database.BookingRepository
	tickets    *database.TicketRepository
	queries    *database.QueryRepository
	inventory  *InventoryService
	payments   gateway.PaymentGateway
	tx         *database.TxManager
	holdTTL    time.Duration
	successURL string
	logger     *logrus.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(
	bookings *database.BookingRepository,
	tickets *database.TicketRepository,
	queries *database.QueryRepository,
	inventory *InventoryService,
	payments gateway.PaymentGateway,
	tx *database.TxManager,
	holdTTL time.Duration,
	successURL string,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		bookings:   bookings,
		tickets:    tickets,
		queries:    queries,
		inventory:  inventory,
		payments:   payments,
		tx:         tx,
		holdTTL:    holdTTL,
		successURL: successURL,
		logger:     logger,
	}
}

// BookFlight runs the forward path: hold every requested segment, persist the
// booking in Held, then open a checkout session. Holds and the booking commit
// atomically; a checkout failure afterwards triggers compensation and the
// original error is surfaced.
func (s *BookingService) BookFlight(ctx context.Context, cmd models.BookFlightCommand) (*models.BookFlightResult, error) {
	ctx, cancel := context.WithTimeout(ctx, bookFlightTimeout)
	defer cancel()

	passengers := make([]models.Passenger, 0, len(cmd.Passengers))
	for _, in := range cmd.Passengers {
		p, err := in.ToPassenger()
		if err != nil {
			return nil, err
		}
		passengers = append(passengers, p)
	}
	if len(cmd.Segments) == 0 {
		return nil, models.ErrInvalidAmount("booking requires at least one segment")
	}

	var booking *models.Booking
	var err error

	// Holds and the booking commit in one transaction. Under REPEATABLE READ
	// a lost seat race aborts the whole transaction, so the retry lives here,
	// around a fresh transaction per attempt.
	for attempt := 1; attempt <= casRetries; attempt++ {
		booking = nil
		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			segments := make([]models.BookingSegment, 0, len(cmd.Segments))
			for _, in := range cmd.Segments {
				cabin := models.CabinClass(in.Cabin)
				if !cabin.Valid() {
					return models.ErrInvalidAmount("unknown cabin class %q", in.Cabin)
				}

				res, err := s.inventory.HoldSeats(ctx, in.FlightID, cabin, len(passengers))
				if err != nil {
					return err
				}

				segment, err := models.NewBookingSegment(in.FlightID, cabin, res.UnitPrice, nil)
				if err != nil {
					return err
				}
				segments = append(segments, segment)
			}

			pnr, err := s.allocatePnr(ctx)
			if err != nil {
				return err
			}

			b, err := models.NewBooking(pnr, passengers, segments, time.Now().Add(s.holdTTL))
			if err != nil {
				return err
			}

			booking, err = s.bookings.Create(ctx, b)
			return err
		})
		if err == nil || !models.HasTag(err, models.TagOptimisticLocking) {
			break
		}
		s.logger.WithField("attempt", attempt).Warn("Lost a seat race holding segments, retrying booking")
	}
	if err != nil {
		// Rollback already undid holds and booking; nothing to compensate.
		return nil, s.sagaError(ctx, err)
	}

	total, err := booking.TotalPrice()
	if err != nil {
		s.compensate(booking, err)
		return nil, err
	}

	primary := booking.PrimaryPassenger()
	checkout, err := s.payments.CreateCheckout(ctx, gateway.CreateCheckoutRequest{
		BookingID:     booking.ID,
		Amount:        total,
		CustomerEmail: primary.Email,
		CustomerName:  primary.FirstName + " " + primary.LastName,
		SuccessURL:    s.successURL,
	})
	if err != nil {
		err = s.sagaError(ctx, err)
		s.compensate(booking, err)
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"pnr_code":    booking.PnrCode,
		"checkout_id": checkout.ID,
		"total":       total.String(),
	}).Info("Booking held and checkout opened")

	return &models.BookFlightResult{
		BookingID:   booking.ID,
		PnrCode:     booking.PnrCode,
		Status:      string(booking.Status),
		TotalPrice:  total,
		ExpiresAt:   *booking.ExpiresAt,
		CheckoutURL: checkout.CheckoutURL,
	}, nil
}

// ConfirmBooking is called on payment success. Held bookings confirm, get
// their tickets issued and move to Ticketed in one transaction; an already
// Ticketed booking returns as-is so webhook redeliveries stay harmless.
func (s *BookingService) ConfirmBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var confirmed *models.Booking

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		booking, err := s.bookings.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if booking == nil {
			return models.ErrBookingNotFound(id.String())
		}
		if booking.Status == models.BookingStatusTicketed {
			confirmed = booking
			return nil
		}

		now := time.Now()
		if err := booking.Confirm(now); err != nil {
			return err
		}
		booking, err = s.bookings.Save(ctx, booking)
		if err != nil {
			return err
		}

		tickets, err := s.issueTickets(ctx, booking, now)
		if err != nil {
			return err
		}
		if err := s.tickets.SaveAll(ctx, tickets); err != nil {
			return err
		}

		numbers := make([]string, 0, len(tickets))
		for _, t := range tickets {
			numbers = append(numbers, t.TicketNumber)
		}
		if err := booking.MarkTicketed(numbers, now); err != nil {
			return err
		}
		confirmed, err = s.bookings.Save(ctx, booking)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": confirmed.ID,
		"pnr_code":   confirmed.PnrCode,
	}).Info("Booking confirmed and ticketed")
	return confirmed, nil
}

// CancelBooking cancels a non-terminal booking and releases its seats in the
// same transaction.
func (s *BookingService) CancelBooking(ctx context.Context, id uuid.UUID, reason string) (*models.Booking, error) {
	var cancelled *models.Booking

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		booking, err := s.bookings.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if booking == nil {
			return models.ErrBookingNotFound(id.String())
		}

		if err := booking.Cancel(reason); err != nil {
			return err
		}

		if !booking.SeatsReleased {
			for _, alloc := range booking.SeatsByFlight() {
				err := s.inventory.ReleaseSeats(ctx, alloc.FlightID, alloc.Cabin, alloc.Quantity)
				if models.HasTag(err, models.TagInventoryOvercap) {
					// Seats already returned by another path
					continue
				}
				if err != nil {
					return err
				}
			}
			booking.MarkSeatsReleased()
		}

		cancelled, err = s.bookings.Save(ctx, booking)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": cancelled.ID,
		"pnr_code":   cancelled.PnrCode,
		"reason":     reason,
	}).Info("Booking cancelled")
	return cancelled, nil
}

// GetBooking loads one booking by id.
func (s *BookingService) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.ErrBookingNotFound(id.String())
	}
	return booking, nil
}

// GetBookingByPnr loads one booking by record locator.
func (s *BookingService) GetBookingByPnr(ctx context.Context, pnr string) (*models.Booking, error) {
	booking, err := s.bookings.FindByPnr(ctx, pnr)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.ErrBookingNotFound(pnr)
	}
	return booking, nil
}

// Summarize builds the read model for one booking.
func (s *BookingService) Summarize(ctx context.Context, booking *models.Booking) (models.BookingSummary, error) {
	return s.queries.Summarize(ctx, booking)
}

// ListBookings returns booking summaries, newest first.
func (s *BookingService) ListBookings(ctx context.Context, limit, offset int) ([]models.BookingSummary, error) {
	return s.queries.ListBookings(ctx, limit, offset)
}

// PassengerHistory returns every booking sharing the passenger's email.
func (s *BookingService) PassengerHistory(ctx context.Context, passengerID uuid.UUID) ([]models.PassengerBookingHistory, error) {
	return s.queries.HistoryByPassengerID(ctx, passengerID)
}

// SearchBookings finds bookings by partial passenger name.
func (s *BookingService) SearchBookings(ctx context.Context, name string, limit int) ([]models.BookingSummary, error) {
	return s.queries.SearchByName(ctx, name, limit)
}

// allocatePnr draws record locators until one is free among active bookings.
func (s *BookingService) allocatePnr(ctx context.Context) (string, error) {
	for i := 0; i < pnrAttempts; i++ {
		pnr, err := models.GeneratePnr()
		if err != nil {
			return "", err
		}
		taken, err := s.bookings.PnrExists(ctx, pnr)
		if err != nil {
			return "", err
		}
		if !taken {
			return pnr, nil
		}
	}
	return "", models.NewDomainError(models.TagBookingPersistence, "could not allocate a free PNR after %d attempts", pnrAttempts)
}

// issueTickets allocates collision-free ticket numbers for every passenger.
func (s *BookingService) issueTickets(ctx context.Context, booking *models.Booking, now time.Time) ([]models.Ticket, error) {
	for i := 0; i < ticketNumberAttempts; i++ {
		tickets, err := models.IssueTickets(booking, now)
		if err != nil {
			return nil, err
		}

		collision := false
		for _, t := range tickets {
			exists, err := s.tickets.NumberExists(ctx, t.TicketNumber)
			if err != nil {
				return nil, err
			}
			if exists {
				collision = true
				break
			}
		}
		if !collision {
			return tickets, nil
		}
	}
	return nil, models.ErrTicketAlreadyIssued(booking.PnrCode)
}

// compensate rolls the saga back after the checkout step failed: cancel the
// booking and return every held seat in one fresh transaction, so the release
// and the released marker land atomically. Compensation failures are logged,
// never surfaced; the caller keeps the original error and the reaper picks up
// any hold this could not undo.
func (s *BookingService) compensate(booking *models.Booking, cause error) {
	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"error":      cause.Error(),
	}).Warn("Booking saga failed, compensating")

	ctx, cancel := context.WithTimeout(context.Background(), compensationStepTimeout)
	defer cancel()

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		fresh, err := s.bookings.FindByID(ctx, booking.ID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return nil
		}
		if fresh.Status.Terminal() && fresh.SeatsReleased {
			return nil
		}

		if !fresh.Status.Terminal() {
			if err := fresh.Cancel("checkout failed"); err != nil {
				return err
			}
		}

		if !fresh.SeatsReleased {
			for _, alloc := range fresh.SeatsByFlight() {
				err := s.inventory.ReleaseSeats(ctx, alloc.FlightID, alloc.Cabin, alloc.Quantity)
				if models.HasTag(err, models.TagInventoryOvercap) {
					continue
				}
				if err != nil {
					return err
				}
			}
			fresh.MarkSeatsReleased()
		}

		_, err = s.bookings.Save(ctx, fresh)
		return err
	})
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).
			Error("Compensation failed, hold left for the expiration reaper")
	}
}

// sagaError maps a deadline overrun onto the timeout tag, leaving other
// errors untouched.
func (s *BookingService) sagaError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.ErrRequestTimeout("bookFlight")
	}
	return err
}
