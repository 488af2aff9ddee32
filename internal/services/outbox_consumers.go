package services

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/airvoyage/reservation-backend/internal/database"
	"github.com/airvoyage/reservation-backend/internal/gateway"
	"github.com/airvoyage/reservation-backend/internal/models"
)

// SeatReleaseConsumer returns a booking's seats when it leaves the active
// path. Cancellation and expiry normally release in-line and persist the
// booking's released marker in the same transaction, so a redelivery here
// finds the marker and does nothing. The consumer only acts when a
// cancellation committed without its release.
type SeatReleaseConsumer struct {
	bookings  *database.BookingRepository
	inventory *InventoryService
	tx        *database.TxManager
	logger    *logrus.Logger
}

// NewSeatReleaseConsumer creates a new seat release consumer
func NewSeatReleaseConsumer(
	bookings *database.BookingRepository,
	inventory *InventoryService,
	tx *database.TxManager,
	logger *logrus.Logger,
) *SeatReleaseConsumer {
	return &SeatReleaseConsumer{
		bookings:  bookings,
		inventory: inventory,
		tx:        tx,
		logger:    logger,
	}
}

// Handle releases every segment's seats for the booking named in the event,
// unless the booking is already marked released. Release and marker commit
// together, so a crash between them cannot double-count a seat.
func (c *SeatReleaseConsumer) Handle(ctx context.Context, msg models.OutboxMessage) error {
	var event models.BookingCancelledEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return models.ErrMalformedPayload(err)
	}

	return c.tx.WithinTx(ctx, func(ctx context.Context) error {
		booking, err := c.bookings.FindByID(ctx, event.BookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			c.logger.WithField("booking_id", event.BookingID).Warn("Seat release event for unknown booking")
			return nil
		}
		if booking.SeatsReleased {
			c.logger.WithField("booking_id", booking.ID).Debug("Seats already returned, skipping")
			return nil
		}

		for _, alloc := range booking.SeatsByFlight() {
			err := c.inventory.ReleaseSeats(ctx, alloc.FlightID, alloc.Cabin, alloc.Quantity)
			if models.HasTag(err, models.TagInventoryOvercap) {
				// Seats already back in the pool
				continue
			}
			if err != nil {
				return err
			}
		}
		booking.MarkSeatsReleased()

		_, err = c.bookings.Save(ctx, booking)
		return err
	})
}

// TicketNotificationConsumer delivers issued tickets to their passengers via
// the notification gateway.
type TicketNotificationConsumer struct {
	bookings *database.BookingRepository
	tickets  *database.TicketRepository
	notify   gateway.NotificationGateway
	logger   *logrus.Logger
}

// NewTicketNotificationConsumer creates a new ticket notification consumer
func NewTicketNotificationConsumer(
	bookings *database.BookingRepository,
	tickets *database.TicketRepository,
	notify gateway.NotificationGateway,
	logger *logrus.Logger,
) *TicketNotificationConsumer {
	return &TicketNotificationConsumer{
		bookings: bookings,
		tickets:  tickets,
		notify:   notify,
		logger:   logger,
	}
}

// Handle sends one notification per ticket named in the TicketIssued event.
func (c *TicketNotificationConsumer) Handle(ctx context.Context, msg models.OutboxMessage) error {
	var event models.TicketIssuedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return models.ErrMalformedPayload(err)
	}

	booking, err := c.bookings.FindByID(ctx, event.BookingID)
	if err != nil {
		return err
	}
	if booking == nil {
		c.logger.WithField("booking_id", event.BookingID).Warn("Ticket notification for unknown booking")
		return nil
	}

	byID := make(map[string]models.Passenger, len(booking.Passengers))
	for _, p := range booking.Passengers {
		byID[p.ID.String()] = p
	}
	segments := make([]string, 0, len(booking.Segments))
	for _, seg := range booking.Segments {
		segments = append(segments, seg.FlightID)
	}

	issued, err := c.tickets.ByBookingID(ctx, event.BookingID)
	if err != nil {
		return err
	}

	for _, ticket := range issued {
		passenger, ok := byID[ticket.PassengerID.String()]
		if !ok {
			c.logger.WithFields(logrus.Fields{
				"ticket_number": ticket.TicketNumber,
				"passenger_id":  ticket.PassengerID,
			}).Warn("Ticket references unknown passenger, skipping notification")
			continue
		}

		messageID, err := c.notify.SendTicket(ctx, gateway.TicketDelivery{
			TicketNumber: ticket.TicketNumber,
			PnrCode:      booking.PnrCode,
			Segments:     segments,
		}, gateway.Recipient{
			Email: passenger.Email,
			Name:  passenger.FirstName + " " + passenger.LastName,
		})
		if err != nil {
			return err
		}

		c.logger.WithFields(logrus.Fields{
			"ticket_number": ticket.TicketNumber,
			"message_id":    messageID,
		}).Info("Ticket notification sent")
	}
	return nil
}
