package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/airvoyage/reservation-backend/internal/config"
	"github.com/airvoyage/reservation-backend/internal/database"
	"github.com/airvoyage/reservation-backend/internal/models"
)

// ExpirationService is the reaper: it periodically expires Held bookings past
// their deadline and returns their seats. Each candidate is handled in its
// own transaction so one failure cannot poison the batch.
type ExpirationService struct {
	bookings  *database.BookingRepository
	inventory *InventoryService
	tx        *database.TxManager
	cfg       config.ReaperConfig
	logger    *logrus.Logger

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

// NewExpirationService creates a new expiration service
func NewExpirationService(
	bookings *database.BookingRepository,
	inventory *InventoryService,
	tx *database.TxManager,
	cfg config.ReaperConfig,
	logger *logrus.Logger,
) *ExpirationService {
	return &ExpirationService{
		bookings:  bookings,
		inventory: inventory,
		tx:        tx,
		cfg:       cfg,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the reap loop.
func (s *ExpirationService) Start() {
	if s.started {
		return
	}
	s.started = true

	s.logger.WithField("interval", s.cfg.Interval).Info("Expiration reaper started")

	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				expired, err := s.RunOnce(context.Background())
				if err != nil {
					s.logger.WithError(err).Error("Reaper tick failed")
				} else if expired > 0 {
					s.logger.WithField("expired", expired).Info("Expired bookings reaped")
				}
			}
		}
	}()
}

// Stop halts the loop and waits for the current tick to finish.
func (s *ExpirationService) Stop() {
	if !s.started {
		return
	}
	close(s.stopCh)
	<-s.doneCh
	s.logger.Info("Expiration reaper stopped")
}

// RunOnce expires one batch of overdue holds and reports how many bookings
// it moved. Exposed for operator tooling and tests.
func (s *ExpirationService) RunOnce(ctx context.Context) (int, error) {
	candidates, err := s.bookings.FindExpired(ctx, time.Now(), s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, candidate := range candidates {
		if err := s.reap(ctx, candidate); err != nil {
			if models.HasTag(err, models.TagOptimisticLocking) {
				// Another writer got there first; next tick rechecks.
				continue
			}
			s.logger.WithError(err).WithField("booking_id", candidate.ID).
				Error("Failed to expire booking")
			continue
		}
		expired++
	}
	return expired, nil
}

// reap expires one booking and releases its seats in a single transaction.
func (s *ExpirationService) reap(ctx context.Context, candidate *models.Booking) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		booking, err := s.bookings.FindByID(ctx, candidate.ID)
		if err != nil {
			return err
		}
		if booking == nil || booking.Status != models.BookingStatusHeld || !booking.Expired(time.Now()) {
			return nil
		}

		booking.MarkExpired()

		if !booking.SeatsReleased {
			for _, alloc := range booking.SeatsByFlight() {
				err := s.inventory.ReleaseSeats(ctx, alloc.FlightID, alloc.Cabin, alloc.Quantity)
				if models.HasTag(err, models.TagInventoryOvercap) {
					continue
				}
				if err != nil {
					return err
				}
			}
			booking.MarkSeatsReleased()
		}

		_, err = s.bookings.Save(ctx, booking)
		return err
	})
}
