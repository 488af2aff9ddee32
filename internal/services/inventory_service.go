package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/airvoyage/reservation-backend/internal/cache"
	"github.com/airvoyage/reservation-backend/internal/database"
	"github.com/airvoyage/reservation-backend/internal/models"
)

// casRetries is how often a lost optimistic-locking race is retried with a
// fresh reload before the conflict is surfaced.
const casRetries = 3

// HoldSeatsResult is the outcome of a successful hold.
type HoldSeatsResult struct {
	Inventory     *models.FlightInventory
	UnitPrice     models.Money
	TotalPrice    models.Money
	SeatsHeld     int
	HoldExpiresAt time.Time
}

// InventoryService guards seat availability: holds, releases and reads.
type InventoryService struct {
	repo    *database.InventoryRepository
	queries *database.QueryRepository
	tx      *database.TxManager
	cache   *cache.AvailabilityCache
	holdTTL time.Duration
	logger  *logrus.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(
	repo *database.InventoryRepository,
	queries *database.QueryRepository,
	tx *database.TxManager,
	availability *cache.AvailabilityCache,
	holdTTL time.Duration,
	logger *logrus.Logger,
) *InventoryService {
	return &InventoryService{
		repo:    repo,
		queries: queries,
		tx:      tx,
		cache:   availability,
		holdTTL: holdTTL,
		logger:  logger,
	}
}

// HoldSeats counts seats out of a cabin and prices the hold. A lost CAS race
// reloads and retries up to casRetries times with no delay.
func (s *InventoryService) HoldSeats(ctx context.Context, flightID string, cabin models.CabinClass, numberOfSeats int) (*HoldSeatsResult, error) {
	var result *HoldSeatsResult

	err := s.withCASRetry(ctx, func(ctx context.Context) error {
		inv, err := s.repo.FindByID(ctx, flightID)
		if err != nil {
			return err
		}
		if inv == nil {
			return models.ErrFlightNotFound(flightID)
		}

		unitPrice, err := inv.HoldSeats(cabin, numberOfSeats)
		if err != nil {
			return err
		}

		saved, err := s.repo.Save(ctx, inv)
		if err != nil {
			return err
		}

		result = &HoldSeatsResult{
			Inventory:     saved,
			UnitPrice:     unitPrice,
			TotalPrice:    unitPrice.MultiplyBy(numberOfSeats),
			SeatsHeld:     numberOfSeats,
			HoldExpiresAt: time.Now().Add(s.holdTTL),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, flightID)
	s.logger.WithFields(logrus.Fields{
		"flight_id": flightID,
		"cabin":     cabin,
		"seats":     numberOfSeats,
	}).Info("Seats held")
	return result, nil
}

// ReleaseSeats returns seats to a cabin, with the same retry policy as
// HoldSeats. Over-release fails with InventoryOvercapacity; idempotent
// callers treat that as already-released.
func (s *InventoryService) ReleaseSeats(ctx context.Context, flightID string, cabin models.CabinClass, numberOfSeats int) error {
	err := s.withCASRetry(ctx, func(ctx context.Context) error {
		inv, err := s.repo.FindByID(ctx, flightID)
		if err != nil {
			return err
		}
		if inv == nil {
			return models.ErrFlightNotFound(flightID)
		}

		if err := inv.ReleaseSeats(cabin, numberOfSeats); err != nil {
			return err
		}

		_, err = s.repo.Save(ctx, inv)
		return err
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(ctx, flightID)
	s.logger.WithFields(logrus.Fields{
		"flight_id": flightID,
		"cabin":     cabin,
		"seats":     numberOfSeats,
	}).Info("Seats released")
	return nil
}

// GetAvailability reads one flight's seat picture, serving from the cache
// when it holds a fresh answer.
func (s *InventoryService) GetAvailability(ctx context.Context, flightID string) (*models.FlightAvailability, error) {
	if cached := s.cache.Get(ctx, flightID); cached != nil {
		return cached, nil
	}

	availability, err := s.queries.Availability(ctx, flightID)
	if err != nil {
		return nil, err
	}
	if availability == nil {
		return nil, models.ErrFlightNotFound(flightID)
	}

	s.cache.Set(ctx, availability)
	return availability, nil
}

// SeedFlight creates a fresh inventory row; used by seeding tooling and
// operator flows.
func (s *InventoryService) SeedFlight(ctx context.Context, flightID string, buckets map[models.CabinClass]models.SeatBucket) (*models.FlightInventory, error) {
	inv, err := models.NewFlightInventory(flightID, buckets)
	if err != nil {
		return nil, err
	}

	var created *models.FlightInventory
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		created, err = s.repo.Create(ctx, inv)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// withCASRetry runs op inside a UoW, retrying only optimistic-locking
// failures. Each retry opens a fresh transaction so the reload sees the
// winner's committed state. When ctx already carries a transaction a lost
// race has aborted that whole transaction, so op runs once and the conflict
// propagates to the outermost caller, which owns the retry.
func (s *InventoryService) withCASRetry(ctx context.Context, op func(ctx context.Context) error) error {
	if database.InTx(ctx) {
		return s.tx.WithinTx(ctx, op)
	}

	var err error
	for attempt := 1; attempt <= casRetries; attempt++ {
		err = s.tx.WithinTx(ctx, op)
		if err == nil || !models.HasTag(err, models.TagOptimisticLocking) {
			return err
		}
		s.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err.Error(),
		}).Warn("Optimistic locking conflict, retrying")
	}
	return err
}
