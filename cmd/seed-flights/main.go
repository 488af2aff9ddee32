package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/airvoyage/reservation-backend/internal/config"
	"github.com/airvoyage/reservation-backend/internal/database"
	"github.com/airvoyage/reservation-backend/internal/models"
	"github.com/airvoyage/reservation-backend/internal/services"
)

// seedCabin is the JSON shape of one cabin in the seed file.
type seedCabin struct {
	Capacity int    `json:"capacity"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// seedFlight is the JSON shape of one flight in the seed file.
type seedFlight struct {
	FlightID string               `json:"flightId"`
	Cabins   map[string]seedCabin `json:"cabins"`
}

// Seeds flight inventory from a JSON file. Flights that already exist are
// skipped, so the tool is safe to run repeatedly.
func main() {
	file := flag.String("file", "flights.json", "path to the flight seed file")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	raw, err := os.ReadFile(*file)
	if err != nil {
		logger.Fatalf("Failed to read seed file: %v", err)
	}
	var flights []seedFlight
	if err := json.Unmarshal(raw, &flights); err != nil {
		logger.Fatalf("Failed to parse seed file: %v", err)
	}

	txManager := database.NewTxManager(db, logger)
	outboxRepo := database.NewOutboxRepository(db, logger)
	inventoryRepo := database.NewInventoryRepository(db, outboxRepo, logger)
	bookingRepo := database.NewBookingRepository(db, outboxRepo, logger)
	ticketRepo := database.NewTicketRepository(db, logger)
	queryRepo := database.NewQueryRepository(db, bookingRepo, ticketRepo, logger)
	inventoryService := services.NewInventoryService(inventoryRepo, queryRepo, txManager, nil, cfg.Hold.TTL, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	seeded := 0
	for _, f := range flights {
		existing, err := inventoryRepo.FindByID(ctx, f.FlightID)
		if err != nil {
			logger.Fatalf("Failed to check flight %s: %v", f.FlightID, err)
		}
		if existing != nil {
			logger.WithField("flight_id", f.FlightID).Info("Flight already seeded, skipping")
			continue
		}

		buckets := make(map[models.CabinClass]models.SeatBucket, len(f.Cabins))
		for name, cabin := range f.Cabins {
			price, err := models.NewMoney(cabin.Amount, models.Currency(cabin.Currency))
			if err != nil {
				logger.Fatalf("Invalid price for flight %s cabin %s: %v", f.FlightID, name, err)
			}
			buckets[models.CabinClass(name)] = models.SeatBucket{
				Available: cabin.Capacity,
				Capacity:  cabin.Capacity,
				Price:     price,
			}
		}

		if _, err := inventoryService.SeedFlight(ctx, f.FlightID, buckets); err != nil {
			logger.Fatalf("Failed to seed flight %s: %v", f.FlightID, err)
		}
		logger.WithField("flight_id", f.FlightID).Info("Flight seeded")
		seeded++
	}

	logger.WithFields(logrus.Fields{
		"seeded": seeded,
		"total":  len(flights),
	}).Info("Seeding complete")
}
