package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/airvoyage/reservation-backend/internal/models"
)

// inventoryRow mirrors the flight_inventory table, one column pair per cabin
// plus the captured fares.
type inventoryRow struct {
	FlightID          string    `db:"flight_id"`
	EconomyAvailable  int       `db:"economy_available"`
	EconomyTotal      int       `db:"economy_total"`
	EconomyPriceAmt   int64     `db:"economy_price_amount"`
	EconomyPriceCur   string    `db:"economy_price_currency"`
	BusinessAvailable int       `db:"business_available"`
	BusinessTotal     int       `db:"business_total"`
	BusinessPriceAmt  int64     `db:"business_price_amount"`
	BusinessPriceCur  string    `db:"business_price_currency"`
	FirstAvailable    int       `db:"first_available"`
	FirstTotal        int       `db:"first_total"`
	FirstPriceAmt     int64     `db:"first_price_amount"`
	FirstPriceCur     string    `db:"first_price_currency"`
	Version           int64     `db:"version"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// InventoryRepository persists FlightInventory aggregates with optimistic
// locking and appends their events to the outbox in the same transaction.
type InventoryRepository struct {
	db     *sqlx.DB
	outbox *OutboxRepository
	logger *logrus.Logger
}

// NewInventoryRepository creates a new inventory repository
func NewInventoryRepository(db *sqlx.DB, outbox *OutboxRepository, logger *logrus.Logger) *InventoryRepository {
	return &InventoryRepository{
		db:     db,
		outbox: outbox,
		logger: logger,
	}
}

const inventoryColumns = `
	flight_id,
	economy_available, economy_total, economy_price_amount, economy_price_currency,
	business_available, business_total, business_price_amount, business_price_currency,
	first_available, first_total, first_price_amount, first_price_currency,
	version, updated_at`

// FindByID loads one flight's inventory. Returns (nil, nil) when the flight
// is unknown.
func (r *InventoryRepository) FindByID(ctx context.Context, flightID string) (*models.FlightInventory, error) {
	q := QuerierFrom(ctx, r.db)

	var row inventoryRow
	err := q.GetContext(ctx, &row,
		`SELECT `+inventoryColumns+` FROM flight_inventory WHERE flight_id = $1`, flightID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewDomainError(models.TagInventoryPersistence, "failed to load inventory for flight %s", flightID).
			WithCause(err)
	}
	return row.toAggregate()
}

// Create inserts a freshly seeded inventory at version 1.
func (r *InventoryRepository) Create(ctx context.Context, inv *models.FlightInventory) (*models.FlightInventory, error) {
	q := QuerierFrom(ctx, r.db)
	row := rowFromInventory(inv)

	query := `
		INSERT INTO flight_inventory (` + inventoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1, $14)`

	_, err := q.ExecContext(ctx, query,
		row.FlightID,
		row.EconomyAvailable, row.EconomyTotal, row.EconomyPriceAmt, row.EconomyPriceCur,
		row.BusinessAvailable, row.BusinessTotal, row.BusinessPriceAmt, row.BusinessPriceCur,
		row.FirstAvailable, row.FirstTotal, row.FirstPriceAmt, row.FirstPriceCur,
		time.Now(),
	)
	if err != nil {
		return nil, models.NewDomainError(models.TagInventoryPersistence, "failed to create inventory for flight %s", inv.FlightID).
			WithCause(err)
	}

	if err := r.outbox.Append(ctx, inv.DomainEvents()); err != nil {
		return nil, err
	}
	inv.Version = 1
	inv.ClearEvents()
	return inv, nil
}

// Save writes the aggregate back with a compare-and-swap on the version
// column, then appends the buffered events to the outbox. A lost race
// surfaces OptimisticLocking with the stored version.
func (r *InventoryRepository) Save(ctx context.Context, inv *models.FlightInventory) (*models.FlightInventory, error) {
	q := QuerierFrom(ctx, r.db)
	row := rowFromInventory(inv)

	query := `
		UPDATE flight_inventory SET
			economy_available = $1, business_available = $2, first_available = $3,
			version = version + 1, updated_at = $4
		WHERE flight_id = $5 AND version = $6`

	res, err := q.ExecContext(ctx, query,
		row.EconomyAvailable, row.BusinessAvailable, row.FirstAvailable,
		time.Now(), inv.FlightID, inv.Version,
	)
	if err != nil {
		if isSerializationFailure(err) {
			return nil, models.ErrOptimisticLocking("FlightInventory", inv.FlightID, inv.Version, -1)
		}
		return nil, models.NewDomainError(models.TagInventoryPersistence, "failed to save inventory for flight %s", inv.FlightID).
			WithCause(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, models.NewDomainError(models.TagInventoryPersistence, "failed to read save result for flight %s", inv.FlightID).
			WithCause(err)
	}
	if affected == 0 {
		var actual int64
		if err := q.GetContext(ctx, &actual,
			`SELECT version FROM flight_inventory WHERE flight_id = $1`, inv.FlightID); err != nil {
			actual = -1
		}
		return nil, models.ErrOptimisticLocking("FlightInventory", inv.FlightID, inv.Version, actual)
	}

	if err := r.outbox.Append(ctx, inv.DomainEvents()); err != nil {
		return nil, err
	}
	inv.Version++
	inv.ClearEvents()
	return inv, nil
}

func rowFromInventory(inv *models.FlightInventory) inventoryRow {
	row := inventoryRow{FlightID: inv.FlightID, Version: inv.Version}
	if b, ok := inv.Bucket(models.CabinEconomy); ok {
		row.EconomyAvailable, row.EconomyTotal = b.Available, b.Capacity
		row.EconomyPriceAmt, row.EconomyPriceCur = b.Price.Amount, string(b.Price.Currency)
	}
	if b, ok := inv.Bucket(models.CabinBusiness); ok {
		row.BusinessAvailable, row.BusinessTotal = b.Available, b.Capacity
		row.BusinessPriceAmt, row.BusinessPriceCur = b.Price.Amount, string(b.Price.Currency)
	}
	if b, ok := inv.Bucket(models.CabinFirst); ok {
		row.FirstAvailable, row.FirstTotal = b.Available, b.Capacity
		row.FirstPriceAmt, row.FirstPriceCur = b.Price.Amount, string(b.Price.Currency)
	}
	return row
}

// toAggregate revalidates the row through the domain constructor so corrupt
// rows surface InventoryPersistence instead of leaking into the domain.
func (row inventoryRow) toAggregate() (*models.FlightInventory, error) {
	buckets := make(map[models.CabinClass]models.SeatBucket)
	add := func(cabin models.CabinClass, available, total int, amount int64, currency string) error {
		if total == 0 {
			// Cabin not sold on this flight
			return nil
		}
		price, err := models.NewMoney(amount, models.Currency(currency))
		if err != nil {
			return models.NewDomainError(models.TagInventoryPersistence, "flight %s has invalid %s fare", row.FlightID, cabin).
				WithField("field", string(cabin)+"_price").
				WithCause(err)
		}
		buckets[cabin] = models.SeatBucket{Available: available, Capacity: total, Price: price}
		return nil
	}

	if err := add(models.CabinEconomy, row.EconomyAvailable, row.EconomyTotal, row.EconomyPriceAmt, row.EconomyPriceCur); err != nil {
		return nil, err
	}
	if err := add(models.CabinBusiness, row.BusinessAvailable, row.BusinessTotal, row.BusinessPriceAmt, row.BusinessPriceCur); err != nil {
		return nil, err
	}
	if err := add(models.CabinFirst, row.FirstAvailable, row.FirstTotal, row.FirstPriceAmt, row.FirstPriceCur); err != nil {
		return nil, err
	}

	inv, err := models.NewFlightInventory(row.FlightID, buckets)
	if err != nil {
		return nil, models.NewDomainError(models.TagInventoryPersistence, "flight %s row failed validation", row.FlightID).
			WithCause(err)
	}
	inv.Version = row.Version
	return inv, nil
}
