package models

import "time"

// CabinClass is the service class of a seat bucket or segment.
type CabinClass string

const (
	CabinEconomy  CabinClass = "ECONOMY"
	CabinBusiness CabinClass = "BUSINESS"
	CabinFirst    CabinClass = "FIRST"
)

// AllCabins lists the cabins in persisted column order.
func AllCabins() []CabinClass {
	return []CabinClass{CabinEconomy, CabinBusiness, CabinFirst}
}

// Valid reports whether the cabin class is known.
func (c CabinClass) Valid() bool {
	switch c {
	case CabinEconomy, CabinBusiness, CabinFirst:
		return true
	}
	return false
}

const maxFlightIDLength = 50

// ValidateFlightID checks the opaque flight identifier bounds.
func ValidateFlightID(flightID string) error {
	if flightID == "" || len(flightID) > maxFlightIDLength {
		return NewDomainError(TagInventoryPersistence, "flight id must be 1-%d characters", maxFlightIDLength).
			WithField("field", "flightId")
	}
	return nil
}

// SeatBucket tracks availability of one cabin on one flight.
// Invariant: 0 <= Available <= Capacity, Capacity > 0.
type SeatBucket struct {
	Available int
	Capacity  int
	Price     Money
}

// FlightInventory is the aggregate root guarding seat availability for one
// flight. A flight is the consistency unit: all mutations go through
// HoldSeats / ReleaseSeats and are serialized by the version column at save.
type FlightInventory struct {
	FlightID string
	Buckets  map[CabinClass]SeatBucket
	Version  int64

	events []DomainEvent
}

// NewFlightInventory seeds an inventory with full availability per cabin.
func NewFlightInventory(flightID string, buckets map[CabinClass]SeatBucket) (*FlightInventory, error) {
	if err := ValidateFlightID(flightID); err != nil {
		return nil, err
	}
	if len(buckets) == 0 {
		return nil, ErrInvalidAmount("inventory requires at least one seat bucket")
	}
	for cabin, b := range buckets {
		if !cabin.Valid() {
			return nil, NewDomainError(TagInventoryPersistence, "unknown cabin class %q", cabin).
				WithField("field", "cabin")
		}
		if b.Capacity <= 0 {
			return nil, ErrInvalidAmount("cabin %s capacity must be positive, got %d", cabin, b.Capacity)
		}
		if b.Available < 0 || b.Available > b.Capacity {
			return nil, ErrInvalidAmount("cabin %s available %d outside [0, %d]", cabin, b.Available, b.Capacity)
		}
		if !b.Price.Currency.Valid() {
			return nil, ErrUnsupportedCurrency(string(b.Price.Currency))
		}
	}
	return &FlightInventory{FlightID: flightID, Buckets: buckets}, nil
}

// Bucket returns the bucket for a cabin.
func (f *FlightInventory) Bucket(cabin CabinClass) (SeatBucket, bool) {
	b, ok := f.Buckets[cabin]
	return b, ok
}

// HoldSeats counts n seats out of the cabin's availability and returns the
// unit price. It appends a SeatsHeld event; persistence and CAS are the
// repository's concern.
func (f *FlightInventory) HoldSeats(cabin CabinClass, n int) (Money, error) {
	if n <= 0 {
		return Money{}, ErrInvalidAmount("number of seats must be positive, got %d", n)
	}
	bucket, ok := f.Buckets[cabin]
	if !ok {
		return Money{}, ErrInvalidAmount("flight %s has no %s cabin", f.FlightID, cabin)
	}
	if n > bucket.Available {
		return Money{}, ErrFlightFull(n, bucket.Available)
	}

	bucket.Available -= n
	f.Buckets[cabin] = bucket
	f.record(SeatsHeldEvent{
		EventEnvelope: newEnvelope(EventSeatsHeld, AggregateInventory, f.FlightID, time.Now().UTC()),
		FlightID:      f.FlightID,
		Cabin:         cabin,
		Quantity:      n,
	})
	return bucket.Price, nil
}

// ReleaseSeats returns n seats to the cabin's availability. Releasing past
// capacity fails with InventoryOvercapacity, which idempotent consumers treat
// as already-released.
func (f *FlightInventory) ReleaseSeats(cabin CabinClass, n int) error {
	if n <= 0 {
		return ErrInvalidAmount("number of seats must be positive, got %d", n)
	}
	bucket, ok := f.Buckets[cabin]
	if !ok {
		return ErrInvalidAmount("flight %s has no %s cabin", f.FlightID, cabin)
	}
	if bucket.Available+n > bucket.Capacity {
		return ErrInventoryOvercapacity(bucket.Available, bucket.Capacity, n)
	}

	bucket.Available += n
	f.Buckets[cabin] = bucket
	f.record(SeatsReleasedEvent{
		EventEnvelope: newEnvelope(EventSeatsReleased, AggregateInventory, f.FlightID, time.Now().UTC()),
		FlightID:      f.FlightID,
		Cabin:         cabin,
		Quantity:      n,
	})
	return nil
}

// DomainEvents returns the buffered events in production order.
func (f *FlightInventory) DomainEvents() []DomainEvent {
	return f.events
}

// ClearEvents empties the buffer after the repository persisted the events.
func (f *FlightInventory) ClearEvents() {
	f.events = nil
}

func (f *FlightInventory) record(e DomainEvent) {
	f.events = append(f.events, e)
}
