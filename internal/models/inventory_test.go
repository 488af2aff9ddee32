package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInventory(t *testing.T) *FlightInventory {
	t.Helper()
	inv, err := NewFlightInventory("AV100", map[CabinClass]SeatBucket{
		CabinEconomy:  {Available: 10, Capacity: 10, Price: Money{Amount: 25000, Currency: CurrencyEUR}},
		CabinBusiness: {Available: 2, Capacity: 4, Price: Money{Amount: 90000, Currency: CurrencyEUR}},
	})
	require.NoError(t, err)
	return inv
}

func TestNewFlightInventory(t *testing.T) {
	t.Run("rejects empty flight id", func(t *testing.T) {
		_, err := NewFlightInventory("", map[CabinClass]SeatBucket{
			CabinEconomy: {Available: 1, Capacity: 1, Price: Money{Currency: CurrencyEUR}},
		})
		assert.Error(t, err)
	})

	t.Run("rejects available above capacity", func(t *testing.T) {
		_, err := NewFlightInventory("AV100", map[CabinClass]SeatBucket{
			CabinEconomy: {Available: 5, Capacity: 4, Price: Money{Currency: CurrencyEUR}},
		})
		require.Error(t, err)
		assert.True(t, HasTag(err, TagInvalidAmount))
	})

	t.Run("rejects non positive capacity", func(t *testing.T) {
		_, err := NewFlightInventory("AV100", map[CabinClass]SeatBucket{
			CabinEconomy: {Available: 0, Capacity: 0, Price: Money{Currency: CurrencyEUR}},
		})
		assert.True(t, HasTag(err, TagInvalidAmount))
	})
}

func TestHoldSeats(t *testing.T) {
	t.Run("decrements availability and prices the hold", func(t *testing.T) {
		inv := testInventory(t)

		price, err := inv.HoldSeats(CabinEconomy, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(25000), price.Amount)

		bucket, _ := inv.Bucket(CabinEconomy)
		assert.Equal(t, 7, bucket.Available)
		assert.Equal(t, 10, bucket.Capacity)
	})

	t.Run("fails when not enough seats", func(t *testing.T) {
		inv := testInventory(t)

		_, err := inv.HoldSeats(CabinBusiness, 3)
		require.Error(t, err)
		assert.True(t, HasTag(err, TagFlightFull))

		// the failed hold must not change availability
		bucket, _ := inv.Bucket(CabinBusiness)
		assert.Equal(t, 2, bucket.Available)
	})

	t.Run("can drain a cabin to zero", func(t *testing.T) {
		inv := testInventory(t)
		_, err := inv.HoldSeats(CabinBusiness, 2)
		require.NoError(t, err)

		bucket, _ := inv.Bucket(CabinBusiness)
		assert.Equal(t, 0, bucket.Available)

		_, err = inv.HoldSeats(CabinBusiness, 1)
		assert.True(t, HasTag(err, TagFlightFull))
	})

	t.Run("rejects non positive quantity", func(t *testing.T) {
		inv := testInventory(t)
		_, err := inv.HoldSeats(CabinEconomy, 0)
		assert.True(t, HasTag(err, TagInvalidAmount))
	})

	t.Run("rejects unknown cabin", func(t *testing.T) {
		inv := testInventory(t)
		_, err := inv.HoldSeats(CabinFirst, 1)
		assert.True(t, HasTag(err, TagInvalidAmount))
	})

	t.Run("buffers a SeatsHeld event", func(t *testing.T) {
		inv := testInventory(t)
		_, err := inv.HoldSeats(CabinEconomy, 1)
		require.NoError(t, err)

		events := inv.DomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventSeatsHeld, events[0].EventType())
		assert.Equal(t, "AV100", events[0].AggregateID())
	})
}

func TestReleaseSeats(t *testing.T) {
	t.Run("returns seats to the bucket", func(t *testing.T) {
		inv := testInventory(t)
		_, err := inv.HoldSeats(CabinEconomy, 4)
		require.NoError(t, err)

		require.NoError(t, inv.ReleaseSeats(CabinEconomy, 4))
		bucket, _ := inv.Bucket(CabinEconomy)
		assert.Equal(t, 10, bucket.Available)
	})

	t.Run("refuses to exceed capacity", func(t *testing.T) {
		inv := testInventory(t)

		err := inv.ReleaseSeats(CabinEconomy, 1)
		require.Error(t, err)
		assert.True(t, HasTag(err, TagInventoryOvercap))

		bucket, _ := inv.Bucket(CabinEconomy)
		assert.Equal(t, 10, bucket.Available)
	})

	t.Run("partial release stays within bounds", func(t *testing.T) {
		inv := testInventory(t)
		_, err := inv.HoldSeats(CabinBusiness, 2)
		require.NoError(t, err)

		require.NoError(t, inv.ReleaseSeats(CabinBusiness, 1))
		assert.True(t, HasTag(inv.ReleaseSeats(CabinBusiness, 4), TagInventoryOvercap))
	})
}
