package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPassenger(t *testing.T, email string) Passenger {
	t.Helper()
	p, err := NewPassenger("Ada", "Lovelace", email, nil, GenderFemale, PassengerAdult)
	require.NoError(t, err)
	return p
}

func testSegment(t *testing.T, flightID string, amount int64, currency Currency) BookingSegment {
	t.Helper()
	seg, err := NewBookingSegment(flightID, CabinEconomy, Money{Amount: amount, Currency: currency}, nil)
	require.NoError(t, err)
	return seg
}

func testBooking(t *testing.T, expiresAt time.Time) *Booking {
	t.Helper()
	b, err := NewBooking(
		"AB12CD",
		[]Passenger{testPassenger(t, "ada@example.com"), testPassenger(t, "grace@example.com")},
		[]BookingSegment{testSegment(t, "AV100", 25000, CurrencyEUR), testSegment(t, "AV200", 30000, CurrencyEUR)},
		expiresAt,
	)
	require.NoError(t, err)
	return b
}

func TestNewPassenger(t *testing.T) {
	t.Run("rejects blank names", func(t *testing.T) {
		_, err := NewPassenger("", "Lovelace", "ada@example.com", nil, GenderFemale, PassengerAdult)
		assert.True(t, HasTag(err, TagInvalidAmount))
	})

	t.Run("rejects invalid email", func(t *testing.T) {
		_, err := NewPassenger("Ada", "Lovelace", "not-an-email", nil, GenderFemale, PassengerAdult)
		assert.True(t, HasTag(err, TagInvalidAmount))
	})

	t.Run("rejects future date of birth", func(t *testing.T) {
		future := time.Now().Add(24 * time.Hour)
		_, err := NewPassenger("Ada", "Lovelace", "ada@example.com", &future, GenderFemale, PassengerAdult)
		assert.True(t, HasTag(err, TagInvalidAmount))
	})
}

func TestNewRoute(t *testing.T) {
	t.Run("accepts distinct IATA codes", func(t *testing.T) {
		r, err := NewRoute("CDG", "JFK")
		require.NoError(t, err)
		assert.Equal(t, "CDG", r.Origin)
	})

	t.Run("rejects same origin and destination", func(t *testing.T) {
		_, err := NewRoute("CDG", "CDG")
		assert.Error(t, err)
	})

	t.Run("rejects lowercase codes", func(t *testing.T) {
		_, err := NewRoute("cdg", "JFK")
		assert.Error(t, err)
	})
}

func TestNewBooking(t *testing.T) {
	expiresAt := time.Now().Add(15 * time.Minute)

	t.Run("starts held with a deadline", func(t *testing.T) {
		b := testBooking(t, expiresAt)
		assert.Equal(t, BookingStatusHeld, b.Status)
		require.NotNil(t, b.ExpiresAt)
		assert.WithinDuration(t, expiresAt, *b.ExpiresAt, time.Second)
	})

	t.Run("buffers a BookingCreated event", func(t *testing.T) {
		b := testBooking(t, expiresAt)
		events := b.DomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventBookingCreated, events[0].EventType())
	})

	t.Run("requires a passenger", func(t *testing.T) {
		_, err := NewBooking("AB12CD", nil, []BookingSegment{testSegment(t, "AV100", 1, CurrencyEUR)}, expiresAt)
		assert.True(t, HasTag(err, TagInvalidAmount))
	})

	t.Run("requires a single settlement currency", func(t *testing.T) {
		_, err := NewBooking(
			"AB12CD",
			[]Passenger{testPassenger(t, "ada@example.com")},
			[]BookingSegment{testSegment(t, "AV100", 1, CurrencyEUR), testSegment(t, "AV200", 1, CurrencyUSD)},
			expiresAt,
		)
		assert.True(t, HasTag(err, TagCurrencyMismatch))
	})
}

func TestTotalPrice(t *testing.T) {
	b := testBooking(t, time.Now().Add(time.Hour))

	total, err := b.TotalPrice()
	require.NoError(t, err)
	// (25000 + 30000) per seat, two passengers
	assert.Equal(t, int64(110000), total.Amount)
	assert.Equal(t, CurrencyEUR, total.Currency)
}

func TestExpired(t *testing.T) {
	now := time.Now()
	b := testBooking(t, now)

	t.Run("deadline equal to now is not yet expired", func(t *testing.T) {
		assert.False(t, b.Expired(now))
	})

	t.Run("deadline strictly before now is expired", func(t *testing.T) {
		assert.True(t, b.Expired(now.Add(time.Nanosecond)))
	})
}

func TestConfirm(t *testing.T) {
	t.Run("held booking confirms and loses its deadline", func(t *testing.T) {
		b := testBooking(t, time.Now().Add(time.Hour))
		b.ClearEvents()

		require.NoError(t, b.Confirm(time.Now()))
		assert.Equal(t, BookingStatusConfirmed, b.Status)
		assert.Nil(t, b.ExpiresAt)

		events := b.DomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventBookingConfirmed, events[0].EventType())
	})

	t.Run("expired hold cannot confirm", func(t *testing.T) {
		b := testBooking(t, time.Now().Add(-time.Minute))
		err := b.Confirm(time.Now())
		assert.True(t, HasTag(err, TagBookingExpired))
		assert.Equal(t, BookingStatusHeld, b.Status)
	})

	t.Run("cancelled booking cannot confirm", func(t *testing.T) {
		b := testBooking(t, time.Now().Add(time.Hour))
		require.NoError(t, b.Cancel("changed plans"))

		err := b.Confirm(time.Now())
		assert.True(t, HasTag(err, TagBookingStatus))
	})
}

func TestMarkTicketed(t *testing.T) {
	t.Run("confirmed booking becomes ticketed", func(t *testing.T) {
		b := testBooking(t, time.Now().Add(time.Hour))
		require.NoError(t, b.Confirm(time.Now()))
		b.ClearEvents()

		require.NoError(t, b.MarkTicketed([]string{"1760000000001"}, time.Now()))
		assert.Equal(t, BookingStatusTicketed, b.Status)

		events := b.DomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventTicketIssued, events[0].EventType())
	})

	t.Run("held booking cannot be ticketed", func(t *testing.T) {
		b := testBooking(t, time.Now().Add(time.Hour))
		err := b.MarkTicketed(nil, time.Now())
		assert.True(t, HasTag(err, TagBookingStatus))
	})
}

func TestCancel(t *testing.T) {
	t.Run("held booking cancels", func(t *testing.T) {
		b := testBooking(t, time.Now().Add(time.Hour))
		require.NoError(t, b.Cancel("checkout failed"))
		assert.Equal(t, BookingStatusCancelled, b.Status)
		assert.Nil(t, b.ExpiresAt)
	})

	t.Run("ticketed booking cancels", func(t *testing.T) {
		b := testBooking(t, time.Now().Add(time.Hour))
		require.NoError(t, b.Confirm(time.Now()))
		require.NoError(t, b.MarkTicketed([]string{"1760000000001"}, time.Now()))

		assert.NoError(t, b.Cancel("refund"))
	})

	t.Run("terminal states stay terminal", func(t *testing.T) {
		b := testBooking(t, time.Now().Add(time.Hour))
		require.NoError(t, b.Cancel("first"))

		assert.True(t, HasTag(b.Cancel("second"), TagBookingStatus))

		expired := testBooking(t, time.Now().Add(time.Hour))
		expired.MarkExpired()
		assert.Equal(t, BookingStatusExpired, expired.Status)
		assert.True(t, HasTag(expired.Cancel("late"), TagBookingStatus))
	})
}

func TestMarkExpired(t *testing.T) {
	t.Run("is a no-op without a deadline", func(t *testing.T) {
		b := testBooking(t, time.Now().Add(time.Hour))
		require.NoError(t, b.Confirm(time.Now()))
		b.ClearEvents()

		b.MarkExpired()
		assert.Equal(t, BookingStatusConfirmed, b.Status)
		assert.Empty(t, b.DomainEvents())
	})

	t.Run("expires a held booking", func(t *testing.T) {
		b := testBooking(t, time.Now().Add(-time.Minute))
		b.ClearEvents()

		b.MarkExpired()
		assert.Equal(t, BookingStatusExpired, b.Status)
		assert.Nil(t, b.ExpiresAt)

		events := b.DomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventBookingExpired, events[0].EventType())
	})
}

func TestMarkSeatsReleased(t *testing.T) {
	b := testBooking(t, time.Now().Add(time.Hour))
	assert.False(t, b.SeatsReleased)

	require.NoError(t, b.Cancel("changed plans"))
	b.MarkSeatsReleased()
	assert.True(t, b.SeatsReleased)
}

func TestSeatsByFlight(t *testing.T) {
	b := testBooking(t, time.Now().Add(time.Hour))

	allocations := b.SeatsByFlight()
	require.Len(t, allocations, 2)
	assert.Equal(t, "AV100", allocations[0].FlightID)
	assert.Equal(t, 2, allocations[0].Quantity)
	assert.Equal(t, "AV200", allocations[1].FlightID)
}
