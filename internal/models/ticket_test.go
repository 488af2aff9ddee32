package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTicketNumber(t *testing.T) {
	assert.NoError(t, ValidateTicketNumber("1761234567890"))

	for _, number := range []string{"", "123", "17612345678901", "176123456789X"} {
		assert.Error(t, ValidateTicketNumber(number), "number %q should be invalid", number)
	}
}

func TestGenerateTicketNumber(t *testing.T) {
	number, err := GenerateTicketNumber()
	require.NoError(t, err)
	assert.NoError(t, ValidateTicketNumber(number))
	assert.True(t, strings.HasPrefix(number, "176"))
}

func TestIssueTickets(t *testing.T) {
	t.Run("one ticket per passenger, one coupon per segment", func(t *testing.T) {
		b := testBooking(t, time.Now().Add(time.Hour))
		require.NoError(t, b.Confirm(time.Now()))

		tickets, err := IssueTickets(b, time.Now())
		require.NoError(t, err)
		require.Len(t, tickets, 2)

		for i, ticket := range tickets {
			assert.NoError(t, ValidateTicketNumber(ticket.TicketNumber))
			assert.Equal(t, b.ID, ticket.BookingID)
			assert.Equal(t, b.PnrCode, ticket.PnrCode)
			assert.Equal(t, TicketStatusIssued, ticket.Status)
			assert.Equal(t, b.Passengers[i].ID, ticket.PassengerID)
			assert.Equal(t, b.Passengers[i].FirstName+" "+b.Passengers[i].LastName, ticket.PassengerName)

			require.Len(t, ticket.Coupons, 2)
			for j, coupon := range ticket.Coupons {
				assert.Equal(t, b.Segments[j].ID, coupon.SegmentID)
				assert.Equal(t, b.Segments[j].FlightID, coupon.FlightID)
				assert.Equal(t, j+1, coupon.Sequence)
				assert.Equal(t, CouponStatusOpen, coupon.Status)
			}
		}
	})

	t.Run("refuses a held booking", func(t *testing.T) {
		b := testBooking(t, time.Now().Add(time.Hour))
		_, err := IssueTickets(b, time.Now())
		assert.True(t, HasTag(err, TagBookingStatus))
	})

	t.Run("refuses a cancelled booking", func(t *testing.T) {
		b := testBooking(t, time.Now().Add(time.Hour))
		require.NoError(t, b.Cancel("no show"))
		_, err := IssueTickets(b, time.Now())
		assert.True(t, HasTag(err, TagBookingStatus))
	})
}
