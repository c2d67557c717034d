package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTicketStatus_CanTransitionTo(t *testing.T) {
	testCases := []struct {
		from TicketStatus
		to   TicketStatus
		want bool
	}{
		{TicketStatusBooked, TicketStatusConfirmed, true},
		{TicketStatusBooked, TicketStatusCancelled, true},
		{TicketStatusConfirmed, TicketStatusCheckedIn, true},
		{TicketStatusConfirmed, TicketStatusCancelled, true},
		{TicketStatusCheckedIn, TicketStatusCompleted, true},
		{TicketStatusCheckedIn, TicketStatusCancelled, false},
		{TicketStatusBooked, TicketStatusCheckedIn, false},
		{TicketStatusCancelled, TicketStatusBooked, false},
		{TicketStatusCompleted, TicketStatusCancelled, false},
	}

	for _, tc := range testCases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestTicketStatus_Terminal(t *testing.T) {
	assert.True(t, TicketStatusCancelled.Terminal())
	assert.True(t, TicketStatusCompleted.Terminal())
	assert.False(t, TicketStatusBooked.Terminal())
	assert.False(t, TicketStatusCheckedIn.Terminal())
}

func TestTicketFilter_Matches(t *testing.T) {
	ticket := &Ticket{ID: 7, BookingReference: "BKX", UserID: 3, FlightID: 9, Status: TicketStatusConfirmed}

	assert.True(t, TicketFilter{Reference: "BKX", UserID: 3}.Matches(ticket))
	assert.True(t, TicketFilter{FlightID: 9, Statuses: ActiveTicketStatuses}.Matches(ticket))
	assert.False(t, TicketFilter{Statuses: []TicketStatus{TicketStatusBooked}}.Matches(ticket))
	assert.False(t, TicketFilter{IDs: []int64{1, 2}}.Matches(ticket))
	assert.False(t, TicketFilter{UserID: 4}.Matches(ticket))
}

func TestNewBooking(t *testing.T) {
	booking := NewBooking("BKX", []Ticket{
		{UserID: 1, FlightID: 2, SeatID: 10, TotalPriceCents: 89600, Status: TicketStatusCancelled},
		{UserID: 1, FlightID: 2, SeatID: 11, TotalPriceCents: 89600, Status: TicketStatusBooked},
	})

	assert.Equal(t, int64(179200), booking.GrandTotalCents)
	assert.Equal(t, int64(2), booking.FlightID)
	assert.Equal(t, []int64{10, 11}, booking.SeatIDs())
	assert.Equal(t, TicketStatusBooked, booking.Status())
}

func TestError_Is(t *testing.T) {
	err := InvalidState("not enough available seats")

	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "not enough available seats", err.Error())
}
