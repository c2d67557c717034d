package domain

import "time"

// Booking groups the tickets sharing one booking reference.
type Booking struct {
	Reference       string
	UserID          int64
	FlightID        int64
	Tickets         []Ticket
	GrandTotalCents int64
	CreatedAt       time.Time
}

func NewBooking(reference string, tickets []Ticket) *Booking {
	b := &Booking{Reference: reference, Tickets: tickets}
	for i, t := range tickets {
		if i == 0 {
			b.UserID = t.UserID
			b.FlightID = t.FlightID
			b.CreatedAt = t.CreatedAt
		}
		b.GrandTotalCents += t.TotalPriceCents
	}
	return b
}

// Status is the status of the first non-cancelled ticket, or CANCELLED when
// every ticket is cancelled.
func (b *Booking) Status() TicketStatus {
	var status TicketStatus
	for _, t := range b.Tickets {
		if status == "" || status == TicketStatusCancelled {
			status = t.Status
		}
	}
	return status
}

func (b *Booking) SeatIDs() []int64 {
	ids := make([]int64, 0, len(b.Tickets))
	for _, t := range b.Tickets {
		ids = append(ids, t.SeatID)
	}
	return ids
}
