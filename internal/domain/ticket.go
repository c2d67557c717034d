package domain

import (
	"encoding/json"
	"time"
)

type TicketStatus string

const (
	TicketStatusBooked    TicketStatus = "BOOKED"
	TicketStatusConfirmed TicketStatus = "CONFIRMED"
	TicketStatusCheckedIn TicketStatus = "CHECKED_IN"
	TicketStatusCancelled TicketStatus = "CANCELLED"
	TicketStatusCompleted TicketStatus = "COMPLETED"
)

// ActiveTicketStatuses are the statuses a cancellation may reverse.
var ActiveTicketStatuses = []TicketStatus{TicketStatusBooked, TicketStatusConfirmed}

// OpenTicketStatuses are all non-terminal statuses.
var OpenTicketStatuses = []TicketStatus{TicketStatusBooked, TicketStatusConfirmed, TicketStatusCheckedIn}

var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusBooked:    {TicketStatusConfirmed, TicketStatusCancelled},
	TicketStatusConfirmed: {TicketStatusCheckedIn, TicketStatusCancelled},
	TicketStatusCheckedIn: {TicketStatusCompleted},
}

func (s TicketStatus) Terminal() bool {
	return s == TicketStatusCancelled || s == TicketStatusCompleted
}

func (s TicketStatus) Active() bool {
	return s == TicketStatusBooked || s == TicketStatusConfirmed
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	for _, allowed := range ticketTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Ticket struct {
	ID                int64
	BookingReference  string
	FlightID          int64
	UserID            int64
	SeatID            int64
	ClassID           int64
	PassengerName     string
	PassengerPassport string
	SpecialRequests   json.RawMessage
	PriceCents        int64
	TaxesFeesCents    int64
	TotalPriceCents   int64
	Status            TicketStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type TicketFilter struct {
	IDs       []int64
	Reference string
	UserID    int64
	FlightID  int64
	Statuses  []TicketStatus
}

func (f TicketFilter) Matches(t *Ticket) bool {
	if len(f.IDs) > 0 && !containsID(f.IDs, t.ID) {
		return false
	}
	if f.Reference != "" && t.BookingReference != f.Reference {
		return false
	}
	if f.UserID != 0 && t.UserID != f.UserID {
		return false
	}
	if f.FlightID != 0 && t.FlightID != f.FlightID {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, s := range f.Statuses {
			if t.Status == s {
				return true
			}
		}
		return false
	}
	return true
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
