package memory

import (
	"fmt"
	"time"

	"github.com/Domenick1991/airways/internal/domain"
	"github.com/shopspring/decimal"
)

// AddClass, AddFlight and AddSeats load reference data. They are used by tests
// and by the in-memory development mode.
func (s *Store) AddClass(c domain.Class) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.classes[c.ID] = c
}

func (s *Store) AddFlight(f domain.Flight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	s.state.flights[f.ID] = f
}

func (s *Store) AddSeats(seats ...domain.Seat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seat := range seats {
		seat.UpdatedAt = s.now()
		s.state.seats[seat.ID] = seat
	}
}

func (s *Store) Seat(id int64) (domain.Seat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seat, ok := s.state.seats[id]
	return seat, ok
}

func (s *Store) Tickets() []domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Ticket, 0, len(s.state.tickets))
	for _, id := range sortedKeys(s.state.tickets) {
		out = append(out, s.state.tickets[id])
	}
	return out
}

func (s *Store) Transactions() []domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Transaction, 0, len(s.state.transactions))
	for _, id := range sortedKeys(s.state.transactions) {
		out = append(out, s.state.transactions[id])
	}
	return out
}

// Demo data ids, mirroring the 0002_demo_data migration.
const (
	DemoFlightID       int64 = 1
	DemoPlaneID        int64 = 1
	DemoEconomyClassID int64 = 1
	DemoBusinessClass  int64 = 2
	DemoSeatCount            = 50
	DemoBusinessSeats        = 8
	DemoBasePriceCents int64 = 80000
)

// SeedDemo loads one scheduled TAS-JFK flight departing 30 days after now,
// with seat ids 1..50 of which the first 8 are business class.
func (s *Store) SeedDemo(now time.Time) {
	s.AddClass(domain.Class{ID: DemoEconomyClassID, Name: "Economy", Multiplier: decimal.NewFromInt(1), BaggageKg: 20, CabinBaggageKg: 7})
	s.AddClass(domain.Class{ID: DemoBusinessClass, Name: "Business", Multiplier: decimal.RequireFromString("1.5"), BaggageKg: 30, CabinBaggageKg: 10, MealIncluded: true})

	departure := now.Add(30 * 24 * time.Hour)
	s.AddFlight(domain.Flight{
		ID:                 DemoFlightID,
		FlightNumber:       "HY101",
		PlaneID:            DemoPlaneID,
		DepartureAirportID: 1,
		ArrivalAirportID:   2,
		DepartureAirport:   "TAS",
		ArrivalAirport:     "JFK",
		DepartureTime:      departure,
		ArrivalTime:        departure.Add(8 * time.Hour),
		BasePriceCents:     DemoBasePriceCents,
		Gate:               "B4",
		Terminal:           "2",
		Status:             domain.FlightStatusScheduled,
		IsActive:           true,
	})

	seats := make([]domain.Seat, 0, DemoSeatCount)
	for n := 1; n <= DemoSeatCount; n++ {
		class := DemoEconomyClassID
		if n <= DemoBusinessSeats {
			class = DemoBusinessClass
		}
		seats = append(seats, domain.Seat{
			ID:          int64(n),
			PlaneID:     DemoPlaneID,
			ClassID:     class,
			SeatNumber:  fmt.Sprintf("1%02d", n),
			IsAvailable: true,
			IsWindow:    n%3 == 0,
			IsAisle:     n%3 == 1,
		})
	}
	s.AddSeats(seats...)
}
