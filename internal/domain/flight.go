package domain

import "time"

type FlightStatus string

const (
	FlightStatusScheduled FlightStatus = "SCHEDULED"
	FlightStatusDelayed   FlightStatus = "DELAYED"
	FlightStatusBoarding  FlightStatus = "BOARDING"
	FlightStatusDeparted  FlightStatus = "DEPARTED"
	FlightStatusCompleted FlightStatus = "COMPLETED"
	FlightStatusCancelled FlightStatus = "CANCELLED"
)

type Flight struct {
	ID                 int64
	FlightNumber       string
	PlaneID            int64
	DepartureAirportID int64
	ArrivalAirportID   int64
	DepartureAirport   string
	ArrivalAirport     string
	DepartureTime      time.Time
	ArrivalTime        time.Time
	BasePriceCents     int64
	Gate               string
	Terminal           string
	Status             FlightStatus
	IsActive           bool
	AvailableSeats     int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Bookable reports whether new tickets may be sold on the flight.
func (f *Flight) Bookable() bool {
	return f.IsActive && f.Status == FlightStatusScheduled
}

// DepartedAt reports whether the departure time is not after now.
func (f *Flight) DepartedAt(now time.Time) bool {
	return !f.DepartureTime.After(now)
}
