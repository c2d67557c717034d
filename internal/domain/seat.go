package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Class is a fare category. Multiplier scales the flight base price.
type Class struct {
	ID             int64
	Name           string
	Multiplier     decimal.Decimal
	BaggageKg      int
	CabinBaggageKg int
	MealIncluded   bool
}

type Seat struct {
	ID          int64
	PlaneID     int64
	ClassID     int64
	SeatNumber  string
	IsAvailable bool
	IsWindow    bool
	IsAisle     bool
	UpdatedAt   time.Time
}

type SeatFilter struct {
	PlaneID       int64
	IDs           []int64
	ClassID       int64
	OnlyAvailable bool
	Limit         int
}
