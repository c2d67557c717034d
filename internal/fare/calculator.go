// Package fare computes booking prices. All amounts are minor currency units.
package fare

import (
	"errors"

	"github.com/shopspring/decimal"
)

// DefaultTaxRate is applied on top of the fare total.
var DefaultTaxRate = decimal.RequireFromString("0.12")

type Calculator struct {
	taxRate decimal.Decimal
}

func NewCalculator(taxRate decimal.Decimal) *Calculator {
	if taxRate.IsZero() || taxRate.IsNegative() {
		taxRate = DefaultTaxRate
	}
	return &Calculator{taxRate: taxRate}
}

type Quote struct {
	PricePerPassengerCents int64
	TotalCents             int64
	TaxesCents             int64
	GrandTotalCents        int64
	Tickets                []TicketFare
}

type TicketFare struct {
	PriceCents     int64
	TaxesFeesCents int64
	TotalCents     int64
}

// Calculate prices passengers seats of one class. Taxes are split with the
// largest-remainder rule so that ticket totals sum to GrandTotalCents exactly.
func (c *Calculator) Calculate(basePriceCents int64, multiplier decimal.Decimal, passengers int) (*Quote, error) {
	if passengers <= 0 {
		return nil, errors.New("passengers must be positive")
	}
	if basePriceCents < 0 {
		return nil, errors.New("base price must not be negative")
	}
	if multiplier.IsNegative() || multiplier.IsZero() {
		return nil, errors.New("class multiplier must be positive")
	}

	perPassenger := decimal.NewFromInt(basePriceCents).Mul(multiplier).Round(0).IntPart()
	total := perPassenger * int64(passengers)
	taxes := decimal.NewFromInt(total).Mul(c.taxRate).Round(0).IntPart()

	q := &Quote{
		PricePerPassengerCents: perPassenger,
		TotalCents:             total,
		TaxesCents:             taxes,
		GrandTotalCents:        total + taxes,
		Tickets:                make([]TicketFare, passengers),
	}

	shares := Allocate(taxes, passengers)
	for i := range q.Tickets {
		q.Tickets[i] = TicketFare{
			PriceCents:     perPassenger,
			TaxesFeesCents: shares[i],
			TotalCents:     perPassenger + shares[i],
		}
	}
	return q, nil
}

// Allocate splits amount into n parts that differ by at most one unit. The
// leftover units go to the first parts.
func Allocate(amount int64, n int) []int64 {
	parts := make([]int64, n)
	if n == 0 {
		return parts
	}
	share := amount / int64(n)
	rem := amount % int64(n)
	for i := range parts {
		parts[i] = share
		if int64(i) < rem {
			parts[i]++
		}
	}
	return parts
}
