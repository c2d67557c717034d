package api

import (
	"time"

	"github.com/Domenick1991/airways/internal/domain"
	"github.com/Domenick1991/airways/internal/payment/gateway"
	"github.com/shopspring/decimal"
)

type flightResponse struct {
	ID               int64  `json:"id"`
	FlightNumber     string `json:"flight_number"`
	DepartureAirport string `json:"departure_airport"`
	ArrivalAirport   string `json:"arrival_airport"`
	DepartureTime    string `json:"departure_time"`
	ArrivalTime      string `json:"arrival_time"`
	BasePrice        string `json:"base_price"`
	Gate             string `json:"gate,omitempty"`
	Terminal         string `json:"terminal,omitempty"`
	Status           string `json:"status"`
	AvailableSeats   int    `json:"available_seats"`
}

type seatResponse struct {
	ID          int64  `json:"id"`
	SeatNumber  string `json:"seat_number"`
	ClassID     int64  `json:"class_id"`
	IsAvailable bool   `json:"is_available"`
	IsWindow    bool   `json:"is_window"`
	IsAisle     bool   `json:"is_aisle"`
}

type ticketResponse struct {
	ID                int64  `json:"id"`
	SeatID            int64  `json:"seat_id"`
	ClassID           int64  `json:"class_id"`
	PassengerName     string `json:"passenger_name"`
	PassengerPassport string `json:"passenger_passport,omitempty"`
	Price             string `json:"price"`
	TaxesFees         string `json:"taxes_fees"`
	TotalPrice        string `json:"total_price"`
	Status            string `json:"status"`
}

type checkoutResponse struct {
	PaymentURL   string `json:"payment_url,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	ExternalID   string `json:"external_id,omitempty"`
}

type bookingResponse struct {
	Reference  string            `json:"reference"`
	Status     string            `json:"status"`
	FlightID   int64             `json:"flight_id"`
	GrandTotal string            `json:"grand_total"`
	Tickets    []ticketResponse  `json:"tickets"`
	Payment    *checkoutResponse `json:"payment,omitempty"`
}

func money(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

func newFlightResponse(f *domain.Flight) flightResponse {
	return flightResponse{
		ID:               f.ID,
		FlightNumber:     f.FlightNumber,
		DepartureAirport: f.DepartureAirport,
		ArrivalAirport:   f.ArrivalAirport,
		DepartureTime:    f.DepartureTime.Format(time.RFC3339),
		ArrivalTime:      f.ArrivalTime.Format(time.RFC3339),
		BasePrice:        money(f.BasePriceCents),
		Gate:             f.Gate,
		Terminal:         f.Terminal,
		Status:           string(f.Status),
		AvailableSeats:   f.AvailableSeats,
	}
}

func newSeatResponses(seats []domain.Seat) []seatResponse {
	out := make([]seatResponse, len(seats))
	for i, s := range seats {
		out[i] = seatResponse{
			ID:          s.ID,
			SeatNumber:  s.SeatNumber,
			ClassID:     s.ClassID,
			IsAvailable: s.IsAvailable,
			IsWindow:    s.IsWindow,
			IsAisle:     s.IsAisle,
		}
	}
	return out
}

func newBookingResponse(b *domain.Booking, checkout *gateway.Checkout) bookingResponse {
	resp := bookingResponse{
		Reference:  b.Reference,
		Status:     string(b.Status()),
		FlightID:   b.FlightID,
		GrandTotal: money(b.GrandTotalCents),
		Tickets:    make([]ticketResponse, len(b.Tickets)),
	}
	for i, t := range b.Tickets {
		resp.Tickets[i] = ticketResponse{
			ID:                t.ID,
			SeatID:            t.SeatID,
			ClassID:           t.ClassID,
			PassengerName:     t.PassengerName,
			PassengerPassport: t.PassengerPassport,
			Price:             money(t.PriceCents),
			TaxesFees:         money(t.TaxesFeesCents),
			TotalPrice:        money(t.TotalPriceCents),
			Status:            string(t.Status),
		}
	}
	if checkout != nil {
		resp.Payment = newCheckoutResponse(checkout)
	}
	return resp
}

func newCheckoutResponse(c *gateway.Checkout) *checkoutResponse {
	return &checkoutResponse{PaymentURL: c.PaymentURL, ClientSecret: c.ClientSecret, ExternalID: c.ExternalID}
}
