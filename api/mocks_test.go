package api

import (
	"context"
	"net/http"

	"github.com/Domenick1991/airways/internal/domain"
	"github.com/Domenick1991/airways/internal/payment/gateway"
	"github.com/Domenick1991/airways/internal/service/booking"
	"github.com/Domenick1991/airways/internal/service/cancellation"
	"github.com/Domenick1991/airways/internal/service/inventory"
	"github.com/Domenick1991/airways/internal/service/payment"
	"github.com/stretchr/testify/mock"
)

type MockInventoryUseCase struct {
	mock.Mock
}

func (m *MockInventoryUseCase) ListFlights(ctx context.Context) ([]domain.Flight, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Flight), args.Error(1)
}

func (m *MockInventoryUseCase) GetFlight(ctx context.Context, id int64) (*domain.Flight, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Flight), args.Error(1)
}

func (m *MockInventoryUseCase) FlightSeats(ctx context.Context, flightID int64, query inventory.SeatQuery) (*inventory.FlightSeats, error) {
	args := m.Called(ctx, flightID, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.FlightSeats), args.Error(1)
}

type MockBookingUseCase struct {
	mock.Mock
}

func (m *MockBookingUseCase) CreateBooking(ctx context.Context, input booking.CreateBookingInput) (*booking.CreateBookingResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.CreateBookingResult), args.Error(1)
}

func (m *MockBookingUseCase) GetBooking(ctx context.Context, reference string, userID int64) (*domain.Booking, error) {
	args := m.Called(ctx, reference, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) CheckIn(ctx context.Context, reference string, userID int64) (*domain.Booking, error) {
	args := m.Called(ctx, reference, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

type MockCanceller struct {
	mock.Mock
}

func (m *MockCanceller) CancelBooking(ctx context.Context, reference string, userID int64) (*cancellation.BookingCancellation, error) {
	args := m.Called(ctx, reference, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cancellation.BookingCancellation), args.Error(1)
}

func (m *MockCanceller) CancelFlight(ctx context.Context, flightID int64, reason string) (*cancellation.FlightCancellation, error) {
	args := m.Called(ctx, flightID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cancellation.FlightCancellation), args.Error(1)
}

func (m *MockCanceller) ReverseFlightTickets(ctx context.Context, flightID int64, reason string) (*cancellation.FlightCancellation, error) {
	args := m.Called(ctx, flightID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cancellation.FlightCancellation), args.Error(1)
}

func (m *MockCanceller) DeleteFlight(ctx context.Context, flightID int64) error {
	return m.Called(ctx, flightID).Error(0)
}

type MockPayments struct {
	mock.Mock
}

func (m *MockPayments) InitiatePayment(ctx context.Context, reference string, userID int64, gatewayName string) (*gateway.Checkout, error) {
	args := m.Called(ctx, reference, userID, gatewayName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Checkout), args.Error(1)
}

func (m *MockPayments) HandleCallback(ctx context.Context, gatewayName string, header http.Header, body []byte) (payment.Result, error) {
	args := m.Called(ctx, gatewayName, header, body)
	return args.Get(0).(payment.Result), args.Error(1)
}
