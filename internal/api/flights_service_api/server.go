package flights_service_api

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/airways/internal/api/codec"
	"github.com/Domenick1991/airways/internal/domain"
	"github.com/Domenick1991/airways/internal/service/cancellation"
	"github.com/Domenick1991/airways/internal/service/inventory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "airways.flights.v1.FlightsService"

type FlightAdmin interface {
	CancelFlight(ctx context.Context, flightID int64, reason string) (*cancellation.FlightCancellation, error)
	DeleteFlight(ctx context.Context, flightID int64) error
}

type Empty struct{}

type Flight struct {
	ID               int64  `json:"id"`
	FlightNumber     string `json:"flight_number"`
	DepartureAirport string `json:"departure_airport"`
	ArrivalAirport   string `json:"arrival_airport"`
	DepartureTime    string `json:"departure_time"`
	ArrivalTime      string `json:"arrival_time"`
	BasePriceCents   int64  `json:"base_price_cents"`
	Status           string `json:"status"`
	AvailableSeats   int32  `json:"available_seats"`
}

type Seat struct {
	ID          int64  `json:"id"`
	SeatNumber  string `json:"seat_number"`
	ClassID     int64  `json:"class_id"`
	IsAvailable bool   `json:"is_available"`
}

type ListFlightsResponse struct {
	Flights []Flight `json:"flights"`
}

type FlightRequest struct {
	ID int64 `json:"id"`
}

type FlightSeatsRequest struct {
	ID            int64 `json:"id"`
	ClassID       int64 `json:"class_id,omitempty"`
	OnlyAvailable bool  `json:"only_available,omitempty"`
	Limit         int32 `json:"limit,omitempty"`
}

type FlightSeatsResponse struct {
	Flight Flight `json:"flight"`
	Seats  []Seat `json:"seats"`
}

type CancelFlightRequest struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason,omitempty"`
}

type CancelFlightResponse struct {
	CancelledTickets int32 `json:"cancelled_tickets"`
	RefundedCents    int64 `json:"refunded_cents"`
}

type FlightsServiceServer interface {
	ListFlights(ctx context.Context, req *Empty) (*ListFlightsResponse, error)
	GetFlight(ctx context.Context, req *FlightRequest) (*Flight, error)
	FlightSeats(ctx context.Context, req *FlightSeatsRequest) (*FlightSeatsResponse, error)
	CancelFlight(ctx context.Context, req *CancelFlightRequest) (*CancelFlightResponse, error)
	DeleteFlight(ctx context.Context, req *FlightRequest) (*Empty, error)
}

// Server exposes flight lookup and administration over gRPC.
type Server struct {
	flights inventory.InventoryUseCase
	admin   FlightAdmin
}

func NewServer(flights inventory.InventoryUseCase, admin FlightAdmin) *Server {
	return &Server{flights: flights, admin: admin}
}

func (s *Server) ListFlights(ctx context.Context, _ *Empty) (*ListFlightsResponse, error) {
	list, err := s.flights.ListFlights(ctx)
	if err != nil {
		return nil, codec.Status(err)
	}
	resp := &ListFlightsResponse{Flights: make([]Flight, 0, len(list))}
	for i := range list {
		resp.Flights = append(resp.Flights, toFlight(&list[i]))
	}
	return resp, nil
}

func (s *Server) GetFlight(ctx context.Context, req *FlightRequest) (*Flight, error) {
	flight, err := s.flights.GetFlight(ctx, req.ID)
	if err != nil {
		return nil, codec.Status(err)
	}
	out := toFlight(flight)
	return &out, nil
}

func (s *Server) FlightSeats(ctx context.Context, req *FlightSeatsRequest) (*FlightSeatsResponse, error) {
	res, err := s.flights.FlightSeats(ctx, req.ID, inventory.SeatQuery{
		ClassID:       req.ClassID,
		OnlyAvailable: req.OnlyAvailable,
		Limit:         int(req.Limit),
	})
	if err != nil {
		return nil, codec.Status(err)
	}
	out := &FlightSeatsResponse{Flight: toFlight(&res.Flight), Seats: make([]Seat, len(res.Seats))}
	for i, seat := range res.Seats {
		out.Seats[i] = Seat{ID: seat.ID, SeatNumber: seat.SeatNumber, ClassID: seat.ClassID, IsAvailable: seat.IsAvailable}
	}
	return out, nil
}

// CancelFlight reports a partial reversal as an error; the flight itself is
// cancelled either way.
func (s *Server) CancelFlight(ctx context.Context, req *CancelFlightRequest) (*CancelFlightResponse, error) {
	res, err := s.admin.CancelFlight(ctx, req.ID, req.Reason)
	var partial *cancellation.PartialReversalError
	if errors.As(err, &partial) {
		return nil, status.Error(codes.Aborted, partial.Error())
	}
	if err != nil {
		return nil, codec.Status(err)
	}
	return &CancelFlightResponse{
		CancelledTickets: int32(res.CancelledTickets),
		RefundedCents:    res.RefundedCents,
	}, nil
}

func (s *Server) DeleteFlight(ctx context.Context, req *FlightRequest) (*Empty, error) {
	if err := s.admin.DeleteFlight(ctx, req.ID); err != nil {
		return nil, codec.Status(err)
	}
	return &Empty{}, nil
}

func toFlight(f *domain.Flight) Flight {
	return Flight{
		ID:               f.ID,
		FlightNumber:     f.FlightNumber,
		DepartureAirport: f.DepartureAirport,
		ArrivalAirport:   f.ArrivalAirport,
		DepartureTime:    f.DepartureTime.Format(time.RFC3339),
		ArrivalTime:      f.ArrivalTime.Format(time.RFC3339),
		BasePriceCents:   f.BasePriceCents,
		Status:           string(f.Status),
		AvailableSeats:   int32(f.AvailableSeats),
	}
}

func RegisterFlightsServiceServer(s grpc.ServiceRegistrar, srv FlightsServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FlightsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListFlights", Handler: codec.Unary(ServiceName, "ListFlights", func(s FlightsServiceServer, ctx context.Context, req *Empty) (any, error) {
			return s.ListFlights(ctx, req)
		})},
		{MethodName: "GetFlight", Handler: codec.Unary(ServiceName, "GetFlight", func(s FlightsServiceServer, ctx context.Context, req *FlightRequest) (any, error) {
			return s.GetFlight(ctx, req)
		})},
		{MethodName: "FlightSeats", Handler: codec.Unary(ServiceName, "FlightSeats", func(s FlightsServiceServer, ctx context.Context, req *FlightSeatsRequest) (any, error) {
			return s.FlightSeats(ctx, req)
		})},
		{MethodName: "CancelFlight", Handler: codec.Unary(ServiceName, "CancelFlight", func(s FlightsServiceServer, ctx context.Context, req *CancelFlightRequest) (any, error) {
			return s.CancelFlight(ctx, req)
		})},
		{MethodName: "DeleteFlight", Handler: codec.Unary(ServiceName, "DeleteFlight", func(s FlightsServiceServer, ctx context.Context, req *FlightRequest) (any, error) {
			return s.DeleteFlight(ctx, req)
		})},
	},
	Metadata: "flights.json",
}

type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) ListFlights(ctx context.Context) (*ListFlightsResponse, error) {
	return codec.Invoke[ListFlightsResponse](ctx, c.cc, ServiceName, "ListFlights", &Empty{})
}

func (c *Client) GetFlight(ctx context.Context, id int64) (*Flight, error) {
	return codec.Invoke[Flight](ctx, c.cc, ServiceName, "GetFlight", &FlightRequest{ID: id})
}

func (c *Client) FlightSeats(ctx context.Context, req *FlightSeatsRequest) (*FlightSeatsResponse, error) {
	return codec.Invoke[FlightSeatsResponse](ctx, c.cc, ServiceName, "FlightSeats", req)
}

func (c *Client) CancelFlight(ctx context.Context, req *CancelFlightRequest) (*CancelFlightResponse, error) {
	return codec.Invoke[CancelFlightResponse](ctx, c.cc, ServiceName, "CancelFlight", req)
}

func (c *Client) DeleteFlight(ctx context.Context, id int64) error {
	_, err := codec.Invoke[Empty](ctx, c.cc, ServiceName, "DeleteFlight", &FlightRequest{ID: id})
	return err
}

var _ FlightsServiceServer = (*Server)(nil)
