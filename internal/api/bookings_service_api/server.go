package bookings_service_api

import (
	"context"
	"time"

	"github.com/Domenick1991/airways/internal/api/codec"
	"github.com/Domenick1991/airways/internal/domain"
	"github.com/Domenick1991/airways/internal/service/booking"
	"github.com/Domenick1991/airways/internal/service/cancellation"
	"google.golang.org/grpc"
)

const ServiceName = "airways.bookings.v1.BookingsService"

type Canceller interface {
	CancelBooking(ctx context.Context, reference string, userID int64) (*cancellation.BookingCancellation, error)
}

type Passenger struct {
	Name     string `json:"name"`
	Passport string `json:"passport,omitempty"`
}

type CreateBookingRequest struct {
	UserID     int64       `json:"user_id"`
	FlightID   int64       `json:"flight_id"`
	ClassID    int64       `json:"class_id"`
	SeatIDs    []int64     `json:"seat_ids"`
	Passengers int32       `json:"passengers"`
	Details    []Passenger `json:"passenger_details,omitempty"`
	Gateway    string      `json:"gateway,omitempty"`
}

type BookingRequest struct {
	Reference string `json:"reference"`
	UserID    int64  `json:"user_id"`
}

type Ticket struct {
	ID              int64  `json:"id"`
	SeatID          int64  `json:"seat_id"`
	PassengerName   string `json:"passenger_name"`
	TotalPriceCents int64  `json:"total_price_cents"`
	Status          string `json:"status"`
}

type Booking struct {
	Reference       string   `json:"reference"`
	Status          string   `json:"status"`
	FlightID        int64    `json:"flight_id"`
	GrandTotalCents int64    `json:"grand_total_cents"`
	CreatedAt       string   `json:"created_at"`
	Tickets         []Ticket `json:"tickets"`
	PaymentURL      string   `json:"payment_url,omitempty"`
	ClientSecret    string   `json:"client_secret,omitempty"`
}

type CancelBookingResponse struct {
	Reference        string `json:"reference"`
	CancelledTickets int32  `json:"cancelled_tickets"`
	RefundCents      int64  `json:"refund_cents"`
}

type BookingsServiceServer interface {
	CreateBooking(ctx context.Context, req *CreateBookingRequest) (*Booking, error)
	GetBooking(ctx context.Context, req *BookingRequest) (*Booking, error)
	CheckIn(ctx context.Context, req *BookingRequest) (*Booking, error)
	CancelBooking(ctx context.Context, req *BookingRequest) (*CancelBookingResponse, error)
}

// Server exposes the booking use cases over gRPC.
type Server struct {
	bookings booking.BookingUseCase
	cancel   Canceller
}

func NewServer(bookings booking.BookingUseCase, cancel Canceller) *Server {
	return &Server{bookings: bookings, cancel: cancel}
}

func (s *Server) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*Booking, error) {
	input := booking.CreateBookingInput{
		UserID:     req.UserID,
		FlightID:   req.FlightID,
		ClassID:    req.ClassID,
		SeatIDs:    req.SeatIDs,
		Passengers: int(req.Passengers),
		Gateway:    req.Gateway,
	}
	for _, p := range req.Details {
		input.Details = append(input.Details, booking.PassengerDetails{Name: p.Name, Passport: p.Passport})
	}
	res, err := s.bookings.CreateBooking(ctx, input)
	if err != nil {
		return nil, codec.Status(err)
	}
	out := toBooking(res.Booking)
	if res.Checkout != nil {
		out.PaymentURL = res.Checkout.PaymentURL
		out.ClientSecret = res.Checkout.ClientSecret
	}
	return out, nil
}

func (s *Server) GetBooking(ctx context.Context, req *BookingRequest) (*Booking, error) {
	b, err := s.bookings.GetBooking(ctx, req.Reference, req.UserID)
	if err != nil {
		return nil, codec.Status(err)
	}
	return toBooking(b), nil
}

func (s *Server) CheckIn(ctx context.Context, req *BookingRequest) (*Booking, error) {
	b, err := s.bookings.CheckIn(ctx, req.Reference, req.UserID)
	if err != nil {
		return nil, codec.Status(err)
	}
	return toBooking(b), nil
}

func (s *Server) CancelBooking(ctx context.Context, req *BookingRequest) (*CancelBookingResponse, error) {
	res, err := s.cancel.CancelBooking(ctx, req.Reference, req.UserID)
	if err != nil {
		return nil, codec.Status(err)
	}
	return &CancelBookingResponse{
		Reference:        res.Reference,
		CancelledTickets: int32(len(res.TicketIDs)),
		RefundCents:      res.RefundCents,
	}, nil
}

func toBooking(b *domain.Booking) *Booking {
	out := &Booking{
		Reference:       b.Reference,
		Status:          string(b.Status()),
		FlightID:        b.FlightID,
		GrandTotalCents: b.GrandTotalCents,
		CreatedAt:       b.CreatedAt.Format(time.RFC3339),
		Tickets:         make([]Ticket, len(b.Tickets)),
	}
	for i, t := range b.Tickets {
		out.Tickets[i] = Ticket{
			ID:              t.ID,
			SeatID:          t.SeatID,
			PassengerName:   t.PassengerName,
			TotalPriceCents: t.TotalPriceCents,
			Status:          string(t.Status),
		}
	}
	return out
}

func RegisterBookingsServiceServer(s grpc.ServiceRegistrar, srv BookingsServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BookingsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateBooking", Handler: codec.Unary(ServiceName, "CreateBooking", func(s BookingsServiceServer, ctx context.Context, req *CreateBookingRequest) (any, error) {
			return s.CreateBooking(ctx, req)
		})},
		{MethodName: "GetBooking", Handler: codec.Unary(ServiceName, "GetBooking", func(s BookingsServiceServer, ctx context.Context, req *BookingRequest) (any, error) {
			return s.GetBooking(ctx, req)
		})},
		{MethodName: "CheckIn", Handler: codec.Unary(ServiceName, "CheckIn", func(s BookingsServiceServer, ctx context.Context, req *BookingRequest) (any, error) {
			return s.CheckIn(ctx, req)
		})},
		{MethodName: "CancelBooking", Handler: codec.Unary(ServiceName, "CancelBooking", func(s BookingsServiceServer, ctx context.Context, req *BookingRequest) (any, error) {
			return s.CancelBooking(ctx, req)
		})},
	},
	Metadata: "bookings.json",
}

// Client calls a BookingsService over a connection using the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*Booking, error) {
	return codec.Invoke[Booking](ctx, c.cc, ServiceName, "CreateBooking", req)
}

func (c *Client) GetBooking(ctx context.Context, req *BookingRequest) (*Booking, error) {
	return codec.Invoke[Booking](ctx, c.cc, ServiceName, "GetBooking", req)
}

func (c *Client) CheckIn(ctx context.Context, req *BookingRequest) (*Booking, error) {
	return codec.Invoke[Booking](ctx, c.cc, ServiceName, "CheckIn", req)
}

func (c *Client) CancelBooking(ctx context.Context, req *BookingRequest) (*CancelBookingResponse, error) {
	return codec.Invoke[CancelBookingResponse](ctx, c.cc, ServiceName, "CancelBooking", req)
}

var _ BookingsServiceServer = (*Server)(nil)
