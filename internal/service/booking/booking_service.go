package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/airways/internal/domain"
	"github.com/Domenick1991/airways/internal/fare"
	"github.com/Domenick1991/airways/internal/idgen"
	"github.com/Domenick1991/airways/internal/kafka"
	"github.com/Domenick1991/airways/internal/logger"
	"github.com/Domenick1991/airways/internal/payment/gateway"
	"github.com/Domenick1991/airways/internal/repository"
	"github.com/Domenick1991/airways/internal/service/inventory"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Domenick1991/airways/internal/service/booking"

type BookingUseCase interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*CreateBookingResult, error)
	GetBooking(ctx context.Context, reference string, userID int64) (*domain.Booking, error)
	CheckIn(ctx context.Context, reference string, userID int64) (*domain.Booking, error)
}

// SeatHolder keeps short-lived advisory holds on seats.
type SeatHolder interface {
	HoldSeats(ctx context.Context, flightID int64, seatIDs []int64, ttl time.Duration) (string, bool, error)
	ReleaseSeats(ctx context.Context, flightID int64, seatIDs []int64, token string) error
}

type PaymentInitiator interface {
	HasGateway(name string) bool
	InitiatePayment(ctx context.Context, reference string, userID int64, gatewayName string) (*gateway.Checkout, error)
}

type Events interface {
	Emit(ctx context.Context, event kafka.Event)
}

type FlightCache interface {
	InvalidateFlights(ctx context.Context)
}

type PassengerDetails struct {
	Name            string          `json:"name"`
	Passport        string          `json:"passport,omitempty"`
	SpecialRequests json.RawMessage `json:"special_requests,omitempty"`
}

type CreateBookingInput struct {
	UserID     int64              `json:"user_id"`
	FlightID   int64              `json:"flight_id"`
	ClassID    int64              `json:"class_id"`
	SeatIDs    []int64            `json:"seat_ids"`
	Passengers int                `json:"passengers"`
	Details    []PassengerDetails `json:"passenger_details,omitempty"`
	// Gateway, when set, starts a payment right after the booking commits.
	Gateway string `json:"gateway,omitempty"`
}

type CreateBookingResult struct {
	Booking  *domain.Booking
	Checkout *gateway.Checkout
}

type BookingServiceOption func(*BookingService)

func WithSeatHolder(holder SeatHolder, ttl time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		s.holder = holder
		s.holdTTL = ttl
	}
}

func WithPayments(p PaymentInitiator) BookingServiceOption {
	return func(s *BookingService) {
		s.payments = p
	}
}

func WithEvents(e Events) BookingServiceOption {
	return func(s *BookingService) {
		s.events = e
	}
}

func WithFlightCache(c FlightCache) BookingServiceOption {
	return func(s *BookingService) {
		s.flights = c
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

// WithReferenceAttempts bounds how many fresh references are tried when a
// generated one is already taken.
func WithReferenceAttempts(n int) BookingServiceOption {
	return func(s *BookingService) {
		if n > 0 {
			s.referenceAttempts = n
		}
	}
}

type BookingService struct {
	store             repository.Store
	fares             *fare.Calculator
	refs              idgen.Generator
	holder            SeatHolder
	holdTTL           time.Duration
	payments          PaymentInitiator
	events            Events
	flights           FlightCache
	log               logger.Logger
	now               func() time.Time
	referenceAttempts int

	tracer  trace.Tracer
	created metric.Int64Counter
	failed  metric.Int64Counter
}

var errReferenceTaken = errors.New("booking reference already in use")

func NewBookingService(
	store repository.Store,
	fares *fare.Calculator,
	refs idgen.Generator,
	log logger.Logger,
	opts ...BookingServiceOption,
) *BookingService {
	s := &BookingService{
		store:             store,
		fares:             fares,
		refs:              refs,
		log:               log,
		now:               time.Now,
		referenceAttempts: 3,
		tracer:            otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}

	meter := otel.Meter(instrumentationName)
	var err error
	if s.created, err = meter.Int64Counter("airways.bookings.created",
		metric.WithDescription("Bookings committed")); err != nil {
		log.Warn("bookings.created counter unavailable", logger.Err(err))
	}
	if s.failed, err = meter.Int64Counter("airways.bookings.failed",
		metric.WithDescription("Booking attempts rejected or rolled back")); err != nil {
		log.Warn("bookings.failed counter unavailable", logger.Err(err))
	}
	return s
}

func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (result *CreateBookingResult, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.create", trace.WithAttributes(
		attribute.Int64("flight.id", input.FlightID),
		attribute.Int64("class.id", input.ClassID),
		attribute.Int("booking.passengers", input.Passengers),
	))
	defer func() {
		attrs := metric.WithAttributes(attribute.Int64("flight.id", input.FlightID))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if s.failed != nil {
				s.failed.Add(ctx, 1, attrs)
			}
		} else if s.created != nil {
			s.created.Add(ctx, 1, attrs)
		}
		span.End()
	}()

	if err := s.validate(input); err != nil {
		return nil, err
	}

	flight, class, quote, err := s.prepare(ctx, input)
	if err != nil {
		return nil, err
	}

	if s.holder != nil {
		token, ok, err := s.holder.HoldSeats(ctx, flight.ID, input.SeatIDs, s.holdTTL)
		switch {
		case err != nil:
			s.log.Warn("seat hold unavailable, relying on store", logger.F("flight_id", flight.ID), logger.Err(err))
		case !ok:
			return nil, domain.Conflict("seats are being booked by another request")
		default:
			defer func() {
				if err := s.holder.ReleaseSeats(context.WithoutCancel(ctx), flight.ID, input.SeatIDs, token); err != nil {
					s.log.Warn("seat hold release failed", logger.F("flight_id", flight.ID), logger.Err(err))
				}
			}()
		}
	}

	booking, err := s.commit(ctx, input, flight, class, quote)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("booking.reference", booking.Reference))

	s.log.Info("booking created",
		logger.F("reference", booking.Reference),
		logger.F("flight_id", flight.ID),
		logger.F("user_id", input.UserID),
		logger.F("grand_total_cents", booking.GrandTotalCents))
	s.invalidateFlights(ctx)

	result = &CreateBookingResult{Booking: booking}
	if input.Gateway != "" {
		checkout, err := s.payments.InitiatePayment(ctx, booking.Reference, input.UserID, input.Gateway)
		if err != nil {
			// The caller gets an error, so the booking must not keep its seats.
			s.compensate(context.WithoutCancel(ctx), booking, flight.PlaneID)
			return nil, err
		}
		result.Checkout = checkout
	}

	event := bookingEvent(domain.EventBookingCreated, booking)
	event.AmountCents = booking.GrandTotalCents
	s.emit(ctx, event)
	return result, nil
}

func (s *BookingService) validate(input CreateBookingInput) error {
	if input.UserID <= 0 {
		return domain.InvalidInput("user id is required")
	}
	if input.FlightID <= 0 || input.ClassID <= 0 {
		return domain.InvalidInput("flight id and class id are required")
	}
	if input.Passengers <= 0 {
		return domain.InvalidInput("passengers must be positive")
	}
	if len(input.SeatIDs) == 0 {
		return domain.InvalidInput("at least one seat is required")
	}
	seen := make(map[int64]struct{}, len(input.SeatIDs))
	for _, id := range input.SeatIDs {
		if _, dup := seen[id]; dup {
			return domain.InvalidInput(fmt.Sprintf("seat %d requested twice", id))
		}
		seen[id] = struct{}{}
	}
	if len(input.Details) > input.Passengers {
		return domain.InvalidInput("more passenger details than passengers")
	}
	if input.Gateway != "" && (s.payments == nil || !s.payments.HasGateway(input.Gateway)) {
		return domain.InvalidInput(fmt.Sprintf("unknown payment gateway %q", input.Gateway))
	}
	return nil
}

// prepare runs the read-only checks. They fail fast; the store transaction
// repeats the ones that can change under concurrency.
func (s *BookingService) prepare(ctx context.Context, input CreateBookingInput) (*domain.Flight, *domain.Class, *fare.Quote, error) {
	q := s.store.Queries()

	flight, err := q.GetFlight(ctx, input.FlightID, repository.LockNone)
	if err != nil {
		return nil, nil, nil, err
	}
	if !flight.IsActive {
		return nil, nil, nil, domain.NotFound("flight not found")
	}
	if !flight.Bookable() || flight.DepartedAt(s.now()) {
		return nil, nil, nil, domain.InvalidState("flight is not available for booking")
	}

	class, err := q.GetClass(ctx, input.ClassID)
	if err != nil {
		return nil, nil, nil, err
	}

	seats, err := q.ListSeats(ctx, domain.SeatFilter{IDs: input.SeatIDs})
	if err != nil {
		return nil, nil, nil, err
	}
	available := 0
	for _, seat := range seats {
		if seat.PlaneID != flight.PlaneID {
			return nil, nil, nil, domain.InvalidState("seat does not belong to flight")
		}
		// the fare is priced from the requested class
		if seat.ClassID != class.ID {
			return nil, nil, nil, domain.InvalidState(fmt.Sprintf("seat %d is not in the requested class", seat.ID))
		}
		if seat.IsAvailable {
			available++
		}
	}
	if len(seats) != len(input.SeatIDs) {
		return nil, nil, nil, domain.InvalidState("seat does not belong to flight")
	}
	if available != len(input.SeatIDs) || available != input.Passengers {
		return nil, nil, nil, domain.InvalidState("not enough available seats")
	}

	quote, err := s.fares.Calculate(flight.BasePriceCents, class.Multiplier, input.Passengers)
	if err != nil {
		return nil, nil, nil, domain.InvalidState(err.Error())
	}
	return flight, class, quote, nil
}

func (s *BookingService) commit(ctx context.Context, input CreateBookingInput, flight *domain.Flight, class *domain.Class, quote *fare.Quote) (*domain.Booking, error) {
	for attempt := 1; ; attempt++ {
		reference, err := s.refs.NextReference()
		if err != nil {
			return nil, err
		}

		tickets := s.buildTickets(reference, input, class, quote)
		err = s.store.InTx(ctx, func(ctx context.Context, q repository.Queries) error {
			current, err := q.GetFlight(ctx, flight.ID, repository.LockShare)
			if err != nil {
				return err
			}
			if !current.Bookable() {
				return domain.InvalidState("flight is not available for booking")
			}

			taken, err := q.ReferenceExists(ctx, reference)
			if err != nil {
				return err
			}
			if taken {
				return errReferenceTaken
			}

			if err := inventory.ReserveSeats(ctx, q, current.PlaneID, input.SeatIDs); err != nil {
				return err
			}
			if err := q.InsertTickets(ctx, tickets); err != nil {
				return err
			}
			return q.InsertTransaction(ctx, &domain.Transaction{
				UserID:      input.UserID,
				AmountCents: quote.GrandTotalCents,
				Type:        domain.TransactionTypePayment,
				Status:      domain.TransactionStatusPending,
				ReferenceID: reference,
				Description: "Flight booking " + reference,
			})
		})
		if errors.Is(err, errReferenceTaken) && attempt < s.referenceAttempts {
			s.log.Warn("booking reference collision, retrying", logger.F("reference", reference))
			continue
		}
		if err != nil {
			return nil, err
		}

		out := make([]domain.Ticket, len(tickets))
		for i, t := range tickets {
			out[i] = *t
		}
		return domain.NewBooking(reference, out), nil
	}
}

func (s *BookingService) buildTickets(reference string, input CreateBookingInput, class *domain.Class, quote *fare.Quote) []*domain.Ticket {
	tickets := make([]*domain.Ticket, len(input.SeatIDs))
	for i, seatID := range input.SeatIDs {
		details := PassengerDetails{Name: fmt.Sprintf("Passenger %d", i+1)}
		if i < len(input.Details) {
			details.Passport = input.Details[i].Passport
			details.SpecialRequests = input.Details[i].SpecialRequests
			if input.Details[i].Name != "" {
				details.Name = input.Details[i].Name
			}
		}
		tf := quote.Tickets[i]
		tickets[i] = &domain.Ticket{
			BookingReference:  reference,
			FlightID:          input.FlightID,
			UserID:            input.UserID,
			SeatID:            seatID,
			ClassID:           class.ID,
			PassengerName:     details.Name,
			PassengerPassport: details.Passport,
			SpecialRequests:   details.SpecialRequests,
			PriceCents:        tf.PriceCents,
			TaxesFeesCents:    tf.TaxesFeesCents,
			TotalPriceCents:   tf.TotalCents,
			Status:            domain.TicketStatusBooked,
		}
	}
	return tickets
}

// compensate undoes a committed booking whose payment could not be started.
// Whatever the payment side already released is skipped.
func (s *BookingService) compensate(ctx context.Context, booking *domain.Booking, planeID int64) {
	err := s.store.InTx(ctx, func(ctx context.Context, q repository.Queries) error {
		tickets, err := q.ListTickets(ctx, domain.TicketFilter{
			Reference: booking.Reference,
			Statuses:  []domain.TicketStatus{domain.TicketStatusBooked},
		}, repository.LockUpdate)
		if err != nil {
			return err
		}
		if len(tickets) > 0 {
			ids := make([]int64, len(tickets))
			seats := make([]int64, len(tickets))
			for i, t := range tickets {
				ids[i] = t.ID
				seats[i] = t.SeatID
			}
			if _, err := q.UpdateTicketStatus(ctx, domain.TicketFilter{
				IDs:      ids,
				Statuses: []domain.TicketStatus{domain.TicketStatusBooked},
			}, domain.TicketStatusCancelled); err != nil {
				return err
			}
			if err := inventory.ReleaseSeats(ctx, q, planeID, seats); err != nil {
				return err
			}
		}

		txs, err := q.ListTransactions(ctx, domain.TransactionFilter{
			ReferenceID: booking.Reference,
			Type:        domain.TransactionTypePayment,
			Status:      domain.TransactionStatusPending,
		})
		if err != nil {
			return err
		}
		for _, tx := range txs {
			if _, err := q.UpdateTransactionStatus(ctx, tx.ID, domain.TransactionStatusPending, domain.TransactionStatusFailed, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("booking compensation failed",
			logger.F("reference", booking.Reference),
			logger.Err(err))
		return
	}
	s.log.Warn("booking compensated after payment initiation failure", logger.F("reference", booking.Reference))
	s.invalidateFlights(ctx)
}

// GetBooking resolves a reference. userID 0 skips the owner check.
func (s *BookingService) GetBooking(ctx context.Context, reference string, userID int64) (*domain.Booking, error) {
	tickets, err := s.store.Queries().ListTickets(ctx, domain.TicketFilter{Reference: reference, UserID: userID}, repository.LockNone)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, domain.NotFound("booking not found")
	}
	return domain.NewBooking(reference, tickets), nil
}

func (s *BookingService) CheckIn(ctx context.Context, reference string, userID int64) (*domain.Booking, error) {
	var booking *domain.Booking
	err := s.store.InTx(ctx, func(ctx context.Context, q repository.Queries) error {
		n, err := q.UpdateTicketStatus(ctx, domain.TicketFilter{
			Reference: reference,
			UserID:    userID,
			Statuses:  []domain.TicketStatus{domain.TicketStatusConfirmed},
		}, domain.TicketStatusCheckedIn)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.NotFound("ticket not found or already checked in")
		}
		tickets, err := q.ListTickets(ctx, domain.TicketFilter{Reference: reference, UserID: userID}, repository.LockNone)
		if err != nil {
			return err
		}
		booking = domain.NewBooking(reference, tickets)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, bookingEvent(domain.EventBookingCheckedIn, booking))
	return booking, nil
}

func (s *BookingService) emit(ctx context.Context, event kafka.Event) {
	if s.events == nil {
		return
	}
	event.OccurredAt = s.now().UTC()
	s.events.Emit(ctx, event)
}

func (s *BookingService) invalidateFlights(ctx context.Context) {
	if s.flights != nil {
		s.flights.InvalidateFlights(ctx)
	}
}

func bookingEvent(eventType string, b *domain.Booking) kafka.Event {
	event := kafka.NewEvent(eventType)
	event.Reference = b.Reference
	event.UserID = b.UserID
	event.FlightID = b.FlightID
	for _, t := range b.Tickets {
		event.TicketIDs = append(event.TicketIDs, t.ID)
	}
	return event
}

var _ BookingUseCase = (*BookingService)(nil)
