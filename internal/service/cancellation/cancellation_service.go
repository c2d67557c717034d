// Package cancellation reverses bookings: user cancellations, flight
// cancellations and the guarded soft delete of flights.
package cancellation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/airways/internal/domain"
	"github.com/Domenick1991/airways/internal/kafka"
	"github.com/Domenick1991/airways/internal/logger"
	"github.com/Domenick1991/airways/internal/repository"
	"github.com/Domenick1991/airways/internal/service/inventory"
)

const defaultFlightCancelReason = "Administrative cancellation"

type CancellationUseCase interface {
	CancelBooking(ctx context.Context, reference string, userID int64) (*BookingCancellation, error)
	CancelFlight(ctx context.Context, flightID int64, reason string) (*FlightCancellation, error)
	ReverseFlightTickets(ctx context.Context, flightID int64, reason string) (*FlightCancellation, error)
	DeleteFlight(ctx context.Context, flightID int64) error
	SweepCancelledFlights(ctx context.Context) (int, error)
}

type Events interface {
	Emit(ctx context.Context, event kafka.Event)
}

type FlightCache interface {
	InvalidateFlights(ctx context.Context)
}

type BookingCancellation struct {
	Reference   string
	TicketIDs   []int64
	RefundCents int64
}

type FlightCancellation struct {
	FlightID         int64
	CancelledTickets int
	RefundedCents    int64
}

// PartialReversalError lists the tickets of a cancelled flight that could not
// be reversed. ReverseFlightTickets retries them.
type PartialReversalError struct {
	FlightID int64
	Failed   []int64
	Causes   []error
}

func (e *PartialReversalError) Error() string {
	ids := make([]string, len(e.Failed))
	for i, id := range e.Failed {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("flight %d: %d ticket(s) not reversed: %s", e.FlightID, len(e.Failed), strings.Join(ids, ","))
}

func (e *PartialReversalError) Unwrap() []error {
	return e.Causes
}

type CancellationServiceOption func(*CancellationService)

func WithEvents(e Events) CancellationServiceOption {
	return func(s *CancellationService) {
		s.events = e
	}
}

func WithFlightCache(c FlightCache) CancellationServiceOption {
	return func(s *CancellationService) {
		s.flights = c
	}
}

func WithClock(now func() time.Time) CancellationServiceOption {
	return func(s *CancellationService) {
		s.now = now
	}
}

type CancellationService struct {
	store   repository.Store
	events  Events
	flights FlightCache
	log     logger.Logger
	now     func() time.Time
}

func NewCancellationService(store repository.Store, log logger.Logger, opts ...CancellationServiceOption) *CancellationService {
	s := &CancellationService{store: store, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CancelBooking cancels every BOOKED or CONFIRMED ticket of the booking and
// books one refund for their sum. The departure check is read in the same
// transaction as the writes.
func (s *CancellationService) CancelBooking(ctx context.Context, reference string, userID int64) (*BookingCancellation, error) {
	var (
		out    BookingCancellation
		userOf int64
	)
	err := s.store.InTx(ctx, func(ctx context.Context, q repository.Queries) error {
		out = BookingCancellation{Reference: reference}
		tickets, err := q.ListTickets(ctx, domain.TicketFilter{Reference: reference, UserID: userID}, repository.LockUpdate)
		if err != nil {
			return err
		}
		if len(tickets) == 0 {
			return domain.NotFound("booking not found")
		}

		var cancellable []domain.Ticket
		for _, t := range tickets {
			if t.Status.CanTransitionTo(domain.TicketStatusCancelled) {
				cancellable = append(cancellable, t)
				out.TicketIDs = append(out.TicketIDs, t.ID)
			}
		}
		if len(cancellable) == 0 {
			if domain.NewBooking(reference, tickets).Status() == domain.TicketStatusCancelled {
				return domain.InvalidState("booking already cancelled")
			}
			return domain.InvalidState("booking can no longer be cancelled")
		}

		flight, err := q.GetFlight(ctx, tickets[0].FlightID, repository.LockShare)
		if err != nil {
			return err
		}
		if flight.DepartedAt(s.now()) {
			return domain.InvalidState("cannot cancel booking after flight departure")
		}

		n, err := q.UpdateTicketStatus(ctx, domain.TicketFilter{
			IDs:      out.TicketIDs,
			Statuses: domain.ActiveTicketStatuses,
		}, domain.TicketStatusCancelled)
		if err != nil {
			return err
		}
		if n != int64(len(out.TicketIDs)) {
			return domain.Conflict("booking changed during cancellation")
		}
		released := domain.NewBooking(reference, cancellable)
		if err := inventory.ReleaseSeats(ctx, q, flight.PlaneID, released.SeatIDs()); err != nil {
			return err
		}
		out.RefundCents = released.GrandTotalCents

		userOf = tickets[0].UserID
		return q.InsertTransaction(ctx, &domain.Transaction{
			UserID:      userOf,
			AmountCents: -out.RefundCents,
			Type:        domain.TransactionTypeRefund,
			Status:      domain.TransactionStatusCompleted,
			ReferenceID: reference,
			Description: "Booking cancellation " + reference,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("booking cancelled",
		logger.F("reference", reference),
		logger.F("tickets", len(out.TicketIDs)),
		logger.F("refund_cents", out.RefundCents))
	s.invalidateFlights(ctx)

	event := s.newEvent(domain.EventBookingCancelled)
	event.Reference = reference
	event.UserID = userOf
	event.TicketIDs = out.TicketIDs
	event.AmountCents = -out.RefundCents
	s.emit(ctx, event)
	return &out, nil
}

// CancelFlight marks the flight CANCELLED and then reverses each active ticket
// in its own transaction.
func (s *CancellationService) CancelFlight(ctx context.Context, flightID int64, reason string) (*FlightCancellation, error) {
	err := s.store.InTx(ctx, func(ctx context.Context, q repository.Queries) error {
		flight, err := q.GetFlight(ctx, flightID, repository.LockUpdate)
		if err != nil {
			return err
		}
		if flight.Status == domain.FlightStatusCancelled {
			return domain.InvalidState("flight is already cancelled")
		}
		return q.SetFlightStatus(ctx, flightID, domain.FlightStatusCancelled)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("flight cancelled", logger.F("flight_id", flightID), logger.F("reason", reason))
	s.invalidateFlights(ctx)

	res, err := s.reverseTickets(ctx, flightID, reason)

	event := s.newEvent(domain.EventFlightCancelled)
	event.FlightID = flightID
	event.Reason = reasonOrDefault(reason)
	if res != nil {
		event.AmountCents = -res.RefundedCents
	}
	s.emit(ctx, event)
	return res, err
}

// ReverseFlightTickets re-runs ticket reversal for a flight that is already
// CANCELLED, e.g. after a PartialReversalError.
func (s *CancellationService) ReverseFlightTickets(ctx context.Context, flightID int64, reason string) (*FlightCancellation, error) {
	flight, err := s.store.Queries().GetFlight(ctx, flightID, repository.LockNone)
	if err != nil {
		return nil, err
	}
	if flight.Status != domain.FlightStatusCancelled {
		return nil, domain.InvalidState("flight is not cancelled")
	}
	return s.reverseTickets(ctx, flightID, reason)
}

func (s *CancellationService) reverseTickets(ctx context.Context, flightID int64, reason string) (*FlightCancellation, error) {
	res := &FlightCancellation{FlightID: flightID}
	q := s.store.Queries()

	flight, err := q.GetFlight(ctx, flightID, repository.LockNone)
	if err != nil {
		return res, err
	}
	tickets, err := q.ListTickets(ctx, domain.TicketFilter{
		FlightID: flightID,
		Statuses: domain.ActiveTicketStatuses,
	}, repository.LockNone)
	if err != nil {
		return res, err
	}

	description := "Flight cancellation refund - " + reasonOrDefault(reason)
	var partial *PartialReversalError
	for _, t := range tickets {
		refund, err := s.reverseTicket(ctx, flight.PlaneID, t.ID, description)
		if err != nil {
			s.log.Error("ticket reversal failed",
				logger.F("flight_id", flightID),
				logger.F("ticket_id", t.ID),
				logger.Err(err))
			if partial == nil {
				partial = &PartialReversalError{FlightID: flightID}
			}
			partial.Failed = append(partial.Failed, t.ID)
			partial.Causes = append(partial.Causes, err)
			continue
		}
		if refund == nil {
			continue
		}
		res.CancelledTickets++
		res.RefundedCents += -refund.AmountCents
	}
	if res.CancelledTickets > 0 {
		s.invalidateFlights(ctx)
	}
	if partial != nil {
		return res, partial
	}
	return res, nil
}

// reverseTicket cancels one ticket, frees its seat and books its refund. A nil
// refund means the ticket was no longer active.
func (s *CancellationService) reverseTicket(ctx context.Context, planeID, ticketID int64, description string) (*domain.Transaction, error) {
	var refund *domain.Transaction
	err := s.store.InTx(ctx, func(ctx context.Context, q repository.Queries) error {
		refund = nil
		active := domain.TicketFilter{IDs: []int64{ticketID}, Statuses: domain.ActiveTicketStatuses}
		tickets, err := q.ListTickets(ctx, active, repository.LockUpdate)
		if err != nil || len(tickets) == 0 {
			return err
		}
		t := tickets[0]

		if _, err := q.UpdateTicketStatus(ctx, active, domain.TicketStatusCancelled); err != nil {
			return err
		}
		if err := inventory.ReleaseSeats(ctx, q, planeID, []int64{t.SeatID}); err != nil {
			return err
		}
		tx := &domain.Transaction{
			UserID:      t.UserID,
			AmountCents: -t.TotalPriceCents,
			Type:        domain.TransactionTypeRefund,
			Status:      domain.TransactionStatusCompleted,
			ReferenceID: t.BookingReference,
			Description: description,
		}
		if err := q.InsertTransaction(ctx, tx); err != nil {
			return err
		}
		refund = tx
		return nil
	})
	return refund, err
}

// DeleteFlight soft-deletes a flight that has no open tickets.
func (s *CancellationService) DeleteFlight(ctx context.Context, flightID int64) error {
	err := s.store.InTx(ctx, func(ctx context.Context, q repository.Queries) error {
		flight, err := q.GetFlight(ctx, flightID, repository.LockUpdate)
		if err != nil {
			return err
		}
		if !flight.IsActive {
			return domain.NotFound("flight not found")
		}
		open, err := q.CountTickets(ctx, domain.TicketFilter{
			FlightID: flightID,
			Statuses: domain.OpenTicketStatuses,
		})
		if err != nil {
			return err
		}
		if open > 0 {
			return domain.Forbidden("cannot delete flight with active bookings; cancel all bookings first")
		}
		return q.DeactivateFlight(ctx, flightID)
	})
	if err != nil {
		return err
	}
	s.log.Info("flight deleted", logger.F("flight_id", flightID))
	s.invalidateFlights(ctx)
	return nil
}

// SweepCancelledFlights reverses tickets left active on cancelled flights and
// returns how many were reversed.
func (s *CancellationService) SweepCancelledFlights(ctx context.Context) (int, error) {
	ids, err := s.store.Queries().ListFlightsWithTickets(ctx, domain.FlightStatusCancelled, domain.ActiveTicketStatuses)
	if err != nil {
		return 0, err
	}
	total := 0
	var errs []error
	for _, id := range ids {
		res, err := s.reverseTickets(ctx, id, "")
		if res != nil {
			total += res.CancelledTickets
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if total > 0 {
		s.log.Info("cancelled flights swept", logger.F("flights", len(ids)), logger.F("tickets", total))
	}
	return total, errors.Join(errs...)
}

func (s *CancellationService) newEvent(eventType string) kafka.Event {
	event := kafka.NewEvent(eventType)
	event.OccurredAt = s.now().UTC()
	return event
}

func (s *CancellationService) emit(ctx context.Context, event kafka.Event) {
	if s.events != nil {
		s.events.Emit(ctx, event)
	}
}

func (s *CancellationService) invalidateFlights(ctx context.Context) {
	if s.flights != nil {
		s.flights.InvalidateFlights(ctx)
	}
}

func reasonOrDefault(reason string) string {
	if strings.TrimSpace(reason) == "" {
		return defaultFlightCancelReason
	}
	return reason
}

var _ CancellationUseCase = (*CancellationService)(nil)
