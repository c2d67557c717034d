package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Domenick1991/airways/internal/domain"
)

// ErrSeatStateMismatch is returned by FlipSeats when at least one seat was not
// in the expected prior state. Nothing is changed in that case.
var ErrSeatStateMismatch = errors.New("seat state mismatch")

// LockMode selects row locking for reads inside a transaction.
type LockMode int

const (
	LockNone LockMode = iota
	LockShare
	LockUpdate
)

// Queries are the store primitives. They run either directly against the
// store or inside a transaction opened by Store.InTx.
type Queries interface {
	ListFlights(ctx context.Context) ([]domain.Flight, error)
	GetFlight(ctx context.Context, id int64, lock LockMode) (*domain.Flight, error)
	SetFlightStatus(ctx context.Context, id int64, status domain.FlightStatus) error
	DeactivateFlight(ctx context.Context, id int64) error
	ListFlightsWithTickets(ctx context.Context, status domain.FlightStatus, ticketStatuses []domain.TicketStatus) ([]int64, error)

	GetClass(ctx context.Context, id int64) (*domain.Class, error)
	ListSeats(ctx context.Context, filter domain.SeatFilter) ([]domain.Seat, error)
	// FlipSeats sets is_available on every listed seat of the plane. It fails
	// with ErrSeatStateMismatch unless all seats are currently !available.
	FlipSeats(ctx context.Context, planeID int64, seatIDs []int64, available bool) error

	ReferenceExists(ctx context.Context, reference string) (bool, error)
	InsertTickets(ctx context.Context, tickets []*domain.Ticket) error
	ListTickets(ctx context.Context, filter domain.TicketFilter, lock LockMode) ([]domain.Ticket, error)
	CountTickets(ctx context.Context, filter domain.TicketFilter) (int, error)
	// UpdateTicketStatus moves tickets matching filter (Statuses act as the
	// expected prior states) to status and returns how many rows changed.
	UpdateTicketStatus(ctx context.Context, filter domain.TicketFilter, status domain.TicketStatus) (int64, error)

	InsertTransaction(ctx context.Context, tx *domain.Transaction) error
	GetTransaction(ctx context.Context, id int64, lock LockMode) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
	// UpdateTransactionStatus applies from -> to and reports whether a row changed.
	UpdateTransactionStatus(ctx context.Context, id int64, from, to domain.TransactionStatus, response json.RawMessage) (bool, error)
	SetTransactionGateway(ctx context.Context, id int64, gateway, gatewayReference string, response json.RawMessage) error
}

type TxFunc func(ctx context.Context, q Queries) error

// Store is the storage port of the booking core.
type Store interface {
	Queries() Queries
	// InTx runs fn in one transaction. Any error from fn rolls everything back.
	InTx(ctx context.Context, fn TxFunc) error
}
