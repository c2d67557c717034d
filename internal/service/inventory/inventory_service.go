package inventory

import (
	"context"
	"errors"

	"github.com/Domenick1991/airways/internal/domain"
	"github.com/Domenick1991/airways/internal/logger"
	"github.com/Domenick1991/airways/internal/repository"
)

type InventoryUseCase interface {
	ListFlights(ctx context.Context) ([]domain.Flight, error)
	GetFlight(ctx context.Context, id int64) (*domain.Flight, error)
	FlightSeats(ctx context.Context, flightID int64, query SeatQuery) (*FlightSeats, error)
}

type FlightCache interface {
	GetFlights(ctx context.Context) ([]domain.Flight, error)
	SetFlights(ctx context.Context, flights []domain.Flight) error
	InvalidateFlights(ctx context.Context) error
}

// SeatQuery narrows a flight's seat map. Zero values mean no filter.
type SeatQuery struct {
	ClassID       int64
	OnlyAvailable bool
	Limit         int
}

type FlightSeats struct {
	Flight domain.Flight
	Seats  []domain.Seat
}

type InventoryService struct {
	store repository.Store
	cache FlightCache
	log   logger.Logger
}

func NewInventoryService(store repository.Store, cache FlightCache, log logger.Logger) *InventoryService {
	return &InventoryService{store: store, cache: cache, log: log}
}

func (s *InventoryService) ListFlights(ctx context.Context) ([]domain.Flight, error) {
	if s.cache != nil {
		cached, err := s.cache.GetFlights(ctx)
		if err != nil {
			s.log.Warn("flights cache read failed", logger.Err(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	flights, err := s.store.Queries().ListFlights(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetFlights(ctx, flights); err != nil {
			s.log.Warn("flights cache write failed", logger.Err(err))
		}
	}
	return flights, nil
}

// GetFlight hides soft-deleted flights.
func (s *InventoryService) GetFlight(ctx context.Context, id int64) (*domain.Flight, error) {
	f, err := s.store.Queries().GetFlight(ctx, id, repository.LockNone)
	if err != nil {
		return nil, err
	}
	if !f.IsActive {
		return nil, domain.NotFound("flight not found")
	}
	return f, nil
}

func (s *InventoryService) FlightSeats(ctx context.Context, flightID int64, query SeatQuery) (*FlightSeats, error) {
	f, err := s.GetFlight(ctx, flightID)
	if err != nil {
		return nil, err
	}
	seats, err := s.store.Queries().ListSeats(ctx, domain.SeatFilter{
		PlaneID:       f.PlaneID,
		ClassID:       query.ClassID,
		OnlyAvailable: query.OnlyAvailable,
		Limit:         query.Limit,
	})
	if err != nil {
		return nil, err
	}
	return &FlightSeats{Flight: *f, Seats: seats}, nil
}

// InvalidateFlights drops the cached flight list after a status or
// availability change. Failures only cost freshness.
func (s *InventoryService) InvalidateFlights(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateFlights(ctx); err != nil {
		s.log.Warn("flights cache invalidation failed", logger.Err(err))
	}
}

// ReserveSeats flips every seat to unavailable or none of them. It must run
// inside a store transaction.
func ReserveSeats(ctx context.Context, q repository.Queries, planeID int64, seatIDs []int64) error {
	return flip(ctx, q, planeID, seatIDs, false)
}

// ReleaseSeats flips every seat back to available or none of them.
func ReleaseSeats(ctx context.Context, q repository.Queries, planeID int64, seatIDs []int64) error {
	return flip(ctx, q, planeID, seatIDs, true)
}

func flip(ctx context.Context, q repository.Queries, planeID int64, seatIDs []int64, available bool) error {
	err := q.FlipSeats(ctx, planeID, seatIDs, available)
	if errors.Is(err, repository.ErrSeatStateMismatch) {
		if available {
			return domain.Conflict("seat release conflicts with current seat state")
		}
		return domain.Conflict("seats were taken by a concurrent booking")
	}
	return err
}

var _ InventoryUseCase = (*InventoryService)(nil)
