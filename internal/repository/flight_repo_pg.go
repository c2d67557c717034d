package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/airways/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const selectFlight = `SELECT f.id, f.flight_number, f.plane_id, f.departure_airport_id, f.arrival_airport_id,
	COALESCE(da.code, '') AS departure_airport, COALESCE(aa.code, '') AS arrival_airport,
	f.departure_time, f.arrival_time, f.base_price_cents, f.gate, f.terminal, f.status, f.is_active,
	(SELECT COUNT(*) FROM seats s WHERE s.plane_id = f.plane_id AND s.is_available) AS available_seats,
	f.created_at, f.updated_at
	FROM flights f
	LEFT JOIN airports da ON da.id = f.departure_airport_id
	LEFT JOIN airports aa ON aa.id = f.arrival_airport_id`

type flightRow struct {
	ID                 int64     `db:"id"`
	FlightNumber       string    `db:"flight_number"`
	PlaneID            int64     `db:"plane_id"`
	DepartureAirportID int64     `db:"departure_airport_id"`
	ArrivalAirportID   int64     `db:"arrival_airport_id"`
	DepartureAirport   string    `db:"departure_airport"`
	ArrivalAirport     string    `db:"arrival_airport"`
	DepartureTime      time.Time `db:"departure_time"`
	ArrivalTime        time.Time `db:"arrival_time"`
	BasePriceCents     int64     `db:"base_price_cents"`
	Gate               string    `db:"gate"`
	Terminal           string    `db:"terminal"`
	Status             string    `db:"status"`
	IsActive           bool      `db:"is_active"`
	AvailableSeats     int       `db:"available_seats"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

func (r flightRow) toDomain() domain.Flight {
	return domain.Flight{
		ID:                 r.ID,
		FlightNumber:       r.FlightNumber,
		PlaneID:            r.PlaneID,
		DepartureAirportID: r.DepartureAirportID,
		ArrivalAirportID:   r.ArrivalAirportID,
		DepartureAirport:   r.DepartureAirport,
		ArrivalAirport:     r.ArrivalAirport,
		DepartureTime:      r.DepartureTime,
		ArrivalTime:        r.ArrivalTime,
		BasePriceCents:     r.BasePriceCents,
		Gate:               r.Gate,
		Terminal:           r.Terminal,
		Status:             domain.FlightStatus(r.Status),
		IsActive:           r.IsActive,
		AvailableSeats:     r.AvailableSeats,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

type classRow struct {
	ID             int64           `db:"id"`
	Name           string          `db:"name"`
	Multiplier     decimal.Decimal `db:"price_multiplier"`
	BaggageKg      int             `db:"baggage_kg"`
	CabinBaggageKg int             `db:"cabin_baggage_kg"`
	MealIncluded   bool            `db:"meal_included"`
}

type seatRow struct {
	ID          int64     `db:"id"`
	PlaneID     int64     `db:"plane_id"`
	ClassID     int64     `db:"class_id"`
	SeatNumber  string    `db:"seat_number"`
	IsAvailable bool      `db:"is_available"`
	IsWindow    bool      `db:"is_window"`
	IsAisle     bool      `db:"is_aisle"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (q *pgQueries) ListFlights(ctx context.Context) ([]domain.Flight, error) {
	var rows []flightRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, selectFlight+` WHERE f.is_active ORDER BY f.departure_time`); err != nil {
		return nil, fmt.Errorf("list flights: %w", err)
	}
	flights := make([]domain.Flight, 0, len(rows))
	for _, r := range rows {
		flights = append(flights, r.toDomain())
	}
	return flights, nil
}

func (q *pgQueries) GetFlight(ctx context.Context, id int64, lock LockMode) (*domain.Flight, error) {
	var row flightRow
	err := sqlx.GetContext(ctx, q.ext, &row, selectFlight+` WHERE f.id = $1`+lockClause(lock, "f"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("flight not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get flight %d: %w", id, err)
	}
	f := row.toDomain()
	return &f, nil
}

func (q *pgQueries) SetFlightStatus(ctx context.Context, id int64, status domain.FlightStatus) error {
	res, err := q.ext.ExecContext(ctx, `UPDATE flights SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("set flight status: %w", err)
	}
	return expectAffected(res, "flight not found")
}

func (q *pgQueries) DeactivateFlight(ctx context.Context, id int64) error {
	res, err := q.ext.ExecContext(ctx, `UPDATE flights SET is_active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate flight: %w", err)
	}
	return expectAffected(res, "flight not found")
}

func (q *pgQueries) ListFlightsWithTickets(ctx context.Context, status domain.FlightStatus, ticketStatuses []domain.TicketStatus) ([]int64, error) {
	query, args, err := q.in(`SELECT DISTINCT f.id FROM flights f
		JOIN tickets t ON t.flight_id = f.id
		WHERE f.status = ? AND t.status IN (?)
		ORDER BY f.id`, status, ticketStatuses)
	if err != nil {
		return nil, err
	}
	var ids []int64
	if err := sqlx.SelectContext(ctx, q.ext, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("list flights with tickets: %w", err)
	}
	return ids, nil
}

func (q *pgQueries) GetClass(ctx context.Context, id int64) (*domain.Class, error) {
	var row classRow
	err := sqlx.GetContext(ctx, q.ext, &row, `SELECT id, name, price_multiplier, baggage_kg, cabin_baggage_kg, meal_included
		FROM classes WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("class not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get class %d: %w", id, err)
	}
	return &domain.Class{
		ID:             row.ID,
		Name:           row.Name,
		Multiplier:     row.Multiplier,
		BaggageKg:      row.BaggageKg,
		CabinBaggageKg: row.CabinBaggageKg,
		MealIncluded:   row.MealIncluded,
	}, nil
}

func (q *pgQueries) ListSeats(ctx context.Context, filter domain.SeatFilter) ([]domain.Seat, error) {
	query := `SELECT id, plane_id, class_id, seat_number, is_available, is_window, is_aisle, updated_at FROM seats WHERE true`
	var args []any
	if filter.PlaneID != 0 {
		query += ` AND plane_id = ?`
		args = append(args, filter.PlaneID)
	}
	if len(filter.IDs) > 0 {
		query += ` AND id IN (?)`
		args = append(args, filter.IDs)
	}
	if filter.ClassID != 0 {
		query += ` AND class_id = ?`
		args = append(args, filter.ClassID)
	}
	if filter.OnlyAvailable {
		query += ` AND is_available`
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	query, args, err := q.in(query, args...)
	if err != nil {
		return nil, err
	}
	var rows []seatRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list seats: %w", err)
	}
	seats := make([]domain.Seat, 0, len(rows))
	for _, r := range rows {
		seats = append(seats, domain.Seat(r))
	}
	return seats, nil
}

func (q *pgQueries) FlipSeats(ctx context.Context, planeID int64, seatIDs []int64, available bool) error {
	if len(seatIDs) == 0 {
		return nil
	}
	query, args, err := q.in(`UPDATE seats SET is_available = ?, updated_at = now()
		WHERE plane_id = ? AND is_available = ? AND id IN (?)`, available, planeID, !available, seatIDs)
	if err != nil {
		return err
	}
	res, err := q.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("flip seats: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("flip seats: %w", err)
	}
	if n != int64(countDistinct(seatIDs)) {
		return ErrSeatStateMismatch
	}
	return nil
}

func expectAffected(res sql.Result, notFound string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound(notFound)
	}
	return nil
}

func countDistinct(ids []int64) int {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}
