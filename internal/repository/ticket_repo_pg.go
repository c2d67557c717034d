package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/airways/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

const uniqueViolation = "23505"

type ticketRow struct {
	ID                int64     `db:"id"`
	BookingReference  string    `db:"booking_reference"`
	FlightID          int64     `db:"flight_id"`
	UserID            int64     `db:"user_id"`
	SeatID            int64     `db:"seat_id"`
	ClassID           int64     `db:"class_id"`
	PassengerName     string    `db:"passenger_name"`
	PassengerPassport string    `db:"passenger_passport"`
	SpecialRequests   []byte    `db:"special_requests"`
	PriceCents        int64     `db:"price_cents"`
	TaxesFeesCents    int64     `db:"taxes_fees_cents"`
	TotalPriceCents   int64     `db:"total_price_cents"`
	Status            string    `db:"status"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (r ticketRow) toDomain() domain.Ticket {
	return domain.Ticket{
		ID:                r.ID,
		BookingReference:  r.BookingReference,
		FlightID:          r.FlightID,
		UserID:            r.UserID,
		SeatID:            r.SeatID,
		ClassID:           r.ClassID,
		PassengerName:     r.PassengerName,
		PassengerPassport: r.PassengerPassport,
		SpecialRequests:   r.SpecialRequests,
		PriceCents:        r.PriceCents,
		TaxesFeesCents:    r.TaxesFeesCents,
		TotalPriceCents:   r.TotalPriceCents,
		Status:            domain.TicketStatus(r.Status),
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

const ticketColumns = `id, booking_reference, flight_id, user_id, seat_id, class_id, passenger_name, passenger_passport,
	special_requests, price_cents, taxes_fees_cents, total_price_cents, status, created_at, updated_at`

func ticketWhere(filter domain.TicketFilter) (string, []any) {
	conds := []string{"true"}
	var args []any
	if len(filter.IDs) > 0 {
		conds = append(conds, "id IN (?)")
		args = append(args, filter.IDs)
	}
	if filter.Reference != "" {
		conds = append(conds, "booking_reference = ?")
		args = append(args, filter.Reference)
	}
	if filter.UserID != 0 {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.FlightID != 0 {
		conds = append(conds, "flight_id = ?")
		args = append(args, filter.FlightID)
	}
	if len(filter.Statuses) > 0 {
		conds = append(conds, "status IN (?)")
		args = append(args, filter.Statuses)
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (q *pgQueries) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, q.ext, &exists, `SELECT EXISTS(SELECT 1 FROM tickets WHERE booking_reference = $1)`, reference)
	if err != nil {
		return false, fmt.Errorf("reference exists: %w", err)
	}
	return exists, nil
}

func (q *pgQueries) InsertTickets(ctx context.Context, tickets []*domain.Ticket) error {
	for _, t := range tickets {
		err := q.ext.QueryRowxContext(ctx, `INSERT INTO tickets (booking_reference, flight_id, user_id, seat_id, class_id,
			passenger_name, passenger_passport, special_requests, price_cents, taxes_fees_cents, total_price_cents, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id, created_at, updated_at`,
			t.BookingReference, t.FlightID, t.UserID, t.SeatID, t.ClassID,
			t.PassengerName, t.PassengerPassport, nullJSON(t.SpecialRequests),
			t.PriceCents, t.TaxesFeesCents, t.TotalPriceCents, t.Status,
		).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return domain.Conflict("seat is already booked")
			}
			return fmt.Errorf("insert ticket: %w", err)
		}
	}
	return nil
}

func (q *pgQueries) ListTickets(ctx context.Context, filter domain.TicketFilter, lock LockMode) ([]domain.Ticket, error) {
	where, args := ticketWhere(filter)
	query := `SELECT ` + ticketColumns + ` FROM tickets` + where + ` ORDER BY id`
	switch lock {
	case LockShare:
		query += ` FOR SHARE`
	case LockUpdate:
		query += ` FOR UPDATE`
	}
	query, args, err := q.in(query, args...)
	if err != nil {
		return nil, err
	}

	var rows []ticketRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	tickets := make([]domain.Ticket, 0, len(rows))
	for _, r := range rows {
		tickets = append(tickets, r.toDomain())
	}
	return tickets, nil
}

func (q *pgQueries) CountTickets(ctx context.Context, filter domain.TicketFilter) (int, error) {
	where, args := ticketWhere(filter)
	query, args, err := q.in(`SELECT COUNT(*) FROM tickets`+where, args...)
	if err != nil {
		return 0, err
	}
	var n int
	if err := sqlx.GetContext(ctx, q.ext, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count tickets: %w", err)
	}
	return n, nil
}

func (q *pgQueries) UpdateTicketStatus(ctx context.Context, filter domain.TicketFilter, status domain.TicketStatus) (int64, error) {
	where, args := ticketWhere(filter)
	query, args, err := q.in(`UPDATE tickets SET status = ?, updated_at = now()`+where, append([]any{status}, args...)...)
	if err != nil {
		return 0, err
	}
	res, err := q.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update ticket status: %w", err)
	}
	return res.RowsAffected()
}
