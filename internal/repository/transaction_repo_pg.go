package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/airways/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

type transactionRow struct {
	ID               int64     `db:"id"`
	UserID           int64     `db:"user_id"`
	AmountCents      int64     `db:"amount_cents"`
	Type             string    `db:"type"`
	Status           string    `db:"status"`
	ReferenceID      string    `db:"reference_id"`
	Description      string    `db:"description"`
	Gateway          string    `db:"gateway"`
	GatewayReference string    `db:"gateway_reference"`
	GatewayResponse  []byte    `db:"gateway_response"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r transactionRow) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:               r.ID,
		UserID:           r.UserID,
		AmountCents:      r.AmountCents,
		Type:             domain.TransactionType(r.Type),
		Status:           domain.TransactionStatus(r.Status),
		ReferenceID:      r.ReferenceID,
		Description:      r.Description,
		Gateway:          r.Gateway,
		GatewayReference: r.GatewayReference,
		GatewayResponse:  r.GatewayResponse,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

const transactionColumns = `id, user_id, amount_cents, type, status, reference_id, description,
	gateway, gateway_reference, gateway_response, created_at, updated_at`

func (q *pgQueries) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	err := q.ext.QueryRowxContext(ctx, `INSERT INTO transactions (user_id, amount_cents, type, status, reference_id,
		description, gateway, gateway_reference, gateway_response)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		tx.UserID, tx.AmountCents, tx.Type, tx.Status, tx.ReferenceID,
		tx.Description, tx.Gateway, tx.GatewayReference, nullJSON(tx.GatewayResponse),
	).Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Conflict("payment already exists for reference")
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (q *pgQueries) GetTransaction(ctx context.Context, id int64, lock LockMode) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1` + lockClause(lock, "transactions")
	var row transactionRow
	err := sqlx.GetContext(ctx, q.ext, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("transaction not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %d: %w", id, err)
	}
	t := row.toDomain()
	return &t, nil
}

func (q *pgQueries) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	conds := []string{"true"}
	var args []any
	if filter.ReferenceID != "" {
		conds = append(conds, "reference_id = ?")
		args = append(args, filter.ReferenceID)
	}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if !filter.CreatedBefore.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, filter.CreatedBefore)
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	query = q.ext.Rebind(query)

	var rows []transactionRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]domain.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (q *pgQueries) UpdateTransactionStatus(ctx context.Context, id int64, from, to domain.TransactionStatus, response json.RawMessage) (bool, error) {
	res, err := q.ext.ExecContext(ctx, `UPDATE transactions
		SET status = $1, gateway_response = COALESCE($2, gateway_response), updated_at = now()
		WHERE id = $3 AND status = $4`, to, nullJSON(response), id, from)
	if err != nil {
		return false, fmt.Errorf("update transaction status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (q *pgQueries) SetTransactionGateway(ctx context.Context, id int64, gateway, gatewayReference string, response json.RawMessage) error {
	res, err := q.ext.ExecContext(ctx, `UPDATE transactions
		SET gateway = $1, gateway_reference = $2, gateway_response = COALESCE($3, gateway_response), updated_at = now()
		WHERE id = $4`, gateway, gatewayReference, nullJSON(response), id)
	if err != nil {
		return fmt.Errorf("set transaction gateway: %w", err)
	}
	return expectAffected(res, "transaction not found")
}
