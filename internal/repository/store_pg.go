package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PGStore implements Store on PostgreSQL. Transactions run at READ COMMITTED;
// races are settled by row locks and conditional updates inside them.
type PGStore struct {
	db *sqlx.DB
}

func NewPGStore(db *sqlx.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Queries() Queries {
	return &pgQueries{ext: s.db}
}

func (s *PGStore) InTx(ctx context.Context, fn TxFunc) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(ctx, &pgQueries{ext: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback error: %v, original error: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit error: %w", err)
	}
	return nil
}

type pgQueries struct {
	ext sqlx.ExtContext
}

// in expands slice arguments and rebinds placeholders for the driver.
func (q *pgQueries) in(query string, args ...any) (string, []any, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return q.ext.Rebind(query), args, nil
}

func lockClause(lock LockMode, table string) string {
	switch lock {
	case LockShare:
		return " FOR SHARE OF " + table
	case LockUpdate:
		return " FOR UPDATE OF " + table
	default:
		return ""
	}
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

var _ Store = (*PGStore)(nil)
var _ Queries = (*pgQueries)(nil)
