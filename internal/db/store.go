package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store combines Querier with transactional execution. Services that need
// several writes to commit together depend on Store; read-only services
// depend on narrower interfaces.
type Store interface {
	Querier
	ExecTx(ctx context.Context, fn func(Querier) error) error
}

// PGStore runs queries against a pgx pool.
type PGStore struct {
	*Queries
	pool *pgxpool.Pool
}

// NewStore wraps pool in a PGStore.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{Queries: New(pool), pool: pool}
}

// ExecTx runs fn in a READ COMMITTED transaction. Row-level guards in the
// individual statements (conditional updates, SELECT ... FOR UPDATE) provide
// the per-row serialization the checkout and return flows rely on.
func (s *PGStore) ExecTx(ctx context.Context, fn func(Querier) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	rollback := true
	defer func() {
		if rollback {
			_ = tx.Rollback(context.Background())
		}
	}()

	if err := fn(s.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	rollback = false
	return nil
}
