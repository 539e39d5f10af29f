package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/AnshRaj112/voiceconnect-backend/internal/services"
	"github.com/lib/pq"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Queries implements services.Repo over a connection or a transaction.
type Queries struct {
	db dbtx
}

// Store is the PostgreSQL implementation of services.Store.
type Store struct {
	*Queries
	db *sql.DB
}

var _ services.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{Queries: &Queries{db: db}, db: db}
}

// WithTx runs fn inside a transaction. fn's error rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(services.Repo) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Queries{db: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Printf("repository: rollback failed: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Savepoint isolates fn inside the current transaction. Outside a transaction
// each statement commits on its own, so fn simply runs.
func (q *Queries) Savepoint(ctx context.Context, fn func(services.Repo) error) error {
	if _, inTx := q.db.(*sql.Tx); !inTx {
		return fn(q)
	}
	if _, err := q.db.ExecContext(ctx, "SAVEPOINT sp_inner"); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(q); err != nil {
		if _, rbErr := q.db.ExecContext(ctx, "ROLLBACK TO SAVEPOINT sp_inner"); rbErr != nil {
			return fmt.Errorf("rollback to savepoint: %v (after %w)", rbErr, err)
		}
		return err
	}
	if _, err := q.db.ExecContext(ctx, "RELEASE SAVEPOINT sp_inner"); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

const (
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// mapErr turns driver errors into service errors.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return services.ErrNotFound
	}
	switch pqCode(err) {
	case pqForeignKeyViolation:
		return fmt.Errorf("%w: %v", services.ErrNotFound, err)
	case pqUniqueViolation:
		return fmt.Errorf("%w: %v", services.ErrConflict, err)
	}
	return err
}

// requireRow converts a zero RowsAffected into ErrNotFound.
func requireRow(res sql.Result, err error) error {
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return services.ErrNotFound
	}
	return nil
}
