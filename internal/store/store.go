package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	uniqueViolation = "23505"

	// maxConflictAttempts bounds how often a write transaction is replayed
	// after losing a uniqueness race to a concurrent writer.
	maxConflictAttempts = 3

	maxFilmIDLength = 255
)

var (
	// ErrInvalidFilmID indicates an empty or oversized film identifier.
	ErrInvalidFilmID = errors.New("invalid film id")
	// ErrInvalidUserID indicates a missing user identifier.
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrLikeConflict indicates a write kept losing uniqueness races.
	ErrLikeConflict = errors.New("like write conflict")
)

// Store provides persistence backed by Postgres.
type Store struct {
	db *sql.DB
}

// New sets up a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// withTx runs fn inside a read-committed transaction. The transaction is
// rolled back when fn fails or ctx is cancelled before commit.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	tx = nil

	return nil
}

// withConflictRetry replays fn when it fails on a unique constraint, so the
// loser of a concurrent insert re-reads the winner's state instead of
// surfacing a duplicate-key error.
func withConflictRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxConflictAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn()
		if err == nil || !isUniqueViolation(err) {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrLikeConflict, maxConflictAttempts, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

func validateFilmID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: film id is required", ErrInvalidFilmID)
	case len(id) > maxFilmIDLength:
		return fmt.Errorf("%w: film id exceeds %d characters", ErrInvalidFilmID, maxFilmIDLength)
	}
	return nil
}

// candidateIDs returns the distinct identifiers a like may have been stored
// under: the canonical id first, then the caller's id when it differs.
func candidateIDs(canonicalID, filmID string) []string {
	if canonicalID == filmID {
		return []string{canonicalID}
	}
	return []string{canonicalID, filmID}
}
