// Package pgstore keeps sessions in Postgres and serializes updates with a row
// lock held for the duration of a transaction.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/duelquiz/internal/domain"
	"github.com/victornm/duelquiz/internal/errors"
	"github.com/victornm/duelquiz/internal/storage"
)

//go:embed schema.sql
var schema string

const codeUniqueViolation = "23505"

type Config struct {
	DB  *pgxpool.Pool
	Now func() time.Time
}

type Store struct {
	db  *pgxpool.Pool
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New(c Config) *Store {
	s := &Store{
		db:  c.DB,
		now: c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// Migrate creates the sessions table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, ss *domain.Session) error {
	now := s.now().UTC()
	if ss.CreatedAt.IsZero() {
		ss.CreatedAt = now
	}
	ss.UpdatedAt = now

	doc, err := json.Marshal(ss)
	if err != nil {
		return fmt.Errorf("pgstore: marshal session: %w", err)
	}

	const stmt = `
INSERT INTO sessions (session_id, filter_key, status, doc, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6);`

	_, err = s.db.Exec(ctx, stmt, ss.SessionID, ss.Filter.Key(), string(ss.Status), doc, ss.CreatedAt, ss.UpdatedAt)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("session already exists: %s", ss.SessionID),
			errors.WithCause(err))
	}

	if err != nil {
		return fmt.Errorf("pgstore: insert session: %w", err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	const stmt = `SELECT doc FROM sessions WHERE session_id = $1;`

	return s.scanSession(s.db.QueryRow(ctx, stmt, sessionID), sessionID)
}

func (s *Store) Update(ctx context.Context, sessionID string, fn storage.UpdateFunc) (_ *domain.Session, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		selStmt = `SELECT doc FROM sessions WHERE session_id = $1 FOR UPDATE;`
		updStmt = `UPDATE sessions SET status = $2, doc = $3, updated_at = $4 WHERE session_id = $1;`
	)

	ss, err := s.scanSession(tx.QueryRow(ctx, selStmt, sessionID), sessionID)
	if err != nil {
		return nil, err
	}

	if err = fn(ss); err != nil {
		return nil, err
	}
	ss.UpdatedAt = s.now().UTC()

	doc, err := json.Marshal(ss)
	if err != nil {
		return nil, fmt.Errorf("pgstore: marshal session: %w", err)
	}

	if _, err = tx.Exec(ctx, updStmt, sessionID, string(ss.Status), doc, ss.UpdatedAt); err != nil {
		return nil, fmt.Errorf("pgstore: update session: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return ss, nil
}

func (s *Store) FindWaiting(ctx context.Context, f domain.Filter, limit int) ([]domain.Session, error) {
	const stmt = `
SELECT doc
FROM sessions
WHERE status = 'waiting' AND filter_key = $1
ORDER BY created_at
LIMIT $2;`

	rows, err := s.db.Query(ctx, stmt, f.Key(), limit)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list waiting sessions: %w", err)
	}

	sessions, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Session, error) {
		var doc []byte
		if err := r.Scan(&doc); err != nil {
			return domain.Session{}, err
		}

		var ss domain.Session
		if err := json.Unmarshal(doc, &ss); err != nil {
			return domain.Session{}, fmt.Errorf("unmarshal session: %w", err)
		}
		return ss, nil
	})
	if err != nil {
		return nil, fmt.Errorf("pgstore: list waiting sessions: %w", err)
	}

	return sessions, nil
}

func (s *Store) scanSession(row pgx.Row, sessionID string) (*domain.Session, error) {
	var doc []byte
	err := row.Scan(&doc)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Newf(errors.ReasonNotFound, "session not found: %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get session: %w", err)
	}

	var ss domain.Session
	if err := json.Unmarshal(doc, &ss); err != nil {
		return nil, fmt.Errorf("pgstore: unmarshal session: %w", err)
	}

	return &ss, nil
}
