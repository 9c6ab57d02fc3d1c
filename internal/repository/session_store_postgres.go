package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"MarketCore/internal/domain/models"
	"MarketCore/internal/domain/repository"
)

// SessionStateSchema creates the table PostgresSessionStore writes to.
const SessionStateSchema = `
CREATE TABLE IF NOT EXISTS session_state (
	symbol      TEXT PRIMARY KEY,
	trading_day TEXT NOT NULL,
	state       JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const (
	selectSessionState = `SELECT state FROM session_state WHERE symbol = $1`
	upsertSessionState = `
		INSERT INTO session_state (symbol, trading_day, state, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol) DO UPDATE SET
			trading_day = EXCLUDED.trading_day,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at`
)

// PostgresSessionStore keeps one row per symbol, replaced by an atomic upsert.
type PostgresSessionStore struct {
	db      *sqlx.DB
	timeout time.Duration
	now     func() time.Time
}

var _ repository.SessionStore = (*PostgresSessionStore)(nil)

func NewPostgresSessionStore(db *sqlx.DB, timeout time.Duration) *PostgresSessionStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresSessionStore{db: db, timeout: timeout, now: time.Now}
}

// Migrate creates the session_state table if it is missing.
func (s *PostgresSessionStore) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, SessionStateSchema); err != nil {
		return fmt.Errorf("create session_state: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) Load(ctx context.Context, symbol string) (models.SessionState, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var raw []byte
	if err := s.db.QueryRowxContext(ctx, selectSessionState, storeKey(symbol)).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SessionState{}, models.ErrStateNotFound
		}
		return models.SessionState{}, fmt.Errorf("select session state: %w", err)
	}
	return decodeState(raw)
}

func (s *PostgresSessionStore) Save(ctx context.Context, symbol string, st models.SessionState) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := encodeState(st)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, upsertSessionState, storeKey(symbol), st.TradingDay, data, s.now().UTC()); err != nil {
		return fmt.Errorf("upsert session state: %w", err)
	}
	return nil
}
