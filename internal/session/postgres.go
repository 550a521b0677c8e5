package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig controls the connection pool for the primary session store.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore persists sessions in a chat_sessions table, collected data
// as JSONB.
type PostgresStore struct {
	pool pgxQuerier
}

// NewPostgresStore connects a pool from config.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool,
// primarily for testing.
func NewPostgresStoreWithPool(pool pgxQuerier) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresStore{pool: pool}, nil
}

const getSessionQuery = `
SELECT state, mode, collected_data, created_at, last_active_at
FROM chat_sessions
WHERE user_id = $1`

// Get loads one session.
func (s *PostgresStore) Get(ctx context.Context, userID string) (Session, error) {
	var (
		sess Session
		data []byte
	)
	row := s.pool.QueryRow(ctx, getSessionQuery, userID)
	err := row.Scan(&sess.State, &sess.Mode, &data, &sess.CreatedAt, &sess.LastActiveAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("select session: %w", err)
	}
	sess.UserID = userID
	if len(data) > 0 {
		if err := json.Unmarshal(data, &sess.CollectedData); err != nil {
			return Session{}, fmt.Errorf("decode collected data: %w", err)
		}
	}
	if sess.CollectedData == nil {
		sess.CollectedData = map[string]string{}
	}
	return sess, nil
}

const putSessionQuery = `
INSERT INTO chat_sessions (user_id, state, mode, collected_data, created_at, last_active_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id) DO UPDATE SET
	state = EXCLUDED.state,
	mode = EXCLUDED.mode,
	collected_data = EXCLUDED.collected_data,
	last_active_at = EXCLUDED.last_active_at`

// Put upserts one session.
func (s *PostgresStore) Put(ctx context.Context, sess Session) error {
	if sess.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	data, err := json.Marshal(sess.CollectedData)
	if err != nil {
		return fmt.Errorf("encode collected data: %w", err)
	}
	_, err = s.pool.Exec(ctx, putSessionQuery,
		sess.UserID, sess.State, sess.Mode, data, sess.CreatedAt, sess.LastActiveAt)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// Delete removes one session. Deleting a missing session is not an error.
func (s *PostgresStore) Delete(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
