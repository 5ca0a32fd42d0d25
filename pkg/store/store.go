// Package store persists user accounts and scan history in PostgreSQL.
//
// The store is optional: when no database is configured the API runs
// stateless and the account/history endpoints report the capability as
// unavailable instead of failing requests.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a queried entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint rejects an insert.
var ErrDuplicate = errors.New("already exists")

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            SERIAL PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    email         TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS scans (
    id           UUID PRIMARY KEY,
    user_id      INTEGER REFERENCES users(id) ON DELETE CASCADE,
    input_text   TEXT NOT NULL,
    label        TEXT NOT NULL,
    probability  DOUBLE PRECISION NOT NULL,
    findings     TEXT[] NOT NULL DEFAULT '{}',
    engine_tag   TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS scans_user_created_idx ON scans (user_id, created_at DESC);
`

// User is a registered account. PasswordHash is a bcrypt hash and never
// leaves the store/auth boundary.
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// ScanRecord is one persisted verdict for a user's history.
type ScanRecord struct {
	ID          uuid.UUID `json:"id"`
	UserID      int       `json:"user_id"`
	InputText   string    `json:"input_text"`
	Label       string    `json:"label"`
	Probability float64   `json:"probability"`
	Findings    []string  `json:"findings"`
	EngineTag   string    `json:"engine_tag"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against dsn, verifies the connection, and creates
// the schema.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	config.MaxConns = 10
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Printf("[STORE] Connected to PostgreSQL")
	return s, nil
}

// InitSchema creates the tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser inserts a new account and returns it with ID and CreatedAt
// populated. Returns ErrDuplicate when the username is taken.
func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error) {
	u := &User{Username: username, Email: email, PasswordHash: passwordHash}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash) VALUES ($1, $2, $3)
		 ON CONFLICT (username) DO NOTHING
		 RETURNING id, created_at`,
		username, email, passwordHash).Scan(&u.ID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetUserByUsername retrieves an account by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, created_at FROM users WHERE username = $1`,
		username).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// UpdateUser changes an account's email and/or password hash. Empty fields
// are left untouched.
func (s *Store) UpdateUser(ctx context.Context, userID int, email, passwordHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET
		    email = COALESCE(NULLIF($1, ''), email),
		    password_hash = COALESCE(NULLIF($2, ''), password_hash)
		 WHERE id = $3`,
		email, passwordHash, userID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertScan persists one verdict for a user's history and assigns the
// record its UUID.
func (s *Store) InsertScan(ctx context.Context, r *ScanRecord) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Findings == nil {
		r.Findings = []string{}
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO scans (id, user_id, input_text, label, probability, findings, engine_tag)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		r.ID, r.UserID, r.InputText, r.Label, r.Probability, r.Findings, r.EngineTag).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

// ListScansByUser returns a user's scans, newest first.
func (s *Store) ListScansByUser(ctx context.Context, userID, limit int) ([]ScanRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, input_text, label, probability, findings, engine_tag, created_at
		 FROM scans WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	records := []ScanRecord{}
	for rows.Next() {
		var r ScanRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.InputText, &r.Label, &r.Probability, &r.Findings, &r.EngineTag, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
