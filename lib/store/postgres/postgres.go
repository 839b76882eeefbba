// Package postgres implements the medium interface for PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" //nolint:gci // load the postgres driver that is used by the system

	"github.com/tarancss/walletboot/lib/store"
)

const schema = `CREATE TABLE IF NOT EXISTS walletboot_kv (
	key     TEXT PRIMARY KEY,
	value   BYTEA NOT NULL,
	updated TIMESTAMPTZ NOT NULL
)`

// Postgres implements a connection to a PostgreSQL database.
type Postgres struct {
	db *sql.DB
}

// New returns a postgres client connection to the specified database in 'connection' and makes sure the key-value
// table exists.
func New(connection string) (*Postgres, error) {
	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("cannot create schema: %w", err)
	}

	return &Postgres{db: db}, nil
}

// Close will close any database connection. Must be called at termination time.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Get loads the value saved under key.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte

	err := p.db.QueryRowContext(ctx, `SELECT value FROM walletboot_kv WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrDataNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("could not read %s from db: %w", key, err)
	}

	return v, nil
}

// Set upserts the value saved under key. The statement runs in autocommit mode, so it is committed (and flushed to
// the WAL with the server's default synchronous_commit) when it returns.
func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO walletboot_kv (key, value, updated) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated = EXCLUDED.updated`, key, value)
	if err != nil {
		return fmt.Errorf("could not save %s in db: %w", key, err)
	}

	return nil
}

// Exists reports whether a row is saved under key.
func (p *Postgres) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool

	err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM walletboot_kv WHERE key = $1)`, key).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("could not check %s in db: %w", key, err)
	}

	return ok, nil
}
