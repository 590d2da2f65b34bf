// Package postgres is the server-side association store. Key similarity is
// delegated to pg_trgm and vector distance to pgvector.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/felixgeelhaar/recall/internal/store"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is a store.Store backed by PostgreSQL.
type DB struct {
	db   *sql.DB
	opts store.Options
	ops  *ops
}

var _ store.Store = (*DB)(nil)

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, opts ...store.Option) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping postgres")
	}
	return New(db, opts...), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, opts ...store.Option) *DB {
	d := &DB{db: db, opts: store.ApplyOptions(opts...)}
	d.ops = &ops{q: db, opts: d.opts}
	return d
}

// Migrate creates the extensions, tables and indexes if missing.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to migrate: %s", firstLine(stmt))
		}
	}
	return nil
}

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pg_trgm`,
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id BIGSERIAL PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		user_name TEXT NOT NULL,
		user_message TEXT NOT NULL,
		agent_name TEXT NOT NULL,
		agent_message TEXT NOT NULL,
		emotion TEXT NOT NULL,
		language TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS embeddings (
		id BIGSERIAL PRIMARY KEY,
		vector vector NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS associations (
		id BIGSERIAL PRIMARY KEY,
		key TEXT NOT NULL,
		conversation_id BIGINT NOT NULL REFERENCES conversations(id),
		embedding_id BIGINT REFERENCES embeddings(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_associations_key_trgm ON associations USING gin (key gin_trgm_ops)`,
	`CREATE INDEX IF NOT EXISTS idx_associations_embedding ON associations(embedding_id)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_created_on ON conversations ((created_at::date))`,
	`CREATE TABLE IF NOT EXISTS configuration (
		key TEXT PRIMARY KEY,
		value TEXT
	)`,
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (d *DB) Close() error {
	return d.db.Close()
}

// WithinTx runs fn inside a transaction.
func (d *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.AssociationStore) error) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = errors.Wrap(cErr, "failed to commit transaction")
		}
	}()

	return fn(ctx, &ops{q: tx, opts: d.opts})
}

func (d *DB) SetConfig(key, value string) error {
	stmt := `INSERT INTO configuration (key, value) VALUES (` + placeholders(2) + `)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
	_, err := d.db.Exec(stmt, key, value)
	return errors.Wrap(err, "failed to set config")
}

func (d *DB) GetConfig(key string) (string, error) {
	var value string
	err := d.db.QueryRow(`SELECT value FROM configuration WHERE key = `+placeholder(1), key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", errors.Wrap(err, "failed to get config")
	}
	return value, nil
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func placeholders(n int) string {
	list := make([]string, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}
