// Package postgres implements ports.MetadataStore on pgx/v5, the
// transactional repository for File, StorageObject, UploadSession,
// UploadPart, and SyncEvent rows.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marmos91/filestore/pkg/ports"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting every
// repository method run unchanged whether or not it's inside Begin.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a ports.MetadataStore backed by a pgxpool.Pool. A Store
// value is either the root (querier == pool) or a transactional view
// returned by Begin (querier == a pgx.Tx).
type Store struct {
	pool    *pgxpool.Pool
	querier querier
	isTx    bool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, querier: pool}
}

// Config configures the connection pool, mirroring the teacher's
// conservative default sizing.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

func Connect(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
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
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pool: %w", err)
	}

	return New(pool), nil
}

// Close closes the underlying pool. It is a no-op on the transactional
// Store returned from Begin, since that view's lifecycle is controlled
// by the Transaction handle, not by Close.
func (s *Store) Close() error {
	if s.isTx {
		return nil
	}
	s.pool.Close()
	return nil
}

// txHandle adapts pgx.Tx to ports.Transaction. Commit/Rollback after
// the other has already run is a no-op error from pgx, which callers
// following the Begin/defer Rollback/Commit idiom safely ignore.
type txHandle struct {
	tx pgx.Tx
}

func (h txHandle) Commit(ctx context.Context) error {
	return h.tx.Commit(ctx)
}

func (h txHandle) Rollback(ctx context.Context) error {
	return h.tx.Rollback(ctx)
}

// Begin opens a transaction and returns a Store bound to it. The
// returned MetadataStore's Close is a no-op: the transaction's
// lifecycle is controlled by the returned Transaction, not by Close.
func (s *Store) Begin(ctx context.Context) (ports.Transaction, ports.MetadataStore, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	return txHandle{tx: tx}, &Store{pool: s.pool, querier: tx, isTx: true}, nil
}

var _ ports.MetadataStore = (*Store)(nil)
