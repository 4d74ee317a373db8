// Package postgres stores confirmed trades in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"solana-mm-agent/internal/storage"
)

// Pool is the trade ledger connection pool shared by the stores and the
// migration runner.
type Pool struct {
	*pgxpool.Pool
}

// An agent process writes one row per confirmed trade and reads volume once
// per analytics tick, so a handful of connections is plenty.
const (
	maxLedgerConns = 4
	ledgerIdleTime = 5 * time.Minute
	ledgerAppName  = "mmagent"
	pingTimeout    = 10 * time.Second
)

// NewPool opens the trade ledger pool for dsn. The DSN may lower the
// connection cap but not raise it above maxLedgerConns. The pool is pinged
// before it is returned.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse trade ledger dsn: %w", err)
	}
	cfg.MaxConns = min(cfg.MaxConns, maxLedgerConns)
	cfg.MaxConnIdleTime = ledgerIdleTime
	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = ledgerAppName
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open trade ledger: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("reach trade ledger at %s: %w", cfg.ConnConfig.Host, err)
	}

	return &Pool{Pool: pool}, nil
}

// Close releases every connection.
func (p *Pool) Close() {
	p.Pool.Close()
}

// SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// storeError maps driver errors onto the storage sentinels and wraps
// anything else with op.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.ErrDuplicateKey
	}
	return fmt.Errorf("%s: %w", op, err)
}
