package migrations

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	chstore "solana-mm-agent/internal/storage/clickhouse"
)

// RunClickhouse ensures the DSN's database exists, applies the embedded
// ClickHouse migrations and returns a connection to that database.
func RunClickhouse(ctx context.Context, dsn string) (*chstore.Conn, int, error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, 0, err
	}

	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, 0, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	if err := admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", dbName)); err != nil {
		admin.Close()
		return nil, 0, fmt.Errorf("create database %s: %w", dbName, err)
	}
	if err := admin.Close(); err != nil {
		return nil, 0, fmt.Errorf("close admin connection: %w", err)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, 0, fmt.Errorf("connect clickhouse db: %w", err)
	}

	// The native protocol rejects multi-statement queries.
	applied, err := apply(ctx, ClickhouseFS, "clickhouse", true, func(ctx context.Context, sql string) error {
		return conn.Exec(ctx, sql)
	})
	if err != nil {
		conn.Close()
		return nil, applied, err
	}
	return conn, applied, nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}
