package migrations

import (
	"context"

	"solana-mm-agent/internal/storage/postgres"
)

// RunPostgres applies the embedded PostgreSQL migrations and returns how
// many files ran. Postgres accepts multi-statement Exec, so files are not split.
func RunPostgres(ctx context.Context, pool *postgres.Pool) (int, error) {
	return apply(ctx, PostgresFS, "postgres", false, func(ctx context.Context, sql string) error {
		_, err := pool.Exec(ctx, sql)
		return err
	})
}
