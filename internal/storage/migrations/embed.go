// Package migrations embeds and applies the storage schemas.
package migrations

import "embed"

// PostgresFS embeds the trade_records schema.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds the price_samples schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
