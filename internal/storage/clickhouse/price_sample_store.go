package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-mm-agent/internal/domain"
	"solana-mm-agent/internal/observability"
	"solana-mm-agent/internal/storage"
)

// PriceSampleStore implements storage.PriceSampleStore using ClickHouse.
type PriceSampleStore struct {
	conn *Conn
}

// NewPriceSampleStore creates a new PriceSampleStore.
func NewPriceSampleStore(conn *Conn) *PriceSampleStore {
	return &PriceSampleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)

// InsertPriceSamples adds samples. Fails entire batch on duplicate (asset, timestamp_ms).
func (s *PriceSampleStore) InsertPriceSamples(ctx context.Context, samples []domain.PriceSample) (err error) {
	if len(samples) == 0 {
		return nil
	}
	defer observe("insert_price_samples", time.Now(), &err)

	// Check for intra-batch duplicates
	type key struct {
		asset       string
		timestampMs int64
	}
	seen := make(map[key]struct{}, len(samples))
	for _, p := range samples {
		if p.Asset == "" {
			return storage.ErrInvalidInput
		}
		k := key{p.Asset, p.TimestampMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// MergeTree does not enforce uniqueness; check existing rows first.
	for _, p := range samples {
		exists, err := s.exists(ctx, p.Asset, p.TimestampMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO price_samples (asset, timestamp_ms, price)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range samples {
		if err = batch.Append(p.Asset, uint64(p.TimestampMs), p.Price); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetPriceSamples retrieves samples for an asset within [fromMs, toMs] (inclusive).
func (s *PriceSampleStore) GetPriceSamples(ctx context.Context, asset string, fromMs, toMs int64) (_ []domain.PriceSample, err error) {
	defer observe("get_price_samples", time.Now(), &err)

	query := `
		SELECT asset, timestamp_ms, price
		FROM price_samples FINAL
		WHERE asset = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, asset, uint64(fromMs), uint64(toMs))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanPriceSamples(rows)
}

// exists checks if a sample with the given key exists.
func (s *PriceSampleStore) exists(ctx context.Context, asset string, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM price_samples
		WHERE asset = ? AND timestamp_ms = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, asset, uint64(timestampMs)).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows is the subset of driver.Rows used by scanners.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanPriceSamples scans multiple rows.
func scanPriceSamples(rows chRows) ([]domain.PriceSample, error) {
	var samples []domain.PriceSample

	for rows.Next() {
		var p domain.PriceSample
		var timestampMs uint64

		if err := rows.Scan(&p.Asset, &timestampMs, &p.Price); err != nil {
			return nil, fmt.Errorf("scan price sample row: %w", err)
		}

		p.TimestampMs = int64(timestampMs)
		samples = append(samples, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price sample rows: %w", err)
	}

	return samples, nil
}

func observe(op string, start time.Time, err *error) {
	observability.RecordDBQuery("clickhouse", op, time.Since(start).Seconds(), *err)
}
