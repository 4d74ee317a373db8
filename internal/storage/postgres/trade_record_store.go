package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-mm-agent/internal/domain"
	"solana-mm-agent/internal/observability"
	"solana-mm-agent/internal/storage"
)

// TradeRecordStore implements storage.TradeRecordStore using PostgreSQL.
type TradeRecordStore struct {
	pool *Pool
}

// NewTradeRecordStore creates a new TradeRecordStore.
func NewTradeRecordStore(pool *Pool) *TradeRecordStore {
	return &TradeRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)

const tradeRecordColumns = `
	intent_id, agent, strategy, direction, asset,
	size, price, asset_amount, signature, executed_at
`

// Insert adds a confirmed trade. Returns ErrDuplicateKey if intent_id exists.
func (s *TradeRecordStore) Insert(ctx context.Context, t *domain.TradeRecord) (err error) {
	if t == nil || t.IntentID == "" {
		return storage.ErrInvalidInput
	}
	defer observe("insert_trade", time.Now(), &err)

	query := `
		INSERT INTO trade_records (` + tradeRecordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = s.pool.Exec(ctx, query,
		t.IntentID, t.Agent, t.Strategy, string(t.Direction), t.Asset,
		t.Size, t.Price, t.AssetAmount, t.Signature, t.ExecutedAt.UTC(),
	)
	return storeError("insert trade record", err)
}

// GetByIntentID retrieves a trade by its intent ID. Returns ErrNotFound if not exists.
func (s *TradeRecordStore) GetByIntentID(ctx context.Context, intentID string) (_ *domain.TradeRecord, err error) {
	defer observe("get_trade", time.Now(), &err)

	query := `SELECT ` + tradeRecordColumns + ` FROM trade_records WHERE intent_id = $1`

	t, err := scanTradeRecord(s.pool.QueryRow(ctx, query, intentID))
	if err != nil {
		return nil, storeError("get trade record by intent id", err)
	}
	return t, nil
}

// GetByAgent retrieves trades for an agent, ordered by executed_at ASC.
func (s *TradeRecordStore) GetByAgent(ctx context.Context, agent string) (_ []*domain.TradeRecord, err error) {
	defer observe("get_trades_by_agent", time.Now(), &err)

	query := `
		SELECT ` + tradeRecordColumns + `
		FROM trade_records
		WHERE agent = $1
		ORDER BY executed_at ASC, intent_id ASC
	`

	rows, err := s.pool.Query(ctx, query, agent)
	if err != nil {
		return nil, fmt.Errorf("get trade records by agent: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

// Volume sums trade sizes for an asset executed at or after since.
func (s *TradeRecordStore) Volume(ctx context.Context, asset string, since time.Time) (_ domain.Volume24h, err error) {
	defer observe("trade_volume", time.Now(), &err)

	query := `
		SELECT
			COALESCE(SUM(size) FILTER (WHERE direction = 'buy'), 0),
			COALESCE(SUM(size) FILTER (WHERE direction = 'sell'), 0)
		FROM trade_records
		WHERE asset = $1 AND executed_at >= $2
	`

	var v domain.Volume24h
	if err = s.pool.QueryRow(ctx, query, asset, since.UTC()).Scan(&v.Buy, &v.Sell); err != nil {
		return domain.Volume24h{}, fmt.Errorf("sum trade volume: %w", err)
	}
	v.Total = v.Buy + v.Sell
	return v, nil
}

// scanTradeRecord scans a single row into a TradeRecord.
func scanTradeRecord(row pgx.Row) (*domain.TradeRecord, error) {
	var t domain.TradeRecord
	var direction string

	err := row.Scan(
		&t.IntentID, &t.Agent, &t.Strategy, &direction, &t.Asset,
		&t.Size, &t.Price, &t.AssetAmount, &t.Signature, &t.ExecutedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Direction = domain.Direction(direction)

	return &t, nil
}

// scanTradeRecords scans multiple rows into a slice of TradeRecord.
func scanTradeRecords(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var trades []*domain.TradeRecord

	for rows.Next() {
		t, err := scanTradeRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade record row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade record rows: %w", err)
	}

	return trades, nil
}

func observe(op string, start time.Time, err *error) {
	observability.RecordDBQuery("postgres", op, time.Since(start).Seconds(), *err)
}
