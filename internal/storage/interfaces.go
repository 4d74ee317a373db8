package storage

import (
	"context"
	"time"

	"solana-mm-agent/internal/domain"
)

// TradeRecordStore provides access to trade_records storage.
type TradeRecordStore interface {
	// Insert adds a confirmed trade. Returns ErrDuplicateKey if intent_id exists.
	Insert(ctx context.Context, t *domain.TradeRecord) error

	// GetByIntentID retrieves a trade by its intent ID. Returns ErrNotFound if not exists.
	GetByIntentID(ctx context.Context, intentID string) (*domain.TradeRecord, error)

	// GetByAgent retrieves trades executed by an agent address, ordered by executed_at ASC.
	GetByAgent(ctx context.Context, agent string) ([]*domain.TradeRecord, error)

	// Volume sums trade sizes for an asset executed at or after since.
	Volume(ctx context.Context, asset string, since time.Time) (domain.Volume24h, error)
}

// PriceSampleStore provides access to price_samples storage.
type PriceSampleStore interface {
	// InsertPriceSamples adds samples. Fails entire batch on duplicate (asset, timestamp_ms).
	InsertPriceSamples(ctx context.Context, samples []domain.PriceSample) error

	// GetPriceSamples retrieves samples for an asset within [fromMs, toMs] (inclusive), ordered by timestamp ASC.
	GetPriceSamples(ctx context.Context, asset string, fromMs, toMs int64) ([]domain.PriceSample, error)
}
