package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"solana-mm-agent/internal/domain"
	"solana-mm-agent/internal/storage"
)

// PriceSampleStore is an in-memory implementation of storage.PriceSampleStore.
type PriceSampleStore struct {
	mu   sync.RWMutex
	data map[string]domain.PriceSample // keyed by (asset, timestamp_ms)
}

// NewPriceSampleStore creates a new in-memory price sample store.
func NewPriceSampleStore() *PriceSampleStore {
	return &PriceSampleStore{
		data: make(map[string]domain.PriceSample),
	}
}

// sampleKey generates a unique key for a price sample.
func sampleKey(asset string, timestampMs int64) string {
	return fmt.Sprintf("%s|%d", asset, timestampMs)
}

// InsertPriceSamples adds samples. Fails entire batch on duplicate.
func (s *PriceSampleStore) InsertPriceSamples(_ context.Context, samples []domain.PriceSample) error {
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(samples))

	// First pass: check for duplicates (existing + intra-batch)
	for _, p := range samples {
		if p.Asset == "" {
			return storage.ErrInvalidInput
		}
		key := sampleKey(p.Asset, p.TimestampMs)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, p := range samples {
		s.data[sampleKey(p.Asset, p.TimestampMs)] = p
	}

	return nil
}

// GetPriceSamples retrieves samples for an asset within [fromMs, toMs] (inclusive).
func (s *PriceSampleStore) GetPriceSamples(_ context.Context, asset string, fromMs, toMs int64) ([]domain.PriceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.PriceSample
	for _, p := range s.data {
		if p.Asset == asset && p.TimestampMs >= fromMs && p.TimestampMs <= toMs {
			result = append(result, p)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)
