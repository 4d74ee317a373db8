package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-mm-agent/internal/domain"
	"solana-mm-agent/internal/storage"
)

// TradeRecordStore is an in-memory implementation of storage.TradeRecordStore.
type TradeRecordStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradeRecord // keyed by intent_id
}

// NewTradeRecordStore creates a new in-memory trade record store.
func NewTradeRecordStore() *TradeRecordStore {
	return &TradeRecordStore{
		data: make(map[string]*domain.TradeRecord),
	}
}

// Insert adds a confirmed trade. Returns ErrDuplicateKey if intent_id exists.
func (s *TradeRecordStore) Insert(_ context.Context, t *domain.TradeRecord) error {
	if t == nil || t.IntentID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.IntentID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	s.data[t.IntentID] = &copy
	return nil
}

// GetByIntentID retrieves a trade by its intent ID. Returns ErrNotFound if not exists.
func (s *TradeRecordStore) GetByIntentID(_ context.Context, intentID string) (*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[intentID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *t
	return &copy, nil
}

// GetByAgent retrieves all trades for an agent, ordered by executed_at ASC.
func (s *TradeRecordStore) GetByAgent(_ context.Context, agent string) ([]*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeRecord
	for _, t := range s.data {
		if t.Agent == agent {
			copy := *t
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ExecutedAt.Equal(result[j].ExecutedAt) {
			return result[i].IntentID < result[j].IntentID
		}
		return result[i].ExecutedAt.Before(result[j].ExecutedAt)
	})

	return result, nil
}

// Volume sums trade sizes for an asset executed at or after since.
func (s *TradeRecordStore) Volume(_ context.Context, asset string, since time.Time) (domain.Volume24h, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var v domain.Volume24h
	for _, t := range s.data {
		if t.Asset != asset || t.ExecutedAt.Before(since) {
			continue
		}
		switch t.Direction {
		case domain.DirectionBuy:
			v.Buy += t.Size
		case domain.DirectionSell:
			v.Sell += t.Size
		}
	}
	v.Total = v.Buy + v.Sell
	return v, nil
}

var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)
