// Package events publishes agent trade and lifecycle events.
package events

import (
	"context"
	"time"

	"solana-mm-agent/internal/domain"
)

// Event kinds, used as the last subject token.
const (
	KindTrade     = "trade"
	KindLifecycle = "lifecycle"
)

// TradeEvent is published once per confirmed trade.
type TradeEvent struct {
	IntentID    string           `json:"intent_id"`
	Agent       string           `json:"agent"`
	Strategy    string           `json:"strategy"`
	Direction   domain.Direction `json:"direction"`
	Asset       string           `json:"asset"`
	Size        float64          `json:"size"`
	Price       float64          `json:"price"`
	AssetAmount float64          `json:"asset_amount"`
	Signature   string           `json:"signature"`
	Reason      string           `json:"reason"`
	ExecutedAt  time.Time        `json:"executed_at"`
}

// TradeEventFrom builds the event for a persisted trade record.
func TradeEventFrom(r *domain.TradeRecord, reason string) TradeEvent {
	return TradeEvent{
		IntentID:    r.IntentID,
		Agent:       r.Agent,
		Strategy:    r.Strategy,
		Direction:   r.Direction,
		Asset:       r.Asset,
		Size:        r.Size,
		Price:       r.Price,
		AssetAmount: r.AssetAmount,
		Signature:   r.Signature,
		Reason:      reason,
		ExecutedAt:  r.ExecutedAt,
	}
}

// LifecycleEvent is published on start and stop.
type LifecycleEvent struct {
	Agent     string       `json:"agent"`
	Strategy  string       `json:"strategy"`
	Phase     domain.Phase `json:"phase"`
	Timestamp time.Time    `json:"timestamp"`
}

// Publisher delivers agent events. Implementations must be safe for
// concurrent use; publishing failures never affect trading.
type Publisher interface {
	PublishTrade(ctx context.Context, e TradeEvent) error
	PublishLifecycle(ctx context.Context, e LifecycleEvent) error
	Close()
}

// Nop discards every event.
type Nop struct{}

// PublishTrade does nothing.
func (Nop) PublishTrade(context.Context, TradeEvent) error { return nil }

// PublishLifecycle does nothing.
func (Nop) PublishLifecycle(context.Context, LifecycleEvent) error { return nil }

// Close does nothing.
func (Nop) Close() {}
