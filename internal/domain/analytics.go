package domain

import "time"

// Trend classifies the direction of the price window.
type Trend string

// Trend values
const (
	TrendUp       Trend = "up"
	TrendDown     Trend = "down"
	TrendSideways Trend = "sideways"
)

// Action is the recommended trading action.
type Action string

// Action values
const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// PricePoint is one sample of the price history.
type PricePoint struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Volume24h is the trailing 24h volume in quote units.
type Volume24h struct {
	Total float64 `json:"total"`
	Buy   float64 `json:"buy"`
	Sell  float64 `json:"sell"`
}

// Recommendation is the analytics verdict for the next trade.
type Recommendation struct {
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"` // [0, 1]
	Reason     string  `json:"reason"`
}

// AnalyticsSnapshot is replaced wholesale on every analytics tick.
type AnalyticsSnapshot struct {
	PriceHistory   []PricePoint   `json:"price_history"` // newest last
	Volume         Volume24h      `json:"volume_24h"`
	Volatility     float64        `json:"volatility"` // percent
	Trend          Trend          `json:"trend"`
	Support        *float64       `json:"support,omitempty"`
	Resistance     *float64       `json:"resistance,omitempty"`
	RSI            float64        `json:"rsi"`
	FairPrice      float64        `json:"fair_price"`
	Recommendation Recommendation `json:"recommendation"`
	PriceAvailable bool           `json:"price_available"` // false when the newest fetch failed
	ComputedAt     time.Time      `json:"computed_at"`
}

// LatestPrice returns the newest sample price, or 0 if the history is empty.
func (s *AnalyticsSnapshot) LatestPrice() float64 {
	if len(s.PriceHistory) == 0 {
		return 0
	}
	return s.PriceHistory[len(s.PriceHistory)-1].Price
}

// Clone returns a deep copy.
func (s *AnalyticsSnapshot) Clone() AnalyticsSnapshot {
	out := *s
	out.PriceHistory = append([]PricePoint(nil), s.PriceHistory...)
	if s.Support != nil {
		v := *s.Support
		out.Support = &v
	}
	if s.Resistance != nil {
		v := *s.Resistance
		out.Resistance = &v
	}
	return out
}
