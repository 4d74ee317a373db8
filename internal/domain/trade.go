package domain

import "time"

// Direction of a trade relative to the traded asset.
type Direction string

// Direction values
const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// TradeIntent describes one trade attempt. It is built once and never mutated
// after submission.
type TradeIntent struct {
	ID             string // unique per attempt
	Direction      Direction
	Asset          string  // traded token mint
	Size           float64 // quote units (SOL)
	SlippageBps    int
	FeeBudget      uint64  // lamports
	ReferencePrice float64 // quote per asset unit, sizes sells in token units
	Reason         string
	Timestamp      time.Time
}

// TradeRecord is a confirmed trade as persisted by the trade store.
type TradeRecord struct {
	IntentID    string // unique intent id
	Agent       string // agent address
	Strategy    string
	Direction   Direction
	Asset       string
	Size        float64 // quote units
	Price       float64 // quote per asset unit at execution
	AssetAmount float64 // asset units bought or sold
	Signature   string
	ExecutedAt  time.Time
}

// PriceSample is a persisted price observation.
type PriceSample struct {
	Asset       string
	TimestampMs int64
	Price       float64
}
