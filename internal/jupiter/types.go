package jupiter

import (
	"encoding/json"
	"fmt"
)

// QuoteRequest asks for the best route for an exact input amount.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64 // raw input units
	SlippageBps int
}

// Quote is a route returned by the quote endpoint. Raw is the verbatim
// response and is echoed back to the swap endpoint unchanged.
type Quote struct {
	InputMint      string          `json:"inputMint"`
	InAmount       string          `json:"inAmount"`
	OutputMint     string          `json:"outputMint"`
	OutAmount      string          `json:"outAmount"`
	SlippageBps    int             `json:"slippageBps"`
	PriceImpactPct string          `json:"priceImpactPct"`
	ContextSlot    int64           `json:"contextSlot"`
	Raw            json.RawMessage `json:"-"`
}

// SwapOptions tune the transaction built by the swap endpoint.
type SwapOptions struct {
	PrioritizationFeeLamports uint64
	WrapAndUnwrapSOL          bool
	DynamicComputeUnitLimit   bool
}

type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports uint64          `json:"prioritizationFeeLamports,omitempty"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// Order is an unsigned transaction prepared by the order endpoint.
type Order struct {
	RequestID   string `json:"requestId"`
	Transaction string `json:"transaction"` // base64, empty when no route
	InAmount    string `json:"inAmount"`
	OutAmount   string `json:"outAmount"`
	ErrorMsg    string `json:"errorMessage,omitempty"`
}

type executeRequest struct {
	SignedTransaction string `json:"signedTransaction"`
	RequestID         string `json:"requestId"`
}

// ExecuteResult is the settlement report of the execute endpoint.
type ExecuteResult struct {
	Status             string `json:"status"` // Success or Failed
	Signature          string `json:"signature"`
	Code               int    `json:"code"`
	Error              string `json:"error"`
	InputAmountResult  string `json:"inputAmountResult"`
	OutputAmountResult string `json:"outputAmountResult"`
}

// Execute statuses
const (
	StatusSuccess = "Success"
	StatusFailed  = "Failed"
)

// OneCallRequest describes a swap settled through order and execute.
type OneCallRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
	FeeLamports uint64
}

// OneCallResult is the outcome of ExecuteSwap.
type OneCallResult struct {
	Status    string
	Signature string
	InAmount  string
	OutAmount string
	Error     string
}

// APIError is a non-2xx response from the aggregator.
type APIError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aggregator %s: status %d: %s", e.Endpoint, e.Status, e.Body)
}
