package jupiter

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultReferenceSOL is the quote size used to sample the price.
const DefaultReferenceSOL = 0.1

// Quoter returns routes. Client implements it.
type Quoter interface {
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
}

// PriceOracle derives the price of an asset in SOL by quoting a fixed
// amount of SOL into the asset.
type PriceOracle struct {
	quoter       Quoter
	quoteMint    string
	referenceSOL decimal.Decimal
	decimals     int32
}

// NewPriceOracle creates a PriceOracle for an asset with the given decimals.
func NewPriceOracle(quoter Quoter, quoteMint string, referenceSOL float64, decimals int32) *PriceOracle {
	if referenceSOL <= 0 {
		referenceSOL = DefaultReferenceSOL
	}
	return &PriceOracle{
		quoter:       quoter,
		quoteMint:    quoteMint,
		referenceSOL: decimal.NewFromFloat(referenceSOL),
		decimals:     decimals,
	}
}

// Price returns SOL per asset unit.
func (o *PriceOracle) Price(ctx context.Context, asset string) (float64, error) {
	lamports := o.referenceSOL.Shift(9).IntPart()

	q, err := o.quoter.Quote(ctx, QuoteRequest{
		InputMint:   o.quoteMint,
		OutputMint:  asset,
		Amount:      uint64(lamports),
		SlippageBps: 50,
	})
	if err != nil {
		return 0, err
	}

	out, err := decimal.NewFromString(q.OutAmount)
	if err != nil {
		return 0, fmt.Errorf("parse out amount %q: %w", q.OutAmount, err)
	}
	tokens := out.Shift(-o.decimals)
	if !tokens.IsPositive() {
		return 0, fmt.Errorf("quote returned no output for %s", asset)
	}

	price, _ := o.referenceSOL.Div(tokens).Float64()
	return price, nil
}

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) float64 {
	f, _ := decimal.NewFromInt(int64(lamports)).Shift(-9).Float64()
	return f
}

