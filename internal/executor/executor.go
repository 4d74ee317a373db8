// Package executor turns a TradeIntent into a settled on-chain swap.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"solana-mm-agent/internal/domain"
	"solana-mm-agent/internal/jupiter"
	"solana-mm-agent/internal/solana"
)

// DefaultConfirmTimeout bounds the wait for confirmation.
const DefaultConfirmTimeout = 60 * time.Second

const solDecimals = 9

// QuoteService returns swap routes.
type QuoteService interface {
	Quote(ctx context.Context, req jupiter.QuoteRequest) (*jupiter.Quote, error)
}

// SwapBuilder returns an unsigned base64 transaction for a quote.
type SwapBuilder interface {
	BuildSwap(ctx context.Context, quote *jupiter.Quote, userPublicKey string, opts jupiter.SwapOptions) (string, error)
}

// Submitter broadcasts signed transactions.
type Submitter interface {
	SendTransaction(ctx context.Context, signedTx string, opts *solana.SendOpts) (string, error)
}

// Confirmer waits for a signature to reach a commitment level.
type Confirmer interface {
	Confirm(ctx context.Context, signature, commitment string) error
}

// OneCallService settles a swap through the aggregator's order/execute endpoints.
type OneCallService interface {
	ExecuteSwap(ctx context.Context, req jupiter.OneCallRequest, signer *solana.Keypair) (*jupiter.OneCallResult, error)
}

// Config holds executor settings.
type Config struct {
	Mode           domain.ExecutionMode
	QuoteMint      string
	AssetDecimals  int32
	Commitment     string
	ConfirmTimeout time.Duration
	SendMaxRetries uint // passed to sendTransaction
}

// Deps are the network collaborators. OneCall is required only in one_call mode;
// Builder, Submitter and Confirmer only in build_sign_submit mode.
type Deps struct {
	Quotes    QuoteService
	Builder   SwapBuilder
	Submitter Submitter
	Confirmer Confirmer
	OneCall   OneCallService
}

// Fill is a settled trade.
type Fill struct {
	Signature   string
	Direction   domain.Direction
	QuoteAmount float64 // SOL spent (buy) or received (sell)
	AssetAmount float64 // asset units received (buy) or sold (sell)
	Price       float64 // SOL per asset unit
}

// Executor executes trade intents. It is safe for concurrent use.
type Executor struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
}

// New creates an Executor.
func New(cfg Config, deps Deps) (*Executor, error) {
	if cfg.Mode == "" {
		cfg.Mode = domain.ExecutionBuildSignSubmit
	}
	if cfg.QuoteMint == "" {
		cfg.QuoteMint = domain.WrappedSOLMint
	}
	if cfg.Commitment == "" {
		cfg.Commitment = solana.CommitmentConfirmed
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}

	switch cfg.Mode {
	case domain.ExecutionBuildSignSubmit:
		if deps.Quotes == nil || deps.Builder == nil || deps.Submitter == nil || deps.Confirmer == nil {
			return nil, fmt.Errorf("build_sign_submit mode requires quote, builder, submitter and confirmer")
		}
	case domain.ExecutionOneCall:
		if deps.Quotes == nil || deps.OneCall == nil {
			return nil, fmt.Errorf("one_call mode requires quote and one-call services")
		}
	default:
		return nil, fmt.Errorf("unknown execution mode %q", cfg.Mode)
	}

	return &Executor{
		cfg:    cfg,
		deps:   deps,
		logger: log.With().Str("component", "executor").Logger(),
	}, nil
}

// pair resolves the swap direction and raw input amount for an intent.
func (e *Executor) pair(intent domain.TradeIntent) (string, string, uint64, error) {
	if intent.Size <= 0 {
		return "", "", 0, fmt.Errorf("%w: size must be positive", ErrInvalidIntent)
	}
	size := decimal.NewFromFloat(intent.Size)

	switch intent.Direction {
	case domain.DirectionBuy:
		lamports := size.Shift(solDecimals).Floor()
		if !lamports.IsPositive() {
			return "", "", 0, fmt.Errorf("%w: size below one lamport", ErrInvalidIntent)
		}
		return e.cfg.QuoteMint, intent.Asset, uint64(lamports.IntPart()), nil
	case domain.DirectionSell:
		if intent.ReferencePrice <= 0 {
			return "", "", 0, fmt.Errorf("%w: sell requires a reference price", ErrInvalidIntent)
		}
		tokens := size.Div(decimal.NewFromFloat(intent.ReferencePrice))
		raw := tokens.Shift(e.cfg.AssetDecimals).Floor()
		if !raw.IsPositive() {
			return "", "", 0, fmt.Errorf("%w: size below one token unit", ErrInvalidIntent)
		}
		return intent.Asset, e.cfg.QuoteMint, uint64(raw.IntPart()), nil
	default:
		return "", "", 0, fmt.Errorf("%w: unknown direction %q", ErrInvalidIntent, intent.Direction)
	}
}

// Execute settles one intent. Failures are *Error values carrying one of the
// kinds above, or ErrInvalidIntent.
func (e *Executor) Execute(ctx context.Context, intent domain.TradeIntent, signer *solana.Keypair) (*Fill, error) {
	inputMint, outputMint, amount, err := e.pair(intent)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With().
		Str("intent_id", intent.ID).
		Str("direction", string(intent.Direction)).
		Uint64("amount", amount).
		Logger()

	quote, err := e.deps.Quotes.Quote(ctx, jupiter.QuoteRequest{
		InputMint:   inputMint,
		OutputMint:  outputMint,
		Amount:      amount,
		SlippageBps: intent.SlippageBps,
	})
	if err != nil {
		return nil, newError(ErrQuoteUnavailable, err)
	}
	logger.Debug().Str("out_amount", quote.OutAmount).Msg("Quote received")

	var sig, inRaw, outRaw string
	switch e.cfg.Mode {
	case domain.ExecutionOneCall:
		sig, inRaw, outRaw, err = e.executeOneCall(ctx, intent, inputMint, outputMint, amount, signer)
	default:
		sig, err = e.executeBuildSignSubmit(ctx, intent, quote, signer)
		inRaw, outRaw = quote.InAmount, quote.OutAmount
	}
	if err != nil {
		return nil, err
	}
	if inRaw == "" {
		inRaw = fmt.Sprintf("%d", amount)
	}
	if outRaw == "" {
		outRaw = quote.OutAmount
	}

	fill, err := e.fill(intent.Direction, sig, inRaw, outRaw)
	if err != nil {
		// Settled on chain; accounting falls back to the intent.
		logger.Warn().Err(err).Str("signature", sig).Msg("Could not parse fill amounts")
		fill = &Fill{Signature: sig, Direction: intent.Direction, QuoteAmount: intent.Size, Price: intent.ReferencePrice}
		if intent.ReferencePrice > 0 {
			fill.AssetAmount = intent.Size / intent.ReferencePrice
		}
	}

	logger.Info().
		Str("signature", sig).
		Float64("price", fill.Price).
		Float64("asset_amount", fill.AssetAmount).
		Msg("Trade confirmed")
	return fill, nil
}

func (e *Executor) executeBuildSignSubmit(ctx context.Context, intent domain.TradeIntent, quote *jupiter.Quote, signer *solana.Keypair) (string, error) {
	unsigned, err := e.deps.Builder.BuildSwap(ctx, quote, signer.Address(), jupiter.SwapOptions{
		PrioritizationFeeLamports: intent.FeeBudget,
		WrapAndUnwrapSOL:          true,
		DynamicComputeUnitLimit:   true,
	})
	if err != nil {
		return "", newError(ErrBuildFailed, err)
	}

	signed, txID, err := solana.SignTransaction(unsigned, signer)
	if err != nil {
		return "", newError(ErrBuildFailed, err)
	}

	opts := &solana.SendOpts{PreflightCommitment: e.cfg.Commitment}
	if e.cfg.SendMaxRetries > 0 {
		retries := e.cfg.SendMaxRetries
		opts.MaxRetries = &retries
	}
	sig, err := e.deps.Submitter.SendTransaction(ctx, signed, opts)
	if err != nil {
		return "", newError(ErrSubmissionRejected, err)
	}
	if sig != txID {
		e.logger.Warn().Str("signature", sig).Str("expected", txID).Msg("Node returned unexpected signature")
	}

	confirmCtx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
	defer cancel()

	if err := e.deps.Confirmer.Confirm(confirmCtx, sig, e.cfg.Commitment); err != nil {
		var txErr *solana.TransactionError
		if errors.As(err, &txErr) {
			return "", newError(ErrSubmissionRejected, err)
		}
		return "", newError(ErrConfirmationTimeout, fmt.Errorf("signature %s: %w", sig, err))
	}
	return sig, nil
}

func (e *Executor) executeOneCall(ctx context.Context, intent domain.TradeIntent, inputMint, outputMint string, amount uint64, signer *solana.Keypair) (string, string, string, error) {
	res, err := e.deps.OneCall.ExecuteSwap(ctx, jupiter.OneCallRequest{
		InputMint:   inputMint,
		OutputMint:  outputMint,
		Amount:      amount,
		SlippageBps: intent.SlippageBps,
		FeeLamports: intent.FeeBudget,
	}, signer)
	switch {
	case errors.Is(err, jupiter.ErrOrderFailed):
		return "", "", "", newError(ErrQuoteUnavailable, err)
	case errors.Is(err, jupiter.ErrExecuteFailed):
		return "", "", "", newError(ErrConfirmationTimeout, err)
	case err != nil:
		return "", "", "", newError(ErrBuildFailed, err)
	}

	if res.Status == jupiter.StatusFailed {
		return "", "", "", newError(ErrSubmissionRejected, fmt.Errorf("aggregator: %s", res.Error))
	}
	if res.Signature == "" {
		return "", "", "", newError(ErrConfirmationTimeout, fmt.Errorf("aggregator returned status %q without signature", res.Status))
	}
	return res.Signature, res.InAmount, res.OutAmount, nil
}

// fill converts raw in/out amounts into quote and asset units.
func (e *Executor) fill(dir domain.Direction, sig, inRaw, outRaw string) (*Fill, error) {
	in, err := decimal.NewFromString(inRaw)
	if err != nil {
		return nil, fmt.Errorf("parse in amount %q: %w", inRaw, err)
	}
	out, err := decimal.NewFromString(outRaw)
	if err != nil {
		return nil, fmt.Errorf("parse out amount %q: %w", outRaw, err)
	}

	var sol, tokens decimal.Decimal
	if dir == domain.DirectionBuy {
		sol, tokens = in.Shift(-solDecimals), out.Shift(-e.cfg.AssetDecimals)
	} else {
		tokens, sol = in.Shift(-e.cfg.AssetDecimals), out.Shift(-solDecimals)
	}
	if !tokens.IsPositive() {
		return nil, fmt.Errorf("zero asset amount")
	}

	f := &Fill{Signature: sig, Direction: dir}
	f.QuoteAmount, _ = sol.Float64()
	f.AssetAmount, _ = tokens.Float64()
	f.Price, _ = sol.Div(tokens).Float64()
	return f, nil
}
