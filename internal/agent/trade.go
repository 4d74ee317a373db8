package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"solana-mm-agent/internal/domain"
	"solana-mm-agent/internal/events"
	"solana-mm-agent/internal/executor"
	"solana-mm-agent/internal/jupiter"
	"solana-mm-agent/internal/observability"
	"solana-mm-agent/internal/solana"
)

// executeIntent runs one trade round-trip. Failures only bump FailedTrades
// and LastError. A result that arrives after Stop is discarded.
func (a *Agent) executeIntent(ctx context.Context, gen uint64, intent *domain.TradeIntent) {
	logger := a.logger.With().
		Str("intent_id", intent.ID).
		Str("direction", string(intent.Direction)).
		Float64("size", intent.Size).
		Str("reason", intent.Reason).
		Logger()
	logger.Info().Msg("Executing trade")

	start := a.deps.Clock()
	fill, err := a.deps.Executor.Execute(ctx, *intent, a.signer)
	now := a.deps.Clock()

	a.mu.Lock()
	if a.generation != gen {
		a.mu.Unlock()
		logger.Warn().Err(err).Msg("Agent stopped during trade, result discarded")
		return
	}
	if err != nil {
		a.state.FailedTrades++
		a.state.LastError = err.Error()
		a.mu.Unlock()

		kind := executor.KindLabel(err)
		observability.RecordTradeFailure(a.name, kind)
		var execErr *executor.Error
		retryable := errors.As(err, &execErr) && execErr.Retryable()
		logger.Error().Err(err).Str("kind", kind).Bool("retryable", retryable).Msg("Trade failed")
		return
	}
	a.applyFill(fill, now)
	a.mu.Unlock()

	observability.RecordTrade(a.name, string(fill.Direction), fill.QuoteAmount, now.Sub(start).Seconds(), string(a.cfg.ExecutionMode))
	if a.deps.Analytics != nil && fill.Price > 0 {
		a.deps.Analytics.Observe(fill.Price, now)
	}

	record := &domain.TradeRecord{
		IntentID:    intent.ID,
		Agent:       a.Address(),
		Strategy:    string(a.cfg.Strategy),
		Direction:   fill.Direction,
		Asset:       a.cfg.Asset,
		Size:        fill.QuoteAmount,
		Price:       fill.Price,
		AssetAmount: fill.AssetAmount,
		Signature:   fill.Signature,
		ExecutedAt:  now,
	}
	if a.deps.Trades != nil {
		if err := a.deps.Trades.Insert(ctx, record); err != nil {
			logger.Warn().Err(err).Msg("Failed to persist trade record")
		}
	}
	if err := a.deps.Events.PublishTrade(ctx, events.TradeEventFrom(record, intent.Reason)); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish trade event")
	}

	if err := a.refresh(ctx, gen); err != nil {
		logger.Warn().Err(err).Msg("Post-trade state refresh failed")
	}
}

// applyFill updates counters, cost basis and realized profit. Caller holds a.mu.
//
// Buys move the average entry to the size-weighted cost. Sells realize
// proceeds minus cost at the average entry; holdings with no known entry
// are costed at the fill price.
func (a *Agent) applyFill(fill *executor.Fill, now time.Time) {
	pos := &a.state.Position

	switch fill.Direction {
	case domain.DirectionBuy:
		a.state.TotalBuys++
		held := pos.AssetBalance
		if held < 0 {
			held = 0
		}
		if total := held + fill.AssetAmount; total > 0 {
			pos.AverageEntryPrice = (pos.AverageEntryPrice*held + fill.QuoteAmount) / total
		}
		pos.AssetBalance = held + fill.AssetAmount
		pos.QuoteBalance -= fill.QuoteAmount
	case domain.DirectionSell:
		a.state.TotalSells++
		entry := pos.AverageEntryPrice
		if entry <= 0 {
			entry = fill.Price
		}
		a.state.RealizedProfit += fill.QuoteAmount - fill.AssetAmount*entry
		pos.AssetBalance -= fill.AssetAmount
		if pos.AssetBalance <= 0 {
			pos.AssetBalance = 0
			pos.AverageEntryPrice = 0
		}
		pos.QuoteBalance += fill.QuoteAmount
	}

	if fill.Price > 0 {
		a.state.LastPrice = fill.Price
	}
	a.state.LastTrade = &domain.LastTrade{
		Direction: fill.Direction,
		Price:     fill.Price,
		Size:      fill.QuoteAmount,
		Timestamp: now,
		Signature: fill.Signature,
	}
	a.state.LastError = ""
	a.updateUnrealized()
}

// updateUnrealized recomputes unrealized PnL. Caller holds a.mu.
func (a *Agent) updateUnrealized() {
	pos := &a.state.Position
	if pos.AssetBalance > 0 && pos.AverageEntryPrice > 0 && a.state.LastPrice > 0 {
		pos.UnrealizedPnL = (a.state.LastPrice - pos.AverageEntryPrice) * pos.AssetBalance
	} else {
		pos.UnrealizedPnL = 0
	}
}

// RefreshState reads the SOL and asset balances concurrently and updates the
// position. A missing token account counts as a zero balance. Balances read
// across a Stop are discarded.
func (a *Agent) RefreshState(ctx context.Context) error {
	a.mu.Lock()
	gen := a.generation
	a.mu.Unlock()
	return a.refresh(ctx, gen)
}

func (a *Agent) refresh(ctx context.Context, gen uint64) error {
	address := a.Address()

	var lamports uint64
	var tokens float64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := a.deps.Accounts.GetBalance(gctx, address)
		if err != nil {
			return fmt.Errorf("get sol balance: %w", err)
		}
		lamports = v
		return nil
	})
	g.Go(func() error {
		amount, err := a.deps.Accounts.GetTokenBalance(gctx, address, a.cfg.Asset)
		if errors.Is(err, solana.ErrAccountNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get token balance: %w", err)
		}
		tokens = amount.UIAmount
		return nil
	})

	err := g.Wait()

	a.mu.Lock()
	if a.generation != gen {
		a.mu.Unlock()
		return nil
	}
	if err != nil {
		a.state.LastError = err.Error()
		a.mu.Unlock()
		return fmt.Errorf("refresh state: %w", err)
	}
	pos := &a.state.Position
	pos.QuoteBalance = jupiter.LamportsToSOL(lamports)
	pos.AssetBalance = tokens
	a.updateUnrealized()
	snapshot := *pos
	realized := a.state.RealizedProfit
	a.mu.Unlock()

	observability.UpdatePosition(a.name, snapshot.AssetBalance, snapshot.QuoteBalance, realized)
	return nil
}
