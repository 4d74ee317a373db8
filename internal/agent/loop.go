package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"solana-mm-agent/internal/domain"
	"solana-mm-agent/internal/observability"
	"solana-mm-agent/internal/strategy"
)

// tickFunc runs one timer tick. It returns false to cancel the timer.
type tickFunc func(ctx context.Context, gen uint64) bool

// arm schedules the named timer. The timer re-arms only after its tick
// returns, so a tick never overlaps itself. Caller holds a.mu.
func (a *Agent) arm(gen uint64, name string, delay, interval time.Duration, tick tickFunc) {
	a.timers[name] = time.AfterFunc(delay, func() {
		a.fire(gen, name, interval, tick)
	})
}

func (a *Agent) fire(gen uint64, name string, interval time.Duration, tick tickFunc) {
	a.mu.Lock()
	if a.generation != gen {
		a.mu.Unlock()
		return
	}
	ctx := a.runCtx
	a.mu.Unlock()

	again := a.safeTick(ctx, gen, name, tick)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generation != gen {
		return
	}
	if !again {
		delete(a.timers, name)
		return
	}
	a.arm(gen, name, interval, interval, tick)
}

// safeTick recovers a panicking tick so the timer keeps running.
func (a *Agent) safeTick(ctx context.Context, gen uint64, name string, tick tickFunc) (again bool) {
	defer func() {
		if r := recover(); r != nil {
			observability.RecordTickPanic(a.name, name)
			a.logger.Error().
				Str("timer", name).
				Str("panic", fmt.Sprint(r)).
				Str("stack", string(debug.Stack())).
				Msg("Recovered panic in tick")
			again = true
		}
	}()
	return tick(ctx, gen)
}

// analyticsTick refreshes the snapshot and trades on a confident
// recommendation. Market making consults the recommendation in its own tick.
func (a *Agent) analyticsTick(ctx context.Context, gen uint64) bool {
	snap, pos, ok := a.refreshAnalytics(ctx, gen)
	if !ok {
		return false
	}

	if a.cfg.Strategy == domain.StrategyMarketMaking {
		return true
	}
	if intent := strategy.AnalyticsIntent(a.cfg, &snap, pos, a.deps.Clock()); intent != nil {
		a.executeIntent(ctx, gen, intent)
	}
	return true
}

// refreshAnalytics replaces the snapshot. It reports false if the agent was
// stopped meanwhile, in which case nothing is written.
func (a *Agent) refreshAnalytics(ctx context.Context, gen uint64) (domain.AnalyticsSnapshot, domain.Position, bool) {
	a.mu.Lock()
	var prev *domain.AnalyticsSnapshot
	if a.state.Analytics != nil {
		snap := a.state.Analytics.Clone()
		prev = &snap
	}
	a.mu.Unlock()

	snap := a.deps.Analytics.Refresh(ctx, prev)

	a.mu.Lock()
	if a.generation != gen {
		a.mu.Unlock()
		return snap, domain.Position{}, false
	}
	stored := snap.Clone()
	a.state.Analytics = &stored
	if snap.PriceAvailable {
		a.state.LastPrice = snap.LatestPrice()
		a.updateUnrealized()
	}
	pos := a.state.Position
	a.mu.Unlock()

	observability.RecordAnalytics(a.name, snap.PriceAvailable, snap.LatestPrice(), snap.Volatility, snap.RSI)
	return snap, pos, true
}

// syncPrice refreshes the price once, through analytics when enabled.
func (a *Agent) syncPrice(ctx context.Context, gen uint64) {
	if a.cfg.UseAnalytics {
		a.refreshAnalytics(ctx, gen)
		return
	}
	a.refreshPrice(ctx, gen)
}

// strategyTick runs one strategy decision. It returns false once the strategy is done.
func (a *Agent) strategyTick(ctx context.Context, gen uint64) bool {
	if !a.cfg.UseAnalytics {
		a.refreshPrice(ctx, gen)
	}

	a.mu.Lock()
	if a.generation != gen {
		a.mu.Unlock()
		return false
	}
	view := strategy.View{
		Now:      a.deps.Clock(),
		Price:    a.state.LastPrice,
		Position: a.state.Position,
	}
	if a.state.Analytics != nil {
		snap := a.state.Analytics.Clone()
		view.Analytics = &snap
	}
	a.mu.Unlock()

	decision := a.strategy.Tick(view)
	if decision.Intent != nil {
		a.executeIntent(ctx, gen, decision.Intent)
	}
	if decision.Done {
		a.logger.Info().Msg("Strategy completed, strategy timer cancelled")
		return false
	}
	return true
}

// refreshPrice updates LastPrice from the price source when analytics is off.
func (a *Agent) refreshPrice(ctx context.Context, gen uint64) {
	if a.deps.Prices == nil {
		return
	}
	price, err := a.deps.Prices.Price(ctx, a.cfg.Asset)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Price fetch failed")
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generation != gen {
		return
	}
	a.state.LastPrice = price
	a.updateUnrealized()
}
