// Package agent runs one autonomous trading agent: an analytics timer, a
// strategy timer and the trade round-trip between them.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-mm-agent/internal/config"
	"solana-mm-agent/internal/domain"
	"solana-mm-agent/internal/events"
	"solana-mm-agent/internal/executor"
	"solana-mm-agent/internal/observability"
	"solana-mm-agent/internal/secrets"
	"solana-mm-agent/internal/solana"
	"solana-mm-agent/internal/storage"
	"solana-mm-agent/internal/strategy"
)

// Lifecycle errors
var (
	// ErrAlreadyRunning is returned by Start when the agent is starting or running.
	ErrAlreadyRunning = errors.New("agent already running")

	// ErrFundingWarning is logged, never returned, when the SOL balance is
	// below the configured minimum at start.
	ErrFundingWarning = errors.New("sol balance below minimum")

	// ErrMissingDependency is returned by New for absent required collaborators.
	ErrMissingDependency = errors.New("missing dependency")
)

// Timer names, also used as metric labels.
const (
	timerAnalytics = "analytics"
	timerStrategy  = "strategy"
)

// AccountReader reads on-chain balances.
type AccountReader interface {
	GetBalance(ctx context.Context, address string) (uint64, error)
	GetTokenBalance(ctx context.Context, owner, mint string) (*solana.TokenAmount, error)
}

// TradeExecutor settles trade intents.
type TradeExecutor interface {
	Execute(ctx context.Context, intent domain.TradeIntent, signer *solana.Keypair) (*executor.Fill, error)
}

// Analytics produces snapshots and accepts observed fill prices.
type Analytics interface {
	Refresh(ctx context.Context, prev *domain.AnalyticsSnapshot) domain.AnalyticsSnapshot
	Observe(price float64, at time.Time) bool
}

// PriceSource returns the current asset price in SOL.
type PriceSource interface {
	Price(ctx context.Context, asset string) (float64, error)
}

// Deps are the agent's collaborators. Accounts and Executor are required;
// Analytics is required when analytics is enabled; Secrets when the identity
// is an account reference. Prices feeds strategies when analytics is off.
type Deps struct {
	Accounts  AccountReader
	Executor  TradeExecutor
	Analytics Analytics
	Prices    PriceSource
	Secrets   secrets.Provider
	Trades    storage.TradeRecordStore
	Events    events.Publisher
	Clock     func() time.Time
}

// Agent is a single autonomous trader. All methods are safe for concurrent use.
type Agent struct {
	cfg      domain.AgentConfig
	deps     Deps
	strategy strategy.Strategy
	signer   *solana.Keypair
	name     string
	logger   zerolog.Logger

	mu         sync.Mutex
	state      domain.AgentState
	generation uint64
	timers     map[string]*time.Timer
	runCtx     context.Context
	cancel     context.CancelFunc
}

// New validates cfg, derives the signing key and selects the strategy.
// Configuration problems are returned as *domain.ConfigurationError.
func New(ctx context.Context, cfg domain.AgentConfig, deps Deps) (*Agent, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	strat, err := strategy.FromConfig(cfg)
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "strategy", Reason: err.Error()}
	}

	if deps.Accounts == nil {
		return nil, fmt.Errorf("%w: account reader", ErrMissingDependency)
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("%w: executor", ErrMissingDependency)
	}
	if cfg.UseAnalytics && deps.Analytics == nil {
		return nil, fmt.Errorf("%w: analytics engine", ErrMissingDependency)
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	signer, err := deriveSigner(ctx, cfg, deps.Secrets)
	if err != nil {
		return nil, err
	}

	name := cfg.Name
	if name == "" {
		name = signer.Address()
	}

	return &Agent{
		cfg:      cfg,
		deps:     deps,
		strategy: strat,
		signer:   signer,
		name:     name,
		logger:   config.NewAgentLogger(name, string(cfg.Strategy)),
		state: domain.AgentState{
			Phase:   domain.PhaseStopped,
			Address: signer.Address(),
		},
		timers: make(map[string]*time.Timer),
	}, nil
}

func deriveSigner(ctx context.Context, cfg domain.AgentConfig, provider secrets.Provider) (*solana.Keypair, error) {
	if len(cfg.Seed) > 0 {
		kp, err := solana.NewKeypairFromSeed(cfg.Seed)
		if err != nil {
			return nil, &domain.ConfigurationError{Field: "seed", Reason: err.Error()}
		}
		return kp, nil
	}
	if provider == nil {
		return nil, &domain.ConfigurationError{Field: "account_ref", Reason: "no secrets provider configured"}
	}
	kp, err := secrets.ResolveKeypair(ctx, provider, cfg.AccountRef)
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "account_ref", Reason: err.Error()}
	}
	return kp, nil
}

// Name returns the agent's display name.
func (a *Agent) Name() string { return a.name }

// Address returns the agent's account address.
func (a *Agent) Address() string { return a.signer.Address() }

// Config returns the immutable configuration with defaults applied.
func (a *Agent) Config() domain.AgentConfig { return a.cfg }

// State returns a deep copy of the agent state.
func (a *Agent) State() domain.AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Clone()
}

// Start refreshes balances and the price, checks funding and schedules the
// timers. It returns ErrAlreadyRunning without scheduling anything if the
// agent is starting or running.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.state.Phase != domain.PhaseStopped {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	a.state.Phase = domain.PhaseStarting
	a.state.LastError = ""
	a.generation++
	gen := a.generation
	a.runCtx, a.cancel = context.WithCancel(context.Background())
	a.mu.Unlock()

	a.logger.Info().Str("address", a.Address()).Msg("Starting agent")

	if err := a.refresh(ctx, gen); err != nil {
		a.logger.Warn().Err(err).Msg("Initial state refresh failed")
	}
	a.syncPrice(ctx, gen)
	a.checkFunding()

	a.mu.Lock()
	if a.generation != gen {
		// Stopped while starting.
		a.mu.Unlock()
		return nil
	}
	if a.cfg.UseAnalytics {
		a.arm(gen, timerAnalytics, a.cfg.AnalyticsInterval, a.cfg.AnalyticsInterval, a.analyticsTick)
	}
	if interval := a.strategy.Interval(); interval > 0 {
		a.arm(gen, timerStrategy, interval, interval, a.strategyTick)
	}
	a.state.Phase = domain.PhaseRunning
	a.state.Running = true
	a.mu.Unlock()

	observability.AgentStarted()
	a.publishLifecycle(ctx, domain.PhaseRunning)
	a.logger.Info().
		Bool("analytics", a.cfg.UseAnalytics).
		Dur("strategy_interval", a.strategy.Interval()).
		Msg("Agent running")
	return nil
}

// Stop cancels both timers and the run context. Results of trades still in
// flight are discarded. Stop on a stopped agent does nothing.
func (a *Agent) Stop() {
	a.mu.Lock()
	if a.state.Phase == domain.PhaseStopped {
		a.mu.Unlock()
		return
	}
	wasRunning := a.state.Phase == domain.PhaseRunning
	a.state.Phase = domain.PhaseStopped
	a.state.Running = false
	a.generation++
	for name, t := range a.timers {
		t.Stop()
		delete(a.timers, name)
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()

	if wasRunning {
		observability.AgentStopped()
	}
	a.publishLifecycle(context.Background(), domain.PhaseStopped)
	a.logger.Info().Msg("Agent stopped")
}

func (a *Agent) checkFunding() {
	a.mu.Lock()
	balance := a.state.Position.QuoteBalance
	a.mu.Unlock()

	if a.cfg.Risk.MinSOLBalance > 0 && balance < a.cfg.Risk.MinSOLBalance {
		a.logger.Warn().
			Err(ErrFundingWarning).
			Float64("balance_sol", balance).
			Float64("min_sol", a.cfg.Risk.MinSOLBalance).
			Msg("Agent is underfunded")
	}
}

func (a *Agent) publishLifecycle(ctx context.Context, phase domain.Phase) {
	err := a.deps.Events.PublishLifecycle(ctx, events.LifecycleEvent{
		Agent:     a.Address(),
		Strategy:  string(a.cfg.Strategy),
		Phase:     phase,
		Timestamp: a.deps.Clock(),
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to publish lifecycle event")
	}
}
