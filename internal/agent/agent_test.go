package agent

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-mm-agent/internal/config"
	"solana-mm-agent/internal/domain"
	"solana-mm-agent/internal/executor"
	"solana-mm-agent/internal/solana"
	"solana-mm-agent/internal/solana/stub"
	"solana-mm-agent/internal/storage/memory"
)

const testAsset = "MintAAA"

type fakeExecutor struct {
	mu    sync.Mutex
	calls int
	fn    func(intent domain.TradeIntent) (*executor.Fill, error)
}

func (f *fakeExecutor) Execute(_ context.Context, intent domain.TradeIntent, signer *solana.Keypair) (*executor.Fill, error) {
	if signer == nil {
		panic("executor called without signer")
	}
	f.mu.Lock()
	f.calls++
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return buyFill(intent), nil
	}
	return fn(intent)
}

func (f *fakeExecutor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func buyFill(intent domain.TradeIntent) *executor.Fill {
	return &executor.Fill{
		Signature:   "sig-" + intent.ID,
		Direction:   intent.Direction,
		QuoteAmount: intent.Size,
		AssetAmount: intent.Size / 0.05,
		Price:       0.05,
	}
}

type fakeAnalytics struct {
	mu       sync.Mutex
	snap     domain.AnalyticsSnapshot
	refresh  int
	observed []float64
}

func (f *fakeAnalytics) Refresh(context.Context, *domain.AnalyticsSnapshot) domain.AnalyticsSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh++
	return f.snap.Clone()
}

func (f *fakeAnalytics) Observe(price float64, _ time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observed = append(f.observed, price)
	return true
}

type fixedPrice struct {
	price float64
	err   error
}

func (f fixedPrice) Price(context.Context, string) (float64, error) { return f.price, f.err }

// gatedAccounts blocks GetBalance once armed until the gate is closed.
type gatedAccounts struct {
	*stub.RPCClient
	armed   atomic.Bool
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedAccounts) GetBalance(ctx context.Context, address string) (uint64, error) {
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.gate
	}
	return g.RPCClient.GetBalance(ctx, address)
}

func testSeed() []byte {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 7)
	}
	return seed
}

func dcaConfig(maxBuys int, interval time.Duration) domain.AgentConfig {
	return domain.AgentConfig{
		Name:             "test-agent",
		Asset:            testAsset,
		Strategy:         domain.StrategyDCA,
		DCA:              domain.DCAParams{Interval: interval, Amount: 0.1, MaxBuys: maxBuys},
		DefaultTradeSize: 0.1,
		Seed:             testSeed(),
	}
}

func newTestAgent(t *testing.T, cfg domain.AgentConfig, exec TradeExecutor, mutate func(*Deps)) (*Agent, *stub.RPCClient) {
	t.Helper()
	rpc := stub.NewRPCClient()
	deps := Deps{Accounts: rpc, Executor: exec}
	if mutate != nil {
		mutate(&deps)
	}
	a, err := New(context.Background(), cfg, deps)
	require.NoError(t, err)
	rpc.SetBalance(a.Address(), 2*solana.LamportsPerSOL)
	t.Cleanup(a.Stop)
	return a, rpc
}

func timerCount(a *Agent) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.timers)
}

func TestNew_ConfigurationError(t *testing.T) {
	cfg := dcaConfig(3, time.Second)
	cfg.Seed = nil

	_, err := New(context.Background(), cfg, Deps{Accounts: stub.NewRPCClient(), Executor: &fakeExecutor{}})
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "identity", cfgErr.Field)
}

func TestNew_MissingDependencies(t *testing.T) {
	_, err := New(context.Background(), dcaConfig(3, time.Second), Deps{Executor: &fakeExecutor{}})
	assert.ErrorIs(t, err, ErrMissingDependency)

	cfg := dcaConfig(3, time.Second)
	cfg.UseAnalytics = true
	_, err = New(context.Background(), cfg, Deps{Accounts: stub.NewRPCClient(), Executor: &fakeExecutor{}})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

type mapSecrets map[string]string

func (m mapSecrets) Secret(_ context.Context, ref string) (string, error) {
	v, ok := m[ref]
	if !ok {
		return "", errors.New("missing")
	}
	return v, nil
}

func TestNew_AccountRef(t *testing.T) {
	kp, err := solana.NewKeypairFromSeed(testSeed())
	require.NoError(t, err)

	cfg := dcaConfig(3, time.Second)
	cfg.Seed = nil
	cfg.AccountRef = "main"

	a, err := New(context.Background(), cfg, Deps{
		Accounts: stub.NewRPCClient(),
		Executor: &fakeExecutor{},
		Secrets:  mapSecrets{"main": kp.SecretBase58()},
	})
	require.NoError(t, err)
	assert.Equal(t, kp.Address(), a.Address())

	cfg.AccountRef = "other"
	_, err = New(context.Background(), cfg, Deps{
		Accounts: stub.NewRPCClient(),
		Executor: &fakeExecutor{},
		Secrets:  mapSecrets{},
	})
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "account_ref", cfgErr.Field)
}

func TestStart_DoubleStartSchedulesNoSecondTimer(t *testing.T) {
	exec := &fakeExecutor{}
	a, _ := newTestAgent(t, dcaConfig(3, time.Hour), exec, nil)

	require.NoError(t, a.Start(context.Background()))
	assert.Equal(t, 1, timerCount(a))

	assert.ErrorIs(t, a.Start(context.Background()), ErrAlreadyRunning)
	assert.Equal(t, 1, timerCount(a))

	st := a.State()
	assert.True(t, st.Running)
	assert.Equal(t, domain.PhaseRunning, st.Phase)
	assert.InDelta(t, 2.0, st.Position.QuoteBalance, 1e-9)
}

func TestDCA_ThreeBuysThenTimerCancelled(t *testing.T) {
	exec := &fakeExecutor{}
	store := memory.NewTradeRecordStore()
	a, _ := newTestAgent(t, dcaConfig(3, 5*time.Millisecond), exec, func(d *Deps) { d.Trades = store })

	require.NoError(t, a.Start(context.Background()))

	require.Eventually(t, func() bool { return timerCount(a) == 0 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, 3, exec.Calls())
	st := a.State()
	assert.Equal(t, 3, st.TotalBuys)
	assert.Equal(t, 0, st.FailedTrades)
	require.NotNil(t, st.LastTrade)
	assert.Equal(t, domain.DirectionBuy, st.LastTrade.Direction)

	trades, err := store.GetByAgent(context.Background(), a.Address())
	require.NoError(t, err)
	assert.Len(t, trades, 3)
}

func TestQuoteFailure_LeavesCountersUnchanged(t *testing.T) {
	exec := &fakeExecutor{fn: func(domain.TradeIntent) (*executor.Fill, error) {
		return nil, &executor.Error{Kind: executor.ErrQuoteUnavailable, Err: errors.New("no route")}
	}}
	a, _ := newTestAgent(t, dcaConfig(1, 5*time.Millisecond), exec, nil)

	require.NoError(t, a.Start(context.Background()))
	require.Eventually(t, func() bool { return a.State().FailedTrades == 1 }, 2*time.Second, 5*time.Millisecond)

	st := a.State()
	assert.Equal(t, 0, st.TotalBuys)
	assert.Equal(t, 0, st.TotalSells)
	assert.Nil(t, st.LastTrade)
	assert.Zero(t, st.RealizedProfit)
	assert.Contains(t, st.LastError, "quote unavailable")
}

func TestStopBeforeCompletion_DiscardsResult(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	exec := &fakeExecutor{fn: func(intent domain.TradeIntent) (*executor.Fill, error) {
		close(entered)
		<-release
		return buyFill(intent), nil
	}}
	store := memory.NewTradeRecordStore()
	a, _ := newTestAgent(t, dcaConfig(1, 5*time.Millisecond), exec, func(d *Deps) { d.Trades = store })

	require.NoError(t, a.Start(context.Background()))

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("trade never started")
	}
	a.Stop()
	close(release)
	time.Sleep(30 * time.Millisecond)

	st := a.State()
	assert.False(t, st.Running)
	assert.Equal(t, 0, st.TotalBuys)
	assert.Equal(t, 0, st.FailedTrades)
	assert.Nil(t, st.LastTrade)

	trades, err := store.GetByAgent(context.Background(), a.Address())
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestStrategyStatePersistsAcrossRestart(t *testing.T) {
	exec := &fakeExecutor{}
	a, _ := newTestAgent(t, dcaConfig(2, 5*time.Millisecond), exec, nil)

	require.NoError(t, a.Start(context.Background()))
	require.Eventually(t, func() bool { return timerCount(a) == 0 }, 2*time.Second, 5*time.Millisecond)
	a.Stop()

	require.NoError(t, a.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2, exec.Calls(), "a completed DCA schedule does not restart")
}

func TestPanicInTickIsRecovered(t *testing.T) {
	var once sync.Once
	exec := &fakeExecutor{}
	exec.fn = func(intent domain.TradeIntent) (*executor.Fill, error) {
		panicked := false
		once.Do(func() { panicked = true })
		if panicked {
			panic("signer exploded")
		}
		return buyFill(intent), nil
	}
	a, _ := newTestAgent(t, dcaConfig(3, 5*time.Millisecond), exec, nil)

	require.NoError(t, a.Start(context.Background()))
	require.Eventually(t, func() bool { return a.State().TotalBuys == 2 }, 2*time.Second, 5*time.Millisecond)

	st := a.State()
	assert.Equal(t, 0, st.FailedTrades)
	assert.Equal(t, 3, exec.Calls())
}

func TestCustomStrategy_AnalyticsDrivesTrades(t *testing.T) {
	analytics := &fakeAnalytics{snap: domain.AnalyticsSnapshot{
		PriceHistory:   []domain.PricePoint{{Price: 0.05, Timestamp: time.Now()}},
		PriceAvailable: true,
		Recommendation: domain.Recommendation{Action: domain.ActionBuy, Confidence: 0.8},
	}}
	exec := &fakeExecutor{}

	cfg := dcaConfig(1, time.Second)
	cfg.Strategy = domain.StrategyCustom
	cfg.UseAnalytics = true
	cfg.AnalyticsInterval = 5 * time.Millisecond

	a, _ := newTestAgent(t, cfg, exec, func(d *Deps) { d.Analytics = analytics })
	require.NoError(t, a.Start(context.Background()))

	a.mu.Lock()
	_, hasStrategyTimer := a.timers[timerStrategy]
	a.mu.Unlock()
	assert.False(t, hasStrategyTimer)

	require.Eventually(t, func() bool { return a.State().TotalBuys >= 1 }, 2*time.Second, 5*time.Millisecond)

	st := a.State()
	require.NotNil(t, st.Analytics)
	assert.Equal(t, domain.ActionBuy, st.Analytics.Recommendation.Action)
	assert.InDelta(t, 0.05, st.LastPrice, 1e-12)

	analytics.mu.Lock()
	assert.NotEmpty(t, analytics.observed, "fill prices feed the history")
	analytics.mu.Unlock()
}

func TestExecuteIntent_CostBasisAndRealizedProfit(t *testing.T) {
	exec := &fakeExecutor{}
	a, rpc := newTestAgent(t, dcaConfig(3, time.Hour), exec, nil)
	owner := a.Address()

	a.mu.Lock()
	gen := a.generation
	a.mu.Unlock()

	// Buy 20 tokens for 1 SOL.
	exec.fn = func(intent domain.TradeIntent) (*executor.Fill, error) {
		return &executor.Fill{Signature: "s1", Direction: domain.DirectionBuy, QuoteAmount: 1, AssetAmount: 20, Price: 0.05}, nil
	}
	rpc.SetTokenBalance(owner, testAsset, &solana.TokenAmount{Amount: "20000000", Decimals: 6, UIAmount: 20})
	a.executeIntent(context.Background(), gen, &domain.TradeIntent{ID: "b1", Direction: domain.DirectionBuy, Size: 1})

	st := a.State()
	assert.Equal(t, 1, st.TotalBuys)
	assert.InDelta(t, 0.05, st.Position.AverageEntryPrice, 1e-12)
	assert.InDelta(t, 20, st.Position.AssetBalance, 1e-12)

	// Sell 10 tokens for 0.6 SOL.
	exec.fn = func(intent domain.TradeIntent) (*executor.Fill, error) {
		return &executor.Fill{Signature: "s2", Direction: domain.DirectionSell, QuoteAmount: 0.6, AssetAmount: 10, Price: 0.06}, nil
	}
	rpc.SetTokenBalance(owner, testAsset, &solana.TokenAmount{Amount: "10000000", Decimals: 6, UIAmount: 10})
	a.executeIntent(context.Background(), gen, &domain.TradeIntent{ID: "s1", Direction: domain.DirectionSell, Size: 0.6, ReferencePrice: 0.06})

	st = a.State()
	assert.Equal(t, 1, st.TotalSells)
	assert.InDelta(t, 0.1, st.RealizedProfit, 1e-9)
	assert.InDelta(t, 0.05, st.Position.AverageEntryPrice, 1e-12)
	assert.InDelta(t, 0.1, st.Position.UnrealizedPnL, 1e-9, "(0.06-0.05)*10")
	assert.Equal(t, "s2", st.LastTrade.Signature)
}

func TestRefreshState(t *testing.T) {
	a, rpc := newTestAgent(t, dcaConfig(3, time.Hour), &fakeExecutor{}, nil)

	require.NoError(t, a.RefreshState(context.Background()))
	st := a.State()
	assert.InDelta(t, 2.0, st.Position.QuoteBalance, 1e-9)
	assert.Zero(t, st.Position.AssetBalance, "missing token account counts as zero")

	rpc.SetTokenBalance(a.Address(), testAsset, &solana.TokenAmount{Amount: "1500000", Decimals: 6, UIAmount: 1.5})
	require.NoError(t, a.RefreshState(context.Background()))
	assert.InDelta(t, 1.5, a.State().Position.AssetBalance, 1e-12)

	rpc.BalanceErr = errors.New("rpc down")
	assert.Error(t, a.RefreshState(context.Background()))
	assert.Contains(t, a.State().LastError, "rpc down")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStart_FundingWarning(t *testing.T) {
	var out syncBuffer
	config.InitLoggerTo(&out, "info", "json")
	t.Cleanup(func() { config.InitLogger("info", "json") })

	cfg := dcaConfig(3, time.Hour)
	cfg.Risk.MinSOLBalance = 5
	a, _ := newTestAgent(t, cfg, &fakeExecutor{}, nil)

	require.NoError(t, a.Start(context.Background()), "funding warning never fails start")
	assert.Contains(t, out.String(), ErrFundingWarning.Error())
}

func TestStop_Idempotent(t *testing.T) {
	a, _ := newTestAgent(t, dcaConfig(3, time.Hour), &fakeExecutor{}, nil)

	a.Stop()
	require.NoError(t, a.Start(context.Background()))
	a.Stop()
	a.Stop()

	st := a.State()
	assert.False(t, st.Running)
	assert.Equal(t, domain.PhaseStopped, st.Phase)
	assert.Equal(t, 0, timerCount(a))
}

func TestStart_SyncsPriceFromSource(t *testing.T) {
	a, _ := newTestAgent(t, dcaConfig(3, time.Hour), &fakeExecutor{}, func(d *Deps) {
		d.Prices = fixedPrice{price: 0.05}
	})

	require.NoError(t, a.Start(context.Background()))
	assert.InDelta(t, 0.05, a.State().LastPrice, 1e-12)
}

func TestStart_SyncsSnapshotFromAnalytics(t *testing.T) {
	analytics := &fakeAnalytics{snap: domain.AnalyticsSnapshot{
		PriceHistory:   []domain.PricePoint{{Price: 0.07, Timestamp: time.Now()}},
		PriceAvailable: true,
		Recommendation: domain.Recommendation{Action: domain.ActionHold, Confidence: 0.5},
	}}
	cfg := dcaConfig(3, time.Hour)
	cfg.UseAnalytics = true
	cfg.AnalyticsInterval = time.Hour

	a, _ := newTestAgent(t, cfg, &fakeExecutor{}, func(d *Deps) { d.Analytics = analytics })
	require.NoError(t, a.Start(context.Background()))

	st := a.State()
	assert.InDelta(t, 0.07, st.LastPrice, 1e-12)
	require.NotNil(t, st.Analytics)
	assert.Equal(t, 1, analytics.refresh)
}

func TestStart_PriceFailureIsNotFatal(t *testing.T) {
	a, _ := newTestAgent(t, dcaConfig(3, time.Hour), &fakeExecutor{}, func(d *Deps) {
		d.Prices = fixedPrice{err: errors.New("no route")}
	})

	require.NoError(t, a.Start(context.Background()))
	assert.Zero(t, a.State().LastPrice)
	assert.True(t, a.State().Running)
}

func TestAnalyticsTick_TradesForScheduledStrategies(t *testing.T) {
	analytics := &fakeAnalytics{snap: domain.AnalyticsSnapshot{
		PriceHistory:   []domain.PricePoint{{Price: 0.05, Timestamp: time.Now()}},
		PriceAvailable: true,
		Recommendation: domain.Recommendation{Action: domain.ActionBuy, Confidence: 0.9, Reason: "oversold"},
	}}
	var mu sync.Mutex
	var reasons []string
	exec := &fakeExecutor{fn: func(intent domain.TradeIntent) (*executor.Fill, error) {
		mu.Lock()
		reasons = append(reasons, intent.Reason)
		mu.Unlock()
		return buyFill(intent), nil
	}}

	cfg := dcaConfig(3, time.Hour)
	cfg.UseAnalytics = true
	cfg.AnalyticsInterval = 5 * time.Millisecond

	a, _ := newTestAgent(t, cfg, exec, func(d *Deps) { d.Analytics = analytics })
	require.NoError(t, a.Start(context.Background()))

	require.Eventually(t, func() bool { return a.State().TotalBuys >= 1 }, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, reasons)
	assert.Contains(t, reasons[0], "analytics buy")
}

func TestAnalyticsTick_MarketMakingDecidesInOwnTick(t *testing.T) {
	analytics := &fakeAnalytics{snap: domain.AnalyticsSnapshot{
		PriceHistory:   []domain.PricePoint{{Price: 0.05, Timestamp: time.Now()}},
		PriceAvailable: true,
		Recommendation: domain.Recommendation{Action: domain.ActionBuy, Confidence: 0.9},
	}}
	exec := &fakeExecutor{}

	cfg := dcaConfig(3, time.Hour)
	cfg.Strategy = domain.StrategyMarketMaking
	cfg.MarketMaking = domain.MarketMakingParams{MinSpreadPct: 1, MaxSpreadPct: 3, OrderSize: 0.1, Interval: time.Hour}
	cfg.UseAnalytics = true
	cfg.AnalyticsInterval = 5 * time.Millisecond

	a, _ := newTestAgent(t, cfg, exec, func(d *Deps) { d.Analytics = analytics })
	require.NoError(t, a.Start(context.Background()))

	require.Eventually(t, func() bool {
		analytics.mu.Lock()
		defer analytics.mu.Unlock()
		return analytics.refresh >= 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, exec.Calls())
}

func TestStopDuringPostTradeRefresh_DiscardsBalances(t *testing.T) {
	accounts := &gatedAccounts{
		RPCClient: stub.NewRPCClient(),
		entered:   make(chan struct{}),
		gate:      make(chan struct{}),
	}
	exec := &fakeExecutor{fn: func(domain.TradeIntent) (*executor.Fill, error) {
		return &executor.Fill{Signature: "s1", Direction: domain.DirectionBuy, QuoteAmount: 1, AssetAmount: 20, Price: 0.05}, nil
	}}
	a, err := New(context.Background(), dcaConfig(3, time.Hour), Deps{Accounts: accounts, Executor: exec})
	require.NoError(t, err)
	t.Cleanup(a.Stop)

	accounts.SetBalance(a.Address(), 2*solana.LamportsPerSOL)
	require.NoError(t, a.Start(context.Background()))

	a.mu.Lock()
	gen := a.generation
	a.mu.Unlock()

	accounts.SetBalance(a.Address(), 9*solana.LamportsPerSOL)
	accounts.SetTokenBalance(a.Address(), testAsset, &solana.TokenAmount{Amount: "99000000", Decimals: 6, UIAmount: 99})
	accounts.armed.Store(true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.executeIntent(context.Background(), gen, &domain.TradeIntent{ID: "b1", Direction: domain.DirectionBuy, Size: 1})
	}()

	select {
	case <-accounts.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("post-trade refresh never started")
	}
	a.Stop()
	close(accounts.gate)
	<-done

	st := a.State()
	assert.Equal(t, 1, st.TotalBuys, "the fill landed before stop")
	assert.InDelta(t, 20, st.Position.AssetBalance, 1e-12)
	assert.InDelta(t, 1.0, st.Position.QuoteBalance, 1e-9)
	assert.Empty(t, st.LastError)
}
