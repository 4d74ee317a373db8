// Package analytics estimates fair price and market regime from a rolling
// price history and turns them into a trading recommendation.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"solana-mm-agent/internal/domain"
)

// ErrPriceFetchFailed wraps price source failures.
var ErrPriceFetchFailed = errors.New("price fetch failed")

// PriceSource returns the current price of an asset in quote units.
type PriceSource interface {
	Price(ctx context.Context, asset string) (float64, error)
}

// VolumeSource returns traded volume for an asset since a point in time.
type VolumeSource interface {
	Volume(ctx context.Context, asset string, since time.Time) (domain.Volume24h, error)
}

// SampleStore persists and reloads price samples.
type SampleStore interface {
	InsertPriceSamples(ctx context.Context, samples []domain.PriceSample) error
	GetPriceSamples(ctx context.Context, asset string, fromMs, toMs int64) ([]domain.PriceSample, error)
}

// Config configures an Engine.
type Config struct {
	Asset           string
	Window          time.Duration
	MaxSamples      int
	RSIPeriod       int
	FairPricePeriod int
}

// Engine owns the price history of one asset.
type Engine struct {
	cfg     Config
	source  PriceSource
	volume  VolumeSource // optional
	samples SampleStore  // optional
	history *History
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithVolumeSource sets the 24h volume source.
func WithVolumeSource(v VolumeSource) Option {
	return func(e *Engine) { e.volume = v }
}

// WithSampleStore persists every accepted sample.
func WithSampleStore(s SampleStore) Option {
	return func(e *Engine) { e.samples = s }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine.
func NewEngine(cfg Config, source PriceSource, opts ...Option) *Engine {
	if cfg.Window <= 0 {
		cfg.Window = domain.DefaultAnalyticsWindow
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = DefaultRSIPeriod
	}
	if cfg.FairPricePeriod <= 0 {
		cfg.FairPricePeriod = DefaultFairPricePeriod
	}

	e := &Engine{
		cfg:     cfg,
		source:  source,
		history: NewHistory(cfg.Window, cfg.MaxSamples),
		now:     time.Now,
		logger:  log.With().Str("component", "analytics").Str("asset", cfg.Asset).Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Warm loads persisted samples within the window into the history.
func (e *Engine) Warm(ctx context.Context) (int, error) {
	if e.samples == nil {
		return 0, nil
	}
	now := e.now()
	samples, err := e.samples.GetPriceSamples(ctx, e.cfg.Asset, now.Add(-e.cfg.Window).UnixMilli(), now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("load price samples: %w", err)
	}

	loaded := 0
	for _, s := range samples {
		if e.history.Add(domain.PricePoint{Price: s.Price, Timestamp: time.UnixMilli(s.TimestampMs)}) {
			loaded++
		}
	}
	return loaded, nil
}

// Observe appends an externally observed price, e.g. a fill price.
func (e *Engine) Observe(price float64, at time.Time) bool {
	return e.history.Add(domain.PricePoint{Price: price, Timestamp: at})
}

// Refresh fetches one price, appends it and returns a fresh snapshot.
// It never fails: a failed fetch marks the sample absent, keeps the previous
// volume and recomputes indicators over the existing history.
func (e *Engine) Refresh(ctx context.Context, prev *domain.AnalyticsSnapshot) domain.AnalyticsSnapshot {
	now := e.now()
	snap := domain.AnalyticsSnapshot{ComputedAt: now}

	if err := e.fetch(ctx, now); err != nil {
		e.logger.Warn().Err(err).Msg("Price fetch failed, keeping previous values")
		if prev != nil {
			snap.Volume = prev.Volume
		}
	} else {
		snap.PriceAvailable = true
		snap.Volume = e.fetchVolume(ctx, now, prev)
	}

	window := e.history.Window(now)
	snap.PriceHistory = window
	e.compute(&snap, closes(window))

	e.logger.Debug().
		Int("samples", len(window)).
		Float64("volatility", snap.Volatility).
		Str("trend", string(snap.Trend)).
		Float64("rsi", snap.RSI).
		Str("action", string(snap.Recommendation.Action)).
		Float64("confidence", snap.Recommendation.Confidence).
		Msg("Analytics refreshed")

	return snap
}

// Snapshot computes a snapshot from the current history without fetching.
func (e *Engine) Snapshot() domain.AnalyticsSnapshot {
	now := e.now()
	window := e.history.Window(now)
	snap := domain.AnalyticsSnapshot{ComputedAt: now, PriceHistory: window}
	e.compute(&snap, closes(window))
	return snap
}

func (e *Engine) compute(snap *domain.AnalyticsSnapshot, prices []float64) {
	snap.Volatility = Volatility(prices)
	snap.Trend = ClassifyTrend(prices)
	snap.RSI = RSI(prices, e.cfg.RSIPeriod)
	snap.Support, snap.Resistance = SupportResistance(prices)
	snap.FairPrice = FairPrice(prices, e.cfg.FairPricePeriod)
	snap.Recommendation = Recommend(snap.RSI, snap.Trend, snap.Volatility)
}

func (e *Engine) fetch(ctx context.Context, now time.Time) error {
	price, err := e.source.Price(ctx, e.cfg.Asset)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPriceFetchFailed, err)
	}
	if !e.history.Add(domain.PricePoint{Price: price, Timestamp: now}) {
		return fmt.Errorf("%w: rejected sample %v", ErrPriceFetchFailed, price)
	}

	if e.samples != nil {
		sample := domain.PriceSample{Asset: e.cfg.Asset, TimestampMs: now.UnixMilli(), Price: price}
		if err := e.samples.InsertPriceSamples(ctx, []domain.PriceSample{sample}); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to persist price sample")
		}
	}
	return nil
}

func (e *Engine) fetchVolume(ctx context.Context, now time.Time, prev *domain.AnalyticsSnapshot) domain.Volume24h {
	if e.volume == nil {
		return domain.Volume24h{}
	}
	v, err := e.volume.Volume(ctx, e.cfg.Asset, now.Add(-24*time.Hour))
	if err != nil {
		e.logger.Warn().Err(err).Msg("Volume lookup failed")
		if prev != nil {
			return prev.Volume
		}
		return domain.Volume24h{}
	}
	return v
}
