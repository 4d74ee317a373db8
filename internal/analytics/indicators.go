package analytics

import (
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/trend"

	"solana-mm-agent/internal/domain"
)

// Indicator parameters
const (
	DefaultRSIPeriod       = 14
	DefaultFairPricePeriod = 10

	TrendThresholdPct  = 2.0
	RSIOversold        = 30.0
	RSIOverbought      = 70.0
	RSINeutral         = 50.0
	HighVolatilityPct  = 10.0
	BaseConfidence     = 0.8
	TrendConfidence    = 0.7
	HoldConfidence     = 0.5
	VolatilityDampener = 0.8
)

// Volatility returns the standard deviation of consecutive percentage returns
// times 100. Fewer than two returns yield 0. Returns that overflow are
// skipped, and a result that overflows saturates at math.MaxFloat64.
func Volatility(prices []float64) float64 {
	returns := make([]float64, 0, len(prices))
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		r := (prices[i] - prices[i-1]) / prices[i-1]
		if math.IsInf(r, 0) || math.IsNaN(r) {
			continue
		}
		returns = append(returns, r)
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))

	v := math.Sqrt(variance) * 100
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return math.MaxFloat64
	}
	return v
}

// ClassifyTrend compares only the first and last sample.
func ClassifyTrend(prices []float64) domain.Trend {
	if len(prices) < 2 || prices[0] == 0 {
		return domain.TrendSideways
	}
	change := (prices[len(prices)-1] - prices[0]) / prices[0] * 100
	switch {
	case change >= TrendThresholdPct:
		return domain.TrendUp
	case change <= -TrendThresholdPct:
		return domain.TrendDown
	default:
		return domain.TrendSideways
	}
}

// RSI returns the relative strength index over the trailing period using
// simple averages. Fewer than period+1 samples yield 50; a zero average loss
// yields 100.
func RSI(prices []float64, period int) float64 {
	if period <= 0 {
		period = DefaultRSIPeriod
	}
	if len(prices) < period+1 {
		return RSINeutral
	}

	tail := prices[len(prices)-period-1:]
	gains := make([]float64, period)
	losses := make([]float64, period)
	for i := 1; i < len(tail); i++ {
		change := tail[i] - tail[i-1]
		if change > 0 {
			gains[i-1] = change
		} else {
			losses[i-1] = -change
		}
	}

	avgGain := lastSMA(gains, period)
	avgLoss := lastSMA(losses, period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// SupportResistance returns the lowest strict local minimum and the highest
// strict local maximum. Either is nil when no such extremum exists.
func SupportResistance(prices []float64) (*float64, *float64) {
	var support, resistance *float64
	for i := 1; i < len(prices)-1; i++ {
		p := prices[i]
		if p < prices[i-1] && p < prices[i+1] && (support == nil || p < *support) {
			v := p
			support = &v
		}
		if p > prices[i-1] && p > prices[i+1] && (resistance == nil || p > *resistance) {
			v := p
			resistance = &v
		}
	}
	return support, resistance
}

// FairPrice returns the exponential moving average of prices. Windows shorter
// than the period use all samples as the period.
func FairPrice(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if period <= 0 || period > len(prices) {
		period = len(prices)
	}

	values := make(chan float64, len(prices))
	for _, p := range prices {
		values <- p
	}
	close(values)

	ema := trend.NewEmaWithPeriod[float64](period)
	fair := prices[len(prices)-1]
	for v := range ema.Compute(values) {
		fair = v
	}
	return fair
}

// Recommend combines the oscillator, trend and volatility into one action.
// It never fails; the fallback is hold at 0.5.
func Recommend(rsi float64, t domain.Trend, volatility float64) domain.Recommendation {
	rec := domain.Recommendation{Action: domain.ActionHold, Confidence: HoldConfidence}
	var reason string

	switch {
	case rsi <= RSIOversold:
		rec.Action, rec.Confidence = domain.ActionBuy, BaseConfidence
		reason = fmt.Sprintf("RSI %.1f oversold", rsi)
	case rsi >= RSIOverbought:
		rec.Action, rec.Confidence = domain.ActionSell, BaseConfidence
		reason = fmt.Sprintf("RSI %.1f overbought", rsi)
	default:
		reason = fmt.Sprintf("RSI %.1f neutral", rsi)
	}

	switch {
	case t == domain.TrendUp && rsi < RSINeutral:
		rec.Action = domain.ActionBuy
		rec.Confidence = math.Max(rec.Confidence, TrendConfidence)
		reason += ", uptrend with room to run"
	case t == domain.TrendDown && rsi > RSINeutral:
		rec.Action = domain.ActionSell
		rec.Confidence = math.Max(rec.Confidence, TrendConfidence)
		reason += ", downtrend with momentum left"
	}

	if volatility > HighVolatilityPct {
		rec.Confidence *= VolatilityDampener
		reason += fmt.Sprintf(", volatility %.1f%% dampens confidence", volatility)
	}

	rec.Confidence = math.Min(1, math.Max(0, rec.Confidence))
	rec.Reason = reason
	return rec
}

// lastSMA returns the final simple moving average of values.
func lastSMA(values []float64, period int) float64 {
	in := make(chan float64, len(values))
	for _, v := range values {
		in <- v
	}
	close(in)

	var last float64
	for v := range trend.NewSmaWithPeriod[float64](period).Compute(in) {
		last = v
	}
	return last
}

func closes(points []domain.PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Price
	}
	return out
}
