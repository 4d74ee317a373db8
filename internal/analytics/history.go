package analytics

import (
	"math"
	"sync"
	"time"

	"solana-mm-agent/internal/domain"
)

// DefaultMaxSamples caps the history independently of the window.
const DefaultMaxSamples = 1000

// History is a bounded price history, newest last.
type History struct {
	mu         sync.RWMutex
	window     time.Duration
	maxSamples int
	points     []domain.PricePoint
}

// NewHistory creates a History keeping samples within window, at most maxSamples.
func NewHistory(window time.Duration, maxSamples int) *History {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &History{window: window, maxSamples: maxSamples}
}

// Add appends a sample. Non-finite, non-positive or out-of-order samples are dropped.
func (h *History) Add(p domain.PricePoint) bool {
	if !validPrice(p.Price) {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.points); n > 0 && p.Timestamp.Before(h.points[n-1].Timestamp) {
		return false
	}
	h.points = append(h.points, p)
	h.prune(p.Timestamp)
	return true
}

// prune drops samples older than the window and beyond the cap. Caller holds the lock.
func (h *History) prune(now time.Time) {
	start := 0
	if h.window > 0 {
		cutoff := now.Add(-h.window)
		for start < len(h.points) && h.points[start].Timestamp.Before(cutoff) {
			start++
		}
	}
	if over := len(h.points) - start - h.maxSamples; over > 0 {
		start += over
	}
	if start > 0 {
		h.points = append(h.points[:0], h.points[start:]...)
	}
}

// Window returns a copy of the samples within the lookback ending at now.
func (h *History) Window(now time.Time) []domain.PricePoint {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cutoff := time.Time{}
	if h.window > 0 {
		cutoff = now.Add(-h.window)
	}

	out := make([]domain.PricePoint, 0, len(h.points))
	for _, p := range h.points {
		if p.Timestamp.Before(cutoff) || p.Timestamp.After(now) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Len returns the number of retained samples.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.points)
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}
