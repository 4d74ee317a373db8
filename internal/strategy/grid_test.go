package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-mm-agent/internal/domain"
)

func gridConfig(geometric bool) domain.AgentConfig {
	cfg := baseConfig(domain.StrategyGrid)
	cfg.Grid = domain.GridParams{Levels: 3, SpacingPct: 1, RangePct: 5, Geometric: geometric, OrderSize: 0.1}
	return cfg
}

func TestGrid_LinearLevels(t *testing.T) {
	g := NewGrid(gridConfig(false))
	assert.Equal(t, Decision{}, g.Tick(View{Now: now, Price: 100}), "first tick anchors")

	levels := g.Levels()
	require.Len(t, levels, 6)
	assert.InDelta(t, 97, levels[0], 1e-9)
	assert.InDelta(t, 103, levels[5], 1e-9)
}

func TestGrid_GeometricLevels(t *testing.T) {
	g := NewGrid(gridConfig(true))
	g.Tick(View{Now: now, Price: 100})

	levels := g.Levels()
	require.Len(t, levels, 6)
	assert.InDelta(t, 101, levels[3], 1e-9)
	assert.InDelta(t, 100*1.01*1.01, levels[4], 1e-9)
	assert.InDelta(t, 100/1.01, levels[2], 1e-9)
}

func TestGrid_OutermostCrossFires(t *testing.T) {
	g := NewGrid(gridConfig(false))
	g.Tick(View{Now: now, Price: 100})

	// Drops through 99 and 98 in one tick: only 98 fires.
	d := g.Tick(View{Now: now, Price: 97.5})
	require.NotNil(t, d.Intent)
	assert.Equal(t, domain.DirectionBuy, d.Intent.Direction)
	assert.Contains(t, d.Intent.Reason, "98")
	assert.Equal(t, 0.1, d.Intent.Size)

	// No new level between 97.5 and 97.6.
	assert.Nil(t, g.Tick(View{Now: now, Price: 97.6}).Intent)

	// Rises through 98..101 with inventory: only 101 fires.
	d = g.Tick(View{Now: now, Price: 101.5, Position: domain.Position{AssetBalance: 5}})
	require.NotNil(t, d.Intent)
	assert.Equal(t, domain.DirectionSell, d.Intent.Direction)
	assert.Contains(t, d.Intent.Reason, "101")
}

func TestGrid_SellNeedsInventory(t *testing.T) {
	g := NewGrid(gridConfig(false))
	g.Tick(View{Now: now, Price: 100})
	assert.Nil(t, g.Tick(View{Now: now, Price: 101.2}).Intent)
}

func TestGrid_ReanchorsOutsideRange(t *testing.T) {
	g := NewGrid(gridConfig(false))
	g.Tick(View{Now: now, Price: 100})

	d := g.Tick(View{Now: now, Price: 120})
	assert.Nil(t, d.Intent)
	levels := g.Levels()
	assert.InDelta(t, 120*0.97, levels[0], 1e-9)
}
