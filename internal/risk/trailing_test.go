package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"makerd/internal/config"
	"makerd/internal/gateway/exchange"
)

func trailingConfig() config.RiskConfig {
	return config.RiskConfig{
		BreakevenEnabled:     true,
		BreakevenTriggerATR:  1,
		ProfitLockEnabled:    true,
		ProfitLockTriggerATR: 2,
		ProfitLockFraction:   0.5,
		TrailEnabled:         true,
		TrailArmATR:          3,
		TrailMultiple:        2,
	}
}

func longPos(qty, entry float64) exchange.Position {
	return exchange.Position{Symbol: "BTCUSDT", Qty: qty, EntryPrice: entry}
}

func TestTrailingStop_BreakevenThenLockThenTrail(t *testing.T) {
	ts := NewTrailingStop(trailingConfig())
	pos := longPos(1, 100)
	atr := 2.0

	// below breakeven trigger (1 ATR = 2): no stop yet
	stop, moved := ts.Update(pos, 101, atr)
	assert.Zero(t, stop)
	assert.False(t, moved)

	// +1 ATR profit arms breakeven at entry
	stop, moved = ts.Update(pos, 102, atr)
	assert.Equal(t, 100.0, stop)
	assert.True(t, moved)

	// +2 ATR locks half the profit: 100 + 0.5*4 = 102
	stop, _ = ts.Update(pos, 104, atr)
	assert.Equal(t, 102.0, stop)

	// +3 ATR arms the trail: 110 - 2*2 = 106 beats the lock
	stop, _ = ts.Update(pos, 110, atr)
	assert.Equal(t, 106.0, stop)
}

func TestTrailingStop_NeverRetreats(t *testing.T) {
	ts := NewTrailingStop(trailingConfig())
	pos := longPos(1, 100)
	atr := 2.0

	ts.Update(pos, 110, atr) // trail armed, stop 106
	stop, moved := ts.Update(pos, 107, atr)
	// price fell back; trail candidate 103 must not pull the stop down
	assert.Equal(t, 106.0, stop)
	assert.False(t, moved)

	stop, _ = ts.Update(pos, 112, atr)
	assert.Equal(t, 108.0, stop)
}

func TestTrailingStop_ShortSideRatchetsDown(t *testing.T) {
	ts := NewTrailingStop(trailingConfig())
	pos := exchange.Position{Symbol: "BTCUSDT", Qty: -1, EntryPrice: 100}
	atr := 2.0

	stop, _ := ts.Update(pos, 98, atr) // +1 ATR short profit → breakeven
	assert.Equal(t, 100.0, stop)

	stop, _ = ts.Update(pos, 90, atr) // trail armed: 90 + 4 = 94
	assert.Equal(t, 94.0, stop)

	stop, _ = ts.Update(pos, 92, atr) // retreat candidate 96 ignored
	assert.Equal(t, 94.0, stop)

	assert.False(t, ts.Breached(93))
	assert.True(t, ts.Breached(94.5))
}

func TestTrailingStop_Breached(t *testing.T) {
	ts := NewTrailingStop(trailingConfig())
	pos := longPos(1, 100)
	ts.Update(pos, 102, 2) // breakeven stop at 100

	assert.False(t, ts.Breached(101))
	assert.True(t, ts.Breached(100))
	assert.True(t, ts.Breached(99))
}

func TestTrailingStop_ResetOnFlatAndFlip(t *testing.T) {
	ts := NewTrailingStop(trailingConfig())
	ts.Update(longPos(1, 100), 110, 2)
	assert.Positive(t, ts.Stop())

	t.Run("flat clears the ratchet", func(t *testing.T) {
		stop, _ := ts.Update(exchange.Position{}, 110, 2)
		assert.Zero(t, stop)
		assert.False(t, ts.Breached(50))
	})

	t.Run("side flip starts over", func(t *testing.T) {
		ts.Update(longPos(1, 100), 110, 2)
		stop, _ := ts.Update(exchange.Position{Qty: -1, EntryPrice: 110}, 110, 2)
		assert.Zero(t, stop)
	})

	t.Run("new entry price starts over", func(t *testing.T) {
		ts.Update(longPos(1, 100), 110, 2)
		stop, _ := ts.Update(longPos(2, 105), 105, 2)
		assert.Zero(t, stop)
	})
}

func TestTrailingStop_ZeroATRFreezesStop(t *testing.T) {
	ts := NewTrailingStop(trailingConfig())
	pos := longPos(1, 100)
	ts.Update(pos, 104, 2)
	stop, moved := ts.Update(pos, 120, 0)
	assert.Equal(t, 102.0, stop)
	assert.False(t, moved)
}

func TestController_PersistRoundTrip(t *testing.T) {
	cfg := trailingConfig()
	cfg.MaxDailyLossPct = 0.05
	c := NewController(cfg)

	c.ObserveCapital(10000, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	c.UpdateTrailing(longPos(1, 100), 110, 2)

	st := c.Persist()
	restored := NewController(cfg)
	restored.Restore(st)

	assert.Equal(t, c.Persist(), restored.Persist())
	assert.True(t, restored.StopBreached(105))
}
