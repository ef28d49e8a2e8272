package risk

import (
	"makerd/internal/config"
	"makerd/internal/gateway/exchange"
)

// TrailingStop ratchets a protective stop in the position's favor. Three
// independent triggers produce candidate stops; the effective stop is the
// best of all triggered candidates and the previous stop, so it never
// retreats while the position stays open.
type TrailingStop struct {
	cfg config.RiskConfig

	active    bool
	side      exchange.Side
	entry     float64
	stop      float64
	trailArm  bool
	lockDone  bool
	breakeven bool
}

func NewTrailingStop(cfg config.RiskConfig) *TrailingStop {
	return &TrailingStop{cfg: cfg}
}

// Update recomputes the stop for the current position and price. It returns
// the effective stop (0 while no stop is set) and whether it moved.
func (t *TrailingStop) Update(pos exchange.Position, price, atr float64) (float64, bool) {
	if pos.Flat() || price <= 0 {
		t.reset()
		return 0, false
	}
	side := pos.Side()
	if !t.active || side != t.side || pos.EntryPrice != t.entry {
		// New or flipped position: start the ratchet over.
		t.reset()
		t.active = true
		t.side = side
		t.entry = pos.EntryPrice
	}
	if atr <= 0 {
		return t.stop, false
	}

	profit := price - t.entry
	if side == exchange.SideSell {
		profit = t.entry - price
	}

	prev := t.stop
	var candidates []float64

	if t.cfg.BreakevenEnabled && !t.breakeven && profit >= t.cfg.BreakevenTriggerATR*atr {
		t.breakeven = true
	}
	if t.breakeven {
		candidates = append(candidates, t.entry)
	}

	if t.cfg.ProfitLockEnabled && !t.lockDone && profit >= t.cfg.ProfitLockTriggerATR*atr {
		t.lockDone = true
	}
	if t.lockDone {
		locked := t.entry + t.cfg.ProfitLockFraction*profit
		if side == exchange.SideSell {
			locked = t.entry - t.cfg.ProfitLockFraction*profit
		}
		candidates = append(candidates, locked)
	}

	if t.cfg.TrailEnabled && !t.trailArm && profit >= t.cfg.TrailArmATR*atr {
		t.trailArm = true
	}
	if t.trailArm {
		trail := price - t.cfg.TrailMultiple*atr
		if side == exchange.SideSell {
			trail = price + t.cfg.TrailMultiple*atr
		}
		candidates = append(candidates, trail)
	}

	for _, c := range candidates {
		if t.stop == 0 {
			t.stop = c
			continue
		}
		if side == exchange.SideBuy && c > t.stop {
			t.stop = c
		}
		if side == exchange.SideSell && c < t.stop {
			t.stop = c
		}
	}
	return t.stop, t.stop != prev
}

// Breached reports whether the current price has crossed the stop, meaning
// the position should be unwound.
func (t *TrailingStop) Breached(price float64) bool {
	if !t.active || t.stop == 0 || price <= 0 {
		return false
	}
	if t.side == exchange.SideBuy {
		return price <= t.stop
	}
	return price >= t.stop
}

func (t *TrailingStop) Stop() float64 { return t.stop }

func (t *TrailingStop) reset() {
	t.active = false
	t.side = ""
	t.entry = 0
	t.stop = 0
	t.trailArm = false
	t.lockDone = false
	t.breakeven = false
}

// Restore rehydrates the ratchet from a persisted checkpoint.
func (t *TrailingStop) Restore(active bool, side exchange.Side, entry, stop float64, trailArm, lockDone, breakeven bool) {
	t.active = active
	t.side = side
	t.entry = entry
	t.stop = stop
	t.trailArm = trailArm
	t.lockDone = lockDone
	t.breakeven = breakeven
}
