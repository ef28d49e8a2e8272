package risk

import (
	"time"

	"makerd/internal/config"
	"makerd/internal/gateway/exchange"
)

// Controller bundles the three risk machines for one symbol.
type Controller struct {
	breaker *CircuitBreaker
	daily   *DailyLossBreaker
	trail   *TrailingStop
}

func NewController(cfg config.RiskConfig) *Controller {
	return &Controller{
		breaker: NewCircuitBreaker(cfg),
		daily:   NewDailyLossBreaker(cfg.MaxDailyLossPct),
		trail:   NewTrailingStop(cfg),
	}
}

// ObservePrice feeds the circuit breaker; true means it just tripped and all
// resting orders must be cancelled this cycle.
func (c *Controller) ObservePrice(price float64, now time.Time) bool {
	return c.breaker.Observe(price, now)
}

// ObserveCapital feeds the daily-loss breaker; true means the symbol just
// halted permanently.
func (c *Controller) ObserveCapital(capital float64, now time.Time) bool {
	return c.daily.Observe(capital, now)
}

func (c *Controller) UpdateTrailing(pos exchange.Position, price, atr float64) (float64, bool) {
	return c.trail.Update(pos, price, atr)
}

func (c *Controller) StopBreached(price float64) bool {
	return c.trail.Breached(price)
}

func (c *Controller) QuotingAllowed(now time.Time) bool {
	return !c.daily.Halted() && c.breaker.Allows(now)
}

func (c *Controller) Halted() bool { return c.daily.Halted() }

// Snapshot is the read-only view handed to the quote calculator, the ops API
// and the persistence layer.
type Snapshot struct {
	Breaker       BreakerState `json:"breaker"`
	Halted        bool         `json:"halted"`
	Stop          float64      `json:"stop"`
	DailyBaseline float64      `json:"daily_baseline"`
	PeakCapital   float64      `json:"peak_capital"`
}

func (s Snapshot) QuotingAllowed() bool {
	return !s.Halted && s.Breaker == BreakerArmed
}

func (c *Controller) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		Breaker:       c.breaker.State(now),
		Halted:        c.daily.Halted(),
		Stop:          c.trail.stop,
		DailyBaseline: c.daily.Baseline(),
		PeakCapital:   c.daily.Peak(),
	}
}

// PersistedState is the checkpoint payload for restart recovery.
type PersistedState struct {
	DailyBaseline    float64       `json:"daily_baseline"`
	DailyBaselineDay string        `json:"daily_baseline_day"`
	PeakCapital      float64       `json:"peak_capital"`
	Halted           bool          `json:"halted"`
	TrailActive      bool          `json:"trail_active"`
	TrailSide        exchange.Side `json:"trail_side"`
	TrailEntry       float64       `json:"trail_entry"`
	Stop             float64       `json:"stop"`
	TrailArmed       bool          `json:"trail_armed"`
	LockDone         bool          `json:"lock_done"`
	Breakeven        bool          `json:"breakeven"`
}

func (c *Controller) Persist() PersistedState {
	return PersistedState{
		DailyBaseline:    c.daily.baseline,
		DailyBaselineDay: c.daily.baselineDay,
		PeakCapital:      c.daily.peak,
		Halted:           c.daily.halted,
		TrailActive:      c.trail.active,
		TrailSide:        c.trail.side,
		TrailEntry:       c.trail.entry,
		Stop:             c.trail.stop,
		TrailArmed:       c.trail.trailArm,
		LockDone:         c.trail.lockDone,
		Breakeven:        c.trail.breakeven,
	}
}

func (c *Controller) Restore(st PersistedState) {
	c.daily.Restore(st.DailyBaseline, st.DailyBaselineDay, st.PeakCapital, st.Halted)
	c.trail.Restore(st.TrailActive, st.TrailSide, st.TrailEntry, st.Stop, st.TrailArmed, st.LockDone, st.Breakeven)
}
