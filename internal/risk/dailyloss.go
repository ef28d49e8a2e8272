package risk

import "time"

// DailyLossBreaker halts a symbol for good once the day's drawdown from the
// daily starting capital exceeds the limit. Halting is one-way: only an
// explicit restart (ops API or process restart with fresh state) re-arms it.
type DailyLossBreaker struct {
	maxLossPct float64

	baseline    float64
	baselineDay string // YYYY-MM-DD, UTC
	peak        float64
	halted      bool
	haltedAt    time.Time
}

func NewDailyLossBreaker(maxLossPct float64) *DailyLossBreaker {
	return &DailyLossBreaker{maxLossPct: maxLossPct}
}

// Observe feeds a capital reading and returns true on the Active->Halted
// transition.
func (d *DailyLossBreaker) Observe(capital float64, now time.Time) bool {
	if capital <= 0 {
		return false
	}
	day := now.UTC().Format("2006-01-02")
	if d.baselineDay != day && !d.halted {
		d.baseline = capital
		d.baselineDay = day
	}
	if capital > d.peak {
		d.peak = capital
	}
	if d.halted || d.maxLossPct <= 0 || d.baseline <= 0 {
		return false
	}
	loss := (d.baseline - capital) / d.baseline
	if loss <= d.maxLossPct {
		return false
	}
	d.halted = true
	d.haltedAt = now
	return true
}

func (d *DailyLossBreaker) Halted() bool { return d.halted }

func (d *DailyLossBreaker) Baseline() float64 { return d.baseline }

func (d *DailyLossBreaker) Peak() float64 { return d.peak }

// Restore rehydrates the breaker from a persisted checkpoint.
func (d *DailyLossBreaker) Restore(baseline float64, baselineDay string, peak float64, halted bool) {
	d.baseline = baseline
	d.baselineDay = baselineDay
	d.peak = peak
	d.halted = halted
}
