// Package risk implements the per-symbol risk controls: circuit breaker,
// daily-loss breaker and the trailing-stop/breakeven ratchet. Each machine is
// independent and owned by a single symbol controller.
package risk

import (
	"time"

	"makerd/internal/config"
)

type BreakerState string

const (
	BreakerArmed    BreakerState = "armed"
	BreakerTripped  BreakerState = "tripped"
	BreakerCooldown BreakerState = "cooldown"
)

type pricePoint struct {
	at    time.Time
	price float64
}

// CircuitBreaker trips when the absolute price change inside a sliding
// window exceeds the configured threshold, suspends quoting for the pause
// duration, then cools down before re-arming.
type CircuitBreaker struct {
	window    time.Duration
	threshold float64
	pause     time.Duration
	cooldown  time.Duration

	state     BreakerState
	stateTill time.Time
	points    []pricePoint
}

func NewCircuitBreaker(cfg config.RiskConfig) *CircuitBreaker {
	return &CircuitBreaker{
		window:    time.Duration(cfg.PriceWindowSeconds) * time.Second,
		threshold: cfg.PauseThresholdPct,
		pause:     time.Duration(cfg.PauseDurationSeconds) * time.Second,
		cooldown:  time.Duration(cfg.CoolDownSeconds) * time.Second,
		state:     BreakerArmed,
	}
}

// Observe records a price and returns true on the Armed->Tripped transition.
// The caller is expected to cancel all resting orders on a trip.
func (b *CircuitBreaker) Observe(price float64, now time.Time) bool {
	if price <= 0 || b.threshold <= 0 {
		return false
	}
	b.advance(now)
	b.points = append(b.points, pricePoint{at: now, price: price})
	b.prune(now)
	if b.state != BreakerArmed {
		return false
	}
	lo, hi := b.points[0].price, b.points[0].price
	for _, p := range b.points[1:] {
		if p.price < lo {
			lo = p.price
		}
		if p.price > hi {
			hi = p.price
		}
	}
	if lo <= 0 || (hi-lo)/lo < b.threshold {
		return false
	}
	b.state = BreakerTripped
	b.stateTill = now.Add(b.pause)
	b.points = b.points[:0]
	return true
}

// advance moves Tripped->Cooldown->Armed as their windows elapse.
func (b *CircuitBreaker) advance(now time.Time) {
	switch b.state {
	case BreakerTripped:
		if !now.Before(b.stateTill) {
			b.state = BreakerCooldown
			b.stateTill = b.stateTill.Add(b.cooldown)
		}
	case BreakerCooldown:
		if !now.Before(b.stateTill) {
			b.state = BreakerArmed
		}
	}
}

func (b *CircuitBreaker) prune(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.points) && b.points[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		b.points = b.points[i:]
	}
}

// Allows reports whether quoting is permitted right now.
func (b *CircuitBreaker) Allows(now time.Time) bool {
	b.advance(now)
	return b.state == BreakerArmed
}

func (b *CircuitBreaker) State(now time.Time) BreakerState {
	b.advance(now)
	return b.state
}
