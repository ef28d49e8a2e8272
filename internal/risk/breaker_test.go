package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"makerd/internal/config"
)

func breakerConfig() config.RiskConfig {
	return config.RiskConfig{
		PriceWindowSeconds:   60,
		PauseThresholdPct:    0.02,
		PauseDurationSeconds: 120,
		CoolDownSeconds:      60,
	}
}

func TestCircuitBreaker_TripOnWindowMove(t *testing.T) {
	b := NewCircuitBreaker(breakerConfig())
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, b.Observe(100, start))
	assert.True(t, b.Allows(start))

	// 3% up inside the window: (103-100)/100 >= 2%
	tripped := b.Observe(103, start.Add(10*time.Second))
	assert.True(t, tripped)
	assert.Equal(t, BreakerTripped, b.State(start.Add(10*time.Second)))
	assert.False(t, b.Allows(start.Add(10*time.Second)))
}

func TestCircuitBreaker_TripFiresOnce(t *testing.T) {
	b := NewCircuitBreaker(breakerConfig())
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.Observe(100, start)
	assert.True(t, b.Observe(103, start.Add(time.Second)))
	// further moves while tripped do not re-fire
	assert.False(t, b.Observe(110, start.Add(2*time.Second)))
	assert.False(t, b.Observe(90, start.Add(3*time.Second)))
}

func TestCircuitBreaker_DownMoveAlsoTrips(t *testing.T) {
	b := NewCircuitBreaker(breakerConfig())
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.Observe(100, start)
	assert.True(t, b.Observe(97, start.Add(time.Second)))
}

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	b := NewCircuitBreaker(breakerConfig())
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.Observe(100, start)
	assert.True(t, b.Observe(103, start.Add(time.Second)))

	afterPause := start.Add(time.Second).Add(121 * time.Second)
	assert.Equal(t, BreakerCooldown, b.State(afterPause))
	assert.False(t, b.Allows(afterPause))

	afterCooldown := afterPause.Add(61 * time.Second)
	assert.Equal(t, BreakerArmed, b.State(afterCooldown))
	assert.True(t, b.Allows(afterCooldown))
}

func TestCircuitBreaker_SlowDriftOutsideWindowDoesNotTrip(t *testing.T) {
	b := NewCircuitBreaker(breakerConfig())
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// 1% steps, each 90s apart, so no 60s window ever holds a 2% move.
	price := 100.0
	for i := 0; i < 10; i++ {
		at := start.Add(time.Duration(i) * 90 * time.Second)
		assert.False(t, b.Observe(price, at), "step %d must not trip", i)
		price *= 1.01
	}
	assert.True(t, b.Allows(start.Add(20*time.Minute)))
}

func TestCircuitBreaker_ZeroThresholdDisabled(t *testing.T) {
	cfg := breakerConfig()
	cfg.PauseThresholdPct = 0
	b := NewCircuitBreaker(cfg)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.Observe(100, start)
	assert.False(t, b.Observe(200, start.Add(time.Second)))
	assert.True(t, b.Allows(start.Add(2*time.Second)))
}
