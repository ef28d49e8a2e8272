package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"makerd/internal/gateway/exchange"
)

func bookEvent(bid, ask float64, at time.Time) exchange.BookEvent {
	return exchange.BookEvent{
		Symbol:   "BTCUSDT",
		BidPrice: bid,
		BidQty:   1,
		AskPrice: ask,
		AskQty:   1,
		At:       at,
	}
}

func TestCache_UpdateBook(t *testing.T) {
	c := NewCache("BTCUSDT", 0.5, 14, time.Minute)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	changed := c.UpdateBook(bookEvent(99, 101, at))
	assert.True(t, changed)
	snap := c.Current()
	assert.Equal(t, 100.0, snap.Mid)
	// First update seeds the EWMA directly.
	assert.Equal(t, 100.0, snap.SmoothedMid)

	changed = c.UpdateBook(bookEvent(101, 103, at.Add(time.Second)))
	assert.True(t, changed)
	snap = c.Current()
	assert.Equal(t, 102.0, snap.Mid)
	// alpha 0.5: 0.5*102 + 0.5*100
	assert.Equal(t, 101.0, snap.SmoothedMid)

	// Same top of book: no change reported.
	changed = c.UpdateBook(bookEvent(101, 103, at.Add(2*time.Second)))
	assert.False(t, changed)
}

func TestCache_RejectsInvalidBook(t *testing.T) {
	c := NewCache("BTCUSDT", 0.5, 14, time.Minute)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.UpdateBook(bookEvent(99, 101, at))

	t.Run("crossed book", func(t *testing.T) {
		assert.False(t, c.UpdateBook(bookEvent(102, 101, at.Add(time.Second))))
		assert.Equal(t, 100.0, c.Current().Mid)
	})
	t.Run("zero bid", func(t *testing.T) {
		assert.False(t, c.UpdateBook(bookEvent(0, 101, at.Add(time.Second))))
	})
	t.Run("negative ask", func(t *testing.T) {
		assert.False(t, c.UpdateBook(bookEvent(99, -1, at.Add(time.Second))))
	})
}

func TestCache_Staleness(t *testing.T) {
	c := NewCache("BTCUSDT", 0.2, 14, time.Minute)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, c.IsStale(at, 10*time.Second), "empty cache is stale")

	c.UpdateBook(bookEvent(99, 101, at))
	assert.False(t, c.IsStale(at.Add(5*time.Second), 10*time.Second))
	assert.True(t, c.IsStale(at.Add(11*time.Second), 10*time.Second))
}

func TestCache_VolatilityWarmsUp(t *testing.T) {
	c := NewCache("BTCUSDT", 0.2, 3, time.Minute)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Fewer buckets than period+1: no estimate yet.
	for i := 0; i < 3; i++ {
		c.UpdateBook(bookEvent(99, 101, at.Add(time.Duration(i)*time.Minute)))
	}
	assert.Zero(t, c.Current().Volatility)

	// Enough distinct minute buckets with real movement.
	prices := []float64{100, 104, 98, 105, 101, 107}
	for i, p := range prices {
		c.UpdateBook(bookEvent(p-1, p+1, at.Add(time.Duration(i+3)*time.Minute)))
	}
	assert.Positive(t, c.Current().Volatility)
}

func TestCache_TradeFoldsIntoWindowOnly(t *testing.T) {
	c := NewCache("BTCUSDT", 0.2, 14, time.Minute)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.UpdateBook(bookEvent(99, 101, at))

	c.UpdateTrade(exchange.TradeEvent{Symbol: "BTCUSDT", Price: 150, Qty: 1, At: at.Add(time.Second)})
	snap := c.Current()
	assert.Equal(t, 100.0, snap.Mid, "trades must not move the book mid")
	assert.Equal(t, 100.0, snap.SmoothedMid)
}
