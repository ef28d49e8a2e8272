// Package market holds the per-symbol market snapshot cache: best bid/ask,
// smoothed mid and a rolling candle window for the volatility estimate.
// A cache is owned by exactly one symbol controller, so it needs no locking.
package market

import (
	"time"

	"makerd/internal/gateway/exchange"
)

// Snapshot is a read-only copy of the cache state handed to other components.
type Snapshot struct {
	Symbol      string
	BidPrice    float64
	BidQty      float64
	AskPrice    float64
	AskQty      float64
	Mid         float64
	SmoothedMid float64
	Volatility  float64 // ATR in quote units, 0 while the window warms up
	UpdatedAt   time.Time
}

type Cache struct {
	symbol    string
	alpha     float64
	atrPeriod int
	window    *candleWindow

	seeded bool
	snap   Snapshot
}

func NewCache(symbol string, alpha float64, atrPeriod int, bucket time.Duration) *Cache {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.2
	}
	// Keep enough buckets for the ATR plus slack for partial buckets.
	max := atrPeriod*3 + 2
	return &Cache{
		symbol:    symbol,
		alpha:     alpha,
		atrPeriod: atrPeriod,
		window:    newCandleWindow(bucket, max),
		snap:      Snapshot{Symbol: symbol},
	}
}

// UpdateBook recomputes the mid from a best bid/ask change and reports
// whether the top of book actually moved.
func (c *Cache) UpdateBook(evt exchange.BookEvent) bool {
	if evt.BidPrice <= 0 || evt.AskPrice <= 0 || evt.AskPrice < evt.BidPrice {
		return false
	}
	changed := evt.BidPrice != c.snap.BidPrice || evt.AskPrice != c.snap.AskPrice
	mid := (evt.BidPrice + evt.AskPrice) / 2

	c.snap.BidPrice = evt.BidPrice
	c.snap.BidQty = evt.BidQty
	c.snap.AskPrice = evt.AskPrice
	c.snap.AskQty = evt.AskQty
	c.snap.Mid = mid
	if !c.seeded {
		c.snap.SmoothedMid = mid
		c.seeded = true
	} else {
		c.snap.SmoothedMid = c.alpha*mid + (1-c.alpha)*c.snap.SmoothedMid
	}
	c.snap.UpdatedAt = evt.At

	c.window.add(mid, evt.At)
	c.snap.Volatility = c.window.atr(c.atrPeriod)
	return changed
}

// UpdateTrade folds a print into the candle window without touching the
// book-derived fields.
func (c *Cache) UpdateTrade(evt exchange.TradeEvent) {
	if evt.Price <= 0 {
		return
	}
	c.window.add(evt.Price, evt.At)
	c.snap.Volatility = c.window.atr(c.atrPeriod)
}

func (c *Cache) Current() Snapshot { return c.snap }

// IsStale reports whether the snapshot is too old to quote from. Callers
// must treat stale as "no decision", not as zero volatility.
func (c *Cache) IsStale(now time.Time, maxAge time.Duration) bool {
	if c.snap.UpdatedAt.IsZero() {
		return true
	}
	return now.Sub(c.snap.UpdatedAt) > maxAge
}
