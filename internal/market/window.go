package market

import (
	"time"

	"github.com/markcheno/go-talib"
)

type candle struct {
	start time.Time
	high  float64
	low   float64
	close float64
}

// candleWindow is a bounded, time-bucketed high/low/close history feeding the
// volatility estimate.
type candleWindow struct {
	bucket  time.Duration
	max     int
	candles []candle
}

func newCandleWindow(bucket time.Duration, max int) *candleWindow {
	if max < 2 {
		max = 2
	}
	return &candleWindow{bucket: bucket, max: max}
}

func (w *candleWindow) add(price float64, at time.Time) {
	start := at.Truncate(w.bucket)
	n := len(w.candles)
	if n > 0 && w.candles[n-1].start.Equal(start) {
		c := &w.candles[n-1]
		if price > c.high {
			c.high = price
		}
		if price < c.low {
			c.low = price
		}
		c.close = price
		return
	}
	w.candles = append(w.candles, candle{start: start, high: price, low: price, close: price})
	if len(w.candles) > w.max {
		w.candles = w.candles[len(w.candles)-w.max:]
	}
}

// atr returns the latest average true range over period buckets, or 0 when
// the window is still too short for the estimate.
func (w *candleWindow) atr(period int) float64 {
	if period <= 0 || len(w.candles) < period+1 {
		return 0
	}
	highs := make([]float64, len(w.candles))
	lows := make([]float64, len(w.candles))
	closes := make([]float64, len(w.candles))
	for i, c := range w.candles {
		highs[i] = c.high
		lows[i] = c.low
		closes[i] = c.close
	}
	series := talib.Atr(highs, lows, closes, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
