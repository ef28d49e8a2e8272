// Package quote turns a market snapshot plus strategy parameters into the
// target two-sided quote. Compute is pure: it never talks to the venue and
// aborts wholesale on any degenerate intermediate value.
package quote

import (
	"fmt"
	"math"
	"time"

	"makerd/internal/config"
	"makerd/internal/gateway/exchange"
	"makerd/internal/market"
	"makerd/internal/risk"
)

// Layer is one price/quantity tier of the quote. Tag is stable across cycles
// so the reconciler can match live orders to layers.
type Layer struct {
	Tag   string
	Side  exchange.Side
	Price float64
	Qty   float64
}

func (l Layer) Notional() float64 { return l.Price * l.Qty }

type Quote struct {
	Symbol     string
	Layers     []Layer
	ComputedAt time.Time
}

// Calculator carries the per-symbol parameters; one instance per controller.
type Calculator struct {
	cfg        config.SymbolConfig
	staleAfter time.Duration
	nowFn      func() time.Time
}

func NewCalculator(cfg config.SymbolConfig, staleAfter time.Duration) *Calculator {
	return &Calculator{cfg: cfg, staleAfter: staleAfter, nowFn: time.Now}
}

func LayerTag(i int) string { return fmt.Sprintf("L%d", i) }

// Compute returns the target quote, or nil ("no quote") when the snapshot is
// stale, risk vetoes quoting, or any intermediate value degenerates.
func (c *Calculator) Compute(snap market.Snapshot, pos exchange.Position, rs risk.Snapshot) *Quote {
	now := c.nowFn()
	if !rs.QuotingAllowed() {
		return nil
	}
	if snap.UpdatedAt.IsZero() || now.Sub(snap.UpdatedAt) > c.staleAfter {
		return nil
	}
	mid := snap.SmoothedMid
	if !positive(mid) {
		return nil
	}
	st := c.cfg.Strategy

	spreadPct := st.BaseSpreadPct
	if st.DynamicSpread {
		if !positive(snap.Volatility) {
			// Window still warming up: fall back to the static spread.
			spreadPct = st.BaseSpreadPct
		} else {
			spreadPct = clamp(st.BaseSpreadPct*snap.Volatility/st.ReferenceVolatility, st.MinSpreadPct, st.MaxSpreadPct)
		}
	}
	if !positive(spreadPct) {
		return nil
	}

	// Inventory skew shifts the effective mid, not the spread: a long book
	// pushes both sides down so sells get hit first and inventory drains.
	skew := SkewFactor(pos.Qty*mid, c.cfg.MaxInventoryNotional*st.SkewRatio, st.SkewIntensity)
	skewedMid := mid * (1 + skew)
	if !positive(skewedMid) {
		return nil
	}

	bid := skewedMid * (1 - spreadPct/2)
	ask := skewedMid * (1 + spreadPct/2)

	// Enforce the minimum profit spread symmetrically around the raw mid.
	if minWidth := mid * st.MinProfitSpreadPct; ask-bid < minWidth {
		deficit := minWidth - (ask - bid)
		bid -= deficit / 2
		ask += deficit / 2
	}
	if !positive(bid) || !positive(ask) || bid >= ask {
		return nil
	}

	capUse := inventoryUse(pos.Qty*mid, c.cfg.MaxInventoryNotional)
	longInv := pos.Qty > 0

	layers := make([]Layer, 0, 2*len(st.Layers))
	for i, lc := range st.Layers {
		lb := RoundDownTo(bid*(1-lc.OffsetPct), c.cfg.TickSize)
		la := RoundUpTo(ask*(1+lc.OffsetPct), c.cfg.TickSize)
		if !positive(lb) || !positive(la) || lb >= la {
			return nil
		}
		bidQty := st.BaseOrderQty * lc.SizeMultiplier
		askQty := st.BaseOrderQty * lc.SizeMultiplier
		// Shrink the side that would grow inventory as the cap approaches.
		if longInv {
			bidQty *= 1 - capUse
		} else if pos.Qty < 0 {
			askQty *= 1 - capUse
		}
		bidQty = RoundDownTo(bidQty, c.cfg.QtyStep)
		askQty = RoundDownTo(askQty, c.cfg.QtyStep)
		if math.IsNaN(bidQty) || math.IsNaN(askQty) {
			return nil
		}
		if bidQty > 0 && lb*bidQty >= c.cfg.MinOrderValue {
			layers = append(layers, Layer{Tag: LayerTag(i), Side: exchange.SideBuy, Price: lb, Qty: bidQty})
		}
		if askQty > 0 && la*askQty >= c.cfg.MinOrderValue {
			layers = append(layers, Layer{Tag: LayerTag(i), Side: exchange.SideSell, Price: la, Qty: askQty})
		}
	}
	if len(layers) == 0 {
		return nil
	}
	return &Quote{Symbol: c.cfg.Symbol, Layers: layers, ComputedAt: now}
}

// SkewFactor normalizes inventory notional against the skew capacity and
// clamps to ±1 before applying the intensity. Long inventory produces a
// negative factor (mid shifts down).
func SkewFactor(inventoryNotional, capacityNotional, intensity float64) float64 {
	if capacityNotional <= 0 || intensity <= 0 {
		return 0
	}
	ratio := clamp(inventoryNotional/capacityNotional, -1, 1)
	return -ratio * intensity
}

func inventoryUse(inventoryNotional, maxNotional float64) float64 {
	if maxNotional <= 0 {
		return 0
	}
	use := math.Abs(inventoryNotional) / maxNotional
	return clamp(use, 0, 1)
}

func positive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
