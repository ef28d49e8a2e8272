// Package exchange defines the venue-facing port of the quoting engine.
// Request signing, transports and reconnects live behind these interfaces so
// the core loop can be exercised against mocks.
package exchange

import "time"

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type OrderStatus string

const (
	StatusNew             OrderStatus = "new"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCancelled       OrderStatus = "cancelled"
	StatusRejected        OrderStatus = "rejected"
	StatusExpired         OrderStatus = "expired"
)

// Terminal reports whether the status can never change again.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// TrackedOrder is the engine's view of one resting order. Status is
// optimistic between reconciliation points; venue reports win on conflict.
type TrackedOrder struct {
	OrderID   string      `json:"order_id"`
	ClientTag string      `json:"client_tag"`
	Symbol    string      `json:"symbol"`
	Side      Side        `json:"side"`
	Price     float64     `json:"price"`
	Qty       float64     `json:"qty"`
	FilledQty float64     `json:"filled_qty"`
	Status    OrderStatus `json:"status"`
	LayerTag  string      `json:"layer_tag"`
	PlacedAt  time.Time   `json:"placed_at"`
}

// Position is the signed per-symbol inventory with its PnL accumulators.
type Position struct {
	Symbol        string    `json:"symbol"`
	Qty           float64   `json:"qty"` // signed, >0 long
	EntryPrice    float64   `json:"entry_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	RealizedPnL   float64   `json:"realized_pnl"`
	Fees          float64   `json:"fees"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Notional returns the absolute quote-currency value of the position.
func (p Position) Notional(price float64) float64 {
	qty := p.Qty
	if qty < 0 {
		qty = -qty
	}
	return qty * price
}

func (p Position) Flat() bool { return p.Qty == 0 }

func (p Position) Side() Side {
	if p.Qty < 0 {
		return SideSell
	}
	return SideBuy
}

type Balance struct {
	Asset     string    `json:"asset"`
	Total     float64   `json:"total"`
	Available float64   `json:"available"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Instrument carries the venue's rounding rules for one symbol.
type Instrument struct {
	Symbol        string  `json:"symbol"`
	TickSize      float64 `json:"tick_size"`
	QtyStep       float64 `json:"qty_step"`
	MinOrderValue float64 `json:"min_order_value"`
}

// OrderSpec describes one order to place.
type OrderSpec struct {
	Symbol    string
	Side      Side
	Price     float64
	Qty       float64
	ClientTag string
	LayerTag  string
	PostOnly  bool
}
