package exchange

import "time"

// Event is anything delivered on the shared inbound stream. The dispatcher
// demultiplexes by EventSymbol into the owning controller's inbox.
type Event interface {
	EventSymbol() string
}

type BookEvent struct {
	Symbol   string
	BidPrice float64
	BidQty   float64
	AskPrice float64
	AskQty   float64
	At       time.Time
}

func (e BookEvent) EventSymbol() string { return e.Symbol }

type TradeEvent struct {
	Symbol string
	Price  float64
	Qty    float64
	At     time.Time
}

func (e TradeEvent) EventSymbol() string { return e.Symbol }

// OrderEvent carries a venue-reported order state change.
type OrderEvent struct {
	Order TrackedOrder
	At    time.Time
}

func (e OrderEvent) EventSymbol() string { return e.Order.Symbol }

// FillEvent is one execution against a resting order.
type FillEvent struct {
	Symbol  string
	OrderID string
	Side    Side
	Price   float64
	Qty     float64
	Fee     float64
	At      time.Time
}

func (e FillEvent) EventSymbol() string { return e.Symbol }

type PositionEvent struct {
	Position Position
	At       time.Time
}

func (e PositionEvent) EventSymbol() string { return e.Position.Symbol }
