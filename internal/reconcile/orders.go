// Package reconcile compares the desired quote against live resting orders
// and emits the minimal set of place/amend/cancel actions. Local order state
// is a cache: venue-reported updates always win on conflict.
package reconcile

import (
	"time"

	"makerd/internal/gateway/exchange"
)

// LayerKey identifies one quote layer on one side; it is the matching key
// between desired layers and live orders.
type LayerKey struct {
	Tag  string
	Side exchange.Side
}

// pendingPlaceTTL bounds how long an unacked placement suppresses a repeat
// Place for the same layer.
const pendingPlaceTTL = 10 * time.Second

// Table tracks every non-terminal order for one symbol plus the in-flight
// intents that make reconciliation idempotent between venue acks.
type Table struct {
	orders  map[string]exchange.TrackedOrder
	byLayer map[LayerKey]string

	pendingPlace  map[LayerKey]time.Time
	pendingCancel map[string]bool
	pendingAmend  map[string]float64
}

func NewTable() *Table {
	return &Table{
		orders:        make(map[string]exchange.TrackedOrder),
		byLayer:       make(map[LayerKey]string),
		pendingPlace:  make(map[LayerKey]time.Time),
		pendingCancel: make(map[string]bool),
		pendingAmend:  make(map[string]float64),
	}
}

// Sync replaces the whole table with venue-reported open orders. Used once
// during controller recovery.
func (t *Table) Sync(orders []exchange.TrackedOrder) {
	t.orders = make(map[string]exchange.TrackedOrder, len(orders))
	t.byLayer = make(map[LayerKey]string, len(orders))
	t.pendingPlace = make(map[LayerKey]time.Time)
	t.pendingCancel = make(map[string]bool)
	t.pendingAmend = make(map[string]float64)
	for _, o := range orders {
		if o.Status.Terminal() {
			continue
		}
		t.insert(o)
	}
}

// Apply folds a venue order update into the table. Terminal states evict the
// order and clear any in-flight intent attached to it.
func (t *Table) Apply(o exchange.TrackedOrder) {
	key := LayerKey{Tag: o.LayerTag, Side: o.Side}
	delete(t.pendingPlace, key)
	if o.Status.Terminal() {
		t.remove(o.OrderID, key)
		return
	}
	if target, ok := t.pendingAmend[o.OrderID]; ok && o.Price == target {
		delete(t.pendingAmend, o.OrderID)
	}
	t.insert(o)
}

// MarkPlaced records an optimistic entry right after a successful place call
// so the next cycle does not double-place before the stream ack arrives.
func (t *Table) MarkPlaced(o exchange.TrackedOrder) {
	key := LayerKey{Tag: o.LayerTag, Side: o.Side}
	delete(t.pendingPlace, key)
	if o.Status.Terminal() {
		return
	}
	t.insert(o)
}

// PlaceFailed clears the in-flight marker so the layer is retried by the
// next reconciliation.
func (t *Table) PlaceFailed(key LayerKey) {
	delete(t.pendingPlace, key)
}

// CancelFailed re-allows a cancel for the order unless the venue says the
// order is already gone.
func (t *Table) CancelFailed(orderID string, gone bool) {
	if gone {
		t.Forget(orderID)
		return
	}
	delete(t.pendingCancel, orderID)
}

func (t *Table) AmendFailed(orderID string, gone bool) {
	if gone {
		t.Forget(orderID)
		return
	}
	delete(t.pendingAmend, orderID)
}

// Forget drops an order the venue reports as unknown: treated as resolved.
func (t *Table) Forget(orderID string) {
	if o, ok := t.orders[orderID]; ok {
		t.remove(orderID, LayerKey{Tag: o.LayerTag, Side: o.Side})
	}
}

// Open returns the current non-terminal orders, for checkpointing and the
// ops API.
func (t *Table) Open() []exchange.TrackedOrder {
	out := make([]exchange.TrackedOrder, 0, len(t.orders))
	for _, o := range t.orders {
		out = append(out, o)
	}
	return out
}

func (t *Table) Len() int { return len(t.orders) }

func (t *Table) insert(o exchange.TrackedOrder) {
	t.orders[o.OrderID] = o
	if o.LayerTag != "" {
		t.byLayer[LayerKey{Tag: o.LayerTag, Side: o.Side}] = o.OrderID
	}
}

func (t *Table) remove(orderID string, key LayerKey) {
	delete(t.orders, orderID)
	delete(t.pendingCancel, orderID)
	delete(t.pendingAmend, orderID)
	if t.byLayer[key] == orderID {
		delete(t.byLayer, key)
	}
}
