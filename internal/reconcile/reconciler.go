package reconcile

import (
	"math"
	"time"

	"makerd/internal/quote"
)

type ActionType int

const (
	ActionPlace ActionType = iota
	ActionAmend
	ActionCancel
)

func (a ActionType) String() string {
	switch a {
	case ActionPlace:
		return "place"
	case ActionAmend:
		return "amend"
	case ActionCancel:
		return "cancel"
	}
	return "unknown"
}

type Action struct {
	Type    ActionType
	Layer   quote.Layer // Place
	OrderID string      // Amend / Cancel
	Price   float64     // Amend
	Qty     float64     // Amend
	Reason  string
}

// Params are the global reconciliation knobs from EngineConfig.
type Params struct {
	StaleThresholdPct float64
	AmendMaxDriftPct  float64
	MaxAge            time.Duration
	MaxOutstanding    int
	SupportsAmend     bool
}

// Reconcile computes the corrective actions for the desired quote. desired
// may be nil ("no quote"): then only age-forced cancels are emitted, so a
// paused controller keeps expiring stale orders without quoting.
//
// The pass is idempotent: every emitted action marks an in-flight intent on
// the table, so a second pass over the same inputs emits nothing.
func (t *Table) Reconcile(now time.Time, desired *quote.Quote, p Params) []Action {
	var actions []Action

	// Age-based cancels come first and are unconditional: a forgotten working
	// order must not lock capital no matter how close its price still is.
	for id, o := range t.orders {
		if t.pendingCancel[id] {
			continue
		}
		if p.MaxAge > 0 && !o.PlacedAt.IsZero() && now.Sub(o.PlacedAt) >= p.MaxAge {
			t.pendingCancel[id] = true
			actions = append(actions, Action{Type: ActionCancel, OrderID: id, Reason: "max_age"})
		}
	}

	desiredKeys := make(map[LayerKey]bool)
	if desired != nil {
		outstanding := 0
		for id := range t.orders {
			if !t.pendingCancel[id] {
				outstanding++
			}
		}
		budget := p.MaxOutstanding - outstanding

		// Layers arrive innermost first; the placement budget is consumed in
		// that priority order.
		for _, layer := range desired.Layers {
			key := LayerKey{Tag: layer.Tag, Side: layer.Side}
			desiredKeys[key] = true

			id, live := t.orderFor(key)
			if live {
				if t.pendingCancel[id] {
					// Layer occupied by a dying order: the replacement waits
					// until the cancel is confirmed.
					continue
				}
				o := t.orders[id]
				drift := relDrift(o.Price, layer.Price)
				if drift < p.StaleThresholdPct {
					continue
				}
				if p.SupportsAmend && drift < p.AmendMaxDriftPct {
					if target, ok := t.pendingAmend[id]; !ok || target != layer.Price {
						t.pendingAmend[id] = layer.Price
						actions = append(actions, Action{
							Type: ActionAmend, OrderID: id,
							Price: layer.Price, Qty: layer.Qty,
							Reason: "price_drift",
						})
					}
					continue
				}
				// Cancel now, place on the next cycle once the cancel is
				// confirmed; amend-in-place is not trusted to keep priority.
				t.pendingCancel[id] = true
				actions = append(actions, Action{Type: ActionCancel, OrderID: id, Reason: "price_drift"})
				continue
			}

			if at, ok := t.pendingPlace[key]; ok && now.Sub(at) < pendingPlaceTTL {
				continue
			}
			if budget <= 0 {
				continue
			}
			budget--
			t.pendingPlace[key] = now
			actions = append(actions, Action{Type: ActionPlace, Layer: layer, Reason: "missing_layer"})
		}
	}

	// Live orders for layers the new quote no longer wants.
	if desired != nil {
		for key, id := range t.byLayer {
			if desiredKeys[key] || t.pendingCancel[id] {
				continue
			}
			if _, ok := t.orders[id]; !ok {
				continue
			}
			t.pendingCancel[id] = true
			actions = append(actions, Action{Type: ActionCancel, OrderID: id, Reason: "layer_removed"})
		}
	}

	return actions
}

func (t *Table) orderFor(key LayerKey) (string, bool) {
	id, ok := t.byLayer[key]
	if !ok {
		return "", false
	}
	if _, ok := t.orders[id]; !ok {
		return "", false
	}
	return id, true
}

func relDrift(livePrice, targetPrice float64) float64 {
	if targetPrice <= 0 {
		return math.Inf(1)
	}
	return math.Abs(livePrice-targetPrice) / targetPrice
}
