package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"makerd/internal/gateway/exchange"
	"makerd/internal/quote"
)

func testParams() Params {
	return Params{
		StaleThresholdPct: 0.001,
		AmendMaxDriftPct:  0.005,
		MaxAge:            5 * time.Minute,
		MaxOutstanding:    8,
		SupportsAmend:     false,
	}
}

func twoSidedQuote(bid, ask float64) *quote.Quote {
	return &quote.Quote{
		Symbol: "BTCUSDT",
		Layers: []quote.Layer{
			{Tag: "L0", Side: exchange.SideBuy, Price: bid, Qty: 0.01},
			{Tag: "L0", Side: exchange.SideSell, Price: ask, Qty: 0.01},
		},
	}
}

func liveOrder(id, tag string, side exchange.Side, price float64, placedAt time.Time) exchange.TrackedOrder {
	return exchange.TrackedOrder{
		OrderID:  id,
		Symbol:   "BTCUSDT",
		Side:     side,
		Price:    price,
		Qty:      0.01,
		Status:   exchange.StatusNew,
		LayerTag: tag,
		PlacedAt: placedAt,
	}
}

func TestReconcile_PlacesMissingLayers(t *testing.T) {
	tbl := NewTable()
	now := time.Now()

	actions := tbl.Reconcile(now, twoSidedQuote(99.5, 100.5), testParams())
	assert.Len(t, actions, 2)
	for _, a := range actions {
		assert.Equal(t, ActionPlace, a.Type)
		assert.Equal(t, "missing_layer", a.Reason)
	}
}

func TestReconcile_IdempotentBetweenAcks(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	desired := twoSidedQuote(99.5, 100.5)

	first := tbl.Reconcile(now, desired, testParams())
	assert.Len(t, first, 2)

	// Same inputs before any venue ack: nothing new may be emitted.
	second := tbl.Reconcile(now.Add(time.Second), desired, testParams())
	assert.Empty(t, second)
}

func TestReconcile_PlaceRetriedAfterFailure(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	desired := twoSidedQuote(99.5, 100.5)

	tbl.Reconcile(now, desired, testParams())
	tbl.PlaceFailed(LayerKey{Tag: "L0", Side: exchange.SideBuy})

	actions := tbl.Reconcile(now.Add(time.Second), desired, testParams())
	assert.Len(t, actions, 1)
	assert.Equal(t, ActionPlace, actions[0].Type)
	assert.Equal(t, exchange.SideBuy, actions[0].Layer.Side)
}

func TestReconcile_CloseOrderLeftAlone(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	tbl.Sync([]exchange.TrackedOrder{
		liveOrder("1", "L0", exchange.SideBuy, 99.5, now.Add(-time.Minute)),
		liveOrder("2", "L0", exchange.SideSell, 100.5, now.Add(-time.Minute)),
	})

	actions := tbl.Reconcile(now, twoSidedQuote(99.5, 100.5), testParams())
	assert.Empty(t, actions)
}

func TestReconcile_DriftCancelsWithoutAmend(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	tbl.Sync([]exchange.TrackedOrder{
		liveOrder("1", "L0", exchange.SideBuy, 99.0, now.Add(-time.Minute)),
	})

	// 0.5% drift vs desired 99.5 exceeds the 0.1% threshold.
	desired := &quote.Quote{Symbol: "BTCUSDT", Layers: []quote.Layer{
		{Tag: "L0", Side: exchange.SideBuy, Price: 99.5, Qty: 0.01},
	}}
	actions := tbl.Reconcile(now, desired, testParams())
	assert.Len(t, actions, 1)
	assert.Equal(t, ActionCancel, actions[0].Type)
	assert.Equal(t, "price_drift", actions[0].Reason)
	assert.Equal(t, "1", actions[0].OrderID)

	// The replacement comes only after the cancel confirms.
	assert.Empty(t, tbl.Reconcile(now.Add(time.Second), desired, testParams()))

	cancelled := liveOrder("1", "L0", exchange.SideBuy, 99.0, now.Add(-time.Minute))
	cancelled.Status = exchange.StatusCancelled
	tbl.Apply(cancelled)

	next := tbl.Reconcile(now.Add(2*time.Second), desired, testParams())
	assert.Len(t, next, 1)
	assert.Equal(t, ActionPlace, next[0].Type)
}

func TestReconcile_SmallDriftAmendsWhenSupported(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	tbl.Sync([]exchange.TrackedOrder{
		liveOrder("1", "L0", exchange.SideBuy, 99.3, now.Add(-time.Minute)),
	})
	p := testParams()
	p.SupportsAmend = true

	// 0.2% drift: above the stale threshold, below the amend ceiling.
	desired := &quote.Quote{Symbol: "BTCUSDT", Layers: []quote.Layer{
		{Tag: "L0", Side: exchange.SideBuy, Price: 99.5, Qty: 0.01},
	}}
	actions := tbl.Reconcile(now, desired, p)
	assert.Len(t, actions, 1)
	assert.Equal(t, ActionAmend, actions[0].Type)
	assert.Equal(t, 99.5, actions[0].Price)

	// Idempotent while the amend is in flight.
	assert.Empty(t, tbl.Reconcile(now.Add(time.Second), desired, p))
}

func TestReconcile_LargeDriftCancelsEvenWithAmend(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	tbl.Sync([]exchange.TrackedOrder{
		liveOrder("1", "L0", exchange.SideBuy, 90, now.Add(-time.Minute)),
	})
	p := testParams()
	p.SupportsAmend = true

	desired := &quote.Quote{Symbol: "BTCUSDT", Layers: []quote.Layer{
		{Tag: "L0", Side: exchange.SideBuy, Price: 99.5, Qty: 0.01},
	}}
	actions := tbl.Reconcile(now, desired, p)
	assert.Len(t, actions, 1)
	assert.Equal(t, ActionCancel, actions[0].Type)
}

func TestReconcile_MaxAgeCancelIsUnconditional(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	// Price still perfect, but the order is past max age.
	tbl.Sync([]exchange.TrackedOrder{
		liveOrder("1", "L0", exchange.SideBuy, 99.5, now.Add(-10*time.Minute)),
	})

	actions := tbl.Reconcile(now, twoSidedQuote(99.5, 100.5), testParams())

	var cancels, places int
	for _, a := range actions {
		switch a.Type {
		case ActionCancel:
			cancels++
			assert.Equal(t, "max_age", a.Reason)
		case ActionPlace:
			places++
		}
	}
	assert.Equal(t, 1, cancels)
	// The sell side is missing and may be placed; the bid layer is occupied
	// by the dying order until its cancel confirms.
	assert.Equal(t, 1, places)

	// Cancel emitted exactly once.
	again := tbl.Reconcile(now.Add(time.Second), twoSidedQuote(99.5, 100.5), testParams())
	for _, a := range again {
		assert.NotEqual(t, ActionCancel, a.Type)
	}
}

func TestReconcile_NilQuoteOnlyAgeCancels(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	tbl.Sync([]exchange.TrackedOrder{
		liveOrder("1", "L0", exchange.SideBuy, 99.5, now.Add(-10*time.Minute)),
		liveOrder("2", "L0", exchange.SideSell, 100.5, now.Add(-time.Minute)),
	})

	actions := tbl.Reconcile(now, nil, testParams())
	assert.Len(t, actions, 1)
	assert.Equal(t, ActionCancel, actions[0].Type)
	assert.Equal(t, "max_age", actions[0].Reason)
	assert.Equal(t, "1", actions[0].OrderID)
}

func TestReconcile_RemovedLayersCancelled(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	tbl.Sync([]exchange.TrackedOrder{
		liveOrder("1", "L0", exchange.SideBuy, 99.5, now.Add(-time.Minute)),
		liveOrder("2", "L1", exchange.SideBuy, 99.0, now.Add(-time.Minute)),
	})

	// New quote keeps only L0.
	desired := &quote.Quote{Symbol: "BTCUSDT", Layers: []quote.Layer{
		{Tag: "L0", Side: exchange.SideBuy, Price: 99.5, Qty: 0.01},
	}}
	actions := tbl.Reconcile(now, desired, testParams())
	assert.Len(t, actions, 1)
	assert.Equal(t, ActionCancel, actions[0].Type)
	assert.Equal(t, "layer_removed", actions[0].Reason)
	assert.Equal(t, "2", actions[0].OrderID)
}

func TestReconcile_OutstandingBudgetInnermostFirst(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	p := testParams()
	p.MaxOutstanding = 3

	desired := &quote.Quote{Symbol: "BTCUSDT", Layers: []quote.Layer{
		{Tag: "L0", Side: exchange.SideBuy, Price: 99.5, Qty: 0.01},
		{Tag: "L0", Side: exchange.SideSell, Price: 100.5, Qty: 0.01},
		{Tag: "L1", Side: exchange.SideBuy, Price: 99.0, Qty: 0.02},
		{Tag: "L1", Side: exchange.SideSell, Price: 101.0, Qty: 0.02},
	}}
	actions := tbl.Reconcile(now, desired, p)
	assert.Len(t, actions, 3)
	assert.Equal(t, "L0", actions[0].Layer.Tag)
	assert.Equal(t, "L0", actions[1].Layer.Tag)
	assert.Equal(t, "L1", actions[2].Layer.Tag)
	assert.Equal(t, exchange.SideBuy, actions[2].Layer.Side)
}

func TestTable_UnknownOrderResolvesPending(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	tbl.Sync([]exchange.TrackedOrder{
		liveOrder("1", "L0", exchange.SideBuy, 99.5, now.Add(-10*time.Minute)),
	})
	actions := tbl.Reconcile(now, nil, testParams())
	assert.Len(t, actions, 1)

	// Venue says unknown order: treat the cancel as already done.
	tbl.CancelFailed("1", true)
	assert.Zero(t, tbl.Len())
	assert.Empty(t, tbl.Reconcile(now.Add(time.Second), nil, testParams()))
}

func TestTable_VenueUpdateWins(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	tbl.Sync([]exchange.TrackedOrder{
		liveOrder("1", "L0", exchange.SideBuy, 99.5, now),
	})

	filled := liveOrder("1", "L0", exchange.SideBuy, 99.5, now)
	filled.Status = exchange.StatusFilled
	filled.FilledQty = 0.01
	tbl.Apply(filled)

	assert.Zero(t, tbl.Len())
	actions := tbl.Reconcile(now.Add(time.Second), twoSidedQuote(99.5, 100.5), testParams())
	assert.Len(t, actions, 2)
}
