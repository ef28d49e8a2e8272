package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"makerd/internal/gateway/exchange"
	"makerd/internal/logger"
	"makerd/internal/market"
	"makerd/internal/pkg/retry"
	"makerd/internal/quote"
	"makerd/internal/reconcile"
)

// exitTag marks liquidation orders; it never collides with quote layer tags.
const exitTag = "EXIT"

// runCycle is the periodic decision pass: refresh risk posture, compute the
// desired quote, reconcile it against live orders and dispatch the corrective
// actions asynchronously.
func (c *Controller) runCycle(ctx context.Context) {
	if c.state == StateStopping {
		return
	}
	now := c.nowFn()

	if c.state == StateHalted {
		// A halt must leave nothing resting: keep sweeping until the venue
		// confirms the cancel.
		if c.table.Len() > 0 {
			c.requestCancelAll("daily_loss_halt")
		}
		return
	}

	if c.cache.IsStale(now, c.eng.MarketDataStaleTimeout()) {
		if c.state != StatePaused {
			logger.Warnf("[%s] market data stale, pulling quotes", c.cfg.Symbol)
			c.state = StatePaused
		}
		if c.table.Len() > 0 {
			c.requestCancelAll("stale_market")
		}
		c.publishStatus()
		return
	}

	snap := c.cache.Current()

	stop, active := c.riskct.UpdateTrailing(c.pos, snap.Mid, snap.Volatility)
	if active && c.riskct.StopBreached(snap.Mid) && !c.exitPending {
		c.exitPending = true
		logger.Warnf("[%s] protective stop %.4f breached at %.4f, unwinding", c.cfg.Symbol, stop, snap.Mid)
		c.unwindPosition(snap)
		c.publishStatus()
		return
	}

	var desired *quote.Quote
	switch {
	case c.exitPending:
		c.state = StatePaused
	case c.riskct.QuotingAllowed(now):
		c.state = StateRunning
		desired = c.calc.Compute(snap, c.pos, c.riskct.Snapshot(now))
	default:
		c.state = StatePaused
		// A risk pause means no quote may rest; re-sweep until an earlier
		// cancel-all has been confirmed.
		if c.table.Len() > 0 {
			c.requestCancelAll("risk_pause")
		}
	}

	actions := c.table.Reconcile(now, desired, c.reconcileParams())
	if len(actions) > 0 {
		c.dispatch(ctx, actions)
	}
	c.publishStatus()
}

func (c *Controller) reconcileParams() reconcile.Params {
	return reconcile.Params{
		StaleThresholdPct: c.eng.StaleOrderThresholdPct,
		AmendMaxDriftPct:  c.eng.AmendMaxDriftPct,
		MaxAge:            c.eng.StaleOrderMaxAge(),
		MaxOutstanding:    c.eng.MaxOutstandingOrders,
		SupportsAmend:     c.useAmend && c.venue.SupportsAmend(),
	}
}

// dispatch executes one cycle's action batch sequentially on a worker
// goroutine. Results come back through the inbox as actionResult events, so
// the loop itself never blocks on the venue.
func (c *Controller) dispatch(ctx context.Context, actions []reconcile.Action) {
	go func() {
		skipPlacements := false
		for _, act := range actions {
			if ctx.Err() != nil {
				return
			}
			if act.Type == reconcile.ActionPlace && skipPlacements {
				pushEvent(c.inbox, actionResult{
					symbol: c.cfg.Symbol, action: act,
					err: &exchange.VenueError{Class: exchange.ClassInsufficientBalance, Op: "place",
						Err: fmt.Errorf("placement skipped after balance rejection")},
					at: c.nowFn(),
				})
				continue
			}
			order, err := c.execute(ctx, act)
			if err != nil && exchange.Classify(err) == exchange.ClassInsufficientBalance {
				// No point burning rate limit on the rest of this batch.
				skipPlacements = true
			}
			pushEvent(c.inbox, actionResult{
				symbol: c.cfg.Symbol, action: act, order: order, err: err, at: c.nowFn(),
			})
			if act.Type == reconcile.ActionCancel {
				sleepCtx(ctx, c.eng.CancelMinInterval())
			}
		}
	}()
}

func (c *Controller) execute(ctx context.Context, act reconcile.Action) (exchange.TrackedOrder, error) {
	var order exchange.TrackedOrder
	err := c.retryPolicy.Do(ctx, func() error {
		var err error
		switch act.Type {
		case reconcile.ActionPlace:
			spec := exchange.OrderSpec{
				Symbol:    c.cfg.Symbol,
				Side:      act.Layer.Side,
				Price:     act.Layer.Price,
				Qty:       act.Layer.Qty,
				ClientTag: clientTag(act.Layer.Tag),
				LayerTag:  act.Layer.Tag,
				PostOnly:  true,
			}
			order, err = c.venue.PlaceOrder(ctx, spec)
		case reconcile.ActionAmend:
			err = c.venue.AmendOrder(ctx, c.cfg.Symbol, act.OrderID, act.Price, act.Qty)
		case reconcile.ActionCancel:
			err = c.venue.CancelOrder(ctx, c.cfg.Symbol, act.OrderID)
		}
		if err != nil && exchange.Classify(err) != exchange.ClassTransient {
			// Validation, unknown-order and balance errors do not heal with
			// time; surface them to the loop immediately.
			return retry.Permanent(err)
		}
		return err
	})
	return order, err
}

// unwindPosition cancels every resting order and closes the position with an
// aggressive limit order crossing the spread.
func (c *Controller) unwindPosition(snap market.Snapshot) {
	pos := c.pos
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		cancelErr := c.cancelAllOrders(ctx)
		pushEvent(c.inbox, cancelAllResult{symbol: c.cfg.Symbol, reason: "stop_breach", err: cancelErr, at: c.nowFn()})
		if cancelErr != nil {
			logger.Errorf("[%s] cancel-all before unwind failed: %v", c.cfg.Symbol, cancelErr)
		}
		qty := quote.RoundDownTo(math.Abs(pos.Qty), c.cfg.QtyStep)
		if qty <= 0 {
			return
		}
		spec := exchange.OrderSpec{
			Symbol:    c.cfg.Symbol,
			ClientTag: clientTag(exitTag),
			LayerTag:  exitTag,
			Qty:       qty,
		}
		if pos.Qty > 0 {
			spec.Side = exchange.SideSell
			spec.Price = quote.RoundDownTo(snap.BidPrice*0.999, c.cfg.TickSize)
		} else {
			spec.Side = exchange.SideBuy
			spec.Price = quote.RoundUpTo(snap.AskPrice*1.001, c.cfg.TickSize)
		}
		err := c.retryPolicy.Do(ctx, func() error {
			_, err := c.venue.PlaceOrder(ctx, spec)
			if err != nil && exchange.Classify(err) != exchange.ClassTransient {
				return retry.Permanent(err)
			}
			return err
		})
		if err != nil {
			logger.Errorf("[%s] unwind order failed: %v", c.cfg.Symbol, err)
		}
		c.journalOp(ctx, "unwind", fmt.Sprintf("side=%s qty=%.8f price=%.8f", spec.Side, spec.Qty, spec.Price))
	}()
}

func clientTag(layerTag string) string {
	return fmt.Sprintf("%s-%s", layerTag, uuid.NewString()[:18])
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
