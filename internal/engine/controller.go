// Package engine contains the per-symbol controller actor and the fleet
// dispatcher that runs one actor per configured symbol.
//
// A controller owns all mutable state for its symbol (snapshot cache, order
// table, position, risk machines) and processes everything on one goroutine;
// venue calls are dispatched asynchronously and their results come back as
// inbox events, so no locking is needed anywhere in the cycle.
package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"makerd/internal/config"
	"makerd/internal/gateway/exchange"
	"makerd/internal/gateway/notifier"
	"makerd/internal/logger"
	"makerd/internal/market"
	"makerd/internal/pkg/retry"
	"makerd/internal/quote"
	"makerd/internal/reconcile"
	"makerd/internal/risk"
	"makerd/internal/store/gormstore"
	"makerd/internal/store/journal"
)

type State string

const (
	StateInitializing State = "initializing"
	StateRunning      State = "running"
	StatePaused       State = "paused"
	StateHalted       State = "halted"
	StateStopping     State = "stopping"
)

// Status is the lock-free view published for the ops API.
type Status struct {
	Symbol     string            `json:"symbol"`
	State      State             `json:"state"`
	Mid        float64           `json:"mid"`
	Position   exchange.Position `json:"position"`
	OpenOrders int               `json:"open_orders"`
	Risk       risk.Snapshot     `json:"risk"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type Controller struct {
	cfg config.SymbolConfig
	eng config.EngineConfig

	venue    exchange.Exchange
	useAmend bool
	store    gormstore.StateStore
	journal  *journal.Journal
	notify   notifier.Notifier

	cache  *market.Cache
	calc   *quote.Calculator
	table  *reconcile.Table
	riskct *risk.Controller

	pos     exchange.Position
	capital float64
	state   State

	inbox    chan exchange.Event
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	nowFn    func() time.Time

	retryPolicy       retry.Policy
	balanceInFlight   bool
	cancelAllInFlight bool
	status            atomic.Value // Status

	// exitTag marks the liquidation order layer so reconciliation leaves it
	// alone.
	exitPending bool
}

func NewController(cfg config.SymbolConfig, eng config.EngineConfig, ven config.VenueConfig, venue exchange.Exchange,
	store gormstore.StateStore, jnl *journal.Journal, notify notifier.Notifier, inbox chan exchange.Event) *Controller {

	c := &Controller{
		cfg:      cfg,
		eng:      eng,
		venue:    venue,
		useAmend: ven.UseAmend,
		store:    store,
		journal:  jnl,
		notify:   notify,
		cache: market.NewCache(cfg.Symbol, cfg.Strategy.SmoothingAlpha, cfg.Strategy.ATRPeriod,
			time.Duration(cfg.Strategy.CandleBucketSeconds)*time.Second),
		calc:   quote.NewCalculator(cfg, eng.MarketDataStaleTimeout()),
		table:  reconcile.NewTable(),
		riskct: risk.NewController(cfg.Risk),
		pos:    exchange.Position{Symbol: cfg.Symbol},
		state:  StateInitializing,
		inbox:  inbox,
		stopCh: make(chan struct{}),
		nowFn:  time.Now,
		retryPolicy: retry.Policy{
			MaxAttempts: eng.RetryMaxAttempts,
			BaseDelay:   eng.RetryBaseDelay(),
		},
	}
	c.publishStatus()
	return c
}

func (c *Controller) Symbol() string { return c.cfg.Symbol }

func (c *Controller) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

// Stop requests a graceful drain: cancel all orders, persist, terminate. It
// blocks until the loop has exited.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Controller) Status() Status {
	if s, ok := c.status.Load().(Status); ok {
		return s
	}
	return Status{Symbol: c.cfg.Symbol, State: StateInitializing}
}

func (c *Controller) run(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[%s] controller panic: %v", c.cfg.Symbol, r)
			_ = c.notify.Notify(notifier.LevelCritical, fmt.Sprintf("%s controller panic: %v", c.cfg.Symbol, r))
		}
	}()

	if err := c.initialize(ctx); err != nil {
		logger.Errorf("[%s] initialization failed: %v", c.cfg.Symbol, err)
		_ = c.notify.Notify(notifier.LevelCritical, fmt.Sprintf("%s failed to start: %v", c.cfg.Symbol, err))
		return
	}

	cycle := time.NewTicker(c.eng.CycleInterval())
	defer cycle.Stop()
	checkpoint := time.NewTicker(c.eng.CheckpointInterval())
	defer checkpoint.Stop()
	balance := time.NewTicker(time.Duration(c.eng.BalanceRefreshSeconds) * time.Second)
	defer balance.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case <-c.stopCh:
			c.shutdown()
			return
		case evt := <-c.inbox:
			c.handleEvent(ctx, evt)
		case <-cycle.C:
			c.runCycle(ctx)
		case <-checkpoint.C:
			c.persist(context.Background())
		case <-balance.C:
			c.requestBalance(ctx)
		}
	}
}

// initialize recovers state after a restart: instrument limits, persisted
// checkpoint, then the venue's view of open orders and position. Orders the
// venue knows but the engine cannot attribute to a layer are cancelled.
func (c *Controller) initialize(ctx context.Context) error {
	if c.cfg.TickSize <= 0 || c.cfg.QtyStep <= 0 || c.cfg.MinOrderValue <= 0 {
		inst, err := c.venue.GetInstrument(ctx, c.cfg.Symbol)
		if err != nil {
			return fmt.Errorf("instrument info: %w", err)
		}
		if c.cfg.TickSize <= 0 {
			c.cfg.TickSize = inst.TickSize
		}
		if c.cfg.QtyStep <= 0 {
			c.cfg.QtyStep = inst.QtyStep
		}
		if c.cfg.MinOrderValue <= 0 {
			c.cfg.MinOrderValue = inst.MinOrderValue
		}
		c.calc = quote.NewCalculator(c.cfg, c.eng.MarketDataStaleTimeout())
	}
	if c.cfg.TickSize <= 0 || c.cfg.QtyStep <= 0 {
		return fmt.Errorf("no tick/step information for %s", c.cfg.Symbol)
	}

	if c.store != nil {
		cp, ok, err := c.store.LoadState(ctx, c.cfg.Symbol)
		if err != nil {
			return fmt.Errorf("loading checkpoint: %w", err)
		}
		if ok {
			c.riskct.Restore(cp.Risk)
			c.pos.RealizedPnL = cp.Position.RealizedPnL
			c.pos.Fees = cp.Position.Fees
			logger.Infof("[%s] checkpoint restored (halted=%v)", c.cfg.Symbol, cp.Risk.Halted)
		}
	}

	open, err := c.venue.OpenOrders(ctx, c.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("open orders: %w", err)
	}
	var owned []exchange.TrackedOrder
	var orphans []exchange.TrackedOrder
	for _, o := range open {
		if o.LayerTag != "" {
			owned = append(owned, o)
		} else {
			orphans = append(orphans, o)
		}
	}
	c.table.Sync(owned)
	for _, o := range orphans {
		o := o
		go func() {
			if err := c.venue.CancelOrder(context.Background(), c.cfg.Symbol, o.OrderID); err != nil {
				logger.Warnf("[%s] orphan cancel %s failed: %v", c.cfg.Symbol, o.OrderID, err)
			}
		}()
	}

	pos, err := c.venue.GetPosition(ctx, c.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("position: %w", err)
	}
	c.pos.Qty = pos.Qty
	c.pos.EntryPrice = pos.EntryPrice
	c.pos.UnrealizedPnL = pos.UnrealizedPnL
	c.pos.UpdatedAt = c.nowFn()

	if bal, err := c.venue.GetBalance(ctx); err == nil {
		c.capital = bal.Total
		c.riskct.ObserveCapital(bal.Total, c.nowFn())
	} else {
		logger.Warnf("[%s] initial balance fetch failed: %v", c.cfg.Symbol, err)
	}

	if c.riskct.Halted() {
		c.state = StateHalted
		logger.Warnf("[%s] restored into halted state; not quoting", c.cfg.Symbol)
	} else {
		c.state = StateRunning
	}
	c.publishStatus()
	logger.Infof("[%s] initialized: %d live orders reclaimed, %d orphans cancelled, pos=%.6f",
		c.cfg.Symbol, len(owned), len(orphans), c.pos.Qty)
	return nil
}

// shutdown runs the Stopping drain: cancel everything, persist, exit.
func (c *Controller) shutdown() {
	c.state = StateStopping
	c.publishStatus()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := c.cancelAllOrders(ctx); err != nil {
		logger.Warnf("[%s] cancel-all during stop failed: %v", c.cfg.Symbol, err)
	} else {
		c.table.Sync(nil)
		c.journalOp(ctx, "cancel_all", "stopping")
	}
	c.persist(ctx)
	logger.Infof("[%s] controller stopped", c.cfg.Symbol)
}

func (c *Controller) persist(ctx context.Context) {
	if c.store == nil {
		return
	}
	cp := gormstore.Checkpoint{
		Symbol:   c.cfg.Symbol,
		Risk:     c.riskct.Persist(),
		Position: c.pos,
		Orders:   c.table.Open(),
	}
	if err := c.store.SaveState(ctx, cp); err != nil {
		logger.Warnf("[%s] checkpoint save failed: %v", c.cfg.Symbol, err)
	}
}

func (c *Controller) publishStatus() {
	snap := c.cache.Current()
	pos := c.pos
	if !pos.Flat() && snap.Mid > 0 && pos.EntryPrice > 0 {
		pos.UnrealizedPnL = (snap.Mid - pos.EntryPrice) * pos.Qty
	}
	c.status.Store(Status{
		Symbol:     c.cfg.Symbol,
		State:      c.state,
		Mid:        snap.Mid,
		Position:   pos,
		OpenOrders: c.table.Len(),
		Risk:       c.riskct.Snapshot(c.nowFn()),
		UpdatedAt:  c.nowFn(),
	})
}

func (c *Controller) requestBalance(ctx context.Context) {
	if c.balanceInFlight {
		return
	}
	c.balanceInFlight = true
	go func() {
		bal, err := c.venue.GetBalance(ctx)
		pushEvent(c.inbox, balanceResult{symbol: c.cfg.Symbol, balance: bal, err: err})
	}()
}

func (c *Controller) handleEvent(ctx context.Context, evt exchange.Event) {
	now := c.nowFn()
	switch e := evt.(type) {
	case exchange.BookEvent:
		c.cache.UpdateBook(e)
		mid := c.cache.Current().Mid
		if c.riskct.ObservePrice(mid, now) {
			c.onBreakerTrip(ctx, mid)
		}
	case exchange.TradeEvent:
		c.cache.UpdateTrade(e)
		if c.riskct.ObservePrice(e.Price, now) {
			c.onBreakerTrip(ctx, e.Price)
		}
	case exchange.OrderEvent:
		c.table.Apply(e.Order)
	case exchange.FillEvent:
		c.applyFill(ctx, e)
	case exchange.PositionEvent:
		// Venue-reported position is authoritative; local accumulators for
		// realized PnL and fees are kept.
		c.pos.Qty = e.Position.Qty
		c.pos.EntryPrice = e.Position.EntryPrice
		c.pos.UnrealizedPnL = e.Position.UnrealizedPnL
		c.pos.UpdatedAt = e.At
	case actionResult:
		c.handleActionResult(e)
	case cancelAllResult:
		c.cancelAllInFlight = false
		if e.err != nil {
			// Orders keep resting; the next cycle retriggers the sweep.
			logger.Warnf("[%s] cancel-all (%s) failed: %v", c.cfg.Symbol, e.reason, e.err)
			break
		}
		c.table.Sync(nil)
		c.journalOp(ctx, "cancel_all", e.reason)
	case balanceResult:
		c.balanceInFlight = false
		if e.err != nil {
			logger.Warnf("[%s] balance refresh failed: %v", c.cfg.Symbol, e.err)
			break
		}
		c.capital = e.balance.Total
		if c.riskct.ObserveCapital(e.balance.Total, now) {
			c.onDailyLossHalt(ctx)
		}
	}
	c.publishStatus()
}

func (c *Controller) applyFill(ctx context.Context, e exchange.FillEvent) {
	signed := e.Qty
	if e.Side == exchange.SideSell {
		signed = -e.Qty
	}
	prev := c.pos.Qty
	switch {
	case prev == 0 || sameSign(prev, signed):
		total := math.Abs(prev) + e.Qty
		if total > 0 {
			c.pos.EntryPrice = (c.pos.EntryPrice*math.Abs(prev) + e.Price*e.Qty) / total
		}
		c.pos.Qty = prev + signed
	default:
		closed := math.Min(math.Abs(prev), e.Qty)
		direction := 1.0
		if prev < 0 {
			direction = -1.0
		}
		c.pos.RealizedPnL += closed * (e.Price - c.pos.EntryPrice) * direction
		c.pos.Qty = prev + signed
		if sameSign(c.pos.Qty, signed) && c.pos.Qty != 0 {
			// Flipped through flat: remainder opens at the fill price.
			c.pos.EntryPrice = e.Price
		}
		if c.pos.Qty == 0 {
			c.pos.EntryPrice = 0
		}
	}
	c.pos.Fees += e.Fee
	c.pos.UpdatedAt = e.At
	if c.exitPending && c.pos.Flat() {
		c.exitPending = false
	}

	if c.journal != nil {
		rec := journal.FillRecord{
			Symbol: e.Symbol, OrderID: e.OrderID, Side: string(e.Side),
			Price: e.Price, Qty: e.Qty, Fee: e.Fee, At: e.At,
		}
		if err := c.journal.AppendFill(ctx, rec); err != nil {
			logger.Warnf("[%s] fill journal write failed: %v", c.cfg.Symbol, err)
		}
	}
}

func (c *Controller) handleActionResult(e actionResult) {
	act := e.action
	if e.err == nil {
		if act.Type == reconcile.ActionPlace {
			c.table.MarkPlaced(e.order)
		}
		return
	}
	class := exchange.Classify(e.err)
	switch act.Type {
	case reconcile.ActionPlace:
		c.table.PlaceFailed(reconcile.LayerKey{Tag: act.Layer.Tag, Side: act.Layer.Side})
		if class == exchange.ClassInsufficientBalance {
			logger.Warnf("[%s] placement skipped: insufficient balance", c.cfg.Symbol)
			_ = c.notify.Notify(notifier.LevelWarning, fmt.Sprintf("%s: insufficient balance, skipping placements", c.cfg.Symbol))
		} else if class != exchange.ClassValidation {
			logger.Warnf("[%s] place %s failed: %v", c.cfg.Symbol, act.Layer.Tag, e.err)
		}
	case reconcile.ActionCancel:
		c.table.CancelFailed(act.OrderID, class == exchange.ClassUnknownOrder)
		if class != exchange.ClassUnknownOrder {
			logger.Warnf("[%s] cancel %s failed: %v", c.cfg.Symbol, act.OrderID, e.err)
		}
	case reconcile.ActionAmend:
		c.table.AmendFailed(act.OrderID, class == exchange.ClassUnknownOrder)
		if class != exchange.ClassUnknownOrder {
			logger.Warnf("[%s] amend %s failed: %v", c.cfg.Symbol, act.OrderID, e.err)
		}
	}
}

func (c *Controller) onBreakerTrip(ctx context.Context, price float64) {
	logger.Warnf("[%s] circuit breaker tripped at %.4f", c.cfg.Symbol, price)
	_ = c.notify.Notify(notifier.LevelWarning, fmt.Sprintf("%s circuit breaker tripped at %.4f, quoting paused", c.cfg.Symbol, price))
	c.journalOp(ctx, "trip", fmt.Sprintf("price=%.8f", price))
	c.state = StatePaused
	c.requestCancelAll("breaker_trip")
}

func (c *Controller) onDailyLossHalt(ctx context.Context) {
	logger.Errorf("[%s] daily loss limit breached, halting", c.cfg.Symbol)
	_ = c.notify.Notify(notifier.LevelCritical, fmt.Sprintf("%s halted: daily loss limit breached (capital %.2f)", c.cfg.Symbol, c.capital))
	c.journalOp(ctx, "halt", fmt.Sprintf("capital=%.2f", c.capital))
	c.state = StateHalted
	c.requestCancelAll("daily_loss_halt")
	c.persist(context.Background())
}

// requestCancelAll dispatches a venue-wide cancel off-loop. Only the venue
// call happens on the goroutine; the table is cleared when the loop processes
// the cancelAllResult event, the same discipline dispatch follows.
func (c *Controller) requestCancelAll(reason string) {
	if c.cancelAllInFlight {
		return
	}
	c.cancelAllInFlight = true
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := c.cancelAllOrders(ctx)
		pushEvent(c.inbox, cancelAllResult{symbol: c.cfg.Symbol, reason: reason, err: err, at: c.nowFn()})
	}()
}

func (c *Controller) cancelAllOrders(ctx context.Context) error {
	return c.retryPolicy.Do(ctx, func() error {
		err := c.venue.CancelAllOrders(ctx, c.cfg.Symbol)
		if err != nil && exchange.Classify(err) != exchange.ClassTransient {
			return retry.Permanent(err)
		}
		return err
	})
}

func (c *Controller) journalOp(ctx context.Context, kind, detail string) {
	if c.journal == nil {
		return
	}
	rec := journal.OperationRecord{Symbol: c.cfg.Symbol, Kind: kind, Detail: detail}
	if err := c.journal.AppendOperation(ctx, rec); err != nil {
		logger.Debugf("[%s] journal op write failed: %v", c.cfg.Symbol, err)
	}
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
