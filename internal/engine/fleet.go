package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"makerd/internal/config"
	"makerd/internal/gateway/exchange"
	"makerd/internal/gateway/notifier"
	"makerd/internal/logger"
	"makerd/internal/store/gormstore"
	"makerd/internal/store/journal"
)

// Venue combines order entry and streaming; the binance adapter satisfies
// both halves.
type Venue interface {
	exchange.Exchange
	exchange.StreamSource
}

type runningController struct {
	ctrl        *Controller
	inbox       chan exchange.Event
	fingerprint string
}

// Fleet runs one controller per configured symbol and demultiplexes the
// shared venue event stream into per-symbol inboxes. Symbol set changes from
// the hot-reloadable strategy file are applied without restarting untouched
// controllers.
type Fleet struct {
	eng      config.EngineConfig
	ven      config.VenueConfig
	venue    Venue
	store    gormstore.StateStore
	journal  *journal.Journal
	notify   notifier.Notifier
	events  chan exchange.Event
	dropped atomic.Int64

	mu          sync.Mutex
	rootCtx     context.Context
	controllers map[string]*runningController
	marketStop  context.CancelFunc
}

func NewFleet(eng config.EngineConfig, ven config.VenueConfig, venue Venue,
	store gormstore.StateStore, jnl *journal.Journal, notify notifier.Notifier) *Fleet {

	size := eng.InboxSize
	if size <= 0 {
		size = 256
	}
	return &Fleet{
		eng:         eng,
		ven:         ven,
		venue:       venue,
		store:       store,
		journal:     jnl,
		notify:      notify,
		events:      make(chan exchange.Event, size*4),
		controllers: make(map[string]*runningController),
	}
}

// Run starts the fleet with the given symbols and blocks until ctx is
// cancelled. The private stream is subscribed once; the market stream is
// resubscribed whenever Apply changes the symbol set.
func (f *Fleet) Run(ctx context.Context, symbols []config.SymbolConfig) error {
	g, ctx := errgroup.WithContext(ctx)
	f.mu.Lock()
	f.rootCtx = ctx
	f.mu.Unlock()

	if err := f.venue.SubscribePrivate(ctx, f.events); err != nil {
		return fmt.Errorf("private stream: %w", err)
	}

	f.Apply(symbols)

	g.Go(func() error {
		f.demux(ctx)
		return nil
	})

	<-ctx.Done()
	f.stopAll()
	err := g.Wait()
	logger.Infof("fleet stopped (dropped events: %d)", f.dropped.Load())
	return err
}

// demux routes inbound events by symbol; events for unknown symbols are
// counted and dropped.
func (f *Fleet) demux(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-f.events:
			f.mu.Lock()
			rc, ok := f.controllers[evt.EventSymbol()]
			f.mu.Unlock()
			if !ok {
				f.dropped.Add(1)
				continue
			}
			if pushEvent(rc.inbox, evt) {
				f.dropped.Add(1)
			}
		}
	}
}

// Apply reconciles the running set against the desired one: removed symbols
// stop and drain, changed ones (by config fingerprint) restart, new ones
// start. Registered as the SymbolsLoader listener.
func (f *Fleet) Apply(symbols []config.SymbolConfig) {
	ctx := f.runContext()

	desired := make(map[string]config.SymbolConfig, len(symbols))
	for _, sc := range symbols {
		desired[sc.Symbol] = sc
	}

	f.mu.Lock()
	var toStop []*runningController
	for sym, rc := range f.controllers {
		sc, keep := desired[sym]
		if keep && sc.Fingerprint() == rc.fingerprint {
			delete(desired, sym)
			continue
		}
		toStop = append(toStop, rc)
		delete(f.controllers, sym)
		if keep {
			logger.Infof("[%s] config changed, restarting controller", sym)
		} else {
			logger.Infof("[%s] removed from strategy file, stopping controller", sym)
		}
	}
	f.mu.Unlock()

	// Stop outside the lock: drain includes venue round trips.
	for _, rc := range toStop {
		rc.ctrl.Stop()
	}

	f.mu.Lock()
	for sym, sc := range desired {
		size := f.eng.InboxSize
		if size <= 0 {
			size = 256
		}
		inbox := make(chan exchange.Event, size)
		ctrl := NewController(sc, f.eng, f.ven, f.venue, f.store, f.journal, f.notify, inbox)
		f.controllers[sym] = &runningController{ctrl: ctrl, inbox: inbox, fingerprint: sc.Fingerprint()}
		ctrl.Start(ctx)
		logger.Infof("[%s] controller started (fingerprint=%s)", sym, sc.Fingerprint())
	}
	f.mu.Unlock()

	f.resubscribeMarket(ctx)
}

// Restart stops one controller, wipes its checkpoint and starts it fresh.
// Exposed through the ops API.
func (f *Fleet) Restart(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(symbol)
	f.mu.Lock()
	rc, ok := f.controllers[symbol]
	if ok {
		delete(f.controllers, symbol)
	}
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown symbol %s", symbol)
	}
	rc.ctrl.Stop()

	if f.store != nil {
		if err := f.store.DeleteState(ctx, symbol); err != nil {
			return fmt.Errorf("clearing checkpoint: %w", err)
		}
	}

	runCtx := f.runContext()
	size := f.eng.InboxSize
	if size <= 0 {
		size = 256
	}
	inbox := make(chan exchange.Event, size)
	ctrl := NewController(rc.ctrl.cfg, f.eng, f.ven, f.venue, f.store, f.journal, f.notify, inbox)
	f.mu.Lock()
	f.controllers[symbol] = &runningController{ctrl: ctrl, inbox: inbox, fingerprint: rc.fingerprint}
	f.mu.Unlock()
	ctrl.Start(runCtx)
	logger.Infof("[%s] controller restarted with clean state", symbol)
	return nil
}

// Statuses returns the published snapshot of every controller, sorted by
// symbol for stable API output.
func (f *Fleet) Statuses() []Status {
	f.mu.Lock()
	out := make([]Status, 0, len(f.controllers))
	for _, rc := range f.controllers {
		out = append(out, rc.ctrl.Status())
	}
	f.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// runContext is the context Run was started with, Background before Run.
// Apply is also called from the symbols-watcher goroutine, so the read is
// guarded.
func (f *Fleet) runContext() context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rootCtx != nil {
		return f.rootCtx
	}
	return context.Background()
}

func (f *Fleet) resubscribeMarket(ctx context.Context) {
	f.mu.Lock()
	symbols := make([]string, 0, len(f.controllers))
	for sym := range f.controllers {
		symbols = append(symbols, sym)
	}
	if f.marketStop != nil {
		f.marketStop()
		f.marketStop = nil
	}
	if len(symbols) == 0 {
		f.mu.Unlock()
		return
	}
	subCtx, cancel := context.WithCancel(ctx)
	f.marketStop = cancel
	f.mu.Unlock()

	sort.Strings(symbols)
	if err := f.venue.SubscribeMarket(subCtx, symbols, f.events); err != nil {
		logger.Errorf("market stream subscription failed: %v", err)
		_ = f.notify.Notify(notifier.LevelCritical, fmt.Sprintf("market stream subscription failed: %v", err))
	}
}

func (f *Fleet) stopAll() {
	f.mu.Lock()
	if f.marketStop != nil {
		f.marketStop()
		f.marketStop = nil
	}
	ctrls := make([]*runningController, 0, len(f.controllers))
	for _, rc := range f.controllers {
		ctrls = append(ctrls, rc)
	}
	f.controllers = make(map[string]*runningController)
	f.mu.Unlock()

	var wg sync.WaitGroup
	for _, rc := range ctrls {
		wg.Add(1)
		go func(rc *runningController) {
			defer wg.Done()
			rc.ctrl.Stop()
		}(rc)
	}
	wg.Wait()
}
