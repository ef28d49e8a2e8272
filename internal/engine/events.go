package engine

import (
	"time"

	"makerd/internal/gateway/exchange"
	"makerd/internal/reconcile"
)

// actionResult delivers the outcome of an asynchronous venue call back into
// the owning controller's inbox, keeping the event loop single-threaded.
type actionResult struct {
	symbol string
	action reconcile.Action
	order  exchange.TrackedOrder // filled for successful places
	err    error
	at     time.Time
}

func (a actionResult) EventSymbol() string { return a.symbol }

// cancelAllResult reports the outcome of an off-loop venue-wide cancel. The
// order table is only cleared when the loop processes this event, never from
// the goroutine that talked to the venue.
type cancelAllResult struct {
	symbol string
	reason string
	err    error
	at     time.Time
}

func (r cancelAllResult) EventSymbol() string { return r.symbol }

// balanceResult carries a periodic capital reading fetched off-loop.
type balanceResult struct {
	symbol  string
	balance exchange.Balance
	err     error
}

func (b balanceResult) EventSymbol() string { return b.symbol }

// pushEvent delivers into a bounded inbox with drop-oldest overflow, so a
// slow controller lags instead of stalling the demux loop. It reports
// whether the event was dropped.
func pushEvent(inbox chan exchange.Event, evt exchange.Event) bool {
	select {
	case inbox <- evt:
		return false
	default:
	}
	select {
	case <-inbox:
	default:
	}
	select {
	case inbox <- evt:
		return false
	default:
		return true
	}
}
