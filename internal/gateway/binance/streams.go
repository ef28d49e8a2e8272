package binance

import (
	"context"
	"strconv"
	"strings"
	"time"

	"makerd/internal/gateway/exchange"
	"makerd/internal/logger"

	"github.com/adshao/go-binance/v2/futures"
)

const (
	resubscribeDelay  = 3 * time.Second
	listenKeyRefresh  = 25 * time.Minute
	listenKeyRecreate = 3
)

// SubscribeMarket streams best bid/ask and aggregated trades for every
// configured symbol into the shared inbound channel. Each stream is owned by
// a supervisor goroutine that resubscribes on disconnect until ctx ends.
func (a *Adapter) SubscribeMarket(ctx context.Context, symbols []string, out chan<- exchange.Event) error {
	upper := make([]string, 0, len(symbols))
	for _, s := range symbols {
		upper = append(upper, strings.ToUpper(s))
	}

	go a.supervise(ctx, "bookTicker", func() (chan struct{}, chan struct{}, error) {
		return futures.WsCombinedBookTickerServe(upper, func(evt *futures.WsBookTickerEvent) {
			if evt == nil {
				return
			}
			deliver(ctx, out, exchange.BookEvent{
				Symbol:   evt.Symbol,
				BidPrice: parseFloat(evt.BestBidPrice),
				BidQty:   parseFloat(evt.BestBidQty),
				AskPrice: parseFloat(evt.BestAskPrice),
				AskQty:   parseFloat(evt.BestAskQty),
				At:       time.Now(),
			})
		}, a.streamErrHandler("bookTicker"))
	})

	go a.supervise(ctx, "aggTrade", func() (chan struct{}, chan struct{}, error) {
		return futures.WsCombinedAggTradeServe(upper, func(evt *futures.WsAggTradeEvent) {
			if evt == nil {
				return
			}
			deliver(ctx, out, exchange.TradeEvent{
				Symbol: evt.Symbol,
				Price:  parseFloat(evt.Price),
				Qty:    parseFloat(evt.Quantity),
				At:     time.UnixMilli(evt.Time),
			})
		}, a.streamErrHandler("aggTrade"))
	})

	return nil
}

// SubscribePrivate streams order, fill and position updates from the user
// data stream. The listen key is refreshed on a timer and recreated when the
// stream drops.
func (a *Adapter) SubscribePrivate(ctx context.Context, out chan<- exchange.Event) error {
	listenKey, err := a.client.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return wrap("user_stream", err)
	}

	go a.keepAlive(ctx, listenKey)
	go a.supervise(ctx, "userData", func() (chan struct{}, chan struct{}, error) {
		return futures.WsUserDataServe(listenKey, func(evt *futures.WsUserDataEvent) {
			a.handleUserEvent(ctx, evt, out)
		}, a.streamErrHandler("userData"))
	})
	return nil
}

func (a *Adapter) handleUserEvent(ctx context.Context, evt *futures.WsUserDataEvent, out chan<- exchange.Event) {
	if evt == nil {
		return
	}
	switch evt.Event {
	case futures.UserDataEventTypeOrderTradeUpdate:
		u := evt.OrderTradeUpdate
		order := exchange.TrackedOrder{
			OrderID:   formatInt(u.ID),
			ClientTag: u.ClientOrderID,
			Symbol:    u.Symbol,
			Side:      fromSide(u.Side),
			Price:     parseFloat(u.OriginalPrice),
			Qty:       parseFloat(u.OriginalQty),
			FilledQty: parseFloat(u.AccumulatedFilledQty),
			Status:    fromStatus(u.Status),
			LayerTag:  layerTagFromClientTag(u.ClientOrderID),
		}
		deliver(ctx, out, exchange.OrderEvent{Order: order, At: time.UnixMilli(u.TradeTime)})
		if lastQty := parseFloat(u.LastFilledQty); lastQty > 0 {
			deliver(ctx, out, exchange.FillEvent{
				Symbol:  u.Symbol,
				OrderID: formatInt(u.ID),
				Side:    fromSide(u.Side),
				Price:   parseFloat(u.LastFilledPrice),
				Qty:     lastQty,
				Fee:     parseFloat(u.Commission),
				At:      time.UnixMilli(u.TradeTime),
			})
		}
	case futures.UserDataEventTypeAccountUpdate:
		for _, p := range evt.AccountUpdate.Positions {
			deliver(ctx, out, exchange.PositionEvent{
				Position: exchange.Position{
					Symbol:        p.Symbol,
					Qty:           parseFloat(p.Amount),
					EntryPrice:    parseFloat(p.EntryPrice),
					UnrealizedPnL: parseFloat(p.UnrealizedPnL),
					UpdatedAt:     time.UnixMilli(evt.Time),
				},
				At: time.UnixMilli(evt.Time),
			})
		}
	}
}

// supervise keeps one websocket subscription alive for the lifetime of ctx.
func (a *Adapter) supervise(ctx context.Context, name string, subscribe func() (chan struct{}, chan struct{}, error)) {
	for {
		doneC, stopC, err := subscribe()
		if err != nil {
			logger.Warnf("binance %s subscribe failed: %v", name, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(resubscribeDelay):
				continue
			}
		}
		select {
		case <-ctx.Done():
			close(stopC)
			return
		case <-doneC:
			logger.Warnf("binance %s stream dropped, resubscribing", name)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

func (a *Adapter) keepAlive(ctx context.Context, listenKey string) {
	ticker := time.NewTicker(listenKeyRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			failures := 0
			for failures < listenKeyRecreate {
				err := a.client.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx)
				if err == nil {
					break
				}
				failures++
				logger.Warnf("binance listen key keepalive failed (%d): %v", failures, err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(resubscribeDelay):
				}
			}
		}
	}
}

func (a *Adapter) streamErrHandler(name string) futures.ErrHandler {
	return func(err error) {
		logger.Warnf("binance %s stream error: %v", name, err)
	}
}

func deliver(ctx context.Context, out chan<- exchange.Event, evt exchange.Event) {
	select {
	case out <- evt:
	case <-ctx.Done():
	}
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
