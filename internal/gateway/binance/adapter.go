// Package binance implements the exchange port for Binance USD-M futures on
// top of the adshao/go-binance SDK.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"makerd/internal/config"
	"makerd/internal/gateway/exchange"

	"github.com/adshao/go-binance/v2/futures"
)

type Adapter struct {
	cfg    config.VenueConfig
	client *futures.Client

	instMu      sync.Mutex
	instruments map[string]exchange.Instrument
}

func New(cfg config.VenueConfig) (*Adapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.APISecret) == "" {
		return nil, fmt.Errorf("binance: api credentials are required")
	}
	if cfg.Testnet {
		futures.UseTestnet = true
	}
	client := futures.NewClient(cfg.APIKey, cfg.APISecret)
	if url := strings.TrimSpace(cfg.RESTBaseURL); url != "" {
		client.BaseURL = url
	}
	client.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout()}
	return &Adapter{
		cfg:         cfg,
		client:      client,
		instruments: make(map[string]exchange.Instrument),
	}, nil
}

func (a *Adapter) Name() string { return "binance-futures" }

// SupportsAmend is true when configured: Binance futures order modification
// re-queues the order, so price-priority-sensitive setups keep it off.
func (a *Adapter) SupportsAmend() bool { return a.cfg.UseAmend }

func (a *Adapter) PlaceOrder(ctx context.Context, spec exchange.OrderSpec) (exchange.TrackedOrder, error) {
	svc := a.client.NewCreateOrderService().
		Symbol(spec.Symbol).
		Side(toSide(spec.Side)).
		Type(futures.OrderTypeLimit).
		Quantity(formatFloat(spec.Qty)).
		Price(formatFloat(spec.Price)).
		NewClientOrderID(spec.ClientTag)
	if spec.PostOnly {
		svc = svc.TimeInForce(futures.TimeInForceTypeGTX)
	} else {
		svc = svc.TimeInForce(futures.TimeInForceTypeGTC)
	}
	res, err := svc.Do(ctx)
	if err != nil {
		return exchange.TrackedOrder{}, wrap("place", err)
	}
	return exchange.TrackedOrder{
		OrderID:   strconv.FormatInt(res.OrderID, 10),
		ClientTag: spec.ClientTag,
		Symbol:    spec.Symbol,
		Side:      spec.Side,
		Price:     spec.Price,
		Qty:       spec.Qty,
		Status:    fromStatus(res.Status),
		LayerTag:  spec.LayerTag,
		PlacedAt:  time.Now(),
	}, nil
}

func (a *Adapter) AmendOrder(ctx context.Context, symbol, orderID string, price, qty float64) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("binance: bad order id %q: %w", orderID, err)
	}
	open, err := a.client.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return wrap("amend", err)
	}
	_, err = a.client.NewModifyOrderService().
		Symbol(symbol).
		OrderID(id).
		Side(open.Side).
		Quantity(formatFloat(qty)).
		Price(formatFloat(price)).
		Do(ctx)
	return wrap("amend", err)
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("binance: bad order id %q: %w", orderID, err)
	}
	_, err = a.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	return wrap("cancel", err)
}

func (a *Adapter) CancelAllOrders(ctx context.Context, symbol string) error {
	return wrap("cancel_all", a.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx))
}

func (a *Adapter) OpenOrders(ctx context.Context, symbol string) ([]exchange.TrackedOrder, error) {
	orders, err := a.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, wrap("open_orders", err)
	}
	out := make([]exchange.TrackedOrder, 0, len(orders))
	for _, o := range orders {
		if o == nil {
			continue
		}
		out = append(out, fromOrder(o))
	}
	return out, nil
}

func (a *Adapter) GetPosition(ctx context.Context, symbol string) (exchange.Position, error) {
	risks, err := a.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return exchange.Position{}, wrap("position", err)
	}
	pos := exchange.Position{Symbol: symbol, UpdatedAt: time.Now()}
	for _, r := range risks {
		if r == nil || r.Symbol != symbol {
			continue
		}
		pos.Qty = parseFloat(r.PositionAmt)
		pos.EntryPrice = parseFloat(r.EntryPrice)
		pos.UnrealizedPnL = parseFloat(r.UnRealizedProfit)
	}
	return pos, nil
}

func (a *Adapter) GetBalance(ctx context.Context) (exchange.Balance, error) {
	balances, err := a.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return exchange.Balance{}, wrap("balance", err)
	}
	for _, b := range balances {
		if b == nil || b.Asset != "USDT" {
			continue
		}
		return exchange.Balance{
			Asset:     b.Asset,
			Total:     parseFloat(b.Balance),
			Available: parseFloat(b.AvailableBalance),
			UpdatedAt: time.Now(),
		}, nil
	}
	return exchange.Balance{}, fmt.Errorf("binance: no USDT balance in response")
}

func (a *Adapter) GetInstrument(ctx context.Context, symbol string) (exchange.Instrument, error) {
	a.instMu.Lock()
	cached, ok := a.instruments[symbol]
	a.instMu.Unlock()
	if ok {
		return cached, nil
	}
	info, err := a.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return exchange.Instrument{}, wrap("instrument", err)
	}
	a.instMu.Lock()
	defer a.instMu.Unlock()
	for i := range info.Symbols {
		s := info.Symbols[i]
		inst := exchange.Instrument{Symbol: s.Symbol}
		if pf := s.PriceFilter(); pf != nil {
			inst.TickSize = parseFloat(pf.TickSize)
		}
		if lf := s.LotSizeFilter(); lf != nil {
			inst.QtyStep = parseFloat(lf.StepSize)
		}
		if nf := s.MinNotionalFilter(); nf != nil {
			inst.MinOrderValue = parseFloat(nf.Notional)
		}
		a.instruments[s.Symbol] = inst
	}
	inst, ok := a.instruments[symbol]
	if !ok {
		return exchange.Instrument{}, fmt.Errorf("binance: unknown symbol %s", symbol)
	}
	return inst, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
