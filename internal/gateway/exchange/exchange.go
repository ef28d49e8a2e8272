package exchange

import "context"

type Exchange interface {
	Name() string

	PlaceOrder(ctx context.Context, spec OrderSpec) (TrackedOrder, error)

	AmendOrder(ctx context.Context, symbol, orderID string, price, qty float64) error

	CancelOrder(ctx context.Context, symbol, orderID string) error

	CancelAllOrders(ctx context.Context, symbol string) error

	OpenOrders(ctx context.Context, symbol string) ([]TrackedOrder, error)

	GetPosition(ctx context.Context, symbol string) (Position, error)

	GetBalance(ctx context.Context) (Balance, error)

	GetInstrument(ctx context.Context, symbol string) (Instrument, error)

	// SupportsAmend reports whether the venue amends in place without losing
	// queue priority. When false the reconciler always cancels and replaces.
	SupportsAmend() bool
}

// StreamSource pumps venue events into the fleet's shared inbound channel.
type StreamSource interface {
	SubscribeMarket(ctx context.Context, symbols []string, out chan<- Event) error

	SubscribePrivate(ctx context.Context, out chan<- Event) error
}
