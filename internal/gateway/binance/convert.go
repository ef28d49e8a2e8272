package binance

import (
	"strconv"
	"time"

	"makerd/internal/gateway/exchange"

	"github.com/adshao/go-binance/v2/futures"
)

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func toSide(s exchange.Side) futures.SideType {
	if s == exchange.SideSell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func fromSide(s futures.SideType) exchange.Side {
	if s == futures.SideTypeSell {
		return exchange.SideSell
	}
	return exchange.SideBuy
}

func fromStatus(s futures.OrderStatusType) exchange.OrderStatus {
	switch s {
	case futures.OrderStatusTypeNew:
		return exchange.StatusNew
	case futures.OrderStatusTypePartiallyFilled:
		return exchange.StatusPartiallyFilled
	case futures.OrderStatusTypeFilled:
		return exchange.StatusFilled
	case futures.OrderStatusTypeCanceled:
		return exchange.StatusCancelled
	case futures.OrderStatusTypeRejected:
		return exchange.StatusRejected
	case futures.OrderStatusTypeExpired:
		return exchange.StatusExpired
	}
	return exchange.StatusNew
}

func fromOrder(o *futures.Order) exchange.TrackedOrder {
	return exchange.TrackedOrder{
		OrderID:   strconv.FormatInt(o.OrderID, 10),
		ClientTag: o.ClientOrderID,
		Symbol:    o.Symbol,
		Side:      fromSide(o.Side),
		Price:     parseFloat(o.Price),
		Qty:       parseFloat(o.OrigQuantity),
		FilledQty: parseFloat(o.ExecutedQuantity),
		Status:    fromStatus(o.Status),
		LayerTag:  layerTagFromClientTag(o.ClientOrderID),
		PlacedAt:  time.UnixMilli(o.Time),
	}
}

// Client tags are "<layerTag>-<uuid fragment>" so the layer identity survives
// a venue round trip.
func layerTagFromClientTag(tag string) string {
	for i := 0; i < len(tag); i++ {
		if tag[i] == '-' {
			return tag[:i]
		}
	}
	return ""
}
