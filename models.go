package match

import (
	"github.com/shopspring/decimal"
	"github.com/tidemark/matching-engine/protocol"
)

type Side = protocol.Side

const (
	Buy  Side = protocol.SideBuy
	Sell Side = protocol.SideSell
)

type OrderType = protocol.OrderType

const (
	Market  OrderType = protocol.OrderTypeMarket
	Limit   OrderType = protocol.OrderTypeLimit
	IOC     OrderType = protocol.OrderTypeIOC
	FOK     OrderType = protocol.OrderTypeFOK
	Iceberg OrderType = protocol.OrderTypeIceberg
)

// Order represents the state of a resting order in the order book.
// Price and Size are mutated in place by the matching loop and by
// cancel/replace, so references held by the id index stay valid.
type Order struct {
	ID    string
	Side  Side
	Price decimal.Decimal
	Size  decimal.Decimal // remaining visible size
	Type  OrderType

	// Iceberg fields
	VisibleLimit decimal.Decimal // peak size, the replenish target
	HiddenSize   decimal.Decimal

	// Intrusive linked list pointers
	next *Order
	prev *Order
}

// IsIceberg reports whether the order conceals quantity behind a peak.
func (o *Order) IsIceberg() bool {
	return o.Type == Iceberg
}

// Remaining returns visible plus hidden quantity.
func (o *Order) Remaining() decimal.Decimal {
	return o.Size.Add(o.HiddenSize)
}

// replenish moves hidden quantity into the visible part, up to the peak.
// The caller repositions the order afterwards; a replenished peak counts
// as a fresh arrival.
func (o *Order) replenish() {
	if o.Size.GreaterThanOrEqual(o.VisibleLimit) {
		return
	}

	take := decimal.Min(o.VisibleLimit.Sub(o.Size), o.HiddenSize)
	o.Size = o.Size.Add(take)
	o.HiddenSize = o.HiddenSize.Sub(take)
}

// newRestingOrder builds the resting form of a submit command remainder.
// An iceberg exposes at most its peak; the rest goes into hidden stock.
func newRestingOrder(cmd *protocol.SubmitCommand, remaining decimal.Decimal) *Order {
	order := &Order{
		ID:    cmd.OrderID,
		Side:  cmd.Side,
		Price: cmd.Price,
		Size:  remaining,
		Type:  cmd.OrderType,
	}

	if cmd.OrderType == Iceberg {
		order.VisibleLimit = cmd.DisplaySize
		order.Size = decimal.Min(cmd.DisplaySize, remaining)
		order.HiddenSize = remaining.Sub(order.Size)
	}

	return order
}
