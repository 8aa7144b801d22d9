package match

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderSnapshot is the serializable state of a single resting order.
type OrderSnapshot struct {
	ID           string          `json:"id"`
	Side         Side            `json:"side"`
	Price        decimal.Decimal `json:"price"`
	Size         decimal.Decimal `json:"size"` // remaining visible size
	Type         OrderType       `json:"type"`
	VisibleLimit decimal.Decimal `json:"visible_limit,omitempty"`
	HiddenSize   decimal.Decimal `json:"hidden_size,omitempty"`
}

// String renders the order in the book-status wire format:
// plain orders as <qty>@<price>#<id>, icebergs as
// <visibleQty>(<totalQty>)@<price>#<id>.
func (s OrderSnapshot) String() string {
	if s.Type == Iceberg {
		return fmt.Sprintf("%s(%s)@%s#%s", s.Size, s.Size.Add(s.HiddenSize), s.Price, s.ID)
	}
	return fmt.Sprintf("%s@%s#%s", s.Size, s.Price, s.ID)
}

// BookSnapshot contains the full state of an order book, both sides listed
// in exact priority order (best first).
type BookSnapshot struct {
	Instrument string          `json:"instrument"`
	Bids       []OrderSnapshot `json:"bids"`
	Asks       []OrderSnapshot `json:"asks"`
}

// String renders the final book status print, one line per side.
// The "B: " / "S: " prefixes are kept even for an empty side.
func (s *BookSnapshot) String() string {
	return "B: " + joinOrders(s.Bids) + "\nS: " + joinOrders(s.Asks)
}

func joinOrders(orders []OrderSnapshot) string {
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		parts = append(parts, o.String())
	}
	return strings.Join(parts, " ")
}
