package match

import (
	"github.com/huandu/skiplist"
	"github.com/shopspring/decimal"
)

// priceUnit aggregates the orders resting at a single price level.
// Orders hang off an intrusive doubly linked list in arrival order.
type priceUnit struct {
	totalSize  decimal.Decimal // sum of visible sizes
	hiddenSize decimal.Decimal // sum of iceberg hidden sizes
	head       *Order
	tail       *Order
	count      int64
}

// queue holds one side of the book: price levels in a skip list sorted by
// priority (descending for bids, ascending for asks), FIFO within a level.
// Reinsertion at the back of a level is what "losing time priority" means.
type queue struct {
	side        Side
	totalOrders int64
	depths      int64
	depthList   *skiplist.SkipList
	priceList   map[string]*skiplist.Element
	orders      map[string]*Order
}

// NewBuyerQueue creates a new queue for buy orders (bids).
// The price levels are sorted in descending order (highest price first).
func NewBuyerQueue() *queue {
	return &queue{
		side: Buy,
		depthList: skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
			d1, _ := lhs.(decimal.Decimal)
			d2, _ := rhs.(decimal.Decimal)
			return d2.Cmp(d1)
		})),
		priceList: make(map[string]*skiplist.Element),
		orders:    make(map[string]*Order),
	}
}

// NewSellerQueue creates a new queue for sell orders (asks).
// The price levels are sorted in ascending order (lowest price first).
func NewSellerQueue() *queue {
	return &queue{
		side: Sell,
		depthList: skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
			d1, _ := lhs.(decimal.Decimal)
			d2, _ := rhs.(decimal.Decimal)
			return d1.Cmp(d2)
		})),
		priceList: make(map[string]*skiplist.Element),
		orders:    make(map[string]*Order),
	}
}

// order finds a resting order by its ID.
func (q *queue) order(id string) *Order {
	return q.orders[id]
}

// insertOrder inserts an order into the queue and the id index.
// isFront requeues the order at the head of its price level (a partially
// filled maker keeping priority); otherwise it joins the back of the level.
func (q *queue) insertOrder(order *Order, isFront bool) {
	key := order.Price.String()

	el, ok := q.priceList[key]
	if ok {
		unit, _ := el.Value.(*priceUnit)
		if isFront {
			order.next = unit.head
			order.prev = nil
			if unit.head != nil {
				unit.head.prev = order
			}
			unit.head = order
			if unit.tail == nil {
				unit.tail = order
			}
		} else {
			order.prev = unit.tail
			order.next = nil
			if unit.tail != nil {
				unit.tail.next = order
			}
			unit.tail = order
			if unit.head == nil {
				unit.head = order
			}
		}

		unit.totalSize = unit.totalSize.Add(order.Size)
		unit.hiddenSize = unit.hiddenSize.Add(order.HiddenSize)
		unit.count++
		q.orders[order.ID] = order
		q.totalOrders++
	} else {
		unit := &priceUnit{
			head:       order,
			tail:       order,
			totalSize:  order.Size,
			hiddenSize: order.HiddenSize,
			count:      1,
		}
		order.next = nil
		order.prev = nil

		q.orders[order.ID] = order

		el := q.depthList.Set(order.Price, unit)
		q.priceList[key] = el

		q.totalOrders++
		q.depths++
	}
}

// removeOrder removes an order from the queue by price and ID.
// It also cleans up the price unit if it becomes empty.
func (q *queue) removeOrder(price decimal.Decimal, id string) {
	key := price.String()

	skipElement, ok := q.priceList[key]
	if !ok {
		return
	}
	unit, _ := skipElement.Value.(*priceUnit)

	order, ok := q.orders[id]
	if !ok {
		return
	}

	// Unlink from the level's list
	if order.prev != nil {
		order.prev.next = order.next
	} else {
		unit.head = order.next
	}

	if order.next != nil {
		order.next.prev = order.prev
	} else {
		unit.tail = order.prev
	}

	order.next = nil
	order.prev = nil

	unit.totalSize = unit.totalSize.Sub(order.Size)
	unit.hiddenSize = unit.hiddenSize.Sub(order.HiddenSize)
	unit.count--
	delete(q.orders, id)
	q.totalOrders--

	if unit.count == 0 {
		q.depthList.RemoveElement(skipElement)
		delete(q.priceList, key)
		q.depths--
	}
}

// updateOrderSize updates the visible size of an order in-place.
// This is used when the size is decreased, preserving the order's priority.
func (q *queue) updateOrderSize(id string, newSize decimal.Decimal) {
	order, ok := q.orders[id]
	if !ok {
		return
	}

	skipElement, ok := q.priceList[order.Price.String()]
	if ok {
		unit, _ := skipElement.Value.(*priceUnit)
		diff := order.Size.Sub(newSize)
		unit.totalSize = unit.totalSize.Sub(diff)
		order.Size = newSize
	}
}

// peekHeadOrder returns the order at the front of the queue (best price) without removing it.
func (q *queue) peekHeadOrder() *Order {
	el := q.depthList.Front()
	if el == nil {
		return nil
	}

	unit, _ := el.Value.(*priceUnit)
	return unit.head
}

// popHeadOrder removes and returns the order at the front of the queue.
func (q *queue) popHeadOrder() *Order {
	ord := q.peekHeadOrder()

	if ord != nil {
		q.removeOrder(ord.Price, ord.ID)
	}

	return ord
}

// availableTo sums visible plus hidden quantity over every price level that
// would trade against an incoming order with the given limit price, walking
// levels in priority order and stopping at the first one that would not.
// Used by the FOK pre-check.
func (q *queue) availableTo(limit decimal.Decimal) decimal.Decimal {
	available := decimal.Zero

	for el := q.depthList.Front(); el != nil; el = el.Next() {
		unit, _ := el.Value.(*priceUnit)
		price, _ := el.Key().(decimal.Decimal)

		if q.side == Sell && price.GreaterThan(limit) {
			break
		}
		if q.side == Buy && price.LessThan(limit) {
			break
		}

		available = available.Add(unit.totalSize).Add(unit.hiddenSize)
	}

	return available
}

// orderCount returns the total number of orders in the queue.
func (q *queue) orderCount() int64 {
	return q.totalOrders
}

// depthCount returns the number of price levels in the queue.
func (q *queue) depthCount() int64 {
	return q.depths
}

// toSnapshot serializes the queue into a slice of order snapshots.
// It iterates the skip list (price levels) and then each level's list, so
// the result is in exact priority order.
func (q *queue) toSnapshot() []OrderSnapshot {
	snapshots := make([]OrderSnapshot, 0, q.totalOrders)

	elem := q.depthList.Front()
	for elem != nil {
		unit := elem.Value.(*priceUnit)

		order := unit.head
		for order != nil {
			snapshots = append(snapshots, OrderSnapshot{
				ID:           order.ID,
				Side:         order.Side,
				Price:        order.Price,
				Size:         order.Size,
				Type:         order.Type,
				VisibleLimit: order.VisibleLimit,
				HiddenSize:   order.HiddenSize,
			})
			order = order.next
		}

		elem = elem.Next()
	}

	return snapshots
}
