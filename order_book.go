package match

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tidemark/matching-engine/protocol"
)

// commandKind identifies the payload of a bookCommand.
type commandKind uint8

const (
	cmdSubmit commandKind = iota + 1
	cmdCancel
	cmdCancelReplace
	cmdSnapshot
	cmdStats
)

// bookCommand is the unit queued on the command ring. Exactly one of the
// payload fields is set, matching kind. resp, when non-nil, receives the
// result of applying the command.
type bookCommand struct {
	kind    commandKind
	submit  *protocol.SubmitCommand
	cancel  *protocol.CancelCommand
	replace *protocol.CancelReplaceCommand
	resp    chan any
}

// BookStats contains statistics about the order book queues.
type BookStats struct {
	AskDepthCount int64
	AskOrderCount int64
	BidDepthCount int64
	BidOrderCount int64
}

// OrderBook holds the two price-time-priority queues for one instrument and
// runs the matching state machine. All mutations happen on the consumer side
// of the command ring, so the book is single-writer by construction; callers
// interact through the blocking public API.
type OrderBook struct {
	instrument   string
	isShutdown   atomic.Bool
	bidQueue     *queue
	askQueue     *queue
	ring         *RingBuffer[bookCommand]
	ringCapacity int64
}

// OrderBookOption configures an OrderBook.
type OrderBookOption func(*OrderBook)

// WithRingCapacity overrides the command ring size. capacity must be a
// power of two.
func WithRingCapacity(capacity int64) OrderBookOption {
	return func(book *OrderBook) {
		book.ringCapacity = capacity
	}
}

// NewOrderBook creates a new order book instance for a single instrument.
func NewOrderBook(instrument string, opts ...OrderBookOption) *OrderBook {
	book := &OrderBook{
		instrument:   instrument,
		bidQueue:     NewBuyerQueue(),
		askQueue:     NewSellerQueue(),
		ringCapacity: DefaultRingCapacity,
	}

	for _, opt := range opts {
		opt(book)
	}

	book.ring = NewRingBuffer[bookCommand](book.ringCapacity, book)
	return book
}

// Start runs the command loop until Shutdown. Commands are applied strictly
// in arrival order; one command runs to completion before the next.
func (book *OrderBook) Start() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	book.ring.Run()
}

// Shutdown stops accepting new commands and waits until every pending
// command has been applied, or the context expires.
func (book *OrderBook) Shutdown(ctx context.Context) error {
	book.isShutdown.Store(true)
	return book.ring.Shutdown(ctx)
}

// SubmitOrder submits an order and returns the total traded notional value
// (sum over all fills of quantity times the resting price), zero if nothing
// filled. It blocks until the command loop has applied the order.
func (book *OrderBook) SubmitOrder(ctx context.Context, cmd *protocol.SubmitCommand) (decimal.Decimal, error) {
	if book.isShutdown.Load() {
		return decimal.Zero, ErrShutdown
	}

	if cmd == nil || len(cmd.OrderID) == 0 || len(cmd.OrderType) == 0 {
		return decimal.Zero, ErrInvalidParam
	}

	resp := make(chan any, 1)
	book.ring.Publish(bookCommand{kind: cmdSubmit, submit: cmd, resp: resp})

	select {
	case res := <-resp:
		notional, _ := res.(decimal.Decimal)
		return notional, nil
	case <-ctx.Done():
		return decimal.Zero, ErrTimeout
	}
}

// CancelOrder removes a resting order. An unknown id is a defined no-op.
func (book *OrderBook) CancelOrder(ctx context.Context, id string) error {
	if book.isShutdown.Load() {
		return ErrShutdown
	}

	if len(id) == 0 {
		return nil
	}

	resp := make(chan any, 1)
	book.ring.Publish(bookCommand{kind: cmdCancel, cancel: &protocol.CancelCommand{OrderID: id}, resp: resp})

	select {
	case <-resp:
		return nil
	case <-ctx.Done():
		return ErrTimeout
	}
}

// CancelReplaceOrder applies a new quantity and price to a resting order.
// Unknown ids and resting icebergs are defined no-ops.
func (book *OrderBook) CancelReplaceOrder(ctx context.Context, cmd *protocol.CancelReplaceCommand) error {
	if book.isShutdown.Load() {
		return ErrShutdown
	}

	if cmd == nil || len(cmd.OrderID) == 0 {
		return ErrInvalidParam
	}

	resp := make(chan any, 1)
	book.ring.Publish(bookCommand{kind: cmdCancelReplace, replace: cmd, resp: resp})

	select {
	case <-resp:
		return nil
	case <-ctx.Done():
		return ErrTimeout
	}
}

// Snapshot captures both sides of the book in priority order.
func (book *OrderBook) Snapshot(ctx context.Context) (*BookSnapshot, error) {
	if book.isShutdown.Load() {
		return nil, ErrShutdown
	}

	resp := make(chan any, 1)
	book.ring.Publish(bookCommand{kind: cmdSnapshot, resp: resp})

	select {
	case res := <-resp:
		snap, _ := res.(*BookSnapshot)
		return snap, nil
	case <-ctx.Done():
		return nil, ErrTimeout
	}
}

// Stats returns usage statistics for the order book.
func (book *OrderBook) Stats(ctx context.Context) (*BookStats, error) {
	if book.isShutdown.Load() {
		return nil, ErrShutdown
	}

	resp := make(chan any, 1)
	book.ring.Publish(bookCommand{kind: cmdStats, resp: resp})

	select {
	case res := <-resp:
		stats, _ := res.(*BookStats)
		return stats, nil
	case <-ctx.Done():
		return nil, ErrTimeout
	}
}

// OnEvent applies one command from the ring. It runs on the single consumer
// goroutine, so no locking is needed anywhere below this point.
func (book *OrderBook) OnEvent(cmd *bookCommand) {
	switch cmd.kind {
	case cmdSubmit:
		book.respond(cmd, book.submitOrder(cmd.submit))
	case cmdCancel:
		book.cancelOrder(cmd.cancel.OrderID)
		book.respond(cmd, nil)
	case cmdCancelReplace:
		book.cancelReplaceOrder(cmd.replace)
		book.respond(cmd, nil)
	case cmdSnapshot:
		book.respond(cmd, book.snapshot())
	case cmdStats:
		book.respond(cmd, &BookStats{
			AskDepthCount: book.askQueue.depthCount(),
			AskOrderCount: book.askQueue.orderCount(),
			BidDepthCount: book.bidQueue.depthCount(),
			BidOrderCount: book.bidQueue.orderCount(),
		})
	}
}

func (book *OrderBook) respond(cmd *bookCommand, result any) {
	if cmd.resp == nil {
		return
	}

	select {
	case cmd.resp <- result:
	default:
		// Nobody is waiting anymore, drop the result.
	}
}

// submitOrder runs the execution state machine for one submit command and
// returns the total traded notional.
func (book *OrderBook) submitOrder(cmd *protocol.SubmitCommand) decimal.Decimal {
	var myQueue, targetQueue *queue
	if cmd.Side == Buy {
		myQueue = book.bidQueue
		targetQueue = book.askQueue
	} else {
		myQueue = book.askQueue
		targetQueue = book.bidQueue
	}

	// FOK fills completely or not at all. The liquidity pre-check counts
	// hidden iceberg stock over every marketable price level.
	if cmd.OrderType == FOK && targetQueue.availableTo(cmd.Price).LessThan(cmd.Quantity) {
		logger.Debug("fok order killed",
			zap.String("order_id", cmd.OrderID),
			zap.String("quantity", cmd.Quantity.String()))
		return decimal.Zero
	}

	remaining := cmd.Quantity
	notional := decimal.Zero
	isMarket := cmd.OrderType == Market

	for remaining.IsPositive() {
		resting := targetQueue.peekHeadOrder()
		if resting == nil {
			break
		}
		if !isMarket && !crosses(cmd.Side, cmd.Price, resting.Price) {
			break
		}

		resting = targetQueue.popHeadOrder()

		// Execution always happens at the resting order's price.
		traded := decimal.Min(resting.Size, remaining)
		resting.Size = resting.Size.Sub(traded)
		remaining = remaining.Sub(traded)
		notional = notional.Add(traded.Mul(resting.Price))

		if resting.Size.IsPositive() {
			// Partially filled maker keeps its place at the front.
			targetQueue.insertOrder(resting, true)
		} else if resting.IsIceberg() && resting.HiddenSize.IsPositive() {
			// An exhausted peak replenishes from hidden stock and rejoins
			// the back of its price level: time priority is lost, and the
			// order may match again later in this same pass.
			resting.replenish()
			targetQueue.insertOrder(resting, false)
		}
	}

	// Only the limit family rests a remainder; market, IOC and FOK
	// remainders are discarded.
	if remaining.IsPositive() && (cmd.OrderType == Limit || cmd.OrderType == Iceberg) {
		myQueue.insertOrder(newRestingOrder(cmd, remaining), false)
	}

	return notional
}

// crosses reports whether an incoming order with the given limit price
// trades against a resting order priced at restingPrice.
func crosses(side Side, limit, restingPrice decimal.Decimal) bool {
	if side == Buy {
		return restingPrice.LessThanOrEqual(limit)
	}
	return restingPrice.GreaterThanOrEqual(limit)
}

// lookupOrder finds a resting order and the side queue holding it.
func (book *OrderBook) lookupOrder(id string) (*Order, *queue) {
	if order := book.askQueue.order(id); order != nil {
		return order, book.askQueue
	}
	if order := book.bidQueue.order(id); order != nil {
		return order, book.bidQueue
	}
	return nil, nil
}

// cancelOrder processes the cancellation of an order.
func (book *OrderBook) cancelOrder(id string) {
	order, q := book.lookupOrder(id)
	if order == nil {
		return
	}

	q.removeOrder(order.Price, id)
	logger.Debug("order canceled",
		zap.String("instrument", book.instrument),
		zap.String("order_id", id))
}

// cancelReplaceOrder applies a new price and quantity to a resting order.
// Icebergs are immutable once resting. Priority is kept only for a strict
// quantity decrease at an unchanged price; any price change or a new
// quantity greater than or equal to the current one moves the order to the
// back of its (possibly new) price level.
func (book *OrderBook) cancelReplaceOrder(cmd *protocol.CancelReplaceCommand) {
	order, q := book.lookupOrder(cmd.OrderID)
	if order == nil || order.IsIceberg() {
		return
	}

	priorityLost := !order.Price.Equal(cmd.NewPrice) || cmd.NewQuantity.GreaterThanOrEqual(order.Size)

	if priorityLost {
		q.removeOrder(order.Price, order.ID)
		order.Price = cmd.NewPrice
		order.Size = cmd.NewQuantity
		if order.Size.IsPositive() {
			q.insertOrder(order, false)
		}
	} else {
		q.updateOrderSize(order.ID, cmd.NewQuantity)
	}
}

// snapshot captures the current order book state. It is called from the
// command loop, so it is consistent with respect to order processing.
func (book *OrderBook) snapshot() *BookSnapshot {
	return &BookSnapshot{
		Instrument: book.instrument,
		Bids:       book.bidQueue.toSnapshot(),
		Asks:       book.askQueue.toSnapshot(),
	}
}

// Restore rebuilds the order book state from a snapshot. It must be called
// before Start; snapshots list each side in priority order, so inserting at
// the back preserves it.
func (book *OrderBook) Restore(snap *BookSnapshot) {
	book.bidQueue = NewBuyerQueue()
	book.askQueue = NewSellerQueue()

	restoreSide := func(q *queue, orders []OrderSnapshot) {
		for _, s := range orders {
			q.insertOrder(&Order{
				ID:           s.ID,
				Side:         s.Side,
				Price:        s.Price,
				Size:         s.Size,
				Type:         s.Type,
				VisibleLimit: s.VisibleLimit,
				HiddenSize:   s.HiddenSize,
			}, false)
		}
	}

	restoreSide(book.bidQueue, snap.Bids)
	restoreSide(book.askQueue, snap.Asks)
}
