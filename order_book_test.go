package match

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark/matching-engine/protocol"
)

func newTestBook(t *testing.T) *OrderBook {
	t.Helper()

	book := NewOrderBook("AAPL", WithRingCapacity(1024))
	go book.Start()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = book.Shutdown(ctx)
	})

	return book
}

func limitOrder(id string, side Side, qty, price int64) *protocol.SubmitCommand {
	return &protocol.SubmitCommand{
		OrderID:   id,
		Side:      side,
		OrderType: Limit,
		Quantity:  decimal.NewFromInt(qty),
		Price:     decimal.NewFromInt(price),
	}
}

func marketOrder(id string, side Side, qty int64) *protocol.SubmitCommand {
	return &protocol.SubmitCommand{
		OrderID:   id,
		Side:      side,
		OrderType: Market,
		Quantity:  decimal.NewFromInt(qty),
	}
}

func iocOrder(id string, side Side, qty, price int64) *protocol.SubmitCommand {
	cmd := limitOrder(id, side, qty, price)
	cmd.OrderType = IOC
	return cmd
}

func fokOrder(id string, side Side, qty, price int64) *protocol.SubmitCommand {
	cmd := limitOrder(id, side, qty, price)
	cmd.OrderType = FOK
	return cmd
}

func icebergOrder(id string, side Side, total, price, peak int64) *protocol.SubmitCommand {
	cmd := limitOrder(id, side, total, price)
	cmd.OrderType = Iceberg
	cmd.DisplaySize = decimal.NewFromInt(peak)
	return cmd
}

func mustSubmit(t *testing.T, book *OrderBook, cmd *protocol.SubmitCommand) decimal.Decimal {
	t.Helper()

	notional, err := book.SubmitOrder(context.Background(), cmd)
	require.NoError(t, err)
	return notional
}

func mustSnapshot(t *testing.T, book *OrderBook) *BookSnapshot {
	t.Helper()

	snap, err := book.Snapshot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	return snap
}

func mustStats(t *testing.T, book *OrderBook) *BookStats {
	t.Helper()

	stats, err := book.Stats(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stats)
	return stats
}

func renderedSide(orders []OrderSnapshot) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.String())
	}
	return out
}

func TestLimitOrders(t *testing.T) {
	ctx := context.Background()

	t.Run("resting order opens the book", func(t *testing.T) {
		book := newTestBook(t)

		notional := mustSubmit(t, book, limitOrder("buy-1", Buy, 10, 100))
		assert.Equal(t, "0", notional.String())

		stats := mustStats(t, book)
		assert.Equal(t, int64(1), stats.BidOrderCount)
		assert.Equal(t, int64(0), stats.AskOrderCount)

		snap := mustSnapshot(t, book)
		assert.Equal(t, []string{"10@100#buy-1"}, renderedSide(snap.Bids))
		assert.Empty(t, snap.Asks)
	})

	t.Run("full cross empties both sides", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("o1", Buy, 10, 100))
		notional := mustSubmit(t, book, limitOrder("o2", Sell, 10, 100))
		assert.Equal(t, "1000", notional.String())

		stats := mustStats(t, book)
		assert.Equal(t, int64(0), stats.BidOrderCount)
		assert.Equal(t, int64(0), stats.AskOrderCount)
	})

	t.Run("partial fill rests the remainder", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("sell-1", Sell, 5, 100))
		notional := mustSubmit(t, book, limitOrder("buy-1", Buy, 10, 100))
		assert.Equal(t, "500", notional.String())

		snap := mustSnapshot(t, book)
		assert.Equal(t, []string{"5@100#buy-1"}, renderedSide(snap.Bids))
		assert.Empty(t, snap.Asks)
	})

	t.Run("sweeps multiple levels at resting prices", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("sell-1", Sell, 1, 110))
		mustSubmit(t, book, limitOrder("sell-2", Sell, 1, 120))
		mustSubmit(t, book, limitOrder("sell-3", Sell, 1, 130))

		// Limit far above the asks takes them all at their own prices.
		notional := mustSubmit(t, book, limitOrder("buy-all", Buy, 10, 1000))
		assert.Equal(t, "360", notional.String())

		snap := mustSnapshot(t, book)
		assert.Equal(t, []string{"7@1000#buy-all"}, renderedSide(snap.Bids))
		assert.Empty(t, snap.Asks)
	})

	t.Run("does not trade through the limit", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("sell-1", Sell, 5, 100))
		notional := mustSubmit(t, book, limitOrder("buy-1", Buy, 5, 90))
		assert.Equal(t, "0", notional.String())

		snap := mustSnapshot(t, book)
		assert.Equal(t, []string{"5@90#buy-1"}, renderedSide(snap.Bids))
		assert.Equal(t, []string{"5@100#sell-1"}, renderedSide(snap.Asks))
	})

	t.Run("partial maker keeps its place", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("sell-1", Sell, 10, 100))
		mustSubmit(t, book, limitOrder("sell-2", Sell, 10, 100))

		mustSubmit(t, book, limitOrder("buy-1", Buy, 4, 100))

		snap := mustSnapshot(t, book)
		assert.Equal(t, []string{"6@100#sell-1", "10@100#sell-2"}, renderedSide(snap.Asks))

		// The next taker keeps hitting sell-1 first.
		notional, err := book.SubmitOrder(ctx, limitOrder("buy-2", Buy, 6, 100))
		require.NoError(t, err)
		assert.Equal(t, "600", notional.String())

		snap = mustSnapshot(t, book)
		assert.Equal(t, []string{"10@100#sell-2"}, renderedSide(snap.Asks))
	})
}

func TestPriceTimePriority(t *testing.T) {
	t.Run("bids descend by price, FIFO within a level", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("b1", Buy, 1, 90))
		mustSubmit(t, book, limitOrder("b2", Buy, 1, 100))
		mustSubmit(t, book, limitOrder("b3", Buy, 1, 100))
		mustSubmit(t, book, limitOrder("b4", Buy, 1, 80))

		snap := mustSnapshot(t, book)
		assert.Equal(t, []string{"1@100#b2", "1@100#b3", "1@90#b1", "1@80#b4"}, renderedSide(snap.Bids))
	})

	t.Run("asks ascend by price, FIFO within a level", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("s1", Sell, 1, 120))
		mustSubmit(t, book, limitOrder("s2", Sell, 1, 110))
		mustSubmit(t, book, limitOrder("s3", Sell, 1, 110))
		mustSubmit(t, book, limitOrder("s4", Sell, 1, 130))

		snap := mustSnapshot(t, book)
		assert.Equal(t, []string{"1@110#s2", "1@110#s3", "1@120#s1", "1@130#s4"}, renderedSide(snap.Asks))
	})
}

func TestMarketOrders(t *testing.T) {
	t.Run("unfilled remainder is discarded", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("o1", Buy, 5, 100))
		notional := mustSubmit(t, book, marketOrder("o2", Sell, 10))
		assert.Equal(t, "500", notional.String())

		stats := mustStats(t, book)
		assert.Equal(t, int64(0), stats.BidOrderCount)
		assert.Equal(t, int64(0), stats.AskOrderCount)
	})

	t.Run("empty opposite side fills nothing", func(t *testing.T) {
		book := newTestBook(t)

		notional := mustSubmit(t, book, marketOrder("o1", Buy, 10))
		assert.Equal(t, "0", notional.String())
		assert.Equal(t, int64(0), mustStats(t, book).BidOrderCount)
	})

	t.Run("sweeps every level regardless of price", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("b1", Buy, 2, 100))
		mustSubmit(t, book, limitOrder("b2", Buy, 2, 50))

		notional := mustSubmit(t, book, marketOrder("s1", Sell, 4))
		assert.Equal(t, "300", notional.String())
		assert.Equal(t, int64(0), mustStats(t, book).BidOrderCount)
	})
}

func TestIOCOrders(t *testing.T) {
	t.Run("matches then discards the remainder", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("sell-1", Sell, 5, 100))
		notional := mustSubmit(t, book, iocOrder("buy-1", Buy, 10, 100))
		assert.Equal(t, "500", notional.String())

		stats := mustStats(t, book)
		assert.Equal(t, int64(0), stats.BidOrderCount)
		assert.Equal(t, int64(0), stats.AskOrderCount)
	})

	t.Run("never rests when nothing is marketable", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("sell-1", Sell, 5, 100))
		notional := mustSubmit(t, book, iocOrder("buy-1", Buy, 5, 90))
		assert.Equal(t, "0", notional.String())

		snap := mustSnapshot(t, book)
		assert.Empty(t, snap.Bids)
		assert.Equal(t, []string{"5@100#sell-1"}, renderedSide(snap.Asks))
	})
}

func TestFOKOrders(t *testing.T) {
	t.Run("kills when liquidity is short", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("b1", Buy, 10, 100))
		mustSubmit(t, book, limitOrder("b2", Buy, 5, 95))

		before := mustSnapshot(t, book)

		notional := mustSubmit(t, book, fokOrder("s1", Sell, 20, 90))
		assert.Equal(t, "0", notional.String())

		// The book is untouched.
		after := mustSnapshot(t, book)
		assert.Equal(t, renderedSide(before.Bids), renderedSide(after.Bids))
		assert.Equal(t, renderedSide(before.Asks), renderedSide(after.Asks))
	})

	t.Run("fills completely when liquidity suffices", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("b1", Buy, 10, 100))
		mustSubmit(t, book, limitOrder("b2", Buy, 5, 95))

		notional := mustSubmit(t, book, fokOrder("s1", Sell, 15, 90))
		assert.Equal(t, "1475", notional.String())

		stats := mustStats(t, book)
		assert.Equal(t, int64(0), stats.BidOrderCount)
		assert.Equal(t, int64(0), stats.AskOrderCount)
	})

	t.Run("ignores liquidity past the first unmarketable level", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("b1", Buy, 10, 100))
		mustSubmit(t, book, limitOrder("b2", Buy, 10, 80))

		// 15 sellable at >= 90 does not exist: only 10 at 100 qualifies.
		notional := mustSubmit(t, book, fokOrder("s1", Sell, 15, 90))
		assert.Equal(t, "0", notional.String())
		assert.Equal(t, int64(2), mustStats(t, book).BidOrderCount)
	})
}

func TestCancelOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("removes a resting order", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("b1", Buy, 10, 100))
		require.NoError(t, book.CancelOrder(ctx, "b1"))

		stats := mustStats(t, book)
		assert.Equal(t, int64(0), stats.BidOrderCount)
		assert.Equal(t, int64(0), stats.BidDepthCount)
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("b1", Buy, 10, 100))
		require.NoError(t, book.CancelOrder(ctx, "missing"))
		assert.Equal(t, int64(1), mustStats(t, book).BidOrderCount)
	})

	t.Run("canceled order no longer matches", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("b1", Buy, 10, 100))
		require.NoError(t, book.CancelOrder(ctx, "b1"))

		notional := mustSubmit(t, book, limitOrder("s1", Sell, 10, 100))
		assert.Equal(t, "0", notional.String())
	})
}

func TestCancelReplace(t *testing.T) {
	ctx := context.Background()

	crp := func(id string, qty, price int64) *protocol.CancelReplaceCommand {
		return &protocol.CancelReplaceCommand{
			OrderID:     id,
			NewQuantity: decimal.NewFromInt(qty),
			NewPrice:    decimal.NewFromInt(price),
		}
	}

	t.Run("quantity decrease at unchanged price keeps priority", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("b1", Buy, 10, 100))
		mustSubmit(t, book, limitOrder("b2", Buy, 10, 100))

		require.NoError(t, book.CancelReplaceOrder(ctx, crp("b1", 5, 100)))

		snap := mustSnapshot(t, book)
		assert.Equal(t, []string{"5@100#b1", "10@100#b2"}, renderedSide(snap.Bids))
	})

	t.Run("quantity increase moves to the back", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("b1", Buy, 10, 100))
		mustSubmit(t, book, limitOrder("b2", Buy, 10, 100))

		require.NoError(t, book.CancelReplaceOrder(ctx, crp("b1", 20, 100)))

		snap := mustSnapshot(t, book)
		assert.Equal(t, []string{"10@100#b2", "20@100#b1"}, renderedSide(snap.Bids))
	})

	t.Run("unchanged quantity at unchanged price moves to the back", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("b1", Buy, 10, 100))
		mustSubmit(t, book, limitOrder("b2", Buy, 10, 100))

		require.NoError(t, book.CancelReplaceOrder(ctx, crp("b1", 10, 100)))

		snap := mustSnapshot(t, book)
		assert.Equal(t, []string{"10@100#b2", "10@100#b1"}, renderedSide(snap.Bids))
	})

	t.Run("price change re-sorts the order", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("b1", Buy, 10, 100))
		mustSubmit(t, book, limitOrder("b2", Buy, 10, 90))

		require.NoError(t, book.CancelReplaceOrder(ctx, crp("b1", 5, 80)))

		snap := mustSnapshot(t, book)
		assert.Equal(t, []string{"10@90#b2", "5@80#b1"}, renderedSide(snap.Bids))
	})

	t.Run("price change even with decreased quantity loses priority", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("b1", Buy, 10, 100))
		mustSubmit(t, book, limitOrder("b2", Buy, 10, 90))

		require.NoError(t, book.CancelReplaceOrder(ctx, crp("b2", 5, 100)))

		snap := mustSnapshot(t, book)
		assert.Equal(t, []string{"10@100#b1", "5@100#b2"}, renderedSide(snap.Bids))
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		book := newTestBook(t)

		mustSubmit(t, book, limitOrder("b1", Buy, 10, 100))
		require.NoError(t, book.CancelReplaceOrder(ctx, crp("missing", 5, 100)))

		snap := mustSnapshot(t, book)
		assert.Equal(t, []string{"10@100#b1"}, renderedSide(snap.Bids))
	})
}

func TestBookStatusRendering(t *testing.T) {
	book := newTestBook(t)

	mustSubmit(t, book, limitOrder("b1", Buy, 10, 99))
	mustSubmit(t, book, icebergOrder("ice-1", Sell, 100, 101, 10))
	mustSubmit(t, book, limitOrder("s1", Sell, 5, 101))

	snap := mustSnapshot(t, book)
	assert.Equal(t, "B: 10@99#b1\nS: 10(100)@101#ice-1 5@101#s1", snap.String())
}

func TestBookStatusRenderingEmpty(t *testing.T) {
	book := newTestBook(t)

	snap := mustSnapshot(t, book)
	assert.Equal(t, "B: \nS: ", snap.String())
}

func TestShutdown(t *testing.T) {
	book := NewOrderBook("AAPL", WithRingCapacity(64))
	go book.Start()

	mustSubmit(t, book, limitOrder("b1", Buy, 10, 100))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, book.Shutdown(ctx))

	_, err := book.SubmitOrder(ctx, limitOrder("b2", Buy, 10, 100))
	assert.ErrorIs(t, err, ErrShutdown)
}
