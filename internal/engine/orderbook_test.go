package engine

import (
	"sync"
	"testing"
	"time"

	"matching-engine/internal/models"
)

// Helper to create a test order
func newTestOrder(id int64, side models.Side, typ models.OrderType, price, quantity float64) *models.Order {
	return &models.Order{
		ID:        id,
		Side:      side,
		Type:      typ,
		Price:     price,
		Quantity:  quantity,
		Status:    models.Open,
		CreatedAt: time.Now(),
	}
}

// tradeRecorder collects emitted trades for assertions.
type tradeRecorder struct {
	mu     sync.Mutex
	trades []*models.Trade
}

func (r *tradeRecorder) record(t *models.Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, t)
}

func (r *tradeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trades)
}

func (r *tradeRecorder) get(i int) *models.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trades[i]
}

func newTestBook() (*OrderBook, *tradeRecorder) {
	ob := NewOrderBook()
	rec := &tradeRecorder{}
	ob.SetTradeCallback(rec.record)
	return ob, rec
}

func assertTrade(t *testing.T, trade *models.Trade, buyID, sellID int64, qty, price float64) {
	t.Helper()
	if trade.BuyOrderID != buyID || trade.SellOrderID != sellID {
		t.Errorf("Expected trade between buy %d and sell %d, got buy %d sell %d",
			buyID, sellID, trade.BuyOrderID, trade.SellOrderID)
	}
	if trade.Quantity != qty {
		t.Errorf("Expected trade quantity %f, got %f", qty, trade.Quantity)
	}
	if trade.Price != price {
		t.Errorf("Expected trade price %f, got %f", price, trade.Price)
	}
}

// TestOrderBook_FullMatch covers two limit orders matching completely.
func TestOrderBook_FullMatch(t *testing.T) {
	ob, rec := newTestBook()
	ob.Reset()

	if err := ob.AddOrder(newTestOrder(1, models.Buy, models.Limit, 100, 10)); err != nil {
		t.Fatalf("AddOrder failed: %v", err)
	}
	if err := ob.AddOrder(newTestOrder(2, models.Sell, models.Limit, 100, 10)); err != nil {
		t.Fatalf("AddOrder failed: %v", err)
	}

	if rec.count() != 1 {
		t.Fatalf("Expected 1 trade, got %d", rec.count())
	}
	assertTrade(t, rec.get(0), 1, 2, 10, 100)

	if bid := ob.BestBid(); bid != 0 {
		t.Errorf("Expected best bid 0, got %f", bid)
	}
	if ask := ob.BestAsk(); ask != 0 {
		t.Errorf("Expected best ask 0, got %f", ask)
	}
	if ob.RestingCount() != 0 {
		t.Errorf("Expected empty index, got %d entries", ob.RestingCount())
	}
}

// TestOrderBook_PartialFill covers a partial fill leaving a residual bid.
func TestOrderBook_PartialFill(t *testing.T) {
	ob, rec := newTestBook()
	ob.Reset()

	ob.AddOrder(newTestOrder(3, models.Buy, models.Limit, 150, 20))
	ob.AddOrder(newTestOrder(4, models.Sell, models.Limit, 150, 10))

	if rec.count() != 1 {
		t.Fatalf("Expected 1 trade, got %d", rec.count())
	}
	assertTrade(t, rec.get(0), 3, 4, 10, 150)

	if bid := ob.BestBid(); bid != 150 {
		t.Errorf("Expected best bid 150, got %f", bid)
	}
	if ask := ob.BestAsk(); ask != 0 {
		t.Errorf("Expected best ask 0, got %f", ask)
	}

	order := ob.GetOrder(3)
	if order == nil {
		t.Fatal("Expected order 3 to remain active")
	}
	if order.Remaining() != 10 {
		t.Errorf("Expected residual 10, got %f", order.Remaining())
	}
	if order.Status != models.Partial {
		t.Errorf("Expected status partial, got %s", order.Status)
	}
}

// TestOrderBook_MarketSweep covers a market order trading at the resting price.
func TestOrderBook_MarketSweep(t *testing.T) {
	ob, rec := newTestBook()
	ob.Reset()

	ob.AddOrder(newTestOrder(8, models.Buy, models.Limit, 150, 10))
	ob.AddOrder(newTestOrder(5, models.Sell, models.Market, 120, 5))

	if rec.count() != 1 {
		t.Fatalf("Expected 1 trade, got %d", rec.count())
	}
	// Trade executes at the resting bid's price, not the market order's.
	assertTrade(t, rec.get(0), 8, 5, 5, 150)

	if bid := ob.BestBid(); bid != 150 {
		t.Errorf("Expected best bid 150, got %f", bid)
	}
	if ask := ob.BestAsk(); ask != 0 {
		t.Errorf("Expected best ask 0, got %f", ask)
	}
	if order := ob.GetOrder(8); order == nil || order.Remaining() != 5 {
		t.Error("Expected order 8 active with residual 5")
	}
	// Market orders never rest.
	if ob.GetOrder(5) != nil {
		t.Error("Expected market order 5 not to be indexed")
	}
}

// TestOrderBook_NoCross covers non-crossing prices leaving both orders resting.
func TestOrderBook_NoCross(t *testing.T) {
	ob, rec := newTestBook()
	ob.Reset()

	ob.AddOrder(newTestOrder(6, models.Buy, models.Limit, 80, 5))
	ob.AddOrder(newTestOrder(7, models.Sell, models.Limit, 120, 5))

	if rec.count() != 0 {
		t.Errorf("Expected no trades, got %d", rec.count())
	}
	if bid := ob.BestBid(); bid != 80 {
		t.Errorf("Expected best bid 80, got %f", bid)
	}
	if ask := ob.BestAsk(); ask != 120 {
		t.Errorf("Expected best ask 120, got %f", ask)
	}
}

// TestOrderBook_Cancel covers cancel semantics including the not-found path.
func TestOrderBook_Cancel(t *testing.T) {
	ob, _ := newTestBook()
	ob.Reset()

	ob.AddOrder(newTestOrder(10, models.Buy, models.Limit, 110, 10))

	if !ob.CancelOrder(10) {
		t.Error("Expected first cancel to return true")
	}
	if ob.CancelOrder(10) {
		t.Error("Expected second cancel to return false")
	}
	if bid := ob.BestBid(); bid != 0 {
		t.Errorf("Expected best bid 0 after cancel, got %f", bid)
	}
}

// TestOrderBook_Modify covers the cancel-reinsert modify path.
func TestOrderBook_Modify(t *testing.T) {
	ob, _ := newTestBook()
	ob.Reset()

	ob.AddOrder(newTestOrder(11, models.Sell, models.Limit, 130, 10))

	if !ob.ModifyOrder(11, 15, 125) {
		t.Fatal("Expected modify to return true")
	}
	if ask := ob.BestAsk(); ask != 125 {
		t.Errorf("Expected best ask 125, got %f", ask)
	}
	order := ob.GetOrder(11)
	if order == nil {
		t.Fatal("Expected order 11 to remain active")
	}
	if order.Remaining() != 15 {
		t.Errorf("Expected residual 15, got %f", order.Remaining())
	}

	if ob.ModifyOrder(999, 5, 100) {
		t.Error("Expected modify of unknown id to return false")
	}
}

// TestOrderBook_IOCUnfilled covers an IOC against an empty book: no trade, no rest.
func TestOrderBook_IOCUnfilled(t *testing.T) {
	ob, rec := newTestBook()
	ob.Reset()

	order := newTestOrder(20, models.Sell, models.IOC, 100, 5)
	if err := ob.AddOrder(order); err != nil {
		t.Fatalf("AddOrder failed: %v", err)
	}

	if rec.count() != 0 {
		t.Errorf("Expected no trades, got %d", rec.count())
	}
	if ask := ob.BestAsk(); ask != 0 {
		t.Errorf("Expected best ask 0, got %f", ask)
	}
	if ob.GetOrder(20) != nil {
		t.Error("Expected IOC order not to be indexed")
	}
	if order.Status != models.Cancelled {
		t.Errorf("Expected discarded IOC to be cancelled, got %s", order.Status)
	}
}

// TestOrderBook_DuplicateID covers duplicate-id rejection for resting limits.
func TestOrderBook_DuplicateID(t *testing.T) {
	ob, _ := newTestBook()
	ob.Reset()

	if err := ob.AddOrder(newTestOrder(40, models.Buy, models.Limit, 100, 10)); err != nil {
		t.Fatalf("AddOrder failed: %v", err)
	}
	err := ob.AddOrder(newTestOrder(40, models.Buy, models.Limit, 101, 5))
	if err != ErrDuplicateOrder {
		t.Errorf("Expected ErrDuplicateOrder, got %v", err)
	}
	// The original order is untouched.
	if bid := ob.BestBid(); bid != 100 {
		t.Errorf("Expected best bid 100, got %f", bid)
	}
}

// TestOrderBook_RejectsInvalid covers argument validation.
func TestOrderBook_RejectsInvalid(t *testing.T) {
	ob, _ := newTestBook()
	ob.Reset()

	if err := ob.AddOrder(newTestOrder(41, models.Buy, models.Limit, 100, 0)); err == nil {
		t.Error("Expected zero quantity to be rejected")
	}
	if err := ob.AddOrder(newTestOrder(42, models.Buy, models.Limit, -1, 10)); err == nil {
		t.Error("Expected negative price to be rejected")
	}
	if err := ob.AddOrder(newTestOrder(43, models.Buy, models.Stop, 100, 10)); err != ErrStopOrder {
		t.Errorf("Expected ErrStopOrder, got %v", err)
	}
}

// TestOrderBook_ModifyEquivalentToCancelAdd verifies the modify law:
// modify(id, q, p) behaves like cancel(id) followed by a fresh add, with
// the id preserved.
func TestOrderBook_ModifyEquivalentToCancelAdd(t *testing.T) {
	modified, _ := newTestBook()
	modified.Reset()
	modified.AddOrder(newTestOrder(50, models.Buy, models.Limit, 100, 10))
	modified.ModifyOrder(50, 7, 95)

	reference, _ := newTestBook()
	reference.Reset()
	reference.AddOrder(newTestOrder(50, models.Buy, models.Limit, 100, 10))
	reference.CancelOrder(50)
	reference.AddOrder(newTestOrder(50, models.Buy, models.Limit, 95, 7))

	if modified.BestBid() != reference.BestBid() {
		t.Errorf("Best bid mismatch: modify=%f cancel+add=%f", modified.BestBid(), reference.BestBid())
	}
	mo, ro := modified.GetOrder(50), reference.GetOrder(50)
	if mo == nil || ro == nil {
		t.Fatal("Expected order 50 active in both books")
	}
	if mo.Remaining() != ro.Remaining() || mo.Price != ro.Price {
		t.Errorf("Order mismatch: modify=(%f@%f) cancel+add=(%f@%f)",
			mo.Remaining(), mo.Price, ro.Remaining(), ro.Price)
	}
}

// TestOrderBook_AddCancelIsIdentity verifies that add followed by cancel,
// with no crossing, leaves the book unchanged.
func TestOrderBook_AddCancelIsIdentity(t *testing.T) {
	ob, rec := newTestBook()
	ob.Reset()

	ob.AddOrder(newTestOrder(60, models.Sell, models.Limit, 200, 3))
	beforeBid, beforeAsk := ob.BestBid(), ob.BestAsk()

	ob.AddOrder(newTestOrder(61, models.Sell, models.Limit, 190, 4))
	ob.CancelOrder(61)

	if rec.count() != 0 {
		t.Errorf("Expected no trades, got %d", rec.count())
	}
	if ob.BestBid() != beforeBid || ob.BestAsk() != beforeAsk {
		t.Errorf("Expected book unchanged, got bid=%f ask=%f", ob.BestBid(), ob.BestAsk())
	}
	if ob.RestingCount() != 1 {
		t.Errorf("Expected 1 resting order, got %d", ob.RestingCount())
	}
}

// TestOrderBook_PriceTimePriority verifies FIFO within a level and
// best-price priority across levels.
func TestOrderBook_PriceTimePriority(t *testing.T) {
	ob, rec := newTestBook()
	ob.Reset()

	ob.AddOrder(newTestOrder(70, models.Sell, models.Limit, 101, 5))
	ob.AddOrder(newTestOrder(71, models.Sell, models.Limit, 100, 5))
	ob.AddOrder(newTestOrder(72, models.Sell, models.Limit, 100, 5))

	ob.AddOrder(newTestOrder(73, models.Buy, models.Limit, 101, 12))

	if rec.count() != 3 {
		t.Fatalf("Expected 3 trades, got %d", rec.count())
	}
	// Best price first, then FIFO at 100, then the 101 level.
	assertTrade(t, rec.get(0), 73, 71, 5, 100)
	assertTrade(t, rec.get(1), 73, 72, 5, 100)
	assertTrade(t, rec.get(2), 73, 70, 2, 101)

	if ask := ob.BestAsk(); ask != 101 {
		t.Errorf("Expected best ask 101, got %f", ask)
	}
}

// TestOrderBook_Reset verifies reset clears both sides and the index.
func TestOrderBook_Reset(t *testing.T) {
	ob, _ := newTestBook()

	ob.AddOrder(newTestOrder(80, models.Buy, models.Limit, 100, 10))
	ob.AddOrder(newTestOrder(81, models.Sell, models.Limit, 120, 10))
	ob.Reset()

	if ob.BestBid() != 0 || ob.BestAsk() != 0 {
		t.Errorf("Expected empty book after reset, got bid=%f ask=%f", ob.BestBid(), ob.BestAsk())
	}
	if ob.RestingCount() != 0 {
		t.Errorf("Expected empty index after reset, got %d", ob.RestingCount())
	}
}

// TestOrderBook_Depth verifies aggregated depth ordering.
func TestOrderBook_Depth(t *testing.T) {
	ob, _ := newTestBook()
	ob.Reset()

	for i := 0; i < 5; i++ {
		ob.AddOrder(newTestOrder(int64(90+i), models.Buy, models.Limit, 100-float64(i), 1))
		ob.AddOrder(newTestOrder(int64(95+i), models.Sell, models.Limit, 110+float64(i), 1))
	}

	bids, asks := ob.Depth(3)
	if len(bids) != 3 || len(asks) != 3 {
		t.Fatalf("Expected 3 levels per side, got %d bids %d asks", len(bids), len(asks))
	}
	if bids[0].Price < bids[1].Price {
		t.Error("Bids should be in descending order")
	}
	if asks[0].Price > asks[1].Price {
		t.Error("Asks should be in ascending order")
	}
	if bids[0].Price != 100 || asks[0].Price != 110 {
		t.Errorf("Expected top of book 100/110, got %f/%f", bids[0].Price, asks[0].Price)
	}
}

// TestOrderBook_WorkerSweepResolvesCross exercises the re-examination
// pipeline: two crossing orders inserted without an admission-time match
// are resolved by a worker popping the queued entry.
func TestOrderBook_WorkerSweepResolvesCross(t *testing.T) {
	ob, rec := newTestBook()

	buy := newTestOrder(100, models.Buy, models.Limit, 105, 10)
	sell := newTestOrder(101, models.Sell, models.Limit, 100, 10)

	ob.mu.Lock()
	ob.insertLocked(buy)
	ob.insertLocked(sell)
	ob.mu.Unlock()
	ob.enqueue(sell)

	ob.StartWorkers()
	defer ob.StopWorkers()

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if rec.count() != 1 {
		t.Fatalf("Expected worker sweep to produce 1 trade, got %d", rec.count())
	}
	// The sell is the re-examined aggressor; it trades at the resting bid.
	assertTrade(t, rec.get(0), 100, 101, 10, 105)
	if ob.BestBid() != 0 || ob.BestAsk() != 0 {
		t.Errorf("Expected cleared book, got bid=%f ask=%f", ob.BestBid(), ob.BestAsk())
	}
}

// TestOrderBook_WorkerToleratesStaleEntries verifies that queued entries for
// cancelled or reset orders are dropped without touching the book.
func TestOrderBook_WorkerToleratesStaleEntries(t *testing.T) {
	ob, rec := newTestBook()
	ob.Reset()

	ob.AddOrder(newTestOrder(110, models.Buy, models.Limit, 100, 10))
	ob.CancelOrder(110) // queue still holds the entry

	ob.AddOrder(newTestOrder(111, models.Sell, models.Limit, 120, 5))
	ob.Reset() // orphans the queued sell entry too

	ob.AddOrder(newTestOrder(112, models.Sell, models.Limit, 130, 5))

	ob.StartWorkers()
	time.Sleep(50 * time.Millisecond)
	ob.StopWorkers()

	if rec.count() != 0 {
		t.Errorf("Expected no trades from stale entries, got %d", rec.count())
	}
	if ask := ob.BestAsk(); ask != 130 {
		t.Errorf("Expected best ask 130, got %f", ask)
	}
	if ob.RestingCount() != 1 {
		t.Errorf("Expected 1 resting order, got %d", ob.RestingCount())
	}
}

// TestOrderBook_ConcurrentAccess verifies thread safety of concurrent adds.
func TestOrderBook_ConcurrentAccess(t *testing.T) {
	ob, _ := newTestBook()
	done := make(chan bool)

	for i := 0; i < 100; i++ {
		go func(id int) {
			ob.AddOrder(newTestOrder(int64(id+1), models.Buy, models.Limit, 50000+float64(id), 1))
			done <- true
		}(i)
	}
	for i := 0; i < 100; i++ {
		<-done
	}

	if count := ob.RestingCount(); count != 100 {
		t.Errorf("Expected 100 resting orders, got %d", count)
	}
}
