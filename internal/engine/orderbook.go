package engine

import (
	"container/list"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"matching-engine/internal/models"
)

var (
	// ErrDuplicateOrder is returned when an order id is already resting in the book.
	ErrDuplicateOrder = errors.New("order id already active")

	// ErrStopOrder is returned when a stop order is submitted directly;
	// stop orders are admitted through the StopScheduler.
	ErrStopOrder = errors.New("stop orders must be submitted to the stop scheduler")
)

// bookEntry tracks where a resting limit order lives so cancel and modify
// are O(log levels) instead of a side scan.
type bookEntry struct {
	order *models.Order
	level *priceLevel
	elem  *list.Element
}

// Config controls the ingress pipeline dimensions.
type Config struct {
	// Workers is the number of consumer goroutines per side.
	Workers int
	// QueueCapacity bounds each side's re-match queue.
	QueueCapacity int
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() *Config {
	return &Config{
		Workers:       4,
		QueueCapacity: 4096,
	}
}

// OrderBook is a single-symbol price-time priority matching engine.
//
// One mutex guards both side books and the active-order index so that
// matching, best-of-book reads and add/cancel/modify observe a consistent
// state. The critical section is short; the engine is single-symbol.
//
// Resting limit orders are additionally pushed onto a per-side queue and
// re-examined by consumer workers. The admission-time match already ran
// under the lock, so the worker sweep only catches crosses that emerged
// from concurrent admissions; it tolerates orders that were filled,
// cancelled or orphaned by Reset in the meantime.
type OrderBook struct {
	mu     sync.Mutex
	bids   *bookSide
	asks   *bookSide
	active map[int64]*bookEntry

	buyQueue  chan *models.Order
	sellQueue chan *models.Order

	running atomic.Bool
	workers int
	wg      sync.WaitGroup

	onTrade func(*models.Trade)
}

// NewOrderBook creates an order book with the default pipeline configuration.
func NewOrderBook() *OrderBook {
	return NewOrderBookWithConfig(DefaultConfig())
}

// NewOrderBookWithConfig creates an order book with custom pipeline dimensions.
func NewOrderBookWithConfig(cfg *Config) *OrderBook {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 4096
	}
	return &OrderBook{
		bids:      newBookSide(true),
		asks:      newBookSide(false),
		active:    make(map[int64]*bookEntry),
		buyQueue:  make(chan *models.Order, cfg.QueueCapacity),
		sellQueue: make(chan *models.Order, cfg.QueueCapacity),
		workers:   cfg.Workers,
	}
}

// SetTradeCallback registers the trade sink. The callback runs inside the
// engine's critical section; keep it short or hand off to a channel.
func (ob *OrderBook) SetTradeCallback(cb func(*models.Trade)) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.onTrade = cb
}

// AddOrder admits an order.
//
// Market and IOC orders match synchronously and never rest; any residual is
// discarded. Limit orders rest at the tail of their price level, match
// against the opposing side under the same lock, and are then enqueued for
// the worker re-match sweep. Stop orders are rejected here; they are routed
// through the StopScheduler.
func (ob *OrderBook) AddOrder(order *models.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}
	if order.Status == "" {
		order.Status = models.Open
	}

	switch order.Type {
	case models.Stop:
		return ErrStopOrder

	case models.Market, models.IOC:
		ob.mu.Lock()
		if _, exists := ob.active[order.ID]; exists {
			ob.mu.Unlock()
			return ErrDuplicateOrder
		}
		ob.matchLocked(order)
		ob.mu.Unlock()
		if order.Remaining() > 0 {
			log.Printf("⚠️ %s order %d not fully filled, residual %.4f discarded",
				order.Type, order.ID, order.Remaining())
			order.Filled = order.Quantity
			order.Status = models.Cancelled
		}
		return nil

	case models.Limit:
		ob.mu.Lock()
		if _, exists := ob.active[order.ID]; exists {
			ob.mu.Unlock()
			return ErrDuplicateOrder
		}
		ob.insertLocked(order)
		ob.matchLocked(order)
		ob.mu.Unlock()
		ob.enqueue(order)
		return nil

	default:
		return errors.New("unknown order type")
	}
}

// insertLocked appends a limit order to the tail of its price level and
// indexes it. Caller holds the lock.
func (ob *OrderBook) insertLocked(order *models.Order) {
	side := ob.sideOf(order.Side)
	level := side.getOrCreate(order.Price)
	elem := level.orders.PushBack(order)
	ob.active[order.ID] = &bookEntry{order: order, level: level, elem: elem}
}

// CancelOrder removes a resting limit order. Returns false when the id is
// not active; the book is left untouched in that case.
func (ob *OrderBook) CancelOrder(orderID int64) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	entry, exists := ob.active[orderID]
	if !exists {
		return false
	}

	ob.unlinkLocked(entry)
	entry.order.Status = models.Cancelled
	log.Printf("✅ Order cancelled: ID=%d, remaining=%.4f", orderID, entry.order.Remaining())
	return true
}

// ModifyOrder rewrites a resting order's price and quantity. The order is
// removed from its current level and reinserted at the tail of the level
// for newPrice, so FIFO priority is lost. Returns false when the id is not
// active or the new values are invalid.
func (ob *OrderBook) ModifyOrder(orderID int64, newQty, newPrice float64) bool {
	if newQty <= 0 || newPrice < 0 {
		return false
	}

	ob.mu.Lock()
	entry, exists := ob.active[orderID]
	if !exists {
		ob.mu.Unlock()
		return false
	}

	ob.unlinkLocked(entry)

	order := entry.order
	order.Price = newPrice
	order.Quantity = newQty
	order.Filled = 0
	order.Status = models.Open

	ob.insertLocked(order)
	ob.matchLocked(order)
	ob.mu.Unlock()

	ob.enqueue(order)
	log.Printf("✅ Order modified: ID=%d, qty=%.4f, price=%.4f", orderID, newQty, newPrice)
	return true
}

// unlinkLocked detaches an entry from its level and the index, removing the
// level when it empties. Caller holds the lock.
func (ob *OrderBook) unlinkLocked(entry *bookEntry) {
	entry.level.orders.Remove(entry.elem)
	if entry.level.empty() {
		ob.sideOf(entry.order.Side).remove(entry.level.price)
	}
	delete(ob.active, entry.order.ID)
}

// GetOrder returns the resting limit order for id, or nil. Market and IOC
// orders are never indexed.
func (ob *OrderBook) GetOrder(orderID int64) *models.Order {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	if entry, exists := ob.active[orderID]; exists {
		return entry.order
	}
	return nil
}

// BestBid returns the highest resting buy price, 0 when the bid side is empty.
func (ob *OrderBook) BestBid() float64 {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	if level := ob.bids.best(); level != nil {
		return level.price
	}
	return 0
}

// BestAsk returns the lowest resting sell price, 0 when the ask side is empty.
func (ob *OrderBook) BestAsk() float64 {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	if level := ob.asks.best(); level != nil {
		return level.price
	}
	return 0
}

// Depth returns up to n aggregated levels per side, best-first.
func (ob *OrderBook) Depth(n int) (bids, asks []BookLevel) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.bids.levels(n), ob.asks.levels(n)
}

// RestingCount returns the number of indexed resting orders.
func (ob *OrderBook) RestingCount() int {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return len(ob.active)
}

// QueueDepths reports the current backlog of each side's re-match queue.
func (ob *OrderBook) QueueDepths() (buy, sell int) {
	return len(ob.buyQueue), len(ob.sellQueue)
}

// Reset empties both side books and the active index. Queued re-match
// entries are left in place; workers drop them once the identity check
// fails against the fresh index.
func (ob *OrderBook) Reset() {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.bids.clear()
	ob.asks.clear()
	ob.active = make(map[int64]*bookEntry)
	log.Println("🔄 Order book reset")
}

func (ob *OrderBook) sideOf(s models.Side) *bookSide {
	if s == models.Buy {
		return ob.bids
	}
	return ob.asks
}

// enqueue hands a resting limit order to its side's re-match queue. The
// push is non-blocking: the admission-time match already ran, so a full
// queue only costs a redundant sweep.
func (ob *OrderBook) enqueue(order *models.Order) {
	q := ob.buyQueue
	if order.Side == models.Sell {
		q = ob.sellQueue
	}
	select {
	case q <- order:
	default:
		log.Printf("⚠️ %s re-match queue full, order %d not enqueued", order.Side, order.ID)
	}
}

// StartWorkers launches the per-side consumer goroutines.
func (ob *OrderBook) StartWorkers() {
	if !ob.running.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < ob.workers; i++ {
		ob.wg.Add(2)
		go ob.consume(ob.buyQueue)
		go ob.consume(ob.sellQueue)
	}
	log.Printf("✅ Started %d buy and %d sell workers", ob.workers, ob.workers)
}

// StopWorkers signals the consumers to exit and waits for them. In-flight
// matches complete before a worker observes the flag.
func (ob *OrderBook) StopWorkers() {
	if !ob.running.CompareAndSwap(true, false) {
		return
	}
	ob.wg.Wait()
	log.Println("🛑 Workers stopped")
}

// consume is the worker loop: non-blocking pop, short sleep when idle,
// exit at the next iteration after StopWorkers.
func (ob *OrderBook) consume(q chan *models.Order) {
	defer ob.wg.Done()
	for ob.running.Load() {
		select {
		case order := <-q:
			ob.sweep(order)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

// sweep re-runs the match for a previously rested limit order. The entry
// may be stale: filled, cancelled, modified or wiped by Reset since it was
// enqueued. The identity check against the index drops those.
func (ob *OrderBook) sweep(order *models.Order) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	entry, exists := ob.active[order.ID]
	if !exists || entry.order != order {
		return
	}
	ob.matchLocked(order)
}
