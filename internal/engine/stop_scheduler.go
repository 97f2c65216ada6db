package engine

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"matching-engine/internal/models"
)

// ErrDuplicateStop is returned when a stop order id is already pending.
var ErrDuplicateStop = errors.New("stop order id already pending")

// StopScheduler holds pending stop orders and promotes them to market
// orders once the book reaches their trigger price.
//
// A buy stop triggers when the best ask rises to or above the stop price; a
// sell stop triggers when the best bid falls to or below it. Either way a
// live quote is required: the 0 returned by an empty side means "no quote",
// not a price, and must not fire sell stops on an empty book.
//
// The pending table has its own mutex, independent of the book lock.
// Triggered orders are collected under the table lock and submitted to the
// engine only after it is released.
type StopScheduler struct {
	mu      sync.Mutex
	pending map[int64]*models.Order

	book     *OrderBook
	interval time.Duration

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	onTrigger func(*models.Order)
}

// NewStopScheduler creates a scheduler polling the book every interval.
func NewStopScheduler(book *OrderBook, interval time.Duration) *StopScheduler {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &StopScheduler{
		pending:  make(map[int64]*models.Order),
		book:     book,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// SetTriggerCallback registers an observer invoked after a stop order has
// been promoted and submitted.
func (s *StopScheduler) SetTriggerCallback(cb func(*models.Order)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTrigger = cb
}

// AddStop admits a stop order to the pending table.
func (s *StopScheduler) AddStop(order *models.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}
	if order.Type != models.Stop {
		return errors.New("order type must be 'stop'")
	}
	if order.Status == "" {
		order.Status = models.Open
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pending[order.ID]; exists {
		return ErrDuplicateStop
	}
	s.pending[order.ID] = order
	log.Printf("✅ Stop order added: ID=%d, side=%s, stop=%.4f", order.ID, order.Side, order.StopPrice)
	return nil
}

// Pending returns the number of stop orders awaiting their trigger.
func (s *StopScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Start launches the polling goroutine.
func (s *StopScheduler) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go s.run()
	log.Printf("✅ Stop scheduler started (poll every %v)", s.interval)
}

// Stop signals the poller to exit at its next iteration and waits for it.
func (s *StopScheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.done)
	s.wg.Wait()
	log.Println("🛑 Stop scheduler stopped")
}

func (s *StopScheduler) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

// poll snapshots best-of-book, collects the stops whose trigger condition
// holds, then submits them as market orders outside the table lock.
func (s *StopScheduler) poll() {
	bestBid := s.book.BestBid()
	bestAsk := s.book.BestAsk()

	s.mu.Lock()
	var triggered []*models.Order
	for id, order := range s.pending {
		if s.shouldTrigger(order, bestBid, bestAsk) {
			triggered = append(triggered, order)
			delete(s.pending, id)
		}
	}
	cb := s.onTrigger
	s.mu.Unlock()

	for _, order := range triggered {
		log.Printf("⚡ Stop order %d triggered, submitting as market %s", order.ID, order.Side)
		order.Type = models.Market
		if err := s.book.AddOrder(order); err != nil {
			log.Printf("⚠️ Triggered stop order %d rejected: %v", order.ID, err)
			continue
		}
		if cb != nil {
			cb(order)
		}
	}
}

func (s *StopScheduler) shouldTrigger(order *models.Order, bestBid, bestAsk float64) bool {
	if order.Side == models.Buy {
		return bestAsk > 0 && bestAsk >= order.StopPrice
	}
	return bestBid > 0 && bestBid <= order.StopPrice
}
