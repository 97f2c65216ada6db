package engine

import (
	"time"

	"matching-engine/internal/models"
)

// matchLocked walks the opposing side in best-price / FIFO order and trades
// until the incoming order is exhausted, the opposing side empties, or a
// limit order no longer crosses. Caller holds the book lock.
func (ob *OrderBook) matchLocked(incoming *models.Order) {
	opposite := ob.asks
	if incoming.Side == models.Sell {
		opposite = ob.bids
	}

	for incoming.Remaining() > 0 {
		level := opposite.best()
		if level == nil {
			return
		}
		// Only limit orders respect the price cross; market and IOC sweep
		// whatever liquidity is available.
		if incoming.Type == models.Limit && !crosses(incoming, level.price) {
			return
		}

		front := level.orders.Front()
		if front == nil {
			opposite.remove(level.price)
			continue
		}
		resting := front.Value.(*models.Order)
		if resting.Remaining() <= 0 {
			// Already drained elsewhere; evict and keep walking.
			level.orders.Remove(front)
			delete(ob.active, resting.ID)
			if level.empty() {
				opposite.remove(level.price)
			}
			continue
		}

		qty := incoming.Remaining()
		if resting.Remaining() < qty {
			qty = resting.Remaining()
		}
		if qty <= 0 {
			return
		}

		ob.executeTrade(incoming, resting, qty, level.price)

		if resting.Remaining() == 0 {
			delete(ob.active, resting.ID)
			level.orders.Remove(front)
			if level.empty() {
				opposite.remove(level.price)
			}
		}
		if incoming.Remaining() == 0 {
			// A previously rested limit being re-examined still sits in its
			// own level; unlink it now that it is spent.
			if entry, exists := ob.active[incoming.ID]; exists && entry.order == incoming {
				ob.unlinkLocked(entry)
			}
		}
	}
}

// crosses reports whether a limit order's price reaches the opposing level.
func crosses(incoming *models.Order, oppositePrice float64) bool {
	if incoming.Side == models.Buy {
		return incoming.Price >= oppositePrice
	}
	return incoming.Price <= oppositePrice
}

// executeTrade fills both orders and emits the trade at the resting side's
// price. Caller holds the book lock.
func (ob *OrderBook) executeTrade(incoming, resting *models.Order, qty, price float64) {
	incoming.Fill(qty)
	resting.Fill(qty)

	trade := &models.Trade{
		Price:     price,
		Quantity:  qty,
		CreatedAt: time.Now(),
	}
	if incoming.Side == models.Buy {
		trade.BuyOrderID = incoming.ID
		trade.SellOrderID = resting.ID
	} else {
		trade.BuyOrderID = resting.ID
		trade.SellOrderID = incoming.ID
	}

	if ob.onTrade != nil {
		ob.onTrade(trade)
	}
}
