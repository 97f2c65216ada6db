package engine

import (
	"container/list"

	"github.com/google/btree"

	"matching-engine/internal/models"
)

// priceLevel is the FIFO queue of resting orders sharing one price on one side.
// Arrival order is preserved; fully filled orders are evicted immediately.
type priceLevel struct {
	price  float64
	orders *list.List // of *models.Order
}

func newPriceLevel(price float64) *priceLevel {
	return &priceLevel{
		price:  price,
		orders: list.New(),
	}
}

func (l *priceLevel) Less(than btree.Item) bool {
	return l.price < than.(*priceLevel).price
}

func (l *priceLevel) empty() bool {
	return l.orders.Len() == 0
}

// volume sums the residuals resting at this level.
func (l *priceLevel) volume() float64 {
	var v float64
	for e := l.orders.Front(); e != nil; e = e.Next() {
		v += e.Value.(*models.Order).Remaining()
	}
	return v
}

// bookSide is one price-indexed half of the book. Levels are kept in a btree
// keyed by price; the bid flag decides which end of the tree is "best".
type bookSide struct {
	tree *btree.BTree
	bid  bool
}

func newBookSide(bid bool) *bookSide {
	return &bookSide{
		tree: btree.New(32),
		bid:  bid,
	}
}

func (s *bookSide) getOrCreate(price float64) *priceLevel {
	if item := s.tree.Get(&priceLevel{price: price}); item != nil {
		return item.(*priceLevel)
	}
	level := newPriceLevel(price)
	s.tree.ReplaceOrInsert(level)
	return level
}

func (s *bookSide) get(price float64) *priceLevel {
	if item := s.tree.Get(&priceLevel{price: price}); item != nil {
		return item.(*priceLevel)
	}
	return nil
}

func (s *bookSide) remove(price float64) {
	s.tree.Delete(&priceLevel{price: price})
}

// best returns the top-of-book level: highest price for bids, lowest for asks.
func (s *bookSide) best() *priceLevel {
	var item btree.Item
	if s.bid {
		item = s.tree.Max()
	} else {
		item = s.tree.Min()
	}
	if item == nil {
		return nil
	}
	return item.(*priceLevel)
}

func (s *bookSide) empty() bool {
	return s.tree.Len() == 0
}

func (s *bookSide) clear() {
	s.tree.Clear(false)
}

// levels walks the side best-first, collecting up to n aggregated levels.
func (s *bookSide) levels(n int) []BookLevel {
	out := make([]BookLevel, 0, n)
	collect := func(item btree.Item) bool {
		level := item.(*priceLevel)
		out = append(out, BookLevel{
			Price:  level.price,
			Volume: level.volume(),
			Count:  level.orders.Len(),
		})
		return len(out) < n
	}
	if s.bid {
		s.tree.Descend(collect)
	} else {
		s.tree.Ascend(collect)
	}
	return out
}

// BookLevel is an aggregated view of one price level.
type BookLevel struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	Count  int     `json:"count"`
}
