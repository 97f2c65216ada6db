package models

import (
	"errors"
	"time"
)

// Trade records one match between a taker and a resting order.
// Price is always the resting (passive) side's price.
type Trade struct {
	BuyOrderID  int64     `json:"buy_order_id"`
	SellOrderID int64     `json:"sell_order_id"`
	Price       float64   `json:"price"`
	Quantity    float64   `json:"quantity"`
	CreatedAt   time.Time `json:"created_at"`
}

func (t *Trade) Validate() error {
	if t.BuyOrderID <= 0 {
		return errors.New("buy_order_id must be greater than 0")
	}
	if t.SellOrderID <= 0 {
		return errors.New("sell_order_id must be greater than 0")
	}
	if t.BuyOrderID == t.SellOrderID {
		return errors.New("buy_order_id and sell_order_id must be different")
	}
	if t.Price < 0 {
		return errors.New("price cannot be negative")
	}
	if t.Quantity <= 0 {
		return errors.New("quantity must be greater than 0")
	}
	return nil
}
