package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"matching-engine/internal/config"
	"matching-engine/internal/models"
)

// QuoteCache provides a fast read path for best-of-book and recent trades
// using Redis.
//
// CACHING STRATEGY:
//   - Ticker (best bid/ask): 100ms TTL for fast price lookups
//   - Recent trades: capped list with 5s TTL for the feed
//
// The engine remains the source of truth; every key expires quickly and a
// miss falls through to a locked best-of-book read.
type QuoteCache struct {
	client *redis.Client
	ctx    context.Context
	symbol string
}

// Ticker is the cached top-of-book quote.
type Ticker struct {
	Symbol    string    `json:"symbol"`
	BestBid   float64   `json:"best_bid"`
	BestAsk   float64   `json:"best_ask"`
	Timestamp time.Time `json:"timestamp"`
}

// NewQuoteCache initializes a Redis connection.
func NewQuoteCache(cfg *config.Config) (*QuoteCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &QuoteCache{
		client: client,
		ctx:    ctx,
		symbol: cfg.Symbol,
	}, nil
}

// Close closes the Redis connection.
func (c *QuoteCache) Close() error {
	return c.client.Close()
}

// SetTicker caches the current best bid and ask.
func (c *QuoteCache) SetTicker(bid, ask float64) error {
	key := "book:ticker:" + c.symbol

	pipe := c.client.Pipeline()
	pipe.HSet(c.ctx, key, map[string]interface{}{
		"best_bid": bid,
		"best_ask": ask,
	})
	pipe.Expire(c.ctx, key, 100*time.Millisecond)
	_, err := pipe.Exec(c.ctx)
	return err
}

// GetTicker retrieves the cached quote. Returns nil without error on a miss.
func (c *QuoteCache) GetTicker() (*Ticker, error) {
	key := "book:ticker:" + c.symbol
	result, err := c.client.HGetAll(c.ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}

	return &Ticker{
		Symbol:    c.symbol,
		BestBid:   parseFloat(result["best_bid"]),
		BestAsk:   parseFloat(result["best_ask"]),
		Timestamp: time.Now(),
	}, nil
}

// AddRecentTrade adds a trade to the recent trades feed.
func (c *QuoteCache) AddRecentTrade(trade *models.Trade) error {
	key := "trades:recent:" + c.symbol

	data, err := json.Marshal(trade)
	if err != nil {
		return err
	}

	pipe := c.client.Pipeline()
	pipe.LPush(c.ctx, key, data)
	pipe.LTrim(c.ctx, key, 0, 99) // Keep last 100 trades
	pipe.Expire(c.ctx, key, 5*time.Second)
	_, err = pipe.Exec(c.ctx)
	return err
}

// GetRecentTrades retrieves the most recent trades.
func (c *QuoteCache) GetRecentTrades(limit int64) ([]models.Trade, error) {
	key := "trades:recent:" + c.symbol
	values, err := c.client.LRange(c.ctx, key, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	trades := make([]models.Trade, 0, len(values))
	for _, v := range values {
		var trade models.Trade
		if err := json.Unmarshal([]byte(v), &trade); err != nil {
			continue
		}
		trades = append(trades, trade)
	}

	return trades, nil
}

// parseFloat safely parses a string to float64.
func parseFloat(s string) float64 {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return 0
}
