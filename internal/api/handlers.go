package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"matching-engine/internal/cache"
	"matching-engine/internal/engine"
	"matching-engine/internal/metrics"
	"matching-engine/internal/models"
)

type Handler struct {
	book    *engine.OrderBook
	stops   *engine.StopScheduler
	cache   *cache.QuoteCache
	metrics *metrics.Metrics
	symbol  string
}

func NewHandler(book *engine.OrderBook, stops *engine.StopScheduler, quoteCache *cache.QuoteCache, m *metrics.Metrics, symbol string) *Handler {
	return &Handler{
		book:    book,
		stops:   stops,
		cache:   quoteCache,
		metrics: m,
		symbol:  symbol,
	}
}

// PlaceOrderRequest admits a limit, market or IOC order. Order ids are
// assigned by the caller and must be unique for the engine's lifetime.
type PlaceOrderRequest struct {
	ID       int64   `json:"id" binding:"required"`
	Side     string  `json:"side" binding:"required"`
	Type     string  `json:"type" binding:"required"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity" binding:"required"`
}

// PlaceStopOrderRequest admits a stop order to the scheduler.
type PlaceStopOrderRequest struct {
	ID        int64   `json:"id" binding:"required"`
	Side      string  `json:"side" binding:"required"`
	Price     float64 `json:"price"`
	StopPrice float64 `json:"stop_price" binding:"required"`
	Quantity  float64 `json:"quantity" binding:"required"`
}

// ModifyOrderRequest rewrites a resting order's price and quantity.
type ModifyOrderRequest struct {
	Quantity float64 `json:"quantity" binding:"required"`
	Price    float64 `json:"price" binding:"required"`
}

func (h *Handler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	order := &models.Order{
		ID:        req.ID,
		Side:      models.Side(req.Side),
		Type:      models.OrderType(req.Type),
		Price:     req.Price,
		Quantity:  req.Quantity,
		Status:    models.Open,
		CreatedAt: time.Now(),
	}

	start := time.Now()
	err := h.book.AddOrder(order)
	if err != nil {
		h.metrics.RecordOrderRejected(rejectionReason(err))
		switch {
		case errors.Is(err, engine.ErrDuplicateOrder):
			AbortWithError(c, http.StatusConflict, ErrCodeDuplicateOrder, err.Error())
		case errors.Is(err, engine.ErrStopOrder):
			AbortWithError(c, http.StatusBadRequest, ErrCodeWrongOrderType,
				"stop orders are submitted via /api/orders/stop")
		default:
			AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		}
		return
	}
	h.metrics.RecordOrderPlaced(string(order.Type), time.Since(start).Seconds())

	h.refreshTicker()
	c.JSON(http.StatusOK, order)
}

func (h *Handler) PlaceStopOrder(c *gin.Context) {
	var req PlaceStopOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	order := &models.Order{
		ID:        req.ID,
		Side:      models.Side(req.Side),
		Type:      models.Stop,
		Price:     req.Price,
		StopPrice: req.StopPrice,
		Quantity:  req.Quantity,
		Status:    models.Open,
		CreatedAt: time.Now(),
	}

	if err := h.stops.AddStop(order); err != nil {
		h.metrics.RecordOrderRejected(rejectionReason(err))
		if errors.Is(err, engine.ErrDuplicateStop) {
			AbortWithError(c, http.StatusConflict, ErrCodeDuplicateStop, err.Error())
			return
		}
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	h.metrics.RecordOrderPlaced(string(models.Stop), 0)
	h.metrics.StopsPending.Set(float64(h.stops.Pending()))

	c.JSON(http.StatusOK, order)
}

func (h *Handler) CancelOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid order id")
		return
	}

	if !h.book.CancelOrder(orderID) {
		AbortWithError(c, http.StatusNotFound, ErrCodeOrderNotFound, "order not found")
		return
	}
	h.metrics.OrdersCancelled.Inc()

	h.refreshTicker()
	c.JSON(http.StatusOK, gin.H{
		"message":  "order cancelled",
		"order_id": orderID,
	})
}

func (h *Handler) ModifyOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid order id")
		return
	}

	var req ModifyOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	if !h.book.ModifyOrder(orderID, req.Quantity, req.Price) {
		AbortWithError(c, http.StatusNotFound, ErrCodeOrderNotFound, "order not found or new values invalid")
		return
	}
	h.metrics.OrdersModified.Inc()

	h.refreshTicker()
	c.JSON(http.StatusOK, gin.H{
		"message":  "order modified",
		"order_id": orderID,
		"quantity": req.Quantity,
		"price":    req.Price,
	})
}

func (h *Handler) GetOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid order id")
		return
	}

	order := h.book.GetOrder(orderID)
	if order == nil {
		AbortWithError(c, http.StatusNotFound, ErrCodeOrderNotFound, "order not found")
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) GetBook(c *gin.Context) {
	levels := 20
	if s := c.Query("levels"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			levels = n
		}
	}

	bids, asks := h.book.Depth(levels)
	c.JSON(http.StatusOK, gin.H{
		"symbol": h.symbol,
		"bids":   bids,
		"asks":   asks,
	})
}

func (h *Handler) GetTicker(c *gin.Context) {
	if h.cache != nil {
		if ticker, err := h.cache.GetTicker(); err == nil && ticker != nil {
			h.metrics.RecordCacheHit()
			c.JSON(http.StatusOK, ticker)
			return
		}
		h.metrics.RecordCacheMiss()
	}

	bid, ask := h.book.BestBid(), h.book.BestAsk()
	if h.cache != nil {
		h.cache.SetTicker(bid, ask)
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":   h.symbol,
		"best_bid": bid,
		"best_ask": ask,
	})
}

func (h *Handler) GetRecentTrades(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusOK, gin.H{"symbol": h.symbol, "trades": []models.Trade{}})
		return
	}

	limit := int64(50)
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}

	trades, err := h.cache.GetRecentTrades(limit)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": h.symbol, "trades": trades})
}

func (h *Handler) GetStops(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"pending": h.stops.Pending(),
	})
}

func (h *Handler) Reset(c *gin.Context) {
	h.book.Reset()
	h.refreshTicker()
	c.JSON(http.StatusOK, gin.H{"message": "order book reset"})
}

// refreshTicker pushes the current best-of-book into the quote cache so the
// read path stays warm after a mutation.
func (h *Handler) refreshTicker() {
	if h.cache == nil {
		return
	}
	h.cache.SetTicker(h.book.BestBid(), h.book.BestAsk())
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, engine.ErrDuplicateOrder):
		return "duplicate_id"
	case errors.Is(err, engine.ErrDuplicateStop):
		return "duplicate_stop"
	case errors.Is(err, engine.ErrStopOrder):
		return "wrong_endpoint"
	default:
		return "invalid_argument"
	}
}
