package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"matching-engine/internal/cache"
	"matching-engine/internal/engine"
	"matching-engine/internal/metrics"
	"matching-engine/internal/middleware"
	"matching-engine/internal/ws"
)

// RouterConfig bundles the collaborators the HTTP surface exposes.
type RouterConfig struct {
	Book       *engine.OrderBook
	Stops      *engine.StopScheduler
	Cache      *cache.QuoteCache
	Hub        *ws.Hub
	Metrics    *metrics.Metrics
	Symbol     string
	AuthSecret string
}

// RegisterRoutes wires the API onto a gin engine. Market data is public;
// order mutation sits behind JWT auth and the rate limiter.
func RegisterRoutes(r *gin.Engine, cfg *RouterConfig) *middleware.AuthMiddleware {
	authConfig := middleware.DefaultAuthConfig()
	if cfg.AuthSecret != "" {
		authConfig.SecretKey = cfg.AuthSecret
	}
	authMiddleware := middleware.NewAuthMiddleware(authConfig)
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())

	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware())
	r.Use(metricsMiddleware(cfg.Metrics))

	h := NewHandler(cfg.Book, cfg.Stops, cfg.Cache, cfg.Metrics, cfg.Symbol)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/book", h.GetBook)
		api.GET("/ticker", h.GetTicker)
		api.GET("/trades", h.GetRecentTrades)
		api.GET("/stops", h.GetStops)

		protected := api.Group("")
		protected.Use(authMiddleware.GinMiddleware())
		protected.Use(rateLimiter.GinMiddleware())
		{
			protected.POST("/orders", h.PlaceOrder)
			protected.POST("/orders/stop", h.PlaceStopOrder)
			protected.GET("/orders/:id", h.GetOrder)
			protected.PUT("/orders/:id", h.ModifyOrder)
			protected.DELETE("/orders/:id", h.CancelOrder)
			protected.POST("/admin/reset", h.Reset)
		}
	}

	if cfg.Hub != nil {
		wsHandler := ws.NewHandler(cfg.Hub)
		r.GET("/ws", wsHandler.HandleUpgrade)
		r.GET("/ws/stats", wsHandler.HandleStats)
	}

	return authMiddleware
}

// metricsMiddleware records request counters and latency.
func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.RecordHTTPRequest(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(c.Writer.Status()),
			time.Since(start).Seconds(),
		)
	}
}
