package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"matching-engine/internal/api"
	"matching-engine/internal/cache"
	"matching-engine/internal/config"
	"matching-engine/internal/engine"
	"matching-engine/internal/messaging"
	"matching-engine/internal/metrics"
	"matching-engine/internal/models"
	"matching-engine/internal/ws"
)

func main() {
	cfg := config.Load()

	book := engine.NewOrderBookWithConfig(&engine.Config{
		Workers:       cfg.WorkerCount,
		QueueCapacity: cfg.QueueCapacity,
	})
	scheduler := engine.NewStopScheduler(book, cfg.StopPollInterval)
	appMetrics := metrics.NewMetrics()

	var quoteCache *cache.QuoteCache
	quoteCache, err := cache.NewQuoteCache(cfg)
	if err != nil {
		log.Printf("⚠️ Redis cache not available: %v", err)
		quoteCache = nil
	} else {
		log.Println("✅ Redis cache connected")
		defer quoteCache.Close()
	}

	var publisher *messaging.Publisher
	publisher, err = messaging.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange)
	if err != nil {
		log.Printf("⚠️ RabbitMQ publisher not available: %v", err)
		publisher = nil
	} else {
		log.Println("✅ RabbitMQ publisher connected")
		defer publisher.Close()
	}

	var wsHub *ws.Hub
	if cfg.WSEnabled {
		wsHub = ws.NewHub(cfg.Symbol)
		go wsHub.Run()
		log.Println("✅ WebSocket hub started")
	}

	// The trade callback runs inside the engine's critical section; hand
	// trades to a buffered channel and do the slow fan-out outside the lock.
	// The channel preserves emission order, so per-match grouping survives.
	tradeSink := make(chan *models.Trade, 1024)
	book.SetTradeCallback(func(trade *models.Trade) {
		appMetrics.RecordTrade(trade.Quantity)
		select {
		case tradeSink <- trade:
		default:
			log.Printf("⚠️ Trade sink backlogged, dropping fan-out for buy=%d sell=%d",
				trade.BuyOrderID, trade.SellOrderID)
		}
	})
	sinkDone := make(chan struct{})
	go func() {
		defer close(sinkDone)
		for trade := range tradeSink {
			log.Printf("💱 Trade executed: buy=%d sell=%d qty=%.4f price=%.4f",
				trade.BuyOrderID, trade.SellOrderID, trade.Quantity, trade.Price)
			if wsHub != nil {
				wsHub.BroadcastTrade(trade)
				wsHub.BroadcastTicker(book.BestBid(), book.BestAsk())
			}
			if quoteCache != nil {
				quoteCache.AddRecentTrade(trade)
				quoteCache.SetTicker(book.BestBid(), book.BestAsk())
			}
			if publisher != nil {
				publisher.Publish(messaging.RouteTradeExecuted, trade)
				appMetrics.MQMessagesPublished.WithLabelValues(messaging.RouteTradeExecuted).Inc()
			}
		}
	}()

	scheduler.SetTriggerCallback(func(order *models.Order) {
		appMetrics.RecordStopTriggered()
		appMetrics.StopsPending.Set(float64(scheduler.Pending()))
		if publisher != nil {
			publisher.Publish(messaging.RouteStopTriggered, order)
			appMetrics.MQMessagesPublished.WithLabelValues(messaging.RouteStopTriggered).Inc()
		}
	})

	book.StartWorkers()
	scheduler.Start()

	// Periodic gauge refresh for the ingress pipeline.
	gaugeDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gaugeDone:
				return
			case <-ticker.C:
				buy, sell := book.QueueDepths()
				appMetrics.QueueDepth.WithLabelValues("buy").Set(float64(buy))
				appMetrics.QueueDepth.WithLabelValues("sell").Set(float64(sell))
				appMetrics.RestingOrders.Set(float64(book.RestingCount()))
				appMetrics.StopsPending.Set(float64(scheduler.Pending()))
			}
		}
	}()

	router := gin.New()
	api.RegisterRoutes(router, &api.RouterConfig{
		Book:       book,
		Stops:      scheduler,
		Cache:      quoteCache,
		Hub:        wsHub,
		Metrics:    appMetrics,
		Symbol:     cfg.Symbol,
		AuthSecret: cfg.AuthSecret,
	})

	server := &http.Server{
		Addr:    cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("🚀 Matching engine for %s running on %s", cfg.Symbol, cfg.ServerPort)
		if cfg.WSEnabled {
			log.Printf("📱 WebSocket feed: ws://%s/ws", cfg.ServerPort)
		}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("⚠️ Server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("🛑 Shutting down...")

	scheduler.Stop()
	book.StopWorkers()
	close(gaugeDone)
	close(tradeSink)
	<-sinkDone
	if wsHub != nil {
		wsHub.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ Server shutdown error: %v", err)
	}
	log.Println("✅ Clean shutdown")
}
