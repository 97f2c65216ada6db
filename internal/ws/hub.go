package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"matching-engine/internal/models"
)

// Message types pushed to subscribers.
const (
	MsgTypeTrade     = "trade"
	MsgTypeTicker    = "ticker"
	MsgTypeHeartbeat = "heartbeat"
)

// Message is the frame sent to WebSocket clients.
type Message struct {
	Type      string      `json:"type"`
	Symbol    string      `json:"symbol"`
	Data      interface{} `json:"data,omitempty"`
	Sequence  int64       `json:"sequence,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// TickerData carries the top-of-book quote.
type TickerData struct {
	BestBid float64 `json:"best_bid"`
	BestAsk float64 `json:"best_ask"`
}

// Hub maintains the set of active clients and fans engine events out to
// them. This is the publisher side of the trade/ticker feed; the server's
// trade sink calls BroadcastTrade and BroadcastTicker, which never block on
// slow peers.
type Hub struct {
	symbol string

	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	heartbeatSeq    int64
	heartbeatTicker *time.Ticker

	stop chan struct{}
	mu   sync.RWMutex
}

// NewHub creates a hub for the given symbol.
func NewHub(symbol string) *Hub {
	return &Hub{
		symbol:          symbol,
		clients:         make(map[*Client]bool),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		broadcast:       make(chan []byte, 256),
		heartbeatTicker: time.NewTicker(30 * time.Second),
		stop:            make(chan struct{}),
	}
}

// Run starts the hub's main event loop with heartbeat.
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.heartbeatTicker.Stop()
			h.closeAll()
			log.Println("📡 WebSocket hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("📡 WS client connected: %s (total %d)", client.ID(), h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.fanOut(msg)

		case <-h.heartbeatTicker.C:
			h.heartbeatSeq++
			h.send(&Message{
				Type:      MsgTypeHeartbeat,
				Symbol:    h.symbol,
				Sequence:  h.heartbeatSeq,
				Timestamp: time.Now(),
			})
		}
	}
}

// Stop shuts the hub down and disconnects all clients.
func (h *Hub) Stop() {
	close(h.stop)
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stop:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastTrade pushes a trade frame to all clients.
func (h *Hub) BroadcastTrade(trade *models.Trade) {
	h.send(&Message{
		Type:      MsgTypeTrade,
		Symbol:    h.symbol,
		Data:      trade,
		Timestamp: time.Now(),
	})
}

// BroadcastTicker pushes a top-of-book frame to all clients.
func (h *Hub) BroadcastTicker(bestBid, bestAsk float64) {
	h.send(&Message{
		Type:      MsgTypeTicker,
		Symbol:    h.symbol,
		Data:      TickerData{BestBid: bestBid, BestAsk: bestAsk},
		Timestamp: time.Now(),
	})
}

func (h *Hub) send(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("⚠️ WS marshal error: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Broadcast buffer full; drop rather than stall the caller.
	}
}

// fanOut delivers one frame to every client. A client whose send buffer is
// full misses this frame; it stays registered.
func (h *Hub) fanOut(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			// Slow consumer; the write pump will clean up on close.
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}
