package hub

import (
	"context"
	"sync"
	"time"

	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/client"
	"github.com/XavierBriggs/fortuna/services/tip-relay/pkg/models"
	"go.uber.org/zap"
)

// Hub owns the outbound queue and the set of attached relay clients.
// Queued commands go to whichever client is attached, one client per command;
// they wait in the queue while nobody is attached.
type Hub struct {
	queue *Queue

	// Registered clients
	clients   map[*client.Client]bool
	clientsMu sync.RWMutex

	// Register requests from clients
	register chan *client.Client

	// Unregister requests from clients
	unregister chan *client.Client

	// Closed when Run returns
	done chan struct{}

	logger *zap.Logger

	// Metrics
	totalConnections int64
	totalEnqueued    int64
	totalDelivered   int64
	metricsMu        sync.Mutex
}

// NewHub creates a new Hub instance
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		queue:      NewQueue(),
		clients:    make(map[*client.Client]bool),
		register:   make(chan *client.Client),
		unregister: make(chan *client.Client),
		done:       make(chan struct{}),
		logger:     logger.Named("hub"),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	h.logger.Info("hub started")

	// Start metrics reporter
	go h.reportMetrics(ctx)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case c := <-h.register:
			h.registerClient(c)

		case c := <-h.unregister:
			h.unregisterClient(c)
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(c *client.Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(c *client.Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Enqueue appends a payload to the outbound queue
func (h *Hub) Enqueue(payload []byte) {
	h.queue.Push(payload)

	h.metricsMu.Lock()
	h.totalEnqueued++
	h.metricsMu.Unlock()
}

// Pop hands the next queued payload to a client
func (h *Hub) Pop() ([]byte, bool) {
	return h.queue.Pop()
}

// Requeue puts back a payload a client failed to write
func (h *Hub) Requeue(payload []byte) {
	h.queue.PushFront(payload)
}

// Ready fires while payloads are waiting
func (h *Hub) Ready() <-chan struct{} {
	return h.queue.Ready()
}

// MarkDelivered counts a payload written to a client
func (h *Hub) MarkDelivered() {
	h.metricsMu.Lock()
	defer h.metricsMu.Unlock()
	h.totalDelivered++
}

// registerClient adds a client to the active clients map
func (h *Hub) registerClient(c *client.Client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	h.clients[c] = true
	h.incrementTotalConnections()

	h.logger.Info("client connected",
		zap.String("client_id", c.ID),
		zap.String("remote", c.RemoteAddr()),
		zap.Int("total", len(h.clients)),
		zap.Int("queued", h.queue.Len()))
}

// unregisterClient removes a client from the active clients map
func (h *Hub) unregisterClient(c *client.Client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.logger.Info("client disconnected",
			zap.String("client_id", c.ID),
			zap.Int("total", len(h.clients)),
			zap.Int("queued", h.queue.Len()))
	}
}

// GetMetrics returns hub metrics
func (h *Hub) GetMetrics() map[string]interface{} {
	h.clientsMu.RLock()
	activeClients := len(h.clients)
	h.clientsMu.RUnlock()

	h.metricsMu.Lock()
	totalConnections := h.totalConnections
	totalEnqueued := h.totalEnqueued
	totalDelivered := h.totalDelivered
	h.metricsMu.Unlock()

	return map[string]interface{}{
		"active_clients":    activeClients,
		"total_connections": totalConnections,
		"total_enqueued":    totalEnqueued,
		"total_delivered":   totalDelivered,
		"queue_depth":       h.queue.Len(),
	}
}

// GetClientCount returns the number of active clients
func (h *Hub) GetClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// ClientStats returns statistics for every attached client
func (h *Hub) ClientStats() []models.ConnectionStats {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	stats := make([]models.ConnectionStats, 0, len(h.clients))
	for c := range h.clients {
		stats = append(stats, c.GetStats())
	}
	return stats
}

// QueueDepth returns the number of undelivered payloads
func (h *Hub) QueueDepth() int {
	return h.queue.Len()
}

// shutdown closes all client connections. Undelivered payloads are dropped.
func (h *Hub) shutdown() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	h.logger.Info("shutting down hub",
		zap.Int("active_clients", len(h.clients)),
		zap.Int("dropped", h.queue.Len()))

	for c := range h.clients {
		c.Close()
		delete(h.clients, c)
	}
}

// reportMetrics periodically reports hub metrics
func (h *Hub) reportMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics := h.GetMetrics()
			h.logger.Info("hub metrics",
				zap.Any("clients", metrics["active_clients"]),
				zap.Any("total_connections", metrics["total_connections"]),
				zap.Any("enqueued", metrics["total_enqueued"]),
				zap.Any("delivered", metrics["total_delivered"]),
				zap.Any("queue_depth", metrics["queue_depth"]))
		}
	}
}

// incrementTotalConnections safely increments the total connections counter
func (h *Hub) incrementTotalConnections() {
	h.metricsMu.Lock()
	defer h.metricsMu.Unlock()
	h.totalConnections++
}
