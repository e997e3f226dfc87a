package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/XavierBriggs/fortuna/services/tip-relay/pkg/models"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

// ErrTransportClosed is returned when the peer closed the connection normally
var ErrTransportClosed = errors.New("transport closed")

// TransportError is an unexpected I/O fault on the connection
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Hub defines what a client needs from the relay hub
type Hub interface {
	Unregister(client *Client)
	Pop() ([]byte, bool)
	Requeue(payload []byte)
	Ready() <-chan struct{}
	MarkDelivered()
}

// Inspector observes messages sent by the downstream consumer
type Inspector interface {
	OnRelayMessage(clientID string, payload []byte)
}

// Client represents one attached relay connection
type Client struct {
	ID        string
	conn      *websocket.Conn
	hub       Hub
	inspector Inspector
	logger    *zap.Logger

	closed    chan struct{}
	closeOnce sync.Once

	connectedAt      time.Time
	messagesSent     int64
	messagesReceived int64
	lastMessageAt    time.Time
	mu               sync.Mutex
}

// NewClient creates a new client instance
func NewClient(id string, conn *websocket.Conn, hub Hub, inspector Inspector, logger *zap.Logger) *Client {
	return &Client{
		ID:          id,
		conn:        conn,
		hub:         hub,
		inspector:   inspector,
		logger:      logger.With(zap.String("client_id", id)),
		closed:      make(chan struct{}),
		connectedAt: time.Now(),
	}
}

// RemoteAddr returns the peer address
func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Close asks the client to stop. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

// Serve runs the inbound and outbound loops until one of them stops, then
// stops the other and tears the connection down. A normal close returns nil.
func (c *Client) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-c.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	writeDone := make(chan struct{})

	g.Go(func() error {
		defer close(writeDone)
		return c.WritePump(gctx)
	})
	g.Go(func() error {
		return c.ReadPump(gctx)
	})

	// Closing the socket is what unblocks a reader parked in ReadMessage
	go func() {
		<-writeDone
		c.conn.Close()
	}()

	err := g.Wait()
	c.hub.Unregister(c)

	var terr *TransportError
	switch {
	case errors.As(err, &terr):
		c.logger.Warn("connection failed", zap.Error(err))
		return err
	case errors.Is(err, ErrTransportClosed):
		c.logger.Info("connection closed by peer")
	default:
		c.logger.Info("connection closed", zap.Error(err))
	}
	return nil
}

// ReadPump reads messages from the consumer and hands them to the inspector.
// It always returns a non-nil error so that its sibling is cancelled.
func (c *Client) ReadPump(ctx context.Context) error {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return classify("read", err)
		}

		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.updateReceived()
		c.inspector.OnRelayMessage(c.ID, payload)
	}
}

// WritePump writes queued payloads to the consumer in order and keeps the
// connection alive with pings. A payload whose write fails goes back to the
// front of the queue for the next connection.
func (c *Client) WritePump(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		for ctx.Err() == nil {
			payload, ok := c.hub.Pop()
			if !ok {
				break
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.hub.Requeue(payload)
				return classify("write", err)
			}

			c.hub.MarkDelivered()
			c.updateSent()
			c.logger.Debug("payload delivered", zap.Int("bytes", len(payload)))
		}

		select {
		case <-ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()

		case <-c.hub.Ready():

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return classify("ping", err)
			}
		}
	}
}

// GetStats returns connection statistics
func (c *Client) GetStats() models.ConnectionStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return models.ConnectionStats{
		ClientID:         c.ID,
		RemoteAddr:       c.RemoteAddr(),
		ConnectedAt:      c.connectedAt,
		MessagesSent:     c.messagesSent,
		MessagesReceived: c.messagesReceived,
		LastMessageAt:    c.lastMessageAt,
	}
}

// classify separates an orderly close from a broken transport
func classify(op string, err error) error {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		return fmt.Errorf("%s: %w", op, ErrTransportClosed)
	}
	return &TransportError{Op: op, Err: err}
}

// updateSent increments the sent message counter
func (c *Client) updateSent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messagesSent++
	c.lastMessageAt = time.Now()
}

// updateReceived increments the received message counter
func (c *Client) updateReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messagesReceived++
	c.lastMessageAt = time.Now()
}
