package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantClosed bool
	}{
		{name: "normal closure", err: &websocket.CloseError{Code: websocket.CloseNormalClosure}, wantClosed: true},
		{name: "going away", err: &websocket.CloseError{Code: websocket.CloseGoingAway}, wantClosed: true},
		{name: "no status", err: &websocket.CloseError{Code: websocket.CloseNoStatusReceived}, wantClosed: true},
		{name: "abnormal closure", err: &websocket.CloseError{Code: websocket.CloseAbnormalClosure}},
		{name: "io error", err: io.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("read", tt.err)

			if errors.Is(got, ErrTransportClosed) != tt.wantClosed {
				t.Fatalf("classify(%v) = %v, closed want %v", tt.err, got, tt.wantClosed)
			}

			var terr *TransportError
			if errors.As(got, &terr) == tt.wantClosed {
				t.Fatalf("classify(%v) = %v, transport error want %v", tt.err, got, !tt.wantClosed)
			}
			if terr != nil {
				if terr.Op != "read" || !errors.Is(got, tt.err) {
					t.Errorf("TransportError = %+v", terr)
				}
			}
		})
	}
}

type sliceHub struct {
	mu        sync.Mutex
	items     [][]byte
	ready     chan struct{}
	delivered int
}

func newSliceHub(items ...string) *sliceHub {
	h := &sliceHub{ready: make(chan struct{}, 1)}
	for _, item := range items {
		h.items = append(h.items, []byte(item))
	}
	return h
}

func (h *sliceHub) Unregister(*Client) {}

func (h *sliceHub) Pop() ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.items) == 0 {
		return nil, false
	}
	item := h.items[0]
	h.items = h.items[1:]
	return item, true
}

func (h *sliceHub) Requeue(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append([][]byte{payload}, h.items...)
}

func (h *sliceHub) Ready() <-chan struct{} { return h.ready }

func (h *sliceHub) MarkDelivered() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.delivered++
}

func (h *sliceHub) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.items))
	for i, item := range h.items {
		out[i] = string(item)
	}
	return out
}

type discardInspector struct{}

func (discardInspector) OnRelayMessage(string, []byte) {}

// serverConn returns the server side of a fresh websocket connection
func serverConn(t *testing.T) *websocket.Conn {
	t.Helper()

	conns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		conns <- conn
	}))
	t.Cleanup(server.Close)

	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { peer.Close() })

	select {
	case conn := <-conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("server never upgraded the connection")
		return nil
	}
}

func TestWritePump_FailedWriteRequeuesAtFront(t *testing.T) {
	conn := serverConn(t)
	h := newSliceHub("a", "b", "c")
	c := NewClient("c1", conn, h, discardInspector{}, zap.NewNop())

	// Drop the socket without a close handshake
	conn.UnderlyingConn().Close()

	err := c.WritePump(context.Background())

	var terr *TransportError
	if !errors.As(err, &terr) || terr.Op != "write" {
		t.Fatalf("WritePump() = %v, want write TransportError", err)
	}
	if got := h.snapshot(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("queue after failed write = %v, want [a b c]", got)
	}
	if h.delivered != 0 {
		t.Errorf("delivered = %d, want 0", h.delivered)
	}
	if stats := c.GetStats(); stats.MessagesSent != 0 {
		t.Errorf("messages sent = %d, want 0", stats.MessagesSent)
	}
}
