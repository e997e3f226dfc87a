package hub

import (
	"context"
	"testing"
	"time"

	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/client"
	"go.uber.org/zap"
)

func TestHub_EnqueueCountsAndQueues(t *testing.T) {
	h := NewHub(zap.NewNop())

	h.Enqueue([]byte("one"))
	h.Enqueue([]byte("two"))

	if h.QueueDepth() != 2 {
		t.Fatalf("QueueDepth = %d, want 2", h.QueueDepth())
	}

	payload, ok := h.Pop()
	if !ok || string(payload) != "one" {
		t.Fatalf("Pop = %q, %v", payload, ok)
	}
	h.MarkDelivered()

	h.Requeue(payload)
	if payload, _ := h.Pop(); string(payload) != "one" {
		t.Errorf("requeued payload not first: %q", payload)
	}

	metrics := h.GetMetrics()
	if metrics["total_enqueued"] != int64(2) {
		t.Errorf("total_enqueued = %v", metrics["total_enqueued"])
	}
	if metrics["total_delivered"] != int64(1) {
		t.Errorf("total_delivered = %v", metrics["total_delivered"])
	}
	if metrics["queue_depth"] != 1 {
		t.Errorf("queue_depth = %v", metrics["queue_depth"])
	}
}

func TestHub_RegisterAfterShutdownClosesClient(t *testing.T) {
	h := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	c := client.NewClient("late", nil, h, nil, zap.NewNop())

	done := make(chan struct{})
	go func() {
		h.Register(c)
		h.Unregister(c)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Register blocked after hub shutdown")
	}

	if h.GetClientCount() != 0 {
		t.Errorf("client count = %d, want 0", h.GetClientCount())
	}
}
