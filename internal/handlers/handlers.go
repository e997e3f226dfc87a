package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/client"
	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/hub"
	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/ingest"
	"github.com/XavierBriggs/fortuna/services/tip-relay/pkg/models"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// maxBodySize caps the body accepted by the inject and tips endpoints
const maxBodySize = 64 * 1024

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Relay consumers are local bots, not browsers
		return true
	},
}

// Handler manages HTTP endpoints
type Handler struct {
	hub       *hub.Hub
	pipeline  *ingest.Pipeline
	inspector client.Inspector
	ctx       context.Context
	logger    *zap.Logger

	mu      sync.Mutex
	closing bool
	conns   sync.WaitGroup
}

// NewHandler creates a new handler instance. ctx bounds the lifetime of
// every relay connection accepted through it.
func NewHandler(ctx context.Context, h *hub.Hub, pipeline *ingest.Pipeline, inspector client.Inspector, logger *zap.Logger) *Handler {
	return &Handler{
		hub:       h,
		pipeline:  pipeline,
		inspector: inspector,
		ctx:       ctx,
		logger:    logger.Named("http"),
	}
}

// Router builds the chi router with all routes mounted
func (h *Handler) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ws", h.HandleWebSocket)
	r.Get("/health", h.HandleHealth)
	r.Get("/metrics", h.HandleMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		// Must not wrap /ws: relay connections are long-lived
		r.Use(chimiddleware.Timeout(10 * time.Second))
		r.Post("/inject", h.HandleInject)
		r.Post("/tips", h.HandleTips)
	})

	return r
}

// HandleWebSocket upgrades HTTP connections to WebSocket
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		conn.Close()
		return
	}

	clientID := uuid.New().String()
	c := client.NewClient(clientID, conn, h.hub, h.inspector, h.logger)

	h.hub.Register(c)

	// Serve on the handler context, not the request context
	h.conns.Add(1)
	go func() {
		defer h.conns.Done()
		c.Serve(h.ctx)
	}()
}

// Wait stops accepting relay connections and blocks until every accepted
// one has finished serving, or ctx expires.
func (h *Handler) Wait(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleHealth returns service health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"service":        "tip-relay",
		"active_clients": h.hub.GetClientCount(),
		"queue_depth":    h.hub.QueueDepth(),
	})
}

// HandleMetrics returns hub and pipeline metrics
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	pipeline := h.pipeline.GetMetrics()
	if size, err := h.pipeline.LedgerSize(r.Context()); err == nil {
		pipeline["ledger_size"] = size
	} else {
		h.logger.Warn("failed to read ledger size", zap.Error(err))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"relay":    h.hub.GetMetrics(),
		"pipeline": pipeline,
		"clients":  h.hub.ClientStats(),
	})
}

// HandleInject enqueues the request body verbatim, like a console line
func (h *Handler) HandleInject(w http.ResponseWriter, r *http.Request) {
	text, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if text == "" {
		respondError(w, http.StatusBadRequest, "body is required", nil)
		return
	}

	h.hub.Enqueue([]byte(text))
	h.logger.Info("injected payload", zap.Int("bytes", len(text)))

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"queued":      true,
		"queue_depth": h.hub.QueueDepth(),
	})
}

// HandleTips runs the request body through the ingestion pipeline
func (h *Handler) HandleTips(w http.ResponseWriter, r *http.Request) {
	text, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if text == "" {
		respondError(w, http.StatusBadRequest, "body is required", nil)
		return
	}

	outcome := h.pipeline.OnFeedMessage(r.Context(), models.RawMessage{
		ID:         time.Now().UnixNano(),
		Source:     models.SourceHTTP,
		Text:       text,
		ReceivedAt: time.Now(),
	})

	status := http.StatusOK
	if outcome.Status == models.OutcomeRejected {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, outcome)
}

// readBody reads a bounded request body as text
func readBody(r *http.Request) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	msg := models.ErrorMessage{Code: http.StatusText(status), Message: message}
	if err != nil {
		msg.Message = message + ": " + err.Error()
	}
	respondJSON(w, status, msg)
}
