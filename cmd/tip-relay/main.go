package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/config"
	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/console"
	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/feed"
	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/handlers"
	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/hub"
	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/ingest"
	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/journal"
	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/ledger"
	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/logging"
	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/normalizer"
	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/retry"
	"github.com/XavierBriggs/fortuna/services/tip-relay/pkg/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	fmt.Println("=== Fortuna Tip Relay v0 ===")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("❌ Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Printf("❌ Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy := retry.NewPolicy(cfg.Retry.MaxAttempts, cfg.Retry.InitialDelay)

	// Connect to Redis when a component needs it
	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		err := policy.Do(ctx, func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.String("addr", cfg.Redis.URL), zap.Error(err))
		}
		defer redisClient.Close()
		fmt.Println("✓ Connected to Redis")
	}

	// Dedup ledger, scoped to this run
	var dedup ledger.Ledger
	switch cfg.Ledger.Backend {
	case config.LedgerRedis:
		rl := ledger.NewRedisLedger(redisClient, uuid.New().String())
		logger.Info("using redis ledger", zap.String("key", rl.Key()))
		dedup = rl
	default:
		dedup = ledger.NewMemoryLedger()
	}

	// Outcome journal is optional and never blocks delivery
	var recorder ingest.Recorder
	if cfg.Journal.DSN != "" {
		j, err := openJournal(ctx, cfg.Journal.DSN, policy)
		if err != nil {
			logger.Warn("journal disabled", zap.Error(err))
		} else {
			defer j.Close()
			recorder = j
			fmt.Println("✓ Connected to journal DB")
		}
	}

	// Create hub
	h := hub.NewHub(logger)
	hubDone := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(hubDone)
	}()

	pipeline := ingest.NewPipeline(
		normalizer.NewNormalizer(cfg.Betting.Host, cfg.Betting.Stake),
		dedup,
		h,
		recorder,
		logger,
	)
	inspector := ingest.NewInspector(logger)

	// Create HTTP handler (pass context for WebSocket lifecycle)
	handler := handlers.NewHandler(ctx, h, pipeline, inspector, logger)

	// Bind before serving so an unusable address stops startup
	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		logger.Fatal("failed to bind relay listener", zap.String("addr", cfg.Server.Addr), zap.Error(err))
	}

	server := &http.Server{
		Handler:           handler.Router(cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		fmt.Printf("🚀 Tip relay listening on %s\n", listener.Addr())
		fmt.Printf("   Betting: host=%s stake=%v\n", cfg.Betting.Host, cfg.Betting.Stake)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			cancel()
		}
	}()

	// Feed sources
	var sources []feed.Source
	if cfg.Telegram.BotToken != "" {
		sources = append(sources, feed.NewTelegramSource(cfg.Telegram.BotToken, cfg.Telegram.ChatIDs, policy, logger))
	}
	if cfg.Stream.Enabled {
		sources = append(sources, feed.NewStreamSource(redisClient, cfg.Stream.Name, cfg.Stream.ConsumerGroup, cfg.Stream.ConsumerID, logger))
	}

	runner := feed.NewRunner(logger, sources...)
	feedDone := make(chan struct{})
	go func() {
		runner.Run(ctx, func(ctx context.Context, msg models.RawMessage) {
			pipeline.OnFeedMessage(ctx, msg)
		})
		close(feedDone)
	}()
	if runner.Len() == 0 {
		logger.Warn("no feed sources configured, only console and HTTP input are available")
	}

	// Operator console; quit stops the process
	if cfg.Console.Enabled {
		c := console.NewConsole(h, cancel, logger)
		go func() {
			if err := c.Run(ctx); err != nil {
				logger.Error("console stopped", zap.Error(err))
			}
		}()
	}

	// Wait for interrupt signal or quit
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	fmt.Println("\n🛑 Shutting down...")

	// Cancel context to stop all goroutines
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", zap.Error(err))
	}

	// Hijacked relay connections are not tracked by the http server
	if err := handler.Wait(shutdownCtx); err != nil {
		logger.Warn("timed out waiting for relay connections", zap.Error(err))
	}

	for name, done := range map[string]chan struct{}{"hub": hubDone, "feed": feedDone} {
		select {
		case <-done:
		case <-shutdownCtx.Done():
			logger.Warn("timed out waiting for shutdown", zap.String("component", name))
		}
	}

	if err := dedup.Close(shutdownCtx); err != nil {
		logger.Warn("failed to close ledger", zap.Error(err))
	}

	fmt.Println("✓ Tip relay stopped")
}

// openJournal connects to the journal database and creates its table
func openJournal(ctx context.Context, dsn string, policy *retry.Policy) (*journal.Journal, error) {
	j, err := journal.Open(ctx, dsn, policy)
	if err != nil {
		return nil, err
	}
	if err := j.EnsureSchema(ctx); err != nil {
		j.Close()
		return nil, err
	}
	return j, nil
}
