//go:build integration

package ledger

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/XavierBriggs/fortuna/services/tip-relay/pkg/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func getTestRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		addr = "localhost:6380"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}
	return client
}

func TestRedisLedger_AdmitOnce(t *testing.T) {
	ctx := context.Background()
	client := getTestRedisClient(t)
	defer client.Close()

	l := NewRedisLedger(client, uuid.New().String())
	defer l.Close(ctx)

	match := models.NewMatch("Team A", "Team B")

	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Admit(ctx, match)
			if err != nil {
				t.Errorf("admit error: %v", err)
				return
			}
			if ok {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	if admitted != 1 {
		t.Errorf("admitted %d times, want exactly 1", admitted)
	}

	n, err := l.Len(ctx)
	if err != nil || n != 1 {
		t.Errorf("Len() = %d, %v; want 1, nil", n, err)
	}
}

func TestRedisLedger_CloseDropsRun(t *testing.T) {
	ctx := context.Background()
	client := getTestRedisClient(t)
	defer client.Close()

	l := NewRedisLedger(client, uuid.New().String())
	if _, err := l.Admit(ctx, models.NewMatch("Team A", "Team B")); err != nil {
		t.Fatalf("admit error: %v", err)
	}
	if err := l.Close(ctx); err != nil {
		t.Fatalf("close error: %v", err)
	}

	exists, err := client.Exists(ctx, l.Key()).Result()
	if err != nil {
		t.Fatalf("exists error: %v", err)
	}
	if exists != 0 {
		t.Errorf("expected ledger key to be removed")
	}
}
