package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/XavierBriggs/fortuna/services/tip-relay/pkg/models"
	"github.com/redis/go-redis/v9"
)

// memberSeparator joins the two team names of a match inside the set.
// Unit separator never appears in team names.
const memberSeparator = "\x1f"

// RedisLedger keeps admitted matches in a Redis set scoped to one process run.
// SADD reports whether the member was added, which makes Admit atomic across
// every relay sharing the run id.
type RedisLedger struct {
	client *redis.Client
	key    string
}

// NewRedisLedger creates a ledger backed by the set tiprelay:ledger:{runID}
func NewRedisLedger(client *redis.Client, runID string) *RedisLedger {
	return &RedisLedger{
		client: client,
		key:    fmt.Sprintf("tiprelay:ledger:%s", runID),
	}
}

// Key returns the Redis key holding the set
func (l *RedisLedger) Key() string {
	return l.key
}

// Admit adds the match to the set and reports whether it was new
func (l *RedisLedger) Admit(ctx context.Context, match models.Match) (bool, error) {
	added, err := l.client.SAdd(ctx, l.key, member(match)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to admit %s: %w", match, err)
	}
	return added == 1, nil
}

// Len returns the number of admitted matches
func (l *RedisLedger) Len(ctx context.Context) (int, error) {
	n, err := l.client.SCard(ctx, l.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count ledger: %w", err)
	}
	return int(n), nil
}

// Close drops the run's set; the ledger lives only as long as the process
func (l *RedisLedger) Close(ctx context.Context) error {
	if err := l.client.Del(ctx, l.key).Err(); err != nil {
		return fmt.Errorf("failed to drop ledger %s: %w", l.key, err)
	}
	return nil
}

func member(match models.Match) string {
	return strings.Join(match[:], memberSeparator)
}
