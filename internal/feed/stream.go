package feed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/XavierBriggs/fortuna/services/tip-relay/pkg/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// Batch size for reading messages
	batchSize = 50

	// Block duration when waiting for new messages
	blockDuration = 1 * time.Second
)

// StreamSource consumes raw tips from a Redis stream through a consumer group.
// Entries carry a "text" field and an optional numeric "id".
type StreamSource struct {
	redis    *redis.Client
	stream   string
	group    string
	consumer string
	logger   *zap.Logger
}

// NewStreamSource creates a new stream source
func NewStreamSource(client *redis.Client, stream, group, consumer string, logger *zap.Logger) *StreamSource {
	return &StreamSource{
		redis:    client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		logger:   logger.Named("stream").With(zap.String("stream", stream)),
	}
}

// Name implements Source
func (s *StreamSource) Name() string {
	return models.SourceStream
}

// Run reads and acknowledges entries until ctx is done
func (s *StreamSource) Run(ctx context.Context, handle Handler) error {
	if err := s.createConsumerGroup(ctx); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		streams, err := s.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: s.consumer,
			Streams:  []string{s.stream, ">"},
			Count:    batchSize,
			Block:    blockDuration,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("stream read error", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, entry := range stream.Messages {
				if msg, ok := toRawMessage(entry); ok {
					handle(ctx, msg)
				} else {
					s.logger.Warn("entry has no text field, skipping", zap.String("entry_id", entry.ID))
				}
				s.ack(ctx, entry.ID)
			}
		}
	}
}

// createConsumerGroup creates the group, tolerating one that already exists
func (s *StreamSource) createConsumerGroup(ctx context.Context) error {
	err := s.redis.XGroupCreateMkStream(ctx, s.stream, s.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", s.group, s.stream, err)
	}
	return nil
}

// ack acknowledges an entry in the stream
func (s *StreamSource) ack(ctx context.Context, entryID string) {
	if err := s.redis.XAck(ctx, s.stream, s.group, entryID).Err(); err != nil {
		s.logger.Warn("failed to ack entry", zap.String("entry_id", entryID), zap.Error(err))
	}
}

// toRawMessage converts a stream entry. Without an "id" field the
// millisecond part of the entry id is used.
func toRawMessage(entry redis.XMessage) (models.RawMessage, bool) {
	text, _ := entry.Values["text"].(string)
	if strings.TrimSpace(text) == "" {
		return models.RawMessage{}, false
	}

	ms, _ := strconv.ParseInt(strings.SplitN(entry.ID, "-", 2)[0], 10, 64)
	id := ms
	if raw, ok := entry.Values["id"].(string); ok {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			id = parsed
		}
	}

	return models.RawMessage{
		ID:         id,
		Source:     models.SourceStream,
		Text:       text,
		ReceivedAt: time.UnixMilli(ms),
	}, true
}
