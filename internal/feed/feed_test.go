package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/retry"
	"github.com/XavierBriggs/fortuna/services/tip-relay/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestTelegramSource_Accept(t *testing.T) {
	src := NewTelegramSource("token", []int64{-100}, retry.NewPolicy(1, 0), zap.NewNop())
	open := NewTelegramSource("token", nil, retry.NewPolicy(1, 0), zap.NewNop())

	message := func(chatID int64, text, caption string) *tgbotapi.Message {
		return &tgbotapi.Message{
			MessageID: 7,
			Chat:      &tgbotapi.Chat{ID: chatID},
			Date:      1700000000,
			Text:      text,
			Caption:   caption,
		}
	}

	tests := []struct {
		name   string
		source *TelegramSource
		update tgbotapi.Update
		want   bool
		text   string
	}{
		{name: "allowed chat", source: src, update: tgbotapi.Update{Message: message(-100, "tip", "")}, want: true, text: "tip"},
		{name: "channel post", source: src, update: tgbotapi.Update{ChannelPost: message(-100, "post", "")}, want: true, text: "post"},
		{name: "caption only", source: src, update: tgbotapi.Update{Message: message(-100, "", "photo tip")}, want: true, text: "photo tip"},
		{name: "other chat", source: src, update: tgbotapi.Update{Message: message(-200, "tip", "")}},
		{name: "no filter accepts any chat", source: open, update: tgbotapi.Update{Message: message(-200, "tip", "")}, want: true, text: "tip"},
		{name: "empty text", source: src, update: tgbotapi.Update{Message: message(-100, "", "")}},
		{name: "no message", source: src, update: tgbotapi.Update{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := tt.source.accept(tt.update)
			if ok != tt.want {
				t.Fatalf("accept = %v, want %v", ok, tt.want)
			}
			if !ok {
				return
			}
			if msg.Text != tt.text {
				t.Errorf("Text = %q, want %q", msg.Text, tt.text)
			}
			if msg.ID != 7 || msg.Source != models.SourceTelegram {
				t.Errorf("unexpected message %+v", msg)
			}
			if !msg.ReceivedAt.Equal(time.Unix(1700000000, 0)) {
				t.Errorf("ReceivedAt = %v", msg.ReceivedAt)
			}
		})
	}
}

func TestToRawMessage(t *testing.T) {
	tests := []struct {
		name   string
		entry  redis.XMessage
		want   bool
		wantID int64
	}{
		{
			name:   "text with id",
			entry:  redis.XMessage{ID: "1700000000000-0", Values: map[string]interface{}{"text": "tip", "id": "42"}},
			want:   true,
			wantID: 42,
		},
		{
			name:   "id from entry",
			entry:  redis.XMessage{ID: "1700000000123-3", Values: map[string]interface{}{"text": "tip"}},
			want:   true,
			wantID: 1700000000123,
		},
		{
			name:   "bad id falls back",
			entry:  redis.XMessage{ID: "1700000000000-0", Values: map[string]interface{}{"text": "tip", "id": "abc"}},
			want:   true,
			wantID: 1700000000000,
		},
		{
			name:  "missing text",
			entry: redis.XMessage{ID: "1-0", Values: map[string]interface{}{"data": "{}"}},
		},
		{
			name:  "blank text",
			entry: redis.XMessage{ID: "1-0", Values: map[string]interface{}{"text": "  "}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := toRawMessage(tt.entry)
			if ok != tt.want {
				t.Fatalf("ok = %v, want %v", ok, tt.want)
			}
			if !ok {
				return
			}
			if msg.ID != tt.wantID {
				t.Errorf("ID = %d, want %d", msg.ID, tt.wantID)
			}
			if msg.Source != models.SourceStream {
				t.Errorf("Source = %s", msg.Source)
			}
		})
	}
}

type fakeSource struct {
	name string
	msgs []string
	err  error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Run(ctx context.Context, handle Handler) error {
	for i, text := range f.msgs {
		handle(ctx, models.RawMessage{ID: int64(i), Source: f.name, Text: text})
	}
	return f.err
}

func TestRunner_RunsAllSourcesDespiteFailures(t *testing.T) {
	runner := NewRunner(zap.NewNop(),
		&fakeSource{name: "a", msgs: []string{"a1", "a2"}},
		&fakeSource{name: "b", err: errors.New("login failed")},
		&fakeSource{name: "c", msgs: []string{"c1"}},
	)

	var (
		mu   sync.Mutex
		seen []string
	)
	runner.Run(context.Background(), func(_ context.Context, msg models.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, msg.Text)
	})

	if len(seen) != 3 {
		t.Errorf("handled %v, want 3 messages", seen)
	}
	if runner.Len() != 3 {
		t.Errorf("Len = %d", runner.Len())
	}
}
