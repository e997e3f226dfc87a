package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/retry"
	"github.com/XavierBriggs/fortuna/services/tip-relay/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// updateTimeout is the long-poll timeout in seconds
const updateTimeout = 60

// TelegramSource reads tips posted to the configured chats
type TelegramSource struct {
	token   string
	allowed map[int64]bool
	retry   *retry.Policy
	logger  *zap.Logger
}

// NewTelegramSource creates a telegram feed. An empty chatIDs list accepts
// every chat the bot can see.
func NewTelegramSource(token string, chatIDs []int64, policy *retry.Policy, logger *zap.Logger) *TelegramSource {
	allowed := make(map[int64]bool, len(chatIDs))
	for _, id := range chatIDs {
		allowed[id] = true
	}
	return &TelegramSource{
		token:   token,
		allowed: allowed,
		retry:   policy,
		logger:  logger.Named("telegram"),
	}
}

// Name implements Source
func (s *TelegramSource) Name() string {
	return models.SourceTelegram
}

// Run long-polls for updates until ctx is done
func (s *TelegramSource) Run(ctx context.Context, handle Handler) error {
	var bot *tgbotapi.BotAPI
	err := s.retry.Do(ctx, func(context.Context) error {
		var err error
		bot, err = tgbotapi.NewBotAPI(s.token)
		if err != nil {
			s.logger.Warn("telegram login failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("telegram login: %w", err)
	}

	s.logger.Info("authorized on telegram",
		zap.String("account", bot.Self.UserName),
		zap.Int("chats", len(s.allowed)))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeout
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			return ctx.Err()

		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg, ok := s.accept(update)
			if !ok {
				continue
			}
			handle(ctx, msg)
		}
	}
}

// accept picks the message out of an update and filters it by chat
func (s *TelegramSource) accept(update tgbotapi.Update) (models.RawMessage, bool) {
	m := update.Message
	if m == nil {
		m = update.ChannelPost
	}
	if m == nil || m.Chat == nil {
		return models.RawMessage{}, false
	}
	if len(s.allowed) > 0 && !s.allowed[m.Chat.ID] {
		return models.RawMessage{}, false
	}

	text := m.Text
	if text == "" {
		text = m.Caption
	}
	if text == "" {
		return models.RawMessage{}, false
	}

	return models.RawMessage{
		ID:         int64(m.MessageID),
		Source:     models.SourceTelegram,
		ChatID:     m.Chat.ID,
		Text:       text,
		ReceivedAt: time.Unix(int64(m.Date), 0),
	}, true
}
