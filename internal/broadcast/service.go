package broadcast

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"

	"maxnet-vpn-bot/utils"
)

type recipientSource interface {
	DistinctTelegramIds(ctx context.Context) ([]int64, error)
}

type Service struct {
	bot        *bot.Bot
	recipients recipientSource
	mu         sync.Mutex
	running    bool
}

func NewService(b *bot.Bot, recipients recipientSource) *Service {
	return &Service{bot: b, recipients: recipients}
}

// Start запускает рассылку в фоне. Одновременно идёт не больше одной.
func (s *Service) Start(text string) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return false
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic in broadcast", "panic", r)
			}
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()
		s.execute(context.Background(), text)
	}()
	return true
}

func (s *Service) execute(ctx context.Context, text string) {
	ids, err := s.recipients.DistinctTelegramIds(ctx)
	if err != nil {
		slog.Error("Broadcast: failed to load recipients", "error", err)
		return
	}
	if len(ids) == 0 {
		slog.Info("Broadcast: no recipients")
		return
	}

	sent, failed := 0, 0
	for _, id := range ids {
		_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: id,
			Text:   text,
		})
		if err != nil {
			failed++
			// Заблокировавшие бота — ожидаемый шум, остальное логируем
			if !strings.Contains(err.Error(), "blocked") &&
				!strings.Contains(err.Error(), "deactivated") {
				slog.Warn("Broadcast: send failed",
					"telegramId", utils.MaskHalfInt64(id), "error", err)
			}
		} else {
			sent++
		}
		// Лимит Telegram ~30 сообщений в секунду
		time.Sleep(50 * time.Millisecond)
	}

	slog.Info("Broadcast finished", "sent", sent, "failed", failed, "total", len(ids))
}
