package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"maxnet-vpn-bot/internal/database"
	"maxnet-vpn-bot/utils"
)

const promoStateWaiting = "waiting_code"

func promoStateKey(telegramId int64) string {
	return fmt.Sprintf("promo_state_%d", telegramId)
}

// IsWaitingPromoInput — match-функция для текстового ввода промокода.
func (h Handler) IsWaitingPromoInput(update *models.Update) bool {
	if update.Message == nil {
		return false
	}
	if update.Message.Text == "" || strings.HasPrefix(update.Message.Text, "/") {
		return false
	}
	state, found := h.cache.GetString(promoStateKey(update.Message.From.ID))
	return found && state == promoStateWaiting
}

func (h Handler) PromoCallbackHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	_, _ = b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: update.CallbackQuery.ID,
	})

	telegramId := update.CallbackQuery.From.ID
	h.cache.SetString(promoStateKey(telegramId), promoStateWaiting, 300)

	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.CallbackQuery.Message.Message.Chat.ID,
		Text:   "Отправьте промокод сообщением.",
		ReplyMarkup: models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{
				{{Text: "← Назад", CallbackData: CallbackStart}},
			},
		},
	})
	if err != nil {
		slog.Error("Error sending promo prompt", "error", err)
	}
}

func (h Handler) PromoInputHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	ctxWithTime, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	telegramId := update.Message.From.ID
	chatId := update.Message.Chat.ID
	code := strings.ToUpper(strings.TrimSpace(update.Message.Text))

	h.cache.Delete(promoStateKey(telegramId))

	// Контроллер сам уведомляет об успехе (продление или новый конфиг)
	_, err := h.paymentService.ApplyPromo(ctxWithTime, telegramId, code)
	if err == nil {
		return
	}

	text := promoErrorText(err)
	if text == "" {
		slog.Error("Failed to apply promo",
			"telegramId", utils.MaskHalfInt64(telegramId), "error", err)
		text = "Не получилось применить промокод, попробуйте позже."
	}
	_, _ = b.SendMessage(ctxWithTime, &bot.SendMessageParams{
		ChatID: chatId,
		Text:   text,
	})
}

// promoErrorText переводит доменные ошибки в ответ пользователю.
// Пустая строка — неожиданная ошибка.
func promoErrorText(err error) string {
	switch {
	case errors.Is(err, database.ErrPromoNotFound):
		return "Такого промокода нет."
	case errors.Is(err, database.ErrPromoInactive):
		return "Промокод отключён."
	case errors.Is(err, database.ErrPromoNotStarted):
		return "Промокод ещё не начал действовать."
	case errors.Is(err, database.ErrPromoExpired):
		return "Срок действия промокода истёк."
	case errors.Is(err, database.ErrPromoGlobalLimit):
		return "Лимит активаций промокода исчерпан."
	case errors.Is(err, database.ErrPromoPerUserLimit):
		return "Вы уже использовали этот промокод."
	case errors.Is(err, database.ErrPromoWrongUser):
		return "Этот промокод выписан другому пользователю."
	case errors.Is(err, database.ErrPromoTariffScope):
		return "Промокод не действует для вашего тарифа."
	default:
		return ""
	}
}
