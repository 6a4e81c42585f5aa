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

	"maxnet-vpn-bot/internal/config"
	"maxnet-vpn-bot/internal/database"
	"maxnet-vpn-bot/utils"
)

// callbackParam достаёт значение из callback вида "tariff?code=1m".
func callbackParam(data, key string) string {
	idx := strings.Index(data, "?")
	if idx < 0 {
		return ""
	}
	for _, pair := range strings.Split(data[idx+1:], "&") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 && kv[0] == key {
			return kv[1]
		}
	}
	return ""
}

func (h Handler) BuyCallbackHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	_, _ = b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: update.CallbackQuery.ID,
	})

	ctxWithTime, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tariffs, err := h.tariffRepo.FindAllActive(ctxWithTime)
	if err != nil {
		slog.Error("Failed to load tariffs", "error", err)
		return
	}

	var keyboard [][]models.InlineKeyboardButton
	for _, t := range tariffs {
		label := t.Title
		if t.PriceRub != nil {
			label = fmt.Sprintf("%s — %s ₽", t.Title, t.PriceRub.StringFixed(0))
		}
		keyboard = append(keyboard, []models.InlineKeyboardButton{
			{Text: label, CallbackData: SafeCallbackData(fmt.Sprintf("%s?code=%s", CallbackTariff, t.Code))},
		})
	}
	keyboard = append(keyboard, []models.InlineKeyboardButton{
		{Text: "← Назад", CallbackData: CallbackStart},
	})

	_, err = b.EditMessageText(ctxWithTime, &bot.EditMessageTextParams{
		ChatID:    update.CallbackQuery.Message.Message.Chat.ID,
		MessageID: update.CallbackQuery.Message.Message.ID,
		Text:      "Выберите тариф:",
		ReplyMarkup: models.InlineKeyboardMarkup{
			InlineKeyboard: keyboard,
		},
	})
	if err != nil && !strings.Contains(err.Error(), "message is not modified") {
		slog.Error("Error sending tariff menu", "error", err)
	}
}

// TariffCallbackHandler показывает доступные способы оплаты выбранного тарифа.
func (h Handler) TariffCallbackHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	_, _ = b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: update.CallbackQuery.ID,
	})

	ctxWithTime, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	code := callbackParam(update.CallbackQuery.Data, "code")
	tariff, err := h.tariffRepo.FindByCode(ctxWithTime, code)
	if err != nil || tariff == nil || !tariff.IsActive {
		slog.Error("Tariff unavailable", "tariffCode", code, "error", err)
		return
	}

	telegramId := update.CallbackQuery.From.ID

	var keyboard [][]models.InlineKeyboardButton
	if config.IsYookassaEnabled() && tariff.PriceRub != nil {
		keyboard = append(keyboard, []models.InlineKeyboardButton{
			{Text: fmt.Sprintf("💳 Картой — %s ₽", tariff.PriceRub.StringFixed(0)),
				CallbackData: SafeCallbackData(fmt.Sprintf("%s?code=%s", CallbackPayYookassa, code))},
		})
	}
	if config.IsHeleketEnabled() && tariff.PriceUsd != nil {
		keyboard = append(keyboard, []models.InlineKeyboardButton{
			{Text: fmt.Sprintf("🪙 Криптой — $%s", tariff.PriceUsd.StringFixed(2)),
				CallbackData: SafeCallbackData(fmt.Sprintf("%s?code=%s", CallbackPayHeleket, code))},
		})
	}
	if tariff.PointsCost != nil && *tariff.PointsCost > 0 {
		balance, err := h.pointsRepo.GetBalance(ctxWithTime, telegramId)
		if err != nil {
			slog.Error("Failed to load balance", "error", err)
		}
		keyboard = append(keyboard, []models.InlineKeyboardButton{
			{Text: fmt.Sprintf("⭐ Баллами — %d (у вас %d)", *tariff.PointsCost, balance),
				CallbackData: SafeCallbackData(fmt.Sprintf("%s?code=%s", CallbackPayPoints, code))},
		})
	}
	keyboard = append(keyboard, []models.InlineKeyboardButton{
		{Text: "← Назад", CallbackData: CallbackBuy},
	})

	_, err = b.EditMessageText(ctxWithTime, &bot.EditMessageTextParams{
		ChatID:    update.CallbackQuery.Message.Message.Chat.ID,
		MessageID: update.CallbackQuery.Message.Message.ID,
		Text:      fmt.Sprintf("Тариф «%s», %d дн. Способ оплаты:", tariff.Title, tariff.DurationDays),
		ReplyMarkup: models.InlineKeyboardMarkup{
			InlineKeyboard: keyboard,
		},
	})
	if err != nil && !strings.Contains(err.Error(), "message is not modified") {
		slog.Error("Error sending payment menu", "error", err)
	}
}

func (h Handler) PayYookassaCallbackHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	_, _ = b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: update.CallbackQuery.ID,
	})

	ctxWithTime, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	code := callbackParam(update.CallbackQuery.Data, "code")
	chatId := update.CallbackQuery.Message.Message.Chat.ID
	from := update.CallbackQuery.From

	tariff, err := h.tariffRepo.FindByCode(ctxWithTime, code)
	if err != nil || tariff == nil {
		slog.Error("Tariff unavailable", "tariffCode", code, "error", err)
		return
	}

	invoice, err := h.yookassaClient.CreateInvoice(ctxWithTime, tariff, from.ID, from.Username)
	if err != nil {
		slog.Error("Failed to create yookassa invoice",
			"telegramId", utils.MaskHalfInt64(from.ID), "error", err)
		_, _ = b.SendMessage(ctxWithTime, &bot.SendMessageParams{
			ChatID: chatId,
			Text:   "Не удалось создать счёт, попробуйте позже.",
		})
		return
	}

	if invoice.Confirmation == nil || invoice.Confirmation.ConfirmationURL == "" {
		slog.Error("Yookassa invoice has no confirmation url", "paymentId", invoice.ID)
		return
	}

	_, err = b.SendMessage(ctxWithTime, &bot.SendMessageParams{
		ChatID: chatId,
		Text:   fmt.Sprintf("Счёт на «%s» создан. После оплаты доступ выдаётся автоматически.", tariff.Title),
		ReplyMarkup: models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{
				{{Text: "Оплатить", URL: invoice.Confirmation.ConfirmationURL}},
			},
		},
	})
	if err != nil {
		slog.Error("Error sending invoice link", "error", err)
	}
}

func (h Handler) PayHeleketCallbackHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	_, _ = b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: update.CallbackQuery.ID,
	})

	ctxWithTime, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	code := callbackParam(update.CallbackQuery.Data, "code")
	chatId := update.CallbackQuery.Message.Message.Chat.ID
	from := update.CallbackQuery.From

	tariff, err := h.tariffRepo.FindByCode(ctxWithTime, code)
	if err != nil || tariff == nil {
		slog.Error("Tariff unavailable", "tariffCode", code, "error", err)
		return
	}

	invoice, err := h.heleketClient.CreateInvoice(ctxWithTime, tariff, from.ID)
	if err != nil {
		slog.Error("Failed to create heleket invoice",
			"telegramId", utils.MaskHalfInt64(from.ID), "error", err)
		_, _ = b.SendMessage(ctxWithTime, &bot.SendMessageParams{
			ChatID: chatId,
			Text:   "Не удалось создать счёт, попробуйте позже.",
		})
		return
	}

	_, err = b.SendMessage(ctxWithTime, &bot.SendMessageParams{
		ChatID: chatId,
		Text:   fmt.Sprintf("Криптосчёт на «%s» создан. После подтверждения сети доступ выдаётся автоматически.", tariff.Title),
		ReplyMarkup: models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{
				{{Text: "Оплатить", URL: invoice.URL}},
			},
		},
	})
	if err != nil {
		slog.Error("Error sending invoice link", "error", err)
	}
}

func (h Handler) PayPointsCallbackHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	_, _ = b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: update.CallbackQuery.ID,
	})

	ctxWithTime, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	code := callbackParam(update.CallbackQuery.Data, "code")
	chatId := update.CallbackQuery.Message.Message.Chat.ID
	telegramId := update.CallbackQuery.From.ID

	_, _, err := h.paymentService.PayWithPoints(ctxWithTime, telegramId, code)
	switch {
	case err == nil:
		// Контроллер уже уведомил пользователя
	case errors.Is(err, database.ErrInsufficientPoints):
		_, _ = b.SendMessage(ctxWithTime, &bot.SendMessageParams{
			ChatID: chatId,
			Text:   "Недостаточно баллов. Баллы начисляются за оплаты приглашённых.",
		})
	case errors.Is(err, database.ErrTariffNotPayable):
		_, _ = b.SendMessage(ctxWithTime, &bot.SendMessageParams{
			ChatID: chatId,
			Text:   "Этот тариф нельзя оплатить баллами.",
		})
	default:
		slog.Error("Failed to pay with points",
			"telegramId", utils.MaskHalfInt64(telegramId), "tariffCode", code, "error", err)
		_, _ = b.SendMessage(ctxWithTime, &bot.SendMessageParams{
			ChatID: chatId,
			Text:   "Оплата баллами не прошла, попробуйте позже.",
		})
	}
}
