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
	"maxnet-vpn-bot/internal/payment"
	"maxnet-vpn-bot/internal/wireguard"
	"maxnet-vpn-bot/utils"
)

const greeting = "MaxNet VPN — быстрый WireGuard без логов.\n\nВыберите действие:"

func (h Handler) StartCommandHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	ctxWithTime, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	chatId := update.Message.Chat.ID

	// Deep-link: /start REF<код> привязывает приглашённого к рефереру
	if parts := strings.Fields(update.Message.Text); len(parts) > 1 {
		code := strings.TrimSpace(parts[1])
		if strings.HasPrefix(strings.ToUpper(code), "REF") {
			err := h.pointsService.RegisterReferralStart(ctxWithTime, chatId, code)
			switch {
			case err == nil:
				slog.Info("Referral registered",
					"invitedId", utils.MaskHalfInt64(chatId), "code", code)
			case errors.Is(err, database.ErrAlreadyHasReferrer),
				errors.Is(err, database.ErrSelfReferral),
				errors.Is(err, database.ErrReferralCodeNotFound):
				// Повтор, свой код или опечатка: просто показываем меню
			default:
				slog.Error("Failed to register referral", "error", err)
			}
		}
	}

	_, err := b.SendMessage(ctxWithTime, &bot.SendMessageParams{
		ChatID:    chatId,
		ParseMode: models.ParseModeHTML,
		ReplyMarkup: models.InlineKeyboardMarkup{
			InlineKeyboard: h.buildStartKeyboard(ctxWithTime, chatId),
		},
		Text: greeting,
	})
	if err != nil {
		slog.Error("Error sending /start message", "error", err)
	}
}

func (h Handler) StartCallbackHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	_, _ = b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: update.CallbackQuery.ID,
	})

	// Возврат в меню сбрасывает ожидание ввода промокода
	userId := update.CallbackQuery.From.ID
	h.cache.Delete(fmt.Sprintf("promo_state_%d", userId))

	ctxWithTime, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	callback := update.CallbackQuery
	keyboard := h.buildStartKeyboard(ctxWithTime, callback.From.ID)

	_, err := b.EditMessageText(ctxWithTime, &bot.EditMessageTextParams{
		ChatID:    callback.Message.Message.Chat.ID,
		MessageID: callback.Message.Message.ID,
		ParseMode: models.ParseModeHTML,
		ReplyMarkup: models.InlineKeyboardMarkup{
			InlineKeyboard: keyboard,
		},
		Text: greeting,
	})
	if err != nil {
		// Двойной клик по той же кнопке
		if strings.Contains(err.Error(), "message is not modified") {
			return
		}
		_, _ = b.SendMessage(ctxWithTime, &bot.SendMessageParams{
			ChatID:    callback.Message.Message.Chat.ID,
			ParseMode: models.ParseModeHTML,
			ReplyMarkup: models.InlineKeyboardMarkup{
				InlineKeyboard: keyboard,
			},
			Text: greeting,
		})
	}
}

func (h Handler) buildStartKeyboard(ctx context.Context, telegramId int64) [][]models.InlineKeyboardButton {
	var keyboard [][]models.InlineKeyboardButton

	active, err := h.subscriptionRepo.FindLatestActive(ctx, telegramId)
	if err != nil {
		slog.Error("Failed to load subscription for keyboard", "error", err)
	}

	if active != nil {
		keyboard = append(keyboard, []models.InlineKeyboardButton{
			{Text: "📡 Моя подписка", CallbackData: CallbackMySub},
		})
	} else if config.ReferralTrialDays() > 0 {
		keyboard = append(keyboard, []models.InlineKeyboardButton{
			{Text: "🎁 Пробный период", CallbackData: CallbackTrial},
		})
	}

	keyboard = append(keyboard,
		[]models.InlineKeyboardButton{{Text: "💳 Купить подписку", CallbackData: CallbackBuy}},
		[]models.InlineKeyboardButton{{Text: "🏷 Промокод", CallbackData: CallbackPromo}},
		[]models.InlineKeyboardButton{{Text: "👥 Рефералы и баллы", CallbackData: CallbackReferral}},
	)
	return keyboard
}

func (h Handler) MySubCallbackHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	_, _ = b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: update.CallbackQuery.ID,
	})

	ctxWithTime, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	telegramId := update.CallbackQuery.From.ID
	chatId := update.CallbackQuery.Message.Message.Chat.ID

	sub, err := h.subscriptionRepo.FindLatestActive(ctxWithTime, telegramId)
	if err != nil {
		slog.Error("Failed to load subscription", "error", err)
		return
	}
	if sub == nil {
		_, _ = b.SendMessage(ctxWithTime, &bot.SendMessageParams{
			ChatID: chatId,
			Text:   "Активной подписки нет. Оформить можно через «Купить подписку».",
		})
		return
	}

	text := fmt.Sprintf("Подписка активна до %s.\nIP: %s",
		sub.ExpiresAt.Format("02.01.2006 15:04"), sub.VpnIP)

	_, err = b.SendMessage(ctxWithTime, &bot.SendMessageParams{
		ChatID: chatId,
		Text:   text,
		ReplyMarkup: models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{
				{{Text: "📄 Прислать конфиг ещё раз", CallbackData: CallbackResendConf}},
				{{Text: "← Назад", CallbackData: CallbackStart}},
			},
		},
	})
	if err != nil {
		slog.Error("Error sending subscription info", "error", err)
	}
}

// ResendConfigCallbackHandler пересобирает конфиг из сохранённых ключей.
func (h Handler) ResendConfigCallbackHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	_, _ = b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: update.CallbackQuery.ID,
	})

	ctxWithTime, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	telegramId := update.CallbackQuery.From.ID
	chatId := update.CallbackQuery.Message.Message.Chat.ID

	sub, err := h.subscriptionRepo.FindLatestActive(ctxWithTime, telegramId)
	if err != nil {
		slog.Error("Failed to load subscription", "error", err)
		return
	}
	if sub == nil || !sub.HasWireguardIdentity() {
		_, _ = b.SendMessage(ctxWithTime, &bot.SendMessageParams{
			ChatID: chatId,
			Text:   "Конфиг недоступен: нет активной подписки.",
		})
		return
	}

	configText := wireguard.BuildClientConfig(sub.WgPrivateKey, sub.VpnIP,
		config.WGClientDNS(), config.WGServerPublicKey(), config.WGServerEndpoint())

	messenger := NewTelegramMessenger(b)
	caption := fmt.Sprintf("Ваш конфиг WireGuard. Подписка до %s.", sub.ExpiresAt.Format("02.01.2006 15:04"))
	if err := messenger.SendFile(ctxWithTime, chatId, "maxnet-vpn.conf", []byte(configText), caption); err != nil {
		slog.Error("Failed to resend config", "telegramId", utils.MaskHalfInt64(telegramId), "error", err)
	}
}

func (h Handler) TrialCallbackHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	_, _ = b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: update.CallbackQuery.ID,
	})

	ctxWithTime, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	telegramId := update.CallbackQuery.From.ID
	chatId := update.CallbackQuery.Message.Message.Chat.ID

	_, err := h.paymentService.GrantReferralTrial(ctxWithTime, telegramId)
	switch {
	case err == nil:
		// Конфиг уже отправлен контроллером
	case errors.Is(err, payment.ErrNoReferrer):
		_, _ = b.SendMessage(ctxWithTime, &bot.SendMessageParams{
			ChatID: chatId,
			Text:   "Пробный период доступен только по приглашению. Попросите у друга реферальную ссылку.",
		})
	case errors.Is(err, payment.ErrAlreadyProcessed):
		_, _ = b.SendMessage(ctxWithTime, &bot.SendMessageParams{
			ChatID: chatId,
			Text:   "Пробный период уже использован.",
		})
	default:
		slog.Error("Failed to grant trial", "telegramId", utils.MaskHalfInt64(telegramId), "error", err)
		_, _ = b.SendMessage(ctxWithTime, &bot.SendMessageParams{
			ChatID: chatId,
			Text:   "Не получилось выдать пробный доступ, попробуйте позже.",
		})
	}
}
