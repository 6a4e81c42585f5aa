package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"maxnet-vpn-bot/internal/config"
	"maxnet-vpn-bot/utils"
)

func (h Handler) ReferralCallbackHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	_, _ = b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: update.CallbackQuery.ID,
	})

	ctxWithTime, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	telegramId := update.CallbackQuery.From.ID
	chatId := update.CallbackQuery.Message.Message.Chat.ID

	info, err := h.pointsService.GetOrCreateReferralInfo(ctxWithTime, telegramId)
	if err != nil {
		slog.Error("Failed to build referral info",
			"telegramId", utils.MaskHalfInt64(telegramId), "error", err)
		return
	}

	balance, err := h.pointsRepo.GetBalance(ctxWithTime, telegramId)
	if err != nil {
		slog.Error("Failed to load balance", "error", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Ваша ссылка:\n%s?start=%s\n\n", config.BotURL(), info.Code)
	fmt.Fprintf(&sb, "Баланс баллов: %d\n\n", balance)
	sb.WriteString("Приглашено / оплатили по уровням:\n")
	for level, invited := range info.InvitedPerLevel {
		if invited == 0 {
			continue
		}
		fmt.Fprintf(&sb, "Уровень %d: %d / %d\n", level+1, invited, info.PaidPerLevel[level])
	}
	if config.ReferralTrialDays() > 0 {
		fmt.Fprintf(&sb, "\nПриглашённые получают %d дн. пробного доступа, вы — баллы с их оплат.",
			config.ReferralTrialDays())
	}

	_, err = b.SendMessage(ctxWithTime, &bot.SendMessageParams{
		ChatID: chatId,
		Text:   sb.String(),
		ReplyMarkup: models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{
				{{Text: "← Назад", CallbackData: CallbackStart}},
			},
		},
	})
	if err != nil {
		slog.Error("Error sending referral info", "error", err)
	}
}
