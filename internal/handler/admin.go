package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"maxnet-vpn-bot/internal/database"
	"maxnet-vpn-bot/utils"
)

const adminHelp = `Команды оператора:
/admin_add <telegram_id> <тариф> — выдать подписку (1m, 3m, 6m, 1y, forever)
/admin_deactivate <id подписки> — погасить
/admin_activate <id подписки> — включить обратно
/admin_delete <id подписки> — удалить строку
/admin_list — последние 50 подписок
/admin_promo <дней> [макс. активаций] [код] — создать промокод
/admin_points <telegram_id> <дельта> — начислить или списать баллы
/admin_broadcast <текст> — разослать сообщение всем пользователям`

func (h Handler) AdminCommandHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   adminHelp,
	})
}

func reply(ctx context.Context, b *bot.Bot, chatId int64, text string) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatId, Text: text}); err != nil {
		slog.Error("Error sending admin reply", "error", err)
	}
}

func (h Handler) AdminAddHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	ctxWithTime, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	chatId := update.Message.Chat.ID

	args := strings.Fields(update.Message.Text)
	if len(args) != 3 {
		reply(ctxWithTime, b, chatId, "Формат: /admin_add <telegram_id> <тариф>")
		return
	}
	telegramId, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		reply(ctxWithTime, b, chatId, "Некорректный telegram_id")
		return
	}

	outcome, err := h.paymentService.AdminAddSubscription(ctxWithTime, telegramId, args[2])
	if err != nil {
		slog.Error("Admin add failed", "error", err)
		reply(ctxWithTime, b, chatId, "Ошибка: "+err.Error())
		return
	}
	reply(ctxWithTime, b, chatId, fmt.Sprintf("Готово: подписка #%d (%s) до %s",
		outcome.SubscriptionID, outcome.Kind, outcome.ExpiresAt.Format("02.01.2006 15:04")))
}

func (h Handler) AdminDeactivateHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.adminToggle(ctx, b, update, "/admin_deactivate", false)
}

func (h Handler) AdminActivateHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.adminToggle(ctx, b, update, "/admin_activate", true)
}

func (h Handler) adminToggle(ctx context.Context, b *bot.Bot, update *models.Update, command string, activate bool) {
	ctxWithTime, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	chatId := update.Message.Chat.ID

	args := strings.Fields(update.Message.Text)
	if len(args) != 2 {
		reply(ctxWithTime, b, chatId, "Формат: "+command+" <id подписки>")
		return
	}
	subId, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		reply(ctxWithTime, b, chatId, "Некорректный id")
		return
	}

	eventName := fmt.Sprintf("admin_deactivate_%d_%d", subId, time.Now().UnixNano())
	var sub *database.Subscription
	if activate {
		eventName = fmt.Sprintf("admin_activate_%d_%d", subId, time.Now().UnixNano())
		sub, err = h.paymentService.Activate(ctxWithTime, subId, eventName)
	} else {
		sub, err = h.paymentService.Deactivate(ctxWithTime, subId, eventName)
	}
	if err != nil {
		slog.Error("Admin toggle failed", "subscriptionId", subId, "error", err)
		reply(ctxWithTime, b, chatId, "Ошибка: "+err.Error())
		return
	}
	if sub == nil {
		reply(ctxWithTime, b, chatId, "Подписка не найдена или уже в нужном состоянии")
		return
	}
	reply(ctxWithTime, b, chatId, fmt.Sprintf("Подписка #%d обновлена", sub.ID))
}

func (h Handler) AdminDeleteHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	ctxWithTime, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	chatId := update.Message.Chat.ID

	args := strings.Fields(update.Message.Text)
	if len(args) != 2 {
		reply(ctxWithTime, b, chatId, "Формат: /admin_delete <id подписки>")
		return
	}
	subId, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		reply(ctxWithTime, b, chatId, "Некорректный id")
		return
	}

	// Сначала гасим, чтобы снять пира, затем удаляем строку
	eventName := fmt.Sprintf("admin_delete_%d_%d", subId, time.Now().UnixNano())
	if _, err := h.paymentService.Deactivate(ctxWithTime, subId, eventName); err != nil {
		slog.Error("Admin delete: deactivate failed", "subscriptionId", subId, "error", err)
		reply(ctxWithTime, b, chatId, "Ошибка: "+err.Error())
		return
	}
	deleted, err := h.subscriptionRepo.DeleteById(ctxWithTime, subId)
	if err != nil {
		slog.Error("Admin delete failed", "subscriptionId", subId, "error", err)
		reply(ctxWithTime, b, chatId, "Ошибка: "+err.Error())
		return
	}
	if !deleted {
		reply(ctxWithTime, b, chatId, "Подписка не найдена")
		return
	}
	reply(ctxWithTime, b, chatId, fmt.Sprintf("Подписка #%d удалена", subId))
}

func (h Handler) AdminListHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	ctxWithTime, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	chatId := update.Message.Chat.ID

	subs, err := h.subscriptionRepo.FindLast(ctxWithTime, 50)
	if err != nil {
		slog.Error("Admin list failed", "error", err)
		reply(ctxWithTime, b, chatId, "Ошибка: "+err.Error())
		return
	}
	if len(subs) == 0 {
		reply(ctxWithTime, b, chatId, "Подписок нет")
		return
	}

	var sb strings.Builder
	for _, s := range subs {
		state := "✅"
		if !s.Active {
			state = "⛔"
		}
		fmt.Fprintf(&sb, "%s #%d tg=%d %s %s %s до %s\n",
			state, s.ID, s.TelegramUserID,
			utils.UsernameForDisplay(&s.TelegramUserName, true),
			s.ChannelName, s.VpnIP, s.ExpiresAt.Format("02.01.06"))
	}
	reply(ctxWithTime, b, chatId, sb.String())
}

// parseAdminPromoCommand разбирает аргументы /admin_promo в заготовку
// промокода. Ошибка — готовый текст ответа оператору.
func parseAdminPromoCommand(args []string) (*database.PromoCode, error) {
	if len(args) < 2 {
		return nil, errors.New("Формат: /admin_promo <дней> [макс. активаций] [код]")
	}
	days, err := strconv.Atoi(args[1])
	if err != nil || days <= 0 {
		return nil, errors.New("Некорректное число дней")
	}

	promo := &database.PromoCode{
		ActionType:   "extra_days",
		ExtraDays:    days,
		PerUserLimit: 1,
		TariffScope:  database.PromoScopeAll,
	}
	if len(args) > 2 {
		maxUses, err := strconv.Atoi(args[2])
		if err != nil || maxUses <= 0 {
			return nil, errors.New("Некорректный лимит активаций")
		}
		promo.MaxUses = &maxUses
		promo.IsMultiUse = maxUses > 1
	}
	if len(args) > 3 {
		promo.Code = args[3]
		return promo, nil
	}
	promo.Code, err = database.GenerateCode(8)
	if err != nil {
		slog.Error("Failed to generate promo code", "error", err)
		return nil, errors.New("Ошибка генерации кода")
	}
	return promo, nil
}

func (h Handler) AdminPromoHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	ctxWithTime, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	chatId := update.Message.Chat.ID

	promo, err := parseAdminPromoCommand(strings.Fields(update.Message.Text))
	if err != nil {
		reply(ctxWithTime, b, chatId, err.Error())
		return
	}

	created, err := h.promoRepo.Create(ctxWithTime, promo)
	if err != nil {
		slog.Error("Failed to create promo", "error", err)
		reply(ctxWithTime, b, chatId, "Ошибка: "+err.Error())
		return
	}
	reply(ctxWithTime, b, chatId, fmt.Sprintf("Промокод %s: +%d дн.", created.Code, created.ExtraDays))
}

func (h Handler) AdminPointsHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	ctxWithTime, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	chatId := update.Message.Chat.ID

	args := strings.Fields(update.Message.Text)
	if len(args) != 3 {
		reply(ctxWithTime, b, chatId, "Формат: /admin_points <telegram_id> <дельта>")
		return
	}
	telegramId, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		reply(ctxWithTime, b, chatId, "Некорректный telegram_id")
		return
	}
	delta, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil || delta == 0 {
		reply(ctxWithTime, b, chatId, "Некорректная дельта")
		return
	}

	newBalance, err := h.pointsRepo.AddPoints(ctxWithTime, database.AddPointsParams{
		TelegramUserID: telegramId,
		Delta:          delta,
		Reason:         "admin",
		Source:         "manual",
	})
	if err != nil {
		slog.Error("Admin points failed", "error", err)
		reply(ctxWithTime, b, chatId, "Ошибка: "+err.Error())
		return
	}
	reply(ctxWithTime, b, chatId, fmt.Sprintf("Баланс пользователя: %d", newBalance))
}

func (h Handler) AdminBroadcastHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatId := update.Message.Chat.ID

	text := strings.TrimSpace(strings.TrimPrefix(update.Message.Text, "/admin_broadcast"))
	if text == "" {
		reply(ctx, b, chatId, "Формат: /admin_broadcast <текст>")
		return
	}

	if !h.broadcastService.Start(text) {
		reply(ctx, b, chatId, "Рассылка уже идёт, дождитесь завершения")
		return
	}
	reply(ctx, b, chatId, "Рассылка запущена")
}
