package handler

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"maxnet-vpn-bot/internal/broadcast"
	"maxnet-vpn-bot/internal/cache"
	"maxnet-vpn-bot/internal/config"
	"maxnet-vpn-bot/internal/database"
	"maxnet-vpn-bot/internal/heleket"
	"maxnet-vpn-bot/internal/payment"
	"maxnet-vpn-bot/internal/points"
	"maxnet-vpn-bot/internal/yookassa"
	"maxnet-vpn-bot/utils"
)

type Handler struct {
	paymentService   *payment.PaymentService
	pointsService    *points.Service
	subscriptionRepo *database.SubscriptionRepository
	tariffRepo       *database.TariffRepository
	promoRepo        *database.PromoRepository
	pointsRepo       *database.PointsRepository
	yookassaClient   *yookassa.Client
	heleketClient    *heleket.Client
	broadcastService *broadcast.Service
	cache            *cache.Cache
}

func NewHandler(
	paymentService *payment.PaymentService,
	pointsService *points.Service,
	subscriptionRepo *database.SubscriptionRepository,
	tariffRepo *database.TariffRepository,
	promoRepo *database.PromoRepository,
	pointsRepo *database.PointsRepository,
	yookassaClient *yookassa.Client,
	heleketClient *heleket.Client,
	broadcastService *broadcast.Service,
	cache *cache.Cache,
) *Handler {
	return &Handler{
		paymentService:   paymentService,
		pointsService:    pointsService,
		subscriptionRepo: subscriptionRepo,
		tariffRepo:       tariffRepo,
		promoRepo:        promoRepo,
		pointsRepo:       pointsRepo,
		yookassaClient:   yookassaClient,
		heleketClient:    heleketClient,
		broadcastService: broadcastService,
		cache:            cache,
	}
}

// TelegramMessenger адаптирует *bot.Bot к поверхности отправки контроллера.
type TelegramMessenger struct {
	bot *bot.Bot
}

func NewTelegramMessenger(b *bot.Bot) *TelegramMessenger {
	return &TelegramMessenger{bot: b}
}

func (tm *TelegramMessenger) SendText(ctx context.Context, chatId int64, text string) error {
	_, err := tm.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatId,
		Text:   text,
	})
	return err
}

func (tm *TelegramMessenger) SendFile(ctx context.Context, chatId int64, filename string, content []byte, caption string) error {
	_, err := tm.bot.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID: chatId,
		Document: &models.InputFileUpload{
			Filename: filename,
			Data:     bytes.NewReader(content),
		},
		Caption: caption,
	})
	return err
}

// SuspiciousUserFilterMiddleware отсекает заблокированных и пользователей с
// маскировкой под служебные аккаунты.
func (h Handler) SuspiciousUserFilterMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		var from *models.User
		if update.Message != nil {
			from = update.Message.From
		} else if update.CallbackQuery != nil {
			from = &update.CallbackQuery.From
		}
		if from == nil {
			return
		}

		if config.GetBlockedTelegramIds()[from.ID] {
			slog.Info("Update dropped: blocked user", "telegramId", utils.MaskHalfInt64(from.ID))
			return
		}
		if utils.IsSuspiciousUser(&from.Username, &from.FirstName, &from.LastName) {
			slog.Warn("Update dropped: suspicious user", "telegramId", utils.MaskHalfInt64(from.ID))
			return
		}
		next(ctx, b, update)
	}
}
