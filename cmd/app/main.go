package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/robfig/cron/v3"

	"maxnet-vpn-bot/internal/broadcast"
	"maxnet-vpn-bot/internal/cache"
	"maxnet-vpn-bot/internal/config"
	"maxnet-vpn-bot/internal/database"
	"maxnet-vpn-bot/internal/handler"
	"maxnet-vpn-bot/internal/heleket"
	"maxnet-vpn-bot/internal/notification"
	"maxnet-vpn-bot/internal/payment"
	"maxnet-vpn-bot/internal/points"
	"maxnet-vpn-bot/internal/tribute"
	"maxnet-vpn-bot/internal/wireguard"
	"maxnet-vpn-bot/internal/yookassa"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	config.InitConfig()
	slog.Info("Application starting", "version", Version, "commit", Commit, "buildDate", BuildDate)

	pool, err := initDatabase(ctx, config.DatabaseURL())
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	err = database.RunMigrations(ctx, &database.MigrationConfig{Direction: "up", MigrationsPath: "./db/migrations", Steps: 0}, pool)
	if err != nil {
		panic(err)
	}

	appCache := cache.NewCache()
	subscriptionRepository := database.NewSubscriptionRepository(pool)
	tariffRepository := database.NewTariffRepository(pool)
	promoRepository := database.NewPromoRepository(pool)
	pointsRepository := database.NewPointsRepository(pool)
	referralRepository := database.NewReferralRepository(pool)
	notificationRepository := database.NewNotificationRepository(pool)

	wgConfigFile := wireguard.NewConfigFile(config.WGConfigPath(), config.WGConfigLockPath())
	wgManager := wireguard.NewManager(config.WGInterfaceName(), wgConfigFile)
	if err := wgManager.Probe(ctx); err != nil {
		slog.Warn("WireGuard gateway not reachable at startup", "error", err)
	}

	var yookassaClient *yookassa.Client
	if config.IsYookassaEnabled() {
		yookassaClient = yookassa.NewClient(config.YookassaURL(), config.YookassaShopId(), config.YookassaSecretKey())
	}
	var heleketClient *heleket.Client
	if config.IsHeleketEnabled() {
		heleketClient = heleket.NewClient(config.HeleketURL(), config.HeleketMerchantId(), config.HeleketApiPaymentKey())
	}

	b, err := bot.New(config.TelegramToken(), bot.WithWorkers(3))
	if err != nil {
		panic(err)
	}
	messenger := handler.NewTelegramMessenger(b)

	pointsService := points.NewService(pointsRepository, referralRepository, tariffRepository)
	paymentService := payment.NewPaymentService(
		pool,
		subscriptionRepository,
		tariffRepository,
		promoRepository,
		pointsRepository,
		referralRepository,
		pointsService,
		wgManager,
		messenger,
	)
	if yookassaClient != nil {
		paymentService.SetPriorPaymentChecker(yookassaClient)
	}

	subscriptionService := notification.NewSubscriptionService(subscriptionRepository, notificationRepository, paymentService, messenger)
	cronScheduler := subscriptionChecker(subscriptionService)
	cronScheduler.Start()
	defer cronScheduler.Stop()

	broadcastService := broadcast.NewService(b, subscriptionRepository)

	h := handler.NewHandler(
		paymentService,
		pointsService,
		subscriptionRepository,
		tariffRepository,
		promoRepository,
		pointsRepository,
		yookassaClient,
		heleketClient,
		broadcastService,
		appCache,
	)

	me, err := b.GetMe(ctx)
	if err != nil {
		panic(err)
	}
	config.SetBotURL(fmt.Sprintf("https://t.me/%s", me.Username))

	_, err = b.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: []models.BotCommand{
			{Command: "start", Description: "Начать работу с ботом"},
		},
	})
	if err != nil {
		slog.Warn("Failed to set bot commands", "error", err)
	}

	b.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, h.StartCommandHandler, h.SuspiciousUserFilterMiddleware)

	b.RegisterHandler(bot.HandlerTypeMessageText, "/admin", bot.MatchTypeExact, h.AdminCommandHandler, isAdminMiddleware)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/admin_add", bot.MatchTypePrefix, h.AdminAddHandler, isAdminMiddleware)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/admin_deactivate", bot.MatchTypePrefix, h.AdminDeactivateHandler, isAdminMiddleware)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/admin_activate", bot.MatchTypePrefix, h.AdminActivateHandler, isAdminMiddleware)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/admin_delete", bot.MatchTypePrefix, h.AdminDeleteHandler, isAdminMiddleware)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/admin_list", bot.MatchTypeExact, h.AdminListHandler, isAdminMiddleware)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/admin_promo", bot.MatchTypePrefix, h.AdminPromoHandler, isAdminMiddleware)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/admin_points", bot.MatchTypePrefix, h.AdminPointsHandler, isAdminMiddleware)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/admin_broadcast", bot.MatchTypePrefix, h.AdminBroadcastHandler, isAdminMiddleware)

	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, handler.CallbackStart, bot.MatchTypeExact, h.StartCallbackHandler, h.SuspiciousUserFilterMiddleware)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, handler.CallbackBuy, bot.MatchTypeExact, h.BuyCallbackHandler, h.SuspiciousUserFilterMiddleware)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, handler.CallbackTariff, bot.MatchTypePrefix, h.TariffCallbackHandler, h.SuspiciousUserFilterMiddleware)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, handler.CallbackPayYookassa, bot.MatchTypePrefix, h.PayYookassaCallbackHandler, h.SuspiciousUserFilterMiddleware)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, handler.CallbackPayHeleket, bot.MatchTypePrefix, h.PayHeleketCallbackHandler, h.SuspiciousUserFilterMiddleware)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, handler.CallbackPayPoints, bot.MatchTypePrefix, h.PayPointsCallbackHandler, h.SuspiciousUserFilterMiddleware)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, handler.CallbackMySub, bot.MatchTypeExact, h.MySubCallbackHandler, h.SuspiciousUserFilterMiddleware)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, handler.CallbackResendConf, bot.MatchTypeExact, h.ResendConfigCallbackHandler, h.SuspiciousUserFilterMiddleware)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, handler.CallbackPromo, bot.MatchTypeExact, h.PromoCallbackHandler, h.SuspiciousUserFilterMiddleware)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, handler.CallbackReferral, bot.MatchTypeExact, h.ReferralCallbackHandler, h.SuspiciousUserFilterMiddleware)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, handler.CallbackTrial, bot.MatchTypeExact, h.TrialCallbackHandler, h.SuspiciousUserFilterMiddleware)

	// Ввод промокода текстом, только пока пользователь в режиме ожидания
	b.RegisterHandlerMatchFunc(h.IsWaitingPromoInput, h.PromoInputHandler, h.SuspiciousUserFilterMiddleware)

	mux := http.NewServeMux()
	mux.Handle("/healthcheck", fullHealthHandler(pool, wgManager))

	if yookassaClient != nil {
		yookassaWebhook := yookassa.NewWebhookHandler(yookassaClient, paymentService)
		mux.HandleFunc("/yookassa/webhook", yookassaWebhook.HandleWebhook)
		slog.Info("YooKassa webhook handler registered", "path", "/yookassa/webhook")
	}
	if heleketClient != nil {
		heleketWebhook := heleket.NewWebhookHandler(paymentService)
		mux.HandleFunc("/heleket/webhook", heleketWebhook.HandleWebhook)
		slog.Info("Heleket webhook handler registered", "path", "/heleket/webhook")
	}
	if config.TributeWebhookPath() != "" {
		tributeHandler := tribute.NewClient(paymentService)
		mux.Handle(config.TributeWebhookPath(), tributeHandler.WebHookHandler())
		slog.Info("Tribute webhook handler registered", "path", config.TributeWebhookPath())
	}

	adminHTTP := handler.NewAdminHTTP(subscriptionRepository, paymentService)
	adminHTTP.Register(mux)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.GetHttpPort()),
		Handler: mux,
	}
	go func() {
		log.Printf("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	slog.Info("Bot is starting...")
	b.Start(ctx)

	log.Println("Shutting down server…")
	shutdownCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

func fullHealthHandler(pool *pgxpool.Pool, wg *wireguard.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{
			"status": "ok",
			"db":     "ok",
			"wg":     "ok",
		}

		dbCtx, dbCancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer dbCancel()
		if err := pool.Ping(dbCtx); err != nil {
			status["status"] = "fail"
			status["db"] = "error: " + err.Error()
		}

		wgCtx, wgCancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer wgCancel()
		if err := wg.Probe(wgCtx); err != nil {
			status["status"] = "fail"
			status["wg"] = "error: " + err.Error()
		}

		w.Header().Set("Content-Type", "application/json")
		if status["status"] != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintf(w, `{"status":"%s","db":"%s","wg":"%s","time":"%s","version":"%s","commit":"%s","buildDate":"%s"}`,
			status["status"], status["db"], status["wg"], time.Now().Format(time.RFC3339), Version, Commit, BuildDate)
	})
}

func isAdminMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		adminID := config.GetAdminTelegramId()

		if update.Message != nil && update.Message.From.ID == adminID {
			next(ctx, b, update)
			return
		}

		if update.CallbackQuery != nil && update.CallbackQuery.From.ID == adminID {
			next(ctx, b, update)
			return
		}
	}
}

func subscriptionChecker(subService *notification.SubscriptionService) *cron.Cron {
	c := cron.New()

	// Просроченные подписки гасим раз в минуту
	_, err := c.AddFunc("@every 1m", func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic in ProcessExpired", "panic", r)
			}
		}()
		if err := subService.ProcessExpired(); err != nil {
			slog.Error("Error processing expired subscriptions", "error", err)
		}
	})
	if err != nil {
		panic(err)
	}

	// Напоминания об окончании: окна широкие, частить незачем
	_, err = c.AddFunc("@every 10m", func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic in ProcessReminders", "panic", r)
			}
		}()
		if err := subService.ProcessReminders(); err != nil {
			slog.Error("Error processing subscription reminders", "error", err)
		}
	})
	if err != nil {
		panic(err)
	}

	return c
}

func initDatabase(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(config.DBPoolMax())
	poolConfig.MinConns = int32(config.DBPoolMin())

	return pgxpool.ConnectConfig(ctx, poolConfig)
}
