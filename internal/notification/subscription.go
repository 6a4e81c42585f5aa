package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"maxnet-vpn-bot/internal/config"
	"maxnet-vpn-bot/internal/database"
	"maxnet-vpn-bot/utils"
)

type subscriptionRepository interface {
	FindExpiredActive(ctx context.Context) ([]database.Subscription, error)
	FindExpiringBetween(ctx context.Context, from, to time.Time) ([]database.Subscription, error)
}

type notificationRepository interface {
	MarkSent(ctx context.Context, subscriptionId, telegramId int64, notificationType string, expiresAt time.Time) (bool, error)
}

type deactivator interface {
	Deactivate(ctx context.Context, subscriptionId int64, eventName string) (*database.Subscription, error)
}

type messenger interface {
	SendText(ctx context.Context, chatId int64, text string) error
}

type SubscriptionService struct {
	subscriptionRepo subscriptionRepository
	notificationRepo notificationRepository
	payments         deactivator
	messenger        messenger
}

func NewSubscriptionService(
	subscriptionRepo subscriptionRepository,
	notificationRepo notificationRepository,
	payments deactivator,
	messenger messenger,
) *SubscriptionService {
	return &SubscriptionService{
		subscriptionRepo: subscriptionRepo,
		notificationRepo: notificationRepo,
		payments:         payments,
		messenger:        messenger,
	}
}

// ProcessExpired гасит все активные подписки с истёкшим сроком. Ошибка по
// одной строке не останавливает проход.
func (s *SubscriptionService) ProcessExpired() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	expired, err := s.subscriptionRepo.FindExpiredActive(ctx)
	if err != nil {
		slog.Error("Failed to find expired subscriptions", "error", err)
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	slog.Info("Found expired subscriptions", "count", len(expired))

	for _, sub := range expired {
		eventName := fmt.Sprintf("expired_sweep_%d_%d", sub.ID, sub.ExpiresAt.Unix())
		if _, err := s.payments.Deactivate(ctx, sub.ID, eventName); err != nil {
			slog.Error("Failed to deactivate expired subscription",
				"subscriptionId", sub.ID, "error", err)
			continue
		}
		if err := s.messenger.SendText(ctx, sub.TelegramUserID,
			"Срок подписки истёк, доступ отключён. Продлить можно в меню бота."); err != nil {
			slog.Error("Failed to notify about expiration",
				"telegramId", utils.MaskHalfInt64(sub.TelegramUserID), "error", err)
		}
	}
	return nil
}

// ClassifyReminder относит срок истечения к окну напоминания. Окна с запасом
// шире интервала запуска, чтобы ни один срок не проскочил между проходами.
func ClassifyReminder(expiresAt, now time.Time) string {
	d := expiresAt.Sub(now)
	switch {
	case d > 60*time.Hour && d <= 73*time.Hour:
		return database.NotificationExpires3d
	case d > 12*time.Hour && d <= 25*time.Hour:
		return database.NotificationExpires1d
	case d > 1*time.Hour && d <= 2*time.Hour:
		return database.NotificationExpires1h
	default:
		return ""
	}
}

// InQuietWindow — true, когда отправка разрешена: часы [09..22] UTC.
func InQuietWindow(now time.Time) bool {
	hour := now.UTC().Hour()
	return hour >= 9 && hour <= 22
}

func reminderText(notificationType string, expiresAt time.Time) string {
	when := expiresAt.Format("02.01.2006 15:04")
	switch notificationType {
	case database.NotificationExpires3d:
		return fmt.Sprintf("Подписка истекает через 3 дня — %s. Продлите заранее, чтобы не потерять доступ.", when)
	case database.NotificationExpires1d:
		return fmt.Sprintf("Подписка истекает завтра — %s.", when)
	case database.NotificationExpires1h:
		return fmt.Sprintf("Подписка истекает в течение часа — %s.", when)
	default:
		return ""
	}
}

// ProcessReminders отправляет напоминания об истечении. Маркер пишется до
// отправки: потерянное сообщение дешевле дубля.
func (s *SubscriptionService) ProcessReminders() error {
	now := time.Now()
	if config.RemindersQuietHours() && !InQuietWindow(now) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Один проход покрывает самое широкое окно
	upcoming, err := s.subscriptionRepo.FindExpiringBetween(ctx, now, now.Add(73*time.Hour))
	if err != nil {
		slog.Error("Failed to find expiring subscriptions", "error", err)
		return err
	}

	sent := 0
	for _, sub := range upcoming {
		notificationType := ClassifyReminder(sub.ExpiresAt, now)
		if notificationType == "" {
			continue
		}

		fresh, err := s.notificationRepo.MarkSent(ctx, sub.ID, sub.TelegramUserID, notificationType, sub.ExpiresAt)
		if err != nil {
			slog.Error("Failed to mark reminder", "subscriptionId", sub.ID, "error", err)
			continue
		}
		if !fresh {
			continue
		}

		if err := s.messenger.SendText(ctx, sub.TelegramUserID, reminderText(notificationType, sub.ExpiresAt)); err != nil {
			slog.Error("Failed to send reminder",
				"telegramId", utils.MaskHalfInt64(sub.TelegramUserID), "type", notificationType, "error", err)
			continue
		}
		sent++
	}

	if sent > 0 {
		slog.Info("Sent expiration reminders", "count", sent)
	}
	return nil
}
