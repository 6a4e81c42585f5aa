package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
)

const (
	NotificationExpires3d = "expires_3d"
	NotificationExpires1d = "expires_1d"
	NotificationExpires1h = "expires_1h"
)

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// MarkSent вставляет маркер напоминания. Возвращает false, если напоминание
// этого типа уже было отправлено (ON CONFLICT по уникальным индексам).
func (nr *NotificationRepository) MarkSent(ctx context.Context, subscriptionId, telegramId int64, notificationType string, expiresAt time.Time) (bool, error) {
	result, err := nr.pool.Exec(ctx, `
		INSERT INTO subscription_notifications
			(subscription_id, notification_type, telegram_user_id, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`,
		subscriptionId, notificationType, telegramId, expiresAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return result.RowsAffected() > 0, nil
}
