package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"maxnet-vpn-bot/utils"
)

// ErrEventAlreadyApplied — повторная доставка события, чьё имя уже записано
// в строку: продление не выполняется.
var ErrEventAlreadyApplied = errors.New("event already applied to subscription")

// Querier покрывает и pgxpool.Pool, и pgx.Tx: операции, которые должны
// выполняться на соединении с advisory-блокировкой, получают транзакцию явно.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

type Subscription struct {
	ID               int64     `db:"id"`
	TributeUserID    int64     `db:"tribute_user_id"`
	TelegramUserID   int64     `db:"telegram_user_id"`
	TelegramUserName string    `db:"telegram_user_name"`
	SubscriptionID   int64     `db:"subscription_id"`
	PeriodID         int64     `db:"period_id"`
	Period           string    `db:"period"`
	ChannelID        int64     `db:"channel_id"`
	ChannelName      string    `db:"channel_name"`
	VpnIP            string    `db:"vpn_ip"`
	WgPrivateKey     string    `db:"wg_private_key"`
	WgPublicKey      string    `db:"wg_public_key"`
	CreatedAt        time.Time `db:"created_at"`
	ExpiresAt        time.Time `db:"expires_at"`
	Active           bool      `db:"active"`
	LastEventName    string    `db:"last_event_name"`
}

// HasWireguardIdentity сообщает, можно ли переиспользовать ключи и адрес строки
// без повторной выдачи конфига (путь оживления для оплат баллами и промокодов).
func (s *Subscription) HasWireguardIdentity() bool {
	return s.WgPrivateKey != "" && s.WgPublicKey != "" && s.VpnIP != ""
}

func subscriptionColumns() []string {
	return []string{
		"id", "tribute_user_id", "telegram_user_id", "telegram_user_name",
		"subscription_id", "period_id", "period", "channel_id", "channel_name",
		"vpn_ip", "wg_private_key", "wg_public_key",
		"created_at", "expires_at", "active", "last_event_name",
	}
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var s Subscription
	err := row.Scan(
		&s.ID,
		&s.TributeUserID,
		&s.TelegramUserID,
		&s.TelegramUserName,
		&s.SubscriptionID,
		&s.PeriodID,
		&s.Period,
		&s.ChannelID,
		&s.ChannelName,
		&s.VpnIP,
		&s.WgPrivateKey,
		&s.WgPublicKey,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.Active,
		&s.LastEventName,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSubscriptionFromRows(rows pgx.Rows) (*Subscription, error) {
	var s Subscription
	err := rows.Scan(
		&s.ID,
		&s.TributeUserID,
		&s.TelegramUserID,
		&s.TelegramUserName,
		&s.SubscriptionID,
		&s.PeriodID,
		&s.Period,
		&s.ChannelID,
		&s.ChannelName,
		&s.VpnIP,
		&s.WgPrivateKey,
		&s.WgPublicKey,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.Active,
		&s.LastEventName,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (sr *SubscriptionRepository) collect(ctx context.Context, q Querier, builder sq.SelectBuilder) ([]Subscription, error) {
	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := q.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		sub, err := scanSubscriptionFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over subscription rows: %w", err)
	}
	return subs, nil
}

func (sr *SubscriptionRepository) FindLatestActive(ctx context.Context, telegramId int64) (*Subscription, error) {
	buildSelect := sq.Select(subscriptionColumns()...).
		From("vpn_subscriptions").
		Where(sq.And{
			sq.Eq{"telegram_user_id": telegramId},
			sq.Eq{"active": true},
			sq.Gt{"expires_at": time.Now()},
		}).
		OrderBy("expires_at DESC").
		Limit(1).
		PlaceholderFormat(sq.Dollar)

	sqlStr, args, err := buildSelect.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	sub, err := scanSubscription(sr.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest active subscription: %w", err)
	}
	return sub, nil
}

func (sr *SubscriptionRepository) FindActiveByTelegramId(ctx context.Context, telegramId int64) ([]Subscription, error) {
	buildSelect := sq.Select(subscriptionColumns()...).
		From("vpn_subscriptions").
		Where(sq.And{
			sq.Eq{"telegram_user_id": telegramId},
			sq.Eq{"active": true},
			sq.Gt{"expires_at": time.Now()},
		}).
		OrderBy("expires_at DESC").
		PlaceholderFormat(sq.Dollar)

	return sr.collect(ctx, sr.pool, buildSelect)
}

// FindLatestAny возвращает последнюю строку пользователя независимо от active,
// глубина поиска не ограничена.
func (sr *SubscriptionRepository) FindLatestAny(ctx context.Context, telegramId int64) (*Subscription, error) {
	buildSelect := sq.Select(subscriptionColumns()...).
		From("vpn_subscriptions").
		Where(sq.Eq{"telegram_user_id": telegramId}).
		OrderBy("id DESC").
		Limit(1).
		PlaceholderFormat(sq.Dollar)

	sqlStr, args, err := buildSelect.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	sub, err := scanSubscription(sr.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest subscription: %w", err)
	}
	return sub, nil
}

func (sr *SubscriptionRepository) FindById(ctx context.Context, id int64) (*Subscription, error) {
	buildSelect := sq.Select(subscriptionColumns()...).
		From("vpn_subscriptions").
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar)

	sqlStr, args, err := buildSelect.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	sub, err := scanSubscription(sr.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query subscription: %w", err)
	}
	return sub, nil
}

func (sr *SubscriptionRepository) FindByEventName(ctx context.Context, eventName string) (*Subscription, error) {
	buildSelect := sq.Select(subscriptionColumns()...).
		From("vpn_subscriptions").
		Where(sq.Eq{"last_event_name": eventName}).
		OrderBy("id DESC").
		Limit(1).
		PlaceholderFormat(sq.Dollar)

	sqlStr, args, err := buildSelect.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	sub, err := scanSubscription(sr.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query subscription by event: %w", err)
	}
	return sub, nil
}

// EventAlreadyProcessed — идемпотентный шлюз: событие считается применённым,
// если его имя уже записано в last_event_name любой строки.
func (sr *SubscriptionRepository) EventAlreadyProcessed(ctx context.Context, eventName string) (bool, error) {
	buildSelect := sq.Select("1").
		From("vpn_subscriptions").
		Where(sq.Eq{"last_event_name": eventName}).
		Limit(1).
		PlaceholderFormat(sq.Dollar)

	sqlStr, args, err := buildSelect.ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build select query: %w", err)
	}

	var one int
	err = sr.pool.QueryRow(ctx, sqlStr, args...).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check event: %w", err)
	}
	return true, nil
}

// Insert вставляет строку через переданный Querier, чтобы вставка, забирающая
// vpn_ip, шла по тому же соединению, что и advisory-блокировка аллокатора.
func (sr *SubscriptionRepository) Insert(ctx context.Context, q Querier, sub *Subscription) (int64, error) {
	query := `
		INSERT INTO vpn_subscriptions
			(tribute_user_id, telegram_user_id, telegram_user_name, subscription_id,
			 period_id, period, channel_id, channel_name, vpn_ip,
			 wg_private_key, wg_public_key, created_at, expires_at, active, last_event_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`

	createdAt := sub.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var id int64
	err := q.QueryRow(ctx, query,
		sub.TributeUserID, sub.TelegramUserID, sub.TelegramUserName, sub.SubscriptionID,
		sub.PeriodID, sub.Period, sub.ChannelID, sub.ChannelName, sub.VpnIP,
		sub.WgPrivateKey, sub.WgPublicKey, createdAt, sub.ExpiresAt, true, sub.LastEventName,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert subscription: %w", err)
	}

	slog.Info("subscription inserted", "id", id,
		"telegramId", utils.MaskHalfInt64(sub.TelegramUserID), "period", sub.Period)
	return id, nil
}

// buildUpdateExpiration строит продление с предикатом по last_event_name:
// параллельная повторная доставка того же события не проходит WHERE и
// не продлевает строку второй раз.
func buildUpdateExpiration(id int64, expiresAt time.Time, eventName string) (string, []interface{}, error) {
	return sq.Update("vpn_subscriptions").
		Set("expires_at", expiresAt).
		Set("last_event_name", eventName).
		Where(sq.Eq{"id": id}).
		Where(sq.NotEq{"last_event_name": eventName}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

func (sr *SubscriptionRepository) UpdateExpiration(ctx context.Context, id int64, expiresAt time.Time, eventName string) error {
	sqlStr, args, err := buildUpdateExpiration(id, expiresAt, eventName)
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	result, err := sr.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("failed to update expiration: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrEventAlreadyApplied
	}
	return nil
}

// DeactivateById — условное обновление: возвращает прежнюю строку, чтобы
// контроллер снял пира, или nil если строка уже неактивна.
func (sr *SubscriptionRepository) DeactivateById(ctx context.Context, id int64, eventName string) (*Subscription, error) {
	query := `
		UPDATE vpn_subscriptions
		SET active = FALSE, last_event_name = $2
		WHERE id = $1 AND active
		RETURNING ` + strings.Join(subscriptionColumns(), ", ")

	sub, err := scanSubscription(sr.pool.QueryRow(ctx, query, id, eventName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to deactivate subscription: %w", err)
	}
	return sub, nil
}

func (sr *SubscriptionRepository) ActivateById(ctx context.Context, id int64, eventName string) (*Subscription, error) {
	query := `
		UPDATE vpn_subscriptions
		SET active = TRUE, last_event_name = $2
		WHERE id = $1 AND NOT active
		RETURNING ` + strings.Join(subscriptionColumns(), ", ")

	sub, err := scanSubscription(sr.pool.QueryRow(ctx, query, id, eventName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to activate subscription: %w", err)
	}
	return sub, nil
}

// DeactivateAllActive гасит все активные строки пользователя и возвращает их,
// реализует порядок deactivate-then-insert для инварианта одной подписки.
func (sr *SubscriptionRepository) DeactivateAllActive(ctx context.Context, q Querier, telegramId int64, eventName string) ([]Subscription, error) {
	query := `
		UPDATE vpn_subscriptions
		SET active = FALSE, last_event_name = $2
		WHERE telegram_user_id = $1 AND active
		RETURNING ` + strings.Join(subscriptionColumns(), ", ")

	rows, err := q.Query(ctx, query, telegramId, eventName)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		sub, err := scanSubscriptionFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over subscription rows: %w", err)
	}
	return subs, nil
}

// DeleteById аккуратно зануляет внешние ссылки, затем удаляет строку.
func (sr *SubscriptionRepository) DeleteById(ctx context.Context, id int64) (bool, error) {
	tx, err := sr.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"UPDATE user_points_transactions SET related_subscription_id = NULL WHERE related_subscription_id = $1", id); err != nil {
		return false, fmt.Errorf("failed to detach points transactions: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"UPDATE promo_code_usages SET subscription_id = NULL WHERE subscription_id = $1", id); err != nil {
		return false, fmt.Errorf("failed to detach promo usages: %w", err)
	}

	result, err := tx.Exec(ctx, "DELETE FROM vpn_subscriptions WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete subscription: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit delete transaction: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// UsedActiveIPs возвращает адреса, занятые активными неистёкшими строками.
// Вызывается под advisory-блокировкой через транзакцию аллокации.
func (sr *SubscriptionRepository) UsedActiveIPs(ctx context.Context, q Querier) (map[string]bool, error) {
	buildSelect := sq.Select("vpn_ip").
		From("vpn_subscriptions").
		Where(sq.And{
			sq.Eq{"active": true},
			sq.Gt{"expires_at": time.Now()},
			sq.NotEq{"vpn_ip": ""},
		}).
		PlaceholderFormat(sq.Dollar)

	sqlStr, args, err := buildSelect.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := q.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query used ips: %w", err)
	}
	defer rows.Close()

	used := make(map[string]bool)
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, fmt.Errorf("failed to scan ip row: %w", err)
		}
		used[ip] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over ip rows: %w", err)
	}
	return used, nil
}

func (sr *SubscriptionRepository) FindExpiredActive(ctx context.Context) ([]Subscription, error) {
	buildSelect := sq.Select(subscriptionColumns()...).
		From("vpn_subscriptions").
		Where(sq.And{
			sq.Eq{"active": true},
			sq.LtOrEq{"expires_at": time.Now()},
		}).
		PlaceholderFormat(sq.Dollar)

	return sr.collect(ctx, sr.pool, buildSelect)
}

func (sr *SubscriptionRepository) FindExpiringBetween(ctx context.Context, from, to time.Time) ([]Subscription, error) {
	buildSelect := sq.Select(subscriptionColumns()...).
		From("vpn_subscriptions").
		Where(sq.And{
			sq.Eq{"active": true},
			sq.Gt{"expires_at": from},
			sq.LtOrEq{"expires_at": to},
		}).
		PlaceholderFormat(sq.Dollar)

	return sr.collect(ctx, sr.pool, buildSelect)
}

// DistinctTelegramIds — все известные пользователи, адресаты рассылок.
func (sr *SubscriptionRepository) DistinctTelegramIds(ctx context.Context) ([]int64, error) {
	rows, err := sr.pool.Query(ctx, "SELECT DISTINCT telegram_user_id FROM vpn_subscriptions")
	if err != nil {
		return nil, fmt.Errorf("failed to query telegram ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan telegram id row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over telegram id rows: %w", err)
	}
	return ids, nil
}

func (sr *SubscriptionRepository) FindLast(ctx context.Context, limit int) ([]Subscription, error) {
	buildSelect := sq.Select(subscriptionColumns()...).
		From("vpn_subscriptions").
		OrderBy("id DESC").
		Limit(uint64(limit)).
		PlaceholderFormat(sq.Dollar)

	return sr.collect(ctx, sr.pool, buildSelect)
}
