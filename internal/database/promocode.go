package database

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var (
	ErrPromoNotFound             = errors.New("promo code not found")
	ErrPromoInactive             = errors.New("promo code is inactive")
	ErrPromoNotStarted           = errors.New("promo code is not yet valid")
	ErrPromoExpired              = errors.New("promo code expired")
	ErrPromoGlobalLimit          = errors.New("promo code activation limit reached")
	ErrPromoPerUserLimit         = errors.New("per_user_limit_reached")
	ErrPromoWrongUser            = errors.New("promo code is bound to another user")
	ErrPromoTariffScope          = errors.New("promo code is not valid for this tariff")
	ErrPromoNoActiveSubscription = errors.New("no active subscription to extend")
	ErrPromoInvalidFormat        = errors.New("invalid promo code format")
)

// Алфавит без похожих символов (0/O, 1/I/L)
const promoAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Словарь tariff_scope: all — без ограничений, selected — только тарифы
// из allowed_tariffs.
const (
	PromoScopeAll      = "all"
	PromoScopeSelected = "selected"
)

type PromoCode struct {
	ID                int64      `db:"id"`
	Code              string     `db:"code"`
	ActionType        string     `db:"action_type"`
	ExtraDays         int        `db:"extra_days"`
	IsMultiUse        bool       `db:"is_multi_use"`
	MaxUses           *int       `db:"max_uses"`
	PerUserLimit      int        `db:"per_user_limit"`
	UsedCount         int        `db:"used_count"`
	ValidFrom         *time.Time `db:"valid_from"`
	ValidUntil        *time.Time `db:"valid_until"`
	TariffScope       string     `db:"tariff_scope"`
	AllowedTariffs    []string   `db:"allowed_tariffs"`
	AllowedTelegramID *int64     `db:"allowed_telegram_id"`
	IsActive          bool       `db:"is_active"`
	Comment           string     `db:"comment"`
	CreatedAt         time.Time  `db:"created_at"`
}

// PromoApplyResult — итог успешного применения внутри одной транзакции.
type PromoApplyResult struct {
	PromoID        int64
	UsageID        int64
	ExtraDays      int
	SubscriptionID int64 // 0 для floating-применения без подписки
	NewExpiresAt   time.Time
}

type PromoRepository struct {
	pool *pgxpool.Pool
}

func NewPromoRepository(pool *pgxpool.Pool) *PromoRepository {
	return &PromoRepository{pool: pool}
}

func promoColumns() string {
	return strings.Join([]string{
		"id", "code", "action_type", "extra_days", "is_multi_use", "max_uses",
		"per_user_limit", "used_count", "valid_from", "valid_until",
		"tariff_scope", "allowed_tariffs", "allowed_telegram_id",
		"is_active", "comment", "created_at",
	}, ", ")
}

func scanPromo(row pgx.Row) (*PromoCode, error) {
	var p PromoCode
	err := row.Scan(
		&p.ID, &p.Code, &p.ActionType, &p.ExtraDays, &p.IsMultiUse, &p.MaxUses,
		&p.PerUserLimit, &p.UsedCount, &p.ValidFrom, &p.ValidUntil,
		&p.TariffScope, &p.AllowedTariffs, &p.AllowedTelegramID,
		&p.IsActive, &p.Comment, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// validatePromo проверяет все ограничения промокода, кроме блокировок строк.
// Чистая функция: проверяется в тестах без базы.
func validatePromo(p *PromoCode, telegramId int64, periodTag string, usedByUser int, now time.Time) error {
	if !p.IsActive {
		return ErrPromoInactive
	}
	if p.ValidFrom != nil && now.Before(*p.ValidFrom) {
		return ErrPromoNotStarted
	}
	if p.ValidUntil != nil && now.After(*p.ValidUntil) {
		return ErrPromoExpired
	}
	if p.MaxUses != nil && p.UsedCount >= *p.MaxUses {
		return ErrPromoGlobalLimit
	}
	if usedByUser >= p.PerUserLimit {
		return ErrPromoPerUserLimit
	}
	if p.AllowedTelegramID != nil && *p.AllowedTelegramID != telegramId {
		return ErrPromoWrongUser
	}
	if p.TariffScope == PromoScopeSelected && !tariffInScope(p.AllowedTariffs, periodTag) {
		return ErrPromoTariffScope
	}
	return nil
}

// tariffInScope сопоставляет тег периода (например yookassa_1m) со списком
// разрешённых кодов тарифа.
func tariffInScope(allowed []string, periodTag string) bool {
	if periodTag == "" {
		return false
	}
	for _, code := range allowed {
		if periodTag == code || strings.HasSuffix(periodTag, "_"+code) {
			return true
		}
	}
	return false
}

func (pr *PromoRepository) FindByCode(ctx context.Context, code string) (*PromoCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	query := "SELECT " + promoColumns() + " FROM promo_codes WHERE code = $1"
	p, err := scanPromo(pr.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find promo code: %w", err)
	}
	return p, nil
}

// ApplyToLatest применяет промокод к последней активной подписке пользователя.
// Одна транзакция: FOR UPDATE на промо, валидация, продление через GREATEST,
// запись usage, инкремент used_count, автодеактивация при достижении max_uses.
func (pr *PromoRepository) ApplyToLatest(ctx context.Context, telegramId int64, code string) (*PromoApplyResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	tx, err := pr.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin promo transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	promo, usedByUser, err := pr.lockAndCount(ctx, tx, code, telegramId)
	if err != nil {
		return nil, err
	}

	var subId int64
	var periodTag string
	err = tx.QueryRow(ctx, `
		SELECT id, period FROM vpn_subscriptions
		WHERE telegram_user_id = $1 AND active AND expires_at > now()
		ORDER BY expires_at DESC LIMIT 1
		FOR UPDATE`, telegramId).Scan(&subId, &periodTag)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPromoNoActiveSubscription
		}
		return nil, fmt.Errorf("failed to lock subscription: %w", err)
	}

	if err := validatePromo(promo, telegramId, periodTag, usedByUser, time.Now()); err != nil {
		return nil, err
	}

	var usageId int64
	err = tx.QueryRow(ctx, `
		INSERT INTO promo_code_usages (promo_id, telegram_user_id, subscription_id)
		VALUES ($1, $2, $3) RETURNING id`, promo.ID, telegramId, subId).Scan(&usageId)
	if err != nil {
		return nil, fmt.Errorf("failed to insert promo usage: %w", err)
	}

	eventName := fmt.Sprintf("promo_code_%d_user_%d_use_%d", promo.ID, telegramId, usageId)

	var newExpires time.Time
	err = tx.QueryRow(ctx, `
		UPDATE vpn_subscriptions
		SET expires_at = GREATEST(expires_at, now()) + make_interval(days => $2),
		    last_event_name = $3
		WHERE id = $1
		RETURNING expires_at`, subId, promo.ExtraDays, eventName).Scan(&newExpires)
	if err != nil {
		return nil, fmt.Errorf("failed to extend subscription: %w", err)
	}

	if err := pr.bumpUsedCount(ctx, tx, promo); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit promo transaction: %w", err)
	}

	return &PromoApplyResult{
		PromoID:        promo.ID,
		UsageID:        usageId,
		ExtraDays:      promo.ExtraDays,
		SubscriptionID: subId,
		NewExpiresAt:   newExpires,
	}, nil
}

// ApplyWithoutSubscription фиксирует floating-применение: usage без подписки.
// Контроллер позже создаст строку и привяжет её через AttachUsageSubscription.
func (pr *PromoRepository) ApplyWithoutSubscription(ctx context.Context, telegramId int64, code string) (*PromoApplyResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	tx, err := pr.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin promo transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	promo, usedByUser, err := pr.lockAndCount(ctx, tx, code, telegramId)
	if err != nil {
		return nil, err
	}

	// Без подписки scope проверить не обо что: selected-промо требует подписку
	if promo.TariffScope == PromoScopeSelected {
		return nil, ErrPromoTariffScope
	}
	if err := validatePromo(promo, telegramId, "", usedByUser, time.Now()); err != nil {
		return nil, err
	}

	var usageId int64
	err = tx.QueryRow(ctx, `
		INSERT INTO promo_code_usages (promo_id, telegram_user_id, subscription_id)
		VALUES ($1, $2, NULL) RETURNING id`, promo.ID, telegramId).Scan(&usageId)
	if err != nil {
		return nil, fmt.Errorf("failed to insert promo usage: %w", err)
	}

	if err := pr.bumpUsedCount(ctx, tx, promo); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit promo transaction: %w", err)
	}

	return &PromoApplyResult{
		PromoID:      promo.ID,
		UsageID:      usageId,
		ExtraDays:    promo.ExtraDays,
		NewExpiresAt: time.Now().AddDate(0, 0, promo.ExtraDays),
	}, nil
}

func (pr *PromoRepository) lockAndCount(ctx context.Context, tx pgx.Tx, code string, telegramId int64) (*PromoCode, int, error) {
	query := "SELECT " + promoColumns() + " FROM promo_codes WHERE code = $1 FOR UPDATE"
	promo, err := scanPromo(tx.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, ErrPromoNotFound
		}
		return nil, 0, fmt.Errorf("failed to lock promo code: %w", err)
	}

	var usedByUser int
	err = tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM promo_code_usages WHERE promo_id = $1 AND telegram_user_id = $2",
		promo.ID, telegramId).Scan(&usedByUser)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count promo usages: %w", err)
	}
	return promo, usedByUser, nil
}

func (pr *PromoRepository) bumpUsedCount(ctx context.Context, tx pgx.Tx, promo *PromoCode) error {
	_, err := tx.Exec(ctx,
		"UPDATE promo_codes SET used_count = used_count + 1 WHERE id = $1", promo.ID)
	if err != nil {
		return fmt.Errorf("failed to bump used_count: %w", err)
	}
	if promo.MaxUses != nil && promo.UsedCount+1 >= *promo.MaxUses {
		if _, err := tx.Exec(ctx,
			"UPDATE promo_codes SET is_active = FALSE WHERE id = $1", promo.ID); err != nil {
			return fmt.Errorf("failed to auto-deactivate promo: %w", err)
		}
	}
	return nil
}

func (pr *PromoRepository) AttachUsageSubscription(ctx context.Context, usageId, subscriptionId int64) error {
	_, err := pr.pool.Exec(ctx,
		"UPDATE promo_code_usages SET subscription_id = $2 WHERE id = $1 AND subscription_id IS NULL",
		usageId, subscriptionId)
	if err != nil {
		return fmt.Errorf("failed to attach usage subscription: %w", err)
	}
	return nil
}

func (pr *PromoRepository) Create(ctx context.Context, promo *PromoCode) (*PromoCode, error) {
	promo.Code = strings.ToUpper(strings.TrimSpace(promo.Code))

	builder := sq.Insert("promo_codes").
		Columns("code", "action_type", "extra_days", "is_multi_use", "max_uses",
			"per_user_limit", "valid_from", "valid_until", "tariff_scope",
			"allowed_tariffs", "allowed_telegram_id", "comment").
		Values(promo.Code, promo.ActionType, promo.ExtraDays, promo.IsMultiUse, promo.MaxUses,
			promo.PerUserLimit, promo.ValidFrom, promo.ValidUntil, promo.TariffScope,
			promo.AllowedTariffs, promo.AllowedTelegramID, promo.Comment).
		Suffix("RETURNING " + promoColumns()).
		PlaceholderFormat(sq.Dollar)

	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert promo query: %w", err)
	}

	created, err := scanPromo(pr.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to create promo code: %w", err)
	}
	return created, nil
}

func (pr *PromoRepository) GetAll(ctx context.Context, limit, offset int) ([]PromoCode, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM promo_codes ORDER BY created_at DESC LIMIT $1 OFFSET $2", promoColumns())

	rows, err := pr.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query promos: %w", err)
	}
	defer rows.Close()

	var list []PromoCode
	for rows.Next() {
		var p PromoCode
		if err := rows.Scan(
			&p.ID, &p.Code, &p.ActionType, &p.ExtraDays, &p.IsMultiUse, &p.MaxUses,
			&p.PerUserLimit, &p.UsedCount, &p.ValidFrom, &p.ValidUntil,
			&p.TariffScope, &p.AllowedTariffs, &p.AllowedTelegramID,
			&p.IsActive, &p.Comment, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan promo row: %w", err)
		}
		list = append(list, p)
	}
	return list, nil
}

func (pr *PromoRepository) SetActive(ctx context.Context, promoId int64, isActive bool) error {
	_, err := pr.pool.Exec(ctx,
		"UPDATE promo_codes SET is_active = $2 WHERE id = $1", promoId, isActive)
	if err != nil {
		return fmt.Errorf("failed to set promo active: %w", err)
	}
	return nil
}

func (pr *PromoRepository) Delete(ctx context.Context, promoId int64) error {
	tx, err := pr.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM promo_code_usages WHERE promo_id = $1", promoId); err != nil {
		return fmt.Errorf("failed to delete promo usages: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM promo_codes WHERE id = $1", promoId); err != nil {
		return fmt.Errorf("failed to delete promo: %w", err)
	}
	return tx.Commit(ctx)
}

// GenerateCode выдаёт случайный код заданной длины из promoAlphabet.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		length = 8
	}
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(promoAlphabet))))
		if err != nil {
			return "", fmt.Errorf("failed to generate promo code: %w", err)
		}
		b.WriteByte(promoAlphabet[n.Int64()])
	}
	return b.String(), nil
}
