package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrSelfReferral         = errors.New("self-referral is not allowed")
	ErrAlreadyHasReferrer   = errors.New("already_has_referrer")
	ErrCodeTaken            = errors.New("referral code already taken")
	ErrReferralCodeNotFound = errors.New("referral code not found")
)

type ReferralCode struct {
	Code                   string `db:"code"`
	ReferrerTelegramUserID int64  `db:"referrer_telegram_user_id"`
	IsActive               bool   `db:"is_active"`
}

type ReferralLevel struct {
	Level      int             `db:"level"`
	Multiplier decimal.Decimal `db:"multiplier"`
	IsActive   bool            `db:"is_active"`
}

type UserProfile struct {
	TelegramUserID    int64 `db:"telegram_user_id"`
	IsReferralBlocked bool  `db:"is_referral_blocked"`
	IsBanned          bool  `db:"is_banned"`
}

type ReferralRepository struct {
	pool *pgxpool.Pool
}

func NewReferralRepository(pool *pgxpool.Pool) *ReferralRepository {
	return &ReferralRepository{pool: pool}
}

func (rr *ReferralRepository) FindReferrer(ctx context.Context, referredId int64) (*int64, error) {
	var referrer int64
	err := rr.pool.QueryRow(ctx,
		"SELECT referrer_telegram_user_id FROM referrals WHERE referred_telegram_user_id = $1",
		referredId).Scan(&referrer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query referrer: %w", err)
	}
	return &referrer, nil
}

// InsertReferral — write-once: повтор /start с кодом не является ошибкой.
func (rr *ReferralRepository) InsertReferral(ctx context.Context, referredId, referrerId int64) error {
	if referredId == referrerId {
		return ErrSelfReferral
	}

	result, err := rr.pool.Exec(ctx, `
		INSERT INTO referrals (referred_telegram_user_id, referrer_telegram_user_id)
		VALUES ($1, $2)
		ON CONFLICT (referred_telegram_user_id) DO NOTHING`, referredId, referrerId)
	if err != nil {
		return fmt.Errorf("failed to insert referral: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAlreadyHasReferrer
	}
	return nil
}

func (rr *ReferralRepository) FindActiveCode(ctx context.Context, code string) (*ReferralCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	var rc ReferralCode
	err := rr.pool.QueryRow(ctx,
		"SELECT code, referrer_telegram_user_id, is_active FROM referral_codes WHERE code = $1 AND is_active",
		code).Scan(&rc.Code, &rc.ReferrerTelegramUserID, &rc.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query referral code: %w", err)
	}
	return &rc, nil
}

func (rr *ReferralRepository) FindActiveCodeByReferrer(ctx context.Context, referrerId int64) (*ReferralCode, error) {
	var rc ReferralCode
	err := rr.pool.QueryRow(ctx, `
		SELECT code, referrer_telegram_user_id, is_active FROM referral_codes
		WHERE referrer_telegram_user_id = $1 AND is_active
		LIMIT 1`, referrerId).Scan(&rc.Code, &rc.ReferrerTelegramUserID, &rc.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query referral code by referrer: %w", err)
	}
	return &rc, nil
}

func (rr *ReferralRepository) InsertCode(ctx context.Context, code string, referrerId int64) error {
	_, err := rr.pool.Exec(ctx,
		"INSERT INTO referral_codes (code, referrer_telegram_user_id) VALUES ($1, $2)",
		code, referrerId)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrCodeTaken
		}
		return fmt.Errorf("failed to insert referral code: %w", err)
	}
	return nil
}

func (rr *ReferralRepository) GetLevels(ctx context.Context) (map[int]ReferralLevel, error) {
	rows, err := rr.pool.Query(ctx,
		"SELECT level, multiplier, is_active FROM referral_levels ORDER BY level")
	if err != nil {
		return nil, fmt.Errorf("failed to query referral levels: %w", err)
	}
	defer rows.Close()

	levels := make(map[int]ReferralLevel)
	for rows.Next() {
		var l ReferralLevel
		if err := rows.Scan(&l.Level, &l.Multiplier, &l.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan referral level row: %w", err)
		}
		levels[l.Level] = l
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over referral level rows: %w", err)
	}
	return levels, nil
}

func (rr *ReferralRepository) GetProfile(ctx context.Context, telegramId int64) (*UserProfile, error) {
	var p UserProfile
	err := rr.pool.QueryRow(ctx,
		"SELECT telegram_user_id, is_referral_blocked, is_banned FROM user_profiles WHERE telegram_user_id = $1",
		telegramId).Scan(&p.TelegramUserID, &p.IsReferralBlocked, &p.IsBanned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user profile: %w", err)
	}
	return &p, nil
}

func (rr *ReferralRepository) EnsureProfile(ctx context.Context, telegramId int64) error {
	_, err := rr.pool.Exec(ctx, `
		INSERT INTO user_profiles (telegram_user_id) VALUES ($1)
		ON CONFLICT (telegram_user_id) DO NOTHING`, telegramId)
	if err != nil {
		return fmt.Errorf("failed to ensure user profile: %w", err)
	}
	return nil
}

// FindReferredBy возвращает всех, кого привели перечисленные рефереры.
// Используется BFS-обходом статистики по уровням.
func (rr *ReferralRepository) FindReferredBy(ctx context.Context, referrerIds []int64) ([]int64, error) {
	if len(referrerIds) == 0 {
		return nil, nil
	}

	rows, err := rr.pool.Query(ctx,
		"SELECT referred_telegram_user_id FROM referrals WHERE referrer_telegram_user_id = ANY($1)",
		referrerIds)
	if err != nil {
		return nil, fmt.Errorf("failed to query referred users: %w", err)
	}
	defer rows.Close()

	var referred []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan referred row: %w", err)
		}
		referred = append(referred, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over referred rows: %w", err)
	}
	return referred, nil
}

// FilterPaidUsers оставляет тех, у кого есть строка с событием оплатного
// провайдера в last_event_name.
func (rr *ReferralRepository) FilterPaidUsers(ctx context.Context, telegramIds []int64) (map[int64]bool, error) {
	if len(telegramIds) == 0 {
		return map[int64]bool{}, nil
	}

	rows, err := rr.pool.Query(ctx, `
		SELECT DISTINCT telegram_user_id FROM vpn_subscriptions
		WHERE telegram_user_id = ANY($1)
		  AND (last_event_name LIKE 'yookassa_payment_succeeded_%'
		       OR last_event_name LIKE 'heleket_payment_paid_%'
		       OR last_event_name LIKE 'tribute_new_subscription_%')`, telegramIds)
	if err != nil {
		return nil, fmt.Errorf("failed to query paid users: %w", err)
	}
	defer rows.Close()

	paid := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan paid user row: %w", err)
		}
		paid[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over paid user rows: %w", err)
	}
	return paid, nil
}
