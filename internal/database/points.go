package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var (
	ErrZeroDelta            = errors.New("zero delta is not allowed")
	ErrNegativeBalance      = errors.New("operation would make balance negative")
	ErrInsufficientPoints   = errors.New("insufficient_points")
	ErrTariffNotPayable     = errors.New("tariff has no points cost")
	ErrNoActiveSubscription = errors.New("no active subscription")
)

type PointsTransaction struct {
	ID                    int64           `db:"id"`
	TelegramUserID        int64           `db:"telegram_user_id"`
	Delta                 int64           `db:"delta"`
	Reason                string          `db:"reason"`
	Source                string          `db:"source"`
	RelatedSubscriptionID *int64          `db:"related_subscription_id"`
	RelatedPaymentID      *string         `db:"related_payment_id"`
	Level                 *int            `db:"level"`
	Meta                  json.RawMessage `db:"meta"`
	CreatedAt             time.Time       `db:"created_at"`
}

// AddPointsParams описывает одну проводку леджера.
type AddPointsParams struct {
	TelegramUserID        int64
	Delta                 int64
	Reason                string
	Source                string
	RelatedSubscriptionID *int64
	RelatedPaymentID      *string
	Level                 *int
	Meta                  map[string]any
	AllowNegative         bool
}

// PointsPaymentResult — итог успешной оплаты тарифа баллами.
type PointsPaymentResult struct {
	TransactionID  int64
	SubscriptionID int64
	NewExpiresAt   time.Time
	NewBalance     int64
}

type PointsRepository struct {
	pool *pgxpool.Pool
}

func NewPointsRepository(pool *pgxpool.Pool) *PointsRepository {
	return &PointsRepository{pool: pool}
}

func (pr *PointsRepository) GetBalance(ctx context.Context, telegramId int64) (int64, error) {
	var balance int64
	err := pr.pool.QueryRow(ctx,
		"SELECT balance FROM user_points WHERE telegram_user_id = $1", telegramId).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to query balance: %w", err)
	}
	return balance, nil
}

// AddPoints выполняет одну проводку: блокирует баланс, проверяет
// неотрицательность, upsert баланса и строка леджера в одной транзакции.
func (pr *PointsRepository) AddPoints(ctx context.Context, p AddPointsParams) (int64, error) {
	if p.Delta == 0 {
		return 0, ErrZeroDelta
	}

	tx, err := pr.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin points transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	balance, err := lockBalance(ctx, tx, p.TelegramUserID)
	if err != nil {
		return 0, err
	}

	newBalance := balance + p.Delta
	if newBalance < 0 && !p.AllowNegative {
		return 0, ErrNegativeBalance
	}

	if err := upsertBalance(ctx, tx, p.TelegramUserID, newBalance); err != nil {
		return 0, err
	}
	if _, err := insertLedgerRow(ctx, tx, p); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit points transaction: %w", err)
	}
	return newBalance, nil
}

// PayForTariff — оплата тарифа баллами одной транзакцией: тариф, блокировка
// последней активной подписки и баланса, списание, продление через GREATEST.
// Любая ошибка откатывает все четыре мутации.
func (pr *PointsRepository) PayForTariff(ctx context.Context, telegramId int64, tariffCode string) (*PointsPaymentResult, error) {
	tx, err := pr.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin points payment: %w", err)
	}
	defer tx.Rollback(ctx)

	var cost int64
	var durationDays int
	err = tx.QueryRow(ctx, `
		SELECT points_cost, duration_days FROM tariffs
		WHERE code = $1 AND is_active AND points_cost IS NOT NULL AND points_cost > 0 AND duration_days > 0`,
		tariffCode).Scan(&cost, &durationDays)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTariffNotPayable
		}
		return nil, fmt.Errorf("failed to query tariff: %w", err)
	}

	var subId int64
	err = tx.QueryRow(ctx, `
		SELECT id FROM vpn_subscriptions
		WHERE telegram_user_id = $1 AND active AND expires_at > now()
		ORDER BY expires_at DESC LIMIT 1
		FOR UPDATE`, telegramId).Scan(&subId)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Нет активной подписки: контроллер идёт путём оживления/создания
			return nil, ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("failed to lock subscription: %w", err)
	}

	balance, err := lockBalance(ctx, tx, telegramId)
	if err != nil {
		return nil, err
	}
	if balance < cost {
		return nil, ErrInsufficientPoints
	}

	newBalance := balance - cost
	if err := upsertBalance(ctx, tx, telegramId, newBalance); err != nil {
		return nil, err
	}

	txId, err := insertLedgerRow(ctx, tx, AddPointsParams{
		TelegramUserID:        telegramId,
		Delta:                 -cost,
		Reason:                "subscription_extend",
		Source:                "points",
		RelatedSubscriptionID: &subId,
		Meta:                  map[string]any{"tariff_code": tariffCode},
	})
	if err != nil {
		return nil, err
	}

	eventName := fmt.Sprintf("points_%d", txId)
	var newExpires time.Time
	err = tx.QueryRow(ctx, `
		UPDATE vpn_subscriptions
		SET expires_at = GREATEST(expires_at, now()) + make_interval(days => $2),
		    last_event_name = $3
		WHERE id = $1
		RETURNING expires_at`, subId, durationDays, eventName).Scan(&newExpires)
	if err != nil {
		return nil, fmt.Errorf("failed to extend subscription: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit points payment: %w", err)
	}

	return &PointsPaymentResult{
		TransactionID:  txId,
		SubscriptionID: subId,
		NewExpiresAt:   newExpires,
		NewBalance:     newBalance,
	}, nil
}

// ChargeForTariff списывает стоимость тарифа без продления — используется,
// когда активной подписки нет и контроллер сам создаёт строку.
func (pr *PointsRepository) ChargeForTariff(ctx context.Context, telegramId int64, tariffCode string) (txId int64, durationDays int, cost, newBalance int64, err error) {
	tx, err := pr.pool.Begin(ctx)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("failed to begin points charge: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		SELECT points_cost, duration_days FROM tariffs
		WHERE code = $1 AND is_active AND points_cost IS NOT NULL AND points_cost > 0 AND duration_days > 0`,
		tariffCode).Scan(&cost, &durationDays)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, 0, 0, ErrTariffNotPayable
		}
		return 0, 0, 0, 0, fmt.Errorf("failed to query tariff: %w", err)
	}

	balance, err := lockBalance(ctx, tx, telegramId)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	if balance < cost {
		return 0, 0, 0, 0, ErrInsufficientPoints
	}

	newBalance = balance - cost
	if err := upsertBalance(ctx, tx, telegramId, newBalance); err != nil {
		return 0, 0, 0, 0, err
	}

	txId, err = insertLedgerRow(ctx, tx, AddPointsParams{
		TelegramUserID: telegramId,
		Delta:          -cost,
		Reason:         "subscription_extend",
		Source:         "points",
		Meta:           map[string]any{"tariff_code": tariffCode},
	})
	if err != nil {
		return 0, 0, 0, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("failed to commit points charge: %w", err)
	}
	return txId, durationDays, cost, newBalance, nil
}

func (pr *PointsRepository) FindTransactions(ctx context.Context, telegramId int64, limit int) ([]PointsTransaction, error) {
	rows, err := pr.pool.Query(ctx, `
		SELECT id, telegram_user_id, delta, reason, source,
		       related_subscription_id, related_payment_id, level, meta, created_at
		FROM user_points_transactions
		WHERE telegram_user_id = $1
		ORDER BY id DESC LIMIT $2`, telegramId, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query points transactions: %w", err)
	}
	defer rows.Close()

	var list []PointsTransaction
	for rows.Next() {
		var t PointsTransaction
		if err := rows.Scan(&t.ID, &t.TelegramUserID, &t.Delta, &t.Reason, &t.Source,
			&t.RelatedSubscriptionID, &t.RelatedPaymentID, &t.Level, &t.Meta, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan points transaction row: %w", err)
		}
		list = append(list, t)
	}
	return list, nil
}

func lockBalance(ctx context.Context, tx pgx.Tx, telegramId int64) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx,
		"SELECT balance FROM user_points WHERE telegram_user_id = $1 FOR UPDATE",
		telegramId).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to lock balance: %w", err)
	}
	return balance, nil
}

func upsertBalance(ctx context.Context, tx pgx.Tx, telegramId, balance int64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO user_points (telegram_user_id, balance, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (telegram_user_id) DO UPDATE SET balance = $2, updated_at = now()`,
		telegramId, balance)
	if err != nil {
		return fmt.Errorf("failed to upsert balance: %w", err)
	}
	return nil
}

func insertLedgerRow(ctx context.Context, tx pgx.Tx, p AddPointsParams) (int64, error) {
	var metaJSON []byte
	if p.Meta != nil {
		var err error
		metaJSON, err = json.Marshal(p.Meta)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal meta: %w", err)
		}
	}

	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO user_points_transactions
			(telegram_user_id, delta, reason, source,
			 related_subscription_id, related_payment_id, level, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		p.TelegramUserID, p.Delta, p.Reason, p.Source,
		p.RelatedSubscriptionID, p.RelatedPaymentID, p.Level, metaJSON).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert ledger row: %w", err)
	}
	return id, nil
}
