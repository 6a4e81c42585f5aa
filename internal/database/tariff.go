package database

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"
)

type TariffRepository struct {
	pool *pgxpool.Pool
}

func NewTariffRepository(pool *pgxpool.Pool) *TariffRepository {
	return &TariffRepository{pool: pool}
}

type Tariff struct {
	Code               string           `db:"code"`
	Title              string           `db:"title"`
	DurationDays       int              `db:"duration_days"`
	PriceRub           *decimal.Decimal `db:"price_rub"`
	PriceUsd           *decimal.Decimal `db:"price_usd"`
	PointsCost         *int64           `db:"points_cost"`
	RefBaseBonusPoints int64            `db:"ref_base_bonus_points"`
	RefEnabled         bool             `db:"ref_enabled"`
	IsActive           bool             `db:"is_active"`
	SortOrder          int              `db:"sort_order"`
}

func tariffColumns() []string {
	return []string{
		"code", "title", "duration_days", "price_rub", "price_usd",
		"points_cost", "ref_base_bonus_points", "ref_enabled", "is_active", "sort_order",
	}
}

func scanTariffFromRows(rows pgx.Rows) (*Tariff, error) {
	var t Tariff
	err := rows.Scan(
		&t.Code,
		&t.Title,
		&t.DurationDays,
		&t.PriceRub,
		&t.PriceUsd,
		&t.PointsCost,
		&t.RefBaseBonusPoints,
		&t.RefEnabled,
		&t.IsActive,
		&t.SortOrder,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (tr *TariffRepository) FindByCode(ctx context.Context, code string) (*Tariff, error) {
	buildSelect := sq.Select(tariffColumns()...).
		From("tariffs").
		Where(sq.Eq{"code": code}).
		PlaceholderFormat(sq.Dollar)

	sqlStr, args, err := buildSelect.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var t Tariff
	err = tr.pool.QueryRow(ctx, sqlStr, args...).Scan(
		&t.Code, &t.Title, &t.DurationDays, &t.PriceRub, &t.PriceUsd,
		&t.PointsCost, &t.RefBaseBonusPoints, &t.RefEnabled, &t.IsActive, &t.SortOrder,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query tariff: %w", err)
	}
	return &t, nil
}

func (tr *TariffRepository) FindAllActive(ctx context.Context) ([]Tariff, error) {
	buildSelect := sq.Select(tariffColumns()...).
		From("tariffs").
		Where(sq.Eq{"is_active": true}).
		OrderBy("sort_order ASC").
		PlaceholderFormat(sq.Dollar)

	sqlStr, args, err := buildSelect.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := tr.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tariffs: %w", err)
	}
	defer rows.Close()

	var tariffs []Tariff
	for rows.Next() {
		t, err := scanTariffFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tariff row: %w", err)
		}
		tariffs = append(tariffs, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over tariff rows: %w", err)
	}
	return tariffs, nil
}
