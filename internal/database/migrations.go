package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v4/pgxpool"
	_ "github.com/lib/pq"
)

type MigrationConfig struct {
	Direction      string
	MigrationsPath string
	Steps          int
}

// RunMigrations прогоняет SQL-миграции перед стартом приложения.
// Сами миграции идемпотентны (IF NOT EXISTS), так что повторный прогон безопасен.
func RunMigrations(ctx context.Context, cfg *MigrationConfig, pool *pgxpool.Pool) error {
	connString := pool.Config().ConnString()

	db, err := sql.Open("postgres", connString)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database for migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+cfg.MigrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	switch cfg.Direction {
	case "up":
		if cfg.Steps > 0 {
			err = m.Steps(cfg.Steps)
		} else {
			err = m.Up()
		}
	case "down":
		if cfg.Steps > 0 {
			err = m.Steps(-cfg.Steps)
		} else {
			err = m.Down()
		}
	default:
		return fmt.Errorf("unknown migration direction: %s", cfg.Direction)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	slog.Info("Migrations applied", "direction", cfg.Direction, "path", cfg.MigrationsPath)
	return nil
}
