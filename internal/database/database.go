// Пакет database: подключение к Admin Directory (PostgreSQL, pgxpool),
// применение миграций (golang-migrate) и проверка готовности.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dibo68/aanexa-admin/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	// applicationName виден в pg_stat_activity.
	applicationName = "aanexa-admin"
	// lockTimeout ограничивает ожидание advisory-блокировки множества
	// супер-администраторов и блокировок строк: запрос не висит бесконечно.
	lockTimeout = "5s"
	// maxConns: Directory мала, запросы короткие.
	maxConns = 10
)

// Connect создаёт пул подключений к Directory и проверяет его ping.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	poolCfg.MaxConns = min(poolCfg.MaxConns, maxConns)
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	poolCfg.ConnConfig.RuntimeParams["lock_timeout"] = lockTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка подключения к PostgreSQL %s: %w", cfg.DatabaseURL(), err)
	}

	logger.Info("Подключение к Directory установлено",
		slog.String("url", cfg.DatabaseURL()),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
	)
	return pool, nil
}

// Migrate применяет встроенные миграции. Схема в состоянии dirty (прерванная
// миграция) считается ошибкой: сервис с такой схемой не запускается.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.MigrateURL())
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()

	before, _, _ := m.Version()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("ошибка чтения версии схемы: %w", err)
	}
	if dirty {
		return fmt.Errorf("схема Directory в состоянии dirty (версия %d), требуется ручное исправление", version)
	}

	logger.Info("Схема Directory актуальна",
		slog.Uint64("from_version", uint64(before)),
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// ReadinessChecker: готовность Directory для /health/ready.
// Реализует handlers.ReadinessChecker.
type ReadinessChecker struct {
	pool *pgxpool.Pool
}

// NewReadinessChecker создаёт проверку готовности Directory.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool}
}

// CheckReady: "fail", если Directory недоступна; "degraded", если в ней нет
// активного super_admin (до bootstrap управлять учётными записями некому).
func (c *ReadinessChecker) CheckReady(ctx context.Context) (status string, message string) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var supers int
	err := c.pool.QueryRow(ctx,
		`SELECT count(*) FROM admin_accounts WHERE role = 'super_admin' AND status = 'active'`,
	).Scan(&supers)
	if err != nil {
		return "fail", fmt.Sprintf("Directory недоступна: %v", err)
	}
	if supers == 0 {
		return "degraded", "нет активного super_admin"
	}
	return "ok", fmt.Sprintf("активных super_admin: %d", supers)
}
