// Пакет repository: слой доступа к Admin Directory (PostgreSQL).
// Все запросы: чистый SQL через pgx, без ORM.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound: запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict: конфликт уникальности (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт: запись уже существует")
	// ErrLastSuperAdmin: изменение отклонено триггером БД: не осталось бы
	// активного супер-администратора.
	ErrLastSuperAdmin = errors.New("в Directory не остаётся активного супер-администратора")
)

// superAdminConstraint: имя constraint trigger из миграции 000001.
const superAdminConstraint = "admin_accounts_active_super_admin"

// DBTX: интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner позволяет выполнять операции в транзакции.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner создаёт TxRunner для управления транзакциями.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx выполняет fn внутри транзакции.
// При ошибке fn: транзакция откатывается.
// При успехе: коммитится.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита: no-op

	if err := fn(tx); err != nil {
		return err
	}

	// Отложенный триггер срабатывает на COMMIT
	if err := tx.Commit(ctx); err != nil {
		return mapCommitError(err)
	}
	return nil
}

// mapCommitError переводит ошибки ограничений, проверяемых на COMMIT, в ошибки слоя.
func mapCommitError(err error) error {
	if isSuperAdminViolation(err) {
		return ErrLastSuperAdmin
	}
	return fmt.Errorf("ошибка фиксации транзакции: %w", err)
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// isInvalidText: значение не приводится к типу столбца (например, id не UUID).
func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22P02" // invalid_text_representation
	}
	return false
}

// isSuperAdminViolation: ошибка от триггера «последний активный супер-администратор».
func isSuperAdminViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23514" && pgErr.ConstraintName == superAdminConstraint
	}
	return false
}
