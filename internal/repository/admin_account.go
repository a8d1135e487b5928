package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Dibo68/aanexa-admin/internal/domain/model"
)

// AccountFilter: фильтры списка учётных записей. nil-поля не применяются.
type AccountFilter struct {
	Role   *model.Role
	Status *model.Status
	// Search: подстрока email или имени (без учёта регистра)
	Search string
}

// AdminAccountRepository: интерфейс CRUD для таблицы admin_accounts.
type AdminAccountRepository interface {
	// GetByID возвращает учётную запись по ID.
	GetByID(ctx context.Context, id string) (*model.AdminAccount, error)
	// GetByIDForUpdate возвращает учётную запись и блокирует строку до конца транзакции.
	GetByIDForUpdate(ctx context.Context, id string) (*model.AdminAccount, error)
	// GetByEmail возвращает учётную запись по email (без учёта регистра).
	GetByEmail(ctx context.Context, email string) (*model.AdminAccount, error)
	// List возвращает учётные записи, отсортированные по email.
	List(ctx context.Context, filter AccountFilter, limit, offset int) ([]*model.AdminAccount, error)
	// Count возвращает количество учётных записей по фильтру.
	Count(ctx context.Context, filter AccountFilter) (int, error)
	// ListActiveSuperAdmins возвращает точное множество активных супер-администраторов.
	ListActiveSuperAdmins(ctx context.Context) ([]*model.AdminAccount, error)
	// Insert создаёт учётную запись. Заполняет CreatedAt и UpdatedAt.
	Insert(ctx context.Context, a *model.AdminAccount) error
	// Update сохраняет изменяемые поля (email, full_name, role, status).
	Update(ctx context.Context, a *model.AdminAccount) error
	// Delete удаляет учётную запись.
	Delete(ctx context.Context, id string) error
	// TouchLastLogin обновляет время последнего входа.
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// adminAccountRepo: реализация AdminAccountRepository.
type adminAccountRepo struct {
	db DBTX
}

// NewAdminAccountRepository создаёт репозиторий учётных записей администраторов.
func NewAdminAccountRepository(db DBTX) AdminAccountRepository {
	return &adminAccountRepo{db: db}
}

const accountColumns = `id, email, full_name, role, status, created_at, updated_at, last_login`

// scanAccount сканирует строку результата в AdminAccount.
// Неизвестные роль и статус считаются повреждёнными данными.
func scanAccount(row pgx.Row) (*model.AdminAccount, error) {
	a := &model.AdminAccount{}
	var role, status string
	if err := row.Scan(
		&a.ID, &a.Email, &a.FullName, &role, &status,
		&a.CreatedAt, &a.UpdatedAt, &a.LastLogin,
	); err != nil {
		return nil, err
	}

	var err error
	if a.Role, err = model.ParseRole(role); err != nil {
		return nil, fmt.Errorf("учётная запись %s: %w", a.ID, err)
	}
	if a.Status, err = model.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("учётная запись %s: %w", a.ID, err)
	}
	return a, nil
}

// collectAccounts читает все строки результата.
func collectAccounts(rows pgx.Rows) ([]*model.AdminAccount, error) {
	defer rows.Close()

	var result []*model.AdminAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования учётной записи: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации учётных записей: %w", err)
	}
	return result, nil
}

func (r *adminAccountRepo) getOne(ctx context.Context, query string, arg any) (*model.AdminAccount, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		// id не в формате UUID: такой записи быть не может
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения учётной записи: %w", err)
	}
	return a, nil
}

func (r *adminAccountRepo) GetByID(ctx context.Context, id string) (*model.AdminAccount, error) {
	query := fmt.Sprintf(`SELECT %s FROM admin_accounts WHERE id = $1`, accountColumns)
	return r.getOne(ctx, query, id)
}

func (r *adminAccountRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.AdminAccount, error) {
	query := fmt.Sprintf(`SELECT %s FROM admin_accounts WHERE id = $1 FOR UPDATE`, accountColumns)
	return r.getOne(ctx, query, id)
}

func (r *adminAccountRepo) GetByEmail(ctx context.Context, email string) (*model.AdminAccount, error) {
	query := fmt.Sprintf(`SELECT %s FROM admin_accounts WHERE lower(email) = lower($1)`, accountColumns)
	return r.getOne(ctx, query, model.NormalizeEmail(email))
}

// buildWhere формирует WHERE по фильтру. Возвращает условие и аргументы.
func buildWhere(filter AccountFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	if filter.Role != nil {
		args = append(args, string(*filter.Role))
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(s))+"%")
		conditions = append(conditions,
			fmt.Sprintf("(lower(email) LIKE $%d OR lower(full_name) LIKE $%d)", len(args), len(args)))
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// escapeLike экранирует спецсимволы LIKE.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *adminAccountRepo) List(ctx context.Context, filter AccountFilter, limit, offset int) ([]*model.AdminAccount, error) {
	where, args := buildWhere(filter)
	args = append(args, limit, offset)
	query := fmt.Sprintf(
		`SELECT %s FROM admin_accounts%s ORDER BY lower(email) LIMIT $%d OFFSET $%d`,
		accountColumns, where, len(args)-1, len(args),
	)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка учётных записей: %w", err)
	}
	return collectAccounts(rows)
}

func (r *adminAccountRepo) Count(ctx context.Context, filter AccountFilter) (int, error) {
	where, args := buildWhere(filter)
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM admin_accounts`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта учётных записей: %w", err)
	}
	return count, nil
}

func (r *adminAccountRepo) ListActiveSuperAdmins(ctx context.Context) ([]*model.AdminAccount, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM admin_accounts WHERE role = $1 AND status = $2 ORDER BY id`,
		accountColumns,
	)
	rows, err := r.db.Query(ctx, query, string(model.RoleSuperAdmin), string(model.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("ошибка получения активных супер-администраторов: %w", err)
	}
	return collectAccounts(rows)
}

func (r *adminAccountRepo) Insert(ctx context.Context, a *model.AdminAccount) error {
	query := `
		INSERT INTO admin_accounts (id, email, full_name, role, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		a.ID, model.NormalizeEmail(a.Email), a.FullName, string(a.Role), string(a.Status),
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: учётная запись с таким email или ID уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания учётной записи: %w", err)
	}
	a.Email = model.NormalizeEmail(a.Email)
	return nil
}

func (r *adminAccountRepo) Update(ctx context.Context, a *model.AdminAccount) error {
	query := `
		UPDATE admin_accounts
		SET email = $2, full_name = $3, role = $4, status = $5, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		a.ID, model.NormalizeEmail(a.Email), a.FullName, string(a.Role), string(a.Status),
	).Scan(&a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email уже используется", ErrConflict)
		}
		return fmt.Errorf("ошибка обновления учётной записи: %w", err)
	}
	a.Email = model.NormalizeEmail(a.Email)
	return nil
}

func (r *adminAccountRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM admin_accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления учётной записи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *adminAccountRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE admin_accounts SET last_login = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("ошибка обновления last_login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
