// Пакет service: бизнес-логика сервиса управления администраторами.
// admin_accounts.go: жизненный цикл учётных записей: создание (двухфазное
// с компенсацией), изменение, удаление, чтение и первичный супер-администратор.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Dibo68/aanexa-admin/internal/auth"
	"github.com/Dibo68/aanexa-admin/internal/domain/guard"
	"github.com/Dibo68/aanexa-admin/internal/domain/model"
	"github.com/Dibo68/aanexa-admin/internal/domain/rbac"
	"github.com/Dibo68/aanexa-admin/internal/keycloak"
	"github.com/Dibo68/aanexa-admin/internal/repository"
)

// Directory: Admin Directory. Реализуется *repository.Directory.
type Directory interface {
	Accounts() repository.AdminAccountRepository
	Transact(ctx context.Context, fn repository.TxFunc) error
	AtomicGuardedWrite(ctx context.Context, targetID string, change guard.Change, mutate repository.GuardedMutation) error
}

// IdentityStore: Admin REST API Credential Store. Реализуется *keycloak.Client.
type IdentityStore interface {
	CreateIdentity(ctx context.Context, spec keycloak.IdentitySpec) (string, error)
	DeleteIdentity(ctx context.Context, id string) error
	UpdateIdentity(ctx context.Context, id string, upd keycloak.IdentityUpdate) error
	SetPassword(ctx context.Context, id, password string) error
	FindUserByEmail(ctx context.Context, email string) (*keycloak.KeycloakUser, error)
}

// NewAccount: параметры новой учётной записи.
type NewAccount struct {
	Email    string
	FullName string
	Role     model.Role
	Password string //nolint:gosec // G117: пароль передаётся только в Keycloak
}

// AccountPage: страница списка учётных записей.
type AccountPage struct {
	Items  []*model.AdminAccount
	Total  int
	Limit  int
	Offset int
}

// AdminAccountService: управление учётными записями администраторов.
type AdminAccountService struct {
	dir        Directory
	identities IdentityStore
	logger     *slog.Logger
}

// NewAdminAccountService создаёт сервис учётных записей.
func NewAdminAccountService(dir Directory, identities IdentityStore, logger *slog.Logger) *AdminAccountService {
	return &AdminAccountService{
		dir:        dir,
		identities: identities,
		logger:     logger.With(slog.String("component", "admin_accounts_service")),
	}
}

// authorize проверяет требование к вызывающему через общую функцию rbac.Satisfies.
func authorize(p model.Principal, req rbac.Requirement) error {
	switch rbac.Satisfies(p, req) {
	case rbac.Granted:
		return nil
	case rbac.DeniedInactive:
		return auth.ErrAccountInactive
	default:
		return auth.ErrInsufficientRole
	}
}

// Create создаёт учётную запись: сначала identity в Keycloak, затем строку Directory.
// Если запись в Directory не удалась, identity удаляется.
// Только для супер-администратора.
func (s *AdminAccountService) Create(ctx context.Context, caller model.Principal, in NewAccount) (*model.AdminAccount, error) {
	if err := authorize(caller, rbac.RequireSuperAdmin); err != nil {
		return nil, err
	}

	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	fullName, err := normalizeFullName(in.FullName)
	if err != nil {
		return nil, err
	}
	role, err := model.ParseRole(string(in.Role))
	if err != nil {
		return nil, validationError(ReasonRoleInvalid, "недопустимая роль %q", string(in.Role))
	}
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}

	account := &model.AdminAccount{
		Email:    email,
		FullName: fullName,
		Role:     role,
		Status:   model.StatusActive,
	}
	if err := s.provision(ctx, account, in.Password); err != nil {
		return nil, err
	}

	s.logger.Info("Учётная запись создана",
		slog.String("id", account.ID),
		slog.String("email", account.Email),
		slog.String("role", string(account.Role)),
		slog.String("by", caller.AccountID),
	)
	return account, nil
}

// provision: двухфазное создание. Заполняет account.ID.
func (s *AdminAccountService) provision(ctx context.Context, account *model.AdminAccount, password string) error {
	if _, err := s.dir.Accounts().GetByEmail(ctx, account.Email); err == nil {
		return ErrConflict
	} else if !errors.Is(err, repository.ErrNotFound) {
		return directoryError(err)
	}

	id, err := s.identities.CreateIdentity(ctx, keycloak.IdentitySpec{
		Email:    account.Email,
		FullName: account.FullName,
		Password: password,
	})
	if err != nil {
		s.logger.Warn("Ошибка создания identity",
			slog.String("email", account.Email),
			slog.String("error", err.Error()),
		)
		return identityError("создание identity", err)
	}
	account.ID = id

	if err := s.dir.Accounts().Insert(ctx, account); err != nil {
		s.compensate(ctx, id, err)
		return directoryError(err)
	}
	return nil
}

// compensate удаляет identity, для которой не удалось создать строку Directory.
func (s *AdminAccountService) compensate(ctx context.Context, id string, cause error) {
	// Откат не должен прерываться отменой исходного запроса
	err := s.identities.DeleteIdentity(context.WithoutCancel(ctx), id)
	if err != nil && !errors.Is(err, keycloak.ErrNotFound) {
		compensationsTotal.WithLabelValues("failed").Inc()
		s.logger.Error("Не удалось удалить identity после ошибки Directory, требуется ручная очистка",
			slog.String("identity_id", id),
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()),
		)
		return
	}
	compensationsTotal.WithLabelValues("ok").Inc()
	s.logger.Warn("Identity удалена после ошибки Directory",
		slog.String("identity_id", id),
		slog.String("cause", cause.Error()),
	)
}

// Update применяет частичное изменение. Роль и статус меняются только через
// AtomicGuardedWrite, имя и email: в обычной транзакции.
// Только для супер-администратора.
func (s *AdminAccountService) Update(ctx context.Context, caller model.Principal, id string, upd model.AccountUpdate) (*model.AdminAccount, error) {
	if err := authorize(caller, rbac.RequireSuperAdmin); err != nil {
		return nil, err
	}

	id, err := canonicalID(id)
	if err != nil {
		return nil, err
	}
	upd, err = normalizeUpdate(upd)
	if err != nil {
		return nil, err
	}

	var updated *model.AdminAccount
	mutate := func(ctx context.Context, accounts repository.AdminAccountRepository, target *model.AdminAccount) error {
		if err := s.save(ctx, accounts, target, upd); err != nil {
			return err
		}
		updated = target
		return nil
	}

	if upd.AffectsPrivileges() {
		err = s.dir.AtomicGuardedWrite(ctx, id, guard.ChangeFromUpdate(upd), mutate)
	} else {
		err = s.dir.Transact(ctx, func(ctx context.Context, accounts repository.AdminAccountRepository) error {
			target, err := accounts.GetByIDForUpdate(ctx, id)
			if err != nil {
				return err
			}
			return mutate(ctx, accounts, target)
		})
	}
	if err != nil {
		err = directoryError(err)
		if errors.Is(err, ErrLastSuperAdminProtected) {
			guardDenialsTotal.WithLabelValues("update").Inc()
			s.logger.Warn("Изменение отклонено: последний активный супер-администратор",
				slog.String("id", id),
				slog.String("by", caller.AccountID),
			)
		}
		return nil, err
	}

	s.logger.Info("Учётная запись изменена",
		slog.String("id", id),
		slog.String("role", string(updated.Role)),
		slog.String("status", string(updated.Status)),
		slog.String("by", caller.AccountID),
	)
	return updated, nil
}

// save сохраняет запись и синхронизирует email и имя с Credential Store.
// Ошибка Keycloak откатывает транзакцию Directory.
func (s *AdminAccountService) save(ctx context.Context, accounts repository.AdminAccountRepository, target *model.AdminAccount, upd model.AccountUpdate) error {
	identityChanged := applyUpdate(target, upd)

	if err := accounts.Update(ctx, target); err != nil {
		return err
	}

	if identityChanged {
		err := s.identities.UpdateIdentity(ctx, target.ID, keycloak.IdentityUpdate{
			Email:    upd.Email,
			FullName: upd.FullName,
		})
		if err != nil {
			return identityError("изменение identity", err)
		}
	}
	return nil
}

// Delete удаляет учётную запись и её identity. Удаление самого себя запрещено
// независимо от количества супер-администраторов.
// Только для супер-администратора.
func (s *AdminAccountService) Delete(ctx context.Context, caller model.Principal, id string) (*model.AdminAccount, error) {
	if err := authorize(caller, rbac.RequireSuperAdmin); err != nil {
		return nil, err
	}
	id, err := canonicalID(id)
	if err != nil {
		return nil, err
	}
	if id == caller.AccountID {
		return nil, ErrSelfDeletion
	}

	var deleted *model.AdminAccount
	err = s.dir.AtomicGuardedWrite(ctx, id, guard.DeleteChange(),
		func(ctx context.Context, accounts repository.AdminAccountRepository, target *model.AdminAccount) error {
			if err := accounts.Delete(ctx, target.ID); err != nil {
				return err
			}
			// Identity могли удалить вручную в консоли Keycloak
			if err := s.identities.DeleteIdentity(ctx, target.ID); err != nil && !errors.Is(err, keycloak.ErrNotFound) {
				return identityError("удаление identity", err)
			}
			deleted = target
			return nil
		})
	if err != nil {
		err = directoryError(err)
		if errors.Is(err, ErrLastSuperAdminProtected) {
			guardDenialsTotal.WithLabelValues("delete").Inc()
			s.logger.Warn("Удаление отклонено: последний активный супер-администратор",
				slog.String("id", id),
				slog.String("by", caller.AccountID),
			)
		}
		return nil, err
	}

	s.logger.Info("Учётная запись удалена",
		slog.String("id", id),
		slog.String("email", deleted.Email),
		slog.String("by", caller.AccountID),
	)
	return deleted, nil
}

// Get возвращает учётную запись. Для любого активного администратора.
func (s *AdminAccountService) Get(ctx context.Context, caller model.Principal, id string) (*model.AdminAccount, error) {
	if err := authorize(caller, rbac.RequireAdmin); err != nil {
		return nil, err
	}
	id, err := canonicalID(id)
	if err != nil {
		return nil, err
	}
	account, err := s.dir.Accounts().GetByID(ctx, id)
	if err != nil {
		return nil, directoryError(err)
	}
	return account, nil
}

// List возвращает страницу учётных записей. Для любого активного администратора.
func (s *AdminAccountService) List(ctx context.Context, caller model.Principal, filter repository.AccountFilter, limit, offset int) (*AccountPage, error) {
	if err := authorize(caller, rbac.RequireAdmin); err != nil {
		return nil, err
	}

	items, err := s.dir.Accounts().List(ctx, filter, limit, offset)
	if err != nil {
		return nil, directoryError(err)
	}
	total, err := s.dir.Accounts().Count(ctx, filter)
	if err != nil {
		return nil, directoryError(err)
	}

	return &AccountPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// Bootstrap создаёт первого супер-администратора, если Directory пуст.
// Повторный запуск после частичного сбоя подхватывает уже существующую identity.
func (s *AdminAccountService) Bootstrap(ctx context.Context, email, password, fullName string) error {
	total, err := s.dir.Accounts().Count(ctx, repository.AccountFilter{})
	if err != nil {
		return directoryError(err)
	}
	if total > 0 {
		s.logger.Debug("Directory не пуст, bootstrap пропущен", slog.Int("accounts", total))
		return nil
	}

	account := &model.AdminAccount{Role: model.RoleSuperAdmin, Status: model.StatusActive}
	if account.Email, err = normalizeEmail(email); err != nil {
		return err
	}
	if account.FullName, err = normalizeFullName(fullName); err != nil {
		return err
	}
	if err := checkPassword(password); err != nil {
		return err
	}

	err = s.provision(ctx, account, password)
	if errors.Is(err, ErrConflict) {
		err = s.adoptIdentity(ctx, account, password)
	}
	if err != nil {
		return err
	}

	s.logger.Info("Создан первый супер-администратор",
		slog.String("id", account.ID),
		slog.String("email", account.Email),
	)
	return nil
}

// adoptIdentity привязывает существующую identity Keycloak к новой строке Directory.
func (s *AdminAccountService) adoptIdentity(ctx context.Context, account *model.AdminAccount, password string) error {
	user, err := s.identities.FindUserByEmail(ctx, account.Email)
	if err != nil {
		return identityError("поиск identity", err)
	}
	if err := s.identities.SetPassword(ctx, user.ID, password); err != nil {
		return identityError("установка пароля", err)
	}
	account.ID = user.ID
	if err := s.dir.Accounts().Insert(ctx, account); err != nil {
		return directoryError(err)
	}
	s.logger.Warn("Bootstrap использовал существующую identity Keycloak", slog.String("id", user.ID))
	return nil
}
