// profile.go: изменение собственного профиля и пароля.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dibo68/aanexa-admin/internal/domain/model"
	"github.com/Dibo68/aanexa-admin/internal/domain/rbac"
	"github.com/Dibo68/aanexa-admin/internal/keycloak"
	"github.com/Dibo68/aanexa-admin/internal/repository"
)

// ProfileService: операции администратора над собственной учётной записью.
type ProfileService struct {
	accounts   *AdminAccountService
	issuer     TokenIssuer
	identities IdentityStore
	logger     *slog.Logger
}

// NewProfileService создаёт сервис профиля.
func NewProfileService(accounts *AdminAccountService, issuer TokenIssuer, identities IdentityStore, logger *slog.Logger) *ProfileService {
	return &ProfileService{
		accounts:   accounts,
		issuer:     issuer,
		identities: identities,
		logger:     logger.With(slog.String("component", "profile_service")),
	}
}

// UpdateOwnProfile меняет имя и/или email вызывающего. Роль и статус
// через профиль не меняются.
func (s *ProfileService) UpdateOwnProfile(ctx context.Context, caller model.Principal, upd model.AccountUpdate) (*model.AdminAccount, error) {
	if err := authorize(caller, rbac.RequireAdmin); err != nil {
		return nil, err
	}
	if upd.AffectsPrivileges() {
		return nil, validationError(ReasonPrivilegedProfileField, "роль и статус нельзя изменить через профиль")
	}

	upd, err := normalizeUpdate(upd)
	if err != nil {
		return nil, err
	}

	var updated *model.AdminAccount
	err = s.accounts.dir.Transact(ctx, func(ctx context.Context, accounts repository.AdminAccountRepository) error {
		target, err := accounts.GetByIDForUpdate(ctx, caller.AccountID)
		if err != nil {
			return err
		}
		if err := s.accounts.save(ctx, accounts, target, upd); err != nil {
			return err
		}
		updated = target
		return nil
	})
	if err != nil {
		return nil, directoryError(err)
	}

	s.logger.Info("Профиль изменён", slog.String("id", caller.AccountID))
	return updated, nil
}

// ChangePassword проверяет текущий пароль через password grant и устанавливает новый.
func (s *ProfileService) ChangePassword(ctx context.Context, caller model.Principal, current, next string) error {
	if err := authorize(caller, rbac.RequireAdmin); err != nil {
		return err
	}
	if current == "" {
		return validationError(ReasonCurrentPasswordRequired, "текущий пароль обязателен")
	}
	if err := checkPassword(next); err != nil {
		return err
	}
	if current == next {
		return validationError(ReasonPasswordUnchanged, "новый пароль совпадает с текущим")
	}

	ts, err := s.issuer.PasswordGrant(ctx, caller.Email, current)
	if err != nil {
		if errors.Is(err, keycloak.ErrInvalidCredentials) {
			return validationError(ReasonCurrentPasswordWrong, "текущий пароль неверен")
		}
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	// Сессия проверки пароля не нужна
	if err := s.issuer.Logout(context.WithoutCancel(ctx), ts.RefreshToken); err != nil {
		s.logger.Debug("Ошибка завершения проверочной сессии", slog.String("error", err.Error()))
	}

	if err := s.identities.SetPassword(ctx, caller.AccountID, next); err != nil {
		return identityError("смена пароля", err)
	}

	s.logger.Info("Пароль изменён", slog.String("id", caller.AccountID))
	return nil
}
