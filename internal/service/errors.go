// errors.go: ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"

	"github.com/Dibo68/aanexa-admin/internal/domain/guard"
	"github.com/Dibo68/aanexa-admin/internal/keycloak"
	"github.com/Dibo68/aanexa-admin/internal/repository"
)

var (
	// ErrNotFound: учётная запись не найдена.
	ErrNotFound = errors.New("учётная запись не найдена")
	// ErrConflict: email уже используется.
	ErrConflict = errors.New("email уже используется")
	// ErrValidation: ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrSelfDeletion: попытка удалить собственную учётную запись.
	ErrSelfDeletion = errors.New("нельзя удалить собственную учётную запись")
	// ErrInvalidCredentials: неверный email или пароль.
	ErrInvalidCredentials = errors.New("неверный email или пароль")
	// ErrUpstream: Directory или Credential Store недоступны.
	ErrUpstream = errors.New("ошибка внешней зависимости")
	// ErrLastSuperAdminProtected: изменение оставило бы систему без активного супер-администратора.
	ErrLastSuperAdminProtected = guard.ErrLastSuperAdminProtected
)

// ValidationError: нарушение правила валидации. Reason: стабильный ключ
// причины (для локализации), Args: параметры сообщения.
type ValidationError struct {
	Reason string
	Args   []any
	msg    string
}

func (e *ValidationError) Error() string { return ErrValidation.Error() + ": " + e.msg }

// Unwrap связывает ошибку с ErrValidation для errors.Is.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Причины ошибок валидации.
const (
	ReasonEmailRequired           = "email_required"
	ReasonEmailInvalid            = "email_invalid"
	ReasonFullNameRequired        = "full_name_required"
	ReasonFullNameTooLong         = "full_name_too_long"
	ReasonPasswordTooShort        = "password_too_short"
	ReasonRoleInvalid             = "role_invalid"
	ReasonEmptyUpdate             = "empty_update"
	ReasonPrivilegedProfileField  = "privileged_profile_field"
	ReasonCredentialsRequired     = "credentials_required"
	ReasonCurrentPasswordRequired = "current_password_required"
	ReasonCurrentPasswordWrong    = "current_password_wrong"
	ReasonPasswordUnchanged       = "password_unchanged"
)

// validationError создаёт ValidationError с описанием для логов.
func validationError(reason, format string, args ...any) error {
	return &ValidationError{Reason: reason, Args: args, msg: fmt.Sprintf(format, args...)}
}

// directoryError переводит ошибки Directory в ошибки сервисного слоя.
// Ошибки сервисного слоя, возвращённые из mutate, проходят без изменений.
func directoryError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, guard.ErrLastSuperAdminProtected), errors.Is(err, repository.ErrLastSuperAdmin):
		return ErrLastSuperAdminProtected
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, ErrUpstream), errors.Is(err, ErrConflict), errors.Is(err, ErrValidation):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}
}

// identityError переводит ошибки Credential Store в ошибки сервисного слоя.
func identityError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, keycloak.ErrConflict):
		return fmt.Errorf("%w: %s", ErrConflict, op)
	case errors.Is(err, keycloak.ErrNotFound):
		return fmt.Errorf("%w: %s: identity не найдена", ErrUpstream, op)
	default:
		return fmt.Errorf("%w: %s: %w", ErrUpstream, op, err)
	}
}
