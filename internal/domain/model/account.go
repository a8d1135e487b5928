// Пакет model: доменные модели сервиса управления администраторами.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Role: роль администратора. Закрытый набор значений.
type Role string

const (
	// RoleAdmin: обычный администратор.
	RoleAdmin Role = "admin"
	// RoleSuperAdmin: супер-администратор (управление учётными записями).
	RoleSuperAdmin Role = "super_admin"
)

// ParseRole преобразует строку в Role. Неизвестные значения отклоняются.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleSuperAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("недопустимая роль %q, допустимые: admin, super_admin", s)
	}
}

// Status: статус учётной записи администратора.
type Status string

const (
	// StatusActive: учётная запись активна.
	StatusActive Status = "active"
	// StatusInactive: учётная запись отключена.
	StatusInactive Status = "inactive"
)

// ParseStatus преобразует строку в Status. Неизвестные значения отклоняются.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusActive, StatusInactive:
		return Status(s), nil
	default:
		return "", fmt.Errorf("недопустимый статус %q, допустимые: active, inactive", s)
	}
}

// AdminAccount: учётная запись администратора.
// Хранится в таблице admin_accounts, ID совпадает с ID пользователя в Keycloak.
type AdminAccount struct {
	// ID: Keycloak user ID (sub в токене), неизменяемый
	ID string
	// Email: адрес электронной почты (в нижнем регистре, уникален)
	Email string
	// FullName: отображаемое имя
	FullName string
	// Role: роль (admin, super_admin)
	Role Role
	// Status: статус (active, inactive)
	Status Status
	// CreatedAt: время создания записи
	CreatedAt time.Time
	// UpdatedAt: время последнего обновления
	UpdatedAt time.Time
	// LastLogin: время последнего успешного входа (nil если не входил)
	LastLogin *time.Time
}

// IsActiveSuperAdmin: входит ли запись в множество активных супер-администраторов.
func (a *AdminAccount) IsActiveSuperAdmin() bool {
	return a.Role == RoleSuperAdmin && a.Status == StatusActive
}

// Principal возвращает субъект авторизации, построенный по текущему состоянию записи.
func (a *AdminAccount) Principal() Principal {
	return Principal{
		AccountID: a.ID,
		Email:     a.Email,
		FullName:  a.FullName,
		Role:      a.Role,
		Status:    a.Status,
	}
}

// Principal: субъект, от имени которого выполняется операция.
// Формируется один раз на запрос из данных Directory, а не из claims токена.
type Principal struct {
	AccountID string
	Email     string
	FullName  string
	Role      Role
	Status    Status
}

// AccountUpdate: частичное изменение учётной записи.
// nil-поля не изменяются.
type AccountUpdate struct {
	FullName *string
	Email    *string
	Role     *Role
	Status   *Status
}

// IsEmpty: нет ни одного изменяемого поля.
func (u AccountUpdate) IsEmpty() bool {
	return u.FullName == nil && u.Email == nil && u.Role == nil && u.Status == nil
}

// AffectsPrivileges: затрагивает ли изменение роль или статус
// (такие изменения проходят через проверку инварианта).
func (u AccountUpdate) AffectsPrivileges() bool {
	return u.Role != nil || u.Status != nil
}

// NormalizeEmail приводит email к каноническому виду (trim + lower case).
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
