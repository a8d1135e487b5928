// Пакет rbac: единая проверка «удовлетворяет ли субъект требованию».
// Используется и серверным middleware (граница безопасности), и UI-гейтом
// (только для UX). Других мест сравнения ролей и статусов в коде нет.
package rbac

import "github.com/Dibo68/aanexa-admin/internal/domain/model"

// Requirement: требование операции или страницы к субъекту.
type Requirement int

const (
	// RequireAdmin: любой активный администратор.
	RequireAdmin Requirement = iota
	// RequireSuperAdmin: только активный супер-администратор.
	RequireSuperAdmin
)

// String возвращает имя требования для логов.
func (r Requirement) String() string {
	switch r {
	case RequireAdmin:
		return "admin"
	case RequireSuperAdmin:
		return "super_admin"
	default:
		return "unknown"
	}
}

// Verdict: результат проверки требования.
type Verdict int

const (
	// Granted: требование выполнено.
	Granted Verdict = iota
	// DeniedInactive: учётная запись отключена.
	DeniedInactive
	// DeniedRole: роль не удовлетворяет требованию.
	DeniedRole
)

// String возвращает имя вердикта для логов и метрик.
func (v Verdict) String() string {
	switch v {
	case Granted:
		return "granted"
	case DeniedInactive:
		return "inactive"
	case DeniedRole:
		return "insufficient_role"
	default:
		return "unknown"
	}
}

// roleWeight: вес роли. Чем выше вес, тем больше привилегий.
var roleWeight = map[model.Role]int{
	model.RoleAdmin:      1,
	model.RoleSuperAdmin: 2,
}

// requiredWeight: минимальный вес роли для требования.
var requiredWeight = map[Requirement]int{
	RequireAdmin:      roleWeight[model.RoleAdmin],
	RequireSuperAdmin: roleWeight[model.RoleSuperAdmin],
}

// Satisfies проверяет, удовлетворяет ли субъект требованию.
// Статус проверяется раньше роли: отключённый супер-администратор не проходит никуда.
// Неизвестные статусы, роли и требования трактуются как отказ.
func Satisfies(p model.Principal, req Requirement) Verdict {
	switch p.Status {
	case model.StatusActive:
	case model.StatusInactive:
		return DeniedInactive
	default:
		return DeniedInactive
	}

	need, ok := requiredWeight[req]
	if !ok {
		return DeniedRole
	}
	if roleWeight[p.Role] < need {
		return DeniedRole
	}
	return Granted
}
