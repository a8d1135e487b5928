// Пакет guard: инвариант «всегда есть хотя бы один активный супер-администратор».
//
// AuthorizeMutation: чистая функция над свежим снимком Directory.
// Сама по себе она не защищает от гонок: снимок и запись должны выполняться
// атомарно (см. repository.Directory.AtomicGuardedWrite).
package guard

import (
	"errors"

	"github.com/Dibo68/aanexa-admin/internal/domain/model"
)

// ErrLastSuperAdminProtected: изменение оставило бы систему без активного супер-администратора.
var ErrLastSuperAdminProtected = errors.New("нельзя удалить последнего активного супер-администратора")

// Decision: решение по изменению.
type Decision int

const (
	// Allow: изменение допустимо.
	Allow Decision = iota
	// DenyLastSuperAdmin: изменение удаляет последнего активного супер-администратора.
	DenyLastSuperAdmin
)

// Err возвращает ошибку, соответствующую решению (nil для Allow).
func (d Decision) Err() error {
	if d == DenyLastSuperAdmin {
		return ErrLastSuperAdminProtected
	}
	return nil
}

// String возвращает имя решения для логов.
func (d Decision) String() string {
	if d == DenyLastSuperAdmin {
		return "deny_last_super_admin"
	}
	return "allow"
}

// AccountState: роль и статус одной учётной записи в снимке.
type AccountState struct {
	ID     string
	Role   model.Role
	Status model.Status
}

// Snapshot: снимок состояния учётных записей, прочитанный внутри транзакции записи.
// Должен содержать как минимум всех активных супер-администраторов и целевую запись.
type Snapshot struct {
	Accounts []AccountState
}

// NewSnapshot строит снимок из целевой записи и точного списка активных супер-администраторов.
// Повторы по ID схлопываются.
func NewSnapshot(target *model.AdminAccount, activeSuperAdmins []*model.AdminAccount) Snapshot {
	seen := make(map[string]bool, len(activeSuperAdmins)+1)
	states := make([]AccountState, 0, len(activeSuperAdmins)+1)

	add := func(a *model.AdminAccount) {
		if a == nil || seen[a.ID] {
			return
		}
		seen[a.ID] = true
		states = append(states, AccountState{ID: a.ID, Role: a.Role, Status: a.Status})
	}

	add(target)
	for _, a := range activeSuperAdmins {
		add(a)
	}
	return Snapshot{Accounts: states}
}

// Change: предлагаемое изменение учётной записи.
// Delete=true означает удаление; иначе nil-поля не изменяются.
type Change struct {
	Role   *model.Role
	Status *model.Status
	Delete bool
}

// DeleteChange: намерение удалить учётную запись.
func DeleteChange() Change {
	return Change{Delete: true}
}

// ChangeFromUpdate извлекает из частичного обновления поля, влияющие на инвариант.
func ChangeFromUpdate(u model.AccountUpdate) Change {
	return Change{Role: u.Role, Status: u.Status}
}

// AuthorizeMutation решает, допустимо ли изменение targetID при данном снимке.
//
// S: множество активных супер-администраторов в снимке. Отказ, если цель входит в S,
// изменение выводит её из S (понижение роли, отключение или удаление) и |S| = 1.
// Во всех остальных случаях: Allow.
func AuthorizeMutation(targetID string, snapshot Snapshot, change Change) Decision {
	var (
		activeSupers int
		target       *AccountState
	)
	for i := range snapshot.Accounts {
		a := &snapshot.Accounts[i]
		if a.Role == model.RoleSuperAdmin && a.Status == model.StatusActive {
			activeSupers++
			if a.ID == targetID {
				target = a
			}
		}
	}

	// Цель не входит в S: изменение не может уменьшить S
	if target == nil {
		return Allow
	}

	if !leavesSuperAdminSet(*target, change) {
		return Allow
	}

	if activeSupers <= 1 {
		return DenyLastSuperAdmin
	}
	return Allow
}

// leavesSuperAdminSet: выводит ли изменение запись из множества активных супер-администраторов.
func leavesSuperAdminSet(current AccountState, change Change) bool {
	if change.Delete {
		return true
	}

	role := current.Role
	if change.Role != nil {
		role = *change.Role
	}
	status := current.Status
	if change.Status != nil {
		status = *change.Status
	}

	return role != model.RoleSuperAdmin || status != model.StatusActive
}
