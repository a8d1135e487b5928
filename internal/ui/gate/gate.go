// Пакет gate: конечный автомат авторизации страниц Admin UI.
//
// Переходы:
//   - Checking → Anonymous | Authenticated
//   - Authenticated → AwaitingProfile | Ready
//   - Ready → Permitted | InsufficientRole | InactiveAccount
//
// Автомат только для UX: решает, показать страницу, отправить на вход
// или показать «недостаточно прав». Каждое привилегированное действие
// дополнительно проверяется сервером.
//
// Не потокобезопасен: события обрабатываются последовательно одним владельцем.
package gate

import (
	"github.com/Dibo68/aanexa-admin/internal/domain/model"
	"github.com/Dibo68/aanexa-admin/internal/domain/rbac"
)

// State: состояние автомата.
type State int

const (
	Checking State = iota
	Anonymous
	Authenticated
	AwaitingProfile
	Ready
	Permitted
	InsufficientRole
	InactiveAccount
)

var stateNames = map[State]string{
	Checking:         "checking",
	Anonymous:        "anonymous",
	Authenticated:    "authenticated",
	AwaitingProfile:  "awaiting_profile",
	Ready:            "ready",
	Permitted:        "permitted",
	InsufficientRole: "insufficient_role",
	InactiveAccount:  "inactive_account",
}

// String возвращает имя состояния.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Outcome: что должна сделать страница в текущем состоянии.
type Outcome int

const (
	// RenderLoading: нейтральный индикатор загрузки, решение ещё не принято.
	RenderLoading Outcome = iota
	// RedirectSignIn: перенаправление на страницу входа.
	RedirectSignIn
	// RenderAccessDenied: «недостаточно прав» со ссылкой на доступную страницу.
	RenderAccessDenied
	// RenderContent: защищённое содержимое.
	RenderContent
)

// Event: событие, меняющее состояние автомата.
type Event interface {
	isEvent()
}

// SessionChanged: изменилась сессия (загрузка страницы, вход, выход, refresh).
type SessionChanged struct {
	// Present: есть ли действующая сессия.
	Present bool
}

// ProfileResolved: учётная запись для сессии получена.
type ProfileResolved struct {
	Principal model.Principal
}

// ProfileFailed: учётную запись для сессии получить не удалось.
type ProfileFailed struct {
	Err error
}

func (SessionChanged) isEvent()  {}
func (ProfileResolved) isEvent() {}
func (ProfileFailed) isEvent()   {}

// TransitionFunc: наблюдатель переходов (логирование, отладка).
type TransitionFunc func(from, to State)

// Gate: автомат авторизации одной страницы.
type Gate struct {
	requirement  rbac.Requirement
	state        State
	principal    *model.Principal
	onTransition TransitionFunc
}

// New создаёт автомат в состоянии Checking для страницы с указанным требованием.
// onTransition может быть nil.
func New(requirement rbac.Requirement, onTransition TransitionFunc) *Gate {
	return &Gate{
		requirement:  requirement,
		state:        Checking,
		onTransition: onTransition,
	}
}

// State возвращает текущее состояние.
func (g *Gate) State() State {
	return g.state
}

// Principal возвращает субъект, если профиль получен (иначе nil).
func (g *Gate) Principal() *model.Principal {
	return g.principal
}

// Handle применяет событие и возвращает новое состояние.
// События, не имеющие смысла в текущем состоянии, игнорируются.
func (g *Gate) Handle(ev Event) State {
	switch e := ev.(type) {
	case SessionChanged:
		// Любое изменение сессии начинает проверку заново
		g.principal = nil
		g.moveTo(Checking)
		if !e.Present {
			g.moveTo(Anonymous)
			return g.state
		}
		g.moveTo(Authenticated)
		g.moveTo(AwaitingProfile)

	case ProfileResolved:
		if g.state != AwaitingProfile {
			return g.state
		}
		p := e.Principal
		g.principal = &p
		g.moveTo(Ready)
		g.decide()

	case ProfileFailed:
		if g.state != AwaitingProfile {
			return g.state
		}
		// Сессия без профиля не считается доверенной
		g.moveTo(Anonymous)
	}
	return g.state
}

// Outcome возвращает действие страницы для текущего состояния.
func (g *Gate) Outcome() Outcome {
	switch g.state {
	case Anonymous, InactiveAccount:
		return RedirectSignIn
	case InsufficientRole:
		return RenderAccessDenied
	case Permitted:
		return RenderContent
	default:
		return RenderLoading
	}
}

// decide переводит Ready в итоговое состояние через общую проверку rbac.Satisfies.
func (g *Gate) decide() {
	switch rbac.Satisfies(*g.principal, g.requirement) {
	case rbac.Granted:
		g.moveTo(Permitted)
	case rbac.DeniedInactive:
		g.moveTo(InactiveAccount)
	case rbac.DeniedRole:
		g.moveTo(InsufficientRole)
	default:
		g.moveTo(InsufficientRole)
	}
}

func (g *Gate) moveTo(next State) {
	prev := g.state
	g.state = next
	if g.onTransition != nil && prev != next {
		g.onTransition(prev, next)
	}
}
