// Пакет keycloak: адаптер Credential Store поверх Keycloak:
// Admin REST API (учётные данные администраторов) и OIDC token endpoint (вход, refresh, logout).
// models.go: модели данных Keycloak.
package keycloak

import (
	"errors"
	"strings"
	"time"
)

// Ошибки Credential Store.
var (
	// ErrNotFound: identity не найдена (HTTP 404).
	ErrNotFound = errors.New("keycloak: identity не найдена")
	// ErrConflict: identity с таким username или email уже существует (HTTP 409).
	ErrConflict = errors.New("keycloak: identity уже существует")
	// ErrInvalidCredentials: неверный email или пароль (invalid_grant на password grant).
	ErrInvalidCredentials = errors.New("keycloak: неверные учётные данные")
	// ErrInvalidGrant: refresh token недействителен или отозван.
	ErrInvalidGrant = errors.New("keycloak: refresh token недействителен")
)

// TokenResponse: ответ на запрос токена через Client Credentials flow.
type TokenResponse struct {
	AccessToken string `json:"access_token"` //nolint:gosec // G117: структура токена OAuth2
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// TokenSet: токены сессии администратора.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	// Expiry: время истечения access token
	Expiry time.Time
}

// KeycloakUser: пользователь в Keycloak.
type KeycloakUser struct { //nolint:revive // stuttering допустим: внешний API Keycloak
	ID            string `json:"id,omitempty"`
	Username      string `json:"username,omitempty"`
	Email         string `json:"email,omitempty"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	Enabled       bool   `json:"enabled"`
	CreatedAt     int64  `json:"createdTimestamp,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
}

// CreatedAtTime возвращает CreatedAt как time.Time.
// Keycloak хранит timestamp в миллисекундах.
func (u *KeycloakUser) CreatedAtTime() time.Time {
	return time.UnixMilli(u.CreatedAt)
}

// IdentitySpec: параметры новой identity администратора.
type IdentitySpec struct {
	Email    string
	FullName string
	Password string //nolint:gosec // G117: пароль передаётся только в Keycloak
}

// IdentityUpdate: частичное изменение identity. nil-поля не изменяются.
type IdentityUpdate struct {
	Email    *string
	FullName *string
}

// RealmRepresentation: краткая информация о realm.
type RealmRepresentation struct {
	Realm   string `json:"realm"`
	Enabled bool   `json:"enabled"`
}

// credentialRepresentation: пароль пользователя в Admin REST API.
type credentialRepresentation struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

// userCreateRequest: запрос на создание пользователя в Keycloak.
type userCreateRequest struct {
	Username      string                     `json:"username"`
	Email         string                     `json:"email"`
	FirstName     string                     `json:"firstName,omitempty"`
	LastName      string                     `json:"lastName,omitempty"`
	Enabled       bool                       `json:"enabled"`
	EmailVerified bool                       `json:"emailVerified"`
	Credentials   []credentialRepresentation `json:"credentials,omitempty"`
	Attributes    map[string][]string        `json:"attributes,omitempty"`
}

// userUpdateRequest: частичное обновление пользователя (Keycloak игнорирует отсутствующие поля).
type userUpdateRequest struct {
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// splitFullName делит отображаемое имя на firstName и lastName Keycloak.
func splitFullName(fullName string) (first, last string) {
	fullName = strings.TrimSpace(fullName)
	first, last, _ = strings.Cut(fullName, " ")
	return first, strings.TrimSpace(last)
}
