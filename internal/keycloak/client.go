// client.go: HTTP-клиент к Keycloak Admin REST API.
// Реализует автоматическое получение service account token через Client Credentials flow,
// кэширование токена (обновление за 30s до expiration).
// Операции: CreateIdentity, DeleteIdentity, UpdateIdentity, SetPassword,
// FindUserByEmail, GetUser, RealmInfo.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Client: HTTP-клиент к Keycloak Admin REST API.
type Client struct {
	baseURL      string // Базовый URL Keycloak (без trailing slash)
	realm        string // Имя realm
	clientID     string // Client ID для Client Credentials flow
	clientSecret string // Client Secret

	httpClient *http.Client
	logger     *slog.Logger

	// Кэш токена доступа
	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New создаёт клиент к Keycloak Admin REST API.
// baseURL: базовый URL Keycloak (например, https://keycloak.example.com).
// realm: имя realm (например, aanexa).
// clientID, clientSecret: credentials для Client Credentials flow.
// httpClient: HTTP-клиент (может содержать TLS конфигурацию).
func New(baseURL, realm, clientID, clientSecret string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		logger:       logger.With(slog.String("component", "keycloak_client")),
	}
}

// --- Аутентификация ---

// tokenEndpoint возвращает URL endpoint'а получения токена.
func (c *Client) tokenEndpoint() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.baseURL, c.realm)
}

// adminBaseURL возвращает базовый URL Admin REST API для realm.
func (c *Client) adminBaseURL() string {
	return fmt.Sprintf("%s/admin/realms/%s", c.baseURL, c.realm)
}

// getToken возвращает актуальный access token, обновляя при необходимости.
// Токен обновляется за 30 секунд до истечения.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Проверяем кэш: если токен валиден ещё 30 секунд: используем его
	if c.accessToken != "" && time.Now().Add(30*time.Second).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	// Запрашиваем новый токен через Client Credentials flow
	token, err := c.requestToken(ctx)
	if err != nil {
		return "", err
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)

	c.logger.Debug("Keycloak токен обновлён",
		slog.Time("expires_at", c.tokenExpiry),
	)

	return c.accessToken, nil
}

// requestToken выполняет Client Credentials flow.
func (c *Client) requestToken(ctx context.Context) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint(), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("создание запроса токена: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос токена Keycloak: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Keycloak вернул статус %d при запросе токена: %s", resp.StatusCode, string(body))
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("декодирование токена Keycloak: %w", err)
	}

	return &token, nil
}

// --- HTTP helpers ---

// doAuthorized выполняет HTTP-запрос к Admin REST API с авторизацией.
func (c *Client) doAuthorized(ctx context.Context, method, path string, body any) (*http.Response, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение токена: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	reqURL := c.adminBaseURL() + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// statusError формирует ошибку по неуспешному статусу ответа.
// 404 и 409 оборачивают ErrNotFound и ErrConflict.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := fmt.Errorf("Keycloak API вернул статус %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case http.StatusConflict:
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return err
	}
}

// decodeResponse декодирует JSON ответ в target.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("декодирование ответа Keycloak: %w", err)
		}
	}

	return nil
}

// checkResponse проверяет статус ответа (для запросов без тела ответа).
func checkResponse(resp *http.Response, expectedStatus int) error {
	defer resp.Body.Close()

	if resp.StatusCode != expectedStatus {
		return statusError(resp)
	}

	return nil
}

// --- Users API ---

// CreateIdentity создаёт пользователя с паролем и возвращает его Keycloak ID.
// Username совпадает с email.
func (c *Client) CreateIdentity(ctx context.Context, spec IdentitySpec) (string, error) {
	first, last := splitFullName(spec.FullName)
	createReq := userCreateRequest{
		Username:      spec.Email,
		Email:         spec.Email,
		FirstName:     first,
		LastName:      last,
		Enabled:       true,
		EmailVerified: true,
		Credentials: []credentialRepresentation{
			{Type: "password", Value: spec.Password, Temporary: false},
		},
		Attributes: map[string][]string{
			"managed_by": {"aanexa-admin"},
		},
	}

	resp, err := c.doAuthorized(ctx, http.MethodPost, "/users", createReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("CreateIdentity: %w", statusError(resp))
	}

	// Keycloak возвращает Location header с ID созданного ресурса
	location := resp.Header.Get("Location")
	if location == "" {
		return "", errors.New("CreateIdentity: отсутствует Location header в ответе")
	}

	// Извлекаем ID из Location: .../users/{id}
	id := location[strings.LastIndex(location, "/")+1:]
	if id == "" {
		return "", fmt.Errorf("CreateIdentity: не удалось извлечь ID из Location: %s", location)
	}

	c.logger.Debug("Identity создана в Keycloak", slog.String("id", id))
	return id, nil
}

// DeleteIdentity удаляет пользователя. Отсутствующий пользователь: ErrNotFound.
func (c *Client) DeleteIdentity(ctx context.Context, id string) error {
	resp, err := c.doAuthorized(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}

	if err := checkResponse(resp, http.StatusNoContent); err != nil {
		return fmt.Errorf("DeleteIdentity: %w", err)
	}
	return nil
}

// UpdateIdentity изменяет email и/или имя пользователя.
func (c *Client) UpdateIdentity(ctx context.Context, id string, upd IdentityUpdate) error {
	var body userUpdateRequest
	if upd.Email != nil {
		body.Username = *upd.Email
		body.Email = *upd.Email
	}
	if upd.FullName != nil {
		body.FirstName, body.LastName = splitFullName(*upd.FullName)
	}

	resp, err := c.doAuthorized(ctx, http.MethodPut, "/users/"+url.PathEscape(id), body)
	if err != nil {
		return err
	}

	if err := checkResponse(resp, http.StatusNoContent); err != nil {
		return fmt.Errorf("UpdateIdentity: %w", err)
	}
	return nil
}

// SetPassword устанавливает новый постоянный пароль пользователя.
func (c *Client) SetPassword(ctx context.Context, id, password string) error {
	cred := credentialRepresentation{Type: "password", Value: password, Temporary: false}

	resp, err := c.doAuthorized(ctx, http.MethodPut, "/users/"+url.PathEscape(id)+"/reset-password", cred)
	if err != nil {
		return err
	}

	if err := checkResponse(resp, http.StatusNoContent); err != nil {
		return fmt.Errorf("SetPassword: %w", err)
	}
	return nil
}

// GetUser возвращает пользователя по Keycloak ID.
func (c *Client) GetUser(ctx context.Context, id string) (*KeycloakUser, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var user KeycloakUser
	if err := decodeResponse(resp, &user); err != nil {
		return nil, fmt.Errorf("GetUser: %w", err)
	}

	return &user, nil
}

// FindUserByEmail ищет пользователя по точному email. Не найден: ErrNotFound.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*KeycloakUser, error) {
	path := "/users?exact=true&email=" + url.QueryEscape(email)

	resp, err := c.doAuthorized(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var users []KeycloakUser
	if err := decodeResponse(resp, &users); err != nil {
		return nil, fmt.Errorf("FindUserByEmail: %w", err)
	}

	for i := range users {
		if strings.EqualFold(users[i].Email, email) {
			return &users[i], nil
		}
	}
	return nil, ErrNotFound
}

// --- Realm API ---

// RealmInfo возвращает информацию о realm.
func (c *Client) RealmInfo(ctx context.Context) (*RealmRepresentation, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, "", nil)
	if err != nil {
		return nil, err
	}

	var realm RealmRepresentation
	if err := decodeResponse(resp, &realm); err != nil {
		return nil, fmt.Errorf("RealmInfo: %w", err)
	}

	return &realm, nil
}

// --- Readiness checker ---

// CheckReady проверяет доступность Keycloak через realm info.
// Реализует handlers.ReadinessChecker.
func (c *Client) CheckReady(ctx context.Context) (string, string) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	realm, err := c.RealmInfo(ctx)
	if err != nil {
		return "fail", fmt.Sprintf("Keycloak недоступен: %v", err)
	}

	if !realm.Enabled {
		return "degraded", fmt.Sprintf("Realm %s отключён", realm.Realm)
	}

	return "ok", fmt.Sprintf("Realm %s доступен", realm.Realm)
}
