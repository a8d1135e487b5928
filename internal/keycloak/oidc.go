// oidc.go: клиент OIDC token endpoint Keycloak для входа администраторов:
// password grant, refresh grant и logout.
//
// Параллельные refresh одного и того же refresh token схлопываются (singleflight),
// а результат кратко кэшируется: Keycloak может ротировать refresh token,
// и запросы со старой cookie, пришедшие чуть позже, получают уже выпущенные токены.
package keycloak

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// OIDCConfig: конфигурация клиента входа.
type OIDCConfig struct {
	// BaseURL: базовый URL Keycloak.
	BaseURL string
	// Realm: имя realm.
	Realm string
	// ClientID: клиент с включённым Direct Access Grants.
	ClientID string
	// ClientSecret: секрет клиента (пусто для public client).
	ClientSecret string
	// HTTPClient: HTTP-клиент (nil: создаётся новый с таймаутом 30s).
	HTTPClient *http.Client
	// CacheSize: размер кэша результатов refresh.
	CacheSize int
	// CacheTTL: время жизни результата refresh в кэше.
	CacheTTL time.Duration
}

// OIDC: клиент token endpoint Keycloak.
type OIDC struct {
	oauth      *oauth2.Config
	logoutURL  string
	httpClient *http.Client
	logger     *slog.Logger

	group     singleflight.Group
	refreshed *expirable.LRU[string, *TokenSet]
}

// NewOIDC создаёт клиент token endpoint.
func NewOIDC(cfg OIDCConfig, logger *slog.Logger) *OIDC {
	oidcBase := fmt.Sprintf("%s/realms/%s/protocol/openid-connect", strings.TrimRight(cfg.BaseURL, "/"), cfg.Realm)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 1024
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return &OIDC{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  oidcBase + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: []string{"openid", "email", "profile"},
		},
		logoutURL:  oidcBase + "/logout",
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "keycloak_oidc")),
		refreshed:  expirable.NewLRU[string, *TokenSet](size, nil, ttl),
	}
}

// withHTTPClient передаёт HTTP-клиент в golang.org/x/oauth2 через контекст.
func (o *OIDC) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
}

// PasswordGrant выполняет вход по email и паролю.
// Неверные учётные данные: ErrInvalidCredentials.
func (o *OIDC) PasswordGrant(ctx context.Context, email, password string) (*TokenSet, error) {
	tok, err := o.oauth.PasswordCredentialsToken(o.withHTTPClient(ctx), email, password)
	if err != nil {
		if isInvalidGrant(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("password grant: %w", err)
	}
	return toTokenSet(tok), nil
}

// Refresh выпускает новые токены по refresh token.
// Недействительный refresh token: ErrInvalidGrant.
func (o *OIDC) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	key := refreshKey(refreshToken)

	if ts, ok := o.refreshed.Get(key); ok {
		o.logger.Debug("Refresh из кэша")
		return ts, nil
	}

	// Запрос общий для всех ожидающих, отмена одного вызывающего его не прерывает
	sharedCtx := o.withHTTPClient(context.WithoutCancel(ctx))

	v, err, shared := o.group.Do(key, func() (any, error) {
		// Предыдущий вызов мог завершиться между проверкой кэша и Do
		if ts, ok := o.refreshed.Get(key); ok {
			return ts, nil
		}
		src := o.oauth.TokenSource(sharedCtx, &oauth2.Token{RefreshToken: refreshToken})
		tok, err := src.Token()
		if err != nil {
			if isInvalidGrant(err) {
				return nil, ErrInvalidGrant
			}
			return nil, fmt.Errorf("refresh grant: %w", err)
		}
		ts := toTokenSet(tok)
		o.refreshed.Add(key, ts)
		return ts, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		o.logger.Debug("Refresh объединён с параллельным запросом")
	}
	return v.(*TokenSet), nil
}

// Logout завершает сессию Keycloak по refresh token.
func (o *OIDC) Logout(ctx context.Context, refreshToken string) error {
	data := url.Values{
		"client_id":     {o.oauth.ClientID},
		"refresh_token": {refreshToken},
	}
	if o.oauth.ClientSecret != "" {
		data.Set("client_secret", o.oauth.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.logoutURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("создание запроса logout: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return fmt.Errorf("запрос logout: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("logout: Keycloak вернул статус %d: %s", resp.StatusCode, string(body))
	}

	o.refreshed.Remove(refreshKey(refreshToken))
	return nil
}

// isInvalidGrant: token endpoint отклонил учётные данные или refresh token.
func isInvalidGrant(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}
	if re.ErrorCode == "invalid_grant" {
		return true
	}
	return re.Response != nil && re.Response.StatusCode == http.StatusUnauthorized
}

// refreshKey: ключ кэша: сам refresh token в памяти не хранится.
func refreshKey(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return hex.EncodeToString(sum[:])
}

func toTokenSet(tok *oauth2.Token) *TokenSet {
	return &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}
