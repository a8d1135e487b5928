// Пакет auth: проверка сессий администраторов: JWT (JWKS Keycloak),
// зашифрованный session cookie, прозрачный refresh и разрешение Principal из Directory.
package auth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Ошибки проверки токена.
var (
	// ErrTokenExpired: подпись и issuer верны, но срок действия истёк.
	// Только в этом случае допустим refresh.
	ErrTokenExpired = errors.New("токен просрочен")
	// ErrTokenInvalid: токен не прошёл проверку (подпись, issuer, формат, sub).
	ErrTokenInvalid = errors.New("невалидный токен")
)

// Claims: claims access token Keycloak, используемые сервисом.
// Роли из токена не читаются: роль и статус берутся из Directory.
type Claims struct {
	jwt.RegisteredClaims
	// Email: email из токена (только для логов).
	Email string `json:"email,omitempty"`
	// PreferredUsername: preferred_username из токена.
	PreferredUsername string `json:"preferred_username,omitempty"`
}

// TokenVerifier проверяет access token Keycloak (RS256) по JWKS.
type TokenVerifier struct {
	jwks   keyfunc.Keyfunc
	issuer string
	leeway time.Duration
	logger *slog.Logger
}

// TokenVerifierConfig: параметры TokenVerifier.
type TokenVerifierConfig struct {
	// JWKSURL: URL JWKS endpoint Keycloak.
	JWKSURL string
	// Issuer: ожидаемый issuer.
	Issuer string
	// HTTPClient: клиент для загрузки JWKS.
	HTTPClient *http.Client
	// RefreshInterval: интервал фонового обновления JWKS.
	RefreshInterval time.Duration
	// Leeway: допустимое отклонение часов.
	Leeway time.Duration
}

// NewTokenVerifier создаёт TokenVerifier с JWKS storage и фоновым обновлением.
// ctx ограничивает время жизни фонового обновления.
func NewTokenVerifier(ctx context.Context, cfg TokenVerifierConfig, logger *slog.Logger) (*TokenVerifier, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	// NoErrorReturnFirstHTTPReq: стартуем даже если Keycloak ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		Ctx:                       ctx,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           cfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", cfg.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Ctx:     ctx,
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewTokenVerifierWithKeyfunc(k, cfg.Issuer, cfg.Leeway, logger), nil
}

// NewTokenVerifierWithKeyfunc создаёт TokenVerifier с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewTokenVerifierWithKeyfunc(kf keyfunc.Keyfunc, issuer string, leeway time.Duration, logger *slog.Logger) *TokenVerifier {
	return &TokenVerifier{
		jwks:   kf,
		issuer: issuer,
		leeway: leeway,
		logger: logger.With(slog.String("component", "token_verifier")),
	}
}

// Verify проверяет подпись, issuer и срок действия токена и возвращает claims.
//
// Ошибки: ErrTokenExpired (claims заполнены, подпись верна) или ErrTokenInvalid.
func (v *TokenVerifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: пустой токен", ErrTokenInvalid)
	}

	claims := &Claims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	// jwt/v5 проверяет claims только после успешной проверки подписи
	token, err := jwt.ParseWithClaims(raw, claims, v.jwks.KeyfuncCtx(ctx), parserOpts...)
	if err != nil {
		if onlyExpired(err) && claims.Subject != "" {
			return claims, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		v.logger.Debug("JWT валидация не пройдена", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: отсутствует sub", ErrTokenInvalid)
	}

	return claims, nil
}

// onlyExpired: единственная причина отказа: истёкший срок действия.
func onlyExpired(err error) bool {
	if !errors.Is(err, jwt.ErrTokenExpired) {
		return false
	}
	for _, other := range []error{
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrTokenUnverifiable,
		jwt.ErrTokenMalformed,
		jwt.ErrTokenInvalidIssuer,
		jwt.ErrTokenNotValidYet,
		jwt.ErrTokenUsedBeforeIssued,
		jwt.ErrTokenRequiredClaimMissing,
	} {
		if errors.Is(err, other) {
			return false
		}
	}
	return true
}

// HTTPClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом.
// Пустой caCertPath: клиент с системным пулом доверия.
func HTTPClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	if caCertPath == "" {
		return &http.Client{Timeout: timeout}, nil
	}

	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    caCertPool,
				MinVersion: tls.VersionTLS12,
			},
		},
	}, nil
}
