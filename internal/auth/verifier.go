package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Dibo68/aanexa-admin/internal/domain/model"
	"github.com/Dibo68/aanexa-admin/internal/domain/rbac"
	"github.com/Dibo68/aanexa-admin/internal/keycloak"
	"github.com/Dibo68/aanexa-admin/internal/repository"
)

// Отказы Session Verifier.
var (
	// ErrUnauthenticated: нет учётных данных, токен невалиден или refresh не удался.
	ErrUnauthenticated = errors.New("требуется аутентификация")
	// ErrForbidden: субъект аутентифицирован, но доступ запрещён.
	ErrForbidden = errors.New("доступ запрещён")
	// ErrUnknownAccount: для sub нет учётной записи в Directory.
	ErrUnknownAccount = fmt.Errorf("%w: учётная запись не найдена", ErrForbidden)
	// ErrAccountInactive: учётная запись отключена.
	ErrAccountInactive = fmt.Errorf("%w: учётная запись отключена", ErrForbidden)
	// ErrInsufficientRole: роль не удовлетворяет требованию.
	ErrInsufficientRole = fmt.Errorf("%w: недостаточно прав", ErrForbidden)
	// ErrUpstream: Directory или Credential Store недоступны.
	ErrUpstream = errors.New("ошибка внешней зависимости")
)

// tokenVerifier: проверка access token (реализуется *TokenVerifier).
type tokenVerifier interface {
	Verify(ctx context.Context, raw string) (*Claims, error)
}

// AccountResolver: чтение учётной записи из Directory.
// Реализуется repository.AdminAccountRepository.
type AccountResolver interface {
	GetByID(ctx context.Context, id string) (*model.AdminAccount, error)
}

// TokenRefresher: refresh grant Credential Store.
// Реализуется *keycloak.OIDC.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*keycloak.TokenSet, error)
}

// Credentials: учётные данные, извлечённые из запроса.
// Bearer имеет приоритет над cookie.
type Credentials struct {
	// Bearer: access token из заголовка Authorization.
	Bearer string
	// Session: сессия из cookie (nil, если cookie нет или используется Bearer).
	Session *Session
}

// Present: есть ли в запросе какие-либо учётные данные.
func (c Credentials) Present() bool {
	return c.Bearer != "" || c.Session != nil
}

func (c Credentials) accessToken() string {
	if c.Bearer != "" {
		return c.Bearer
	}
	if c.Session != nil {
		return c.Session.AccessToken
	}
	return ""
}

// Resolution: результат проверки сессии.
type Resolution struct {
	// Principal: субъект, построенный по текущей записи Directory.
	Principal model.Principal
	// Refreshed: новая сессия после прозрачного refresh (nil, если refresh не было).
	// Cookie нужно обновить даже при последующем отказе в доступе.
	Refreshed *Session
}

// SessionVerifier: серверная проверка сессии на каждый привилегированный запрос.
// Не хранит изменяемого состояния.
type SessionVerifier struct {
	tokens    tokenVerifier
	accounts  AccountResolver
	refresher TokenRefresher
	sessions  *SessionManager
	logger    *slog.Logger
}

// NewSessionVerifier создаёт SessionVerifier.
// refresher может быть nil (refresh отключён).
func NewSessionVerifier(
	tokens *TokenVerifier,
	accounts AccountResolver,
	refresher TokenRefresher,
	sessions *SessionManager,
	logger *slog.Logger,
) *SessionVerifier {
	return newSessionVerifier(tokens, accounts, refresher, sessions, logger)
}

func newSessionVerifier(
	tokens tokenVerifier,
	accounts AccountResolver,
	refresher TokenRefresher,
	sessions *SessionManager,
	logger *slog.Logger,
) *SessionVerifier {
	return &SessionVerifier{
		tokens:    tokens,
		accounts:  accounts,
		refresher: refresher,
		sessions:  sessions,
		logger:    logger.With(slog.String("component", "session_verifier")),
	}
}

// Sessions возвращает менеджер session cookie.
func (v *SessionVerifier) Sessions() *SessionManager {
	return v.sessions
}

// Extract извлекает учётные данные: сначала Bearer, затем session cookie.
// Неверный формат Authorization или повреждённый cookie: ErrUnauthenticated.
// Отсутствие учётных данных ошибкой не считается (Credentials.Present() == false).
func (v *SessionVerifier) Extract(r *http.Request) (Credentials, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		scheme, token, ok := strings.Cut(authHeader, " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			authRejectionsTotal.WithLabelValues("malformed_header").Inc()
			return Credentials{}, fmt.Errorf("%w: ожидается Authorization: Bearer <token>", ErrUnauthenticated)
		}
		return Credentials{Bearer: token}, nil
	}

	sess, err := v.sessions.GetSessionFromRequest(r)
	if err != nil {
		authRejectionsTotal.WithLabelValues("corrupt_cookie").Inc()
		v.logger.Debug("Session cookie не расшифровывается", slog.String("error", err.Error()))
		return Credentials{}, fmt.Errorf("%w: повреждённый session cookie", ErrUnauthenticated)
	}
	return Credentials{Session: sess}, nil
}

// Resolve проверяет токен (с прозрачным refresh при истечении) и строит Principal
// по текущей записи Directory. Требование к роли не применяется: отключённая
// учётная запись возвращается с StatusInactive без ошибки.
//
// Ошибки: ErrUnauthenticated, ErrUnknownAccount, ErrUpstream.
// Resolution с Refreshed может вернуться вместе с ошибкой.
func (v *SessionVerifier) Resolve(ctx context.Context, creds Credentials) (*Resolution, error) {
	if !creds.Present() {
		authRejectionsTotal.WithLabelValues("no_credentials").Inc()
		return nil, ErrUnauthenticated
	}

	res := &Resolution{}

	claims, err := v.tokens.Verify(ctx, creds.accessToken())
	if err != nil {
		if !errors.Is(err, ErrTokenExpired) || !v.canRefresh(creds) {
			authRejectionsTotal.WithLabelValues("invalid_token").Inc()
			return nil, ErrUnauthenticated
		}

		claims, res.Refreshed, err = v.refresh(ctx, creds.Session, claims.Subject)
		if err != nil {
			return nil, err
		}
	}

	account, err := v.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			authRejectionsTotal.WithLabelValues("unknown_account").Inc()
			v.logger.Warn("Валидный токен без учётной записи в Directory",
				slog.String("sub", claims.Subject),
			)
			return res, ErrUnknownAccount
		}
		v.logger.Error("Ошибка чтения Directory",
			slog.String("sub", claims.Subject),
			slog.String("error", err.Error()),
		)
		return res, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	res.Principal = account.Principal()
	return res, nil
}

// Authenticate: Resolve и проверка требования через rbac.Satisfies.
//
// Ошибки: ErrUnauthenticated, ErrUnknownAccount, ErrAccountInactive,
// ErrInsufficientRole, ErrUpstream.
func (v *SessionVerifier) Authenticate(ctx context.Context, creds Credentials, req rbac.Requirement) (*Resolution, error) {
	res, err := v.Resolve(ctx, creds)
	if err != nil {
		return res, err
	}

	switch verdict := rbac.Satisfies(res.Principal, req); verdict {
	case rbac.Granted:
		return res, nil
	case rbac.DeniedInactive:
		authRejectionsTotal.WithLabelValues(verdict.String()).Inc()
		return res, ErrAccountInactive
	default:
		authRejectionsTotal.WithLabelValues(verdict.String()).Inc()
		return res, ErrInsufficientRole
	}
}

// canRefresh: refresh возможен только для cookie-сессии с refresh token.
func (v *SessionVerifier) canRefresh(creds Credentials) bool {
	return v.refresher != nil && creds.Bearer == "" &&
		creds.Session != nil && creds.Session.RefreshToken != ""
}

// refresh выпускает новые токены и проверяет, что субъект не изменился.
func (v *SessionVerifier) refresh(ctx context.Context, sess *Session, expiredSubject string) (*Claims, *Session, error) {
	ts, err := v.refresher.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		sessionRefreshTotal.WithLabelValues("failed").Inc()
		v.logger.Info("Refresh сессии не удался",
			slog.String("sub", expiredSubject),
			slog.String("error", err.Error()),
		)
		return nil, nil, ErrUnauthenticated
	}

	claims, err := v.tokens.Verify(ctx, ts.AccessToken)
	if err != nil {
		sessionRefreshTotal.WithLabelValues("invalid_token").Inc()
		v.logger.Warn("Токен после refresh не прошёл проверку", slog.String("error", err.Error()))
		return nil, nil, ErrUnauthenticated
	}

	if claims.Subject != expiredSubject || (sess.Subject != "" && claims.Subject != sess.Subject) {
		sessionRefreshTotal.WithLabelValues("subject_mismatch").Inc()
		v.logger.Warn("Субъект изменился при refresh",
			slog.String("expected", expiredSubject),
			slog.String("got", claims.Subject),
		)
		return nil, nil, ErrUnauthenticated
	}

	sessionRefreshTotal.WithLabelValues("ok").Inc()
	return claims, NewSession(claims.Subject, ts), nil
}

// NewSession строит Session из токенов Credential Store.
func NewSession(subject string, ts *keycloak.TokenSet) *Session {
	return &Session{
		Subject:      subject,
		AccessToken:  ts.AccessToken,
		RefreshToken: ts.RefreshToken,
		ExpiresAt:    ts.Expiry.Unix(),
	}
}

// --- Context helpers ---

// contextKey: тип для ключей контекста (избегаем коллизий).
type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal помещает Principal в контекст запроса.
func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext извлекает Principal из контекста запроса.
func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey).(model.Principal)
	return p, ok
}
