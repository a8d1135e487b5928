// sessions.go: вход и выход администраторов через token endpoint Keycloak.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dibo68/aanexa-admin/internal/auth"
	"github.com/Dibo68/aanexa-admin/internal/domain/model"
	"github.com/Dibo68/aanexa-admin/internal/domain/rbac"
	"github.com/Dibo68/aanexa-admin/internal/keycloak"
	"github.com/Dibo68/aanexa-admin/internal/repository"
)

// TokenIssuer: token endpoint Credential Store. Реализуется *keycloak.OIDC.
type TokenIssuer interface {
	PasswordGrant(ctx context.Context, email, password string) (*keycloak.TokenSet, error)
	Logout(ctx context.Context, refreshToken string) error
}

// TokenVerifier: проверка access token. Реализуется *auth.TokenVerifier.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*auth.Claims, error)
}

// SessionService: вход и выход администраторов.
type SessionService struct {
	dir    Directory
	issuer TokenIssuer
	tokens TokenVerifier
	now    func() time.Time
	logger *slog.Logger
}

// NewSessionService создаёт сервис сессий.
func NewSessionService(dir Directory, issuer TokenIssuer, tokens TokenVerifier, logger *slog.Logger) *SessionService {
	return &SessionService{
		dir:    dir,
		issuer: issuer,
		tokens: tokens,
		now:    time.Now,
		logger: logger.With(slog.String("component", "session_service")),
	}
}

// SignIn выполняет вход по email и паролю и возвращает новую сессию.
//
// Ошибки: ErrValidation, ErrInvalidCredentials, auth.ErrUnknownAccount,
// auth.ErrAccountInactive, ErrUpstream. При отказе после выдачи токенов
// сессия Keycloak завершается.
func (s *SessionService) SignIn(ctx context.Context, email, password string) (*auth.Session, model.Principal, error) {
	email = model.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, model.Principal{}, validationError(ReasonCredentialsRequired, "email и пароль обязательны")
	}

	ts, err := s.issuer.PasswordGrant(ctx, email, password)
	if err != nil {
		if errors.Is(err, keycloak.ErrInvalidCredentials) {
			signInTotal.WithLabelValues("invalid_credentials").Inc()
			s.logger.Info("Неудачная попытка входа", slog.String("email", email))
			return nil, model.Principal{}, ErrInvalidCredentials
		}
		signInTotal.WithLabelValues("upstream_error").Inc()
		return nil, model.Principal{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	claims, err := s.tokens.Verify(ctx, ts.AccessToken)
	if err != nil {
		signInTotal.WithLabelValues("upstream_error").Inc()
		s.logout(ctx, ts.RefreshToken)
		return nil, model.Principal{}, fmt.Errorf("%w: токен Keycloak не прошёл проверку: %w", ErrUpstream, err)
	}

	account, err := s.dir.Accounts().GetByID(ctx, claims.Subject)
	if err != nil {
		s.logout(ctx, ts.RefreshToken)
		if errors.Is(err, repository.ErrNotFound) {
			signInTotal.WithLabelValues("unknown_account").Inc()
			s.logger.Warn("Вход identity без учётной записи в Directory",
				slog.String("sub", claims.Subject),
				slog.String("email", email),
			)
			return nil, model.Principal{}, auth.ErrUnknownAccount
		}
		signInTotal.WithLabelValues("upstream_error").Inc()
		return nil, model.Principal{}, directoryError(err)
	}

	if err := authorize(account.Principal(), rbac.RequireAdmin); err != nil {
		s.logout(ctx, ts.RefreshToken)
		signInTotal.WithLabelValues("inactive").Inc()
		s.logger.Info("Вход отключённой учётной записи", slog.String("id", account.ID))
		return nil, model.Principal{}, err
	}

	if err := s.dir.Accounts().TouchLastLogin(ctx, account.ID, s.now()); err != nil {
		s.logger.Warn("Не удалось обновить last_login",
			slog.String("id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	signInTotal.WithLabelValues("ok").Inc()
	s.logger.Info("Администратор вошёл",
		slog.String("id", account.ID),
		slog.String("role", string(account.Role)),
	)
	return auth.NewSession(account.ID, ts), account.Principal(), nil
}

// SignOut завершает сессию Keycloak. Ошибки только логируются:
// cookie очищается в любом случае.
func (s *SessionService) SignOut(ctx context.Context, sess *auth.Session) {
	if sess == nil || sess.RefreshToken == "" {
		return
	}
	s.logout(ctx, sess.RefreshToken)
	s.logger.Info("Администратор вышел", slog.String("id", sess.Subject))
}

func (s *SessionService) logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	if err := s.issuer.Logout(context.WithoutCancel(ctx), refreshToken); err != nil {
		s.logger.Warn("Ошибка завершения сессии Keycloak", slog.String("error", err.Error()))
	}
}
