// auth.go: middleware серверной проверки сессии для Admin API.
// Каждый привилегированный запрос проходит через auth.SessionVerifier:
// проверка токена (с прозрачным refresh cookie-сессии), чтение учётной записи
// из Directory и проверка требования к роли. Principal помещается в контекст.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/Dibo68/aanexa-admin/internal/api/errors"
	"github.com/Dibo68/aanexa-admin/internal/auth"
	"github.com/Dibo68/aanexa-admin/internal/domain/rbac"
)

// SessionAuth: HTTP-обёртка над SessionVerifier.
type SessionAuth struct {
	verifier *auth.SessionVerifier
	logger   *slog.Logger
}

// NewSessionAuth создаёт SessionAuth.
func NewSessionAuth(verifier *auth.SessionVerifier, logger *slog.Logger) *SessionAuth {
	return &SessionAuth{
		verifier: verifier,
		logger:   logger.With(slog.String("component", "api_auth")),
	}
}

// Require возвращает middleware, пропускающий только запросы, чей Principal
// удовлетворяет требованию req.
//
// Cookie обновляется, если произошёл refresh, даже при последующем 403.
// При 401 cookie-сессия удаляется.
func (a *SessionAuth) Require(req rbac.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessions := a.verifier.Sessions()

			creds, err := a.verifier.Extract(r)
			if err != nil {
				if _, cookieErr := r.Cookie(auth.SessionCookieName); cookieErr == nil {
					sessions.ClearSessionCookie(w)
				}
				apierrors.FromError(w, r, a.logger, err)
				return
			}

			res, err := a.verifier.Authenticate(r.Context(), creds, req)
			if res != nil && res.Refreshed != nil {
				if setErr := sessions.SetSessionCookie(w, res.Refreshed); setErr != nil {
					a.logger.Error("Не удалось обновить session cookie", slog.String("error", setErr.Error()))
				}
			}
			if err != nil {
				if errors.Is(err, auth.ErrUnauthenticated) && creds.Session != nil {
					sessions.ClearSessionCookie(w)
				}
				a.logger.Debug("Запрос отклонён",
					slog.String("path", r.URL.Path),
					slog.String("requirement", req.String()),
					slog.String("error", err.Error()),
				)
				apierrors.FromError(w, r, a.logger, err)
				return
			}

			ctx := auth.WithPrincipal(r.Context(), res.Principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
