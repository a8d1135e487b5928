// Пакет middleware: HTTP middleware для Admin UI.
// auth.go: авторизация страниц через gate.Gate.
//
// Сессия проверяется тем же SessionVerifier, что и в Admin API (подпись,
// refresh, запись Directory). Результат подаётся событиями в автомат gate,
// который выбирает: показать страницу, отправить на вход или показать
// «недостаточно прав». Действия на страницах проверяются сервисным слоем заново.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/Dibo68/aanexa-admin/internal/auth"
	"github.com/Dibo68/aanexa-admin/internal/domain/rbac"
	"github.com/Dibo68/aanexa-admin/internal/ui/gate"
	"github.com/Dibo68/aanexa-admin/internal/ui/pages"
)

const (
	// LoginPath: страница входа.
	LoginPath = "/admin/login"
	// HomePath: страница, доступная любому активному администратору.
	HomePath = "/admin"
)

// PageAuth: авторизация страниц UI.
type PageAuth struct {
	verifier *auth.SessionVerifier
	logger   *slog.Logger
}

// NewPageAuth создаёт PageAuth.
func NewPageAuth(verifier *auth.SessionVerifier, logger *slog.Logger) *PageAuth {
	return &PageAuth{
		verifier: verifier,
		logger:   logger.With(slog.String("component", "ui_auth_middleware")),
	}
}

// Require возвращает middleware страницы с требованием req.
// При RenderContent Principal помещается в контекст (auth.PrincipalFromContext).
func (pa *PageAuth) Require(req rbac.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g := gate.New(req, func(from, to gate.State) {
				pa.logger.Debug("Переход gate",
					slog.String("path", r.URL.Path),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			})
			sessions := pa.verifier.Sessions()

			creds, err := pa.verifier.Extract(r)
			if err != nil {
				sessions.ClearSessionCookie(w)
			}
			g.Handle(gate.SessionChanged{Present: err == nil && creds.Present()})

			if g.State() == gate.AwaitingProfile {
				res, err := pa.verifier.Resolve(r.Context(), creds)
				if res != nil && res.Refreshed != nil {
					if setErr := sessions.SetSessionCookie(w, res.Refreshed); setErr != nil {
						pa.logger.Error("Не удалось обновить session cookie", slog.String("error", setErr.Error()))
					}
				}
				if err != nil {
					if !errors.Is(err, auth.ErrUpstream) {
						sessions.ClearSessionCookie(w)
					}
					pa.logger.Info("Профиль сессии не получен",
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)
					g.Handle(gate.ProfileFailed{Err: err})
				} else {
					g.Handle(gate.ProfileResolved{Principal: res.Principal})
				}
			}

			switch g.Outcome() {
			case gate.RenderContent:
				ctx := auth.WithPrincipal(r.Context(), *g.Principal())
				next.ServeHTTP(w, r.WithContext(ctx))

			case gate.RenderAccessDenied:
				Render(w, r, pa.logger, http.StatusForbidden,
					pages.Page{Title: "denied.title", Principal: g.Principal(), Path: r.URL.Path},
					pages.AccessDenied(HomePath))

			case gate.RedirectSignIn:
				reason := ""
				if g.State() == gate.InactiveAccount {
					// Отключённая учётная запись не должна сохранять сессию
					sessions.ClearSessionCookie(w)
					reason = "inactive"
				}
				http.Redirect(w, r, LoginURL(r.URL.RequestURI(), reason), http.StatusFound)

			default:
				w.Header().Set("Refresh", "1")
				Render(w, r, pa.logger, http.StatusOK,
					pages.Page{Title: "loading.title", Path: r.URL.Path},
					pages.Loading())
			}
		})
	}
}

// LoginURL строит адрес страницы входа с путём возврата.
func LoginURL(next, reason string) string {
	q := url.Values{}
	if next = SafeNext(next); next != HomePath {
		q.Set("next", next)
	}
	if reason != "" {
		q.Set("reason", reason)
	}
	if len(q) == 0 {
		return LoginPath
	}
	return LoginPath + "?" + q.Encode()
}

// SafeNext допускает только локальные пути внутри /admin (без схемы и хоста).
func SafeNext(next string) string {
	if next == "" || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return HomePath
	}
	if next != HomePath && !strings.HasPrefix(next, HomePath+"/") && !strings.HasPrefix(next, HomePath+"?") {
		return HomePath
	}
	if strings.HasPrefix(next, LoginPath) {
		return HomePath
	}
	return next
}
