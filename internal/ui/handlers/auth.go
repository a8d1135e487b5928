// auth.go: вход и выход Admin UI.
package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/Dibo68/aanexa-admin/internal/auth"
	"github.com/Dibo68/aanexa-admin/internal/i18n"
	uimiddleware "github.com/Dibo68/aanexa-admin/internal/ui/middleware"
	"github.com/Dibo68/aanexa-admin/internal/ui/pages"
)

// AuthHandler: обработчик страниц входа и выхода.
type AuthHandler struct {
	sessions SessionService
	cookies  *auth.SessionManager
	logger   *slog.Logger
}

// NewAuthHandler создаёт AuthHandler.
func NewAuthHandler(sessions SessionService, cookies *auth.SessionManager, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		cookies:  cookies,
		logger:   logger.With(slog.String("component", "ui.auth")),
	}
}

// HandleLoginPage обрабатывает GET /admin/login: форма входа.
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := pages.LoginData{Next: uimiddleware.SafeNext(q.Get("next"))}
	switch q.Get("reason") {
	case "inactive":
		data.Flash.Error = i18n.T(r.Context(), "login.inactive")
	case "signed_out":
		data.Flash.Notice = i18n.T(r.Context(), "login.signed_out")
	}
	h.render(w, r, http.StatusOK, data)
}

// HandleLogin обрабатывает POST /admin/login.
// Успех: session cookie и redirect на next; ошибка: форма с сообщением.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, pages.LoginData{
			Next:  uimiddleware.HomePath,
			Flash: pages.Flash{Error: i18n.T(r.Context(), "validation.malformed_body")},
		})
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	next := uimiddleware.SafeNext(r.PostFormValue("next"))

	sess, p, err := h.sessions.SignIn(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		status, msg := errorFlash(r, h.logger, err)
		h.render(w, r, status, pages.LoginData{Email: email, Next: next, Flash: pages.Flash{Error: msg}})
		return
	}

	if err := h.cookies.SetSessionCookie(w, sess); err != nil {
		h.logger.Error("Не удалось установить session cookie", slog.String("error", err.Error()))
		h.sessions.SignOut(r.Context(), sess)
		h.render(w, r, http.StatusInternalServerError, pages.LoginData{
			Email: email,
			Next:  next,
			Flash: pages.Flash{Error: i18n.T(r.Context(), "error.INTERNAL_ERROR")},
		})
		return
	}

	h.logger.Info("Вход в UI",
		slog.String("account_id", p.AccountID),
		slog.String("role", string(p.Role)),
	)
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// HandleLogout обрабатывает POST /admin/logout.
// Завершает сессию Keycloak (best effort), удаляет cookie, redirect на вход.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sess, err := h.cookies.GetSessionFromRequest(r)
	if err != nil {
		h.logger.Debug("Logout с повреждённой cookie", slog.String("error", err.Error()))
	}
	h.sessions.SignOut(r.Context(), sess)
	h.cookies.ClearSessionCookie(w)
	http.Redirect(w, r, uimiddleware.LoginPath+"?reason=signed_out", http.StatusSeeOther)
}

func (h *AuthHandler) render(w http.ResponseWriter, r *http.Request, status int, data pages.LoginData) {
	uimiddleware.Render(w, r, h.logger, status,
		pages.Page{Title: "login.title", Path: r.URL.Path},
		pages.Login(data))
}
