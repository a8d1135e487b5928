// auth.go: обработчики /api/v1/auth: вход, выход, текущий администратор.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/Dibo68/aanexa-admin/internal/api/errors"
)

// Login: POST /api/v1/auth/login.
// Проверяет пароль в Keycloak, находит учётную запись в Directory и
// устанавливает зашифрованную session cookie.
// Доступ: публичный.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, p, err := h.sessions.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		apierrors.FromError(w, r, h.logger, err)
		return
	}

	if err := h.cookies.SetSessionCookie(w, sess); err != nil {
		h.logger.Error("Не удалось установить session cookie", slog.String("error", err.Error()))
		h.sessions.SignOut(r.Context(), sess)
		apierrors.InternalError(w, r)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponseDTO{
		Principal: mapPrincipal(p),
		ExpiresAt: time.Unix(sess.ExpiresAt, 0).UTC(),
	})
}

// Logout: POST /api/v1/auth/logout.
// Завершает сессию Keycloak (best effort) и удаляет cookie. Всегда 204.
// Доступ: публичный.
func (h *APIHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, err := h.cookies.GetSessionFromRequest(r)
	if err != nil {
		h.logger.Debug("Logout с повреждённой cookie", slog.String("error", err.Error()))
	}
	h.sessions.SignOut(r.Context(), sess)
	h.cookies.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// GetMe: GET /api/v1/auth/me.
// Возвращает Principal, построенный по текущей записи Directory.
// Доступ: любой активный администратор.
func (h *APIHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, mapPrincipal(p))
}
