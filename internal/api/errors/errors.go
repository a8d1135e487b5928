// Пакет errors: ответы об ошибках Admin API.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Сообщения локализуются по языку запроса (i18n ключ "error.<CODE>").
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/Dibo68/aanexa-admin/internal/auth"
	"github.com/Dibo68/aanexa-admin/internal/i18n"
	"github.com/Dibo68/aanexa-admin/internal/service"
)

// Коды ошибок, определённые в OpenAPI контракте.
const (
	CodeUnauthenticated         = "UNAUTHENTICATED"
	CodeForbidden               = "FORBIDDEN"
	CodeAccountInactive         = "ACCOUNT_INACTIVE"
	CodeLastSuperAdminProtected = "LAST_SUPER_ADMIN_PROTECTED"
	CodeSelfDeletionForbidden   = "SELF_DELETION_FORBIDDEN"
	CodeValidationError         = "VALIDATION_ERROR"
	CodeNotFound                = "NOT_FOUND"
	CodeConflict                = "CONFLICT"
	CodeUpstreamError           = "UPSTREAM_ERROR"
	CodeInternalError           = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// write записывает ошибку с локализованным сообщением для кода.
func write(w http.ResponseWriter, r *http.Request, status int, code string) {
	WriteError(w, status, code, i18n.T(r.Context(), "error."+code))
}

// --- Конструкторы для типичных ошибок ---

// Unauthenticated: 401 сессия отсутствует или недействительна.
func Unauthenticated(w http.ResponseWriter, r *http.Request) {
	write(w, r, http.StatusUnauthorized, CodeUnauthenticated)
}

// Forbidden: 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, r *http.Request) {
	write(w, r, http.StatusForbidden, CodeForbidden)
}

// NotFound: 404 ресурс не найден.
func NotFound(w http.ResponseWriter, r *http.Request) {
	write(w, r, http.StatusNotFound, CodeNotFound)
}

// ValidationError: 400 с пояснением причины.
func ValidationError(w http.ResponseWriter, r *http.Request, detail string) {
	msg := i18n.T(r.Context(), "error."+CodeValidationError)
	if detail != "" {
		msg += ": " + detail
	}
	WriteError(w, http.StatusBadRequest, CodeValidationError, msg)
}

// InternalError: 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, r *http.Request) {
	write(w, r, http.StatusInternalServerError, CodeInternalError)
}

// Classify сопоставляет ошибку сервисного слоя или Session Verifier
// с HTTP-статусом и кодом ошибки.
func Classify(err error) (status int, code string) {
	switch {
	case stderrors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, CodeValidationError
	case stderrors.Is(err, auth.ErrUnauthenticated), stderrors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, CodeUnauthenticated
	case stderrors.Is(err, auth.ErrAccountInactive):
		return http.StatusForbidden, CodeAccountInactive
	case stderrors.Is(err, service.ErrLastSuperAdminProtected):
		return http.StatusForbidden, CodeLastSuperAdminProtected
	case stderrors.Is(err, service.ErrSelfDeletion):
		return http.StatusForbidden, CodeSelfDeletionForbidden
	case stderrors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case stderrors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case stderrors.Is(err, service.ErrConflict):
		return http.StatusConflict, CodeConflict
	case stderrors.Is(err, service.ErrUpstream), stderrors.Is(err, auth.ErrUpstream):
		return http.StatusInternalServerError, CodeUpstreamError
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}

// Message возвращает локализованное сообщение для ошибки с кодом code.
// Для ошибок валидации добавляется причина.
func Message(ctx context.Context, err error, code string) string {
	msg := i18n.T(ctx, "error."+code)
	var verr *service.ValidationError
	if stderrors.As(err, &verr) {
		msg += ": " + i18n.Tf(ctx, "validation."+verr.Reason, verr.Args...)
	}
	return msg
}

// FromError переводит ошибку сервисного слоя или Session Verifier в HTTP-ответ.
// Текст ошибок внешних зависимостей и внутренних ошибок клиенту не передаётся, только в лог.
func FromError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code := Classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Ошибка обработки запроса",
			slog.String("path", r.URL.Path),
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
	}
	WriteError(w, status, code, Message(r.Context(), err, code))
}
