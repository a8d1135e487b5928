// Пакет handlers: HTTP-обработчики Admin UI.
// Обработчики получают Principal из контекста (его помещает PageAuth) и
// передают его в сервисный слой, который проверяет права заново.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	apierrors "github.com/Dibo68/aanexa-admin/internal/api/errors"
	"github.com/Dibo68/aanexa-admin/internal/auth"
	"github.com/Dibo68/aanexa-admin/internal/domain/model"
	"github.com/Dibo68/aanexa-admin/internal/repository"
	"github.com/Dibo68/aanexa-admin/internal/service"
	uimiddleware "github.com/Dibo68/aanexa-admin/internal/ui/middleware"
)

// AccountService: операции над учётными записями (реализуется *service.AdminAccountService).
type AccountService interface {
	Create(ctx context.Context, caller model.Principal, in service.NewAccount) (*model.AdminAccount, error)
	Update(ctx context.Context, caller model.Principal, id string, upd model.AccountUpdate) (*model.AdminAccount, error)
	Delete(ctx context.Context, caller model.Principal, id string) (*model.AdminAccount, error)
	Get(ctx context.Context, caller model.Principal, id string) (*model.AdminAccount, error)
	List(ctx context.Context, caller model.Principal, filter repository.AccountFilter, limit, offset int) (*service.AccountPage, error)
}

// SessionService: вход и выход (реализуется *service.SessionService).
type SessionService interface {
	SignIn(ctx context.Context, email, password string) (*auth.Session, model.Principal, error)
	SignOut(ctx context.Context, sess *auth.Session)
}

// ProfileService: самообслуживание (реализуется *service.ProfileService).
type ProfileService interface {
	UpdateOwnProfile(ctx context.Context, caller model.Principal, upd model.AccountUpdate) (*model.AdminAccount, error)
	ChangePassword(ctx context.Context, caller model.Principal, current, next string) error
}

// principal извлекает Principal, помещённый PageAuth.
// Без него страница не защищена: отправляем на вход.
func principal(w http.ResponseWriter, r *http.Request) (model.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, uimiddleware.LoginURL(r.URL.RequestURI(), ""), http.StatusFound)
	}
	return p, ok
}

// errorFlash переводит ошибку сервисного слоя в статус и локализованное сообщение.
// Ошибки 5xx логируются, их текст пользователю не показывается.
func errorFlash(r *http.Request, logger *slog.Logger, err error) (int, string) {
	status, code := apierrors.Classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Ошибка обработки запроса UI",
			slog.String("path", r.URL.Path),
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
	}
	return status, apierrors.Message(r.Context(), err, code)
}

// redirectNotice перенаправляет на path с уведомлением notice (PRG).
func redirectNotice(w http.ResponseWriter, r *http.Request, path, notice string) {
	http.Redirect(w, r, path+"?notice="+notice, http.StatusSeeOther)
}

// notices: допустимые уведомления после успешного действия.
var notices = map[string]struct{}{
	"created":          {},
	"updated":          {},
	"deleted":          {},
	"profile_saved":    {},
	"password_changed": {},
}

// noticeKey возвращает i18n-ключ уведомления из query или "".
func noticeKey(r *http.Request) string {
	n := r.URL.Query().Get("notice")
	if _, ok := notices[n]; !ok {
		return ""
	}
	return "notice." + n
}
