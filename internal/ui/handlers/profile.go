// profile.go: самообслуживание: профиль и пароль.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dibo68/aanexa-admin/internal/domain/model"
	"github.com/Dibo68/aanexa-admin/internal/i18n"
	uimiddleware "github.com/Dibo68/aanexa-admin/internal/ui/middleware"
	"github.com/Dibo68/aanexa-admin/internal/ui/pages"
)

const profilePath = "/admin/profile"

// ProfileHandler: обработчик страницы профиля.
type ProfileHandler struct {
	accounts AccountService
	profile  ProfileService
	logger   *slog.Logger
}

// NewProfileHandler создаёт ProfileHandler.
func NewProfileHandler(accounts AccountService, profile ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{
		accounts: accounts,
		profile:  profile,
		logger:   logger.With(slog.String("component", "ui.profile")),
	}
}

// HandleProfile обрабатывает GET /admin/profile.
func (h *ProfileHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var flash pages.Flash
	if key := noticeKey(r); key != "" {
		flash.Notice = i18n.T(r.Context(), key)
	}
	h.render(w, r, p, http.StatusOK, flash)
}

// HandleUpdate обрабатывает POST /admin/profile: имя и email.
// Роль и статус через эту форму не меняются.
func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var upd model.AccountUpdate
	if v := r.PostFormValue("full_name"); v != "" {
		upd.FullName = &v
	}
	if v := r.PostFormValue("email"); v != "" {
		upd.Email = &v
	}

	if _, err := h.profile.UpdateOwnProfile(r.Context(), p, upd); err != nil {
		status, msg := errorFlash(r, h.logger, err)
		h.render(w, r, p, status, pages.Flash{Error: msg})
		return
	}
	redirectNotice(w, r, profilePath, "profile_saved")
}

// HandlePassword обрабатывает POST /admin/profile/password.
func (h *ProfileHandler) HandlePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	err := h.profile.ChangePassword(r.Context(), p, r.PostFormValue("current_password"), r.PostFormValue("new_password"))
	if err != nil {
		status, msg := errorFlash(r, h.logger, err)
		h.render(w, r, p, status, pages.Flash{Error: msg})
		return
	}
	redirectNotice(w, r, profilePath, "password_changed")
}

func (h *ProfileHandler) render(w http.ResponseWriter, r *http.Request, p model.Principal, status int, flash pages.Flash) {
	account, err := h.accounts.Get(r.Context(), p, p.AccountID)
	if err != nil {
		getStatus, msg := errorFlash(r, h.logger, err)
		if flash.Error == "" {
			flash.Error = msg
		}
		if status < getStatus {
			status = getStatus
		}
		// Страница отрисовывается по данным сессии
		account = &model.AdminAccount{
			ID:       p.AccountID,
			Email:    p.Email,
			FullName: p.FullName,
			Role:     p.Role,
			Status:   p.Status,
		}
	}

	uimiddleware.Render(w, r, h.logger, status,
		pages.Page{Title: "profile.title", Principal: &p, Active: "profile", Path: r.URL.Path},
		pages.Profile(pages.ProfileData{Account: account, Flash: flash}))
}
