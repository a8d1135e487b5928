// admins.go: управление учётными записями в Admin UI (super_admin).
package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Dibo68/aanexa-admin/internal/domain/model"
	"github.com/Dibo68/aanexa-admin/internal/i18n"
	"github.com/Dibo68/aanexa-admin/internal/repository"
	"github.com/Dibo68/aanexa-admin/internal/service"
	uimiddleware "github.com/Dibo68/aanexa-admin/internal/ui/middleware"
	"github.com/Dibo68/aanexa-admin/internal/ui/pages"
)

const (
	adminsPath = "/admin/admins"
	// adminsPageSize: строк на странице списка.
	adminsPageSize = 50
)

// AdminsHandler: обработчик страницы учётных записей.
type AdminsHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewAdminsHandler создаёт AdminsHandler.
func NewAdminsHandler(accounts AccountService, logger *slog.Logger) *AdminsHandler {
	return &AdminsHandler{
		accounts: accounts,
		logger:   logger.With(slog.String("component", "ui.admins")),
	}
}

// HandleList обрабатывает GET /admin/admins.
func (h *AdminsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var flash pages.Flash
	if key := noticeKey(r); key != "" {
		flash.Notice = i18n.T(r.Context(), key)
	}
	h.renderList(w, r, p, http.StatusOK, flash)
}

// HandleCreate обрабатывает POST /admin/admins.
func (h *AdminsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	role, err := model.ParseRole(r.PostFormValue("role"))
	if err != nil {
		h.renderList(w, r, p, http.StatusBadRequest, pages.Flash{
			Error: i18n.Tf(r.Context(), "validation.role_invalid", r.PostFormValue("role")),
		})
		return
	}

	_, err = h.accounts.Create(r.Context(), p, service.NewAccount{
		Email:    r.PostFormValue("email"),
		FullName: r.PostFormValue("full_name"),
		Role:     role,
		Password: r.PostFormValue("password"),
	})
	if err != nil {
		h.fail(w, r, p, err)
		return
	}
	redirectNotice(w, r, adminsPath, "created")
}

// HandleUpdate обрабатывает POST /admin/admins/{id}.
// Изменяются только переданные непустые поля формы.
func (h *AdminsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, p, err)
		return
	}

	var upd model.AccountUpdate
	if v := r.PostFormValue("role"); v != "" {
		role, err := model.ParseRole(v)
		if err != nil {
			h.renderList(w, r, p, http.StatusBadRequest, pages.Flash{
				Error: i18n.Tf(r.Context(), "validation.role_invalid", v),
			})
			return
		}
		upd.Role = &role
	}
	if v := r.PostFormValue("status"); v != "" {
		status, err := model.ParseStatus(v)
		if err != nil {
			h.renderList(w, r, p, http.StatusBadRequest, pages.Flash{
				Error: i18n.Tf(r.Context(), "validation.status_invalid", v),
			})
			return
		}
		upd.Status = &status
	}
	if v := r.PostFormValue("full_name"); v != "" {
		upd.FullName = &v
	}
	if v := r.PostFormValue("email"); v != "" {
		upd.Email = &v
	}

	if _, err := h.accounts.Update(r.Context(), p, id, upd); err != nil {
		h.fail(w, r, p, err)
		return
	}
	redirectNotice(w, r, adminsPath, "updated")
}

// HandleDelete обрабатывает POST /admin/admins/{id}/delete.
func (h *AdminsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, p, err)
		return
	}
	if _, err := h.accounts.Delete(r.Context(), p, id); err != nil {
		h.fail(w, r, p, err)
		return
	}
	redirectNotice(w, r, adminsPath, "deleted")
}

// pathID возвращает {id} из пути в каноническом виде UUID.
func pathID(r *http.Request) (string, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return "", service.ErrNotFound
	}
	return id.String(), nil
}

// fail показывает список с сообщением об ошибке действия.
func (h *AdminsHandler) fail(w http.ResponseWriter, r *http.Request, p model.Principal, err error) {
	status, msg := errorFlash(r, h.logger, err)
	h.renderList(w, r, p, status, pages.Flash{Error: msg})
}

func (h *AdminsHandler) renderList(w http.ResponseWriter, r *http.Request, p model.Principal, status int, flash pages.Flash) {
	q := r.URL.Query()
	search := strings.TrimSpace(q.Get("search"))
	offset, err := strconv.Atoi(q.Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}

	data := pages.AdminsData{
		Principal: p,
		Limit:     adminsPageSize,
		Offset:    offset,
		Search:    search,
		Flash:     flash,
	}
	page, err := h.accounts.List(r.Context(), p, repository.AccountFilter{Search: search}, adminsPageSize, offset)
	if err != nil {
		listStatus, msg := errorFlash(r, h.logger, err)
		if data.Flash.Error == "" {
			data.Flash.Error = msg
		}
		if status < listStatus {
			status = listStatus
		}
	} else {
		data.Items = page.Items
		data.Total = page.Total
	}

	uimiddleware.Render(w, r, h.logger, status,
		pages.Page{Title: "admins.title", Principal: &p, Active: "admins", Path: r.URL.Path},
		pages.Admins(data))
}
