// admins.go: обработчики /api/v1/admins: учётные записи администраторов.
// Требование к роли проверяет SessionAuth на маршруте; сервисный слой
// проверяет его повторно по переданному Principal.
package handlers

import (
	"net/http"

	apierrors "github.com/Dibo68/aanexa-admin/internal/api/errors"
	"github.com/Dibo68/aanexa-admin/internal/domain/model"
	"github.com/Dibo68/aanexa-admin/internal/i18n"
	"github.com/Dibo68/aanexa-admin/internal/repository"
	"github.com/Dibo68/aanexa-admin/internal/service"
)

// ListAdmins: GET /api/v1/admins.
// Фильтры: role, status, search. Доступ: любой активный администратор.
func (h *APIHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}

	limitParam, err := queryInt(r, "limit")
	if err != nil {
		apierrors.ValidationError(w, r, i18n.T(r.Context(), "validation.pagination_invalid"))
		return
	}
	offsetParam, err := queryInt(r, "offset")
	if err != nil {
		apierrors.ValidationError(w, r, i18n.T(r.Context(), "validation.pagination_invalid"))
		return
	}
	limit, offset := paginationDefaults(limitParam, offsetParam)

	filter, ok := listFilter(w, r)
	if !ok {
		return
	}

	page, err := h.accounts.List(r.Context(), caller, filter, limit, offset)
	if err != nil {
		apierrors.FromError(w, r, h.logger, err)
		return
	}

	items := make([]AdminAccountDTO, len(page.Items))
	for i := range page.Items {
		items[i] = mapAccount(page.Items[i])
	}

	writeJSON(w, http.StatusOK, AdminAccountListDTO{
		Items:   items,
		Total:   page.Total,
		Limit:   page.Limit,
		Offset:  page.Offset,
		HasMore: page.Offset+len(items) < page.Total,
	})
}

// listFilter разбирает фильтры списка из query.
func listFilter(w http.ResponseWriter, r *http.Request) (repository.AccountFilter, bool) {
	q := r.URL.Query()
	filter := repository.AccountFilter{Search: q.Get("search")}

	if raw := q.Get("role"); raw != "" {
		role, err := model.ParseRole(raw)
		if err != nil {
			apierrors.ValidationError(w, r, i18n.Tf(r.Context(), "validation.role_invalid", raw))
			return filter, false
		}
		filter.Role = &role
	}
	if raw := q.Get("status"); raw != "" {
		status, err := model.ParseStatus(raw)
		if err != nil {
			apierrors.ValidationError(w, r, i18n.Tf(r.Context(), "validation.status_invalid", raw))
			return filter, false
		}
		filter.Status = &status
	}
	return filter, true
}

// GetAdmin: GET /api/v1/admins/{id}.
// Доступ: любой активный администратор.
func (h *APIHandler) GetAdmin(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	account, err := h.accounts.Get(r.Context(), caller, id)
	if err != nil {
		apierrors.FromError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, mapAccount(account))
}

// CreateAdmin: POST /api/v1/admins.
// Создаёт identity в Keycloak и запись в Directory.
// Доступ: super_admin.
func (h *APIHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}

	var req createAdminRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.accounts.Create(r.Context(), caller, service.NewAccount{
		Email:    req.Email,
		FullName: req.FullName,
		Role:     model.Role(req.Role),
		Password: req.Password,
	})
	if err != nil {
		apierrors.FromError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Location", "/api/v1/admins/"+account.ID)
	writeJSON(w, http.StatusCreated, mapAccount(account))
}

// UpdateAdmin: PATCH /api/v1/admins/{id}.
// Изменение роли или статуса проходит через защиту последнего супер-администратора.
// Доступ: super_admin.
func (h *APIHandler) UpdateAdmin(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	var req updateAdminRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	upd := model.AccountUpdate{Email: req.Email, FullName: req.FullName}
	if req.Role != nil {
		role, err := model.ParseRole(*req.Role)
		if err != nil {
			apierrors.ValidationError(w, r, i18n.Tf(r.Context(), "validation.role_invalid", *req.Role))
			return
		}
		upd.Role = &role
	}
	if req.Status != nil {
		status, err := model.ParseStatus(*req.Status)
		if err != nil {
			apierrors.ValidationError(w, r, i18n.Tf(r.Context(), "validation.status_invalid", *req.Status))
			return
		}
		upd.Status = &status
	}

	account, err := h.accounts.Update(r.Context(), caller, id, upd)
	if err != nil {
		apierrors.FromError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, mapAccount(account))
}

// DeleteAdmin: DELETE /api/v1/admins/{id}.
// Удаляет запись Directory и identity Keycloak. Возвращает удалённую запись.
// Доступ: super_admin, кроме собственной учётной записи.
func (h *APIHandler) DeleteAdmin(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	account, err := h.accounts.Delete(r.Context(), caller, id)
	if err != nil {
		apierrors.FromError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, mapAccount(account))
}
