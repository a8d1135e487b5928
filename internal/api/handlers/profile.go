// profile.go: обработчики /api/v1/profile: самообслуживание администратора.
package handlers

import (
	"net/http"

	apierrors "github.com/Dibo68/aanexa-admin/internal/api/errors"
	"github.com/Dibo68/aanexa-admin/internal/domain/model"
)

// UpdateProfile: PATCH /api/v1/profile.
// Меняет только имя и email; роль и статус через профиль не меняются.
// Доступ: любой активный администратор.
func (h *APIHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.profile.UpdateOwnProfile(r.Context(), caller, model.AccountUpdate{
		Email:    req.Email,
		FullName: req.FullName,
	})
	if err != nil {
		apierrors.FromError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, mapAccount(account))
}

// ChangePassword: POST /api/v1/profile/password.
// Доступ: любой активный администратор.
func (h *APIHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.profile.ChangePassword(r.Context(), caller, req.CurrentPassword, req.NewPassword); err != nil {
		apierrors.FromError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
