// dashboard.go: главная страница Admin UI.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Dibo68/aanexa-admin/internal/domain/model"
	"github.com/Dibo68/aanexa-admin/internal/repository"
	uimiddleware "github.com/Dibo68/aanexa-admin/internal/ui/middleware"
	"github.com/Dibo68/aanexa-admin/internal/ui/pages"
)

// DashboardHandler: обработчик страницы Dashboard.
type DashboardHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewDashboardHandler создаёт новый DashboardHandler.
func NewDashboardHandler(accounts AccountService, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{
		accounts: accounts,
		logger:   logger.With(slog.String("component", "ui.dashboard")),
	}
}

// HandleDashboard обрабатывает GET /admin: сводка по учётным записям.
// Ошибка подсчёта не мешает показать страницу: счётчики остаются нулевыми.
func (h *DashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	data := pages.DashboardData{Principal: p}
	if self, err := h.accounts.Get(ctx, p, p.AccountID); err != nil {
		h.logger.Warn("Не удалось получить учётную запись",
			slog.String("account_id", p.AccountID),
			slog.String("error", err.Error()),
		)
	} else if self.LastLogin != nil {
		data.LastLogin = self.LastLogin.UTC().Format("2006-01-02 15:04 UTC")
	}

	superAdmin, active, inactive := model.RoleSuperAdmin, model.StatusActive, model.StatusInactive
	data.TotalAdmins = h.count(ctx, p, repository.AccountFilter{})
	data.ActiveSuperAdmins = h.count(ctx, p, repository.AccountFilter{Role: &superAdmin, Status: &active})
	data.InactiveAdmins = h.count(ctx, p, repository.AccountFilter{Status: &inactive})

	uimiddleware.Render(w, r, h.logger, http.StatusOK,
		pages.Page{Title: "dashboard.title", Principal: &p, Active: "dashboard", Path: r.URL.Path},
		pages.Dashboard(data))
}

// count возвращает число записей по фильтру; при ошибке: 0.
func (h *DashboardHandler) count(ctx context.Context, p model.Principal, filter repository.AccountFilter) int {
	page, err := h.accounts.List(ctx, p, filter, 1, 0)
	if err != nil {
		h.logger.Warn("Ошибка подсчёта учётных записей", slog.String("error", err.Error()))
		return 0
	}
	return page.Total
}
