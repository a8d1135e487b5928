package pages

import (
	"context"
	"strconv"

	"github.com/a-h/templ"

	"github.com/Dibo68/aanexa-admin/internal/domain/model"
	"github.com/Dibo68/aanexa-admin/internal/i18n"
)

// DashboardData: данные главной страницы.
type DashboardData struct {
	Principal         model.Principal
	LastLogin         string
	TotalAdmins       int
	ActiveSuperAdmins int
	InactiveAdmins    int
}

// Dashboard: главная страница: кто вошёл и сводка по учётным записям.
func Dashboard(data DashboardData) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.raw(`<div class="card"><h1>`)
		h.text(i18n.Tf(ctx, "dashboard.welcome", data.Principal.FullName))
		h.raw(`</h1><p class="muted">`)
		h.text(data.Principal.Email)
		h.raw(` · <span`)
		h.attr("class", "badge "+string(data.Principal.Role))
		h.raw(`>`)
		h.text(roleLabel(ctx, data.Principal.Role))
		h.raw(`</span></p>`)
		if data.LastLogin != "" {
			h.raw(`<p class="muted">`)
			h.text(i18n.Tf(ctx, "dashboard.last_login", data.LastLogin))
			h.raw(`</p>`)
		}
		h.raw(`</div><div class="stats">`)
		stat(ctx, h, data.TotalAdmins, "dashboard.total_admins")
		stat(ctx, h, data.ActiveSuperAdmins, "dashboard.active_super_admins")
		stat(ctx, h, data.InactiveAdmins, "dashboard.inactive_admins")
		h.raw(`</div>`)
	})
}

func stat(ctx context.Context, h *htmlWriter, value int, key string) {
	h.raw(`<div class="card stat"><div class="value">`)
	h.text(strconv.Itoa(value))
	h.raw(`</div><div class="label">`)
	h.text(i18n.T(ctx, key))
	h.raw(`</div></div>`)
}
