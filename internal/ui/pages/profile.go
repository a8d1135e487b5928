package pages

import (
	"context"

	"github.com/a-h/templ"

	"github.com/Dibo68/aanexa-admin/internal/domain/model"
	"github.com/Dibo68/aanexa-admin/internal/i18n"
)

// ProfileData: данные страницы профиля.
type ProfileData struct {
	Account *model.AdminAccount
	Flash   Flash
}

// Profile: изменение имени, email и пароля текущего администратора.
func Profile(data ProfileData) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		a := data.Account
		h.flash(data.Flash)

		h.raw(`<div class="card"><h1>`)
		h.text(i18n.T(ctx, "profile.title"))
		h.raw(`</h1><p class="muted"><span`)
		h.attr("class", "badge "+string(a.Role))
		h.raw(`>`)
		h.text(roleLabel(ctx, a.Role))
		h.raw(`</span></p><form class="stack" method="post" action="/admin/profile"><label for="full_name">`)
		h.text(i18n.T(ctx, "admins.full_name"))
		h.raw(`</label><input id="full_name" name="full_name" type="text" required`)
		h.attr("value", a.FullName)
		h.raw(`><label for="email">`)
		h.text(i18n.T(ctx, "admins.email"))
		h.raw(`</label><input id="email" name="email" type="email" required`)
		h.attr("value", a.Email)
		h.raw(`><button type="submit">`)
		h.text(i18n.T(ctx, "profile.save"))
		h.raw(`</button></form></div>`)

		h.raw(`<div class="card"><h2>`)
		h.text(i18n.T(ctx, "profile.password_title"))
		h.raw(`</h2><form class="stack" method="post" action="/admin/profile/password"><label for="current_password">`)
		h.text(i18n.T(ctx, "profile.current_password"))
		h.raw(`</label><input id="current_password" name="current_password" type="password" autocomplete="current-password" required><label for="new_password">`)
		h.text(i18n.T(ctx, "profile.new_password"))
		h.raw(`</label><input id="new_password" name="new_password" type="password" autocomplete="new-password" required><button type="submit">`)
		h.text(i18n.T(ctx, "profile.change_password"))
		h.raw(`</button></form></div>`)
	})
}
