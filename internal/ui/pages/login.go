package pages

import (
	"context"

	"github.com/a-h/templ"

	"github.com/Dibo68/aanexa-admin/internal/i18n"
)

// LoginData: данные формы входа.
type LoginData struct {
	Email string
	// Next: путь возврата после входа.
	Next  string
	Flash Flash
}

// Login: форма входа по email и паролю.
func Login(data LoginData) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.raw(`<div class="card narrow"><h1>`)
		h.text(i18n.T(ctx, "login.title"))
		h.raw(`</h1>`)
		h.flash(data.Flash)
		h.raw(`<form class="stack" method="post" action="/admin/login"><input type="hidden" name="next"`)
		h.attr("value", data.Next)
		h.raw(`><label for="email">`)
		h.text(i18n.T(ctx, "login.email"))
		h.raw(`</label><input id="email" name="email" type="email" autocomplete="username" required autofocus`)
		h.attr("value", data.Email)
		h.raw(`><label for="password">`)
		h.text(i18n.T(ctx, "login.password"))
		h.raw(`</label><input id="password" name="password" type="password" autocomplete="current-password" required><button type="submit">`)
		h.text(i18n.T(ctx, "login.submit"))
		h.raw(`</button></form></div>`)
	})
}
