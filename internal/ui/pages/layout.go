package pages

import (
	"context"

	"github.com/a-h/templ"

	"github.com/Dibo68/aanexa-admin/internal/domain/model"
	"github.com/Dibo68/aanexa-admin/internal/domain/rbac"
	"github.com/Dibo68/aanexa-admin/internal/i18n"
)

// Page: общие данные обрамления страницы.
type Page struct {
	// Title: i18n-ключ заголовка.
	Title string
	// Principal: текущий администратор (nil для страниц без сессии).
	Principal *model.Principal
	// Active: раздел навигации: "dashboard", "admins", "profile".
	Active string
	// Path: путь текущей страницы для возврата после смены языка.
	Path string
}

// Layout: HTML-обрамление: заголовок, навигация, переключатель языка.
func Layout(page Page, body templ.Component) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		lang := i18n.LangFromContext(ctx)
		h.raw(`<!DOCTYPE html><html`)
		h.attr("lang", lang)
		h.raw(`><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>`)
		h.text(i18n.T(ctx, page.Title))
		h.raw(` · `)
		h.text(i18n.T(ctx, "app.title"))
		h.raw(`</title><link rel="stylesheet" href="/static/css/admin.css"></head><body>`)

		h.raw(`<header class="topbar"><span class="brand">`)
		h.text(i18n.T(ctx, "app.title"))
		h.raw(`</span>`)
		if p := page.Principal; p != nil {
			h.raw(`<nav>`)
			navLink(ctx, h, page.Active, "dashboard", "/admin", "nav.dashboard")
			if rbac.Satisfies(*p, rbac.RequireSuperAdmin) == rbac.Granted {
				navLink(ctx, h, page.Active, "admins", "/admin/admins", "nav.admins")
			}
			navLink(ctx, h, page.Active, "profile", "/admin/profile", "nav.profile")
			h.raw(`</nav><span class="who">`)
			h.text(p.FullName)
			h.raw(` · `)
			h.text(roleLabel(ctx, p.Role))
			h.raw(`</span><form class="inline" method="post" action="/admin/logout"><button class="secondary" type="submit">`)
			h.text(i18n.T(ctx, "nav.logout"))
			h.raw(`</button></form>`)
		} else {
			h.raw(`<nav></nav>`)
		}
		languageSwitch(ctx, h, page.Path, lang)
		h.raw(`</header><main>`)
		h.component(ctx, body)
		h.raw(`</main></body></html>`)
	})
}

func navLink(ctx context.Context, h *htmlWriter, active, section, url, key string) {
	h.raw(`<a`)
	h.href("href", url)
	if active == section {
		h.raw(` class="active" aria-current="page"`)
	}
	h.raw(`>`)
	h.text(i18n.T(ctx, key))
	h.raw(`</a>`)
}

func languageSwitch(ctx context.Context, h *htmlWriter, path, current string) {
	h.raw(`<form class="inline" method="post" action="/admin/language"><input type="hidden" name="redirect"`)
	h.attr("value", path)
	h.raw(`><select name="lang"`)
	h.attr("aria-label", i18n.T(ctx, "nav.language"))
	h.raw(` onchange="this.form.submit()">`)
	for _, lang := range i18n.Languages {
		h.raw(`<option`)
		h.attr("value", lang)
		if lang == current {
			h.raw(` selected`)
		}
		h.raw(`>`)
		h.text(i18n.T(ctx, "lang."+lang))
		h.raw(`</option>`)
	}
	h.raw(`</select><noscript><button type="submit">OK</button></noscript></form>`)
}
