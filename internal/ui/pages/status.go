package pages

import (
	"context"

	"github.com/a-h/templ"

	"github.com/Dibo68/aanexa-admin/internal/i18n"
)

// Loading: нейтральный индикатор, пока решение о доступе не принято.
func Loading() templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.raw(`<div class="card narrow" aria-busy="true"><div class="spinner"></div><p class="muted">`)
		h.text(i18n.T(ctx, "loading.body"))
		h.raw(`</p></div>`)
	})
}

// AccessDenied: «недостаточно прав» со ссылкой на доступную страницу.
func AccessDenied(permittedHref string) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.raw(`<div class="card narrow"><h1>`)
		h.text(i18n.T(ctx, "denied.title"))
		h.raw(`</h1><p>`)
		h.text(i18n.T(ctx, "denied.body"))
		h.raw(`</p><p><a`)
		h.href("href", permittedHref)
		h.raw(`>`)
		h.text(i18n.T(ctx, "denied.link"))
		h.raw(`</a></p></div>`)
	})
}
