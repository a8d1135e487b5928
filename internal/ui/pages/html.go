// Пакет pages: HTML-страницы Admin UI в виде templ-компонентов.
// Весь пользовательский текст экранируется через templ.EscapeString,
// строки интерфейса берутся из i18n по языку запроса.
package pages

import (
	"context"
	"io"
	"time"

	"github.com/a-h/templ"

	"github.com/Dibo68/aanexa-admin/internal/domain/model"
	"github.com/Dibo68/aanexa-admin/internal/i18n"
)

// htmlWriter накапливает первую ошибку записи.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(parts ...string) {
	for _, p := range parts {
		if h.err != nil {
			return
		}
		_, h.err = io.WriteString(h.w, p)
	}
}

// text пишет экранированный текст.
func (h *htmlWriter) text(s string) {
	h.raw(templ.EscapeString(s))
}

// attr пишет атрибут с экранированным значением.
func (h *htmlWriter) attr(name, value string) {
	h.raw(" ", name, `="`, templ.EscapeString(value), `"`)
}

// href пишет безопасный URL ссылки.
func (h *htmlWriter) href(name, url string) {
	h.attr(name, string(templ.URL(url)))
}

func (h *htmlWriter) component(ctx context.Context, c templ.Component) {
	if h.err == nil && c != nil {
		h.err = c.Render(ctx, h.w)
	}
}

// component оборачивает функцию отрисовки в templ.Component.
func component(fn func(ctx context.Context, h *htmlWriter)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		fn(ctx, h)
		return h.err
	})
}

// Flash: одноразовое сообщение над содержимым страницы (уже локализованное).
type Flash struct {
	Notice string
	Error  string
}

func (h *htmlWriter) flash(f Flash) {
	if f.Error != "" {
		h.raw(`<div class="flash error" role="alert">`)
		h.text(f.Error)
		h.raw(`</div>`)
	}
	if f.Notice != "" {
		h.raw(`<div class="flash notice" role="status">`)
		h.text(f.Notice)
		h.raw(`</div>`)
	}
}

func roleLabel(ctx context.Context, r model.Role) string {
	return i18n.T(ctx, "role."+string(r))
}

func statusLabel(ctx context.Context, s model.Status) string {
	return i18n.T(ctx, "status."+string(s))
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}
