// render.go: отрисовка страниц UI в обрамлении Layout.
package middleware

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"

	"github.com/Dibo68/aanexa-admin/internal/ui/pages"
)

// Render отрисовывает body в Layout и пишет ответ со статусом status.
// Страница рендерится в буфер, чтобы ошибка отрисовки не оставила половину HTML.
func Render(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, page pages.Page, body templ.Component) {
	var buf bytes.Buffer
	if err := pages.Layout(page, body).Render(r.Context(), &buf); err != nil {
		logger.Error("Ошибка рендеринга страницы",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
