// language.go: обработчик переключения языка UI.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/Dibo68/aanexa-admin/internal/i18n"
	uimiddleware "github.com/Dibo68/aanexa-admin/internal/ui/middleware"
)

// HandleSetLanguage обрабатывает POST /admin/language.
// Устанавливает cookie "lang" и возвращает на страницу из поля redirect.
func HandleSetLanguage(w http.ResponseWriter, r *http.Request) {
	lang := r.FormValue("lang")
	if !i18n.Supported(lang) {
		lang = i18n.DefaultLang
	}

	http.SetCookie(w, &http.Cookie{
		Name:     i18n.LangCookieName,
		Value:    lang,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		Expires:  time.Now().Add(365 * 24 * time.Hour),
		SameSite: http.SameSiteLaxMode,
	})

	target := r.FormValue("redirect")
	if !strings.HasPrefix(target, uimiddleware.LoginPath) || strings.Contains(target, "//") {
		target = uimiddleware.SafeNext(target)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
