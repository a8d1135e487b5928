// middleware.go: определение языка запроса.
package i18n

import (
	"net/http"
)

// LangCookieName: имя cookie с выбранным языком.
const LangCookieName = "lang"

// Middleware помещает язык запроса в контекст.
// Приоритет: параметр ?lang → cookie "lang" → Accept-Language → "en".
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithLang(r.Context(), DetectLanguage(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DetectLanguage определяет язык запроса.
func DetectLanguage(r *http.Request) string {
	if lang := r.URL.Query().Get("lang"); Supported(lang) {
		return lang
	}
	if cookie, err := r.Cookie(LangCookieName); err == nil && Supported(cookie.Value) {
		return cookie.Value
	}
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		return MatchLanguage(accept)
	}
	return DefaultLang
}
