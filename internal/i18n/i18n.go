// Пакет i18n: локализация сообщений Admin API и Admin UI.
// Сообщения об ошибках API и строки страниц берутся из одного каталога,
// поэтому код ошибки и её текст не расходятся между интерфейсами.
// Поддерживаемые языки: English (en), Русский (ru).
package i18n

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/text/language"
)

// DefaultLang: язык по умолчанию и язык fallback.
const DefaultLang = "en"

// Languages: коды поддерживаемых языков в порядке приоритета matcher.
var Languages = []string{"en", "ru"}

var matcher = language.NewMatcher([]language.Tag{
	language.English,
	language.Russian,
})

type contextKey struct{}

// Bundle: каталоги переводов: lang → key → шаблон.
type Bundle struct {
	mu       sync.RWMutex
	catalogs map[string]map[string]string
	logger   *slog.Logger
}

// NewBundle создаёт пустой Bundle.
func NewBundle(logger *slog.Logger) *Bundle {
	return &Bundle{
		catalogs: make(map[string]map[string]string),
		logger:   logger,
	}
}

// LoadMessages загружает плоский JSON-каталог {"key": "text"} для языка.
func (b *Bundle) LoadMessages(lang string, data []byte) error {
	var messages map[string]string
	if err := json.Unmarshal(data, &messages); err != nil {
		return fmt.Errorf("i18n: ошибка парсинга каталога %s: %w", lang, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.catalogs[lang] = messages

	if b.logger != nil {
		b.logger.Debug("i18n каталог загружен",
			slog.String("lang", lang),
			slog.Int("keys", len(messages)),
		)
	}
	return nil
}

// Lookup возвращает перевод и признак его наличия (с fallback на en).
func (b *Bundle) Lookup(lang, key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if msg, ok := b.catalogs[lang][key]; ok {
		return msg, true
	}
	if lang != DefaultLang {
		if msg, ok := b.catalogs[DefaultLang][key]; ok {
			return msg, true
		}
	}
	return "", false
}

// Translate возвращает перевод по ключу. Отсутствующий ключ возвращается как есть.
func (b *Bundle) Translate(lang, key string) string {
	if msg, ok := b.Lookup(lang, key); ok {
		return msg
	}
	return key
}

// Translatef возвращает перевод с подстановкой аргументов.
func (b *Bundle) Translatef(lang, key string, args ...any) string {
	template := b.Translate(lang, key)
	if len(args) == 0 {
		return template
	}
	return formatFunc(template, args...)
}

// MissingKeys возвращает ключи каталога en, отсутствующие в каталоге lang.
func (b *Bundle) MissingKeys(lang string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var missing []string
	for key := range b.catalogs[DefaultLang] {
		if _, ok := b.catalogs[lang][key]; !ok {
			missing = append(missing, key)
		}
	}
	slices.Sort(missing)
	return missing
}

// --- Глобальный Bundle ---

var (
	globalBundle *Bundle
	globalOnce   sync.Once
)

// Init инициализирует глобальный Bundle. Вызывается один раз при старте.
func Init(logger *slog.Logger) *Bundle {
	globalOnce.Do(func() {
		globalBundle = NewBundle(logger)
	})
	return globalBundle
}

// GetBundle возвращает глобальный Bundle (nil если не инициализирован).
func GetBundle() *Bundle {
	return globalBundle
}

// WithLang помещает язык в контекст.
func WithLang(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, contextKey{}, lang)
}

// LangFromContext извлекает язык из контекста. Default: "en".
func LangFromContext(ctx context.Context) string {
	if lang, ok := ctx.Value(contextKey{}).(string); ok && lang != "" {
		return lang
	}
	return DefaultLang
}

// T возвращает перевод по ключу на языке из контекста.
func T(ctx context.Context, key string) string {
	if globalBundle == nil {
		return key
	}
	return globalBundle.Translate(LangFromContext(ctx), key)
}

// Tf: T с подстановкой аргументов.
func Tf(ctx context.Context, key string, args ...any) string {
	if globalBundle == nil {
		if len(args) == 0 {
			return key
		}
		return formatFunc(key, args...)
	}
	return globalBundle.Translatef(LangFromContext(ctx), key, args...)
}

// Формат-строки приходят из каталогов во время выполнения, go vet их не проверит.
//
//nolint:govet // обход go vet printf-анализатора
var formatFunc = fmt.Sprintf

// Supported сообщает, поддерживается ли код языка.
func Supported(lang string) bool {
	return slices.Contains(Languages, lang)
}

// MatchLanguage выбирает язык по заголовку Accept-Language.
func MatchLanguage(acceptLanguage string) string {
	_, idx := language.MatchStrings(matcher, acceptLanguage)
	if idx >= 0 && idx < len(Languages) {
		return Languages[idx]
	}
	return DefaultLang
}
