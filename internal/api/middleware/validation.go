// validation.go: проверка входящих запросов Admin API по OpenAPI контракту.
// Несоответствие контракту (тип поля, enum, лишние поля, лимиты): 400
// до вызова обработчика. Пути вне контракта пропускаются без проверки.
package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	apierrors "github.com/Dibo68/aanexa-admin/internal/api/errors"
)

// RequestValidator проверяет запросы по OpenAPI контракту.
type RequestValidator struct {
	router routers.Router
	logger *slog.Logger
}

// NewRequestValidator строит маршрутизатор контракта.
// Аутентификация здесь не проверяется: это делает SessionAuth.
func NewRequestValidator(doc *openapi3.T, logger *slog.Logger) (*RequestValidator, error) {
	// Серверы контракта не ограничивают хост: сервис доступен под любым именем.
	doc.Servers = nil

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("маршрутизатор OpenAPI: %w", err)
	}
	return &RequestValidator{
		router: router,
		logger: logger.With(slog.String("component", "openapi_validator")),
	}, nil
}

// Middleware возвращает HTTP middleware проверки запросов.
func (v *RequestValidator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := v.router.FindRoute(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options: &openapi3filter.Options{
					AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				},
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				v.logger.Debug("Запрос не соответствует контракту",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				apierrors.ValidationError(w, r, validationDetail(err))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// validationDetail возвращает краткое описание нарушения контракта.
func validationDetail(err error) string {
	var reqErr *openapi3filter.RequestError
	if !errors.As(err, &reqErr) {
		return err.Error()
	}

	var schemaErr *openapi3.SchemaError
	if errors.As(reqErr.Err, &schemaErr) {
		if reqErr.Parameter != nil {
			return fmt.Sprintf("%s: %s", reqErr.Parameter.Name, schemaErr.Reason)
		}
		if field := schemaErr.JSONPointer(); len(field) > 0 {
			return fmt.Sprintf("%s: %s", strings.Join(field, "."), schemaErr.Reason)
		}
		return schemaErr.Reason
	}
	if reqErr.Parameter != nil {
		return fmt.Sprintf("%s: %s", reqErr.Parameter.Name, reqErr.Reason)
	}
	if reqErr.Reason != "" {
		return reqErr.Reason
	}
	return reqErr.Error()
}
