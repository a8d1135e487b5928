// metrics.go: Prometheus HTTP метрики aanexa-admin.
// Регистрирует метрики: ad_http_requests_total, ad_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal: общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ad_http_requests_total",
			Help: "Общее количество HTTP-запросов к aanexa-admin",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration: гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ad_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к aanexa-admin в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newStatusWriter(w)
			next.ServeHTTP(wrapped, r)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, strconv.Itoa(wrapped.statusCode)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(time.Since(start).Seconds())
		})
	}
}

// staticPaths: пути без параметров, попадающие в метки как есть.
var staticPaths = map[string]struct{}{
	"/health/live":             {},
	"/health/ready":            {},
	"/metrics":                 {},
	"/api/v1/auth/login":       {},
	"/api/v1/auth/logout":      {},
	"/api/v1/auth/me":          {},
	"/api/v1/admins":           {},
	"/api/v1/profile":          {},
	"/api/v1/profile/password": {},
	"/admin":                   {},
	"/admin/login":             {},
	"/admin/logout":            {},
	"/admin/admins":            {},
	"/admin/profile":           {},
	"/admin/language":          {},
}

// normalizePath сводит путь к шаблону маршрута, чтобы ограничить кардинальность.
// /api/v1/admins/6f1c0b6e-... → /api/v1/admins/{id}; неизвестные пути → "other".
func normalizePath(path string) string {
	if _, ok := staticPaths[path]; ok {
		return path
	}

	const adminsPrefix = "/api/v1/admins/"
	if id, ok := strings.CutPrefix(path, adminsPrefix); ok && id != "" && !strings.Contains(id, "/") {
		return adminsPrefix + "{id}"
	}
	if strings.HasPrefix(path, "/static/") {
		return "/static/*"
	}
	return "other"
}
