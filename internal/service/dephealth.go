// dephealth.go: мониторинг зависимостей через topologymetrics SDK.
//
// Две критические зависимости:
//   - admin-directory: PostgreSQL, SQL checker через существующий pgxpool (connection pool mode)
//   - keycloak-jwks: HTTP checker к JWKS endpoint realm
//
// Метрики app_dependency_* публикуются на /metrics вместе с остальными.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для Keycloak
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"     // PostgreSQL checker (pool mode)
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthConfig: параметры мониторинга зависимостей.
type DephealthConfig struct {
	// ServiceID: имя вершины графа (aanexa-admin).
	ServiceID string
	// Group: группа в метриках (AD_DEPHEALTH_GROUP).
	Group string
	// DB: *sql.DB поверх pgxpool (stdlib.OpenDBFromPool).
	DB *sql.DB
	// DatabaseURL: URL PostgreSQL для лейблов (без пароля).
	DatabaseURL string
	// JWKSURL: JWKS endpoint Keycloak.
	JWKSURL string
	// CheckInterval: интервал проверок.
	CheckInterval time.Duration
	// InsecureTLS: не проверять сертификат Keycloak (dev-среда с self-signed).
	InsecureTLS bool
	// Registerer: Prometheus registerer (nil: глобальный).
	Registerer prometheus.Registerer
}

// DephealthService: сервис мониторинга зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	kcOpts := []dephealth.DependencyOption{
		dephealth.FromURL(cfg.JWKSURL),
		dephealth.WithHTTPHealthPath(jwksHealthPath(cfg.JWKSURL)),
		dephealth.CheckInterval(cfg.CheckInterval),
		dephealth.Critical(true),
	}
	if cfg.InsecureTLS {
		kcOpts = append(kcOpts, dephealth.WithHTTPTLSSkipVerify(true))
	}

	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		// pgcheck.New + AddDependency напрямую, без contrib/sqldb
		dephealth.AddDependency("admin-directory", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.DatabaseURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		),
		dephealth.HTTP("keycloak-jwks", kcOpts...),
	}
	if cfg.Registerer != nil {
		opts = append(opts, dephealth.WithRegisterer(cfg.Registerer))
	}

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, fmt.Errorf("создание dephealth: %w", err)
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// jwksHealthPath: path JWKS URL. /health у Keycloak есть только на management-порту,
// а JWKS подтверждает доступность realm.
func jwksHealthPath(jwksURL string) string {
	if parsed, err := url.Parse(jwksURL); err == nil && parsed.Path != "" {
		return parsed.Path
	}
	return "/health"
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (Directory + Keycloak)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей (true: ok).
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}

// CheckReady сводит состояние зависимостей в статус readiness.
// Реализует handlers.ReadinessChecker.
func (ds *DephealthService) CheckReady(_ context.Context) (string, string) {
	return summarizeHealth(ds.Health())
}

// summarizeHealth: все ok: "ok", часть: "degraded", ни одной или пусто: "fail".
func summarizeHealth(health map[string]bool) (string, string) {
	if len(health) == 0 {
		return "fail", "нет результатов проверок"
	}

	var failed []string
	for name, ok := range health {
		if !ok {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)

	switch {
	case len(failed) == 0:
		return "ok", "все зависимости доступны"
	case len(failed) == len(health):
		return "fail", "недоступны: " + strings.Join(failed, ", ")
	default:
		return "degraded", "недоступны: " + strings.Join(failed, ", ")
	}
}
