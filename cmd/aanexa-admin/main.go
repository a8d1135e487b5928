// Точка входа Aanexa Admin: управление учётными записями администраторов.
// Загружает конфигурацию, применяет миграции Admin Directory, подключается к
// PostgreSQL и Keycloak, создаёт первого супер-администратора, собирает
// сервисный слой, Admin API и Admin UI, запускает HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/Dibo68/aanexa-admin/internal/api/handlers"
	"github.com/Dibo68/aanexa-admin/internal/api/middleware"
	"github.com/Dibo68/aanexa-admin/internal/api/openapi"
	"github.com/Dibo68/aanexa-admin/internal/auth"
	"github.com/Dibo68/aanexa-admin/internal/config"
	"github.com/Dibo68/aanexa-admin/internal/database"
	"github.com/Dibo68/aanexa-admin/internal/i18n"
	"github.com/Dibo68/aanexa-admin/internal/keycloak"
	"github.com/Dibo68/aanexa-admin/internal/repository"
	"github.com/Dibo68/aanexa-admin/internal/server"
	"github.com/Dibo68/aanexa-admin/internal/service"
	uihandlers "github.com/Dibo68/aanexa-admin/internal/ui/handlers"
	uimiddleware "github.com/Dibo68/aanexa-admin/internal/ui/middleware"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Aanexa Admin завершился с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// 1. Конфигурация: .env (опционально) и переменные окружения
	if err := config.LoadDotEnv(getEnv("AD_ENV_FILE", ".env")); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 2. Логирование
	logger := config.SetupLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("Aanexa Admin запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Локализация
	bundle := i18n.Init(logger)
	if err := i18n.LoadFromEmbedFS(bundle, logger); err != nil {
		return err
	}

	// 4. Миграции и подключение к Admin Directory
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		return err
	}
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	// Адаптер pgxpool → *sql.DB для topologymetrics: проверка идёт через тот же пул
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Keycloak: Admin REST API, OIDC token endpoint, JWKS
	httpClient, err := auth.HTTPClientWithCA(cfg.KeycloakCACertPath, cfg.KeycloakTimeout)
	if err != nil {
		return err
	}
	kcClient := keycloak.New(
		cfg.KeycloakURL,
		cfg.KeycloakRealm,
		cfg.KeycloakClientID,
		cfg.KeycloakClientSecret,
		httpClient,
		logger,
	)
	oidc := keycloak.NewOIDC(keycloak.OIDCConfig{
		BaseURL:      cfg.KeycloakURL,
		Realm:        cfg.KeycloakRealm,
		ClientID:     cfg.KeycloakLoginClientID,
		ClientSecret: cfg.KeycloakLoginClientSecret,
		HTTPClient:   httpClient,
		CacheSize:    cfg.RefreshCacheSize,
		CacheTTL:     cfg.RefreshCacheTTL,
	}, logger)
	tokens, err := auth.NewTokenVerifier(ctx, auth.TokenVerifierConfig{
		JWKSURL:         cfg.JWTJWKSURL,
		Issuer:          cfg.JWTIssuer,
		HTTPClient:      httpClient,
		RefreshInterval: cfg.JWKSRefreshInterval,
		Leeway:          cfg.JWTLeeway,
	}, logger)
	if err != nil {
		return err
	}
	logger.Info("Keycloak подключён",
		slog.String("url", cfg.KeycloakURL),
		slog.String("realm", cfg.KeycloakRealm),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 6. Сессии
	if cfg.SessionSecret == "" {
		logger.Warn("AD_SESSION_SECRET не задан, сессии не сохраняются между рестартами")
	}
	sessions, err := auth.NewSessionManager(cfg.SessionSecret, cfg.SessionCookieSecure)
	if err != nil {
		return err
	}

	// 7. Сервисный слой
	dir := repository.NewDirectory(pool)
	accountSvc := service.NewAdminAccountService(dir, kcClient, logger)
	sessionSvc := service.NewSessionService(dir, oidc, tokens, logger)
	profileSvc := service.NewProfileService(accountSvc, oidc, kcClient, logger)
	verifier := auth.NewSessionVerifier(tokens, dir.Accounts(), oidc, sessions, logger)

	// 8. Первый супер-администратор
	if cfg.BootstrapEmail != "" {
		if err := accountSvc.Bootstrap(ctx, cfg.BootstrapEmail, cfg.BootstrapPassword, cfg.BootstrapFullName); err != nil {
			return err
		}
	}

	// 9. topologymetrics: мониторинг зависимостей (PostgreSQL + Keycloak)
	checkers := map[string]handlers.ReadinessChecker{
		"postgresql": database.NewReadinessChecker(pool),
		"keycloak":   kcClient,
	}
	dephealthSvc, err := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "aanexa-admin",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		DatabaseURL:   cfg.DatabaseURL(),
		JWKSURL:       cfg.JWTJWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
	} else {
		defer dephealthSvc.Stop()
		checkers["dependencies"] = dephealthSvc
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 10. Admin API
	doc, err := openapi.Load(ctx)
	if err != nil {
		return err
	}
	validator, err := middleware.NewRequestValidator(doc, logger)
	if err != nil {
		return err
	}
	h := server.Handlers{
		API: handlers.NewAPIHandler(
			handlers.NewHealthHandler(checkers),
			accountSvc, sessionSvc, profileSvc, sessions,
			logger,
		),
		APIAuth:   middleware.NewSessionAuth(verifier, logger),
		Validator: validator,
	}

	// 11. Admin UI (AD_UI_ENABLED)
	if cfg.UIEnabled {
		h.UI = &server.UIHandlers{
			PageAuth:  uimiddleware.NewPageAuth(verifier, logger),
			Auth:      uihandlers.NewAuthHandler(sessionSvc, sessions, logger),
			Dashboard: uihandlers.NewDashboardHandler(accountSvc, logger),
			Admins:    uihandlers.NewAdminsHandler(accountSvc, logger),
			Profile:   uihandlers.NewProfileHandler(accountSvc, profileSvc, logger),
		}
		logger.Info("Admin UI включён", slog.String("path", uimiddleware.HomePath))
	}

	// 12. HTTP-сервер
	return server.New(cfg, logger, h).Run(ctx)
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}
