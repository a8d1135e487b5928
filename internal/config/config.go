// Пакет config: загрузка и валидация конфигурации сервиса
// из переменных окружения (и опционального .env файла).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL (Admin Directory) ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Keycloak (Credential Store) ---

	// URL Keycloak (например, https://keycloak.example.com)
	KeycloakURL string
	// Имя realm в Keycloak
	KeycloakRealm string
	// Client ID для Keycloak Admin API (client credentials)
	KeycloakClientID string
	// Client Secret для Keycloak Admin API
	KeycloakClientSecret string
	// Client ID для входа администраторов (password/refresh grant)
	KeycloakLoginClientID string
	// Client Secret клиента входа (пусто для public client)
	KeycloakLoginClientSecret string
	// Путь к CA-сертификату Keycloak (опционально)
	KeycloakCACertPath string
	// Таймаут HTTP-запросов к Keycloak
	KeycloakTimeout time.Duration

	// --- JWT ---

	// Issuer JWT (авто-вычисляется из KeycloakURL, если не задан)
	JWTIssuer string
	// URL JWKS endpoint (авто-вычисляется из KeycloakURL, если не задан)
	JWTJWKSURL string
	// Интервал фонового обновления JWKS
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration

	// --- Сессии ---

	// Ключ шифрования session cookie (base64 32 байта или произвольная строка)
	SessionSecret string
	// Secure flag для session cookie
	SessionCookieSecure bool
	// Размер кэша результатов refresh
	RefreshCacheSize int
	// Время жизни записи в кэше результатов refresh
	RefreshCacheTTL time.Duration

	// --- Начальный супер-администратор ---

	// Email первого супер-администратора (пусто: не создавать)
	BootstrapEmail string
	// Пароль первого супер-администратора
	BootstrapPassword string
	// Имя первого супер-администратора
	BootstrapFullName string

	// --- UI ---

	// Включить Admin UI (/admin)
	UIEnabled bool

	// --- Мониторинг зависимостей ---

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Группа в метриках topologymetrics
	DephealthGroup string

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// LoadDotEnv загружает переменные из .env файла, если он существует.
// Уже заданные переменные окружения не перезаписываются.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("загрузка %s: %w", path, err)
	}
	return nil
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// AD_PORT: порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("AD_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("AD_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("AD_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// AD_LOG_LEVEL: уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("AD_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("AD_LOG_LEVEL: %w", err)
	}

	// AD_LOG_FORMAT: формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("AD_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("AD_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("AD_DB_HOST"); err != nil {
		return nil, err
	}

	// AD_DB_PORT: порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("AD_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("AD_DB_PORT: %w", err)
	}

	if cfg.DBName, err = getEnvRequired("AD_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("AD_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("AD_DB_PASSWORD"); err != nil {
		return nil, err
	}

	// AD_DB_SSL_MODE: режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("AD_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("AD_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Keycloak ---

	if cfg.KeycloakURL, err = getEnvRequired("AD_KEYCLOAK_URL"); err != nil {
		return nil, err
	}
	cfg.KeycloakURL = strings.TrimRight(cfg.KeycloakURL, "/")

	// AD_KEYCLOAK_REALM: realm (по умолчанию aanexa)
	cfg.KeycloakRealm = getEnvDefault("AD_KEYCLOAK_REALM", "aanexa")

	if cfg.KeycloakClientID, err = getEnvRequired("AD_KEYCLOAK_CLIENT_ID"); err != nil {
		return nil, err
	}
	if cfg.KeycloakClientSecret, err = getEnvRequired("AD_KEYCLOAK_CLIENT_SECRET"); err != nil {
		return nil, err
	}

	// AD_KEYCLOAK_LOGIN_CLIENT_ID: клиент для входа (по умолчанию aanexa-admin)
	cfg.KeycloakLoginClientID = getEnvDefault("AD_KEYCLOAK_LOGIN_CLIENT_ID", "aanexa-admin")
	cfg.KeycloakLoginClientSecret = getEnvDefault("AD_KEYCLOAK_LOGIN_CLIENT_SECRET", "")
	cfg.KeycloakCACertPath = getEnvDefault("AD_KEYCLOAK_CA_CERT_PATH", "")

	// AD_KEYCLOAK_TIMEOUT: таймаут запросов к Keycloak (по умолчанию 10s)
	cfg.KeycloakTimeout, err = getEnvDuration("AD_KEYCLOAK_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AD_KEYCLOAK_TIMEOUT: %w", err)
	}

	// --- JWT ---

	// AD_JWT_ISSUER: авто-вычисляется из KeycloakURL, если не задан
	cfg.JWTIssuer = getEnvDefault("AD_JWT_ISSUER",
		fmt.Sprintf("%s/realms/%s", cfg.KeycloakURL, cfg.KeycloakRealm))

	// AD_JWT_JWKS_URL: авто-вычисляется из KeycloakURL, если не задан
	cfg.JWTJWKSURL = getEnvDefault("AD_JWT_JWKS_URL",
		fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.KeycloakURL, cfg.KeycloakRealm))

	cfg.JWKSRefreshInterval, err = getEnvDuration("AD_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AD_JWKS_REFRESH_INTERVAL: %w", err)
	}

	cfg.JWTLeeway, err = getEnvDuration("AD_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AD_JWT_LEEWAY: %w", err)
	}

	// --- Сессии ---

	cfg.SessionSecret = getEnvDefault("AD_SESSION_SECRET", "")

	// AD_SESSION_COOKIE_SECURE: по умолчанию true, если Keycloak за https
	cfg.SessionCookieSecure, err = getEnvBool("AD_SESSION_COOKIE_SECURE", strings.HasPrefix(cfg.KeycloakURL, "https"))
	if err != nil {
		return nil, fmt.Errorf("AD_SESSION_COOKIE_SECURE: %w", err)
	}

	cfg.RefreshCacheSize, err = getEnvInt("AD_REFRESH_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("AD_REFRESH_CACHE_SIZE: %w", err)
	}
	if cfg.RefreshCacheSize < 1 {
		return nil, fmt.Errorf("AD_REFRESH_CACHE_SIZE: значение %d должно быть положительным", cfg.RefreshCacheSize)
	}

	cfg.RefreshCacheTTL, err = getEnvDuration("AD_REFRESH_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AD_REFRESH_CACHE_TTL: %w", err)
	}

	// --- Начальный супер-администратор ---

	cfg.BootstrapEmail = getEnvDefault("AD_BOOTSTRAP_EMAIL", "")
	cfg.BootstrapPassword = getEnvDefault("AD_BOOTSTRAP_PASSWORD", "")
	cfg.BootstrapFullName = getEnvDefault("AD_BOOTSTRAP_FULL_NAME", "Super Administrator")
	if cfg.BootstrapEmail != "" && cfg.BootstrapPassword == "" {
		return nil, errors.New("AD_BOOTSTRAP_PASSWORD: обязателен, если задан AD_BOOTSTRAP_EMAIL")
	}

	// --- UI ---

	cfg.UIEnabled, err = getEnvBool("AD_UI_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("AD_UI_ENABLED: %w", err)
	}

	// --- Мониторинг зависимостей ---

	cfg.DephealthCheckInterval, err = getEnvDuration("AD_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AD_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("AD_DEPHEALTH_GROUP", "aanexa")

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("AD_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AD_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.User(c.DBUser),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает логическое значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
