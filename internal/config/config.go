// Пакет config — загрузка и валидация конфигурации Admin Console
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Admin Console.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8000-8009)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

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

	// --- Трекинг-бэкенд ---

	// Базовый URL REST API бэкенда (например, https://api.rastreo.lan)
	BackendURL string
	// Путь health endpoint бэкенда
	BackendHealthPath string
	// Таймаут HTTP-запросов к бэкенду
	BackendTimeout time.Duration
	// Путь к CA-сертификату для TLS-соединений с бэкендом (опционально)
	BackendCACertPath string

	// --- JWT ---

	// URL JWKS endpoint бэкенда (опционально; пусто — проверка подписи
	// токена сессии не выполняется, только срок действия)
	JWKSURL string
	// Интервал фонового обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- Справочник пользователей ---

	// Потолок попыток полной загрузки справочника на сессию
	FetchMaxAttempts int
	// Выполнять ли полную перезагрузку справочника после create/update
	RefreshAfterMutation bool

	// --- Кэш профилей ---

	// Максимальное количество записей в кэше профилей
	ProfileCacheSize int
	// Время жизни записи кэша профилей
	ProfileCacheTTL time.Duration

	// --- Мониторинг зависимостей ---

	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// AC_PORT — порт HTTP-сервера (по умолчанию 8002)
	cfg.Port, err = getEnvInt("AC_PORT", 8002)
	if err != nil {
		return nil, fmt.Errorf("AC_PORT: %w", err)
	}
	if cfg.Port < 8000 || cfg.Port > 8009 {
		return nil, fmt.Errorf("AC_PORT: значение %d вне допустимого диапазона 8000-8009", cfg.Port)
	}

	// AC_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("AC_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("AC_LOG_LEVEL: %w", err)
	}

	// AC_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("AC_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("AC_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// AC_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("AC_DB_HOST")
	if err != nil {
		return nil, err
	}

	// AC_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("AC_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("AC_DB_PORT: %w", err)
	}

	// AC_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("AC_DB_NAME")
	if err != nil {
		return nil, err
	}

	// AC_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("AC_DB_USER")
	if err != nil {
		return nil, err
	}

	// AC_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("AC_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// AC_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("AC_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("AC_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Трекинг-бэкенд ---

	// AC_BACKEND_URL — обязательный
	cfg.BackendURL, err = getEnvRequired("AC_BACKEND_URL")
	if err != nil {
		return nil, err
	}
	// Убираем trailing slash
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")

	// AC_BACKEND_HEALTH_PATH — путь health endpoint (по умолчанию /api/health)
	cfg.BackendHealthPath = getEnvDefault("AC_BACKEND_HEALTH_PATH", "/api/health")

	// AC_BACKEND_TIMEOUT — таймаут запросов к бэкенду (по умолчанию 30s)
	cfg.BackendTimeout, err = getEnvDuration("AC_BACKEND_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AC_BACKEND_TIMEOUT: %w", err)
	}

	// AC_BACKEND_CA_CERT_PATH — путь к CA-сертификату (опционально)
	cfg.BackendCACertPath = getEnvDefault("AC_BACKEND_CA_CERT_PATH", "")

	// --- JWT ---

	// AC_JWKS_URL — JWKS endpoint бэкенда (опционально)
	cfg.JWKSURL = getEnvDefault("AC_JWKS_URL", "")

	// AC_JWKS_REFRESH_INTERVAL — интервал обновления ключей (по умолчанию 5m)
	cfg.JWKSRefreshInterval, err = getEnvDuration("AC_JWKS_REFRESH_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AC_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// AC_JWT_LEEWAY — отклонение времени при проверке JWT (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("AC_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AC_JWT_LEEWAY: %w", err)
	}

	// --- Справочник пользователей ---

	// AC_FETCH_MAX_ATTEMPTS — потолок попыток загрузки (по умолчанию 3)
	cfg.FetchMaxAttempts, err = getEnvInt("AC_FETCH_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, fmt.Errorf("AC_FETCH_MAX_ATTEMPTS: %w", err)
	}
	if cfg.FetchMaxAttempts < 1 || cfg.FetchMaxAttempts > 10 {
		return nil, fmt.Errorf("AC_FETCH_MAX_ATTEMPTS: значение %d вне допустимого диапазона 1-10", cfg.FetchMaxAttempts)
	}

	// AC_REFRESH_AFTER_MUTATION — перезагрузка после мутации (по умолчанию false)
	cfg.RefreshAfterMutation, err = getEnvBool("AC_REFRESH_AFTER_MUTATION", false)
	if err != nil {
		return nil, fmt.Errorf("AC_REFRESH_AFTER_MUTATION: %w", err)
	}

	// --- Кэш профилей ---

	// AC_PROFILE_CACHE_SIZE — размер кэша (по умолчанию 256)
	cfg.ProfileCacheSize, err = getEnvInt("AC_PROFILE_CACHE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("AC_PROFILE_CACHE_SIZE: %w", err)
	}
	if cfg.ProfileCacheSize < 1 {
		return nil, fmt.Errorf("AC_PROFILE_CACHE_SIZE: значение должно быть положительным")
	}

	// AC_PROFILE_CACHE_TTL — TTL записи кэша (по умолчанию 5m)
	cfg.ProfileCacheTTL, err = getEnvDuration("AC_PROFILE_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AC_PROFILE_CACHE_TTL: %w", err)
	}

	// --- Мониторинг зависимостей ---

	// AC_DEPHEALTH_GROUP — группа в метриках (по умолчанию rastreo)
	cfg.DephealthGroup = getEnvDefault("AC_DEPHEALTH_GROUP", "rastreo")

	// AC_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("AC_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AC_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// AC_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("AC_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AC_SHUTDOWN_TIMEOUT: %w", err)
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

// DatabaseURL возвращает URL подключения к PostgreSQL.
// Используется для лейблов метрик dephealth.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// MigrationURL возвращает URL подключения для golang-migrate
// (схема pgx5 — драйвер pgx/v5).
func (c *Config) MigrationURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
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

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (используйте true/false)", val)
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
