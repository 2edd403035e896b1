// Пакет config — загрузка и валидация конфигурации Insurance API
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// ServiceName — имя сервиса в health-ответах и графе зависимостей.
const ServiceName = "insurance-api"

// Config содержит все параметры конфигурации Insurance API.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 60s)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration

	// --- JWT ---

	// Секрет подписи HS256 (обязательный)
	JWTSecret string
	// Срок жизни выпускаемых токенов (по умолчанию 24h)
	TokenTTL time.Duration
	// Допустимое отклонение времени при валидации (по умолчанию 30s)
	JWTLeeway time.Duration
	// Размер LRU-кэша проверенных claims (по умолчанию 1000)
	AuthCacheSize int
	// TTL записей кэша проверенных claims (по умолчанию 60s)
	AuthCacheTTL time.Duration

	// --- Источники данных ---

	// URL коллекции клиентов (обязательный)
	ClientsURL string
	// URL коллекции полисов (обязательный)
	PoliciesURL string
	// Путь к CA-сертификату для TLS к источникам (опционально)
	UpstreamCACert string
	// Таймаут запроса к источнику (по умолчанию 10s)
	UpstreamTimeout time.Duration
	// Таймаут readiness-проверки источника (по умолчанию 5s)
	ReadinessTimeout time.Duration

	// --- Кэш датасетов ---

	// Задержка инвалидации снапшота после использования (по умолчанию 30s)
	CacheCooldown time.Duration

	// --- topologymetrics ---

	// Имя группы в графе зависимостей
	DephealthGroup string
	// Интервал проверки зависимостей (по умолчанию 15s)
	DephealthCheckInterval time.Duration
	// Лейбл isentry=yes для зависимостей входной точки
	DephealthIsEntry bool
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// INS_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("INS_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("INS_PORT: %w", err)
	}

	// INS_LOG_LEVEL — уровень логирования (по умолчанию info)
	logLevel := getEnvDefault("INS_LOG_LEVEL", "info")
	cfg.LogLevel, err = parseLogLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("INS_LOG_LEVEL: %w", err)
	}

	// INS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("INS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("INS_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	// INS_HTTP_READ_TIMEOUT — таймаут чтения (по умолчанию 30s)
	cfg.HTTPReadTimeout, err = getEnvDuration("INS_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("INS_HTTP_READ_TIMEOUT: %w", err)
	}

	// INS_HTTP_WRITE_TIMEOUT — таймаут записи (по умолчанию 60s)
	cfg.HTTPWriteTimeout, err = getEnvDuration("INS_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("INS_HTTP_WRITE_TIMEOUT: %w", err)
	}

	// INS_HTTP_IDLE_TIMEOUT — таймаут простоя (по умолчанию 120s)
	cfg.HTTPIdleTimeout, err = getEnvDuration("INS_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("INS_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- Graceful shutdown ---

	// INS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("INS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("INS_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- JWT ---

	// INS_JWT_SECRET — секрет подписи HS256 (обязательный)
	cfg.JWTSecret, err = getEnvRequired("INS_JWT_SECRET")
	if err != nil {
		return nil, err
	}

	// INS_TOKEN_TTL — срок жизни выпускаемых токенов (по умолчанию 24h)
	cfg.TokenTTL, err = getEnvDuration("INS_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("INS_TOKEN_TTL: %w", err)
	}

	// INS_JWT_LEEWAY — допустимое отклонение времени (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("INS_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("INS_JWT_LEEWAY: %w", err)
	}

	// INS_AUTH_CACHE_SIZE — размер кэша проверенных claims (по умолчанию 1000)
	cfg.AuthCacheSize, err = getEnvInt("INS_AUTH_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("INS_AUTH_CACHE_SIZE: %w", err)
	}

	// INS_AUTH_CACHE_TTL — TTL кэша проверенных claims (по умолчанию 60s)
	cfg.AuthCacheTTL, err = getEnvDuration("INS_AUTH_CACHE_TTL", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("INS_AUTH_CACHE_TTL: %w", err)
	}

	// --- Источники данных ---

	// INS_CLIENTS_URL — URL коллекции клиентов (обязательный)
	cfg.ClientsURL, err = getEnvURL("INS_CLIENTS_URL")
	if err != nil {
		return nil, err
	}

	// INS_POLICIES_URL — URL коллекции полисов (обязательный)
	cfg.PoliciesURL, err = getEnvURL("INS_POLICIES_URL")
	if err != nil {
		return nil, err
	}

	// INS_UPSTREAM_CA_CERT — путь к CA-сертификату (опционально)
	cfg.UpstreamCACert = getEnvDefault("INS_UPSTREAM_CA_CERT", "")

	// INS_UPSTREAM_TIMEOUT — таймаут запроса к источнику (по умолчанию 10s)
	cfg.UpstreamTimeout, err = getEnvDuration("INS_UPSTREAM_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("INS_UPSTREAM_TIMEOUT: %w", err)
	}

	// INS_READINESS_TIMEOUT — таймаут readiness-проверки (по умолчанию 5s)
	cfg.ReadinessTimeout, err = getEnvDuration("INS_READINESS_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("INS_READINESS_TIMEOUT: %w", err)
	}

	// --- Кэш датасетов ---

	// INS_CACHE_COOLDOWN — задержка инвалидации после использования (по умолчанию 30s)
	cfg.CacheCooldown, err = getEnvDuration("INS_CACHE_COOLDOWN", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("INS_CACHE_COOLDOWN: %w", err)
	}

	// --- topologymetrics ---

	// INS_DEPHEALTH_GROUP — имя группы в графе зависимостей
	cfg.DephealthGroup = getEnvDefault("INS_DEPHEALTH_GROUP", ServiceName)

	// INS_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("INS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("INS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// INS_DEPHEALTH_ISENTRY — лейбл isentry=yes (по умолчанию false)
	cfg.DephealthIsEntry, err = getEnvBool("INS_DEPHEALTH_ISENTRY", false)
	if err != nil {
		return nil, fmt.Errorf("INS_DEPHEALTH_ISENTRY: %w", err)
	}

	return cfg, nil
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

// getEnvURL возвращает обязательный абсолютный http(s) URL из переменной окружения.
func getEnvURL(key string) (string, error) {
	val, err := getEnvRequired(key)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(val)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%s: некорректный URL %q (ожидается абсолютный http(s) URL)", key, val)
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

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
