// Пакет config — загрузка и валидация конфигурации StockFlow
// из переменных окружения.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации StockFlow.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальный размер пула соединений
	DBMaxConns int

	// --- Сессии ---

	// Имя cookie с JWT сессии
	SessionCookie string
	// Имя cookie с выбранным проектом
	ProjectCookie string
	// Секрет HS256 для JWT сессии (если JWKS не задан)
	SessionSecret string
	// URL JWKS endpoint для RS256 JWT сессии (опционально)
	JWTJWKSURL string
	// Ожидаемый issuer JWT (опционально)
	JWTIssuer string
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- Приложение ---

	// Базовый URL фронтенда: ссылки подтверждения и страницы результата
	AppBaseURL string
	// Максимальный размер multipart-запроса загрузки
	MaxUploadBytes int64
	// Количество записей в одном атомарном batch
	IngestBatchSize int
	// Время жизни токена подтверждения удаления
	DeleteTokenTTL time.Duration
	// Интервал фонового отката просроченных запросов на удаление
	DeletionSweepInterval time.Duration
	// Размер и TTL кэша проектов
	ProjectCacheSize int
	ProjectCacheTTL  time.Duration
	// Лимит запросов к endpoint подтверждения (формат ulule/limiter: "30-M")
	ConfirmRateLimit string

	// --- SMTP (пустой SMTPHost — письма только логируются) ---

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	// SMTPTimeout — предел на отправку одного письма
	SMTPTimeout time.Duration

	// --- Архив исходных файлов в S3 (пустой ArchiveBucket — отключён) ---

	ArchiveBucket    string
	ArchiveRegion    string
	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// LoadDotEnv подгружает переменные из .env-файлов, если они существуют.
// Уже заданные переменные окружения не перезаписываются.
func LoadDotEnv(files ...string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
//
//nolint:gocyclo,cyclop // линейная последовательность проверок
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("SF_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("SF_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("SF_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SF_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SF_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("SF_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SF_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("SF_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("SF_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("SF_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("SF_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("SF_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("SF_DB_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("SF_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("SF_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	cfg.DBMaxConns, err = getEnvInt("SF_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("SF_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("SF_DB_MAX_CONNS: значение %d должно быть положительным", cfg.DBMaxConns)
	}

	// --- Сессии ---

	cfg.SessionCookie = getEnvDefault("SF_SESSION_COOKIE", "stockflow_session")
	cfg.ProjectCookie = getEnvDefault("SF_PROJECT_COOKIE", "selectedProjectId")
	cfg.SessionSecret = os.Getenv("SF_SESSION_SECRET")
	cfg.JWTJWKSURL = os.Getenv("SF_JWT_JWKS_URL")
	cfg.JWTIssuer = os.Getenv("SF_JWT_ISSUER")
	if cfg.SessionSecret == "" && cfg.JWTJWKSURL == "" {
		return nil, errors.New("SF_SESSION_SECRET или SF_JWT_JWKS_URL: должна быть задана хотя бы одна переменная")
	}

	cfg.JWKSRefreshInterval, err = getEnvDuration("SF_JWKS_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SF_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWTLeeway, err = getEnvDuration("SF_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SF_JWT_LEEWAY: %w", err)
	}

	// --- Приложение ---

	cfg.AppBaseURL = strings.TrimRight(getEnvDefault("SF_APP_BASE_URL", "http://localhost:3000"), "/")

	cfg.MaxUploadBytes, err = getEnvInt64("SF_MAX_UPLOAD_BYTES", 25<<20)
	if err != nil {
		return nil, fmt.Errorf("SF_MAX_UPLOAD_BYTES: %w", err)
	}
	if cfg.MaxUploadBytes < 1 {
		return nil, fmt.Errorf("SF_MAX_UPLOAD_BYTES: значение %d должно быть положительным", cfg.MaxUploadBytes)
	}

	cfg.IngestBatchSize, err = getEnvInt("SF_INGEST_BATCH_SIZE", 490)
	if err != nil {
		return nil, fmt.Errorf("SF_INGEST_BATCH_SIZE: %w", err)
	}
	// Хранилище принимает не более 500 операций в одном batch
	if cfg.IngestBatchSize < 1 || cfg.IngestBatchSize > 500 {
		return nil, fmt.Errorf("SF_INGEST_BATCH_SIZE: значение %d вне допустимого диапазона 1-500", cfg.IngestBatchSize)
	}

	cfg.DeleteTokenTTL, err = getEnvDuration("SF_DELETE_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SF_DELETE_TOKEN_TTL: %w", err)
	}
	cfg.DeletionSweepInterval, err = getEnvDuration("SF_DELETION_SWEEP_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SF_DELETION_SWEEP_INTERVAL: %w", err)
	}

	cfg.ProjectCacheSize, err = getEnvInt("SF_PROJECT_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("SF_PROJECT_CACHE_SIZE: %w", err)
	}
	cfg.ProjectCacheTTL, err = getEnvDuration("SF_PROJECT_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SF_PROJECT_CACHE_TTL: %w", err)
	}

	cfg.ConfirmRateLimit = getEnvDefault("SF_CONFIRM_RATE_LIMIT", "30-M")

	// --- SMTP ---

	cfg.SMTPHost = os.Getenv("SF_SMTP_HOST")
	cfg.SMTPPort, err = getEnvInt("SF_SMTP_PORT", 587)
	if err != nil {
		return nil, fmt.Errorf("SF_SMTP_PORT: %w", err)
	}
	cfg.SMTPUser = os.Getenv("SF_SMTP_USER")
	cfg.SMTPPassword = os.Getenv("SF_SMTP_PASSWORD")
	cfg.SMTPFrom = getEnvDefault("SF_SMTP_FROM", "stockflow@localhost")
	cfg.SMTPTimeout, err = getEnvDuration("SF_SMTP_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SF_SMTP_TIMEOUT: %w", err)
	}
	if cfg.SMTPTimeout <= 0 {
		return nil, fmt.Errorf("SF_SMTP_TIMEOUT: значение %s должно быть положительным", cfg.SMTPTimeout)
	}

	// --- Архив ---

	cfg.ArchiveBucket = os.Getenv("SF_ARCHIVE_BUCKET")
	cfg.ArchiveRegion = getEnvDefault("SF_ARCHIVE_REGION", "us-east-1")
	cfg.ArchiveEndpoint = os.Getenv("SF_ARCHIVE_ENDPOINT")
	cfg.ArchiveAccessKey = os.Getenv("SF_ARCHIVE_ACCESS_KEY")
	cfg.ArchiveSecretKey = os.Getenv("SF_ARCHIVE_SECRET_KEY")
	if cfg.ArchiveBucket != "" && (cfg.ArchiveAccessKey == "" || cfg.ArchiveSecretKey == "") {
		return nil, errors.New("SF_ARCHIVE_ACCESS_KEY и SF_ARCHIVE_SECRET_KEY обязательны при заданном SF_ARCHIVE_BUCKET")
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("SF_DEPHEALTH_GROUP", "stockflow")
	cfg.DephealthCheckInterval, err = getEnvDuration("SF_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SF_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("SF_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SF_SHUTDOWN_TIMEOUT: %w", err)
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
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
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

func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
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
