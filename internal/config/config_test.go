package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"SF_DB_HOST":        "localhost",
		"SF_DB_NAME":        "stockflow",
		"SF_DB_USER":        "stockflow",
		"SF_DB_PASSWORD":    "secret",
		"SF_SESSION_SECRET": "session-secret",
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, ожидается 8080", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, ожидается 5432", cfg.DBPort)
	}
	if cfg.DBMaxConns != 10 {
		t.Errorf("DBMaxConns = %d, ожидается 10", cfg.DBMaxConns)
	}
	if cfg.SMTPTimeout != 10*time.Second {
		t.Errorf("SMTPTimeout = %v, ожидается 10s", cfg.SMTPTimeout)
	}
	if cfg.SessionCookie != "stockflow_session" {
		t.Errorf("SessionCookie = %q, ожидается stockflow_session", cfg.SessionCookie)
	}
	if cfg.ProjectCookie != "selectedProjectId" {
		t.Errorf("ProjectCookie = %q, ожидается selectedProjectId", cfg.ProjectCookie)
	}
	if cfg.IngestBatchSize != 490 {
		t.Errorf("IngestBatchSize = %d, ожидается 490", cfg.IngestBatchSize)
	}
	if cfg.DeleteTokenTTL != 24*time.Hour {
		t.Errorf("DeleteTokenTTL = %v, ожидается 24h", cfg.DeleteTokenTTL)
	}
	if cfg.MaxUploadBytes != 25<<20 {
		t.Errorf("MaxUploadBytes = %d, ожидается %d", cfg.MaxUploadBytes, 25<<20)
	}
	if cfg.AppBaseURL != "http://localhost:3000" {
		t.Errorf("AppBaseURL = %q", cfg.AppBaseURL)
	}
	if cfg.ConfirmRateLimit != "30-M" {
		t.Errorf("ConfirmRateLimit = %q, ожидается 30-M", cfg.ConfirmRateLimit)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	for _, key := range []string{"SF_DB_HOST", "SF_DB_NAME", "SF_DB_USER", "SF_DB_PASSWORD"} {
		t.Run(key, func(t *testing.T) {
			envs := minimalEnvs()
			delete(envs, key)
			setEnvs(t, envs)
			t.Setenv(key, "")

			if _, err := Load(); err == nil {
				t.Errorf("ожидалась ошибка при отсутствии %s", key)
			}
		})
	}
}

func TestLoad_SessionVerifierRequired(t *testing.T) {
	envs := minimalEnvs()
	envs["SF_SESSION_SECRET"] = ""
	setEnvs(t, envs)

	if _, err := Load(); err == nil {
		t.Fatal("ожидалась ошибка без SF_SESSION_SECRET и SF_JWT_JWKS_URL")
	}

	t.Setenv("SF_JWT_JWKS_URL", "https://idp.example.com/jwks")
	if _, err := Load(); err != nil {
		t.Fatalf("с SF_JWT_JWKS_URL конфигурация должна загружаться: %v", err)
	}
}

func TestLoad_BatchSizeBounds(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"1", false},
		{"490", false},
		{"500", false},
		{"0", true},
		{"501", true},
		{"abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			setEnvs(t, minimalEnvs())
			t.Setenv("SF_INGEST_BATCH_SIZE", tt.value)

			_, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("SF_INGEST_BATCH_SIZE=%s: err = %v, wantErr = %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestLoad_ArchiveRequiresCredentials(t *testing.T) {
	setEnvs(t, minimalEnvs())
	t.Setenv("SF_ARCHIVE_BUCKET", "soh-archive")

	if _, err := Load(); err == nil {
		t.Fatal("ожидалась ошибка без ключей доступа к архиву")
	}

	t.Setenv("SF_ARCHIVE_ACCESS_KEY", "ak")
	t.Setenv("SF_ARCHIVE_SECRET_KEY", "sk")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.ArchiveRegion != "us-east-1" {
		t.Errorf("ArchiveRegion = %q, ожидается us-east-1", cfg.ArchiveRegion)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SF_PORT", "0"},
		{"SF_PORT", "70000"},
		{"SF_LOG_LEVEL", "verbose"},
		{"SF_LOG_FORMAT", "xml"},
		{"SF_DB_SSL_MODE", "maybe"},
		{"SF_DB_MAX_CONNS", "0"},
		{"SF_SMTP_TIMEOUT", "0s"},
		{"SF_SMTP_TIMEOUT", "soon"},
		{"SF_DELETE_TOKEN_TTL", "day"},
		{"SF_MAX_UPLOAD_BYTES", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			setEnvs(t, minimalEnvs())
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("ожидалась ошибка для %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_AppBaseURLTrailingSlash(t *testing.T) {
	setEnvs(t, minimalEnvs())
	t.Setenv("SF_APP_BASE_URL", "https://stockflow.example.com/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.AppBaseURL != "https://stockflow.example.com" {
		t.Errorf("AppBaseURL = %q, trailing slash должен быть удалён", cfg.AppBaseURL)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("SF_TEST_DOTENV_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SF_TEST_DOTENV_VALUE", "")
	os.Unsetenv("SF_TEST_DOTENV_VALUE")

	n, err := LoadDotEnv(path, filepath.Join(dir, ".env.missing"))
	if err != nil {
		t.Fatalf("LoadDotEnv() ошибка: %v", err)
	}
	if n != 1 {
		t.Errorf("загружено файлов = %d, ожидается 1", n)
	}
	if got := os.Getenv("SF_TEST_DOTENV_VALUE"); got != "from-file" {
		t.Errorf("SF_TEST_DOTENV_VALUE = %q, ожидается from-file", got)
	}
}
