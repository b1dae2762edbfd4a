package database

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/stockflow/internal/config"
)

// startPostgres поднимает PostgreSQL в контейнере и возвращает конфигурацию для него.
// Без TEST_INTEGRATION тест пропускается.
func startPostgres(t *testing.T) *config.Config {
	t.Helper()
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("TEST_INTEGRATION не задана")
	}

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "docker.io/postgres:17-alpine",
		postgres.WithDatabase("stockflow_test"),
		postgres.WithUsername("stockflow"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("запуск PostgreSQL: %v", err)
	}
	t.Cleanup(func() { _ = ctr.Terminate(ctx) })

	host, err := ctr.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	mapped, err := ctr.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(mapped.Port())
	if err != nil {
		t.Fatal(err)
	}

	return &config.Config{
		DBHost:     host,
		DBPort:     port,
		DBName:     "stockflow_test",
		DBUser:     "stockflow",
		DBPassword: "test-password",
		DBSSLMode:  "disable",
		DBMaxConns: 4,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMigrateURL(t *testing.T) {
	cfg := &config.Config{
		DBHost:     "db.local",
		DBPort:     5433,
		DBName:     "stockflow",
		DBUser:     "sf",
		DBPassword: "p@ss/word",
		DBSSLMode:  "require",
	}

	u, err := url.Parse(migrateURL(cfg))
	if err != nil {
		t.Fatalf("migrateURL не разбирается: %v", err)
	}
	if u.Scheme != "pgx5" || u.Host != "db.local:5433" || u.Path != "/stockflow" {
		t.Errorf("migrateURL = %s", u)
	}
	if pass, _ := u.User.Password(); pass != "p@ss/word" || u.User.Username() != "sf" {
		t.Errorf("учётные данные = %v", u.User)
	}
	q := u.Query()
	if q.Get("sslmode") != "require" || q.Get("x-migrations-table") != "stockflow_schema_migrations" {
		t.Errorf("параметры = %v", q)
	}
}

func TestPoolConfig(t *testing.T) {
	cfg := &config.Config{
		DBHost: "db.local", DBPort: 5432, DBName: "stockflow",
		DBUser: "sf", DBPassword: "x", DBSSLMode: "disable",
		DBMaxConns: 7,
	}

	pc, err := poolConfig(cfg)
	if err != nil {
		t.Fatalf("poolConfig: %v", err)
	}
	if pc.MaxConns != 7 {
		t.Errorf("MaxConns = %d", pc.MaxConns)
	}
	if pc.ConnConfig.RuntimeParams["application_name"] != applicationName {
		t.Errorf("application_name = %q", pc.ConnConfig.RuntimeParams["application_name"])
	}
}

type stubUsage struct{ acquired, max int32 }

func (s stubUsage) AcquiredConns() int32 { return s.acquired }
func (s stubUsage) MaxConns() int32      { return s.max }

func TestPoolStatus(t *testing.T) {
	tests := []struct {
		usage stubUsage
		want  string
	}{
		{stubUsage{0, 10}, "ok"},
		{stubUsage{9, 10}, "ok"},
		{stubUsage{10, 10}, "degraded"},
	}
	for _, tt := range tests {
		if got, _ := poolStatus(tt.usage); got != tt.want {
			t.Errorf("poolStatus(%d/%d) = %q, ожидалось %q", tt.usage.acquired, tt.usage.max, got, tt.want)
		}
	}
}

// TestMigrate: миграции применяются и повторный запуск ничего не меняет.
func TestMigrate(t *testing.T) {
	cfg := startPostgres(t)
	logger := quietLogger()

	for i := 0; i < 2; i++ {
		if err := Migrate(cfg, logger); err != nil {
			t.Fatalf("Migrate (запуск %d): %v", i+1, err)
		}
	}

	ctx := context.Background()
	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer pool.Close()

	for _, table := range []string{"projects", "users", "soh_data_references", "soh_stock_records"} {
		var regclass *string
		if err := pool.QueryRow(ctx, `SELECT to_regclass($1)::text`, "public."+table).Scan(&regclass); err != nil {
			t.Fatalf("проверка %s: %v", table, err)
		}
		if regclass == nil {
			t.Errorf("таблица %s не создана", table)
		}
	}

	if status, msg := NewReadinessChecker(pool).CheckReady(ctx); status != "ok" {
		t.Errorf("CheckReady = %q (%s)", status, msg)
	}
}
