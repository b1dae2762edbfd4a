package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/stockflow/internal/api/handlers"
	"github.com/bigkaa/stockflow/internal/api/middleware"
	"github.com/bigkaa/stockflow/internal/auth"
	"github.com/bigkaa/stockflow/internal/config"
	"github.com/bigkaa/stockflow/internal/service"
)

type stubVerifier map[string]*auth.Identity

func (s stubVerifier) Verify(_ context.Context, token string) (*auth.Identity, error) {
	id, ok := s[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	cp := *id
	return &cp, nil
}

func newTestRouter(t *testing.T, rateLimit string) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{ConfirmRateLimit: rateLimit, ShutdownTimeout: time.Second}

	api := handlers.NewAPIHandler(handlers.Options{
		Deletions:  service.NewSOHDeletionService(nil, nil, nil, nil, nil, time.Hour, "https://stock.example.com", logger),
		AppBaseURL: "https://stock.example.com",
	}, logger)
	sessionAuth := middleware.NewSessionAuth(stubVerifier{
		"admin": {UserID: "a1", Role: "admin"},
	}, "session", "selectedProjectId", logger)

	router, err := NewRouter(cfg, logger, api, handlers.NewHealthHandler(nil, nil), sessionAuth)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return router
}

func serve(h http.Handler, method, path, session string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if session != "" {
		req.AddCookie(&http.Cookie{Name: "session", Value: session})
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_PublicPaths(t *testing.T) {
	router := newTestRouter(t, "")

	if w := serve(router, http.MethodGet, pathLive, ""); w.Code != http.StatusOK {
		t.Errorf("%s: статус = %d", pathLive, w.Code)
	}
	if w := serve(router, http.MethodGet, pathMetrics, ""); w.Code != http.StatusOK {
		t.Errorf("%s: статус = %d", pathMetrics, w.Code)
	}

	w := serve(router, http.MethodGet, service.ConfirmPath, "")
	if w.Code != http.StatusFound {
		t.Fatalf("подтверждение без сессии: статус = %d", w.Code)
	}
	if loc := w.Header().Get("Location"); !strings.HasPrefix(loc, "https://stock.example.com/deletion/invalid") {
		t.Errorf("Location = %s", loc)
	}
}

func TestRouter_ProtectedPaths(t *testing.T) {
	router := newTestRouter(t, "")

	for _, path := range []string{"/api/v1/projects", "/api/v1/soh-references/2c1d5a8e-7b3f-4e2a-9c6d-0f1e2d3c4b5a"} {
		if w := serve(router, http.MethodGet, path, ""); w.Code != http.StatusUnauthorized {
			t.Errorf("%s без сессии: статус = %d", path, w.Code)
		}
	}
	if w := serve(router, http.MethodPost, "/api/v1/soh-upload", "broken"); w.Code != http.StatusUnauthorized {
		t.Errorf("невалидная сессия: статус = %d", w.Code)
	}
}

func TestRouter_SuperuserRoutes(t *testing.T) {
	router := newTestRouter(t, "")

	paths := []string{
		"/api/v1/projects",
		"/api/v1/soh-references/2c1d5a8e-7b3f-4e2a-9c6d-0f1e2d3c4b5a/lock",
		"/api/v1/soh-references/2c1d5a8e-7b3f-4e2a-9c6d-0f1e2d3c4b5a/unlock",
		"/api/v1/soh-references/2c1d5a8e-7b3f-4e2a-9c6d-0f1e2d3c4b5a/deletion-request",
	}
	for _, path := range paths {
		if w := serve(router, http.MethodPost, path, "admin"); w.Code != http.StatusForbidden {
			t.Errorf("%s для admin: статус = %d", path, w.Code)
		}
	}
}

func TestRouter_ConfirmRateLimit(t *testing.T) {
	router := newTestRouter(t, "2-M")

	for i := 0; i < 2; i++ {
		if w := serve(router, http.MethodGet, service.ConfirmPath, ""); w.Code != http.StatusFound {
			t.Fatalf("запрос %d: статус = %d", i+1, w.Code)
		}
	}
	if w := serve(router, http.MethodGet, service.ConfirmPath, ""); w.Code != http.StatusTooManyRequests {
		t.Errorf("сверх лимита: статус = %d", w.Code)
	}
}

func TestNewRouter_InvalidRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{ConfirmRateLimit: "many"}
	api := handlers.NewAPIHandler(handlers.Options{}, logger)

	if _, err := NewRouter(cfg, logger, api, handlers.NewHealthHandler(nil, nil), nil); err == nil {
		t.Error("ожидалась ошибка разбора лимита")
	}
}
