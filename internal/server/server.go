// Пакет server — HTTP-сервер StockFlow с graceful shutdown.
// Без TLS: TLS termination выполняется на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bigkaa/stockflow/internal/api/handlers"
	"github.com/bigkaa/stockflow/internal/api/middleware"
	"github.com/bigkaa/stockflow/internal/config"
	"github.com/bigkaa/stockflow/internal/domain/rbac"
	"github.com/bigkaa/stockflow/internal/service"
)

// Публичные пути: проверяются Kubernetes напрямую или открываются из письма.
const (
	pathLive    = "/health/live"
	pathReady   = "/health/ready"
	pathMetrics = "/metrics"
)

// Server — HTTP-сервер StockFlow.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт сервер с маршрутами и middleware.
// sessionAuth может быть nil (тесты без аутентификации).
func New(
	cfg *config.Config,
	logger *slog.Logger,
	api *handlers.APIHandler,
	health *handlers.HealthHandler,
	sessionAuth *middleware.SessionAuth,
) (*Server, error) {
	router, err := NewRouter(cfg, logger, api, health, sessionAuth)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}, nil
}

// NewRouter собирает chi-роутер API.
func NewRouter(
	cfg *config.Config,
	logger *slog.Logger,
	api *handlers.APIHandler,
	health *handlers.HealthHandler,
	sessionAuth *middleware.SessionAuth,
) (chi.Router, error) {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(chimw.Recoverer)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Сессия обязательна везде, кроме health, metrics и ссылки из письма
	if sessionAuth != nil {
		router.Use(middleware.SkipPaths(sessionAuth.Middleware(),
			pathLive, pathReady, pathMetrics, service.ConfirmPath,
		))
	}

	router.Get(pathLive, health.HealthLive)
	router.Get(pathReady, health.HealthReady)
	router.Get(pathMetrics, health.GetMetrics)

	confirmLimit := func(next http.Handler) http.Handler { return next }
	if cfg.ConfirmRateLimit != "" {
		mw, err := middleware.RateLimit(cfg.ConfirmRateLimit, logger)
		if err != nil {
			return nil, err
		}
		confirmLimit = mw
	}
	router.With(confirmLimit).Get(service.ConfirmPath, api.ConfirmDeletion)

	superuserOnly := middleware.RequireRole(rbac.RoleSuperuser)

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/soh-upload", api.UploadSOH)

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", api.ListProjects)
			r.With(superuserOnly).Post("/", api.CreateProject)
			r.Get("/{projectID}", api.GetProject)
			r.Get("/{projectID}/soh-references", api.ListProjectReferences)
		})

		r.Route("/soh-references/{id}", func(r chi.Router) {
			r.Get("/", api.GetReference)
			r.Get("/records", api.ListReferenceRecords)
			r.With(superuserOnly).Post("/lock", api.LockReference)
			r.With(superuserOnly).Post("/unlock", api.UnlockReference)
			r.With(superuserOnly).Post("/deletion-request", api.RequestDeletion)
		})
	})

	return router, nil
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
