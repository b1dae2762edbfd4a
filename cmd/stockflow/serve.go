package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/bigkaa/stockflow/internal/api/handlers"
	"github.com/bigkaa/stockflow/internal/api/middleware"
	"github.com/bigkaa/stockflow/internal/archive"
	"github.com/bigkaa/stockflow/internal/auth"
	"github.com/bigkaa/stockflow/internal/config"
	"github.com/bigkaa/stockflow/internal/database"
	"github.com/bigkaa/stockflow/internal/notifier"
	"github.com/bigkaa/stockflow/internal/repository"
	"github.com/bigkaa/stockflow/internal/server"
	"github.com/bigkaa/stockflow/internal/service"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP-сервер",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

//nolint:funlen // последовательная сборка зависимостей
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("StockFlow запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 1. Миграции и подключение к PostgreSQL
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		return fmt.Errorf("миграции БД: %w", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("подключение к PostgreSQL: %w", err)
	}
	defer pool.Close()

	// Проверка здоровья PostgreSQL идёт через существующий пул
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 2. Репозитории
	projectRepo := repository.NewProjectRepository(pool)
	refRepo := repository.NewDataReferenceRepository(pool)
	recordRepo := repository.NewStockRecordRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	projectLookup := service.NewProjectLookup(projectRepo, cfg.ProjectCacheSize, cfg.ProjectCacheTTL)

	// 3. Архив исходных файлов и почта
	var archiver service.Archiver
	if cfg.ArchiveBucket != "" {
		s3Archiver, err := archive.NewS3(ctx, archive.Config{
			Bucket:    cfg.ArchiveBucket,
			Region:    cfg.ArchiveRegion,
			Endpoint:  cfg.ArchiveEndpoint,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
		}, logger)
		if err != nil {
			return fmt.Errorf("архив SOH-файлов: %w", err)
		}
		archiver = s3Archiver
	} else {
		logger.Info("Архив SOH-файлов отключён (SF_ARCHIVE_BUCKET не задан)")
	}

	var mailer service.Notifier
	if cfg.SMTPHost != "" {
		mailer = notifier.NewSMTPNotifier(notifier.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			Timeout:  cfg.SMTPTimeout,
		}, logger)
	} else {
		logger.Warn("SF_SMTP_HOST не задан, письма подтверждения удаления только логируются")
		mailer = notifier.NewLogNotifier(logger)
	}

	// 4. Сервисы
	uploads := service.NewSOHUploadService(refRepo, recordRepo, projectLookup, archiver, cfg.IngestBatchSize, logger)
	deletions := service.NewSOHDeletionService(refRepo, userRepo, projectLookup, mailer, archiver,
		cfg.DeleteTokenTTL, cfg.AppBaseURL, logger)
	references := service.NewSOHReferenceService(refRepo, recordRepo, projectLookup, logger)
	projects := service.NewProjectService(projectRepo, projectLookup, logger)

	// 5. Проверка сессий
	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Secret:          cfg.SessionSecret,
		JWKSURL:         cfg.JWTJWKSURL,
		Issuer:          cfg.JWTIssuer,
		RefreshInterval: cfg.JWKSRefreshInterval,
		Leeway:          cfg.JWTLeeway,
	}, logger)
	if err != nil {
		return fmt.Errorf("проверка сессий: %w", err)
	}
	sessionAuth := middleware.NewSessionAuth(verifier, cfg.SessionCookie, cfg.ProjectCookie, logger)

	// 6. Фоновые задачи
	sweeper := service.NewDeletionSweeper(deletions, cfg.DeletionSweepInterval, logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	var deps handlers.DependencyHealth
	dephealthSvc, err := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "stockflow",
		Group:         cfg.DephealthGroup,
		PGConnURL:     cfg.DatabaseURL(),
		JWKSURL:       cfg.JWTJWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, pgDB, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
	} else {
		deps = dephealthSvc
		defer dephealthSvc.Stop()
	}

	// 7. HTTP
	health := handlers.NewHealthHandler(database.NewReadinessChecker(pool), deps)
	api := handlers.NewAPIHandler(handlers.Options{
		Uploads:        uploads,
		Deletions:      deletions,
		References:     references,
		Projects:       projects,
		MaxUploadBytes: cfg.MaxUploadBytes,
		AppBaseURL:     cfg.AppBaseURL,
	}, logger)

	srv, err := server.New(cfg, logger, api, health, sessionAuth)
	if err != nil {
		return err
	}
	if err := srv.Run(); err != nil {
		return err
	}

	logger.Info("Останавливаем фоновые задачи...")
	return nil
}
