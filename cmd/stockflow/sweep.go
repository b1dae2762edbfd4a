package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bigkaa/stockflow/internal/database"
	"github.com/bigkaa/stockflow/internal/repository"
	"github.com/bigkaa/stockflow/internal/service"
)

// newSweepCmd — однократный откат просроченных запросов удаления (для CronJob).
func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-deletions",
		Short: "Откатить просроченные запросы удаления и выйти",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			pool, err := database.Connect(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("подключение к PostgreSQL: %w", err)
			}
			defer pool.Close()

			refRepo := repository.NewDataReferenceRepository(pool)
			lookup := service.NewProjectLookup(repository.NewProjectRepository(pool), cfg.ProjectCacheSize, cfg.ProjectCacheTTL)
			deletions := service.NewSOHDeletionService(refRepo, repository.NewUserRepository(pool), lookup,
				nil, nil, cfg.DeleteTokenTTL, cfg.AppBaseURL, logger)

			reverted, err := deletions.SweepExpired(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("Просроченные запросы удаления откачены", slog.Int("count", reverted))
			return nil
		},
	}
}
