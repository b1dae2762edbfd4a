package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bigkaa/stockflow/internal/config"
)

func newRootCmd() *cobra.Command {
	var envFiles []string

	serve := newServeCmd()
	cmd := &cobra.Command{
		Use:           "stockflow",
		Short:         "Приём и хранение SOH-данных по проектам",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			n, err := config.LoadDotEnv(envFiles...)
			if err != nil {
				return err
			}
			if n > 0 {
				slog.Debug("Загружены .env-файлы", slog.Int("count", n))
			}
			return nil
		},
		RunE: serve.RunE,
	}
	cmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"},
		"файлы с переменными окружения (отсутствующие пропускаются)")

	cmd.AddCommand(serve, newMigrateCmd(), newSweepCmd(), newUsersCmd())
	return cmd
}

// loadConfig загружает конфигурацию и настраивает логгер.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, config.SetupLogger(cfg), nil
}
