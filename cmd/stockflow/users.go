package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigkaa/stockflow/internal/database"
	"github.com/bigkaa/stockflow/internal/repository"
	"github.com/bigkaa/stockflow/internal/service"
)

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Справочник пользователей (адресаты писем подтверждения)",
	}
	cmd.AddCommand(newUsersUpsertCmd())
	return cmd
}

func newUsersUpsertCmd() *cobra.Command {
	var in service.UpsertUserInput

	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Создать или обновить пользователя",
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

			u, err := service.NewUserService(repository.NewUserRepository(pool), logger).Upsert(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", u.ID, u.Email, u.Role)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.ID, "id", "", "ID пользователя (subject сессии)")
	f.StringVar(&in.Email, "email", "", "адрес для писем")
	f.StringVar(&in.DisplayName, "name", "", "отображаемое имя")
	f.StringVar(&in.Role, "role", "", "роль: superuser, admin, client, counter")
	f.StringSliceVar(&in.ProjectIDs, "project", nil, "назначенные проекты (можно повторять)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
