package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bigkaa/stockflow/internal/domain/model"
	"github.com/bigkaa/stockflow/internal/repository"
)

// UpsertUserInput — профиль пользователя из IdP.
// Используется CLI для заведения администраторов проектов.
type UpsertUserInput struct {
	ID          string   `validate:"required,max=255"`
	Email       string   `validate:"required,email"`
	DisplayName string   `validate:"max=255"`
	Role        string   `validate:"required,oneof=superuser admin client counter"`
	ProjectIDs  []string `validate:"dive,uuid"`
}

// UserService — локальный справочник пользователей.
type UserService struct {
	repo   repository.UserRepository
	logger *slog.Logger
}

// NewUserService создаёт сервис пользователей.
func NewUserService(repo repository.UserRepository, logger *slog.Logger) *UserService {
	return &UserService{
		repo:   repo,
		logger: logger.With(slog.String("component", "users")),
	}
}

// Upsert создаёт или обновляет пользователя.
func (s *UserService) Upsert(ctx context.Context, in UpsertUserInput) (*model.User, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	u := &model.User{
		ID:          in.ID,
		Email:       in.Email,
		DisplayName: in.DisplayName,
		Role:        in.Role,
		ProjectIDs:  in.ProjectIDs,
	}
	if u.ProjectIDs == nil {
		u.ProjectIDs = []string{}
	}
	if err := s.repo.Upsert(ctx, u); err != nil {
		return nil, fmt.Errorf("сохранение пользователя: %w", err)
	}
	s.logger.Info("Пользователь сохранён",
		slog.String("user_id", u.ID),
		slog.String("role", u.Role),
		slog.Int("projects", len(u.ProjectIDs)),
	)
	return u, nil
}
