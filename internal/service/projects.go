package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/stockflow/internal/auth"
	"github.com/bigkaa/stockflow/internal/domain/model"
	"github.com/bigkaa/stockflow/internal/repository"
)

// CreateProjectInput — параметры нового проекта.
type CreateProjectInput struct {
	Name        string `validate:"required,max=200"`
	Description string `validate:"max=2000"`
}

// ProjectService — создание и просмотр проектов.
type ProjectService struct {
	repo   repository.ProjectRepository
	lookup *ProjectLookup
	logger *slog.Logger
}

// NewProjectService создаёт сервис проектов.
func NewProjectService(repo repository.ProjectRepository, lookup *ProjectLookup, logger *slog.Logger) *ProjectService {
	return &ProjectService{
		repo:   repo,
		lookup: lookup,
		logger: logger.With(slog.String("component", "projects")),
	}
}

// Create создаёт проект. Только superuser.
func (s *ProjectService) Create(ctx context.Context, id *auth.Identity, in CreateProjectInput) (*model.Project, error) {
	if !id.IsSuperuser() {
		return nil, fmt.Errorf("%w: создание проекта доступно только superuser", ErrForbidden)
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	p := &model.Project{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		CreatedBy:   id.UserID,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: проект %q уже существует", ErrConflict, in.Name)
		}
		return nil, fmt.Errorf("создание проекта: %w", err)
	}
	s.lookup.Remember(p)

	s.logger.Info("Проект создан",
		slog.String("project_id", p.ID),
		slog.String("name", p.Name),
		slog.String("created_by", id.UserID),
	)
	return p, nil
}

// List возвращает проекты, доступные пользователю.
// superuser видит все, остальные роли только выбранный проект.
func (s *ProjectService) List(ctx context.Context, id *auth.Identity, limit, offset int) ([]*model.Project, error) {
	if id == nil {
		return nil, ErrForbidden
	}
	if id.IsSuperuser() {
		limit, offset = normalizePage(limit, offset)
		projects, err := s.repo.List(ctx, limit, offset)
		if err != nil {
			return nil, fmt.Errorf("получение списка проектов: %w", err)
		}
		return projects, nil
	}

	if id.SelectedProjectID == "" || offset > 0 {
		return []*model.Project{}, nil
	}
	p, err := s.lookup.Get(ctx, id.SelectedProjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []*model.Project{}, nil
		}
		return nil, err
	}
	return []*model.Project{p}, nil
}

// Get возвращает проект, если он доступен пользователю.
func (s *ProjectService) Get(ctx context.Context, id *auth.Identity, projectID string) (*model.Project, error) {
	if !id.CanAccessProject(projectID) {
		return nil, fmt.Errorf("%w: нет доступа к проекту %s", ErrForbidden, projectID)
	}
	return s.lookup.Get(ctx, projectID)
}
