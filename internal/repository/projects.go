package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/stockflow/internal/domain/model"
)

// ProjectRepository — доступ к таблице projects.
type ProjectRepository interface {
	// Create создаёт проект. Дублирующееся имя — ErrConflict.
	Create(ctx context.Context, p *model.Project) error
	// GetByID возвращает проект по UUID.
	GetByID(ctx context.Context, id string) (*model.Project, error)
	// List возвращает проекты по имени.
	List(ctx context.Context, limit, offset int) ([]*model.Project, error)
	// Exists проверяет существование проекта.
	Exists(ctx context.Context, id string) (bool, error)
}

type projectRepo struct {
	db DBTX
}

// NewProjectRepository создаёт репозиторий проектов.
func NewProjectRepository(db DBTX) ProjectRepository {
	return &projectRepo{db: db}
}

func (r *projectRepo) Create(ctx context.Context, p *model.Project) error {
	query := `
		INSERT INTO projects (id, name, description, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query, p.ID, p.Name, p.Description, p.CreatedBy).Scan(&p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: проект %q уже существует", ErrConflict, p.Name)
		}
		return fmt.Errorf("ошибка создания проекта: %w", err)
	}
	return nil
}

func (r *projectRepo) GetByID(ctx context.Context, id string) (*model.Project, error) {
	p := &model.Project{}
	err := r.db.QueryRow(ctx, `
		SELECT id, name, description, created_by, created_at
		FROM projects
		WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.CreatedBy, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения проекта: %w", err)
	}
	return p, nil
}

func (r *projectRepo) List(ctx context.Context, limit, offset int) ([]*model.Project, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, description, created_by, created_at
		FROM projects
		ORDER BY name
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка проектов: %w", err)
	}
	defer rows.Close()

	var result []*model.Project
	for rows.Next() {
		p := &model.Project{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования проекта: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *projectRepo) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id::text = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки проекта: %w", err)
	}
	return exists, nil
}
