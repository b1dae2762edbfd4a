package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/stockflow/internal/domain/model"
	"github.com/bigkaa/stockflow/internal/domain/rbac"
)

// UserRepository — доступ к таблице users.
type UserRepository interface {
	// Upsert создаёт или обновляет пользователя по ID.
	Upsert(ctx context.Context, u *model.User) error
	// ListApprovers возвращает администраторов, назначенных на проект.
	ListApprovers(ctx context.Context, projectID string) ([]*model.User, error)
}

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Upsert(ctx context.Context, u *model.User) error {
	projectIDs := u.ProjectIDs
	if projectIDs == nil {
		projectIDs = []string{}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, email, display_name, role, project_ids)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			role = EXCLUDED.role,
			project_ids = EXCLUDED.project_ids`,
		u.ID, u.Email, u.DisplayName, u.Role, projectIDs,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email %q занят", ErrConflict, u.Email)
		}
		return fmt.Errorf("ошибка сохранения пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) ListApprovers(ctx context.Context, projectID string) ([]*model.User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, email, display_name, role, project_ids
		FROM users
		WHERE role = $1 AND $2 = ANY (project_ids)
		ORDER BY email`, rbac.RoleAdmin, projectID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения администраторов проекта: %w", err)
	}
	defer rows.Close()

	var result []*model.User
	for rows.Next() {
		u := &model.User{}
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.ProjectIDs); err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}
