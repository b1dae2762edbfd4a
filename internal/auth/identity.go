// Пакет auth — проверка сессии и явный контекст аутентификации.
// Cookie сессии разбирается один раз в middleware; обработчики и сервисы
// получают готовый *Identity и никогда не читают cookie сами.
package auth

import (
	"context"

	"github.com/bigkaa/stockflow/internal/domain/rbac"
)

type contextKey string

const contextKeyIdentity contextKey = "auth_identity"

// Identity — аутентифицированный пользователь текущего запроса.
type Identity struct {
	// UserID — sub из session JWT
	UserID string
	// Email — адрес пользователя
	Email string
	// DisplayName — отображаемое имя
	DisplayName string
	// Role — роль StockFlow (superuser, admin, client, counter)
	Role string
	// SelectedProjectID — проект из cookie выбора проекта (может быть пустым)
	SelectedProjectID string
}

// IsSuperuser сообщает, имеет ли пользователь роль superuser.
func (i *Identity) IsSuperuser() bool {
	return i != nil && rbac.IsSuperuser(i.Role)
}

// CanAccessProject проверяет доступ к проекту.
// superuser видит все проекты, остальные роли только выбранный.
func (i *Identity) CanAccessProject(projectID string) bool {
	if i == nil || projectID == "" {
		return false
	}
	if i.IsSuperuser() {
		return true
	}
	return rbac.ProjectScoped(i.Role) && i.SelectedProjectID == projectID
}

// WithIdentity помещает Identity в контекст.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, id)
}

// FromContext извлекает Identity из контекста. Возвращает nil, если её нет.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextKeyIdentity).(*Identity)
	return id
}
