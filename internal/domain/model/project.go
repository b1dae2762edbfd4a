// Пакет model — доменные модели StockFlow.
package model

import "time"

// Project — проект инвентаризации (аудит).
// Хранится в таблице projects.
type Project struct {
	// ID — UUID проекта
	ID string
	// Name — уникальное имя проекта
	Name string
	// Description — описание (может быть пустым)
	Description string
	// CreatedBy — ID пользователя, создавшего проект
	CreatedBy string
	// CreatedAt — время создания
	CreatedAt time.Time
}

// User — пользователь StockFlow.
// Выдача сессий и пароли вне этого сервиса; здесь нужны только роль
// и назначенные проекты, чтобы найти администраторов для подтверждения удаления.
type User struct {
	ID          string
	Email       string
	DisplayName string
	Role        string
	ProjectIDs  []string
}
