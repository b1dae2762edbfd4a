// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт состояния или дублирующийся ресурс.
	ErrConflict = errors.New("конфликт")
	// ErrForbidden — недостаточно прав.
	ErrForbidden = errors.New("доступ запрещён")
	// ErrLocked — загрузка заблокирована от удаления.
	ErrLocked = errors.New("загрузка заблокирована")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrInvalidToken — токен подтверждения не найден или уже использован.
	ErrInvalidToken = errors.New("недействительный токен подтверждения")
	// ErrTokenExpired — срок токена подтверждения истёк.
	ErrTokenExpired = errors.New("срок токена подтверждения истёк")
)
