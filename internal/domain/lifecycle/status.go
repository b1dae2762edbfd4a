// Пакет lifecycle — конечный автомат статусов загрузки SOH.
//
// Основной жизненный цикл:
//   - Processing → Storing → Completed
//   - Processing | Storing → ValidationError | SystemError
//
// Удаление (только superuser, подтверждение администратором):
//   - Completed | ValidationError | SystemError → Pending Deletion
//   - Pending Deletion → статус до запроса (токен истёк или не подтверждён)
//
// Подтверждённое удаление не является статусом: запись перестаёт существовать.
package lifecycle

import "fmt"

// Status — статус Data Reference.
type Status string

const (
	// StatusProcessing — файл принят, идёт разбор и проверка заголовков
	StatusProcessing Status = "Processing"
	// StatusStoring — заголовки валидны, идёт запись строк
	StatusStoring Status = "Storing"
	// StatusCompleted — загрузка завершена, rowCount окончательный
	StatusCompleted Status = "Completed"
	// StatusValidationError — файл отклонён (пустой, нет колонок, нет валидных строк)
	StatusValidationError Status = "ValidationError"
	// StatusSystemError — непредвиденная ошибка во время обработки
	StatusSystemError Status = "SystemError"
	// StatusPendingDeletion — ожидает подтверждения удаления администратором
	StatusPendingDeletion Status = "Pending Deletion"
)

// validTransitions — матрица допустимых переходов.
// Ключ — текущий статус, значение — набор допустимых целевых статусов.
var validTransitions = map[Status]map[Status]bool{
	StatusProcessing: {StatusStoring: true, StatusValidationError: true, StatusSystemError: true},
	StatusStoring:    {StatusCompleted: true, StatusValidationError: true, StatusSystemError: true},

	StatusCompleted:       {StatusPendingDeletion: true},
	StatusValidationError: {StatusPendingDeletion: true},
	StatusSystemError:     {StatusPendingDeletion: true},

	// Откат запроса на удаление возвращает статус, бывший до запроса
	StatusPendingDeletion: {StatusCompleted: true, StatusValidationError: true, StatusSystemError: true},
}

// CanTransition проверяет, допустим ли переход from → to.
func CanTransition(from, to Status) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Transition проверяет переход и возвращает *TransitionError, если он недопустим.
func Transition(from, to Status) error {
	if !IsValid(from) {
		return &TransitionError{From: from, To: to, Message: fmt.Sprintf("неизвестный исходный статус %q", from)}
	}
	if !IsValid(to) {
		return &TransitionError{From: from, To: to, Message: fmt.Sprintf("неизвестный целевой статус %q", to)}
	}
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to, Message: fmt.Sprintf("переход %s → %s недопустим", from, to)}
	}
	return nil
}

// IsTerminal сообщает, завершена ли обработка загрузки.
// Из терминального статуса автоматических переходов нет.
func IsTerminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusValidationError, StatusSystemError:
		return true
	default:
		return false
	}
}

// IsValid проверяет, является ли значение известным статусом.
func IsValid(s Status) bool {
	_, ok := validTransitions[s]
	return ok
}

// Parse преобразует строку из БД в Status.
func Parse(s string) (Status, error) {
	st := Status(s)
	if !IsValid(st) {
		return "", fmt.Errorf("недопустимый статус: %q", s)
	}
	return st, nil
}

// TransitionError — ошибка перехода между статусами.
type TransitionError struct {
	From    Status
	To      Status
	Message string
}

func (e *TransitionError) Error() string {
	return "INVALID_TRANSITION: " + e.Message
}
