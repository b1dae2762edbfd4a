// Пакет rbac — роли StockFlow и правила доступа к операциям.
// superuser — верхний административный уровень, не привязан к проекту.
// Остальные роли работают только в рамках выбранного проекта.
package rbac

// Роли в порядке возрастания привилегий.
const (
	RoleCounter   = "counter"
	RoleClient    = "client"
	RoleAdmin     = "admin"
	RoleSuperuser = "superuser"
)

// roleWeight — вес роли для сравнения.
// Чем выше вес, тем больше привилегий.
var roleWeight = map[string]int{
	RoleCounter:   1,
	RoleClient:    2,
	RoleAdmin:     3,
	RoleSuperuser: 4,
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

// IsSuperuser — роль верхнего административного уровня.
func IsSuperuser(role string) bool {
	return role == RoleSuperuser
}

// CanIngest — загрузка SOH-файлов разрешена superuser и admin.
func CanIngest(role string) bool {
	return role == RoleSuperuser || role == RoleAdmin
}

// ProjectScoped сообщает, ограничена ли роль выбранным проектом.
func ProjectScoped(role string) bool {
	return IsValidRole(role) && !IsSuperuser(role)
}

// AtLeast проверяет, что роль не ниже минимальной.
// Неизвестная роль не проходит ни одну проверку.
func AtLeast(role, minimum string) bool {
	w, ok := roleWeight[role]
	if !ok {
		return false
	}
	return w >= roleWeight[minimum]
}

// HasAnyRole проверяет совпадение роли с одной из указанных.
func HasAnyRole(role string, roles ...string) bool {
	for _, r := range roles {
		if role == r {
			return true
		}
	}
	return false
}
