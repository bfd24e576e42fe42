package domain

// Role — роль действующего лица, определённая внешним identity-коллаборатором.
// Движок не проверяет аутентификацию, роль приходит из контекста вызова.
type Role string

const (
	// RoleCustomer — клиент: создаёт офферы, торгуется, отменяет, запрашивает возврат.
	RoleCustomer Role = "customer"
	// RoleTailor — портной: торгуется, принимает, отклоняет, ведёт заказ по производству.
	RoleTailor Role = "tailor"
	// RoleAdmin — администратор: разрешает заявки на возврат.
	RoleAdmin Role = "admin"
	// RoleSystem — системный актор (платёжный коллаборатор и внутренние переходы).
	RoleSystem Role = "system"
)

// Valid проверяет, что роль относится к поддерживаемым значениям.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleTailor, RoleAdmin, RoleSystem:
		return true
	default:
		return false
	}
}

// Party — ссылка на участника переговоров.
type Party struct {
	ID   string
	Role Role
}

// Counterpart возвращает роль противоположной стороны торга.
// Для ролей вне пары клиент/портной возвращает пустую роль.
func Counterpart(role Role) Role {
	switch role {
	case RoleCustomer:
		return RoleTailor
	case RoleTailor:
		return RoleCustomer
	default:
		return ""
	}
}
