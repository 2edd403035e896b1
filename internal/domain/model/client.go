// Пакет model — доменные модели Insurance API.
// Client и Policy — записи двух восходящих датасетов ("clients", "policies").
// Модели read-only: сервис не владеет данными, только кэширует их.
package model

// Роли клиентов (authorization tier).
const (
	// RoleAdmin — полный доступ ко всем lookup-операциям.
	RoleAdmin = "admin"
	// RoleUser — доступ только к операциям над clients.
	RoleUser = "user"
)

// Client — запись клиента из датасета "clients".
// Используется и как principal при аутентификации (email + id).
type Client struct {
	// ID — уникальный идентификатор клиента
	ID string `json:"id"`
	// Name — имя клиента
	Name string `json:"name"`
	// Email — электронная почта (используется как логин)
	Email string `json:"email"`
	// Role — роль клиента: admin или user
	Role string `json:"role"`
}
