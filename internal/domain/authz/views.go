// Пакет authz — авторизация по ролям: таблица прав на вьюхи
// и проверка прав на управление пользователями.
// Таблица статическая и read-only; её порядок — это порядок навигации,
// он сохраняется в результатах и не интерпретируется как приоритет.
package authz

import (
	"github.com/arturkryukov/rastreo/admin-console/internal/domain/roles"
)

// ViewPermission — право доступа к одной вьюхе приложения.
type ViewPermission struct {
	// Ключ вьюхи (стабильный, для роутинга)
	Key string `json:"key"`
	// Отображаемое имя
	DisplayName string `json:"name"`
	// Роли, которым вьюха видна
	RolesAllowed []string `json:"rolesAllowed"`
}

// DefaultViews возвращает таблицу прав на вьюхи.
// Никогда не мутируется в рантайме; каждый вызов отдаёт свежий срез,
// чтобы вызывающий не мог испортить таблицу.
func DefaultViews() []ViewPermission {
	return []ViewPermission{
		{Key: "usuarios", DisplayName: "Usuarios", RolesAllowed: []string{roles.RoleAdmin}},
		{Key: "conductor", DisplayName: "Conductor", RolesAllowed: []string{roles.RoleConductor}},
		{Key: "vehiculos", DisplayName: "Vehículos", RolesAllowed: []string{roles.RoleAdmin, roles.RoleConductor, roles.RoleUsuario}},
		{Key: "configuracion", DisplayName: "Configuración", RolesAllowed: []string{roles.RoleAdmin}},
		{Key: "mapa", DisplayName: "Mapa", RolesAllowed: []string{roles.RoleAdmin, roles.RoleConductor, roles.RoleUsuario}},
	}
}

// VisibleViews возвращает подмножество таблицы, чьи rolesAllowed
// пересекаются с ролями сессии. Порядок таблицы сохраняется.
// Сравнение ролей идёт через нормализатор с обеих сторон.
func VisibleViews(table []ViewPermission, userRoles []string) []ViewPermission {
	visible := make([]ViewPermission, 0, len(table))
	for _, v := range table {
		if roles.Intersects(v.RolesAllowed, userRoles) {
			visible = append(visible, v)
		}
	}
	return visible
}
