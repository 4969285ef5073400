// gate.go — проверка прав на управление записями справочника.
package authz

import (
	"github.com/arturkryukov/rastreo/admin-console/internal/domain/model"
	"github.com/arturkryukov/rastreo/admin-console/internal/domain/roles"
)

// CanManage отвечает, может ли текущий пользователь редактировать или
// удалять целевого. Требуется роль ADMIN, и целевая запись не должна
// быть собственной записью сессии: привилегированный пользователь не
// управляет собой через эту поверхность. Проверка выполняется
// независимо от того, что решил отрисовать UI — скрытая кнопка не
// является границей авторизации.
//
// Функция чистая: одинаковые вход — одинаковый ответ, никакого
// обращения к сети или хранилищу.
func CanManage(current, target *model.User) bool {
	if current == nil || target == nil {
		return false
	}
	if !roles.Contains(current.Roles, roles.RoleAdmin) {
		return false
	}
	return current.ID != target.ID
}
