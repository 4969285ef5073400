// Пакет roles — канонизация ролей пользователей.
// Бэкенд отдаёт роли в двух представлениях: плоские строки ("ADMIN")
// и обёрнутые объекты назначения роли ({"rol": {"nombre": "admin"}}).
// Все сравнения ролей в системе обязаны проходить через Normalize
// с обеих сторон — прямое сравнение сырого токена роли с канонической
// формой считается дефектом.
package roles

import (
	"fmt"
	"strings"
)

// Канонические теги ролей (uppercase).
const (
	RoleAdmin      = "ADMIN"
	RoleConductor  = "CONDUCTOR"
	RoleSupervisor = "SUPERVISOR"
	RoleUsuario    = "USUARIO"
)

// Name приводит сырое представление роли к читаемому имени.
// Строки проходят как есть, обёрнутые объекты разворачиваются через
// вложенное поле rol.nombre, всё остальное приводится к строке.
func Name(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case map[string]any:
		if rol, ok := v["rol"].(map[string]any); ok {
			if nombre, ok := rol["nombre"].(string); ok {
				return nombre
			}
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", raw)
	}
}

// Normalize канонизирует гетерогенный набор ролей: каждое значение
// сводится к имени через Name, переводится в uppercase и добавляется
// в результат без дубликатов. Порядок первого появления сохраняется.
// Пустой или nil вход даёт пустой набор, не ошибку.
func Normalize(raw []any) []string {
	if len(raw) == 0 {
		return []string{}
	}

	seen := make(map[string]struct{}, len(raw))
	result := make([]string, 0, len(raw))
	for _, r := range raw {
		name := strings.ToUpper(strings.TrimSpace(Name(r)))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		result = append(result, name)
	}
	return result
}

// NormalizeStrings канонизирует набор строковых ролей.
func NormalizeStrings(raw []string) []string {
	anys := make([]any, len(raw))
	for i, r := range raw {
		anys[i] = r
	}
	return Normalize(anys)
}

// Contains проверяет членство роли в наборе без учёта регистра.
// Обе стороны сравнения нормализуются.
func Contains(set []string, role string) bool {
	want := strings.ToUpper(strings.TrimSpace(Name(role)))
	for _, r := range NormalizeStrings(set) {
		if r == want {
			return true
		}
	}
	return false
}

// ContainsAny проверяет, пересекается ли набор ролей хотя бы с одной
// из указанных.
func ContainsAny(set []string, wanted ...string) bool {
	for _, w := range wanted {
		if Contains(set, w) {
			return true
		}
	}
	return false
}

// Intersects проверяет пересечение двух наборов ролей (без учёта регистра).
func Intersects(a, b []string) bool {
	normB := NormalizeStrings(b)
	for _, r := range NormalizeStrings(a) {
		for _, w := range normB {
			if r == w {
				return true
			}
		}
	}
	return false
}
