// store.go — интерфейс долговременного хранилища сессии.
package session

import "context"

// Ключи хранилища сессии.
const (
	// KeyUser — сериализованная каноническая запись пользователя сессии
	KeyUser = "user"
	// KeyToken — access token бэкенда
	KeyToken = "token"
	// KeyRefreshToken — refresh token бэкенда
	KeyRefreshToken = "refreshToken"
)

// Store — key→value хранилище состояния сессии.
// Реализуется repository.SessionStateRepository (PostgreSQL).
// Отсутствие ключа — не ошибка: Get возвращает ok=false.
type Store interface {
	// Get возвращает значение по ключу; ok=false если ключа нет.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set создаёт или обновляет значение ключа.
	Set(ctx context.Context, key, value string) error
	// Delete удаляет ключ; отсутствие ключа ошибкой не считается.
	Delete(ctx context.Context, key string) error
}
