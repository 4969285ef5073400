// session_state.go — key→value хранилище состояния сессии.
// Go-рендеринг долговременного клиентского хранилища: ключи user,
// token, refreshToken переживают рестарт процесса.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// SessionState — запись из таблицы session_state.
type SessionState struct {
	// Ключ состояния (user, token, refreshToken)
	Key string
	// Значение (сериализованный JSON или токен как есть)
	Value string
	// Время последнего обновления
	UpdatedAt time.Time
}

// SessionStateRepository — интерфейс для таблицы session_state.
type SessionStateRepository interface {
	// Get возвращает запись по ключу. Если не найдена — ErrNotFound.
	Get(ctx context.Context, key string) (*SessionState, error)
	// Set создаёт или обновляет запись (upsert).
	Set(ctx context.Context, key, value string) error
	// Delete удаляет запись по ключу; отсутствие ключа — не ошибка.
	Delete(ctx context.Context, key string) error
	// List возвращает все записи, отсортированные по ключу.
	List(ctx context.Context) ([]SessionState, error)
}

// sessionStateRepo — реализация SessionStateRepository.
type sessionStateRepo struct {
	db DBTX
}

// NewSessionStateRepository создаёт репозиторий состояния сессии.
func NewSessionStateRepository(db DBTX) SessionStateRepository {
	return &sessionStateRepo{db: db}
}

// Get возвращает запись по ключу.
func (r *sessionStateRepo) Get(ctx context.Context, key string) (*SessionState, error) {
	query := `
		SELECT key, value, updated_at
		FROM session_state
		WHERE key = $1`

	s := &SessionState{}
	err := r.db.QueryRow(ctx, query, key).Scan(&s.Key, &s.Value, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения session_state[%s]: %w", key, err)
	}
	return s, nil
}

// Set создаёт или обновляет запись (INSERT ... ON CONFLICT DO UPDATE).
func (r *sessionStateRepo) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO session_state (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
			updated_at = NOW()`

	_, err := r.db.Exec(ctx, query, key, value)
	if err != nil {
		return fmt.Errorf("ошибка сохранения session_state[%s]: %w", key, err)
	}
	return nil
}

// Delete удаляет запись по ключу. Отсутствие ключа — не ошибка:
// логаут на пустом хранилище должен проходить.
func (r *sessionStateRepo) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM session_state WHERE key = $1`
	if _, err := r.db.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("ошибка удаления session_state[%s]: %w", key, err)
	}
	return nil
}

// List возвращает все записи, отсортированные по ключу.
func (r *sessionStateRepo) List(ctx context.Context) ([]SessionState, error) {
	query := `
		SELECT key, value, updated_at
		FROM session_state
		ORDER BY key`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка session_state: %w", err)
	}
	defer rows.Close()

	var states []SessionState
	for rows.Next() {
		var s SessionState
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования session_state: %w", err)
		}
		states = append(states, s)
	}
	return states, rows.Err()
}

// SessionStore — адаптер SessionStateRepository к интерфейсу
// session.Store: отсутствие ключа превращается из ErrNotFound
// в ok=false.
type SessionStore struct {
	repo SessionStateRepository
}

// NewSessionStore создаёт адаптер хранилища сессии.
func NewSessionStore(repo SessionStateRepository) *SessionStore {
	return &SessionStore{repo: repo}
}

// Get возвращает значение по ключу; ok=false если ключа нет.
func (s *SessionStore) Get(ctx context.Context, key string) (string, bool, error) {
	state, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return state.Value, true, nil
}

// Set создаёт или обновляет значение ключа.
func (s *SessionStore) Set(ctx context.Context, key, value string) error {
	return s.repo.Set(ctx, key, value)
}

// Delete удаляет ключ.
func (s *SessionStore) Delete(ctx context.Context, key string) error {
	return s.repo.Delete(ctx, key)
}
