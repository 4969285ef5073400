// Пакет session — сессия администратора: токены бэкенда и каноническая
// запись текущего пользователя. Сессия создаётся на логине, живёт в
// долговременном key→value хранилище, регидрируется на старте процесса
// и очищается на логауте. isAuthenticated — производное свойство,
// отдельно не хранится: хранение флага рядом с данными даёт два
// источника правды, которые расходятся.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/arturkryukov/rastreo/admin-console/internal/domain/model"
)

// ErrNotAuthenticated — операция требует активной сессии, а её нет.
var ErrNotAuthenticated = errors.New("нет активной сессии")

// Session — состояние одной сессии администратора.
type Session struct {
	// Каноническая запись текущего пользователя
	User *model.User
	// Access token бэкенда
	Token string
	// Refresh token бэкенда
	RefreshToken string
}

// IsAuthenticated — производное свойство: сессия действительна, когда
// есть и пользователь, и токен.
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.User != nil && s.Token != ""
}

// Manager владеет текущей сессией процесса: создаёт её на логине,
// восстанавливает из хранилища на старте, очищает на логауте.
type Manager struct {
	store     Store
	validator *TokenValidator // nil — проверка подписи не настроена
	logger    *slog.Logger

	mu      sync.RWMutex
	current *Session
}

// NewManager создаёт менеджер сессии.
// validator может быть nil: тогда при регидрации проверяется только
// срок действия токена, без подписи.
func NewManager(store Store, validator *TokenValidator, logger *slog.Logger) *Manager {
	return &Manager{
		store:     store,
		validator: validator,
		logger:    logger.With(slog.String("component", "session_manager")),
	}
}

// Current возвращает текущую сессию или nil, если её нет.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Token возвращает access token активной сессии.
// Реализует backend.TokenProvider.
func (m *Manager) Token(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.current.IsAuthenticated() {
		return "", ErrNotAuthenticated
	}
	return m.current.Token, nil
}

// Login сохраняет новую сессию в хранилище и делает её текущей.
func (m *Manager) Login(ctx context.Context, sess *Session) error {
	if !sess.IsAuthenticated() {
		return fmt.Errorf("сессия неполна: нужны пользователь и токен")
	}

	userJSON, err := json.Marshal(sess.User)
	if err != nil {
		return fmt.Errorf("сериализация пользователя сессии: %w", err)
	}

	if err := m.store.Set(ctx, KeyUser, string(userJSON)); err != nil {
		return fmt.Errorf("сохранение пользователя сессии: %w", err)
	}
	if err := m.store.Set(ctx, KeyToken, sess.Token); err != nil {
		return fmt.Errorf("сохранение токена сессии: %w", err)
	}
	if err := m.store.Set(ctx, KeyRefreshToken, sess.RefreshToken); err != nil {
		return fmt.Errorf("сохранение refresh-токена: %w", err)
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	m.logger.Info("сессия создана",
		slog.String("username", sess.User.Username),
		slog.Any("roles", sess.User.Roles),
	)

	return nil
}

// Logout очищает хранилище и сбрасывает текущую сессию.
func (m *Manager) Logout(ctx context.Context) error {
	for _, key := range []string{KeyUser, KeyToken, KeyRefreshToken} {
		if err := m.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("очистка ключа %s: %w", key, err)
		}
	}

	m.mu.Lock()
	username := ""
	if m.current.IsAuthenticated() {
		username = m.current.User.Username
	}
	m.current = nil
	m.mu.Unlock()

	m.logger.Info("сессия завершена", slog.String("username", username))

	return nil
}

// Rehydrate восстанавливает сессию из хранилища на старте процесса.
// Толерантна к неполному состоянию: отсутствие любого ключа, битый
// JSON пользователя или невалидный токен означают "не залогинен",
// а не ошибку. Ошибка возвращается только при сбое самого хранилища.
// Возвращает восстановленную сессию или nil.
func (m *Manager) Rehydrate(ctx context.Context) (*Session, error) {
	userJSON, okUser, err := m.store.Get(ctx, KeyUser)
	if err != nil {
		return nil, fmt.Errorf("чтение пользователя сессии: %w", err)
	}
	token, okToken, err := m.store.Get(ctx, KeyToken)
	if err != nil {
		return nil, fmt.Errorf("чтение токена сессии: %w", err)
	}
	if !okUser || !okToken || token == "" {
		m.logger.Info("сохранённой сессии нет")
		return nil, nil
	}

	var user model.User
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		m.logger.Warn("битая запись пользователя в хранилище, сессия сброшена",
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	// Сохранённый пользователь без поля roles — пустой набор ролей,
	// не падение
	if user.Roles == nil {
		user.Roles = []string{}
	}

	if m.validator != nil {
		if err := m.validator.Validate(ctx, token); err != nil {
			m.logger.Warn("сохранённый токен не прошёл валидацию, сессия сброшена",
				slog.String("error", err.Error()),
			)
			return nil, nil
		}
	} else if TokenExpired(token) {
		m.logger.Warn("сохранённый токен просрочен, сессия сброшена")
		return nil, nil
	}

	refresh, _, err := m.store.Get(ctx, KeyRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("чтение refresh-токена: %w", err)
	}

	sess := &Session{User: &user, Token: token, RefreshToken: refresh}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	m.logger.Info("сессия восстановлена",
		slog.String("username", user.Username),
		slog.Any("roles", user.Roles),
	)

	return sess, nil
}
