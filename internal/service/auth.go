// auth.go — сервис аутентификации: логин через трекинг-бэкенд,
// жизненный цикл сессии и пересоздание синхронизатора справочника.
// Синхронизатор привязан к сессии: логин создаёт новый экземпляр
// (и тем самым сбрасывает ограничитель загрузок), логаут его убирает.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/arturkryukov/rastreo/admin-console/internal/backend"
	"github.com/arturkryukov/rastreo/admin-console/internal/session"
)

// AuthService — аутентификация и владение текущим синхронизатором.
type AuthService struct {
	backend  *backend.Client
	sessions *session.Manager
	logger   *slog.Logger

	// Параметры новых синхронизаторов
	fetchCeiling         int
	refreshAfterMutation bool

	mu        sync.RWMutex
	directory *DirectoryService
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(
	b *backend.Client,
	sessions *session.Manager,
	fetchCeiling int,
	refreshAfterMutation bool,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		backend:              b,
		sessions:             sessions,
		fetchCeiling:         fetchCeiling,
		refreshAfterMutation: refreshAfterMutation,
		logger:               logger.With(slog.String("component", "auth_service")),
	}
}

// Login выполняет вход: аутентификация на бэкенде, трансформация
// записи пользователя, сохранение сессии и создание нового
// синхронизатора справочника.
func (a *AuthService) Login(ctx context.Context, username, password string) (*session.Session, error) {
	resp, err := a.backend.Login(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("вход: %w", err)
	}
	if !resp.Success || resp.Token == "" {
		return nil, fmt.Errorf("вход: бэкенд не выдал токен")
	}

	user, err := backend.TransformUser(resp.Usuario)
	if err != nil {
		return nil, fmt.Errorf("вход: запись пользователя не трансформируется: %w", err)
	}

	sess := &session.Session{
		User:         user,
		Token:        resp.Token,
		RefreshToken: resp.RefreshToken,
	}
	if err := a.sessions.Login(ctx, sess); err != nil {
		return nil, fmt.Errorf("сохранение сессии: %w", err)
	}

	a.resetDirectory(sess)

	return sess, nil
}

// Logout завершает сессию и убирает синхронизатор.
func (a *AuthService) Logout(ctx context.Context) error {
	if err := a.sessions.Logout(ctx); err != nil {
		return fmt.Errorf("выход: %w", err)
	}

	a.mu.Lock()
	a.directory = nil
	a.mu.Unlock()

	return nil
}

// Rehydrate восстанавливает сессию из хранилища на старте процесса.
// Для восстановленной сессии создаётся свежий синхронизатор —
// ограничитель загрузок начинает с нуля, как при логине.
func (a *AuthService) Rehydrate(ctx context.Context) (*session.Session, error) {
	sess, err := a.sessions.Rehydrate(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	a.resetDirectory(sess)

	return sess, nil
}

// Session возвращает текущую сессию или nil.
func (a *AuthService) Session() *session.Session {
	return a.sessions.Current()
}

// Directory возвращает синхронизатор текущей сессии или nil,
// если активной сессии нет.
func (a *AuthService) Directory() *DirectoryService {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.directory
}

// resetDirectory создаёт новый синхронизатор для сессии.
// Единственная точка сброса ограничителя загрузок.
func (a *AuthService) resetDirectory(sess *session.Session) {
	dir := NewDirectoryService(
		a.backend,
		sess.User.Roles,
		a.fetchCeiling,
		a.refreshAfterMutation,
		a.logger,
	)

	a.mu.Lock()
	a.directory = dir
	a.mu.Unlock()

	a.logger.Debug("синхронизатор справочника пересоздан",
		slog.String("username", sess.User.Username),
	)
}
