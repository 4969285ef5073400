// auth.go — сессионная авторизация HTTP API Admin Console.
// Консоль держит одну активную сессию оператора (как и исходный клиент);
// middleware сверяет Bearer token запроса с токеном активной сессии
// и помещает сессию в контекст запроса для downstream handlers.
package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/arturkryukov/rastreo/admin-console/internal/api/errors"
	"github.com/arturkryukov/rastreo/admin-console/internal/domain/roles"
	"github.com/arturkryukov/rastreo/admin-console/internal/session"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeySession — активная сессия в контексте запроса.
const ContextKeySession contextKey = "session"

// SessionAuth — middleware сессионной авторизации.
type SessionAuth struct {
	sessions *session.Manager
	logger   *slog.Logger
}

// NewSessionAuth создаёт middleware авторизации поверх менеджера сессий.
func NewSessionAuth(sessions *session.Manager, logger *slog.Logger) *SessionAuth {
	return &SessionAuth{
		sessions: sessions,
		logger:   logger.With(slog.String("component", "session_auth")),
	}
}

// Middleware возвращает HTTP middleware сессионной авторизации.
// Извлекает Bearer token, сверяет его с токеном активной сессии
// и помещает сессию в контекст.
func (a *SessionAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			tokenString := parts[1]
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			sess := a.sessions.Current()
			if !sess.IsAuthenticated() {
				apierrors.Unauthorized(w, "Нет активной сессии: выполните вход")
				return
			}

			if subtle.ConstantTimeCompare([]byte(tokenString), []byte(sess.Token)) != 1 {
				a.logger.Debug("Bearer token не совпадает с токеном активной сессии",
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный токен")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySession, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// --- Middleware проверки ролей ---

// RequireRole возвращает middleware, требующий одну из указанных ролей
// у пользователя активной сессии.
// Должен использоваться ПОСЛЕ SessionAuth.Middleware().
func RequireRole(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := SessionFromContext(r.Context())
			if !sess.IsAuthenticated() {
				apierrors.Unauthorized(w, "Отсутствует сессия в контексте")
				return
			}

			if !roles.ContainsAny(sess.User.Roles, required...) {
				apierrors.Forbidden(w, "Недостаточно прав: требуется роль "+strings.Join(required, " или "))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// SessionFromContext извлекает сессию из контекста запроса.
// Возвращает nil, если сессия не найдена.
func SessionFromContext(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(ContextKeySession).(*session.Session)
	return sess
}
