// auth.go — обработчики /api/v1/auth endpoints.
// POST /api/v1/auth/login — вход через трекинг-бэкенд
// POST /api/v1/auth/logout — завершение сессии
// GET  /api/v1/auth/me — пользователь текущей сессии
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	apierrors "github.com/arturkryukov/rastreo/admin-console/internal/api/errors"
	"github.com/arturkryukov/rastreo/admin-console/internal/api/middleware"
	"github.com/arturkryukov/rastreo/admin-console/internal/domain/model"
)

// loginRequest — тело запроса на вход.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse — ответ на успешный вход.
type loginResponse struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	Usuario      *model.User `json:"usuario"`
}

// Login — POST /api/v1/auth/login.
// Аутентификация на трекинг-бэкенде и создание сессии консоли.
// Endpoint не требует авторизации.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса: "+err.Error())
		return
	}

	if req.Username == "" || req.Password == "" {
		apierrors.ValidationError(w, "требуются username и password")
		return
	}

	sess, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Warn("Вход не выполнен",
			slog.String("username", req.Username),
			slog.String("error", err.Error()),
		)
		writeBackendError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:        sess.Token,
		RefreshToken: sess.RefreshToken,
		Usuario:      sess.User,
	})
}

// Logout — POST /api/v1/auth/logout.
// Завершает сессию и очищает сохранённое состояние.
func (h *APIHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context()); err != nil {
		h.logger.Error("Ошибка завершения сессии", slog.String("error", err.Error()))
		apierrors.InternalError(w, "не удалось завершить сессию")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetCurrentUser — GET /api/v1/auth/me.
// Возвращает пользователя активной сессии.
func (h *APIHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	if !sess.IsAuthenticated() {
		apierrors.Unauthorized(w, "Отсутствует сессия в контексте")
		return
	}

	writeJSON(w, http.StatusOK, sess.User)
}
