// users.go — обработчики /api/v1/usuarios endpoints.
// GET    /api/v1/usuarios — справочник пользователей (с фильтрами)
// POST   /api/v1/usuarios — создание пользователя
// POST   /api/v1/usuarios/refresh — принудительная перезагрузка справочника
// GET    /api/v1/usuarios/{id} — профиль пользователя (через кэш)
// PUT    /api/v1/usuarios/{id} — обновление пользователя
// DELETE /api/v1/usuarios/{id} — удаление пользователя
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/rastreo/admin-console/internal/api/errors"
	"github.com/arturkryukov/rastreo/admin-console/internal/api/middleware"
	"github.com/arturkryukov/rastreo/admin-console/internal/backend"
	"github.com/arturkryukov/rastreo/admin-console/internal/domain/authz"
	"github.com/arturkryukov/rastreo/admin-console/internal/domain/model"
	"github.com/arturkryukov/rastreo/admin-console/internal/domain/roles"
	"github.com/arturkryukov/rastreo/admin-console/internal/service"
)

// guardView — состояние ограничителя загрузок в ответе API.
type guardView struct {
	AttemptsMade int  `json:"attempts_made"`
	Ceiling      int  `json:"ceiling"`
	InFlight     bool `json:"in_flight"`
}

// usersListResponse — ответ на запрос справочника.
type usersListResponse struct {
	Data  []*model.User `json:"data"`
	Total int           `json:"total"`
	Guard guardView     `json:"guard"`
}

// refreshResponse — ответ на принудительную перезагрузку.
type refreshResponse struct {
	Total    int       `json:"total"`
	Skipped  int       `json:"skipped"`
	SyncedAt string    `json:"synced_at,omitempty"`
	Guard    guardView `json:"guard"`
}

// directory возвращает синхронизатор текущей сессии
// или пишет 401, если сессии нет.
func (h *APIHandler) directory(w http.ResponseWriter) *service.DirectoryService {
	dir := h.auth.Directory()
	if dir == nil {
		apierrors.Unauthorized(w, "Нет активной сессии")
	}
	return dir
}

// guardOf снимает состояние ограничителя для ответа.
func guardOf(dir *service.DirectoryService) guardView {
	g := dir.Guard()
	return guardView{
		AttemptsMade: g.AttemptsMade,
		Ceiling:      g.Ceiling,
		InFlight:     g.InFlight,
	}
}

// ListUsers — GET /api/v1/usuarios.
// Лениво загружает справочник (если он пуст и потолок не исчерпан)
// и возвращает отфильтрованный список.
// Фильтры: ?nombre= (подстрока полного имени), ?username= (подстрока),
// ?rol= (каноническая роль).
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	dir := h.directory(w)
	if dir == nil {
		return
	}

	// Ленивая загрузка: при исчерпанном потолке отдаём то, что есть
	if _, err := dir.FetchAll(r.Context()); err != nil {
		writeBackendError(w, err)
		return
	}

	users := filterUsers(dir.Users(), r.URL.Query().Get("nombre"),
		r.URL.Query().Get("username"), r.URL.Query().Get("rol"))

	writeJSON(w, http.StatusOK, usersListResponse{
		Data:  users,
		Total: len(users),
		Guard: guardOf(dir),
	})
}

// filterUsers применяет фильтры списка к срезу справочника.
func filterUsers(users []*model.User, nombre, username, rol string) []*model.User {
	nombre = strings.ToLower(strings.TrimSpace(nombre))
	username = strings.ToLower(strings.TrimSpace(username))

	result := make([]*model.User, 0, len(users))
	for _, u := range users {
		if nombre != "" && !strings.Contains(strings.ToLower(u.FullName()), nombre) {
			continue
		}
		if username != "" && !strings.Contains(strings.ToLower(u.Username), username) {
			continue
		}
		if rol != "" && !roles.Contains(u.Roles, rol) {
			continue
		}
		result = append(result, u)
	}
	return result
}

// RefreshUsers — POST /api/v1/usuarios/refresh.
// Принудительная перезагрузка справочника: игнорирует признак
// «уже загружен», но уважает потолок попыток и загрузку в полёте.
func (h *APIHandler) RefreshUsers(w http.ResponseWriter, r *http.Request) {
	dir := h.directory(w)
	if dir == nil {
		return
	}

	result, err := dir.Refresh(r.Context())
	if err != nil {
		writeBackendError(w, err)
		return
	}

	resp := refreshResponse{Guard: guardOf(dir)}
	if result != nil {
		resp.Total = result.Total
		resp.Skipped = result.Skipped
		resp.SyncedAt = result.SyncedAt.UTC().Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetUser — GET /api/v1/usuarios/{id}.
// Профиль пользователя через кэш профилей.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	user, err := h.profiles.Get(r.Context(), id)
	if err != nil {
		writeBackendError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// CreateUser — POST /api/v1/usuarios.
// Создание пользователя на бэкенде и оптимистичное добавление в справочник.
// Доступ: ADMIN (гарантируется middleware).
func (h *APIHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	dir := h.directory(w)
	if dir == nil {
		return
	}

	var payload backend.UserPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса: "+err.Error())
		return
	}
	if payload.Username == "" {
		apierrors.ValidationError(w, "требуется username")
		return
	}

	user, err := dir.Create(r.Context(), &payload)
	if err != nil {
		writeBackendError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// UpdateUser — PUT /api/v1/usuarios/{id}.
// Обновление пользователя на бэкенде и в справочнике.
// Управление собственной записью запрещено.
func (h *APIHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	dir, ok := h.manageable(w, r, id)
	if !ok {
		return
	}

	var payload backend.UserPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса: "+err.Error())
		return
	}

	user, err := dir.Update(r.Context(), id, &payload)
	if err != nil {
		writeBackendError(w, err)
		return
	}

	h.profiles.Invalidate(id)
	writeJSON(w, http.StatusOK, user)
}

// DeleteUser — DELETE /api/v1/usuarios/{id}.
// Удаление пользователя на бэкенде и из справочника.
// Управление собственной записью запрещено.
func (h *APIHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	dir, ok := h.manageable(w, r, id)
	if !ok {
		return
	}

	if err := dir.Remove(r.Context(), id); err != nil {
		writeBackendError(w, err)
		return
	}

	h.profiles.Invalidate(id)
	w.WriteHeader(http.StatusNoContent)
}

// manageable проверяет право текущей сессии управлять записью id.
// Возвращает синхронизатор и признак успеха; при отказе пишет ошибку.
func (h *APIHandler) manageable(w http.ResponseWriter, r *http.Request, id int64) (*service.DirectoryService, bool) {
	sess := middleware.SessionFromContext(r.Context())
	if !sess.IsAuthenticated() {
		apierrors.Unauthorized(w, "Отсутствует сессия в контексте")
		return nil, false
	}

	if !authz.CanManage(sess.User, &model.User{ID: id}) {
		apierrors.Forbidden(w, "Управление этой записью запрещено")
		return nil, false
	}

	dir := h.directory(w)
	if dir == nil {
		return nil, false
	}
	return dir, true
}

// userIDParam извлекает и валидирует числовой {id} из пути.
func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		apierrors.ValidationError(w, "некорректный идентификатор пользователя: "+raw)
		return 0, false
	}
	return id, true
}
