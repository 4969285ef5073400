// views.go — обработчик /api/v1/views.
// GET /api/v1/views — представления, видимые пользователю текущей сессии.
package handlers

import (
	"net/http"

	apierrors "github.com/arturkryukov/rastreo/admin-console/internal/api/errors"
	"github.com/arturkryukov/rastreo/admin-console/internal/api/middleware"
	"github.com/arturkryukov/rastreo/admin-console/internal/domain/authz"
)

// viewsResponse — ответ со списком видимых представлений.
type viewsResponse struct {
	Views []authz.ViewPermission `json:"views"`
}

// ListViews — GET /api/v1/views.
// Возвращает представления консоли, доступные ролям текущей сессии,
// в каноническом порядке таблицы прав.
func (h *APIHandler) ListViews(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	if !sess.IsAuthenticated() {
		apierrors.Unauthorized(w, "Отсутствует сессия в контексте")
		return
	}

	visible := authz.VisibleViews(authz.DefaultViews(), sess.User.Roles)

	writeJSON(w, http.StatusOK, viewsResponse{Views: visible})
}
