// handler.go — основной обработчик HTTP API Admin Console.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/arturkryukov/rastreo/admin-console/internal/api/errors"
	"github.com/arturkryukov/rastreo/admin-console/internal/backend"
	"github.com/arturkryukov/rastreo/admin-console/internal/service"
)

// APIHandler — основной обработчик API Admin Console.
type APIHandler struct {
	health   *HealthHandler
	auth     *service.AuthService
	profiles *service.ProfileCache
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	auth *service.AuthService,
	profiles *service.ProfileCache,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:   health,
		auth:     auth,
		profiles: profiles,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeBackendError маппит ошибку обращения к трекинг-бэкенду
// в стандартный ответ API.
func writeBackendError(w http.ResponseWriter, err error) {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusNotFound:
			apierrors.NotFound(w, apiErr.Message)
		case apiErr.StatusCode >= http.StatusInternalServerError:
			apierrors.BackendUnavailable(w, apiErr.Message)
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			apierrors.Unauthorized(w, apiErr.Message)
		default:
			apierrors.ValidationError(w, apiErr.Message)
		}
		return
	}

	if errors.Is(err, service.ErrNotFound) {
		apierrors.NotFound(w, err.Error())
		return
	}
	if errors.Is(err, service.ErrValidation) {
		apierrors.ValidationError(w, err.Error())
		return
	}

	// Сетевые и прочие ошибки — бэкенд недоступен
	apierrors.BackendUnavailable(w, "трекинг-бэкенд недоступен: "+err.Error())
}
