// Пакет server — HTTP-сервер Admin Console с graceful shutdown.
// Без TLS — HTTP внутри периметра, TLS termination на reverse proxy.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arturkryukov/rastreo/admin-console/internal/api/handlers"
	"github.com/arturkryukov/rastreo/admin-console/internal/api/middleware"
	"github.com/arturkryukov/rastreo/admin-console/internal/config"
	"github.com/arturkryukov/rastreo/admin-console/internal/domain/roles"
)

// Server — HTTP-сервер Admin Console.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// sessionAuth — сессионная авторизация (может быть nil для тестирования без auth).
func New(cfg *config.Config, logger *slog.Logger, handler *handlers.APIHandler, sessionAuth *middleware.SessionAuth) *Server {
	router := NewRouter(logger, handler, sessionAuth)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер со всеми маршрутами и middleware.
// Вынесен отдельно, чтобы тесты могли гонять запросы через httptest.
func NewRouter(logger *slog.Logger, handler *handlers.APIHandler, sessionAuth *middleware.SessionAuth) chi.Router {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Сессионная авторизация с исключениями для публичных endpoints.
	// Health и metrics опрашиваются инфраструктурой напрямую,
	// логин по определению выполняется без сессии.
	if sessionAuth != nil {
		router.Use(authWithExclusions(sessionAuth, "/health/", "/metrics", "/api/v1/auth/login"))
	}

	// Health и метрики
	router.Get("/health/live", handler.HealthLive)
	router.Get("/health/ready", handler.HealthReady)
	router.Get("/metrics", handler.GetMetrics)

	// Аутентификация
	router.Post("/api/v1/auth/login", handler.Login)
	router.Post("/api/v1/auth/logout", handler.Logout)
	router.Get("/api/v1/auth/me", handler.GetCurrentUser)

	// Видимые представления
	router.Get("/api/v1/views", handler.ListViews)

	// Справочник пользователей
	router.Route("/api/v1/usuarios", func(r chi.Router) {
		r.Get("/", handler.ListUsers)
		r.Get("/{id}", handler.GetUser)
		r.Post("/refresh", handler.RefreshUsers)

		// Мутации — только для администраторов
		r.With(middleware.RequireRole(roles.RoleAdmin)).Post("/", handler.CreateUser)
		r.With(middleware.RequireRole(roles.RoleAdmin)).Put("/{id}", handler.UpdateUser)
		r.With(middleware.RequireRole(roles.RoleAdmin)).Delete("/{id}", handler.DeleteUser)
	})

	return router
}

// authWithExclusions оборачивает SessionAuth.Middleware(), пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без авторизации.
func authWithExclusions(sessionAuth *middleware.SessionAuth, excludePrefixes ...string) func(http.Handler) http.Handler {
	authMiddleware := sessionAuth.Middleware()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Проверяем, начинается ли путь с исключённого префикса
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			// Применяем сессионную авторизацию
			authMiddleware(next).ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
