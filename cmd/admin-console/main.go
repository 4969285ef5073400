// Точка входа Admin Console — консоль администрирования системы Rastreo.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// создаёт клиент трекинг-бэкенда и сервисный слой, восстанавливает сессию
// из хранилища, запускает topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/arturkryukov/rastreo/admin-console/internal/api/handlers"
	"github.com/arturkryukov/rastreo/admin-console/internal/api/middleware"
	"github.com/arturkryukov/rastreo/admin-console/internal/backend"
	"github.com/arturkryukov/rastreo/admin-console/internal/config"
	"github.com/arturkryukov/rastreo/admin-console/internal/database"
	"github.com/arturkryukov/rastreo/admin-console/internal/repository"
	"github.com/arturkryukov/rastreo/admin-console/internal/server"
	"github.com/arturkryukov/rastreo/admin-console/internal/service"
	"github.com/arturkryukov/rastreo/admin-console/internal/session"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Admin Console запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("backend_url", cfg.BackendURL),
	)

	if os.Getenv("AC_DEPHEALTH_GROUP") == "" {
		logger.Warn("AC_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL идёт через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. HTTP-клиент бэкенда (с кастомным CA при необходимости)
	httpClient := &http.Client{Timeout: cfg.BackendTimeout}
	if cfg.BackendCACertPath != "" {
		httpClient, err = buildHTTPClientWithCA(cfg)
		if err != nil {
			logger.Error("Ошибка загрузки CA-сертификата",
				slog.String("path", cfg.BackendCACertPath),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		logger.Info("CA-сертификат загружен", slog.String("path", cfg.BackendCACertPath))
	}

	// 6. Хранилище состояния сессии в PostgreSQL
	sessionRepo := repository.NewSessionStateRepository(pool)
	sessionStore := repository.NewSessionStore(sessionRepo)

	// 7. Валидатор токенов (опционально, если задан JWKS endpoint).
	// Без него при восстановлении сессии проверяется только exp.
	var validator *session.TokenValidator
	if cfg.JWKSURL != "" {
		validator, err = session.NewTokenValidator(
			cfg.JWKSURL,
			cfg.BackendCACertPath,
			cfg.JWKSRefreshInterval,
			cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			logger.Error("Ошибка создания валидатора токенов", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Валидатор токенов инициализирован", slog.String("jwks_url", cfg.JWKSURL))
	} else {
		logger.Info("AC_JWKS_URL не задан, подпись токенов при восстановлении сессии не проверяется")
	}

	// 8. Менеджер сессий и клиент трекинг-бэкенда.
	// Клиент берёт Bearer token из активной сессии.
	sessionMgr := session.NewManager(sessionStore, validator, logger)
	client := backend.New(cfg.BackendURL, cfg.BackendHealthPath, httpClient, sessionMgr.Token, logger)

	// 9. Services
	authSvc := service.NewAuthService(
		client, sessionMgr,
		cfg.FetchMaxAttempts, cfg.RefreshAfterMutation,
		logger,
	)
	profileCache := service.NewProfileCache(
		client,
		cfg.ProfileCacheSize, cfg.ProfileCacheTTL,
		logger,
	)

	// 10. Восстановление сессии из хранилища
	if sess, rehydrateErr := authSvc.Rehydrate(ctx); rehydrateErr != nil {
		logger.Warn("Ошибка восстановления сессии", slog.String("error", rehydrateErr.Error()))
	} else if sess != nil {
		logger.Info("Сессия восстановлена", slog.String("username", sess.User.Username))
	} else {
		logger.Info("Сохранённой сессии нет, требуется вход")
	}

	// 11. topologymetrics — мониторинг зависимостей (PostgreSQL + бэкенд)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"admin-console",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.BackendURL,
		cfg.BackendHealthPath,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		dephealthSvc = nil
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 12. Readiness checkers (PostgreSQL + трекинг-бэкенд).
	// Типизированный nil в интерфейс не заворачиваем.
	pgChecker := database.NewReadinessChecker(pool)
	var depHealth handlers.DependencyHealth
	if dephealthSvc != nil {
		depHealth = dephealthSvc
	}
	healthHandler := handlers.NewHealthHandler(pgChecker, client, depHealth)

	// 13. API handler и сессионная авторизация
	apiHandler := handlers.NewAPIHandler(healthHandler, authSvc, profileCache, logger)
	sessionAuth := middleware.NewSessionAuth(sessionMgr, logger)

	// 14. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, sessionAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 15. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Admin Console остановлен")
}

// buildHTTPClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом.
func buildHTTPClientWithCA(cfg *config.Config) (*http.Client, error) {
	caCert, err := os.ReadFile(cfg.BackendCACertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: cfg.BackendTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: caCertPool,
			},
		},
	}, nil
}
