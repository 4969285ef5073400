// directory.go — синхронизатор справочника пользователей.
//
// Владеет единственным in-memory списком канонических записей и всеми
// операциями над ним: полная загрузка, создание, обновление, удаление.
// Ограничитель загрузок (потолок попыток + флаг "в полёте") — защита
// от шторма запросов при постоянно падающем бэкенде: без него цикл
// обновления вьюхи превращается в бесконечный ретрай. Потолок — грубый
// предохранитель, не политика backoff; сбрасывается только созданием
// нового синхронизатора (новая сессия).
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/rastreo/admin-console/internal/backend"
	"github.com/arturkryukov/rastreo/admin-console/internal/domain/model"
)

// Prometheus-метрики справочника.
var (
	directoryFetchAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ac_directory_fetch_attempts_total",
		Help: "Количество попыток полной загрузки справочника (включая неудачные).",
	})
	directoryFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ac_directory_fetch_failures_total",
		Help: "Количество неудачных загрузок справочника.",
	})
	directorySkippedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ac_directory_records_skipped_total",
		Help: "Количество сырых записей, отброшенных при трансформации.",
	})
	directorySize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ac_directory_size",
		Help: "Текущее количество записей в справочнике.",
	})
	directorySyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ac_directory_sync_duration_seconds",
		Help:    "Длительность полной загрузки справочника.",
		Buckets: prometheus.DefBuckets,
	})
	directoryStaleRefs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ac_directory_stale_references_total",
		Help: "Количество операций, чья цель не найдена в локальном списке.",
	})
)

// DirectoryBackend — операции бэкенда, нужные синхронизатору.
// Реализуется backend.Client.
type DirectoryBackend interface {
	ListUsers(ctx context.Context) ([]backend.RawUser, error)
	CreateUser(ctx context.Context, payload *backend.UserPayload) (*backend.RawUser, error)
	UpdateUser(ctx context.Context, id int64, payload *backend.UserPayload) (*backend.RawUser, error)
	DeleteUser(ctx context.Context, id int64) error
}

// DirectoryService — синхронизатор справочника пользователей.
// Один экземпляр на активную сессию; состояние ограничителя живёт
// и умирает вместе с экземпляром.
type DirectoryService struct {
	backend DirectoryBackend
	logger  *slog.Logger

	// Роли сессии-владельца: пустой набор подавляет загрузки
	sessionRoles []string
	// Политика "после мутации — полная перезагрузка"
	refreshAfterMutation bool

	mu       sync.Mutex
	users    []*model.User
	attempts int
	ceiling  int
	inFlight bool
}

// NewDirectoryService создаёт синхронизатор для новой сессии.
// sessionRoles — нормализованные роли сессии-владельца; сессия без
// ролей справочник не загружает. ceiling — потолок попыток загрузки.
// refreshAfterMutation — выполнять ли полную перезагрузку после
// create/update (политика вызывающей стороны, из конфигурации).
func NewDirectoryService(
	b DirectoryBackend,
	sessionRoles []string,
	ceiling int,
	refreshAfterMutation bool,
	logger *slog.Logger,
) *DirectoryService {
	return &DirectoryService{
		backend:              b,
		sessionRoles:         sessionRoles,
		ceiling:              ceiling,
		refreshAfterMutation: refreshAfterMutation,
		logger:               logger.With(slog.String("component", "directory")),
	}
}

// Users возвращает снапшот справочника. Вызывающий получает копию
// среза и не может повлиять на внутренний список.
func (s *DirectoryService) Users() []*model.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]*model.User, len(s.users))
	copy(snapshot, s.users)
	return snapshot
}

// Guard возвращает текущее состояние ограничителя загрузок.
func (s *DirectoryService) Guard() model.GuardState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return model.GuardState{
		AttemptsMade: s.attempts,
		Ceiling:      s.ceiling,
		InFlight:     s.inFlight,
	}
}

// FetchAll выполняет полную загрузку справочника.
//
// No-op (возвращает nil, nil, попытка не учитывается), если:
//   - загрузка уже в полёте — параллельные вызовы схлопываются
//     в один запрос;
//   - непустой справочник уже загружен;
//   - достигнут потолок попыток;
//   - у сессии пустой набор ролей.
//
// Иначе попытка учитывается независимо от исхода. При ошибке
// транспорта список остаётся нетронутым, ошибка уходит вызывающему.
// Список заменяется атомарно — частично обновлённого состояния
// снаружи не видно.
func (s *DirectoryService) FetchAll(ctx context.Context) (*model.FetchResult, error) {
	s.mu.Lock()
	if s.inFlight || len(s.users) > 0 || s.attempts >= s.ceiling || len(s.sessionRoles) == 0 {
		s.mu.Unlock()
		return nil, nil
	}
	s.attempts++
	s.inFlight = true
	s.mu.Unlock()

	return s.fetch(ctx)
}

// Refresh — явная полная перезагрузка по решению вызывающей стороны.
// Игнорирует проверку "уже загружено", но потолок попыток и флаг
// "в полёте" действуют и здесь.
func (s *DirectoryService) Refresh(ctx context.Context) (*model.FetchResult, error) {
	s.mu.Lock()
	if s.inFlight || s.attempts >= s.ceiling || len(s.sessionRoles) == 0 {
		s.mu.Unlock()
		return nil, nil
	}
	s.attempts++
	s.inFlight = true
	s.mu.Unlock()

	return s.fetch(ctx)
}

// fetch — общая часть FetchAll/Refresh. Вызывается с уже учтённой
// попыткой и поднятым флагом inFlight.
func (s *DirectoryService) fetch(ctx context.Context) (*model.FetchResult, error) {
	directoryFetchAttempts.Inc()
	start := time.Now()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	raws, err := s.backend.ListUsers(ctx)
	if err != nil {
		directoryFetchFailures.Inc()
		s.logger.Error("загрузка справочника не удалась",
			slog.String("error", err.Error()),
			slog.Int("attempt", s.Guard().AttemptsMade),
		)
		return nil, fmt.Errorf("загрузка справочника: %w", err)
	}

	users, skipped := backend.TransformAll(raws, s.logger)
	if skipped > 0 {
		directorySkippedRecords.Add(float64(skipped))
	}

	s.mu.Lock()
	s.users = users
	s.mu.Unlock()

	directorySize.Set(float64(len(users)))
	directorySyncDuration.Observe(time.Since(start).Seconds())

	result := &model.FetchResult{
		Total:    len(users),
		Skipped:  skipped,
		SyncedAt: time.Now(),
	}

	s.logger.Info("справочник загружен",
		slog.Int("total", result.Total),
		slog.Int("skipped", result.Skipped),
	)

	return result, nil
}

// Create создаёт пользователя на бэкенде и дописывает каноническую
// запись в локальный список. Полную перезагрузку не инициирует,
// если не включена политика refreshAfterMutation.
func (s *DirectoryService) Create(ctx context.Context, payload *backend.UserPayload) (*model.User, error) {
	if payload == nil {
		return nil, fmt.Errorf("создание пользователя: %w", ErrValidation)
	}

	raw, err := s.backend.CreateUser(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("создание пользователя: %w", err)
	}

	user, err := backend.TransformUser(raw)
	if err != nil {
		return nil, fmt.Errorf("трансформация созданной записи: %w", err)
	}

	s.mu.Lock()
	s.users = append(s.users, user)
	size := len(s.users)
	s.mu.Unlock()
	directorySize.Set(float64(size))

	s.maybeRefresh(ctx)

	return user, nil
}

// Update отправляет частичный патч и заменяет запись в локальном
// списке по id. Если записи с таким id локально нет (устаревшее
// локальное состояние) — это восстановимая рассинхронизация: операция
// на бэкенде уже прошла, локальный список просто отстал до следующей
// успешной загрузки.
func (s *DirectoryService) Update(ctx context.Context, id int64, payload *backend.UserPayload) (*model.User, error) {
	if payload == nil {
		return nil, fmt.Errorf("обновление пользователя %d: %w", id, ErrValidation)
	}

	raw, err := s.backend.UpdateUser(ctx, id, payload)
	if err != nil {
		return nil, fmt.Errorf("обновление пользователя %d: %w", id, err)
	}

	user, err := backend.TransformUser(raw)
	if err != nil {
		return nil, fmt.Errorf("трансформация обновлённой записи: %w", err)
	}

	s.mu.Lock()
	replaced := false
	for i, u := range s.users {
		if u.ID == id {
			s.users[i] = user
			replaced = true
			break
		}
	}
	s.mu.Unlock()

	if !replaced {
		directoryStaleRefs.Inc()
		s.logger.Warn("обновлённая запись не найдена в локальном списке",
			slog.Int64("id", id),
		)
	}

	s.maybeRefresh(ctx)

	return user, nil
}

// Remove удаляет пользователя: сначала на бэкенде, затем из локального
// списка. При ошибке бэкенда локальный список не трогается.
func (s *DirectoryService) Remove(ctx context.Context, id int64) error {
	if err := s.backend.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("удаление пользователя %d: %w", id, err)
	}

	s.mu.Lock()
	removed := false
	for i, u := range s.users {
		if u.ID == id {
			s.users = append(s.users[:i], s.users[i+1:]...)
			removed = true
			break
		}
	}
	size := len(s.users)
	s.mu.Unlock()

	if !removed {
		directoryStaleRefs.Inc()
		s.logger.Warn("удалённая запись не найдена в локальном списке",
			slog.Int64("id", id),
		)
	}
	directorySize.Set(float64(size))

	return nil
}

// maybeRefresh выполняет перезагрузку после мутации, если включена
// политика refreshAfterMutation. Ошибка перезагрузки мутацию не
// отменяет: запись на бэкенде уже изменена.
func (s *DirectoryService) maybeRefresh(ctx context.Context) {
	if !s.refreshAfterMutation {
		return
	}
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Warn("перезагрузка после мутации не удалась",
			slog.String("error", err.Error()),
		)
	}
}
