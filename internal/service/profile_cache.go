// profile_cache.go — TTL-кэш одиночных запросов записи пользователя.
// Обёртка над hashicorp/golang-lru/v2/expirable: полный справочник
// обновляется редко (потолок загрузок), а карточку пользователя UI
// запрашивает часто — кэш снимает эти повторные обращения к бэкенду.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/rastreo/admin-console/internal/backend"
	"github.com/arturkryukov/rastreo/admin-console/internal/domain/model"
)

// Prometheus-метрики кэша профилей.
var (
	profileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ac_profile_cache_hits_total",
		Help: "Общее количество попаданий в кэш профилей.",
	})
	profileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ac_profile_cache_misses_total",
		Help: "Общее количество промахов кэша профилей.",
	})
)

// ProfileBackend — одиночный запрос записи, нужный кэшу.
// Реализуется backend.Client.
type ProfileBackend interface {
	GetUser(ctx context.Context, id int64) (*backend.RawUser, error)
}

// ProfileCache — LRU-кэш канонических записей пользователей с TTL.
type ProfileCache struct {
	backend ProfileBackend
	cache   *expirable.LRU[int64, *model.User]
	logger  *slog.Logger
}

// NewProfileCache создаёт кэш профилей.
// maxSize — максимальное количество записей, ttl — время жизни записи.
func NewProfileCache(b ProfileBackend, maxSize int, ttl time.Duration, logger *slog.Logger) *ProfileCache {
	return &ProfileCache{
		backend: b,
		cache:   expirable.NewLRU[int64, *model.User](maxSize, nil, ttl),
		logger:  logger.With(slog.String("component", "profile_cache")),
	}
}

// Get возвращает каноническую запись пользователя по id: из кэша при
// попадании, иначе с бэкенда с последующим кэшированием.
func (p *ProfileCache) Get(ctx context.Context, id int64) (*model.User, error) {
	if user, ok := p.cache.Get(id); ok {
		profileCacheHits.Inc()
		return user, nil
	}
	profileCacheMisses.Inc()

	raw, err := p.backend.GetUser(ctx, id)
	if err != nil {
		if backend.IsNotFound(err) {
			return nil, fmt.Errorf("профиль %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("запрос профиля %d: %w", id, err)
	}

	user, err := backend.TransformUser(raw)
	if err != nil {
		return nil, fmt.Errorf("трансформация профиля %d: %w", id, err)
	}

	p.cache.Add(id, user)
	return user, nil
}

// Invalidate удаляет запись из кэша. Вызывается после update/delete,
// чтобы карточка не отдавала устаревшие данные до истечения TTL.
func (p *ProfileCache) Invalidate(id int64) {
	p.cache.Remove(id)
}
