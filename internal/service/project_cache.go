package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/stockflow/internal/domain/model"
	"github.com/bigkaa/stockflow/internal/repository"
)

var (
	projectCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockflow_project_cache_hits_total",
		Help: "Попадания в кэш проектов",
	})
	projectCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockflow_project_cache_misses_total",
		Help: "Промахи кэша проектов",
	})
)

// ProjectLookup — LRU-кэш проектов с TTL поверх ProjectRepository.
// Отсутствующие проекты не кэшируются: проект, созданный на другом
// экземпляре, становится виден сразу.
type ProjectLookup struct {
	repo  repository.ProjectRepository
	cache *expirable.LRU[string, *model.Project]
}

// NewProjectLookup создаёт кэш на size записей со временем жизни ttl.
func NewProjectLookup(repo repository.ProjectRepository, size int, ttl time.Duration) *ProjectLookup {
	return &ProjectLookup{
		repo:  repo,
		cache: expirable.NewLRU[string, *model.Project](size, nil, ttl),
	}
}

// Get возвращает проект или ErrNotFound.
func (l *ProjectLookup) Get(ctx context.Context, id string) (*model.Project, error) {
	if p, ok := l.cache.Get(id); ok {
		projectCacheHits.Inc()
		return p, nil
	}
	projectCacheMisses.Inc()

	if uuid.Validate(id) != nil {
		return nil, fmt.Errorf("%w: проект %q", ErrNotFound, id)
	}

	p, err := l.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: проект %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("получение проекта: %w", err)
	}
	l.cache.Add(id, p)
	return p, nil
}

// Exists проверяет существование проекта.
func (l *ProjectLookup) Exists(ctx context.Context, id string) (bool, error) {
	_, err := l.Get(ctx, id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Remember кладёт только что созданный проект в кэш.
func (l *ProjectLookup) Remember(p *model.Project) {
	l.cache.Add(p.ID, p)
}
