package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bigkaa/stockflow/internal/auth"
	"github.com/bigkaa/stockflow/internal/domain/model"
	"github.com/bigkaa/stockflow/internal/repository"
)

// RecordPage — страница строк SOH одной загрузки.
type RecordPage struct {
	Items  []*model.StockRecord
	Total  int
	Limit  int
	Offset int
}

// SOHReferenceService — просмотр загрузок и управление блокировкой.
type SOHReferenceService struct {
	refs     repository.DataReferenceRepository
	records  repository.StockRecordRepository
	projects *ProjectLookup
	logger   *slog.Logger
}

// NewSOHReferenceService создаёт сервис загрузок.
func NewSOHReferenceService(
	refs repository.DataReferenceRepository,
	records repository.StockRecordRepository,
	projects *ProjectLookup,
	logger *slog.Logger,
) *SOHReferenceService {
	return &SOHReferenceService{
		refs:     refs,
		records:  records,
		projects: projects,
		logger:   logger.With(slog.String("component", "soh_references")),
	}
}

// ListByProject возвращает загрузки проекта, новые первыми.
func (s *SOHReferenceService) ListByProject(ctx context.Context, id *auth.Identity, projectID string, limit, offset int) ([]*model.DataReference, error) {
	if !id.CanAccessProject(projectID) {
		return nil, fmt.Errorf("%w: нет доступа к проекту %s", ErrForbidden, projectID)
	}
	exists, err := s.projects.Exists(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: проект %s", ErrNotFound, projectID)
	}

	limit, offset = normalizePage(limit, offset)
	refs, err := s.refs.ListByProject(ctx, projectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("получение загрузок проекта: %w", err)
	}
	if refs == nil {
		refs = []*model.DataReference{}
	}
	return refs, nil
}

// Get возвращает загрузку, если её проект доступен пользователю.
func (s *SOHReferenceService) Get(ctx context.Context, id *auth.Identity, refID string) (*model.DataReference, error) {
	if id == nil {
		return nil, ErrForbidden
	}
	if uuid.Validate(refID) != nil {
		return nil, fmt.Errorf("%w: загрузка %q", ErrNotFound, refID)
	}
	ref, err := s.refs.GetByID(ctx, refID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: загрузка %s", ErrNotFound, refID)
		}
		return nil, fmt.Errorf("получение загрузки: %w", err)
	}
	if !id.CanAccessProject(ref.ProjectID) {
		return nil, fmt.Errorf("%w: нет доступа к проекту %s", ErrForbidden, ref.ProjectID)
	}
	return ref, nil
}

// ListRecords возвращает страницу строк загрузки и их общее число.
func (s *SOHReferenceService) ListRecords(ctx context.Context, id *auth.Identity, refID string, limit, offset int) (*RecordPage, error) {
	ref, err := s.Get(ctx, id, refID)
	if err != nil {
		return nil, err
	}

	limit, offset = normalizePage(limit, offset)
	items, err := s.records.ListByReference(ctx, ref.ID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("получение строк SOH: %w", err)
	}
	total, err := s.records.CountByReference(ctx, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("подсчёт строк SOH: %w", err)
	}
	if items == nil {
		items = []*model.StockRecord{}
	}
	return &RecordPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// SetLocked блокирует или разблокирует загрузку от удаления. Только superuser.
func (s *SOHReferenceService) SetLocked(ctx context.Context, id *auth.Identity, refID string, locked bool) (*model.DataReference, error) {
	if !id.IsSuperuser() {
		return nil, fmt.Errorf("%w: блокировка доступна только superuser", ErrForbidden)
	}
	if uuid.Validate(refID) != nil {
		return nil, fmt.Errorf("%w: загрузка %q", ErrNotFound, refID)
	}
	if err := s.refs.SetLocked(ctx, refID, locked); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: загрузка %s", ErrNotFound, refID)
		}
		return nil, fmt.Errorf("изменение блокировки: %w", err)
	}

	s.logger.Info("Блокировка загрузки изменена",
		slog.String("reference_id", refID),
		slog.Bool("locked", locked),
		slog.String("user_id", id.UserID),
	)
	return s.Get(ctx, id, refID)
}
