package handlers

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/stockflow/internal/domain/lifecycle"
	"github.com/bigkaa/stockflow/internal/domain/model"
	"github.com/bigkaa/stockflow/internal/notifier"
	"github.com/bigkaa/stockflow/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore — хранилище в памяти для обработчиков: реализует
// репозитории проектов, загрузок, строк и пользователей.
type memStore struct {
	mu       sync.Mutex
	projects map[string]*model.Project
	refs     map[string]*model.DataReference
	records  []*model.StockRecord
	mails    []notifier.DeletionApprovalMail
}

func newMemStore(projects ...*model.Project) *memStore {
	s := &memStore{
		projects: map[string]*model.Project{},
		refs:     map[string]*model.DataReference{},
	}
	for _, p := range projects {
		s.projects[p.ID] = p
	}
	return s
}

type memProjects struct{ *memStore }

func (s memProjects) Create(_ context.Context, p *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.projects {
		if existing.Name == p.Name {
			return repository.ErrConflict
		}
	}
	p.CreatedAt = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.projects[p.ID] = p
	return nil
}

func (s memProjects) GetByID(_ context.Context, id string) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (s memProjects) List(_ context.Context, limit, offset int) ([]*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Project
	for _, p := range s.projects {
		out = append(out, p)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s memProjects) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.projects[id]
	return ok, nil
}

type memRefs struct{ *memStore }

func (s memRefs) Create(_ context.Context, ref *model.DataReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ref
	s.refs[ref.ID] = &cp
	return nil
}

func (s memRefs) GetByID(_ context.Context, id string) (*model.DataReference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.refs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *ref
	return &cp, nil
}

func (s memRefs) ListByProject(_ context.Context, projectID string, _, _ int) ([]*model.DataReference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.DataReference
	for _, ref := range s.refs {
		if ref.ProjectID == projectID {
			cp := *ref
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s memRefs) update(id string, from lifecycle.Status, fn func(ref *model.DataReference)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.refs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if ref.Status != from {
		return repository.ErrStaleStatus
	}
	fn(ref)
	return nil
}

func (s memRefs) UpdateStatus(_ context.Context, id string, from, to lifecycle.Status) error {
	return s.update(id, from, func(ref *model.DataReference) { ref.Status = to })
}

func (s memRefs) Finalize(_ context.Context, id string, from lifecycle.Status, p repository.FinalizeParams) error {
	return s.update(id, from, func(ref *model.DataReference) {
		ref.Status = p.Status
		ref.RowCount = p.RowCount
		ref.ErrorMessage = p.Message
		at := p.ProcessedAt
		ref.ProcessedAt = &at
	})
}

func (s memRefs) SetArchiveKey(_ context.Context, id, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[id].ArchiveKey = &key
	return nil
}

func (s memRefs) SetLocked(_ context.Context, id string, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.refs[id]
	if !ok {
		return repository.ErrNotFound
	}
	ref.IsLocked = locked
	return nil
}

func (s memRefs) RequestDeletion(_ context.Context, id string, req repository.DeletionRequest) error {
	return s.update(id, req.PreviousStatus, func(ref *model.DataReference) {
		hash, exp, by, prev := req.TokenHash, req.ExpiresAt, req.RequestedBy, req.PreviousStatus
		ref.Status = lifecycle.StatusPendingDeletion
		ref.DeleteTokenHash = &hash
		ref.DeleteTokenExpiresAt = &exp
		ref.DeleteRequestedBy = &by
		ref.StatusBeforeDeletion = &prev
	})
}

func (s memRefs) GetByTokenHash(_ context.Context, tokenHash string) (*model.DataReference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range s.refs {
		if ref.DeleteTokenHash != nil && *ref.DeleteTokenHash == tokenHash {
			cp := *ref
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s memRefs) RevertDeletion(_ context.Context, id, _ string) error {
	return s.update(id, lifecycle.StatusPendingDeletion, func(ref *model.DataReference) {
		ref.Status = *ref.StatusBeforeDeletion
		ref.DeleteTokenHash = nil
		ref.DeleteTokenExpiresAt = nil
		ref.DeleteRequestedBy = nil
		ref.StatusBeforeDeletion = nil
	})
}

func (s memRefs) ListExpiredDeletions(context.Context, time.Time, int) ([]*model.DataReference, error) {
	return nil, nil
}

func (s memRefs) DeleteWithRecords(_ context.Context, id, tokenHash string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.refs[id]
	if !ok || ref.DeleteTokenHash == nil || *ref.DeleteTokenHash != tokenHash {
		return 0, repository.ErrNotFound
	}
	delete(s.refs, id)
	return int64(ref.RowCount), nil
}

type memRecords struct{ *memStore }

func (s memRecords) WriteBatch(_ context.Context, records []*model.StockRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

func (s memRecords) ListByReference(_ context.Context, referenceID string, limit, offset int) ([]*model.StockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.StockRecord
	for _, rec := range s.records {
		if rec.DataReferenceID == referenceID {
			out = append(out, rec)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s memRecords) CountByReference(_ context.Context, referenceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.records {
		if rec.DataReferenceID == referenceID {
			n++
		}
	}
	return n, nil
}

type memUsers struct{ *memStore }

func (memUsers) Upsert(context.Context, *model.User) error { return nil }

func (memUsers) ListApprovers(_ context.Context, projectID string) ([]*model.User, error) {
	return []*model.User{{ID: "u1", Email: "anna@example.com", DisplayName: "Anna", Role: "admin", ProjectIDs: []string{projectID}}}, nil
}

type memNotifier struct{ *memStore }

func (s memNotifier) SendDeletionApproval(_ context.Context, mail notifier.DeletionApprovalMail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mails = append(s.mails, mail)
	return nil
}

func (s *memStore) lastMail() (notifier.DeletionApprovalMail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.mails) == 0 {
		return notifier.DeletionApprovalMail{}, false
	}
	return s.mails[len(s.mails)-1], true
}
