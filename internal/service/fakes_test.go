package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/stockflow/internal/domain/lifecycle"
	"github.com/bigkaa/stockflow/internal/domain/model"
	"github.com/bigkaa/stockflow/internal/notifier"
	"github.com/bigkaa/stockflow/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- Проекты ---

type fakeProjectRepo struct {
	mu       sync.Mutex
	projects map[string]*model.Project
	gets     int
	err      error
}

func newFakeProjectRepo(projects ...*model.Project) *fakeProjectRepo {
	r := &fakeProjectRepo{projects: map[string]*model.Project{}}
	for _, p := range projects {
		r.projects[p.ID] = p
	}
	return r
}

func (r *fakeProjectRepo) Create(_ context.Context, p *model.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.projects {
		if existing.Name == p.Name {
			return repository.ErrConflict
		}
	}
	p.CreatedAt = time.Now()
	r.projects[p.ID] = p
	return nil
}

func (r *fakeProjectRepo) GetByID(_ context.Context, id string) (*model.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	if r.err != nil {
		return nil, r.err
	}
	p, ok := r.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (r *fakeProjectRepo) List(_ context.Context, limit, offset int) ([]*model.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*model.Project
	for _, p := range r.projects {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *fakeProjectRepo) Exists(ctx context.Context, id string) (bool, error) {
	_, err := r.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// --- Загрузки ---

type fakeRefRepo struct {
	mu       sync.Mutex
	refs     map[string]*model.DataReference
	history  map[string][]lifecycle.Status
	failOn   map[lifecycle.Status]error // ошибка при переходе в статус
	createEr error
}

func newFakeRefRepo() *fakeRefRepo {
	return &fakeRefRepo{
		refs:    map[string]*model.DataReference{},
		history: map[string][]lifecycle.Status{},
		failOn:  map[lifecycle.Status]error{},
	}
}

func (r *fakeRefRepo) put(ref *model.DataReference) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ref
	r.refs[ref.ID] = &cp
	r.history[ref.ID] = append(r.history[ref.ID], ref.Status)
}

func (r *fakeRefRepo) get(id string) *model.DataReference {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.refs[id]
	if !ok {
		return nil
	}
	cp := *ref
	return &cp
}

func (r *fakeRefRepo) only() *model.DataReference {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ref := range r.refs {
		cp := *ref
		return &cp
	}
	return nil
}

func (r *fakeRefRepo) Create(_ context.Context, ref *model.DataReference) error {
	if r.createEr != nil {
		return r.createEr
	}
	r.put(ref)
	return nil
}

func (r *fakeRefRepo) GetByID(_ context.Context, id string) (*model.DataReference, error) {
	if ref := r.get(id); ref != nil {
		return ref, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeRefRepo) ListByProject(_ context.Context, projectID string, limit, offset int) ([]*model.DataReference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.DataReference
	for _, ref := range r.refs {
		if ref.ProjectID == projectID {
			cp := *ref
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// transition применяет условный переход под блокировкой.
func (r *fakeRefRepo) transition(id string, from, to lifecycle.Status, apply func(ref *model.DataReference)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failOn[to]; err != nil {
		return err
	}
	if err := lifecycle.Transition(from, to); err != nil {
		return err
	}
	ref, ok := r.refs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if ref.Status != from {
		return repository.ErrStaleStatus
	}
	ref.Status = to
	if apply != nil {
		apply(ref)
	}
	r.history[id] = append(r.history[id], to)
	return nil
}

func (r *fakeRefRepo) UpdateStatus(_ context.Context, id string, from, to lifecycle.Status) error {
	return r.transition(id, from, to, nil)
}

func (r *fakeRefRepo) Finalize(_ context.Context, id string, from lifecycle.Status, p repository.FinalizeParams) error {
	return r.transition(id, from, p.Status, func(ref *model.DataReference) {
		ref.RowCount = p.RowCount
		at := p.ProcessedAt
		ref.ProcessedAt = &at
		ref.ErrorMessage = p.Message
	})
}

func (r *fakeRefRepo) SetArchiveKey(_ context.Context, id, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.refs[id]
	if !ok {
		return repository.ErrNotFound
	}
	ref.ArchiveKey = &key
	return nil
}

func (r *fakeRefRepo) SetLocked(_ context.Context, id string, locked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.refs[id]
	if !ok {
		return repository.ErrNotFound
	}
	ref.IsLocked = locked
	return nil
}

func (r *fakeRefRepo) RequestDeletion(_ context.Context, id string, req repository.DeletionRequest) error {
	r.mu.Lock()
	locked := r.refs[id] != nil && r.refs[id].IsLocked
	r.mu.Unlock()
	if locked {
		return repository.ErrStaleStatus
	}
	return r.transition(id, req.PreviousStatus, lifecycle.StatusPendingDeletion, func(ref *model.DataReference) {
		hash := req.TokenHash
		exp := req.ExpiresAt
		by := req.RequestedBy
		prev := req.PreviousStatus
		ref.DeleteTokenHash = &hash
		ref.DeleteTokenExpiresAt = &exp
		ref.DeleteRequestedBy = &by
		ref.StatusBeforeDeletion = &prev
	})
}

func (r *fakeRefRepo) GetByTokenHash(_ context.Context, tokenHash string) (*model.DataReference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ref := range r.refs {
		if ref.DeleteTokenHash != nil && *ref.DeleteTokenHash == tokenHash {
			cp := *ref
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeRefRepo) RevertDeletion(_ context.Context, id, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.refs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if ref.Status != lifecycle.StatusPendingDeletion || ref.DeleteTokenHash == nil || *ref.DeleteTokenHash != tokenHash {
		return repository.ErrStaleStatus
	}
	prev := lifecycle.StatusCompleted
	if ref.StatusBeforeDeletion != nil {
		prev = *ref.StatusBeforeDeletion
	}
	ref.Status = prev
	ref.DeleteTokenHash = nil
	ref.DeleteTokenExpiresAt = nil
	ref.DeleteRequestedBy = nil
	ref.StatusBeforeDeletion = nil
	r.history[id] = append(r.history[id], prev)
	return nil
}

func (r *fakeRefRepo) ListExpiredDeletions(_ context.Context, now time.Time, limit int) ([]*model.DataReference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.DataReference
	for _, ref := range r.refs {
		if ref.Status == lifecycle.StatusPendingDeletion && ref.DeleteTokenExpiresAt != nil && !ref.DeleteTokenExpiresAt.After(now) {
			cp := *ref
			out = append(out, &cp)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRefRepo) DeleteWithRecords(_ context.Context, id, tokenHash string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.refs[id]
	if !ok || ref.DeleteTokenHash == nil || *ref.DeleteTokenHash != tokenHash {
		return 0, repository.ErrNotFound
	}
	delete(r.refs, id)
	return int64(ref.RowCount), nil
}

func (r *fakeRefRepo) statuses(id string) []lifecycle.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]lifecycle.Status(nil), r.history[id]...)
}

// --- Строки SOH ---

type fakeRecordRepo struct {
	mu         sync.Mutex
	records    []*model.StockRecord
	batchSizes []int
	failAfter  int // ошибка на пакете с этим номером (с 1), 0 — без ошибок
	err        error
}

func (r *fakeRecordRepo) WriteBatch(_ context.Context, records []*model.StockRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(records) > repository.MaxBatchOps {
		return repository.ErrBatchTooLarge
	}
	if r.failAfter > 0 && len(r.batchSizes)+1 == r.failAfter {
		return r.err
	}
	r.batchSizes = append(r.batchSizes, len(records))
	r.records = append(r.records, records...)
	return nil
}

func (r *fakeRecordRepo) ListByReference(_ context.Context, referenceID string, limit, offset int) ([]*model.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.StockRecord
	for _, rec := range r.records {
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

func (r *fakeRecordRepo) CountByReference(_ context.Context, referenceID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.DataReferenceID == referenceID {
			n++
		}
	}
	return n, nil
}

// --- Пользователи ---

type fakeUserRepo struct {
	approvers map[string][]*model.User
	upserted  []*model.User
	err       error
}

func (r *fakeUserRepo) Upsert(_ context.Context, u *model.User) error {
	if r.err != nil {
		return r.err
	}
	r.upserted = append(r.upserted, u)
	return nil
}

func (r *fakeUserRepo) ListApprovers(_ context.Context, projectID string) ([]*model.User, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.approvers[projectID], nil
}

// --- Нотификатор и архив ---

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notifier.DeletionApprovalMail
	err  error
	// hang — отправка ждёт отмены контекста (SMTP-сервер не отвечает)
	hang bool
	// attempts — число вызовов, включая неудачные
	attempts int
}

func (n *fakeNotifier) SendDeletionApproval(ctx context.Context, mail notifier.DeletionApprovalMail) error {
	n.mu.Lock()
	n.attempts++
	hang := n.hang
	n.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, mail)
	return n.err
}

type fakeArchiver struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	deleted []string
}

func newFakeArchiver() *fakeArchiver {
	return &fakeArchiver{objects: map[string][]byte{}}
}

func (a *fakeArchiver) Put(_ context.Context, key, _ string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.putErr != nil {
		return a.putErr
	}
	a.objects[key] = data
	return nil
}

func (a *fakeArchiver) Delete(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, key)
	a.deleted = append(a.deleted, key)
	return nil
}
