package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/stockflow/internal/domain/lifecycle"
	"github.com/bigkaa/stockflow/internal/domain/model"
)

// FinalizeParams — итог обработки загрузки.
type FinalizeParams struct {
	Status      lifecycle.Status
	RowCount    int
	ProcessedAt time.Time
	Message     *string
}

// DeletionRequest — данные запроса удаления.
type DeletionRequest struct {
	// TokenHash — SHA-256 (hex) токена подтверждения
	TokenHash   string
	ExpiresAt   time.Time
	RequestedBy string
	// PreviousStatus — статус, в который вернётся запись при откате
	PreviousStatus lifecycle.Status
}

// DataReferenceRepository — доступ к таблице soh_data_references.
// Все изменения статуса условны: обновление применяется, только если
// запись всё ещё в ожидаемом статусе, иначе ErrStaleStatus.
type DataReferenceRepository interface {
	// Create создаёт запись загрузки.
	Create(ctx context.Context, ref *model.DataReference) error
	// GetByID возвращает запись по UUID.
	GetByID(ctx context.Context, id string) (*model.DataReference, error)
	// ListByProject возвращает загрузки проекта, новые первыми.
	ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*model.DataReference, error)
	// UpdateStatus переводит запись from → to.
	UpdateStatus(ctx context.Context, id string, from, to lifecycle.Status) error
	// Finalize фиксирует терминальный статус, число строк и сообщение.
	Finalize(ctx context.Context, id string, from lifecycle.Status, p FinalizeParams) error
	// SetArchiveKey сохраняет ключ объекта в архиве.
	SetArchiveKey(ctx context.Context, id, key string) error
	// SetLocked блокирует или разблокирует запись.
	SetLocked(ctx context.Context, id string, locked bool) error
	// RequestDeletion переводит незаблокированную запись в Pending Deletion.
	RequestDeletion(ctx context.Context, id string, req DeletionRequest) error
	// GetByTokenHash находит запись по хэшу токена удаления.
	GetByTokenHash(ctx context.Context, tokenHash string) (*model.DataReference, error)
	// RevertDeletion возвращает статус до запроса удаления и очищает токен.
	RevertDeletion(ctx context.Context, id, tokenHash string) error
	// ListExpiredDeletions возвращает запросы удаления с истёкшим токеном.
	ListExpiredDeletions(ctx context.Context, now time.Time, limit int) ([]*model.DataReference, error)
	// DeleteWithRecords удаляет запись и все её строки в одной транзакции.
	// Удаление условно по хэшу токена, поэтому выполняется не более одного раза.
	DeleteWithRecords(ctx context.Context, id, tokenHash string) (int64, error)
}

type dataReferenceRepo struct {
	db DBTX
}

// NewDataReferenceRepository создаёт репозиторий загрузок SOH.
func NewDataReferenceRepository(db DBTX) DataReferenceRepository {
	return &dataReferenceRepo{db: db}
}

const referenceColumns = `
	id, filename, uploaded_by, uploaded_at, project_id, content_type, size_bytes,
	row_count, status, error_message, processed_at, is_locked,
	delete_token_hash, delete_token_expires_at, delete_requested_by,
	status_before_deletion, archive_key, created_at, updated_at`

// scanReference сканирует строку в DataReference.
func scanReference(row pgx.Row) (*model.DataReference, error) {
	ref := &model.DataReference{}
	var status string
	var before *string
	err := row.Scan(
		&ref.ID, &ref.Filename, &ref.UploadedBy, &ref.UploadedAt, &ref.ProjectID,
		&ref.ContentType, &ref.SizeBytes, &ref.RowCount, &status, &ref.ErrorMessage,
		&ref.ProcessedAt, &ref.IsLocked, &ref.DeleteTokenHash, &ref.DeleteTokenExpiresAt,
		&ref.DeleteRequestedBy, &before, &ref.ArchiveKey, &ref.CreatedAt, &ref.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if ref.Status, err = lifecycle.Parse(status); err != nil {
		return nil, err
	}
	if before != nil {
		prev, err := lifecycle.Parse(*before)
		if err != nil {
			return nil, err
		}
		ref.StatusBeforeDeletion = &prev
	}
	return ref, nil
}

func (r *dataReferenceRepo) Create(ctx context.Context, ref *model.DataReference) error {
	query := `
		INSERT INTO soh_data_references (id, filename, uploaded_by, uploaded_at, project_id,
			content_type, size_bytes, row_count, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		ref.ID, ref.Filename, ref.UploadedBy, ref.UploadedAt, ref.ProjectID,
		ref.ContentType, ref.SizeBytes, ref.RowCount, string(ref.Status),
	).Scan(&ref.CreatedAt, &ref.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: загрузка %s уже существует", ErrConflict, ref.ID)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: проект %s", ErrNotFound, ref.ProjectID)
		}
		return fmt.Errorf("ошибка создания загрузки: %w", err)
	}
	return nil
}

func (r *dataReferenceRepo) GetByID(ctx context.Context, id string) (*model.DataReference, error) {
	ref, err := scanReference(r.db.QueryRow(ctx,
		`SELECT `+referenceColumns+` FROM soh_data_references WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения загрузки: %w", err)
	}
	return ref, nil
}

func (r *dataReferenceRepo) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*model.DataReference, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+referenceColumns+`
		FROM soh_data_references
		WHERE project_id = $1
		ORDER BY uploaded_at DESC
		LIMIT $2 OFFSET $3`, projectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка загрузок: %w", err)
	}
	defer rows.Close()

	var result []*model.DataReference
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования загрузки: %w", err)
		}
		result = append(result, ref)
	}
	return result, rows.Err()
}

// staleOrMissing различает отсутствующую запись и запись в другом статусе
// после условного обновления, не затронувшего ни одной строки.
func (r *dataReferenceRepo) staleOrMissing(ctx context.Context, id string) error {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM soh_data_references WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("ошибка проверки загрузки: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStaleStatus
}

func (r *dataReferenceRepo) UpdateStatus(ctx context.Context, id string, from, to lifecycle.Status) error {
	if err := lifecycle.Transition(from, to); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE soh_data_references
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, id)
	}
	return nil
}

func (r *dataReferenceRepo) Finalize(ctx context.Context, id string, from lifecycle.Status, p FinalizeParams) error {
	if !lifecycle.IsTerminal(p.Status) {
		return fmt.Errorf("статус %q не является терминальным", p.Status)
	}
	if err := lifecycle.Transition(from, p.Status); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE soh_data_references
		SET status = $3, row_count = $4, processed_at = $5, error_message = $6, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(p.Status), p.RowCount, p.ProcessedAt, p.Message)
	if err != nil {
		return fmt.Errorf("ошибка завершения загрузки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, id)
	}
	return nil
}

func (r *dataReferenceRepo) SetArchiveKey(ctx context.Context, id, key string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE soh_data_references SET archive_key = $2, updated_at = NOW() WHERE id = $1`, id, key)
	if err != nil {
		return fmt.Errorf("ошибка сохранения ключа архива: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *dataReferenceRepo) SetLocked(ctx context.Context, id string, locked bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE soh_data_references SET is_locked = $2, updated_at = NOW() WHERE id = $1`, id, locked)
	if err != nil {
		return fmt.Errorf("ошибка изменения блокировки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *dataReferenceRepo) RequestDeletion(ctx context.Context, id string, req DeletionRequest) error {
	if err := lifecycle.Transition(req.PreviousStatus, lifecycle.StatusPendingDeletion); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE soh_data_references
		SET status = $3,
			status_before_deletion = $2,
			delete_token_hash = $4,
			delete_token_expires_at = $5,
			delete_requested_by = $6,
			updated_at = NOW()
		WHERE id = $1 AND status = $2 AND NOT is_locked`,
		id, string(req.PreviousStatus), string(lifecycle.StatusPendingDeletion),
		req.TokenHash, req.ExpiresAt, req.RequestedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: токен удаления уже используется", ErrConflict)
		}
		return fmt.Errorf("ошибка запроса удаления: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, id)
	}
	return nil
}

func (r *dataReferenceRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*model.DataReference, error) {
	ref, err := scanReference(r.db.QueryRow(ctx,
		`SELECT `+referenceColumns+` FROM soh_data_references WHERE delete_token_hash = $1`, tokenHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска по токену удаления: %w", err)
	}
	return ref, nil
}

func (r *dataReferenceRepo) RevertDeletion(ctx context.Context, id, tokenHash string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE soh_data_references
		SET status = COALESCE(status_before_deletion, $3),
			status_before_deletion = NULL,
			delete_token_hash = NULL,
			delete_token_expires_at = NULL,
			delete_requested_by = NULL,
			updated_at = NOW()
		WHERE id = $1 AND delete_token_hash = $2 AND status = $4`,
		id, tokenHash, string(lifecycle.StatusCompleted), string(lifecycle.StatusPendingDeletion))
	if err != nil {
		return fmt.Errorf("ошибка отката запроса удаления: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, id)
	}
	return nil
}

func (r *dataReferenceRepo) ListExpiredDeletions(ctx context.Context, now time.Time, limit int) ([]*model.DataReference, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+referenceColumns+`
		FROM soh_data_references
		WHERE status = $1 AND delete_token_expires_at <= $2
		ORDER BY delete_token_expires_at
		LIMIT $3`, string(lifecycle.StatusPendingDeletion), now, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истёкших запросов удаления: %w", err)
	}
	defer rows.Close()

	var result []*model.DataReference
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования загрузки: %w", err)
		}
		result = append(result, ref)
	}
	return result, rows.Err()
}

func (r *dataReferenceRepo) DeleteWithRecords(ctx context.Context, id, tokenHash string) (int64, error) {
	var deleted int64
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		// Блокировка строки: параллельное подтверждение ждёт и не находит токен
		var locked string
		err := tx.QueryRow(ctx, `
			SELECT id FROM soh_data_references
			WHERE id = $1 AND delete_token_hash = $2 AND status = $3
			FOR UPDATE`, id, tokenHash, string(lifecycle.StatusPendingDeletion)).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("ошибка блокировки загрузки: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM soh_stock_records WHERE data_reference_id = $1`, id)
		if err != nil {
			return fmt.Errorf("ошибка удаления строк SOH: %w", err)
		}
		deleted = tag.RowsAffected()

		if _, err := tx.Exec(ctx, `DELETE FROM soh_data_references WHERE id = $1`, id); err != nil {
			return fmt.Errorf("ошибка удаления загрузки: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
