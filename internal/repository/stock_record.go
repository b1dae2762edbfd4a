package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/stockflow/internal/domain/model"
)

// StockRecordRepository — доступ к таблице soh_stock_records.
type StockRecordRepository interface {
	// WriteBatch атомарно записывает не более MaxBatchOps строк:
	// применяются все строки пакета или ни одной.
	WriteBatch(ctx context.Context, records []*model.StockRecord) error
	// ListByReference возвращает строки загрузки.
	ListByReference(ctx context.Context, referenceID string, limit, offset int) ([]*model.StockRecord, error)
	// CountByReference возвращает число строк загрузки.
	CountByReference(ctx context.Context, referenceID string) (int, error)
}

type stockRecordRepo struct {
	db DBTX
}

// NewStockRecordRepository создаёт репозиторий строк SOH.
func NewStockRecordRepository(db DBTX) StockRecordRepository {
	return &stockRecordRepo{db: db}
}

const insertStockRecord = `
	INSERT INTO soh_stock_records (id, sku, description, soh_quantity, location, project_id, data_reference_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (r *stockRecordRepo) WriteBatch(ctx context.Context, records []*model.StockRecord) error {
	if len(records) == 0 {
		return nil
	}
	if len(records) > MaxBatchOps {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(records), MaxBatchOps)
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(insertStockRecord,
			rec.ID, rec.SKU, rec.Description, rec.SOHQuantity, rec.Location,
			rec.ProjectID, rec.DataReferenceID,
		)
	}

	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for i := range records {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				if isForeignKeyViolation(err) {
					return fmt.Errorf("%w: загрузка или проект строки %d", ErrNotFound, i)
				}
				return fmt.Errorf("ошибка записи строки SOH %d: %w", i, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("ошибка завершения пакета: %w", err)
		}
		return nil
	})
}

func (r *stockRecordRepo) ListByReference(ctx context.Context, referenceID string, limit, offset int) ([]*model.StockRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, sku, description, soh_quantity, location, project_id, data_reference_id, created_at
		FROM soh_stock_records
		WHERE data_reference_id = $1
		ORDER BY sku, id
		LIMIT $2 OFFSET $3`, referenceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения строк SOH: %w", err)
	}
	defer rows.Close()

	var result []*model.StockRecord
	for rows.Next() {
		rec := &model.StockRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.SKU, &rec.Description, &rec.SOHQuantity, &rec.Location,
			&rec.ProjectID, &rec.DataReferenceID, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки SOH: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (r *stockRecordRepo) CountByReference(ctx context.Context, referenceID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM soh_stock_records WHERE data_reference_id = $1`, referenceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта строк SOH: %w", err)
	}
	return count, nil
}
