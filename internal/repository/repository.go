// Пакет repository — хранение проектов, пользователей и загрузок SOH
// в PostgreSQL. SQL пишется вручную, выполняется через pgx.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MaxBatchOps — предел строк в одном атомарном пакете записи.
const MaxBatchOps = 500

var (
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — нарушение уникальности.
	ErrConflict = errors.New("запись уже существует")
	// ErrStaleStatus — условное обновление не нашло запись в ожидаемом статусе.
	ErrStaleStatus   = errors.New("статус записи изменился")
	ErrBatchTooLarge = errors.New("пакет записи превышает допустимый размер")
)

// DBTX — общее подмножество *pgxpool.Pool и pgx.Tx.
// Begin внутри pgx.Tx открывает savepoint.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
}

// pgCode — SQLSTATE ошибки PostgreSQL или "".
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == pgerrcode.UniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == pgerrcode.ForeignKeyViolation
}
