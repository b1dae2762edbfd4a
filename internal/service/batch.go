package service

import (
	"context"

	"github.com/bigkaa/stockflow/internal/domain/model"
)

// FlushFunc атомарно записывает один пакет строк.
type FlushFunc func(ctx context.Context, records []*model.StockRecord) error

// BatchAccumulator копит строки и сбрасывает их пакетами по capacity.
// Каждый сброс — новый независимый пакет; ранее зафиксированные пакеты
// не откатываются при ошибке следующего.
type BatchAccumulator struct {
	capacity int
	flush    FlushFunc
	pending  []*model.StockRecord
	written  int
	batches  int
}

// NewBatchAccumulator создаёт аккумулятор. capacity < 1 трактуется как 1.
func NewBatchAccumulator(capacity int, flush FlushFunc) *BatchAccumulator {
	if capacity < 1 {
		capacity = 1
	}
	return &BatchAccumulator{
		capacity: capacity,
		flush:    flush,
		pending:  make([]*model.StockRecord, 0, capacity),
	}
}

// Add ставит строку в очередь и сбрасывает пакет при заполнении.
func (a *BatchAccumulator) Add(ctx context.Context, rec *model.StockRecord) error {
	a.pending = append(a.pending, rec)
	if len(a.pending) < a.capacity {
		return nil
	}
	return a.Flush(ctx)
}

// Flush записывает накопленные строки. Пустой буфер — no-op.
// При ошибке буфер не очищается, Written не меняется.
func (a *BatchAccumulator) Flush(ctx context.Context) error {
	if len(a.pending) == 0 {
		return nil
	}
	if err := a.flush(ctx, a.pending); err != nil {
		return err
	}
	a.written += len(a.pending)
	a.batches++
	a.pending = make([]*model.StockRecord, 0, a.capacity)
	return nil
}

// Written — число строк в зафиксированных пакетах.
func (a *BatchAccumulator) Written() int { return a.written }

// Batches — число зафиксированных пакетов.
func (a *BatchAccumulator) Batches() int { return a.batches }

// Pending — число строк, ожидающих сброса.
func (a *BatchAccumulator) Pending() int { return len(a.pending) }
