package model

import (
	"time"

	"github.com/bigkaa/stockflow/internal/domain/lifecycle"
)

// DataReference — одна попытка загрузки SOH-файла.
// Хранится в таблице soh_data_references. Владеет своими StockRecord.
type DataReference struct {
	// ID — UUID записи
	ID string
	// Filename — исходное имя файла
	Filename string
	// UploadedBy — ID пользователя, загрузившего файл
	UploadedBy string
	// UploadedAt — время начала загрузки
	UploadedAt time.Time
	// ProjectID — проект, к которому относятся данные
	ProjectID string
	// ContentType — заявленный клиентом Content-Type
	ContentType string
	// SizeBytes — размер файла
	SizeBytes int64
	// RowCount — число сохранённых строк; окончательно только в терминальном статусе
	RowCount int
	// Status — статус обработки
	Status lifecycle.Status
	// ErrorMessage — сообщение об ошибке или предупреждение о пропущенных строках
	ErrorMessage *string
	// ProcessedAt — время завершения обработки
	ProcessedAt *time.Time
	// IsLocked — заблокированную загрузку нельзя удалить
	IsLocked bool
	// DeleteTokenHash — SHA-256 (hex) токена подтверждения удаления
	DeleteTokenHash *string
	// DeleteTokenExpiresAt — срок действия токена
	DeleteTokenExpiresAt *time.Time
	// DeleteRequestedBy — ID superuser, запросившего удаление
	DeleteRequestedBy *string
	// StatusBeforeDeletion — статус до запроса удаления, для отката
	StatusBeforeDeletion *lifecycle.Status
	// ArchiveKey — ключ объекта в S3-архиве (если архив включён)
	ArchiveKey *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasActiveDeletion сообщает, есть ли неистёкший запрос удаления.
func (r *DataReference) HasActiveDeletion(now time.Time) bool {
	return r.Status == lifecycle.StatusPendingDeletion &&
		r.DeleteTokenHash != nil &&
		r.DeleteTokenExpiresAt != nil &&
		now.Before(*r.DeleteTokenExpiresAt)
}

// StockRecord — одна строка SOH-файла.
// Хранится в таблице soh_stock_records, удаляется каскадно вместе с DataReference.
type StockRecord struct {
	ID              string
	SKU             string
	Description     string
	SOHQuantity     float64
	Location        *string
	ProjectID       string
	DataReferenceID string
	CreatedAt       time.Time
}
