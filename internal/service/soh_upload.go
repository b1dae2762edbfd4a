// soh_upload.go — приём SOH-файла: разбор первого листа, проверка строк,
// пакетная запись и фиксация итогового статуса загрузки.
//
// Запись загрузки создаётся до разбора файла, поэтому любая попытка
// оставляет след в терминальном статусе: Completed, ValidationError или
// SystemError. Ошибки отдельных строк не прерывают загрузку.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bigkaa/stockflow/internal/archive"
	"github.com/bigkaa/stockflow/internal/auth"
	"github.com/bigkaa/stockflow/internal/domain/lifecycle"
	"github.com/bigkaa/stockflow/internal/domain/model"
	"github.com/bigkaa/stockflow/internal/domain/rbac"
	"github.com/bigkaa/stockflow/internal/repository"
	"github.com/bigkaa/stockflow/internal/spreadsheet"
)

// Обязательные и необязательные колонки SOH-файла.
const (
	ColumnSKU         = "SKU"
	ColumnDescription = "Description"
	ColumnQuantity    = "SOH Quantity"
	ColumnLocation    = "Location"
)

// Сообщения для пользователя.
const (
	MsgNoFileOrProject = "No file uploaded or project ID missing."
	MsgEmptyFile       = "The uploaded file is empty or contains no data rows."
	MsgUploadSuccess   = "SOH data uploaded successfully."
	MsgUploadFailed    = "An unexpected error occurred while processing the SOH file."
	MsgUnauthenticated = "Authentication required."
	MsgRoleForbidden   = "Your role is not allowed to upload SOH data."
	MsgProjectMismatch = "The selected project does not match the upload target."
	MsgProjectNotFound = "Project not found."
)

const (
	maxReportedErrors   = 5
	maxReportedWarnings = 3
)

// Пределы колонок soh_stock_records: VARCHAR(255) считает символы.
const (
	maxSKULength      = 255
	maxLocationLength = 255
)

// Archiver — хранилище исходных файлов.
type Archiver interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// UploadFile — загруженный файл.
type UploadFile struct {
	Name        string
	ContentType string
	Size        int64
	Data        []byte
}

// UploadInput — входные данные загрузки.
type UploadInput struct {
	ProjectID string
	// File — nil, если файл не передан
	File *UploadFile
}

// UploadResult — итог успешной загрузки.
type UploadResult struct {
	Message        string
	ReferenceID    string
	ItemsProcessed int
	// Errors — причины пропуска строк
	Errors []string
}

// UploadError — отказ загрузки с HTTP-статусом для ответа.
type UploadError struct {
	StatusCode int
	Message    string
	// Detail — текст внутренней ошибки (только для 5xx)
	Detail string
	// ReferenceID — запись загрузки, если она уже создана
	ReferenceID string
	Err         error
}

func (e *UploadError) Error() string {
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}

func (e *UploadError) Unwrap() error { return e.Err }

// SOHUploadService — конвейер загрузки SOH.
type SOHUploadService struct {
	refs      repository.DataReferenceRepository
	records   repository.StockRecordRepository
	projects  *ProjectLookup
	archiver  Archiver
	batchSize int
	now       func() time.Time
	logger    *slog.Logger
}

// NewSOHUploadService создаёт сервис загрузки.
// archiver может быть nil — архив исходных файлов отключён.
// batchSize — число строк в одном атомарном пакете (не более repository.MaxBatchOps).
func NewSOHUploadService(
	refs repository.DataReferenceRepository,
	records repository.StockRecordRepository,
	projects *ProjectLookup,
	archiver Archiver,
	batchSize int,
	logger *slog.Logger,
) *SOHUploadService {
	if batchSize < 1 || batchSize > repository.MaxBatchOps {
		batchSize = repository.MaxBatchOps
	}
	return &SOHUploadService{
		refs:      refs,
		records:   records,
		projects:  projects,
		archiver:  archiver,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "soh_upload")),
	}
}

// Upload принимает SOH-файл в проект.
// Отказы возвращаются как *UploadError; до создания записи загрузки
// (проверка прав и входных данных) ничего не пишется.
func (s *SOHUploadService) Upload(ctx context.Context, id *auth.Identity, in UploadInput) (*UploadResult, error) {
	if err := s.Authorize(id); err != nil {
		return nil, err
	}

	projectID := strings.TrimSpace(in.ProjectID)
	if in.File == nil || projectID == "" {
		return nil, s.reject(http.StatusBadRequest, MsgNoFileOrProject, ErrValidation)
	}
	if !id.IsSuperuser() && id.SelectedProjectID != projectID {
		return nil, s.reject(http.StatusForbidden, MsgProjectMismatch, ErrForbidden)
	}

	exists, err := s.projects.Exists(ctx, projectID)
	if err != nil {
		uploadsTotal.WithLabelValues("system_error").Inc()
		return nil, &UploadError{StatusCode: http.StatusInternalServerError, Message: MsgUploadFailed, Detail: err.Error(), Err: err}
	}
	if !exists {
		return nil, s.reject(http.StatusBadRequest, MsgProjectNotFound, ErrNotFound)
	}

	// Отключение клиента не прерывает обработку: записанные пакеты не отзываются
	ctx = context.WithoutCancel(ctx)

	ref := &model.DataReference{
		ID:          uuid.NewString(),
		Filename:    in.File.Name,
		UploadedBy:  id.UserID,
		UploadedAt:  s.now(),
		ProjectID:   projectID,
		ContentType: in.File.ContentType,
		SizeBytes:   in.File.Size,
		Status:      lifecycle.StatusProcessing,
	}
	if err := s.refs.Create(ctx, ref); err != nil {
		uploadsTotal.WithLabelValues("system_error").Inc()
		s.logger.Error("Ошибка создания записи загрузки",
			slog.String("project_id", projectID),
			slog.String("error", err.Error()),
		)
		return nil, &UploadError{StatusCode: http.StatusInternalServerError, Message: MsgUploadFailed, Detail: err.Error(), Err: err}
	}

	log := s.logger.With(
		slog.String("reference_id", ref.ID),
		slog.String("project_id", projectID),
		slog.String("filename", ref.Filename),
	)
	log.Info("Загрузка SOH начата", slog.Int64("size", ref.SizeBytes), slog.String("user_id", id.UserID))

	s.archive(ctx, ref, in.File, log)

	run := &ingestion{svc: s, ref: ref, status: lifecycle.StatusProcessing, log: log}
	result, err := run.process(ctx, in.File.Data)
	if err == nil {
		uploadsTotal.WithLabelValues("completed").Inc()
		return result, nil
	}

	var uploadErr *UploadError
	if errors.As(err, &uploadErr) {
		uploadsTotal.WithLabelValues("validation_error").Inc()
		uploadErr.ReferenceID = ref.ID
		return nil, uploadErr
	}

	uploadsTotal.WithLabelValues("system_error").Inc()
	log.Error("Ошибка обработки загрузки SOH", slog.String("error", err.Error()))
	run.markSystemError(ctx, err)
	return nil, &UploadError{
		StatusCode:  http.StatusInternalServerError,
		Message:     MsgUploadFailed,
		Detail:      err.Error(),
		ReferenceID: ref.ID,
		Err:         err,
	}
}

// Authorize проверяет, что пользователь может загружать SOH-файлы.
// Вызывается до чтения тела запроса; проверка проекта выполняется в Upload.
func (s *SOHUploadService) Authorize(id *auth.Identity) *UploadError {
	if id == nil {
		return s.reject(http.StatusUnauthorized, MsgUnauthenticated, ErrForbidden)
	}
	if !rbac.CanIngest(id.Role) {
		return s.reject(http.StatusForbidden, MsgRoleForbidden, ErrForbidden)
	}
	return nil
}

func (s *SOHUploadService) reject(code int, msg string, cause error) *UploadError {
	uploadsTotal.WithLabelValues("rejected").Inc()
	return &UploadError{StatusCode: code, Message: msg, Err: cause}
}

// archive сохраняет исходный файл. Ошибка архива не влияет на загрузку.
func (s *SOHUploadService) archive(ctx context.Context, ref *model.DataReference, file *UploadFile, log *slog.Logger) {
	if s.archiver == nil {
		return
	}
	key := archive.Key(ref.ProjectID, ref.ID, ref.Filename)
	if err := s.archiver.Put(ctx, key, file.ContentType, file.Data); err != nil {
		log.Warn("Не удалось сохранить файл в архив", slog.String("error", err.Error()))
		return
	}
	if err := s.refs.SetArchiveKey(ctx, ref.ID, key); err != nil {
		log.Warn("Не удалось сохранить ключ архива", slog.String("error", err.Error()))
		return
	}
	ref.ArchiveKey = &key
}

// ingestion — одна попытка загрузки; status отслеживает текущий статус
// записи для условных обновлений.
type ingestion struct {
	svc     *SOHUploadService
	ref     *model.DataReference
	status  lifecycle.Status
	written int
	log     *slog.Logger
}

func (r *ingestion) process(ctx context.Context, data []byte) (*UploadResult, error) {
	sheet, err := spreadsheet.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("разбор файла: %w", err)
	}
	if sheet.Empty() {
		return nil, r.fail(ctx, MsgEmptyFile)
	}

	if missing := sheet.MissingColumns(ColumnSKU, ColumnDescription, ColumnQuantity); len(missing) > 0 {
		return nil, r.fail(ctx, fmt.Sprintf("Missing required column(s): %s.", strings.Join(missing, ", ")))
	}

	if err := r.advance(ctx, lifecycle.StatusStoring); err != nil {
		return nil, err
	}

	acc := NewBatchAccumulator(r.svc.batchSize, func(ctx context.Context, batch []*model.StockRecord) error {
		if err := r.svc.records.WriteBatch(ctx, batch); err != nil {
			return err
		}
		batchesCommitted.Inc()
		return nil
	})

	var rowErrors []string
	for _, row := range sheet.Rows {
		rec, reason := r.buildRecord(row)
		if reason != "" {
			rowErrors = append(rowErrors, reason)
			continue
		}
		if err := acc.Add(ctx, rec); err != nil {
			r.written = acc.Written()
			return nil, fmt.Errorf("запись пакета строк: %w", err)
		}
	}
	if err := acc.Flush(ctx); err != nil {
		r.written = acc.Written()
		return nil, fmt.Errorf("запись последнего пакета строк: %w", err)
	}
	r.written = acc.Written()

	rowsTotal.WithLabelValues("stored").Add(float64(r.written))
	rowsTotal.WithLabelValues("skipped").Add(float64(len(rowErrors)))

	if r.written == 0 {
		msg := fmt.Sprintf("No valid rows found. %d errors. First errors: %s",
			len(rowErrors), strings.Join(firstN(rowErrors, maxReportedErrors), "; "))
		return nil, r.fail(ctx, msg)
	}

	var warning *string
	if len(rowErrors) > 0 {
		w := fmt.Sprintf("Processed with %d skipped row(s). First reasons: %s",
			len(rowErrors), strings.Join(firstN(rowErrors, maxReportedWarnings), "; "))
		warning = &w
	}
	if err := r.finish(ctx, lifecycle.StatusCompleted, warning); err != nil {
		return nil, err
	}

	r.log.Info("Загрузка SOH завершена",
		slog.Int("stored", r.written),
		slog.Int("skipped", len(rowErrors)),
		slog.Int("batches", acc.Batches()),
	)

	return &UploadResult{
		Message:        MsgUploadSuccess,
		ReferenceID:    r.ref.ID,
		ItemsProcessed: r.written,
		Errors:         rowErrors,
	}, nil
}

// buildRecord проверяет строку: SKU, затем количество, затем описание,
// затем необязательную Location. Возвращает причину отказа для первой
// непройденной проверки. Строка, прошедшая проверки, укладывается в
// ограничения soh_stock_records.
func (r *ingestion) buildRecord(row spreadsheet.Row) (*model.StockRecord, string) {
	sku := cell(row, ColumnSKU)
	if sku == "" || !storableText(sku, maxSKULength) {
		return nil, rowError(row.Number, ColumnSKU)
	}
	qty, ok := parseQuantity(cell(row, ColumnQuantity))
	if !ok {
		return nil, rowError(row.Number, ColumnQuantity)
	}
	desc := cell(row, ColumnDescription)
	if desc == "" || !storableText(desc, 0) {
		return nil, rowError(row.Number, ColumnDescription)
	}
	loc := cell(row, ColumnLocation)
	if !storableText(loc, maxLocationLength) {
		return nil, rowError(row.Number, ColumnLocation)
	}

	rec := &model.StockRecord{
		ID:              uuid.NewString(),
		SKU:             sku,
		Description:     desc,
		SOHQuantity:     qty,
		ProjectID:       r.ref.ProjectID,
		DataReferenceID: r.ref.ID,
	}
	if loc != "" {
		rec.Location = &loc
	}
	return rec, ""
}

func (r *ingestion) advance(ctx context.Context, to lifecycle.Status) error {
	if err := r.svc.refs.UpdateStatus(ctx, r.ref.ID, r.status, to); err != nil {
		return fmt.Errorf("перевод загрузки в %s: %w", to, err)
	}
	r.status = to
	r.ref.Status = to
	return nil
}

func (r *ingestion) finish(ctx context.Context, to lifecycle.Status, msg *string) error {
	now := r.svc.now()
	err := r.svc.refs.Finalize(ctx, r.ref.ID, r.status, repository.FinalizeParams{
		Status:      to,
		RowCount:    r.written,
		ProcessedAt: now,
		Message:     msg,
	})
	if err != nil {
		return fmt.Errorf("завершение загрузки в %s: %w", to, err)
	}
	r.status = to
	r.ref.Status = to
	r.ref.RowCount = r.written
	r.ref.ProcessedAt = &now
	r.ref.ErrorMessage = msg
	return nil
}

// fail переводит загрузку в ValidationError. Возвращает *UploadError
// при успехе или ошибку обновления статуса.
func (r *ingestion) fail(ctx context.Context, msg string) error {
	if err := r.finish(ctx, lifecycle.StatusValidationError, &msg); err != nil {
		return err
	}
	r.log.Warn("Загрузка SOH отклонена", slog.String("reason", msg))
	return &UploadError{StatusCode: http.StatusBadRequest, Message: msg, Err: ErrValidation}
}

// markSystemError пытается оставить загрузку в SystemError.
// Ошибка обновления только логируется.
func (r *ingestion) markSystemError(ctx context.Context, cause error) {
	if lifecycle.IsTerminal(r.status) {
		return
	}
	detail := cause.Error()
	if err := r.finish(ctx, lifecycle.StatusSystemError, &detail); err != nil {
		r.log.Error("Не удалось перевести загрузку в SystemError",
			slog.String("error", err.Error()),
			slog.String("cause", detail),
		)
	}
}

func cell(row spreadsheet.Row, column string) string {
	v, _ := row.Value(column)
	return strings.TrimSpace(v)
}

// storableText — значение допустимо для текстовой колонки PostgreSQL:
// корректный UTF-8 без NUL и не длиннее maxLen символов (0 — без предела).
// Файлы в однобайтовых кодировках (Windows-1252) дают здесь отказ строки.
func storableText(s string, maxLen int) bool {
	if !utf8.ValidString(s) || strings.IndexByte(s, 0) >= 0 {
		return false
	}
	return maxLen == 0 || utf8.RuneCountInString(s) <= maxLen
}

// parseQuantity принимает конечное неотрицательное число.
func parseQuantity(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	if v == 0 {
		v = 0 // -0 → 0
	}
	return v, true
}

func rowError(number int, field string) string {
	return fmt.Sprintf("Row %d: %s is missing or invalid.", number, field)
}

func firstN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
