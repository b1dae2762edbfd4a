// handler.go — обработчики HTTP API StockFlow.
// Делегируют запросы в сервисный слой и переводят ошибки сервисов в HTTP-ответы.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/stockflow/internal/api/errors"
	"github.com/bigkaa/stockflow/internal/service"
)

// APIHandler — обработчики /api/v1.
type APIHandler struct {
	uploads        *service.SOHUploadService
	deletions      *service.SOHDeletionService
	references     *service.SOHReferenceService
	projects       *service.ProjectService
	maxUploadBytes int64
	appBaseURL     string
	logger         *slog.Logger
}

// Options — зависимости APIHandler.
type Options struct {
	Uploads    *service.SOHUploadService
	Deletions  *service.SOHDeletionService
	References *service.SOHReferenceService
	Projects   *service.ProjectService
	// MaxUploadBytes — предел тела multipart-запроса загрузки
	MaxUploadBytes int64
	// AppBaseURL — база для страниц результата подтверждения удаления
	AppBaseURL string
}

// NewAPIHandler создаёт обработчики API.
func NewAPIHandler(opts Options, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		uploads:        opts.Uploads,
		deletions:      opts.Deletions,
		references:     opts.References,
		projects:       opts.Projects,
		maxUploadBytes: opts.MaxUploadBytes,
		appBaseURL:     trimSlash(opts.AppBaseURL),
		logger:         logger.With(slog.String("component", "api_handler")),
	}
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError переводит ошибку сервиса в HTTP-ответ.
// op — описание операции для лога и сообщения 500.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrLocked):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	default:
		h.logger.Error("Ошибка обработки запроса",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка: "+op, err.Error())
	}
}

// pageParams читает limit и offset из query. Пустые значения — 0,
// нормализация выполняется сервисом.
func pageParams(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, errors.New("limit должен быть целым числом")
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			return 0, 0, errors.New("offset должен быть целым числом")
		}
	}
	return limit, offset, nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
