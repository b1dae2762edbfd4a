// soh_upload.go — POST /api/v1/soh-upload.
package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	apierrors "github.com/bigkaa/stockflow/internal/api/errors"
	"github.com/bigkaa/stockflow/internal/auth"
	"github.com/bigkaa/stockflow/internal/service"
)

// Поля multipart-формы загрузки.
const (
	formFieldFile      = "file"
	formFieldProjectID = "projectId"
)

// multipartMemory — часть формы, хранимая в памяти; остальное во временных файлах.
const multipartMemory = 32 << 20

type uploadResponse struct {
	Message        string   `json:"message"`
	ReferenceID    string   `json:"sohDataReferenceId"`
	ItemsProcessed int      `json:"itemsProcessed"`
	Errors         []string `json:"errors,omitempty"`
}

// UploadSOH принимает SOH-файл (поля file и projectId).
// Права роли проверяются до чтения тела, поэтому 413 получает только
// пользователь, которому загрузка разрешена.
func (h *APIHandler) UploadSOH(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if ue := h.uploads.Authorize(id); ue != nil {
		h.writeUploadError(w, ue)
		return
	}

	if h.maxUploadBytes > 0 {
		if r.ContentLength > h.maxUploadBytes {
			apierrors.TooLarge(w, "The uploaded file exceeds the allowed size.")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	in, err := readUploadForm(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierrors.TooLarge(w, "The uploaded file exceeds the allowed size.")
			return
		}
		h.logger.Debug("Некорректная форма загрузки", slog.String("error", err.Error()))
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	res, err := h.uploads.Upload(r.Context(), id, in)
	if err != nil {
		var ue *service.UploadError
		if !errors.As(err, &ue) {
			h.writeServiceError(w, err, "загрузка SOH")
			return
		}
		h.writeUploadError(w, ue)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Message:        res.Message,
		ReferenceID:    res.ReferenceID,
		ItemsProcessed: res.ItemsProcessed,
		Errors:         res.Errors,
	})
}

// writeUploadError пишет отказ загрузки; текст внутренней ошибки — только для 5xx.
func (h *APIHandler) writeUploadError(w http.ResponseWriter, ue *service.UploadError) {
	body := apierrors.Body{
		Message:     ue.Message,
		Code:        apierrors.CodeForStatus(ue.StatusCode),
		ReferenceID: ue.ReferenceID,
	}
	if ue.StatusCode >= http.StatusInternalServerError {
		body.Error = ue.Detail
	}
	apierrors.Write(w, ue.StatusCode, body)
}

// readUploadForm разбирает форму. Отсутствующий файл даёт File == nil;
// решение об ответе принимает сервис, чтобы проверка прав шла первой.
func readUploadForm(r *http.Request) (service.UploadInput, error) {
	var in service.UploadInput
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return in, err
	}
	in.ProjectID = r.FormValue(formFieldProjectID)

	file, header, err := r.FormFile(formFieldFile)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return in, nil
		}
		return in, err
	}
	defer file.Close()

	uf, err := readUploadFile(file, header)
	if err != nil {
		return in, err
	}
	in.File = uf
	return in, nil
}

func readUploadFile(file multipart.File, header *multipart.FileHeader) (*service.UploadFile, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return &service.UploadFile{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        int64(len(data)),
		Data:        data,
	}, nil
}
