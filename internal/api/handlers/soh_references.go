// soh_references.go — просмотр загрузок SOH и их строк, блокировка.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/stockflow/internal/api/errors"
	"github.com/bigkaa/stockflow/internal/auth"
	"github.com/bigkaa/stockflow/internal/domain/model"
)

type referenceResponse struct {
	ID                   string     `json:"id"`
	Filename             string     `json:"filename"`
	UploadedBy           string     `json:"uploadedBy"`
	UploadedAt           time.Time  `json:"uploadedAt"`
	ProjectID            string     `json:"projectId"`
	ContentType          string     `json:"contentType"`
	Size                 int64      `json:"size"`
	RowCount             int        `json:"rowCount"`
	Status               string     `json:"status"`
	ErrorMessage         *string    `json:"errorMessage,omitempty"`
	ProcessedAt          *time.Time `json:"processedAt,omitempty"`
	IsLocked             bool       `json:"isLocked"`
	DeleteTokenExpiresAt *time.Time `json:"deleteApprovalTokenExpires,omitempty"`
}

type referenceListResponse struct {
	Items []referenceResponse `json:"items"`
}

type recordResponse struct {
	ID          string  `json:"id"`
	SKU         string  `json:"sku"`
	Description string  `json:"description"`
	SOHQuantity float64 `json:"sohQuantity"`
	Location    *string `json:"location,omitempty"`
}

type recordPageResponse struct {
	Items  []recordResponse `json:"items"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// mapReference не выдаёт хэш токена удаления наружу.
func mapReference(ref *model.DataReference) referenceResponse {
	return referenceResponse{
		ID:                   ref.ID,
		Filename:             ref.Filename,
		UploadedBy:           ref.UploadedBy,
		UploadedAt:           ref.UploadedAt,
		ProjectID:            ref.ProjectID,
		ContentType:          ref.ContentType,
		Size:                 ref.SizeBytes,
		RowCount:             ref.RowCount,
		Status:               string(ref.Status),
		ErrorMessage:         ref.ErrorMessage,
		ProcessedAt:          ref.ProcessedAt,
		IsLocked:             ref.IsLocked,
		DeleteTokenExpiresAt: ref.DeleteTokenExpiresAt,
	}
}

// ListProjectReferences — GET /api/v1/projects/{projectID}/soh-references.
func (h *APIHandler) ListProjectReferences(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	refs, err := h.references.ListByProject(r.Context(), auth.FromContext(r.Context()),
		chi.URLParam(r, "projectID"), limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "получение загрузок проекта")
		return
	}

	resp := referenceListResponse{Items: make([]referenceResponse, 0, len(refs))}
	for _, ref := range refs {
		resp.Items = append(resp.Items, mapReference(ref))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetReference — GET /api/v1/soh-references/{id}.
func (h *APIHandler) GetReference(w http.ResponseWriter, r *http.Request) {
	ref, err := h.references.Get(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "получение загрузки")
		return
	}
	writeJSON(w, http.StatusOK, mapReference(ref))
}

// ListReferenceRecords — GET /api/v1/soh-references/{id}/records.
func (h *APIHandler) ListReferenceRecords(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	page, err := h.references.ListRecords(r.Context(), auth.FromContext(r.Context()),
		chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "получение строк SOH")
		return
	}

	resp := recordPageResponse{
		Items:  make([]recordResponse, 0, len(page.Items)),
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	for _, rec := range page.Items {
		resp.Items = append(resp.Items, recordResponse{
			ID:          rec.ID,
			SKU:         rec.SKU,
			Description: rec.Description,
			SOHQuantity: rec.SOHQuantity,
			Location:    rec.Location,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// LockReference — POST /api/v1/soh-references/{id}/lock.
func (h *APIHandler) LockReference(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, true)
}

// UnlockReference — POST /api/v1/soh-references/{id}/unlock.
func (h *APIHandler) UnlockReference(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, false)
}

func (h *APIHandler) setLocked(w http.ResponseWriter, r *http.Request, locked bool) {
	ref, err := h.references.SetLocked(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "id"), locked)
	if err != nil {
		h.writeServiceError(w, err, "изменение блокировки загрузки")
		return
	}
	writeJSON(w, http.StatusOK, mapReference(ref))
}
