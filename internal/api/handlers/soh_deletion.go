// soh_deletion.go — запрос и подтверждение удаления загрузки SOH.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/stockflow/internal/auth"
	"github.com/bigkaa/stockflow/internal/service"
)

// Страницы фронтенда с результатом подтверждения.
const (
	pageDeletionSuccess = "/deletion/success"
	pageDeletionInvalid = "/deletion/invalid"
	pageDeletionError   = "/deletion/error"
)

type deletionRequestResponse struct {
	Message     string    `json:"message"`
	ReferenceID string    `json:"sohDataReferenceId"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// RequestDeletion — POST /api/v1/soh-references/{id}/deletion-request.
func (h *APIHandler) RequestDeletion(w http.ResponseWriter, r *http.Request) {
	refID := chi.URLParam(r, "id")

	res, err := h.deletions.RequestDeletion(r.Context(), auth.FromContext(r.Context()), refID)
	if err != nil {
		h.writeServiceError(w, err, "запрос удаления загрузки")
		return
	}
	writeJSON(w, http.StatusOK, deletionRequestResponse{
		Message:     res.Message,
		ReferenceID: res.ReferenceID,
		ExpiresAt:   res.ExpiresAt,
	})
}

// ConfirmDeletion — GET /api/v1/soh-references/deletion/confirm?token=.
// Без сессии. Отвечает редиректом на страницу результата.
func (h *APIHandler) ConfirmDeletion(w http.ResponseWriter, r *http.Request) {
	res, err := h.deletions.ConfirmDeletion(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		var invalid *service.InvalidLinkError
		if errors.As(err, &invalid) {
			h.redirect(w, r, pageDeletionInvalid, url.Values{"reason": {invalid.Reason}})
			return
		}
		h.logger.Error("Ошибка подтверждения удаления", slog.String("error", err.Error()))
		h.redirect(w, r, pageDeletionError, nil)
		return
	}

	h.redirect(w, r, pageDeletionSuccess, url.Values{
		"filename":     {res.Filename},
		"deletedCount": {strconv.FormatInt(res.DeletedCount, 10)},
	})
}

func (h *APIHandler) redirect(w http.ResponseWriter, r *http.Request, page string, query url.Values) {
	target := h.appBaseURL + page
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	http.Redirect(w, r, target, http.StatusFound)
}
