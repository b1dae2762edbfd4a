// projects.go — /api/v1/projects.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/stockflow/internal/api/errors"
	"github.com/bigkaa/stockflow/internal/auth"
	"github.com/bigkaa/stockflow/internal/domain/model"
	"github.com/bigkaa/stockflow/internal/service"
)

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type projectResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

type projectListResponse struct {
	Items []projectResponse `json:"items"`
}

func mapProject(p *model.Project) projectResponse {
	return projectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   p.CreatedAt,
	}
}

// CreateProject — POST /api/v1/projects (superuser).
func (h *APIHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	p, err := h.projects.Create(r.Context(), auth.FromContext(r.Context()), service.CreateProjectInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.writeServiceError(w, err, "создание проекта")
		return
	}
	writeJSON(w, http.StatusCreated, mapProject(p))
}

// ListProjects — GET /api/v1/projects.
func (h *APIHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	projects, err := h.projects.List(r.Context(), auth.FromContext(r.Context()), limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "получение списка проектов")
		return
	}

	resp := projectListResponse{Items: make([]projectResponse, 0, len(projects))}
	for _, p := range projects {
		resp.Items = append(resp.Items, mapProject(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetProject — GET /api/v1/projects/{projectID}.
func (h *APIHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.projects.Get(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "projectID"))
	if err != nil {
		h.writeServiceError(w, err, "получение проекта")
		return
	}
	writeJSON(w, http.StatusOK, mapProject(p))
}
