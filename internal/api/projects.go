package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/benchhub/hub/internal/huberrors"
	"github.com/benchhub/hub/internal/portregistry"
	"github.com/benchhub/hub/internal/projectorchestrator"
	"github.com/benchhub/hub/internal/repositories"
	"github.com/benchhub/hub/internal/store"
)

// ProjectHandler groups the project CRUD and lifecycle HTTP handlers
// (spec.md §4.1).
type ProjectHandler struct {
	projects repositories.ProjectRepository
	orch     *projectorchestrator.Orchestrator
	logger   *zap.Logger
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(projects repositories.ProjectRepository, orch *projectorchestrator.Orchestrator, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, orch: orch, logger: logger.Named("project_handler")}
}

type projectResponse struct {
	ID           string `json:"id"`
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	Path         string `json:"path"`
	Status       string `json:"status"`
	BackendPort  *int   `json:"backend_port,omitempty"`
	FrontendPort *int   `json:"frontend_port,omitempty"`
	DBPort       *int   `json:"db_port,omitempty"`
	CachePort    *int   `json:"cache_port,omitempty"`
	LastError    string `json:"last_error,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func projectToResponse(p *store.Project) projectResponse {
	return projectResponse{
		ID:           p.ID.String(),
		Slug:         p.Slug,
		Name:         p.Name,
		Path:         p.Path,
		Status:       string(p.Status),
		BackendPort:  p.BackendPort,
		FrontendPort: p.FrontendPort,
		DBPort:       p.DBPort,
		CachePort:    p.CachePort,
		LastError:    p.LastError,
		CreatedAt:    p.CreatedAt.UTC().Format(timeFormat),
	}
}

type listProjectsResponse struct {
	Items []projectResponse `json:"items"`
	Total int64             `json:"total"`
}

// List handles GET /api/v1/projects.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, total, err := h.projects.List(r.Context(), paginationOpts(r))
	if err != nil {
		h.logger.Error("failed to list projects", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]projectResponse, len(projects))
	for i := range projects {
		items[i] = projectToResponse(&projects[i])
	}
	Ok(w, listProjectsResponse{Items: items, Total: total})
}

type createProjectRequest struct {
	Slug string `json:"slug" validate:"required,slug"`
	Name string `json:"name" validate:"required"`
	Path string `json:"path" validate:"required"`
	// RegistryAuth is an optional private-registry credential, write-only —
	// never echoed back in projectResponse.
	RegistryAuth string `json:"registry_auth,omitempty"`
}

// Create handles POST /api/v1/projects.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	project := &store.Project{
		Slug:         req.Slug,
		Name:         req.Name,
		Path:         req.Path,
		Status:       store.ProjectStopped,
		RegistryAuth: store.EncryptedString(req.RegistryAuth),
	}
	if err := h.projects.Create(r.Context(), project); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			ErrConflict(w, "a project with this slug already exists")
			return
		}
		h.logger.Error("failed to create project", zap.Error(err))
		ErrInternal(w)
		return
	}
	Created(w, projectToResponse(project))
}

// GetByID handles GET /api/v1/projects/{id}.
func (h *ProjectHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	project, err := h.projects.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	Ok(w, projectToResponse(project))
}

type updateProjectRequest struct {
	Name         *string `json:"name"`
	Path         *string `json:"path"`
	RegistryAuth *string `json:"registry_auth"`
}

// Update handles PATCH /api/v1/projects/{id}.
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	var req updateProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	project, err := h.projects.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.Path != nil {
		project.Path = *req.Path
	}
	if req.RegistryAuth != nil {
		project.RegistryAuth = store.EncryptedString(*req.RegistryAuth)
	}
	if err := h.projects.Update(r.Context(), project); err != nil {
		h.logger.Error("failed to update project", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, projectToResponse(project))
}

// Delete handles DELETE /api/v1/projects/{id}.
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.orch.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	NoContent(w)
}

type startProjectRequest struct {
	BackendPort  *int `json:"backend_port"`
	FrontendPort *int `json:"frontend_port"`
	DBPort       *int `json:"db_port"`
	CachePort    *int `json:"cache_port"`
}

// Start handles POST /api/v1/projects/{id}/start. Accepts an optional
// explicit port quad; when omitted the port registry allocates one from its
// configured ranges.
func (h *ProjectHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	var req startProjectRequest
	if r.ContentLength > 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}

	explicit := req.BackendPort != nil && req.FrontendPort != nil && req.DBPort != nil && req.CachePort != nil
	var quad portregistry.Quad
	if explicit {
		quad = portregistry.Quad{
			Backend:  *req.BackendPort,
			Frontend: *req.FrontendPort,
			DB:       *req.DBPort,
			Cache:    *req.CachePort,
		}
	}

	if err := h.orch.Start(r.Context(), id, quad, explicit); err != nil {
		if errors.Is(err, huberrors.ErrAlreadyInProgress) {
			ErrConflict(w, "a lifecycle operation is already in progress for this project")
			return
		}
		writeError(w, err)
		return
	}
	project, err := h.orch.GetStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	Accepted(w, projectToResponse(project))
}

// Stop handles POST /api/v1/projects/{id}/stop.
func (h *ProjectHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.orch.Stop(r.Context(), id); err != nil {
		if errors.Is(err, huberrors.ErrAlreadyInProgress) {
			ErrConflict(w, "a lifecycle operation is already in progress for this project")
			return
		}
		writeError(w, err)
		return
	}
	project, err := h.orch.GetStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	Ok(w, projectToResponse(project))
}

// Restart handles POST /api/v1/projects/{id}/restart.
func (h *ProjectHandler) Restart(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.orch.Restart(r.Context(), id); err != nil {
		if errors.Is(err, huberrors.ErrAlreadyInProgress) {
			ErrConflict(w, "a lifecycle operation is already in progress for this project")
			return
		}
		writeError(w, err)
		return
	}
	project, err := h.orch.GetStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	Accepted(w, projectToResponse(project))
}

// Status handles GET /api/v1/projects/{id}/status.
func (h *ProjectHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	project, err := h.orch.GetStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	Ok(w, projectToResponse(project))
}
