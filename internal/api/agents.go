package api

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benchhub/hub/internal/repositories"
	"github.com/benchhub/hub/internal/store"
)

// AgentHandler groups the agent registry HTTP handlers (spec.md §4.2).
type AgentHandler struct {
	repo   repositories.AgentRepository
	logger *zap.Logger
}

// NewAgentHandler creates a new AgentHandler.
func NewAgentHandler(repo repositories.AgentRepository, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{repo: repo, logger: logger.Named("agent_handler")}
}

type agentResponse struct {
	ID           string `json:"id"`
	ProjectID    string `json:"project_id,omitempty"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Risk         string `json:"risk"`
	Image        string `json:"image"`
	InputSchema  string `json:"input_schema"`
	OutputSchema string `json:"output_schema"`
	Capabilities string `json:"capabilities"`
	CreatedAt    string `json:"created_at"`
}

func agentToResponse(a *store.Agent) agentResponse {
	resp := agentResponse{
		ID:           a.ID.String(),
		Name:         a.Name,
		Type:         string(a.Type),
		Risk:         string(a.Risk),
		Image:        a.Image,
		InputSchema:  a.InputSchema,
		OutputSchema: a.OutputSchema,
		Capabilities: a.Capabilities,
		CreatedAt:    a.CreatedAt.UTC().Format(timeFormat),
	}
	if a.ProjectID != (uuid.UUID{}) {
		resp.ProjectID = a.ProjectID.String()
	}
	return resp
}

type listAgentsResponse struct {
	Items []agentResponse `json:"items"`
	Total int64           `json:"total"`
}

// List handles GET /api/v1/agents. Filters to a single project when
// project_id is supplied as a query parameter.
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	if pid := r.URL.Query().Get("project_id"); pid != "" {
		id, err := uuid.Parse(pid)
		if err != nil {
			ErrBadRequest(w, "invalid project_id: must be a valid UUID")
			return
		}
		agents, err := h.repo.ListByProject(r.Context(), id)
		if err != nil {
			h.logger.Error("failed to list agents by project", zap.Error(err))
			ErrInternal(w)
			return
		}
		items := make([]agentResponse, len(agents))
		for i := range agents {
			items[i] = agentToResponse(&agents[i])
		}
		Ok(w, listAgentsResponse{Items: items, Total: int64(len(items))})
		return
	}

	agents, total, err := h.repo.List(r.Context(), paginationOpts(r))
	if err != nil {
		h.logger.Error("failed to list agents", zap.Error(err))
		ErrInternal(w)
		return
	}
	items := make([]agentResponse, len(agents))
	for i := range agents {
		items[i] = agentToResponse(&agents[i])
	}
	Ok(w, listAgentsResponse{Items: items, Total: total})
}

type createAgentRequest struct {
	ProjectID    string `json:"project_id"`
	Name         string `json:"name" validate:"required"`
	Type         string `json:"type" validate:"omitempty,oneof=ANALYSIS ACTION NOTIFIER"`
	Risk         string `json:"risk" validate:"omitempty,oneof=AUTO APPROVAL_REQUIRED HUMAN_ONLY"`
	Image        string `json:"image" validate:"required"`
	InputSchema  string `json:"input_schema"`
	OutputSchema string `json:"output_schema"`
	Capabilities string `json:"capabilities"`
}

// Create handles POST /api/v1/agents.
func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	agent := &store.Agent{
		Name:         req.Name,
		Type:         store.AgentType(req.Type),
		Risk:         store.AgentRiskLevel(req.Risk),
		Image:        req.Image,
		InputSchema:  orDefault(req.InputSchema, "{}"),
		OutputSchema: orDefault(req.OutputSchema, "{}"),
		Capabilities: orDefault(req.Capabilities, "[]"),
	}
	if req.ProjectID != "" {
		id, err := uuid.Parse(req.ProjectID)
		if err != nil {
			ErrBadRequest(w, "invalid project_id: must be a valid UUID")
			return
		}
		agent.ProjectID = id
	}
	if agent.Risk == "" {
		agent.Risk = store.RiskAuto
	}
	if agent.Type == "" {
		agent.Type = store.AgentAnalysis
	}

	if err := h.repo.Create(r.Context(), agent); err != nil {
		h.logger.Error("failed to create agent", zap.Error(err))
		ErrInternal(w)
		return
	}
	Created(w, agentToResponse(agent))
}

// GetByID handles GET /api/v1/agents/{id}.
func (h *AgentHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	agent, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	Ok(w, agentToResponse(agent))
}

type updateAgentRequest struct {
	Name         *string `json:"name"`
	Risk         *string `json:"risk"`
	Image        *string `json:"image"`
	InputSchema  *string `json:"input_schema"`
	OutputSchema *string `json:"output_schema"`
	Capabilities *string `json:"capabilities"`
}

// Update handles PATCH /api/v1/agents/{id}.
func (h *AgentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	var req updateAgentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	agent, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Name != nil {
		agent.Name = *req.Name
	}
	if req.Risk != nil {
		agent.Risk = store.AgentRiskLevel(*req.Risk)
	}
	if req.Image != nil {
		agent.Image = *req.Image
	}
	if req.InputSchema != nil {
		agent.InputSchema = *req.InputSchema
	}
	if req.OutputSchema != nil {
		agent.OutputSchema = *req.OutputSchema
	}
	if req.Capabilities != nil {
		agent.Capabilities = *req.Capabilities
	}

	if err := h.repo.Update(r.Context(), agent); err != nil {
		h.logger.Error("failed to update agent", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, agentToResponse(agent))
}

// Delete handles DELETE /api/v1/agents/{id}.
func (h *AgentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	NoContent(w)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
