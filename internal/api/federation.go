package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/benchhub/hub/internal/federation"
	"github.com/benchhub/hub/internal/huberrors"
	"github.com/benchhub/hub/internal/repositories"
	"github.com/benchhub/hub/internal/store"
	"github.com/benchhub/hub/internal/workflow"
)

// FederationHandler groups the federation catalog HTTP handlers (spec.md
// §4.4), plus the webhook inbox that turns an external alert into a
// workflow trigger.
type FederationHandler struct {
	catalog   *federation.Catalog
	workflows repositories.WorkflowRepository
	engine    *workflow.Engine
	logger    *zap.Logger
}

// NewFederationHandler creates a new FederationHandler.
func NewFederationHandler(catalog *federation.Catalog, workflows repositories.WorkflowRepository, engine *workflow.Engine, logger *zap.Logger) *FederationHandler {
	return &FederationHandler{catalog: catalog, workflows: workflows, engine: engine, logger: logger.Named("federation_handler")}
}

type federationResponse struct {
	Slug            string   `json:"slug"`
	Name            string   `json:"name"`
	HubURL          string   `json:"hub_url"`
	MeshNamespace   string   `json:"mesh_namespace"`
	Tags            []string `json:"tags"`
	Status          string   `json:"status"`
	LastHeartbeatAt string   `json:"last_heartbeat_at,omitempty"`
}

func federationToResponse(fp *store.FederationProject) federationResponse {
	var tags []string
	_ = json.Unmarshal([]byte(fp.Tags), &tags)
	resp := federationResponse{
		Slug:          fp.Slug,
		Name:          fp.Name,
		HubURL:        fp.HubURL,
		MeshNamespace: fp.MeshNamespace,
		Tags:          tags,
		Status:        string(fp.Status),
	}
	if fp.LastHeartbeatAt != nil {
		resp.LastHeartbeatAt = fp.LastHeartbeatAt.UTC().Format(timeFormat)
	}
	return resp
}

type registerFederationRequest struct {
	Slug          string   `json:"slug" validate:"required,slug"`
	Name          string   `json:"name" validate:"required"`
	HubURL        string   `json:"hub_url" validate:"required,url"`
	MeshNamespace string   `json:"mesh_namespace" validate:"required"`
	Tags          []string `json:"tags"`
}

// Register handles POST /api/v1/federation/projects.
func (h *FederationHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerFederationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	fp, err := h.catalog.Register(r.Context(), req.Slug, req.Name, req.HubURL, req.MeshNamespace, req.Tags)
	if err != nil {
		writeError(w, err)
		return
	}
	Created(w, federationToResponse(fp))
}

type listFederationResponse struct {
	Items []federationResponse `json:"items"`
	Total int64                `json:"total"`
}

// List handles GET /api/v1/federation/projects. Supports an optional status
// query parameter.
func (h *FederationHandler) List(w http.ResponseWriter, r *http.Request) {
	status := store.FederationStatus(r.URL.Query().Get("status"))
	rows, total, err := h.catalog.List(r.Context(), status, paginationOpts(r))
	if err != nil {
		h.logger.Error("failed to list federation projects", zap.Error(err))
		ErrInternal(w)
		return
	}
	items := make([]federationResponse, len(rows))
	for i := range rows {
		items[i] = federationToResponse(&rows[i])
	}
	Ok(w, listFederationResponse{Items: items, Total: total})
}

// Get handles GET /api/v1/federation/projects/{slug}.
func (h *FederationHandler) Get(w http.ResponseWriter, r *http.Request) {
	slug := chiURLParamSlug(r)
	if slug == "" {
		ErrBadRequest(w, "slug is required")
		return
	}
	fp, err := h.catalog.Get(r.Context(), slug)
	if err != nil {
		writeError(w, err)
		return
	}
	Ok(w, federationToResponse(fp))
}

type heartbeatRequest struct {
	Slug          string `json:"slug"`
	MeshNamespace string `json:"mesh_namespace"`
	At            string `json:"at"`
}

// Heartbeat handles POST /api/v1/federation/heartbeat. Child Hubs call this
// periodically to keep their catalog row marked ONLINE.
func (h *FederationHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Slug == "" || req.MeshNamespace == "" {
		ErrBadRequest(w, "slug and mesh_namespace are required")
		return
	}

	at := time.Now().UTC()
	if req.At != "" {
		t, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			ErrBadRequest(w, "invalid at: must be RFC3339")
			return
		}
		at = t
	}

	err := h.catalog.IngestHeartbeat(r.Context(), federation.Heartbeat{
		ProjectSlug:   req.Slug,
		MeshNamespace: req.MeshNamespace,
		At:            at,
	})
	if err != nil {
		if errors.Is(err, federation.ErrNamespaceMismatch) {
			ErrConflict(w, err.Error())
			return
		}
		if errors.Is(err, huberrors.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to ingest heartbeat", zap.String("slug", req.Slug), zap.Error(err))
		ErrInternal(w)
		return
	}
	NoContent(w)
}

type webhookRequest struct {
	WorkflowID     string          `json:"workflow_id"`
	TriggerContext json.RawMessage `json:"trigger_context"`
	CorrelationID  string          `json:"correlation_id"`
}

// Webhook handles POST /api/v1/federation/webhook. It is the inbound
// surface an external alert source (or a child Hub's own event bus) posts
// to in order to fire a workflow — the alert payload becomes the triggered
// run's trigger_context, the same way a MANUAL trigger's body does.
func (h *FederationHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.WorkflowID == "" {
		ErrBadRequest(w, "workflow_id is required")
		return
	}
	workflowID, err := parseUUIDString(req.WorkflowID)
	if err != nil {
		ErrBadRequest(w, "invalid workflow_id: must be a valid UUID")
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), workflowID)
	if err != nil {
		writeError(w, err)
		return
	}
	if wf.Status != store.WorkflowActive {
		ErrConflict(w, "workflow is not ACTIVE")
		return
	}

	if req.TriggerContext == nil {
		req.TriggerContext = json.RawMessage("{}")
	}
	if req.CorrelationID == "" {
		req.CorrelationID = r.Header.Get("X-Request-Id")
	}

	runID, err := h.engine.TriggerRun(r.Context(), workflowID, req.TriggerContext, req.CorrelationID)
	if err != nil {
		writeError(w, err)
		return
	}
	Accepted(w, triggerWorkflowResponse{RunID: runID.String()})
}
