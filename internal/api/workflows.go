package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benchhub/hub/internal/repositories"
	"github.com/benchhub/hub/internal/store"
	"github.com/benchhub/hub/internal/workflow"
)

// WorkflowHandler groups the workflow definition, run, and approval HTTP
// handlers (spec.md §4.2).
type WorkflowHandler struct {
	workflows repositories.WorkflowRepository
	runs      repositories.WorkflowRunRepository
	engine    *workflow.Engine
	logger    *zap.Logger
}

// NewWorkflowHandler creates a new WorkflowHandler.
func NewWorkflowHandler(workflows repositories.WorkflowRepository, runs repositories.WorkflowRunRepository, engine *workflow.Engine, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows, runs: runs, engine: engine, logger: logger.Named("workflow_handler")}
}

type workflowResponse struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Name      string          `json:"name"`
	Trigger   string          `json:"trigger"`
	Status    string          `json:"status"`
	Schedule  string          `json:"schedule,omitempty"`
	Nodes     json.RawMessage `json:"nodes"`
	Edges     json.RawMessage `json:"edges"`
	CreatedAt string          `json:"created_at"`
}

func workflowToResponse(wf *store.Workflow) workflowResponse {
	return workflowResponse{
		ID:        wf.ID.String(),
		ProjectID: wf.ProjectID.String(),
		Name:      wf.Name,
		Trigger:   string(wf.Trigger),
		Status:    string(wf.Status),
		Schedule:  wf.Schedule,
		Nodes:     json.RawMessage(wf.NodesJSON),
		Edges:     json.RawMessage(wf.EdgesJSON),
		CreatedAt: wf.CreatedAt.UTC().Format(timeFormat),
	}
}

type listWorkflowsResponse struct {
	Items []workflowResponse `json:"items"`
	Total int64              `json:"total"`
}

// List handles GET /api/v1/workflows. Filters to a single project when
// project_id is supplied as a query parameter.
func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	if pid := r.URL.Query().Get("project_id"); pid != "" {
		id, err := uuid.Parse(pid)
		if err != nil {
			ErrBadRequest(w, "invalid project_id: must be a valid UUID")
			return
		}
		workflows, err := h.workflows.ListByProject(r.Context(), id)
		if err != nil {
			h.logger.Error("failed to list workflows by project", zap.Error(err))
			ErrInternal(w)
			return
		}
		items := make([]workflowResponse, len(workflows))
		for i := range workflows {
			items[i] = workflowToResponse(&workflows[i])
		}
		Ok(w, listWorkflowsResponse{Items: items, Total: int64(len(items))})
		return
	}

	workflows, total, err := h.workflows.List(r.Context(), paginationOpts(r))
	if err != nil {
		h.logger.Error("failed to list workflows", zap.Error(err))
		ErrInternal(w)
		return
	}
	items := make([]workflowResponse, len(workflows))
	for i := range workflows {
		items[i] = workflowToResponse(&workflows[i])
	}
	Ok(w, listWorkflowsResponse{Items: items, Total: total})
}

type createWorkflowRequest struct {
	ProjectID string          `json:"project_id" validate:"required,uuid"`
	Name      string          `json:"name" validate:"required"`
	Trigger   string          `json:"trigger" validate:"omitempty,oneof=MANUAL SCHEDULE EVENT WEBHOOK"`
	Schedule  string          `json:"schedule"`
	Nodes     json.RawMessage `json:"nodes"`
	Edges     json.RawMessage `json:"edges"`
}

// Create handles POST /api/v1/workflows. The DAG is validated before the
// workflow is persisted — an invalid graph never reaches DRAFT.
func (h *WorkflowHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		ErrBadRequest(w, "invalid project_id: must be a valid UUID")
		return
	}

	nodesJSON := orDefault(string(req.Nodes), "[]")
	edgesJSON := orDefault(string(req.Edges), "[]")

	nodes, err := workflow.ParseNodes(nodesJSON)
	if err != nil {
		ErrUnprocessable(w, err.Error())
		return
	}
	edges, err := workflow.ParseEdges(edgesJSON)
	if err != nil {
		ErrUnprocessable(w, err.Error())
		return
	}
	if err := workflow.Validate(nodes, edges); err != nil {
		ErrUnprocessable(w, err.Error())
		return
	}

	wf := &store.Workflow{
		ProjectID: projectID,
		Name:      req.Name,
		Trigger:   store.WorkflowTrigger(orDefault(req.Trigger, string(store.TriggerManual))),
		Status:    store.WorkflowDraft,
		Schedule:  req.Schedule,
		NodesJSON: nodesJSON,
		EdgesJSON: edgesJSON,
	}
	if err := h.workflows.Create(r.Context(), wf); err != nil {
		h.logger.Error("failed to create workflow", zap.Error(err))
		ErrInternal(w)
		return
	}
	Created(w, workflowToResponse(wf))
}

// GetByID handles GET /api/v1/workflows/{id}.
func (h *WorkflowHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	wf, err := h.workflows.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	Ok(w, workflowToResponse(wf))
}

type updateWorkflowRequest struct {
	Name     *string         `json:"name"`
	Status   *string         `json:"status"`
	Schedule *string         `json:"schedule"`
	Nodes    json.RawMessage `json:"nodes"`
	Edges    json.RawMessage `json:"edges"`
}

// Update handles PATCH /api/v1/workflows/{id}. Re-validates the DAG
// whenever nodes or edges change.
func (h *WorkflowHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	var req updateWorkflowRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if req.Name != nil {
		wf.Name = *req.Name
	}
	if req.Status != nil {
		wf.Status = store.WorkflowStatus(*req.Status)
	}
	if req.Schedule != nil {
		wf.Schedule = *req.Schedule
	}
	if req.Nodes != nil {
		wf.NodesJSON = string(req.Nodes)
	}
	if req.Edges != nil {
		wf.EdgesJSON = string(req.Edges)
	}
	if req.Nodes != nil || req.Edges != nil {
		nodes, err := workflow.ParseNodes(wf.NodesJSON)
		if err != nil {
			ErrUnprocessable(w, err.Error())
			return
		}
		edges, err := workflow.ParseEdges(wf.EdgesJSON)
		if err != nil {
			ErrUnprocessable(w, err.Error())
			return
		}
		if err := workflow.Validate(nodes, edges); err != nil {
			ErrUnprocessable(w, err.Error())
			return
		}
	}

	if err := h.workflows.Update(r.Context(), wf); err != nil {
		h.logger.Error("failed to update workflow", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, workflowToResponse(wf))
}

// Delete handles DELETE /api/v1/workflows/{id}.
func (h *WorkflowHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.workflows.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	NoContent(w)
}

type triggerWorkflowRequest struct {
	TriggerContext  json.RawMessage `json:"trigger_context"`
	CorrelationID   string          `json:"correlation_id"`
}

type triggerWorkflowResponse struct {
	RunID string `json:"run_id"`
}

// Trigger handles POST /api/v1/workflows/{id}/trigger.
func (h *WorkflowHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	var req triggerWorkflowRequest
	if r.ContentLength > 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	if req.TriggerContext == nil {
		req.TriggerContext = json.RawMessage("{}")
	}
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}

	runID, err := h.engine.TriggerRun(r.Context(), id, req.TriggerContext, req.CorrelationID)
	if err != nil {
		writeError(w, err)
		return
	}
	Accepted(w, triggerWorkflowResponse{RunID: runID.String()})
}

type nodeRunResponse struct {
	ID             string `json:"id"`
	NodeID         string `json:"node_id"`
	Status         string `json:"status"`
	Attempt        int    `json:"attempt"`
	OutputSnapshot string `json:"output_snapshot,omitempty"`
	LogsRef        string `json:"logs_ref,omitempty"`
	ExitCode       *int   `json:"exit_code,omitempty"`
	ErrorCode      string `json:"error_code,omitempty"`
	StartedAt      string `json:"started_at,omitempty"`
	FinishedAt     string `json:"finished_at,omitempty"`
}

func nodeRunToResponse(nr *store.NodeRun) nodeRunResponse {
	resp := nodeRunResponse{
		ID:             nr.ID.String(),
		NodeID:         nr.NodeID,
		Status:         string(nr.Status),
		Attempt:        nr.Attempt,
		OutputSnapshot: nr.OutputSnapshot,
		LogsRef:        nr.LogsRef,
		ExitCode:       nr.ExitCode,
		ErrorCode:      nr.ErrorCode,
	}
	if nr.StartedAt != nil {
		resp.StartedAt = nr.StartedAt.UTC().Format(timeFormat)
	}
	if nr.FinishedAt != nil {
		resp.FinishedAt = nr.FinishedAt.UTC().Format(timeFormat)
	}
	return resp
}

type runResponse struct {
	ID            string            `json:"id"`
	WorkflowID    string            `json:"workflow_id"`
	Status        string            `json:"status"`
	CorrelationID string            `json:"correlation_id"`
	StartedAt     string            `json:"started_at,omitempty"`
	FinishedAt    string            `json:"finished_at,omitempty"`
	NodeRuns      []nodeRunResponse `json:"node_runs,omitempty"`
}

func runToResponse(run *store.WorkflowRun, nodeRuns []store.NodeRun) runResponse {
	resp := runResponse{
		ID:            run.ID.String(),
		WorkflowID:    run.WorkflowID.String(),
		Status:        string(run.Status),
		CorrelationID: run.CorrelationID,
	}
	if run.StartedAt != nil {
		resp.StartedAt = run.StartedAt.UTC().Format(timeFormat)
	}
	if run.FinishedAt != nil {
		resp.FinishedAt = run.FinishedAt.UTC().Format(timeFormat)
	}
	for i := range nodeRuns {
		resp.NodeRuns = append(resp.NodeRuns, nodeRunToResponse(&nodeRuns[i]))
	}
	return resp
}

// GetRun handles GET /api/v1/runs/{id}, returning the run together with
// every node run's current state.
func (h *WorkflowHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	run, nodeRuns, err := h.engine.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	Ok(w, runToResponse(run, nodeRuns))
}

type listRunsResponse struct {
	Items []runResponse `json:"items"`
	Total int64         `json:"total"`
}

// ListRuns handles GET /api/v1/workflows/{id}/runs.
func (h *WorkflowHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	runs, total, err := h.runs.ListByWorkflow(r.Context(), id, paginationOpts(r))
	if err != nil {
		h.logger.Error("failed to list runs", zap.String("workflow_id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	items := make([]runResponse, len(runs))
	for i := range runs {
		items[i] = runToResponse(&runs[i], nil)
	}
	Ok(w, listRunsResponse{Items: items, Total: total})
}

type nodeRunLogResponse struct {
	Stream    string `json:"stream"`
	Line      string `json:"line"`
	Timestamp string `json:"timestamp"`
}

type listNodeRunLogsResponse struct {
	Items []nodeRunLogResponse `json:"items"`
}

// GetNodeRunLogs handles GET /api/v1/runs/{id}/nodes/{nodeId}/logs. Logs are
// bulk-captured at node completion (see workflow.Engine), so this is a
// plain read rather than a live stream.
func (h *WorkflowHandler) GetNodeRunLogs(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	nodeID := chiURLParam(r, "nodeId")
	if nodeID == "" {
		ErrBadRequest(w, "nodeId is required")
		return
	}

	nr, err := h.runs.GetNodeRun(r.Context(), runID, nodeID)
	if err != nil {
		writeError(w, err)
		return
	}
	logs, err := h.runs.GetNodeRunLogs(r.Context(), nr.ID)
	if err != nil {
		h.logger.Error("failed to get node run logs", zap.String("node_run_id", nr.ID.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	items := make([]nodeRunLogResponse, len(logs))
	for i := range logs {
		items[i] = nodeRunLogResponse{
			Stream:    logs[i].Stream,
			Line:      logs[i].Line,
			Timestamp: logs[i].Timestamp.UTC().Format(timeFormat),
		}
	}
	Ok(w, listNodeRunLogsResponse{Items: items})
}

// CancelRun handles POST /api/v1/runs/{id}/cancel.
func (h *WorkflowHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.engine.Cancel(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	NoContent(w)
}

type decideApprovalRequest struct {
	Decision string `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	Approver string `json:"approver" validate:"required"`
}

// DecideApproval handles POST /api/v1/approvals/{id}/decide.
func (h *WorkflowHandler) DecideApproval(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	var req decideApprovalRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	decision := store.ApprovalDecision(req.Decision)

	if err := h.engine.DecideApproval(r.Context(), id, decision, req.Approver); err != nil {
		writeError(w, err)
		return
	}
	NoContent(w)
}
