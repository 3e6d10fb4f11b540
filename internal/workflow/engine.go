package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/benchhub/hub/internal/containerdriver"
	"github.com/benchhub/hub/internal/eventservice"
	"github.com/benchhub/hub/internal/huberrors"
	"github.com/benchhub/hub/internal/metrics"
	"github.com/benchhub/hub/internal/repositories"
	"github.com/benchhub/hub/internal/store"
)

// defaultLimits bounds a single agent container's execution when a node
// does not specify its own.
var defaultLimits = containerdriver.Limits{
	Timeout:   5 * time.Minute,
	MemoryMB:  512,
	CPUShares: 512,
}

// Engine schedules and executes workflow DAGs. The zero value is not
// usable — create instances with New.
type Engine struct {
	projects      repositories.ProjectRepository
	workflows     repositories.WorkflowRepository
	runs          repositories.WorkflowRunRepository
	agents        repositories.AgentRepository
	approvals     repositories.ApprovalRepository
	notifications repositories.NotificationRepository
	driver        containerdriver.Driver
	events        eventservice.Service
	logger        *zap.Logger

	sem *semaphore.Weighted

	mu     sync.Mutex
	cancel map[uuid.UUID]*runCancellation
}

// runCancellation is the cancellable context threaded into a run's
// driver.RunAgent calls, so Cancel can interrupt an in-flight container
// without tearing down the ctx used for the run's own bookkeeping.
type runCancellation struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds an Engine bounded to workerTokens concurrent node executions
// across all active runs (spec.md §5's worker token pool).
func New(
	projects repositories.ProjectRepository,
	workflows repositories.WorkflowRepository,
	runs repositories.WorkflowRunRepository,
	agents repositories.AgentRepository,
	approvals repositories.ApprovalRepository,
	notifications repositories.NotificationRepository,
	driver containerdriver.Driver,
	events eventservice.Service,
	workerTokens int,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		projects:      projects,
		workflows:     workflows,
		runs:          runs,
		agents:        agents,
		approvals:     approvals,
		notifications: notifications,
		driver:        driver,
		events:        events,
		logger:        logger.Named("workflow"),
		sem:           semaphore.NewWeighted(int64(workerTokens)),
		cancel:        make(map[uuid.UUID]*runCancellation),
	}
}

// TriggerRun creates a Workflow Run with one Node Run per workflow node
// (READY for nodes with no incoming edge, PENDING for the rest), marks the
// run RUNNING, then schedules execution in the background. Returns
// immediately with the run id.
func (e *Engine) TriggerRun(ctx context.Context, workflowID uuid.UUID, triggerContext json.RawMessage, correlationID string) (uuid.UUID, error) {
	wf, err := e.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return uuid.Nil, err
	}
	if wf.Status != store.WorkflowActive {
		return uuid.Nil, fmt.Errorf("%w: workflow %s is %s, not ACTIVE", huberrors.ErrConflict, wf.Name, wf.Status)
	}

	nodes, err := ParseNodes(wf.NodesJSON)
	if err != nil {
		return uuid.Nil, err
	}
	edges, err := ParseEdges(wf.EdgesJSON)
	if err != nil {
		return uuid.Nil, err
	}
	if err := Validate(nodes, edges); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", huberrors.ErrValidation, err)
	}

	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	if len(triggerContext) == 0 {
		triggerContext = json.RawMessage("{}")
	}

	run := &store.WorkflowRun{
		WorkflowID:        workflowID,
		TriggerContextRaw: string(triggerContext),
		Status:            store.RunPending,
		CorrelationID:     correlationID,
	}
	if err := e.runs.Create(ctx, run); err != nil {
		return uuid.Nil, fmt.Errorf("workflow: trigger run: %w", err)
	}

	deg := indegrees(nodes)
	for _, n := range nodes {
		status := store.NodePending
		if deg[n.ID] == 0 {
			status = store.NodeReady
		}
		nr := &store.NodeRun{
			WorkflowRunID: run.ID,
			NodeID:        n.ID,
			Status:        status,
		}
		if err := e.runs.CreateNodeRun(ctx, nr); err != nil {
			return uuid.Nil, fmt.Errorf("workflow: trigger run: create node run %s: %w", n.ID, err)
		}
	}

	now := time.Now().UTC()
	run.StartedAt = &now
	run.Status = store.RunRunning
	if err := e.runs.Update(ctx, run); err != nil {
		return uuid.Nil, fmt.Errorf("workflow: trigger run: %w", err)
	}

	workCtx := e.beginRun(run.ID)
	go e.execute(context.Background(), workCtx, run.ID, nodes, correlationID, wf.ProjectID)

	return run.ID, nil
}

// GetRun returns a run together with its node runs.
func (e *Engine) GetRun(ctx context.Context, runID uuid.UUID) (*store.WorkflowRun, []store.NodeRun, error) {
	return e.runs.GetByIDWithNodeRuns(ctx, runID)
}

// Cancel requests cancellation of an in-flight run. The run's work context
// is cancelled so any RUNNING node's driver.RunAgent call receives a
// terminate signal; every PENDING/BLOCKED/READY/WAITING_APPROVAL node run is
// marked SKIPPED directly, and the run is finalized immediately if nothing
// is left RUNNING. If a wave is still in flight, the in-flight goroutines'
// own convergence check (in execute, once their wave completes) finalizes
// the run instead — Cancel cannot safely touch node runs an active
// executeNode call is still writing to.
func (e *Engine) Cancel(ctx context.Context, runID uuid.UUID) error {
	run, err := e.runs.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if isTerminal(run.Status) {
		return fmt.Errorf("%w: run is already %s", huberrors.ErrConflict, run.Status)
	}

	e.cancelWork(runID)
	e.converge(ctx, runID)

	return nil
}

// beginRun registers a cancellable work context for runID, reusing the
// existing one if the run is being resumed after an approval decision.
func (e *Engine) beginRun(runID uuid.UUID) context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rc, ok := e.cancel[runID]; ok {
		return rc.ctx
	}
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel[runID] = &runCancellation{ctx: runCtx, cancel: cancel}
	return runCtx
}

// cancelWork cancels runID's work context, creating and immediately
// cancelling one if the run has no in-flight wave (e.g. it is sitting
// WAITING_APPROVAL), so isCancelled still reports true for any later
// resume attempt.
func (e *Engine) cancelWork(runID uuid.UUID) {
	e.mu.Lock()
	rc, ok := e.cancel[runID]
	if !ok {
		runCtx, cancel := context.WithCancel(context.Background())
		rc = &runCancellation{ctx: runCtx, cancel: cancel}
		e.cancel[runID] = rc
	}
	e.mu.Unlock()
	rc.cancel()
}

func (e *Engine) isCancelled(runID uuid.UUID) bool {
	e.mu.Lock()
	rc, ok := e.cancel[runID]
	e.mu.Unlock()
	return ok && rc.ctx.Err() != nil
}

// converge marks every non-RUNNING, non-terminal node run SKIPPED and, once
// nothing is left RUNNING, finalizes the run as CANCELLED. Called from
// Cancel itself and from execute's own loop once it observes cancellation
// after the wave it dispatched completes.
func (e *Engine) converge(ctx context.Context, runID uuid.UUID) {
	nodeRuns, err := e.runs.ListNodeRuns(ctx, runID)
	if err != nil {
		e.logger.Error("converge: list node runs", zap.Error(err), zap.String("run_id", runID.String()))
		return
	}
	for _, nr := range nodeRuns {
		switch nr.Status {
		case store.NodePending, store.NodeBlocked, store.NodeReady, store.NodeWaitingApproval:
			nr.Status = store.NodeSkipped
			if err := e.runs.UpdateNodeRun(ctx, &nr); err != nil {
				e.logger.Warn("converge: mark node run skipped", zap.Error(err))
			}
		}
	}

	nodeRuns, err = e.runs.ListNodeRuns(ctx, runID)
	if err != nil {
		e.logger.Error("converge: re-list node runs", zap.Error(err), zap.String("run_id", runID.String()))
		return
	}
	if allNodeRunsTerminal(nodeRuns) {
		e.finishRun(ctx, runID, nodeRuns)
	}
}

// DecideApproval records a human decision on a pending approval and, if
// approved, promotes the gated node run back to READY so the scheduler
// picks it up on its next dispatch pass.
func (e *Engine) DecideApproval(ctx context.Context, approvalID uuid.UUID, decision store.ApprovalDecision, approver string) error {
	if decision != store.ApprovalApproved && decision != store.ApprovalRejected {
		return fmt.Errorf("%w: decision must be APPROVED or REJECTED", huberrors.ErrValidation)
	}

	approval, err := e.approvals.GetByID(ctx, approvalID)
	if err != nil {
		return err
	}

	if err := e.approvals.Decide(ctx, approvalID, decision, approver, time.Now().UTC()); err != nil {
		return err
	}

	nr, err := e.runs.GetNodeRunByID(ctx, approval.NodeRunID)
	if err != nil {
		return err
	}

	if decision == store.ApprovalRejected {
		finishedAt := time.Now().UTC()
		nr.Status = store.NodeFailed
		nr.ErrorCode = "APPROVAL_REJECTED"
		nr.FinishedAt = &finishedAt
		return e.runs.UpdateNodeRun(ctx, nr)
	}

	nr.Status = store.NodeReady
	if err := e.runs.UpdateNodeRun(ctx, nr); err != nil {
		return err
	}

	go e.resumeAfterApproval(context.Background(), nr.WorkflowRunID)
	return nil
}

// resumeAfterApproval re-enters the scheduling loop for a run that was
// blocked on an approval gate. Called after DecideApproval promotes the
// gated node run back to READY.
func (e *Engine) resumeAfterApproval(ctx context.Context, runID uuid.UUID) {
	run, err := e.runs.GetByID(ctx, runID)
	if err != nil {
		e.logger.Error("resume after approval: get run", zap.Error(err), zap.String("run_id", runID.String()))
		return
	}
	wf, err := e.workflows.GetByID(ctx, run.WorkflowID)
	if err != nil {
		e.logger.Error("resume after approval: get workflow", zap.Error(err), zap.String("run_id", runID.String()))
		return
	}
	nodes, err := ParseNodes(wf.NodesJSON)
	if err != nil {
		e.logger.Error("resume after approval: parse nodes", zap.Error(err), zap.String("run_id", runID.String()))
		return
	}
	workCtx := e.beginRun(runID)
	e.execute(ctx, workCtx, runID, nodes, run.CorrelationID, wf.ProjectID)
}

// execute drives a triggered run to completion. Each pass dispatches every
// currently READY node run, bounded by the engine's worker token semaphore,
// waits for that wave to finish, then promotes newly-unblocked successors
// before dispatching the next wave. The loop exits either when every node
// run has reached a terminal state (the run is finalized) or when a wave
// produces no READY nodes because the remaining work is gated on an
// approval (the loop returns and resumeAfterApproval re-enters it later).
// workCtx is the run's cancellable context, passed through to every
// driver.RunAgent call so Cancel can interrupt RUNNING nodes; ctx is used
// for the run's own bookkeeping and is never cancelled mid-run.
func (e *Engine) execute(ctx, workCtx context.Context, runID uuid.UUID, nodes []Node, correlationID string, projectID uuid.UUID) {
	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	succ := successors(nodes)

	slug := projectID.String()
	if project, err := e.projects.GetByID(ctx, projectID); err == nil {
		slug = project.Slug
	}

	for {
		if e.isCancelled(runID) {
			e.converge(ctx, runID)
			return
		}

		nodeRuns, err := e.runs.ListNodeRuns(ctx, runID)
		if err != nil {
			e.logger.Error("execute: list node runs", zap.Error(err), zap.String("run_id", runID.String()))
			return
		}

		var ready []store.NodeRun
		for _, nr := range nodeRuns {
			if nr.Status == store.NodeReady {
				ready = append(ready, nr)
			}
		}

		if len(ready) == 0 {
			if allNodeRunsTerminal(nodeRuns) {
				e.finishRun(ctx, runID, nodeRuns)
			}
			return
		}

		sort.Slice(ready, func(i, j int) bool { return ready[i].NodeID < ready[j].NodeID })

		var wg sync.WaitGroup
		for _, nr := range ready {
			if err := e.sem.Acquire(ctx, 1); err != nil {
				return
			}
			wg.Add(1)
			go func(nr store.NodeRun) {
				defer wg.Done()
				defer e.sem.Release(1)
				e.runNode(ctx, workCtx, runID, byID[nr.NodeID], nr, correlationID, slug)
			}(nr)
		}
		wg.Wait()

		e.promoteReady(ctx, runID, byID, succ)
	}
}

// runNode dispatches a single READY node run. A node gates on a human
// decision the first time it becomes READY when either the node itself
// carries approval_required or its agent's risk level is anything other
// than AUTO (APPROVAL_REQUIRED or HUMAN_ONLY); the resumed dispatch after
// APPROVED skips straight to execution.
func (e *Engine) runNode(ctx, workCtx context.Context, runID uuid.UUID, node Node, nr store.NodeRun, correlationID, slug string) {
	agentID, err := uuid.Parse(node.AgentID)
	if err != nil {
		e.failNode(ctx, &nr, "INVALID_AGENT", err, slug, runID, node.ID, correlationID)
		return
	}
	agent, err := e.agents.GetByID(ctx, agentID)
	if err != nil {
		e.failNode(ctx, &nr, "AGENT_NOT_FOUND", err, slug, runID, node.ID, correlationID)
		return
	}

	if node.ApprovalRequired || agent.Risk != store.RiskAuto {
		latest, err := e.approvals.GetLatestByNodeRun(ctx, nr.ID)
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			nr.Status = store.NodeWaitingApproval
			if err := e.runs.UpdateNodeRun(ctx, &nr); err != nil {
				e.logger.Error("mark node waiting approval", zap.Error(err))
				return
			}
			approval := &store.Approval{
				NodeRunID:   nr.ID,
				RequestedAt: time.Now().UTC(),
				Decision:    store.ApprovalPending,
			}
			if err := e.approvals.Create(ctx, approval); err != nil {
				e.logger.Error("create approval", zap.Error(err))
				return
			}
			e.publish(ctx, slug, runID, node.ID, "approval_requested", correlationID, nil)
			e.notify(ctx, "approval_requested", fmt.Sprintf("node %s awaiting approval", node.ID),
				fmt.Sprintf(`{"run_id":%q,"node_id":%q,"approval_id":%q}`, runID.String(), node.ID, approval.ID.String()))
			return
		case err != nil:
			e.logger.Error("get latest approval", zap.Error(err))
			return
		case latest.Decision != store.ApprovalApproved:
			return
		}
	}

	e.executeNode(ctx, workCtx, runID, node, nr, agent, correlationID, slug)
}

// executeNode runs the node's agent through the container driver with the
// node's retry policy, validates its output and records the terminal node
// run state.
func (e *Engine) executeNode(ctx, workCtx context.Context, runID uuid.UUID, node Node, nr store.NodeRun, agent *store.Agent, correlationID, slug string) {
	upstream, err := e.collectUpstreamOutputs(ctx, runID, node)
	if err != nil {
		e.failNode(ctx, &nr, "DEPENDENCY_LOOKUP_FAILED", err, slug, runID, node.ID, correlationID)
		return
	}

	input, err := BuildInput(node.StaticInputTemplate, upstream)
	if err != nil {
		e.failNode(ctx, &nr, "INPUT_UNRESOLVED", err, slug, runID, node.ID, correlationID)
		return
	}

	if err := validateAgainstSchema([]byte(agent.InputSchema), input); err != nil {
		e.failNode(ctx, &nr, "INVALID_INPUT", err, slug, runID, node.ID, correlationID)
		return
	}

	maxAttempts := node.RetryPolicy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	baseDelay := time.Duration(node.RetryPolicy.BaseDelayMS) * time.Millisecond
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	maxDelay := time.Duration(node.RetryPolicy.MaxDelayMS) * time.Millisecond
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	var lastErr error
	var lastCode string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if e.isCancelled(runID) {
			nr.Status = store.NodeSkipped
			if err := e.runs.UpdateNodeRun(ctx, &nr); err != nil {
				e.logger.Error("mark node cancelled", zap.Error(err))
			}
			return
		}

		nr.Attempt = attempt
		nr.Status = store.NodeRunning
		nr.InputSnapshot = string(input)
		startedAt := time.Now().UTC()
		nr.StartedAt = &startedAt
		if err := e.runs.UpdateNodeRun(ctx, &nr); err != nil {
			e.logger.Error("mark node running", zap.Error(err))
			return
		}
		e.publish(ctx, slug, runID, node.ID, "node.running", correlationID, nil)

		result, err := e.driver.RunAgent(workCtx, agent.Image, input, defaultLimits)
		if err != nil {
			if e.isCancelled(runID) {
				nr.Status = store.NodeSkipped
				if err := e.runs.UpdateNodeRun(ctx, &nr); err != nil {
					e.logger.Error("mark node cancelled", zap.Error(err))
				}
				return
			}
			lastErr, lastCode = err, "DRIVER_FAILURE"
			if attempt < maxAttempts {
				e.publish(ctx, slug, runID, node.ID, "node.retrying", correlationID,
					[]byte(fmt.Sprintf(`{"attempt":%d,"error":%q}`, attempt, err.Error())))
				time.Sleep(retryDelay(baseDelay, maxDelay, attempt))
				continue
			}
			break
		}

		if err := validateAgainstSchema([]byte(agent.OutputSchema), []byte(result.Stdout)); err != nil {
			lastErr, lastCode = err, "OUTPUT_INVALID"
			if attempt < maxAttempts {
				e.publish(ctx, slug, runID, node.ID, "node.retrying", correlationID,
					[]byte(fmt.Sprintf(`{"attempt":%d,"error":%q}`, attempt, err.Error())))
				time.Sleep(retryDelay(baseDelay, maxDelay, attempt))
				continue
			}
			break
		}

		finishedAt := time.Now().UTC()
		exitCode := result.ExitCode
		nr.Status = store.NodeSucceeded
		nr.OutputSnapshot = result.Stdout
		nr.LogsRef = result.LogsRef
		nr.ExitCode = &exitCode
		nr.FinishedAt = &finishedAt
		if err := e.runs.UpdateNodeRun(ctx, &nr); err != nil {
			e.logger.Error("mark node succeeded", zap.Error(err))
			return
		}
		metrics.RecordNodeRun(string(store.NodeSucceeded))
		e.publish(ctx, slug, runID, node.ID, "node.succeeded", correlationID, nil)
		return
	}

	if lastErr != nil {
		e.failNode(ctx, &nr, lastCode, lastErr, slug, runID, node.ID, correlationID)
	}
}

func (e *Engine) collectUpstreamOutputs(ctx context.Context, runID uuid.UUID, node Node) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(node.DependsOn))
	for _, dep := range node.DependsOn {
		depRun, err := e.runs.GetNodeRun(ctx, runID, dep)
		if err != nil {
			return nil, fmt.Errorf("workflow: collect upstream output for %q: %w", dep, err)
		}
		if depRun.Status != store.NodeSucceeded {
			continue
		}
		out[dep] = json.RawMessage(depRun.OutputSnapshot)
	}
	return out, nil
}

func (e *Engine) failNode(ctx context.Context, nr *store.NodeRun, code string, cause error, slug string, runID uuid.UUID, nodeID, correlationID string) {
	finishedAt := time.Now().UTC()
	nr.Status = store.NodeFailed
	nr.ErrorCode = code
	nr.FinishedAt = &finishedAt
	if err := e.runs.UpdateNodeRun(ctx, nr); err != nil {
		e.logger.Error("mark node failed", zap.Error(err))
	}
	metrics.RecordNodeRun(string(store.NodeFailed))
	e.publish(ctx, slug, runID, nodeID, "node.failed", correlationID,
		[]byte(fmt.Sprintf(`{"code":%q,"error":%q}`, code, cause.Error())))
	e.notify(ctx, "node_run_failed", fmt.Sprintf("node %s failed: %s", nodeID, code),
		fmt.Sprintf(`{"run_id":%q,"node_id":%q,"code":%q}`, runID.String(), nodeID, code))
}

// notify records a Notification row and mirrors it on the bus under the
// notifications.<type> subject so wsbus subscribers see it alongside every
// other live event.
func (e *Engine) notify(ctx context.Context, kind, title, payload string) {
	n := &store.Notification{Type: kind, Title: title, Payload: payload}
	if err := e.notifications.Create(ctx, n); err != nil {
		e.logger.Warn("failed to record notification", zap.String("type", kind), zap.Error(err))
	}
	if _, err := e.events.Publish(ctx, "notifications."+kind, []byte(payload), "workflow", ""); err != nil {
		e.logger.Warn("failed to publish notification event", zap.String("type", kind), zap.Error(err))
	}
}

// promoteReady scans PENDING/BLOCKED node runs and advances each whose
// dependencies have all reached a terminal state: READY if every dependency
// SUCCEEDED, SKIPPED if any dependency FAILED or was itself SKIPPED — a
// failure cascades to its downstream nodes rather than leaving them stuck.
func (e *Engine) promoteReady(ctx context.Context, runID uuid.UUID, byID map[string]Node, succ map[string][]string) {
	_ = succ // kept for symmetry with byID; promotion itself scans each node's own dependencies

	nodeRuns, err := e.runs.ListNodeRuns(ctx, runID)
	if err != nil {
		e.logger.Error("promote ready: list node runs", zap.Error(err))
		return
	}

	byNodeID := make(map[string]store.NodeRun, len(nodeRuns))
	for _, nr := range nodeRuns {
		byNodeID[nr.NodeID] = nr
	}

	for _, nr := range nodeRuns {
		if nr.Status != store.NodePending && nr.Status != store.NodeBlocked {
			continue
		}
		node := byID[nr.NodeID]

		allDone := true
		anyFailed := false
		for _, dep := range node.DependsOn {
			depRun, ok := byNodeID[dep]
			if !ok || !isNodeTerminal(depRun.Status) {
				allDone = false
				break
			}
			if depRun.Status == store.NodeFailed || depRun.Status == store.NodeSkipped {
				anyFailed = true
			}
		}
		if !allDone {
			continue
		}

		updated := nr
		if anyFailed {
			updated.Status = store.NodeSkipped
		} else {
			updated.Status = store.NodeReady
		}
		if err := e.runs.UpdateNodeRun(ctx, &updated); err != nil {
			e.logger.Error("promote ready: update node run", zap.Error(err), zap.String("node_id", nr.NodeID))
			continue
		}
		if updated.Status == store.NodeSkipped {
			metrics.RecordNodeRun(string(store.NodeSkipped))
		}
	}
}

func (e *Engine) finishRun(ctx context.Context, runID uuid.UUID, nodeRuns []store.NodeRun) {
	status := store.RunSucceeded
	for _, nr := range nodeRuns {
		if nr.Status == store.NodeFailed {
			status = store.RunFailed
			break
		}
	}
	if e.isCancelled(runID) {
		status = store.RunCancelled
	}
	finishedAt := time.Now().UTC()
	if err := e.runs.UpdateStatus(ctx, runID, status, &finishedAt); err != nil {
		e.logger.Error("finish run: update status", zap.Error(err), zap.String("run_id", runID.String()))
		return
	}

	var duration time.Duration
	if run, err := e.runs.GetByID(ctx, runID); err == nil && run.StartedAt != nil {
		duration = finishedAt.Sub(*run.StartedAt)
	}
	metrics.RecordWorkflowRun(string(status), duration)
}

func (e *Engine) publish(ctx context.Context, slug string, runID uuid.UUID, nodeID, event, correlationID string, payload []byte) {
	if payload == nil {
		payload = []byte("{}")
	}
	subject := fmt.Sprintf("hub.%s.workflow.%s.%s.%s", slug, runID, nodeID, event)
	if _, err := e.events.Publish(ctx, subject, payload, "workflow", correlationID); err != nil {
		e.logger.Warn("failed to publish workflow event", zap.String("subject", subject), zap.Error(err))
	}
}

func isNodeTerminal(status store.NodeRunStatus) bool {
	switch status {
	case store.NodeSucceeded, store.NodeFailed, store.NodeSkipped:
		return true
	}
	return false
}

func allNodeRunsTerminal(nodeRuns []store.NodeRun) bool {
	for _, nr := range nodeRuns {
		if !isNodeTerminal(nr.Status) {
			return false
		}
	}
	return true
}

func isTerminal(status store.RunStatus) bool {
	switch status {
	case store.RunSucceeded, store.RunFailed, store.RunCancelled:
		return true
	}
	return false
}
