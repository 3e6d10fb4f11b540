package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/benchhub/hub/internal/containerdriver"
	"github.com/benchhub/hub/internal/eventservice"
	"github.com/benchhub/hub/internal/repositories"
	"github.com/benchhub/hub/internal/store"
)

// fakeEvents is a no-op eventservice.Service so the engine can be exercised
// without a real NATS connection (bus.Bus has no interface seam to mock
// directly — see internal/bus).
type fakeEvents struct{}

func (fakeEvents) Publish(ctx context.Context, subject string, payload []byte, origin, correlationID string) (uuid.UUID, error) {
	return uuid.New(), nil
}
func (fakeEvents) Query(ctx context.Context, filter eventservice.Filter) ([]store.Event, error) {
	return nil, nil
}
func (fakeEvents) Run(ctx context.Context) {}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := store.New(store.Config{DSN: ":memory:", Logger: zap.NewNop()})
	require.NoError(t, err)
	return db
}

type harness struct {
	db        *gorm.DB
	projects  repositories.ProjectRepository
	agents    repositories.AgentRepository
	workflows repositories.WorkflowRepository
	runs      repositories.WorkflowRunRepository
	approvals repositories.ApprovalRepository
	notifs    repositories.NotificationRepository
	driver    *containerdriver.FakeDriver
	engine    *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := newTestDB(t)
	h := &harness{
		db:        db,
		projects:  repositories.NewProjectRepository(db),
		agents:    repositories.NewAgentRepository(db),
		workflows: repositories.NewWorkflowRepository(db),
		runs:      repositories.NewWorkflowRunRepository(db),
		approvals: repositories.NewApprovalRepository(db),
		notifs:    repositories.NewNotificationRepository(db),
		driver:    containerdriver.NewFakeDriver(),
	}
	h.engine = New(h.projects, h.workflows, h.runs, h.agents, h.approvals, h.notifs, h.driver, fakeEvents{}, 4, zap.NewNop())
	return h
}

func (h *harness) newProject(t *testing.T) *store.Project {
	t.Helper()
	p := &store.Project{Slug: "demo", Name: "Demo", Path: "/srv/demo"}
	require.NoError(t, h.projects.Create(context.Background(), p))
	return p
}

func (h *harness) newAgent(t *testing.T, outputSchema string) *store.Agent {
	t.Helper()
	return h.newAgentWithRisk(t, outputSchema, store.RiskAuto)
}

func (h *harness) newAgentWithRisk(t *testing.T, outputSchema string, risk store.AgentRiskLevel) *store.Agent {
	t.Helper()
	a := &store.Agent{Name: "worker", Type: store.AgentAction, Image: "demo/worker:latest", OutputSchema: outputSchema, Risk: risk}
	require.NoError(t, h.agents.Create(context.Background(), a))
	return a
}

func singleNodeWorkflow(projectID uuid.UUID, agentID uuid.UUID, approvalRequired bool) *store.Workflow {
	nodes := []Node{{ID: "n1", AgentID: agentID.String(), ApprovalRequired: approvalRequired}}
	nodesJSON, _ := json.Marshal(nodes)
	return &store.Workflow{
		ProjectID: projectID,
		Name:      "single",
		Status:    store.WorkflowActive,
		NodesJSON: string(nodesJSON),
		EdgesJSON: "[]",
	}
}

func twoNodeChainWorkflow(projectID, agentID uuid.UUID) *store.Workflow {
	nodes := []Node{
		{ID: "n1", AgentID: agentID.String()},
		{ID: "n2", AgentID: agentID.String(), DependsOn: []string{"n1"}},
	}
	nodesJSON, _ := json.Marshal(nodes)
	edges := []Edge{{From: "n1", To: "n2"}}
	edgesJSON, _ := json.Marshal(edges)
	return &store.Workflow{
		ProjectID: projectID,
		Name:      "chain",
		Status:    store.WorkflowActive,
		NodesJSON: string(nodesJSON),
		EdgesJSON: string(edgesJSON),
	}
}

func waitForRunStatus(t *testing.T, h *harness, runID uuid.UUID, want store.RunStatus) *store.WorkflowRun {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		run, err := h.runs.GetByID(context.Background(), runID)
		require.NoError(t, err)
		if run.Status == want {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s never reached status %s", runID, want)
	return nil
}

func TestTriggerRunSucceedsSingleNode(t *testing.T) {
	h := newHarness(t)
	project := h.newProject(t)
	agent := h.newAgent(t, "")
	wf := singleNodeWorkflow(project.ID, agent.ID, false)
	require.NoError(t, h.workflows.Create(context.Background(), wf))

	h.driver.RunResult = containerdriver.RunResult{Stdout: "{}", ExitCode: 0}

	runID, err := h.engine.TriggerRun(context.Background(), wf.ID, nil, "")
	require.NoError(t, err)

	run := waitForRunStatus(t, h, runID, store.RunSucceeded)
	assert.NotNil(t, run.StartedAt)
	assert.NotNil(t, run.FinishedAt)

	_, nodeRuns, err := h.runs.GetByIDWithNodeRuns(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, nodeRuns, 1)
	assert.Equal(t, store.NodeSucceeded, nodeRuns[0].Status)
}

func TestTriggerRunRejectsInactiveWorkflow(t *testing.T) {
	h := newHarness(t)
	project := h.newProject(t)
	agent := h.newAgent(t, "")
	wf := singleNodeWorkflow(project.ID, agent.ID, false)
	wf.Status = store.WorkflowDraft
	require.NoError(t, h.workflows.Create(context.Background(), wf))

	_, err := h.engine.TriggerRun(context.Background(), wf.ID, nil, "")
	assert.Error(t, err)
}

func TestExecuteNodeFailsAfterExhaustingRetries(t *testing.T) {
	h := newHarness(t)
	project := h.newProject(t)
	agent := h.newAgent(t, "")
	wf := singleNodeWorkflow(project.ID, agent.ID, false)
	nodes, _ := ParseNodes(wf.NodesJSON)
	nodes[0].RetryPolicy = RetryPolicy{MaxAttempts: 2, BaseDelayMS: 1, MaxDelayMS: 2}
	nodesJSON, _ := json.Marshal(nodes)
	wf.NodesJSON = string(nodesJSON)
	require.NoError(t, h.workflows.Create(context.Background(), wf))

	h.driver.RunErr = fmt.Errorf("agent crashed")

	runID, err := h.engine.TriggerRun(context.Background(), wf.ID, nil, "")
	require.NoError(t, err)

	run := waitForRunStatus(t, h, runID, store.RunFailed)
	assert.NotNil(t, run.FinishedAt)

	_, nodeRuns, err := h.runs.GetByIDWithNodeRuns(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, nodeRuns, 1)
	assert.Equal(t, store.NodeFailed, nodeRuns[0].Status)
	assert.Equal(t, "DRIVER_FAILURE", nodeRuns[0].ErrorCode)
	assert.Equal(t, 2, nodeRuns[0].Attempt)
}

func TestExecuteChainPropagatesSkipOnFailure(t *testing.T) {
	h := newHarness(t)
	project := h.newProject(t)
	agent := h.newAgent(t, "")
	wf := twoNodeChainWorkflow(project.ID, agent.ID)
	require.NoError(t, h.workflows.Create(context.Background(), wf))

	h.driver.RunErr = fmt.Errorf("boom")

	runID, err := h.engine.TriggerRun(context.Background(), wf.ID, nil, "")
	require.NoError(t, err)

	run := waitForRunStatus(t, h, runID, store.RunFailed)
	assert.Equal(t, store.RunFailed, run.Status)

	_, nodeRuns, err := h.runs.GetByIDWithNodeRuns(context.Background(), runID)
	require.NoError(t, err)
	byNode := make(map[string]store.NodeRun, len(nodeRuns))
	for _, nr := range nodeRuns {
		byNode[nr.NodeID] = nr
	}
	assert.Equal(t, store.NodeFailed, byNode["n1"].Status)
	assert.Equal(t, store.NodeSkipped, byNode["n2"].Status)
}

func TestApprovalGateBlocksThenResumesOnApproval(t *testing.T) {
	h := newHarness(t)
	project := h.newProject(t)
	agent := h.newAgent(t, "")
	wf := singleNodeWorkflow(project.ID, agent.ID, true)
	require.NoError(t, h.workflows.Create(context.Background(), wf))

	h.driver.RunResult = containerdriver.RunResult{Stdout: "{}", ExitCode: 0}

	runID, err := h.engine.TriggerRun(context.Background(), wf.ID, nil, "")
	require.NoError(t, err)

	var nr *store.NodeRun
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := h.runs.GetNodeRun(context.Background(), runID, "n1")
		require.NoError(t, err)
		if got.Status == store.NodeWaitingApproval {
			nr = got
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, nr, "node run never reached WAITING_APPROVAL")

	approval, err := h.approvals.GetLatestByNodeRun(context.Background(), nr.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ApprovalPending, approval.Decision)

	require.NoError(t, h.engine.DecideApproval(context.Background(), approval.ID, store.ApprovalApproved, "alice"))

	run := waitForRunStatus(t, h, runID, store.RunSucceeded)
	assert.Equal(t, store.RunSucceeded, run.Status)
}

func TestApprovalRejectionFailsNode(t *testing.T) {
	h := newHarness(t)
	project := h.newProject(t)
	agent := h.newAgent(t, "")
	wf := singleNodeWorkflow(project.ID, agent.ID, true)
	require.NoError(t, h.workflows.Create(context.Background(), wf))

	runID, err := h.engine.TriggerRun(context.Background(), wf.ID, nil, "")
	require.NoError(t, err)

	var approval *store.Approval
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		nr, err := h.runs.GetNodeRun(context.Background(), runID, "n1")
		require.NoError(t, err)
		if nr.Status == store.NodeWaitingApproval {
			approval, err = h.approvals.GetLatestByNodeRun(context.Background(), nr.ID)
			require.NoError(t, err)
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, approval)

	require.NoError(t, h.engine.DecideApproval(context.Background(), approval.ID, store.ApprovalRejected, "alice"))

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		nr, err := h.runs.GetNodeRun(context.Background(), runID, "n1")
		require.NoError(t, err)
		if nr.Status == store.NodeFailed {
			assert.Equal(t, "APPROVAL_REJECTED", nr.ErrorCode)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("node run never reached FAILED after rejection")
}

func TestCancelMarksNonTerminalNodesSkipped(t *testing.T) {
	h := newHarness(t)
	project := h.newProject(t)
	agent := h.newAgent(t, "")
	wf := twoNodeChainWorkflow(project.ID, agent.ID)
	require.NoError(t, h.workflows.Create(context.Background(), wf))

	run := &store.WorkflowRun{WorkflowID: wf.ID, Status: store.RunRunning, TriggerContextRaw: "{}"}
	require.NoError(t, h.runs.Create(context.Background(), run))
	require.NoError(t, h.runs.CreateNodeRun(context.Background(), &store.NodeRun{WorkflowRunID: run.ID, NodeID: "n1", Status: store.NodeReady}))
	require.NoError(t, h.runs.CreateNodeRun(context.Background(), &store.NodeRun{WorkflowRunID: run.ID, NodeID: "n2", Status: store.NodePending}))

	require.NoError(t, h.engine.Cancel(context.Background(), run.ID))

	nodeRuns, err := h.runs.ListNodeRuns(context.Background(), run.ID)
	require.NoError(t, err)
	for _, nr := range nodeRuns {
		assert.Equal(t, store.NodeSkipped, nr.Status)
	}

	got, err := h.runs.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunCancelled, got.Status)
	assert.NotNil(t, got.FinishedAt)
}

func TestRunNodeGatesOnAgentRiskEvenWithoutNodeFlag(t *testing.T) {
	h := newHarness(t)
	project := h.newProject(t)
	agent := h.newAgentWithRisk(t, "", store.RiskApprovalRequired)
	wf := singleNodeWorkflow(project.ID, agent.ID, false)
	require.NoError(t, h.workflows.Create(context.Background(), wf))

	h.driver.RunResult = containerdriver.RunResult{Stdout: "{}", ExitCode: 0}

	runID, err := h.engine.TriggerRun(context.Background(), wf.ID, nil, "")
	require.NoError(t, err)

	var nr *store.NodeRun
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := h.runs.GetNodeRun(context.Background(), runID, "n1")
		require.NoError(t, err)
		if got.Status == store.NodeWaitingApproval {
			nr = got
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, nr, "node run with APPROVAL_REQUIRED agent risk never reached WAITING_APPROVAL despite approval_required=false")

	approval, err := h.approvals.GetLatestByNodeRun(context.Background(), nr.ID)
	require.NoError(t, err)
	require.NoError(t, h.engine.DecideApproval(context.Background(), approval.ID, store.ApprovalApproved, "alice"))

	run := waitForRunStatus(t, h, runID, store.RunSucceeded)
	assert.Equal(t, store.RunSucceeded, run.Status)
}

func TestRunNodeGatesOnHumanOnlyAgentRisk(t *testing.T) {
	h := newHarness(t)
	project := h.newProject(t)
	agent := h.newAgentWithRisk(t, "", store.RiskHumanOnly)
	wf := singleNodeWorkflow(project.ID, agent.ID, false)
	require.NoError(t, h.workflows.Create(context.Background(), wf))

	runID, err := h.engine.TriggerRun(context.Background(), wf.ID, nil, "")
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := h.runs.GetNodeRun(context.Background(), runID, "n1")
		require.NoError(t, err)
		if got.Status == store.NodeWaitingApproval {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("node run with HUMAN_ONLY agent risk never reached WAITING_APPROVAL despite approval_required=false")
}

func TestCancelRejectsAlreadyTerminalRun(t *testing.T) {
	h := newHarness(t)
	project := h.newProject(t)
	agent := h.newAgent(t, "")
	wf := singleNodeWorkflow(project.ID, agent.ID, false)
	require.NoError(t, h.workflows.Create(context.Background(), wf))

	finishedAt := time.Now().UTC()
	run := &store.WorkflowRun{WorkflowID: wf.ID, Status: store.RunSucceeded, FinishedAt: &finishedAt, TriggerContextRaw: "{}"}
	require.NoError(t, h.runs.Create(context.Background(), run))

	err := h.engine.Cancel(context.Background(), run.ID)
	assert.Error(t, err)
}
