package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/benchhub/hub/internal/store"
)

// -----------------------------------------------------------------------------
// Common
// -----------------------------------------------------------------------------

// ListOptions contains common pagination and filtering options for list
// queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// -----------------------------------------------------------------------------
// ProjectRepository
// -----------------------------------------------------------------------------

type ProjectRepository interface {
	Create(ctx context.Context, project *store.Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*store.Project, error)
	GetBySlug(ctx context.Context, slug string) (*store.Project, error)
	Update(ctx context.Context, project *store.Project) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status store.ProjectStatus, lastError string) error
	ReserveHandle(ctx context.Context, id uuid.UUID, backend, frontend, db, cache int, handle string) error
	ReleaseHandle(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]store.Project, int64, error)
}

// -----------------------------------------------------------------------------
// AgentRepository
// -----------------------------------------------------------------------------

type AgentRepository interface {
	Create(ctx context.Context, agent *store.Agent) error
	GetByID(ctx context.Context, id uuid.UUID) (*store.Agent, error)
	Update(ctx context.Context, agent *store.Agent) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]store.Agent, int64, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]store.Agent, error)
}

// -----------------------------------------------------------------------------
// WorkflowRepository
// -----------------------------------------------------------------------------

type WorkflowRepository interface {
	Create(ctx context.Context, workflow *store.Workflow) error
	GetByID(ctx context.Context, id uuid.UUID) (*store.Workflow, error)
	Update(ctx context.Context, workflow *store.Workflow) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]store.Workflow, int64, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]store.Workflow, error)
	ListActiveByTrigger(ctx context.Context, trigger store.WorkflowTrigger) ([]store.Workflow, error)
}

// -----------------------------------------------------------------------------
// WorkflowRunRepository
// -----------------------------------------------------------------------------

type WorkflowRunRepository interface {
	Create(ctx context.Context, run *store.WorkflowRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*store.WorkflowRun, error)

	// GetByIDWithNodeRuns retrieves a run together with its NodeRun records.
	// Returned separately, not embedded, because GORM cannot auto-resolve
	// UUID-typed foreign keys (see store/models.go for rationale).
	GetByIDWithNodeRuns(ctx context.Context, id uuid.UUID) (*store.WorkflowRun, []store.NodeRun, error)

	Update(ctx context.Context, run *store.WorkflowRun) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status store.RunStatus, finishedAt *time.Time) error
	List(ctx context.Context, opts ListOptions) ([]store.WorkflowRun, int64, error)
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID, opts ListOptions) ([]store.WorkflowRun, int64, error)
	ListActive(ctx context.Context) ([]store.WorkflowRun, error)

	// NodeRun
	CreateNodeRun(ctx context.Context, nr *store.NodeRun) error
	GetNodeRun(ctx context.Context, runID uuid.UUID, nodeID string) (*store.NodeRun, error)
	GetNodeRunByID(ctx context.Context, id uuid.UUID) (*store.NodeRun, error)
	UpdateNodeRun(ctx context.Context, nr *store.NodeRun) error
	ListNodeRuns(ctx context.Context, runID uuid.UUID) ([]store.NodeRun, error)

	// NodeRunLog
	BulkCreateNodeRunLogs(ctx context.Context, logs []store.NodeRunLog) error
	GetNodeRunLogs(ctx context.Context, nodeRunID uuid.UUID) ([]store.NodeRunLog, error)
}

// -----------------------------------------------------------------------------
// ApprovalRepository
// -----------------------------------------------------------------------------

type ApprovalRepository interface {
	Create(ctx context.Context, approval *store.Approval) error
	GetByID(ctx context.Context, id uuid.UUID) (*store.Approval, error)
	GetPendingByNodeRun(ctx context.Context, nodeRunID uuid.UUID) (*store.Approval, error)

	// GetLatestByNodeRun returns the most recently requested approval for a
	// node run regardless of decision, so the workflow engine can tell a
	// first dispatch (no approval row yet) apart from a resumed dispatch
	// after an APPROVED decision.
	GetLatestByNodeRun(ctx context.Context, nodeRunID uuid.UUID) (*store.Approval, error)

	Decide(ctx context.Context, id uuid.UUID, decision store.ApprovalDecision, approver string, decidedAt time.Time) error
	ListPending(ctx context.Context, opts ListOptions) ([]store.Approval, int64, error)
}

// -----------------------------------------------------------------------------
// EventRepository
// -----------------------------------------------------------------------------

type EventRepository interface {
	Create(ctx context.Context, event *store.Event) error
	Query(ctx context.Context, subjectPattern string, since time.Time, opts ListOptions) ([]store.Event, error)
}

// -----------------------------------------------------------------------------
// FederationRepository
// -----------------------------------------------------------------------------

type FederationRepository interface {
	Create(ctx context.Context, fp *store.FederationProject) error
	GetBySlug(ctx context.Context, slug string) (*store.FederationProject, error)
	Update(ctx context.Context, fp *store.FederationProject) error
	RecordHeartbeat(ctx context.Context, slug string, at time.Time, status store.FederationStatus) error
	MarkStaleAsOffline(ctx context.Context, cutoff time.Time) (int64, error)
	List(ctx context.Context, opts ListOptions) ([]store.FederationProject, int64, error)
}

// -----------------------------------------------------------------------------
// IdempotencyRepository
// -----------------------------------------------------------------------------

type IdempotencyRepository interface {
	Get(ctx context.Context, key string) (*store.IdempotencyRecord, error)
	Save(ctx context.Context, rec *store.IdempotencyRecord) error
}

// -----------------------------------------------------------------------------
// NotificationRepository
// -----------------------------------------------------------------------------

type NotificationRepository interface {
	Create(ctx context.Context, notification *store.Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*store.Notification, error)
	MarkAsRead(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]store.Notification, int64, error)
	DeleteReadOlderThan(ctx context.Context, t time.Time) error
}
