package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// base contains the common fields shared by all models.
// ID uses UUID v7 (time-ordered) for efficient B-tree indexing and natural
// chronological ordering without a separate created_at sort. CreatedAt and
// UpdatedAt are managed automatically by GORM.
type base struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a new UUID v7 if the ID is not already set.
func (b *base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}

// -----------------------------------------------------------------------------
// Projects
// -----------------------------------------------------------------------------

// ProjectStatus mirrors the state machine in spec.md §4.1.
type ProjectStatus string

const (
	ProjectStopped  ProjectStatus = "STOPPED"
	ProjectStarting ProjectStatus = "STARTING"
	ProjectRunning  ProjectStatus = "RUNNING"
	ProjectStopping ProjectStatus = "STOPPING"
	ProjectError    ProjectStatus = "ERROR"
)

// Project is a single per-project application stack managed by the
// orchestrator. Ports are nullable (*int) because they are unset while the
// project is STOPPED — spec.md §3 requires all four be non-null exactly
// when status != STOPPED.
type Project struct {
	base
	Slug           string        `gorm:"uniqueIndex;not null"`
	Name           string        `gorm:"not null"`
	Path           string        `gorm:"not null"`
	Status         ProjectStatus `gorm:"not null;default:'STOPPED';index"`
	BackendPort    *int          `gorm:"uniqueIndex:idx_backend_port_active,where:status <> 'STOPPED'"`
	FrontendPort   *int          `gorm:"uniqueIndex:idx_frontend_port_active,where:status <> 'STOPPED'"`
	DBPort         *int          `gorm:"uniqueIndex:idx_db_port_active,where:status <> 'STOPPED'"`
	CachePort      *int          `gorm:"uniqueIndex:idx_cache_port_active,where:status <> 'STOPPED'"`
	LastError      string        `gorm:"type:text;default:''"`
	HandleOpaque   string        `gorm:"type:text;default:''"` // driver-opaque stack handle, cleared on STOPPED; not cleared on ERROR
	HandleStartedAt *time.Time
	// RegistryAuth is an optional private-registry credential (docker login
	// token or similar) injected into the stack's compose environment at
	// start time. Encrypted at rest; never rendered back in API responses.
	RegistryAuth EncryptedString `gorm:"type:text;default:''"`
}

// -----------------------------------------------------------------------------
// Agents (workflow agents — containerized one-shot programs, not hosts)
// -----------------------------------------------------------------------------

type AgentRiskLevel string

const (
	RiskAuto             AgentRiskLevel = "AUTO"
	RiskApprovalRequired AgentRiskLevel = "APPROVAL_REQUIRED"
	RiskHumanOnly        AgentRiskLevel = "HUMAN_ONLY"
)

type AgentType string

const (
	AgentAnalysis AgentType = "ANALYSIS"
	AgentAction   AgentType = "ACTION"
	AgentNotifier AgentType = "NOTIFIER"
)

// Agent is a registered one-shot containerized program with typed I/O.
// Name is not enforced unique: no unique index covers it, so two agents in
// the same project may share a name. ProjectID is nullable so an agent may
// also be registered globally (empty ProjectID means "available to every
// project").
type Agent struct {
	base
	ProjectID    uuid.UUID      `gorm:"type:text;index"`
	Name         string         `gorm:"not null"`
	Type         AgentType      `gorm:"not null"`
	Risk         AgentRiskLevel `gorm:"not null;default:'AUTO'"`
	Image        string         `gorm:"not null"`
	InputSchema  string         `gorm:"type:text;not null;default:'{}'"`  // JSON Schema
	OutputSchema string         `gorm:"type:text;not null;default:'{}'"`  // JSON Schema
	Capabilities string         `gorm:"type:text;default:'[]'"`           // JSON array of strings
	DeletedAt    gorm.DeletedAt `gorm:"index"`                            // soft-delete; references from workflows are not checked
}

// -----------------------------------------------------------------------------
// Workflows
// -----------------------------------------------------------------------------

type WorkflowTrigger string

const (
	TriggerManual   WorkflowTrigger = "MANUAL"
	TriggerEvent    WorkflowTrigger = "EVENT"
	TriggerWebhook  WorkflowTrigger = "WEBHOOK"
	TriggerSchedule WorkflowTrigger = "SCHEDULE"
)

type WorkflowStatus string

const (
	WorkflowDraft    WorkflowStatus = "DRAFT"
	WorkflowActive   WorkflowStatus = "ACTIVE"
	WorkflowDisabled WorkflowStatus = "DISABLED"
)

// Workflow is a DAG of agent invocations. NodesJSON/EdgesJSON hold the
// serialized []workflow.Node / []workflow.Edge (see internal/workflow/dag.go)
// — GORM cannot resolve foreign keys through a uuid.UUID primary key, so
// nodes and edges are stored as an opaque JSON document and parsed by
// internal/workflow (ParseNodes/ParseEdges) where the engine and API need
// them, much like Policy.Destinations in the teacher.
type Workflow struct {
	base
	ProjectID uuid.UUID       `gorm:"type:text;not null;index"`
	Name      string          `gorm:"not null"`
	Trigger   WorkflowTrigger `gorm:"not null;default:'MANUAL'"`
	Status    WorkflowStatus  `gorm:"not null;default:'DRAFT';index"`
	Schedule  string          `gorm:"default:''"` // cron expression, only meaningful when Trigger == SCHEDULE
	NodesJSON string          `gorm:"type:text;not null;default:'[]'"`
	EdgesJSON string          `gorm:"type:text;not null;default:'[]'"`
}

// -----------------------------------------------------------------------------
// Workflow runs & node runs
// -----------------------------------------------------------------------------

type RunStatus string

const (
	RunPending         RunStatus = "PENDING"
	RunRunning         RunStatus = "RUNNING"
	RunWaitingApproval RunStatus = "WAITING_APPROVAL"
	RunSucceeded       RunStatus = "SUCCEEDED"
	RunFailed          RunStatus = "FAILED"
	RunCancelled       RunStatus = "CANCELLED"
)

// WorkflowRun is one triggered execution of a Workflow's DAG.
type WorkflowRun struct {
	base
	WorkflowID        uuid.UUID `gorm:"type:text;not null;index"`
	TriggerContextRaw string    `gorm:"type:text;default:'{}'"`
	Status            RunStatus `gorm:"not null;default:'PENDING';index"`
	StartedAt         *time.Time
	FinishedAt        *time.Time
	CorrelationID     string `gorm:"not null;index"`
}

type NodeRunStatus string

const (
	NodePending         NodeRunStatus = "PENDING"
	NodeBlocked         NodeRunStatus = "BLOCKED"
	NodeReady           NodeRunStatus = "READY"
	NodeRunning         NodeRunStatus = "RUNNING"
	NodeSucceeded       NodeRunStatus = "SUCCEEDED"
	NodeFailed          NodeRunStatus = "FAILED"
	NodeSkipped         NodeRunStatus = "SKIPPED"
	NodeWaitingApproval NodeRunStatus = "WAITING_APPROVAL"
)

// NodeRun is a single execution attempt of a workflow node within a run.
type NodeRun struct {
	base
	WorkflowRunID  uuid.UUID     `gorm:"type:text;not null;index:idx_noderun_run_node,unique"`
	NodeID         string        `gorm:"not null;index:idx_noderun_run_node,unique"`
	Status         NodeRunStatus `gorm:"not null;default:'PENDING';index"`
	Attempt        int           `gorm:"not null;default:0"`
	InputSnapshot  string        `gorm:"type:text;default:''"`
	OutputSnapshot string        `gorm:"type:text;default:''"`
	LogsRef        string        `gorm:"default:''"`
	ExitCode       *int
	ErrorCode      string `gorm:"default:''"` // e.g. INPUT_UNRESOLVED, INVALID_INPUT, DRIVER_FAILURE
	StartedAt      *time.Time
	FinishedAt     *time.Time
}

// NodeRunLog is a single log line from a node run's container execution.
// Rows can be bulk-inserted with BulkCreateNodeRunLogs; the workflow engine
// does not write any.
type NodeRunLog struct {
	base
	NodeRunID uuid.UUID `gorm:"type:text;not null;index"`
	Stream    string    `gorm:"not null"` // "stdout" or "stderr"
	Line      string    `gorm:"type:text;not null"`
	Timestamp time.Time `gorm:"not null;index"`
}

// -----------------------------------------------------------------------------
// Approvals
// -----------------------------------------------------------------------------

type ApprovalDecision string

const (
	ApprovalPending  ApprovalDecision = "PENDING"
	ApprovalApproved ApprovalDecision = "APPROVED"
	ApprovalRejected ApprovalDecision = "REJECTED"
)

// Approval gates a NodeRun on a human decision. At most one PENDING approval
// may exist per node run at a time — enforced by the unique partial index.
type Approval struct {
	base
	NodeRunID   uuid.UUID        `gorm:"type:text;not null;uniqueIndex:idx_approval_live_pending,where:decision = 'PENDING'"`
	RequestedAt time.Time        `gorm:"not null"`
	DecidedAt   *time.Time
	Decision    ApprovalDecision `gorm:"not null;default:'PENDING'"`
	Approver    string           `gorm:"default:''"`
}

// -----------------------------------------------------------------------------
// Events
// -----------------------------------------------------------------------------

// Event is an append-only record in the event service's persistent log.
// Publish writes this row before publishing to the bus — see
// internal/eventservice.
type Event struct {
	base
	Subject       string `gorm:"not null;index:idx_event_subject_ts"`
	Origin        string `gorm:"not null;default:''"`
	CorrelationID string `gorm:"not null;index"`
	Payload       string `gorm:"type:text;not null"` // opaque JSON, byte-identical to the bus payload
	Timestamp     time.Time `gorm:"not null;index:idx_event_subject_ts"`
}

// -----------------------------------------------------------------------------
// Federation
// -----------------------------------------------------------------------------

type FederationStatus string

const (
	FederationOnline   FederationStatus = "ONLINE"
	FederationOffline  FederationStatus = "OFFLINE"
	FederationDegraded FederationStatus = "DEGRADED"
)

// FederationProject is a row in the catalog of child Hubs. Slug is the
// primary key — federation rows are not UUID-keyed because the slug is the
// natural, externally-supplied identity of a child Hub.
type FederationProject struct {
	Slug            string           `gorm:"type:text;primaryKey"`
	Name            string           `gorm:"not null"`
	HubURL          string           `gorm:"not null"`
	MeshNamespace   string           `gorm:"not null"`
	Tags            string           `gorm:"type:text;default:'[]'"` // JSON array
	Status          FederationStatus `gorm:"not null;default:'OFFLINE'"`
	LastHeartbeatAt *time.Time
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// -----------------------------------------------------------------------------
// Idempotency
// -----------------------------------------------------------------------------

// IdempotencyRecord caches the response of a write endpoint invoked with an
// Idempotency-Key header, so retried requests with the same key and the same
// payload replay the stored response instead of re-running the mutation.
type IdempotencyRecord struct {
	Key           string `gorm:"type:text;primaryKey"`
	RequestHash   string `gorm:"not null"`
	StatusCode    int    `gorm:"not null"`
	ResponseBody  string `gorm:"type:text;not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

// -----------------------------------------------------------------------------
// Notifications
// -----------------------------------------------------------------------------

// Notification is an in-app notification surfaced over wsbus, generalized
// from the teacher's backup-job notifications to workflow/project events
// (node run failed, approval requested).
type Notification struct {
	base
	Type    string `gorm:"not null"` // "node_run_failed" or "approval_requested"
	Title   string `gorm:"not null"`
	Body    string `gorm:"type:text;not null"`
	ReadAt  *time.Time
	Payload string `gorm:"type:text;default:'{}'"`
}
