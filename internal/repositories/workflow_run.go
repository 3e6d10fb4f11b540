package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/benchhub/hub/internal/store"
)

type gormWorkflowRunRepository struct {
	db *gorm.DB
}

// NewWorkflowRunRepository returns a WorkflowRunRepository backed by the
// provided *gorm.DB.
func NewWorkflowRunRepository(db *gorm.DB) WorkflowRunRepository {
	return &gormWorkflowRunRepository{db: db}
}

func (r *gormWorkflowRunRepository) Create(ctx context.Context, run *store.WorkflowRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("workflow_runs: create: %w", err)
	}
	return nil
}

func (r *gormWorkflowRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*store.WorkflowRun, error) {
	var run store.WorkflowRun
	err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("workflow_runs: get by id: %w", err)
	}
	return &run, nil
}

func (r *gormWorkflowRunRepository) GetByIDWithNodeRuns(ctx context.Context, id uuid.UUID) (*store.WorkflowRun, []store.NodeRun, error) {
	var run store.WorkflowRun
	err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("workflow_runs: get by id with node runs: %w", err)
	}

	var nodeRuns []store.NodeRun
	if err := r.db.WithContext(ctx).
		Where("workflow_run_id = ?", id).
		Find(&nodeRuns).Error; err != nil {
		return nil, nil, fmt.Errorf("workflow_runs: get node runs for run %s: %w", id, err)
	}

	return &run, nodeRuns, nil
}

func (r *gormWorkflowRunRepository) Update(ctx context.Context, run *store.WorkflowRun) error {
	result := r.db.WithContext(ctx).Save(run)
	if result.Error != nil {
		return fmt.Errorf("workflow_runs: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormWorkflowRunRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status store.RunStatus, finishedAt *time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&store.WorkflowRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"finished_at": finishedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("workflow_runs: update status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormWorkflowRunRepository) List(ctx context.Context, opts ListOptions) ([]store.WorkflowRun, int64, error) {
	var runs []store.WorkflowRun
	var total int64

	if err := r.db.WithContext(ctx).Model(&store.WorkflowRun{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("workflow_runs: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("workflow_runs: list: %w", err)
	}

	return runs, total, nil
}

func (r *gormWorkflowRunRepository) ListByWorkflow(ctx context.Context, workflowID uuid.UUID, opts ListOptions) ([]store.WorkflowRun, int64, error) {
	var runs []store.WorkflowRun
	var total int64

	if err := r.db.WithContext(ctx).
		Model(&store.WorkflowRun{}).
		Where("workflow_id = ?", workflowID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("workflow_runs: list by workflow count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("workflow_runs: list by workflow: %w", err)
	}

	return runs, total, nil
}

// ListActive returns every run still in PENDING, RUNNING or
// WAITING_APPROVAL state. Nothing in the Hub calls it; in-flight runs are
// not resumed after a restart.
func (r *gormWorkflowRunRepository) ListActive(ctx context.Context) ([]store.WorkflowRun, error) {
	var runs []store.WorkflowRun
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []store.RunStatus{store.RunPending, store.RunRunning, store.RunWaitingApproval}).
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("workflow_runs: list active: %w", err)
	}
	return runs, nil
}

// -----------------------------------------------------------------------------
// NodeRun
// -----------------------------------------------------------------------------

func (r *gormWorkflowRunRepository) CreateNodeRun(ctx context.Context, nr *store.NodeRun) error {
	if err := r.db.WithContext(ctx).Create(nr).Error; err != nil {
		return fmt.Errorf("workflow_runs: create node run: %w", err)
	}
	return nil
}

func (r *gormWorkflowRunRepository) GetNodeRun(ctx context.Context, runID uuid.UUID, nodeID string) (*store.NodeRun, error) {
	var nr store.NodeRun
	err := r.db.WithContext(ctx).
		First(&nr, "workflow_run_id = ? AND node_id = ?", runID, nodeID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("workflow_runs: get node run: %w", err)
	}
	return &nr, nil
}

func (r *gormWorkflowRunRepository) GetNodeRunByID(ctx context.Context, id uuid.UUID) (*store.NodeRun, error) {
	var nr store.NodeRun
	err := r.db.WithContext(ctx).First(&nr, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("workflow_runs: get node run by id: %w", err)
	}
	return &nr, nil
}

func (r *gormWorkflowRunRepository) UpdateNodeRun(ctx context.Context, nr *store.NodeRun) error {
	result := r.db.WithContext(ctx).Save(nr)
	if result.Error != nil {
		return fmt.Errorf("workflow_runs: update node run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormWorkflowRunRepository) ListNodeRuns(ctx context.Context, runID uuid.UUID) ([]store.NodeRun, error) {
	var nodeRuns []store.NodeRun
	if err := r.db.WithContext(ctx).
		Where("workflow_run_id = ?", runID).
		Find(&nodeRuns).Error; err != nil {
		return nil, fmt.Errorf("workflow_runs: list node runs: %w", err)
	}
	return nodeRuns, nil
}

// -----------------------------------------------------------------------------
// NodeRunLog
// -----------------------------------------------------------------------------

// BulkCreateNodeRunLogs inserts multiple log lines in a single statement,
// mirroring the teacher's JobLog bulk-insert pattern. Nothing in the Hub
// calls it.
func (r *gormWorkflowRunRepository) BulkCreateNodeRunLogs(ctx context.Context, logs []store.NodeRunLog) error {
	if len(logs) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&logs).Error; err != nil {
		return fmt.Errorf("workflow_runs: bulk create node run logs: %w", err)
	}
	return nil
}

func (r *gormWorkflowRunRepository) GetNodeRunLogs(ctx context.Context, nodeRunID uuid.UUID) ([]store.NodeRunLog, error) {
	var logs []store.NodeRunLog
	if err := r.db.WithContext(ctx).
		Where("node_run_id = ?", nodeRunID).
		Order("timestamp ASC").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("workflow_runs: get node run logs: %w", err)
	}
	return logs, nil
}
