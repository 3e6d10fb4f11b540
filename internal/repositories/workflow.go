package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/benchhub/hub/internal/store"
)

type gormWorkflowRepository struct {
	db *gorm.DB
}

// NewWorkflowRepository returns a WorkflowRepository backed by the provided
// *gorm.DB.
func NewWorkflowRepository(db *gorm.DB) WorkflowRepository {
	return &gormWorkflowRepository{db: db}
}

func (r *gormWorkflowRepository) Create(ctx context.Context, workflow *store.Workflow) error {
	if err := r.db.WithContext(ctx).Create(workflow).Error; err != nil {
		return fmt.Errorf("workflows: create: %w", err)
	}
	return nil
}

func (r *gormWorkflowRepository) GetByID(ctx context.Context, id uuid.UUID) (*store.Workflow, error) {
	var w store.Workflow
	err := r.db.WithContext(ctx).First(&w, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("workflows: get by id: %w", err)
	}
	return &w, nil
}

func (r *gormWorkflowRepository) Update(ctx context.Context, workflow *store.Workflow) error {
	result := r.db.WithContext(ctx).Save(workflow)
	if result.Error != nil {
		return fmt.Errorf("workflows: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormWorkflowRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&store.Workflow{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("workflows: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormWorkflowRepository) List(ctx context.Context, opts ListOptions) ([]store.Workflow, int64, error) {
	var workflows []store.Workflow
	var total int64

	if err := r.db.WithContext(ctx).Model(&store.Workflow{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("workflows: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&workflows).Error; err != nil {
		return nil, 0, fmt.Errorf("workflows: list: %w", err)
	}

	return workflows, total, nil
}

func (r *gormWorkflowRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]store.Workflow, error) {
	var workflows []store.Workflow
	if err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&workflows).Error; err != nil {
		return nil, fmt.Errorf("workflows: list by project: %w", err)
	}
	return workflows, nil
}

// ListActiveByTrigger returns every ACTIVE workflow configured for the given
// trigger kind. Nothing in the Hub calls it.
func (r *gormWorkflowRepository) ListActiveByTrigger(ctx context.Context, trigger store.WorkflowTrigger) ([]store.Workflow, error) {
	var workflows []store.Workflow
	if err := r.db.WithContext(ctx).
		Where("status = ? AND trigger = ?", store.WorkflowActive, trigger).
		Find(&workflows).Error; err != nil {
		return nil, fmt.Errorf("workflows: list active by trigger: %w", err)
	}
	return workflows, nil
}
