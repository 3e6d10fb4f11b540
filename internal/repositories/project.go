package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/benchhub/hub/internal/store"
)

// gormProjectRepository is the GORM implementation of ProjectRepository.
type gormProjectRepository struct {
	db *gorm.DB
}

// NewProjectRepository returns a ProjectRepository backed by the provided
// *gorm.DB.
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &gormProjectRepository{db: db}
}

func (r *gormProjectRepository) Create(ctx context.Context, project *store.Project) error {
	if err := r.db.WithContext(ctx).Create(project).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("projects: create: %w", err)
	}
	return nil
}

func (r *gormProjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*store.Project, error) {
	var p store.Project
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("projects: get by id: %w", err)
	}
	return &p, nil
}

func (r *gormProjectRepository) GetBySlug(ctx context.Context, slug string) (*store.Project, error) {
	var p store.Project
	err := r.db.WithContext(ctx).First(&p, "slug = ?", slug).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("projects: get by slug: %w", err)
	}
	return &p, nil
}

func (r *gormProjectRepository) Update(ctx context.Context, project *store.Project) error {
	result := r.db.WithContext(ctx).Save(project)
	if result.Error != nil {
		return fmt.Errorf("projects: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus transitions a project's status field in isolation, without
// touching port reservation fields — used by the orchestrator's state
// machine on every lifecycle transition (spec.md §4.1).
func (r *gormProjectRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status store.ProjectStatus, lastError string) error {
	result := r.db.WithContext(ctx).
		Model(&store.Project{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": lastError,
		})
	if result.Error != nil {
		return fmt.Errorf("projects: update status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReserveHandle records the four reserved ports and the driver-opaque stack
// handle atomically with the STARTING->RUNNING transition. The unique
// partial indexes on the port columns (see migrations/000001) guarantee two
// concurrent Starts cannot claim the same port pair; a violation surfaces
// here as ErrConflict.
func (r *gormProjectRepository) ReserveHandle(ctx context.Context, id uuid.UUID, backend, frontend, db, cache int, handle string) error {
	result := r.db.WithContext(ctx).
		Model(&store.Project{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        store.ProjectRunning,
			"backend_port":  backend,
			"frontend_port": frontend,
			"db_port":       db,
			"cache_port":    cache,
			"handle_opaque": handle,
		})
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return ErrConflict
		}
		return fmt.Errorf("projects: reserve handle: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseHandle clears port and handle fields on the STOPPING->STOPPED
// transition, freeing the ports for reuse by other projects.
func (r *gormProjectRepository) ReleaseHandle(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&store.Project{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        store.ProjectStopped,
			"backend_port":  nil,
			"frontend_port": nil,
			"db_port":       nil,
			"cache_port":    nil,
			"handle_opaque": "",
		})
	if result.Error != nil {
		return fmt.Errorf("projects: release handle: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormProjectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&store.Project{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("projects: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormProjectRepository) List(ctx context.Context, opts ListOptions) ([]store.Project, int64, error) {
	var projects []store.Project
	var total int64

	if err := r.db.WithContext(ctx).Model(&store.Project{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("projects: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&projects).Error; err != nil {
		return nil, 0, fmt.Errorf("projects: list: %w", err)
	}

	return projects, total, nil
}
