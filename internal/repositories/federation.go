package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/benchhub/hub/internal/store"
)

type gormFederationRepository struct {
	db *gorm.DB
}

// NewFederationRepository returns a FederationRepository backed by the
// provided *gorm.DB.
func NewFederationRepository(db *gorm.DB) FederationRepository {
	return &gormFederationRepository{db: db}
}

func (r *gormFederationRepository) Create(ctx context.Context, fp *store.FederationProject) error {
	if err := r.db.WithContext(ctx).Create(fp).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("federation: create: %w", err)
	}
	return nil
}

func (r *gormFederationRepository) GetBySlug(ctx context.Context, slug string) (*store.FederationProject, error) {
	var fp store.FederationProject
	err := r.db.WithContext(ctx).First(&fp, "slug = ?", slug).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("federation: get by slug: %w", err)
	}
	return &fp, nil
}

func (r *gormFederationRepository) Update(ctx context.Context, fp *store.FederationProject) error {
	result := r.db.WithContext(ctx).Save(fp)
	if result.Error != nil {
		return fmt.Errorf("federation: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordHeartbeat updates the last-seen timestamp and status of a child Hub
// row. Called on every successful heartbeat ingest (spec.md federation
// catalog §).
func (r *gormFederationRepository) RecordHeartbeat(ctx context.Context, slug string, at time.Time, status store.FederationStatus) error {
	result := r.db.WithContext(ctx).
		Model(&store.FederationProject{}).
		Where("slug = ?", slug).
		Updates(map[string]interface{}{
			"last_heartbeat_at": at,
			"status":            status,
		})
	if result.Error != nil {
		return fmt.Errorf("federation: record heartbeat: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkStaleAsOffline flips every ONLINE or DEGRADED row whose last
// heartbeat predates cutoff to OFFLINE, and returns the number of rows
// flipped. Called by the gocron-driven staleness sweeper.
func (r *gormFederationRepository) MarkStaleAsOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&store.FederationProject{}).
		Where("status IN ? AND (last_heartbeat_at IS NULL OR last_heartbeat_at < ?)",
			[]store.FederationStatus{store.FederationOnline, store.FederationDegraded}, cutoff).
		Update("status", store.FederationOffline)
	if result.Error != nil {
		return 0, fmt.Errorf("federation: mark stale as offline: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *gormFederationRepository) List(ctx context.Context, opts ListOptions) ([]store.FederationProject, int64, error) {
	var projects []store.FederationProject
	var total int64

	if err := r.db.WithContext(ctx).Model(&store.FederationProject{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("federation: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("name ASC").
		Find(&projects).Error; err != nil {
		return nil, 0, fmt.Errorf("federation: list: %w", err)
	}

	return projects, total, nil
}
