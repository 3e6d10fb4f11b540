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

type gormApprovalRepository struct {
	db *gorm.DB
}

// NewApprovalRepository returns an ApprovalRepository backed by the
// provided *gorm.DB.
func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &gormApprovalRepository{db: db}
}

func (r *gormApprovalRepository) Create(ctx context.Context, approval *store.Approval) error {
	if err := r.db.WithContext(ctx).Create(approval).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("approvals: create: %w", err)
	}
	return nil
}

func (r *gormApprovalRepository) GetByID(ctx context.Context, id uuid.UUID) (*store.Approval, error) {
	var a store.Approval
	err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("approvals: get by id: %w", err)
	}
	return &a, nil
}

func (r *gormApprovalRepository) GetPendingByNodeRun(ctx context.Context, nodeRunID uuid.UUID) (*store.Approval, error) {
	var a store.Approval
	err := r.db.WithContext(ctx).
		First(&a, "node_run_id = ? AND decision = ?", nodeRunID, store.ApprovalPending).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("approvals: get pending by node run: %w", err)
	}
	return &a, nil
}

func (r *gormApprovalRepository) GetLatestByNodeRun(ctx context.Context, nodeRunID uuid.UUID) (*store.Approval, error) {
	var a store.Approval
	err := r.db.WithContext(ctx).
		Where("node_run_id = ?", nodeRunID).
		Order("requested_at DESC").
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("approvals: get latest by node run: %w", err)
	}
	return &a, nil
}

// Decide transitions a PENDING approval to APPROVED or REJECTED. The
// where-clause restricts the update to rows still PENDING, so a second
// decision on an already-decided approval affects zero rows and surfaces as
// ErrConflict rather than silently overwriting the first decision.
func (r *gormApprovalRepository) Decide(ctx context.Context, id uuid.UUID, decision store.ApprovalDecision, approver string, decidedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&store.Approval{}).
		Where("id = ? AND decision = ?", id, store.ApprovalPending).
		Updates(map[string]interface{}{
			"decision":   decision,
			"approver":   approver,
			"decided_at": decidedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("approvals: decide: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func (r *gormApprovalRepository) ListPending(ctx context.Context, opts ListOptions) ([]store.Approval, int64, error) {
	var approvals []store.Approval
	var total int64

	if err := r.db.WithContext(ctx).
		Model(&store.Approval{}).
		Where("decision = ?", store.ApprovalPending).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("approvals: list pending count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Where("decision = ?", store.ApprovalPending).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("requested_at ASC").
		Find(&approvals).Error; err != nil {
		return nil, 0, fmt.Errorf("approvals: list pending: %w", err)
	}

	return approvals, total, nil
}
