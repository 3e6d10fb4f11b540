package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/benchhub/hub/internal/store"
)

type gormIdempotencyRepository struct {
	db *gorm.DB
}

// NewIdempotencyRepository returns an IdempotencyRepository backed by the
// provided *gorm.DB.
func NewIdempotencyRepository(db *gorm.DB) IdempotencyRepository {
	return &gormIdempotencyRepository{db: db}
}

func (r *gormIdempotencyRepository) Get(ctx context.Context, key string) (*store.IdempotencyRecord, error) {
	var rec store.IdempotencyRecord
	err := r.db.WithContext(ctx).First(&rec, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("idempotency: get: %w", err)
	}
	return &rec, nil
}

// Save inserts a new idempotency record. Conflicts are surfaced as
// ErrConflict rather than overwriting — the client-supplied key is the
// primary key, so a conflict means a record already exists under that key
// (a concurrent retry, or a reuse with a different request body).
func (r *gormIdempotencyRepository) Save(ctx context.Context, rec *store.IdempotencyRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("idempotency: save: %w", err)
	}
	return nil
}
