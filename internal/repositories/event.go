package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/benchhub/hub/internal/store"
)

type gormEventRepository struct {
	db *gorm.DB
}

// NewEventRepository returns an EventRepository backed by the provided
// *gorm.DB.
func NewEventRepository(db *gorm.DB) EventRepository {
	return &gormEventRepository{db: db}
}

func (r *gormEventRepository) Create(ctx context.Context, event *store.Event) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("events: create: %w", err)
	}
	return nil
}

// Query returns events matching subjectPattern, which may use the bus's
// wildcard tokens ("*" for a single subject segment, ">" for the remainder)
// the same way internal/bus interprets them for live subscriptions. The
// pattern is translated to a SQL LIKE expression so the persisted log can
// be replayed with the same addressing scheme used for live delivery.
func (r *gormEventRepository) Query(ctx context.Context, subjectPattern string, since time.Time, opts ListOptions) ([]store.Event, error) {
	var events []store.Event

	like := subjectToLike(subjectPattern)

	q := r.db.WithContext(ctx).
		Where("subject LIKE ? AND timestamp >= ?", like, since).
		Order("timestamp ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("events: query: %w", err)
	}
	return events, nil
}

// subjectToLike converts a NATS-style subject pattern into a SQL LIKE
// pattern. "*" becomes a single non-dot wildcard (approximated with "%"
// since SQL LIKE has no segment-bounded wildcard); ">" becomes a trailing
// "%". This is an approximation good enough for the replay use case — exact
// segment matching is enforced again in-process by internal/bus when the
// caller also holds a live subscription.
func subjectToLike(pattern string) string {
	if pattern == "" || pattern == ">" {
		return "%"
	}
	replaced := strings.ReplaceAll(pattern, "*", "%")
	replaced = strings.ReplaceAll(replaced, ">", "%")
	return replaced
}
