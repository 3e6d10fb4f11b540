// Package federation implements the federation catalog (spec.md §4.4): a
// registry of child Hubs whose ONLINE/OFFLINE status is derived from
// heartbeat freshness, backed by a gocron-driven staleness sweeper — the
// Hub's adaptation of the teacher's scheduler package from per-policy
// backup jobs to a single recurring catalog scan.
package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/benchhub/hub/internal/eventservice"
	"github.com/benchhub/hub/internal/huberrors"
	"github.com/benchhub/hub/internal/metrics"
	"github.com/benchhub/hub/internal/repositories"
	"github.com/benchhub/hub/internal/store"
)

// ErrNamespaceMismatch marks a heartbeat whose mesh_namespace does not match
// the registered value for that slug.
var ErrNamespaceMismatch = errors.New("federation: NAMESPACE_MISMATCH")

// Heartbeat is an inbound liveness message from a child Hub.
type Heartbeat struct {
	ProjectSlug   string
	MeshNamespace string
	At            time.Time
}

// Catalog maintains the federation registry and its staleness sweeper. The
// zero value is not usable — create instances with New.
type Catalog struct {
	federation repositories.FederationRepository
	events     eventservice.Service
	cron       gocron.Scheduler
	staleAfter time.Duration
	sweepEvery time.Duration
	logger     *zap.Logger

	unknownMu         sync.Mutex
	unknownHeartbeats map[string]int
}

// New builds a Catalog. Call Start to begin the staleness sweeper.
func New(federation repositories.FederationRepository, events eventservice.Service, staleAfter, sweepEvery time.Duration, logger *zap.Logger) (*Catalog, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("federation: create scheduler: %w", err)
	}
	return &Catalog{
		federation:        federation,
		events:            events,
		cron:              cron,
		staleAfter:        staleAfter,
		sweepEvery:        sweepEvery,
		logger:            logger.Named("federation"),
		unknownHeartbeats: make(map[string]int),
	}, nil
}

// Start registers the recurring staleness sweep job and starts the
// underlying gocron scheduler. Call once at process startup.
func (c *Catalog) Start(ctx context.Context) error {
	_, err := c.cron.NewJob(
		gocron.DurationJob(c.sweepEvery),
		gocron.NewTask(func() { c.sweep(ctx) }),
		gocron.WithTags("federation-stale-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("federation: schedule stale sweep: %w", err)
	}
	c.cron.Start()
	c.logger.Info("federation staleness sweeper started",
		zap.Duration("stale_after", c.staleAfter),
		zap.Duration("sweep_every", c.sweepEvery),
	)
	return nil
}

// Stop gracefully shuts down the sweeper, waiting for any in-flight sweep
// to complete.
func (c *Catalog) Stop() error {
	if err := c.cron.Shutdown(); err != nil {
		return fmt.Errorf("federation: shutdown scheduler: %w", err)
	}
	return nil
}

// Register upserts a child Hub row.
func (c *Catalog) Register(ctx context.Context, slug, name, hubURL, meshNamespace string, tags []string) (*store.FederationProject, error) {
	tagsJSON, err := marshalTags(tags)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", huberrors.ErrValidation, err)
	}

	existing, err := c.federation.GetBySlug(ctx, slug)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		fp := &store.FederationProject{
			Slug:          slug,
			Name:          name,
			HubURL:        hubURL,
			MeshNamespace: meshNamespace,
			Tags:          tagsJSON,
			Status:        store.FederationOffline,
		}
		if err := c.federation.Create(ctx, fp); err != nil {
			return nil, fmt.Errorf("federation: register: %w", err)
		}
		return fp, nil
	case err != nil:
		return nil, err
	default:
		existing.Name = name
		existing.HubURL = hubURL
		existing.MeshNamespace = meshNamespace
		existing.Tags = tagsJSON
		if err := c.federation.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("federation: register: update: %w", err)
		}
		return existing, nil
	}
}

// List returns every registered child Hub, optionally filtered by status.
func (c *Catalog) List(ctx context.Context, status store.FederationStatus, opts repositories.ListOptions) ([]store.FederationProject, int64, error) {
	rows, total, err := c.federation.List(ctx, opts)
	if err != nil {
		return nil, 0, err
	}
	if status == "" {
		return rows, total, nil
	}

	filtered := rows[:0]
	for _, r := range rows {
		if r.Status == status {
			filtered = append(filtered, r)
		}
	}
	return filtered, int64(len(filtered)), nil
}

// Get returns a single child Hub row by slug.
func (c *Catalog) Get(ctx context.Context, slug string) (*store.FederationProject, error) {
	return c.federation.GetBySlug(ctx, slug)
}

// IngestHeartbeat validates and records a heartbeat from a child Hub.
// Unknown slugs are counted but never auto-register a row. A heartbeat
// whose timestamp is not strictly newer than the stored last_heartbeat_at
// is accepted but does not change status, keeping ingest order-tolerant.
func (c *Catalog) IngestHeartbeat(ctx context.Context, hb Heartbeat) error {
	fp, err := c.federation.GetBySlug(ctx, hb.ProjectSlug)
	if errors.Is(err, repositories.ErrNotFound) {
		c.unknownMu.Lock()
		c.unknownHeartbeats[hb.ProjectSlug]++
		count := c.unknownHeartbeats[hb.ProjectSlug]
		c.unknownMu.Unlock()
		c.logger.Warn("heartbeat from unregistered child hub",
			zap.String("slug", hb.ProjectSlug),
			zap.Int("unknown_count", count),
		)
		return fmt.Errorf("%w: unknown federation slug %q", huberrors.ErrNotFound, hb.ProjectSlug)
	}
	if err != nil {
		return err
	}

	if fp.MeshNamespace != hb.MeshNamespace {
		return fmt.Errorf("%w: expected namespace %q, got %q", ErrNamespaceMismatch, fp.MeshNamespace, hb.MeshNamespace)
	}

	if fp.LastHeartbeatAt != nil && !hb.At.After(*fp.LastHeartbeatAt) {
		return nil
	}

	if err := c.federation.RecordHeartbeat(ctx, hb.ProjectSlug, hb.At, store.FederationOnline); err != nil {
		return fmt.Errorf("federation: ingest heartbeat: %w", err)
	}
	return nil
}

// sweep marks every row whose last heartbeat predates staleAfter as OFFLINE
// and emits a federation.<slug>.offline event for each one flipped.
func (c *Catalog) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-c.staleAfter)

	rows, _, err := c.federation.List(ctx, repositories.ListOptions{Limit: 10_000})
	if err != nil {
		c.logger.Error("stale sweep: list", zap.Error(err))
		return
	}

	var wentStale []store.FederationProject
	for _, r := range rows {
		if r.Status == store.FederationOffline {
			continue
		}
		if r.LastHeartbeatAt == nil || r.LastHeartbeatAt.Before(cutoff) {
			wentStale = append(wentStale, r)
		}
	}

	flipped, err := c.federation.MarkStaleAsOffline(ctx, cutoff)
	if err != nil {
		c.logger.Error("stale sweep: mark offline", zap.Error(err))
		return
	}
	if flipped == 0 {
		return
	}

	for _, r := range wentStale {
		subject := fmt.Sprintf("federation.%s.offline", r.Slug)
		if _, err := c.events.Publish(ctx, subject, []byte("{}"), "federation", ""); err != nil {
			c.logger.Warn("failed to publish federation offline event", zap.String("subject", subject), zap.Error(err))
		}
	}
	c.logger.Info("stale sweep flipped rows offline", zap.Int64("count", flipped))

	c.recordGaugesLocked(ctx, rows, wentStale)
}

// recordGaugesLocked refreshes the federation child-count gauges from the
// rows just scanned, adjusting for the rows this sweep flipped offline.
func (c *Catalog) recordGaugesLocked(_ context.Context, rows []store.FederationProject, flipped []store.FederationProject) {
	counts := make(map[store.FederationStatus]int, len(rows))
	stale := make(map[string]struct{}, len(flipped))
	for _, r := range flipped {
		stale[r.Slug] = struct{}{}
	}
	for _, r := range rows {
		status := r.Status
		if _, wentOffline := stale[r.Slug]; wentOffline {
			status = store.FederationOffline
		}
		counts[status]++
	}
	for _, status := range []store.FederationStatus{store.FederationOnline, store.FederationOffline, store.FederationDegraded} {
		metrics.SetFederationChildren(string(status), float64(counts[status]))
	}
}

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		return "[]", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
