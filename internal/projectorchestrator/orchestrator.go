// Package projectorchestrator enforces the project status state machine and
// reserves/releases ports atomically around container lifecycle calls
// (spec.md §4.1). It is the Hub's adaptation of the teacher's scheduler
// package: gocron's singleton-job-per-policy locking becomes a named
// per-project mutex gating lifecycle operations, and agentmanager's
// connected-agent dispatch becomes a direct, in-process containerdriver
// call.
package projectorchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benchhub/hub/internal/containerdriver"
	"github.com/benchhub/hub/internal/eventservice"
	"github.com/benchhub/hub/internal/huberrors"
	"github.com/benchhub/hub/internal/metrics"
	"github.com/benchhub/hub/internal/portregistry"
	"github.com/benchhub/hub/internal/repositories"
	"github.com/benchhub/hub/internal/store"
)

// Orchestrator drives project lifecycle transitions. The zero value is not
// usable — create instances with New.
type Orchestrator struct {
	projects repositories.ProjectRepository
	ports    *portregistry.Registry
	driver   containerdriver.Driver
	events   eventservice.Service
	logger   *zap.Logger

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

// New builds an Orchestrator.
func New(projects repositories.ProjectRepository, ports *portregistry.Registry, driver containerdriver.Driver, events eventservice.Service, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		projects: projects,
		ports:    ports,
		driver:   driver,
		events:   events,
		logger:   logger.Named("projectorchestrator"),
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

// projectLock returns the named mutex for projectID, creating it on first
// use. Locks are never removed — the Hub's project count is small enough
// that this is not a practical leak concern, the same tradeoff the teacher
// accepts for its per-policy gocron job registry.
func (o *Orchestrator) projectLock(projectID uuid.UUID) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	l, ok := o.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[projectID] = l
	}
	return l
}

// Start reserves ports, transitions STOPPED->STARTING and returns once the
// STARTING transition is committed ("accepted"). A port conflict is
// returned as ErrPortsInUse and leaves the project STOPPED. The driver is
// then invoked in the background and the project moves to RUNNING or
// ERROR; completion is observable via the event bus and GetStatus polling.
func (o *Orchestrator) Start(ctx context.Context, projectID uuid.UUID, requested portregistry.Quad, explicitPorts bool) error {
	lock := o.projectLock(projectID)
	if !lock.TryLock() {
		return huberrors.ErrAlreadyInProgress
	}

	project, err := o.projects.GetByID(ctx, projectID)
	if err != nil {
		lock.Unlock()
		return err
	}
	if project.Status != store.ProjectStopped {
		lock.Unlock()
		return fmt.Errorf("%w: project %s is %s, not STOPPED", huberrors.ErrConflict, project.Slug, project.Status)
	}

	quad, err := o.ports.Reserve(projectID, requested, explicitPorts)
	if err != nil {
		lock.Unlock()
		return err
	}

	if err := o.projects.UpdateStatus(ctx, projectID, store.ProjectStarting, ""); err != nil {
		o.ports.Release(projectID)
		lock.Unlock()
		return fmt.Errorf("projectorchestrator: start: %w", err)
	}
	metrics.RecordProjectTransition(string(store.ProjectStarting))
	o.publish(ctx, project.Slug, "project.starting", nil)

	go o.finishStart(context.Background(), lock, project, quad)
	return nil
}

func (o *Orchestrator) finishStart(ctx context.Context, lock *sync.Mutex, project *store.Project, quad portregistry.Quad) {
	defer lock.Unlock()

	spec := containerdriver.StackSpec{
		ProjectSlug:  project.Slug,
		Path:         project.Path,
		BackendPort:  quad.Backend,
		FrontendPort: quad.Frontend,
		DBPort:       quad.DB,
		CachePort:    quad.Cache,
		Env:          stackEnv(project),
	}

	handle, err := o.driver.StartStack(ctx, spec)
	if err != nil {
		o.ports.Release(project.ID)
		o.fail(ctx, project, err)
		return
	}

	if err := o.projects.ReserveHandle(ctx, project.ID, quad.Backend, quad.Frontend, quad.DB, quad.Cache, string(handle)); err != nil {
		o.ports.Release(project.ID)
		o.fail(ctx, project, err)
		return
	}

	metrics.RecordProjectTransition(string(store.ProjectRunning))
	o.publish(ctx, project.Slug, "project.started", nil)
}

func (o *Orchestrator) fail(ctx context.Context, project *store.Project, cause error) {
	msg := cause.Error()
	if err := o.projects.UpdateStatus(ctx, project.ID, store.ProjectError, msg); err != nil {
		o.logger.Error("failed to record project error status", zap.Error(err), zap.String("project_id", project.ID.String()))
	}
	metrics.RecordProjectTransition(string(store.ProjectError))
	o.publish(ctx, project.Slug, "project.failed", []byte(fmt.Sprintf(`{"error":%q}`, msg)))
}

// Stop transitions RUNNING or ERROR->STOPPING, calls the driver, then STOPPING->STOPPED
// on success. Ports are released only once STOPPED is committed.
func (o *Orchestrator) Stop(ctx context.Context, projectID uuid.UUID) error {
	lock := o.projectLock(projectID)
	if !lock.TryLock() {
		return huberrors.ErrAlreadyInProgress
	}
	defer lock.Unlock()

	project, err := o.projects.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if project.Status != store.ProjectRunning && project.Status != store.ProjectError {
		return fmt.Errorf("%w: project %s is %s, not RUNNING or ERROR", huberrors.ErrConflict, project.Slug, project.Status)
	}

	if err := o.projects.UpdateStatus(ctx, projectID, store.ProjectStopping, ""); err != nil {
		return fmt.Errorf("projectorchestrator: stop: %w", err)
	}
	metrics.RecordProjectTransition(string(store.ProjectStopping))
	o.publish(ctx, project.Slug, "project.stopping", nil)

	if project.HandleOpaque != "" {
		if err := o.driver.StopStack(ctx, containerdriver.Handle(project.HandleOpaque)); err != nil {
			o.fail(ctx, project, err)
			return fmt.Errorf("projectorchestrator: stop: %w", err)
		}
	}

	if err := o.projects.ReleaseHandle(ctx, projectID); err != nil {
		return fmt.Errorf("projectorchestrator: stop: %w", err)
	}
	o.ports.Release(projectID)
	metrics.RecordProjectTransition(string(store.ProjectStopped))
	o.publish(ctx, project.Slug, "project.stopped", nil)
	return nil
}

// Restart stops then starts a project, reusing its previous ports when they
// are still reservable.
func (o *Orchestrator) Restart(ctx context.Context, projectID uuid.UUID) error {
	project, err := o.projects.GetByID(ctx, projectID)
	if err != nil {
		return err
	}

	var prior portregistry.Quad
	explicit := false
	if project.BackendPort != nil && project.FrontendPort != nil && project.DBPort != nil && project.CachePort != nil {
		prior = portregistry.Quad{
			Backend:  *project.BackendPort,
			Frontend: *project.FrontendPort,
			DB:       *project.DBPort,
			Cache:    *project.CachePort,
		}
		explicit = true
	}

	if err := o.Stop(ctx, projectID); err != nil && !errors.Is(err, huberrors.ErrConflict) {
		return fmt.Errorf("projectorchestrator: restart: stop: %w", err)
	}

	if err := o.Start(ctx, projectID, prior, explicit); err != nil {
		// Fall back to auto-picked ports if the prior ports were claimed by
		// another project while this one was stopped.
		if explicit && errors.Is(err, huberrors.ErrPortsInUse) {
			return o.Start(ctx, projectID, portregistry.Quad{}, false)
		}
		return fmt.Errorf("projectorchestrator: restart: start: %w", err)
	}
	return nil
}

// GetStatus is a pure read of a project's current lifecycle state.
func (o *Orchestrator) GetStatus(ctx context.Context, projectID uuid.UUID) (*store.Project, error) {
	return o.projects.GetByID(ctx, projectID)
}

// Delete removes a project row. Only permitted when STOPPED.
func (o *Orchestrator) Delete(ctx context.Context, projectID uuid.UUID) error {
	lock := o.projectLock(projectID)
	if !lock.TryLock() {
		return huberrors.ErrAlreadyInProgress
	}
	defer lock.Unlock()

	project, err := o.projects.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if project.Status != store.ProjectStopped {
		return fmt.Errorf("%w: project %s is %s, must be STOPPED to delete", huberrors.ErrConflict, project.Slug, project.Status)
	}
	return o.projects.Delete(ctx, projectID)
}

func (o *Orchestrator) publish(ctx context.Context, slug, event string, payload []byte) {
	if payload == nil {
		payload = []byte("{}")
	}
	subject := fmt.Sprintf("hub.%s.%s", slug, event)
	if _, err := o.events.Publish(ctx, subject, payload, "projectorchestrator", ""); err != nil {
		o.logger.Warn("failed to publish project lifecycle event", zap.String("subject", subject), zap.Error(err))
	}
}

// Reconcile seeds the port registry's in-memory state from rows that were
// already non-STOPPED when the process last exited, so restarts don't
// silently double-reserve ports already held by a surviving stack. Called
// once at startup.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	projects, _, err := o.projects.List(ctx, repositories.ListOptions{Limit: 10_000})
	if err != nil {
		return fmt.Errorf("projectorchestrator: reconcile: list: %w", err)
	}

	for _, p := range projects {
		if p.Status == store.ProjectStopped {
			continue
		}
		if p.BackendPort == nil || p.FrontendPort == nil || p.DBPort == nil || p.CachePort == nil {
			continue
		}
		o.ports.Adopt(p.ID, portregistry.Quad{
			Backend:  *p.BackendPort,
			Frontend: *p.FrontendPort,
			DB:       *p.DBPort,
			Cache:    *p.CachePort,
		})
	}

	o.logger.Info("port registry reconciled", zap.Int("active_projects", len(projects)))
	return nil
}

// stackEnv builds the environment injected into a project's compose
// invocation. RegistryAuth is only present when the project was configured
// with private-registry credentials.
func stackEnv(project *store.Project) map[string]string {
	if project.RegistryAuth == "" {
		return nil
	}
	return map[string]string{"REGISTRY_AUTH": string(project.RegistryAuth)}
}
