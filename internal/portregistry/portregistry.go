// Package portregistry maintains the process-local record of which ports
// are currently held by running project stacks. It mirrors the same
// mutex-protected in-memory map pattern the teacher uses for its connected
// agent registry, except here the reservations are also written through to
// the projects table so they survive a restart (reconciled at startup by
// Reconcile).
package portregistry

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benchhub/hub/internal/config"
	"github.com/benchhub/hub/internal/huberrors"
)

// Kind identifies which of the four port pools a reservation belongs to.
type Kind string

const (
	Backend  Kind = "backend"
	Frontend Kind = "frontend"
	DB       Kind = "db"
	Cache    Kind = "cache"
)

// Quad is a reserved set of the four stack ports for one project.
type Quad struct {
	Backend  int
	Frontend int
	DB       int
	Cache    int
}

// Registry is the in-memory map of port -> owning project, one map per
// pool. Safe for concurrent use.
//
// The zero value is not usable — create instances with New.
type Registry struct {
	mu      sync.Mutex
	pools   map[Kind]config.PortRange
	holders map[Kind]map[int]uuid.UUID
	logger  *zap.Logger
}

// New creates a Registry with the four configured port pools, all
// initially empty.
func New(cfg config.Config, logger *zap.Logger) *Registry {
	return &Registry{
		pools: map[Kind]config.PortRange{
			Backend:  cfg.BackendPorts,
			Frontend: cfg.FrontendPorts,
			DB:       cfg.DBPorts,
			Cache:    cfg.CachePorts,
		},
		holders: map[Kind]map[int]uuid.UUID{
			Backend:  {},
			Frontend: {},
			DB:       {},
			Cache:    {},
		},
		logger: logger.Named("portregistry"),
	}
}

// Reserve allocates the next free port in each pool for projectID and
// atomically commits the reservation in-memory. If any requested explicit
// port (explicit false, or a zero field in req, means "auto-pick") is already held, or out of
// range, the whole call fails and no partial reservation is left behind.
func (r *Registry) Reserve(projectID uuid.UUID, req Quad, explicit bool) (Quad, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out Quad
	var err error

	if out.Backend, err = r.pick(Backend, req.Backend, explicit); err != nil {
		return Quad{}, err
	}
	if out.Frontend, err = r.pick(Frontend, req.Frontend, explicit); err != nil {
		return Quad{}, err
	}
	if out.DB, err = r.pick(DB, req.DB, explicit); err != nil {
		return Quad{}, err
	}
	if out.Cache, err = r.pick(Cache, req.Cache, explicit); err != nil {
		return Quad{}, err
	}

	r.holders[Backend][out.Backend] = projectID
	r.holders[Frontend][out.Frontend] = projectID
	r.holders[DB][out.DB] = projectID
	r.holders[Cache][out.Cache] = projectID

	r.logger.Info("ports reserved",
		zap.String("project_id", projectID.String()),
		zap.Int("backend", out.Backend),
		zap.Int("frontend", out.Frontend),
		zap.Int("db", out.DB),
		zap.Int("cache", out.Cache),
	)

	return out, nil
}

// pick finds a free port in the given pool. If explicit is true and
// requested != 0, only that exact port is considered; otherwise the first
// free port in the pool's range is chosen.
func (r *Registry) pick(kind Kind, requested int, explicit bool) (int, error) {
	pool := r.pools[kind]
	held := r.holders[kind]

	if explicit && requested != 0 {
		if requested < pool.Low || requested > pool.High {
			return 0, fmt.Errorf("%w: port %d outside %s pool %d-%d", huberrors.ErrValidation, requested, kind, pool.Low, pool.High)
		}
		if _, taken := held[requested]; taken {
			return 0, fmt.Errorf("%w: port %d (%s) already reserved", huberrors.ErrPortsInUse, requested, kind)
		}
		return requested, nil
	}

	for p := pool.Low; p <= pool.High; p++ {
		if _, taken := held[p]; !taken {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %s pool %d-%d exhausted", huberrors.ErrPortsInUse, kind, pool.Low, pool.High)
}

// Release frees every port held by projectID across all four pools. Safe to
// call even if projectID holds no ports.
func (r *Registry) Release(projectID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for kind, held := range r.holders {
		for port, owner := range held {
			if owner == projectID {
				delete(held, port)
				r.logger.Info("port released",
					zap.String("project_id", projectID.String()),
					zap.String("kind", string(kind)),
					zap.Int("port", port),
				)
			}
		}
	}
}

// Adopt records an existing reservation without running pool/conflict
// checks — used by Reconcile to seed the in-memory map from rows that were
// already RUNNING/STARTING/STOPPING when the process last exited.
func (r *Registry) Adopt(projectID uuid.UUID, q Quad) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.holders[Backend][q.Backend] = projectID
	r.holders[Frontend][q.Frontend] = projectID
	r.holders[DB][q.DB] = projectID
	r.holders[Cache][q.Cache] = projectID
}
