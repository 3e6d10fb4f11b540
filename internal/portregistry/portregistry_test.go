package portregistry

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/benchhub/hub/internal/config"
	"github.com/benchhub/hub/internal/huberrors"
)

func testConfig() config.Config {
	return config.Config{
		BackendPorts:  config.PortRange{Low: 9000, High: 9001},
		FrontendPorts: config.PortRange{Low: 9100, High: 9101},
		DBPorts:       config.PortRange{Low: 9200, High: 9201},
		CachePorts:    config.PortRange{Low: 9300, High: 9301},
	}
}

func TestReserveAutoPicksFirstFreePort(t *testing.T) {
	r := New(testConfig(), zap.NewNop())
	id := uuid.New()

	q, err := r.Reserve(id, Quad{}, false)
	require.NoError(t, err)
	assert.Equal(t, 9000, q.Backend)
	assert.Equal(t, 9100, q.Frontend)
	assert.Equal(t, 9200, q.DB)
	assert.Equal(t, 9300, q.Cache)
}

func TestReservePoolExhausted(t *testing.T) {
	r := New(testConfig(), zap.NewNop())

	_, err := r.Reserve(uuid.New(), Quad{}, false)
	require.NoError(t, err)
	_, err = r.Reserve(uuid.New(), Quad{}, false)
	require.NoError(t, err)

	_, err = r.Reserve(uuid.New(), Quad{}, false)
	assert.ErrorIs(t, err, huberrors.ErrPortsInUse)
}

func TestReserveExplicitPortAlreadyHeld(t *testing.T) {
	r := New(testConfig(), zap.NewNop())
	first := uuid.New()

	q, err := r.Reserve(first, Quad{}, false)
	require.NoError(t, err)

	_, err = r.Reserve(uuid.New(), q, true)
	assert.ErrorIs(t, err, huberrors.ErrPortsInUse)
}

func TestReserveExplicitPortOutOfRange(t *testing.T) {
	r := New(testConfig(), zap.NewNop())

	_, err := r.Reserve(uuid.New(), Quad{Backend: 1, Frontend: 9100, DB: 9200, Cache: 9300}, true)
	assert.ErrorIs(t, err, huberrors.ErrValidation)
}

func TestReleaseFreesAllFourPools(t *testing.T) {
	r := New(testConfig(), zap.NewNop())
	id := uuid.New()

	q, err := r.Reserve(id, Quad{}, false)
	require.NoError(t, err)

	r.Release(id)

	// Reserving again should get the same ports back since they were freed.
	q2, err := r.Reserve(uuid.New(), Quad{}, false)
	require.NoError(t, err)
	assert.Equal(t, q, q2)
}

func TestAdoptSeedsWithoutValidation(t *testing.T) {
	r := New(testConfig(), zap.NewNop())
	id := uuid.New()

	r.Adopt(id, Quad{Backend: 9000, Frontend: 9100, DB: 9200, Cache: 9300})

	// The adopted ports are now held, so a fresh Reserve must skip them.
	other := uuid.New()
	q, err := r.Reserve(other, Quad{}, false)
	require.NoError(t, err)
	assert.Equal(t, 9001, q.Backend)
}
