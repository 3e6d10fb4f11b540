package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/benchhub/hub/internal/store"
)

// newTestDB opens an in-memory SQLite database with migrations applied,
// the same way the teacher's own repository tests stand up a throwaway
// database per test rather than mocking GORM's query builder.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := store.New(store.Config{
		DSN:    ":memory:",
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	return db
}

func TestProjectRepositoryCreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	project := &store.Project{Slug: "demo", Name: "Demo", Path: "/srv/demo"}
	require.NoError(t, repo.Create(ctx, project))
	assert.NotEqual(t, "", project.ID.String())

	byID, err := repo.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "demo", byID.Slug)

	bySlug, err := repo.GetBySlug(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, project.ID, bySlug.ID)
}

func TestProjectRepositoryGetByIDNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewProjectRepository(db)

	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProjectRepositoryDuplicateSlugRejected(t *testing.T) {
	db := newTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &store.Project{Slug: "demo", Name: "Demo", Path: "/srv/demo"}))
	err := repo.Create(ctx, &store.Project{Slug: "demo", Name: "Demo Two", Path: "/srv/demo2"})
	assert.Error(t, err)
}

func TestProjectRepositoryUpdateStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	project := &store.Project{Slug: "demo", Name: "Demo", Path: "/srv/demo"}
	require.NoError(t, repo.Create(ctx, project))

	require.NoError(t, repo.UpdateStatus(ctx, project.ID, store.ProjectError, "driver unavailable"))

	updated, err := repo.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ProjectError, updated.Status)
	assert.Equal(t, "driver unavailable", updated.LastError)
}

func TestProjectRepositoryUpdateStatusNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewProjectRepository(db)

	err := repo.UpdateStatus(context.Background(), uuid.New(), store.ProjectError, "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProjectRepositoryReserveAndReleaseHandle(t *testing.T) {
	db := newTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	project := &store.Project{Slug: "demo", Name: "Demo", Path: "/srv/demo"}
	require.NoError(t, repo.Create(ctx, project))

	require.NoError(t, repo.ReserveHandle(ctx, project.ID, 18000, 19000, 15400, 16300, "compose-demo"))
	running, err := repo.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ProjectRunning, running.Status)
	require.NotNil(t, running.BackendPort)
	assert.Equal(t, 18000, *running.BackendPort)

	require.NoError(t, repo.ReleaseHandle(ctx, project.ID))
	stopped, err := repo.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ProjectStopped, stopped.Status)
	assert.Nil(t, stopped.BackendPort)
}

func TestProjectRepositoryDelete(t *testing.T) {
	db := newTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	project := &store.Project{Slug: "demo", Name: "Demo", Path: "/srv/demo"}
	require.NoError(t, repo.Create(ctx, project))
	require.NoError(t, repo.Delete(ctx, project.ID))

	_, err := repo.GetByID(ctx, project.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
