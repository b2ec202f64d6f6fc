package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury/internal/export"
	"treasury/internal/session"
)

func newTestRepo(t *testing.T) (*SQLiteRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "treasury.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo, path
}

func TestMigrations(t *testing.T) {
	_, path := newTestRepo(t)

	// running again is a no-op
	require.NoError(t, RunMigrations(path))

	version, dirty, err := SchemaVersion(path)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	now := time.Now().Truncate(time.Second)
	s := &session.Session{
		ID:          "s-1",
		Token:       "tok",
		UserID:      4,
		Username:    "ops",
		Role:        "admin",
		CompanyID:   9,
		CompanyName: "Acme",
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}
	require.NoError(t, repo.SaveSession(ctx, s))

	got, err := repo.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, s.Token, got.Token)
	assert.Equal(t, s.CompanyName, got.CompanyName)
	assert.True(t, s.ExpiresAt.Equal(got.ExpiresAt))

	s.Token = "rotated"
	require.NoError(t, repo.SaveSession(ctx, s))
	got, err = repo.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "rotated", got.Token)

	require.NoError(t, repo.SaveSession(ctx, &session.Session{ID: "old", Token: "x", CreatedAt: now, ExpiresAt: now.Add(-time.Minute)}))
	n, err := repo.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, repo.DeleteSession(ctx, "s-1"))
	_, err = repo.GetSession(ctx, "s-1")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestSessionManagerWithSQLite(t *testing.T) {
	repo, _ := newTestRepo(t)
	var store session.Store = repo
	m := session.NewManager(store, time.Hour)

	_, err := m.Resolve(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestExportJobs(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	var store export.JobStore = repo
	job := &export.Job{ID: "j-1", SessionID: "s-1", Kind: "bank-utilization", Date: "2024-06-30", Target: "xlsx"}
	require.NoError(t, store.CreateJob(ctx, job))
	assert.Equal(t, export.JobQueued, job.Status)

	require.NoError(t, store.CreateJob(ctx, &export.Job{ID: "j-2", SessionID: "s-1", Kind: "interest-rate", Date: "2024-06-30", Target: "xlsx"}))
	require.NoError(t, store.CreateJob(ctx, &export.Job{ID: "j-3", SessionID: "s-2", Kind: "interest-rate", Date: "2024-06-30", Target: "xlsx"}))

	jobs, err := store.ListJobs(ctx, "s-1", 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "j-2", jobs[0].ID)

	require.NoError(t, store.UpdateJob(ctx, "j-1", export.JobDone, "/exports/bank-utilization-2024-06-30-j-1.xlsx", ""))
	got, err := store.GetJob(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, export.JobDone, got.Status)
	assert.Contains(t, got.Ref, "j-1.xlsx")

	queued, err := store.ListJobsByStatus(ctx, export.JobQueued, 0)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, "j-2", queued[0].ID)

	assert.ErrorIs(t, store.UpdateJob(ctx, "nope", export.JobFailed, "", "x"), export.ErrJobNotFound)
	_, err = store.GetJob(ctx, "nope")
	assert.ErrorIs(t, err, export.ErrJobNotFound)
}
