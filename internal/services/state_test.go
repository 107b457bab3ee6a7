package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightfield-labs/prism/internal/lib"
	"github.com/lightfield-labs/prism/internal/models"
)

func newTestStore(t *testing.T) *JobStore {
	t.Helper()
	return NewJobStore(t.TempDir(), lib.NewLogger(lib.LogLevelError))
}

func TestJobStoreCreate(t *testing.T) {
	store := newTestStore(t)

	job, err := store.Create("train_abc", models.JobTypeTraining, map[string]any{"root_id": "abc"})
	require.NoError(t, err)

	// New records always start idle with both timestamps set
	assert.Equal(t, models.JobStatusIdle, job.Status)
	assert.Equal(t, models.JobTypeTraining, job.JobType)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Equal(t, job.CreatedAt, job.UpdatedAt)

	loaded, err := store.Get("train_abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", loaded.Data["root_id"])
	assert.Equal(t, models.JobStatusIdle, loaded.Status)
}

func TestJobStoreCreateRejectsUnknownType(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Create("x", "transcode", nil)
	assert.Error(t, err)
}

func TestJobStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get("nope")
	require.Error(t, err)

	var prismErr *lib.PrismError
	require.ErrorAs(t, err, &prismErr)
	assert.Equal(t, lib.CategoryState, prismErr.Category)
}

func TestJobStoreGetCorrupted(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Create("train_abc", models.JobTypeTraining, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(store.statePath("train_abc"), []byte("{not json"), 0644))

	_, err = store.Get("train_abc")
	assert.Error(t, err)
}

func TestJobStoreUpdate(t *testing.T) {
	store := newTestStore(t)

	t.Run("merges data and bumps timestamp", func(t *testing.T) {
		_, err := store.Create("train_abc", models.JobTypeTraining, map[string]any{"a": "1", "b": "2"})
		require.NoError(t, err)

		job, err := store.Update("train_abc", models.JobStatusProcessing, map[string]any{"b": "changed", "c": "3"})
		require.NoError(t, err)
		require.NotNil(t, job)

		assert.Equal(t, models.JobStatusProcessing, job.Status)
		assert.Equal(t, "1", job.Data["a"], "untouched keys survive")
		assert.Equal(t, "changed", job.Data["b"])
		assert.Equal(t, "3", job.Data["c"])
		assert.True(t, job.UpdatedAt.After(job.CreatedAt) || job.UpdatedAt.Equal(job.CreatedAt))
	})

	t.Run("empty status leaves status unchanged", func(t *testing.T) {
		job, err := store.Update("train_abc", "", map[string]any{"d": "4"})
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, models.JobStatusProcessing, job.Status)
		assert.Equal(t, "4", job.Data["d"])
	})

	t.Run("missing record returns nil without error", func(t *testing.T) {
		job, err := store.Update("never_created", models.JobStatusFailed, nil)
		assert.NoError(t, err)
		assert.Nil(t, job)
	})

	t.Run("invalid status is rejected", func(t *testing.T) {
		_, err := store.Update("train_abc", "paused", nil)
		assert.Error(t, err)
	})
}

func TestJobStoreList(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create("abc", models.JobTypeUpload, nil)
	require.NoError(t, err)
	_, err = store.Create("train_abc", models.JobTypeTraining, nil)
	require.NoError(t, err)
	_, err = store.Create("render_abc", models.JobTypeRendering, nil)
	require.NoError(t, err)
	_, err = store.Update("render_abc", models.JobStatusProcessing, nil)
	require.NoError(t, err)

	t.Run("no filters returns everything", func(t *testing.T) {
		jobs, err := store.List("", "")
		require.NoError(t, err)
		assert.Len(t, jobs, 3)
	})

	t.Run("filter by type", func(t *testing.T) {
		jobs, err := store.List(models.JobTypeTraining, "")
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "train_abc", jobs[0].JobID)
	})

	t.Run("filter by status", func(t *testing.T) {
		jobs, err := store.List("", models.JobStatusProcessing)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "render_abc", jobs[0].JobID)
	})

	t.Run("missing base dir is empty, not an error", func(t *testing.T) {
		empty := NewJobStore(filepath.Join(t.TempDir(), "missing"), lib.NewLogger(lib.LogLevelError))
		jobs, err := empty.List("", "")
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})
}

// TestJobStoreCleanup verifies only terminal records past the age cutoff are
// removed; active bookkeeping is never touched regardless of age.
func TestJobStoreCleanup(t *testing.T) {
	store := newTestStore(t)

	mustCreate := func(id string, status models.JobStatus) {
		_, err := store.Create(id, models.JobTypeTraining, nil)
		require.NoError(t, err)
		if status != models.JobStatusIdle {
			_, err = store.Update(id, models.JobStatusProcessing, nil)
			require.NoError(t, err)
		}
		if status.IsTerminal() {
			_, err = store.Update(id, status, nil)
			require.NoError(t, err)
		}
	}

	mustCreate("train_old-done", models.JobStatusComplete)
	mustCreate("train_old-failed", models.JobStatusFailed)
	mustCreate("train_old-active", models.JobStatusProcessing)
	mustCreate("train_old-idle", models.JobStatusIdle)
	mustCreate("train_fresh-done", models.JobStatusComplete)

	// Age the "old" records by backdating their state file mtime
	old := time.Now().Add(-48 * time.Hour)
	for _, id := range []string{"train_old-done", "train_old-failed", "train_old-active", "train_old-idle"} {
		require.NoError(t, os.Chtimes(store.statePath(id), old, old))
	}

	removed, err := store.Cleanup(24)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"train_old-done", "train_old-failed"}, removed)

	// Survivors: active and idle regardless of age, terminal but fresh
	for _, id := range []string{"train_old-active", "train_old-idle", "train_fresh-done"} {
		_, err := store.Get(id)
		assert.NoError(t, err, id)
	}
	_, err = store.Get("train_old-done")
	assert.Error(t, err)
}

func TestJobStoreSaveIsAtomic(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create("train_abc", models.JobTypeTraining, nil)
	require.NoError(t, err)
	_, err = store.Update("train_abc", models.JobStatusProcessing, nil)
	require.NoError(t, err)

	// No temp files may linger after a successful save
	entries, err := os.ReadDir(store.JobDir("train_abc"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}
