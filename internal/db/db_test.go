package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwidmer/nasync/pkg/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "nasync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNasConfigRoundTrip(t *testing.T) {
	db := testDB(t)

	cfg, err := db.NasConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg, "no config saved yet")

	want := &models.NasConfig{Hostname: "nas.local", SSHUser: "sync", SSHKeyPath: "/config/id_rsa", SSHPort: 22}
	require.NoError(t, db.SaveNasConfig(want))

	got, err := db.NasConfig()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Saving again replaces the singleton row.
	want.Hostname = "backup.local"
	want.SSHPort = 2222
	require.NoError(t, db.SaveNasConfig(want))
	got, err = db.NasConfig()
	require.NoError(t, err)
	assert.Equal(t, "backup.local", got.Hostname)
	assert.Equal(t, 2222, got.SSHPort)
}

func TestMappingCRUD(t *testing.T) {
	db := testDB(t)

	id, err := db.CreateMapping(&models.FolderMapping{
		Name:            "movies",
		SourcePath:      "/data/movies",
		DestinationPath: "/volume1/media/movies",
		Enabled:         true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	_, err = db.CreateMapping(&models.FolderMapping{Name: "bad"})
	assert.Error(t, err, "paths are required")

	m, err := db.Mapping(id)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "movies", m.Name)
	assert.True(t, m.Enabled)
	assert.Nil(t, m.LastSyncAt)

	m.Name = "films"
	m.Enabled = false
	m.DeleteSource = true
	require.NoError(t, db.UpdateMapping(m))

	m, err = db.Mapping(id)
	require.NoError(t, err)
	assert.Equal(t, "films", m.Name)
	assert.False(t, m.Enabled)
	assert.True(t, m.DeleteSource)

	missing, err := db.Mapping(99)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, db.DeleteMapping(id))
	m, err = db.Mapping(id)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestMappingsOrderedByID(t *testing.T) {
	db := testDB(t)

	// Names deliberately out of alphabetical order: id order wins.
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := db.CreateMapping(&models.FolderMapping{
			Name:            name,
			SourcePath:      "/data/" + name,
			DestinationPath: "/volume1/" + name,
			Enabled:         true,
		})
		require.NoError(t, err)
	}

	mappings, err := db.Mappings()
	require.NoError(t, err)
	require.Len(t, mappings, 3)
	assert.Equal(t, "zeta", mappings[0].Name)
	assert.Equal(t, "alpha", mappings[1].Name)
	assert.Equal(t, "mid", mappings[2].Name)
}

func TestUpdateMappingSyncStatus(t *testing.T) {
	db := testDB(t)
	id, err := db.CreateMapping(&models.FolderMapping{
		Name: "movies", SourcePath: "/a", DestinationPath: "/b", Enabled: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.UpdateMappingSyncStatus(id, models.StatusError, "rsync failed: no route to host"))

	m, err := db.Mapping(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, m.LastSyncStatus)
	assert.Equal(t, "rsync failed: no route to host", m.LastSyncMessage)
	assert.NotNil(t, m.LastSyncAt)
}

func TestSyncRunHistory(t *testing.T) {
	db := testDB(t)
	id, err := db.CreateMapping(&models.FolderMapping{
		Name: "movies", SourcePath: "/a", DestinationPath: "/b", Enabled: true,
	})
	require.NoError(t, err)

	started := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		run := &models.SyncRun{
			MappingID:        id,
			Status:           models.StatusSuccess,
			Message:          "Sync completed successfully",
			FilesTransferred: int64(i + 1),
			BytesTransferred: int64((i + 1) * 1000),
			DurationSeconds:  1.5,
			StartedAt:        started,
			CompletedAt:      started.Add(time.Second),
		}
		require.NoError(t, db.CreateSyncRun(run))
		assert.Equal(t, int64(i+1), run.ID)
	}

	runs, err := db.RecentSyncRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, int64(3), runs[0].FilesTransferred, "most recent first")
	assert.Equal(t, "movies", runs[0].MappingName)

	// Reading twice without a new session yields identical results.
	again, err := db.RecentSyncRuns(10)
	require.NoError(t, err)
	assert.Equal(t, runs, again)

	limited, err := db.RecentSyncRuns(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	byMapping, err := db.MappingSyncRuns(id, 10)
	require.NoError(t, err)
	assert.Len(t, byMapping, 3)

	none, err := db.MappingSyncRuns(999, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteMappingCascadesHistory(t *testing.T) {
	db := testDB(t)
	id, err := db.CreateMapping(&models.FolderMapping{
		Name: "movies", SourcePath: "/a", DestinationPath: "/b", Enabled: true,
	})
	require.NoError(t, err)

	started := time.Now()
	require.NoError(t, db.CreateSyncRun(&models.SyncRun{
		MappingID:   id,
		Status:      models.StatusSuccess,
		Message:     "Sync completed successfully",
		StartedAt:   started,
		CompletedAt: started.Add(time.Second),
	}))

	// Force the delete onto a fresh pool connection; foreign-key enforcement
	// is per-connection and must hold on all of them.
	db.SetMaxIdleConns(0)
	require.NoError(t, db.DeleteMapping(id))

	orphans, err := db.MappingSyncRuns(id, 10)
	require.NoError(t, err)
	assert.Empty(t, orphans, "deleting a mapping must delete its history")
}

func TestSchedulerConfigDefaults(t *testing.T) {
	db := testDB(t)

	cfg, err := db.SchedulerConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 15, cfg.IntervalMinutes)

	require.Error(t, db.SaveSchedulerConfig(&models.SchedulerConfig{Enabled: true, IntervalMinutes: 0}))

	require.NoError(t, db.SaveSchedulerConfig(&models.SchedulerConfig{Enabled: false, IntervalMinutes: 45}))
	cfg, err = db.SchedulerConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 45, cfg.IntervalMinutes)
}

func TestActionCRUD(t *testing.T) {
	db := testDB(t)

	id, err := db.CreateAction(&models.PostSyncAction{
		Name:    "plex",
		Type:    models.ActionRefresh,
		Enabled: true,
		Refresh: &models.RefreshConfig{URL: "http://plex:32400", Token: "tok"},
	})
	require.NoError(t, err)

	_, err = db.CreateAction(&models.PostSyncAction{
		Name: "broken",
		Type: models.ActionRefresh,
	})
	assert.Error(t, err, "validation happens at create time")

	acts, err := db.Actions()
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, models.ActionRefresh, acts[0].Type)
	require.NotNil(t, acts[0].Refresh)
	assert.Equal(t, "1", acts[0].Refresh.Section, "missing section defaults at validation")

	updated := acts[0]
	updated.Name = "plex-movies"
	updated.Enabled = false
	require.NoError(t, db.UpdateAction(&updated))

	acts, err = db.Actions()
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, "plex-movies", acts[0].Name)
	assert.False(t, acts[0].Enabled)

	require.NoError(t, db.DeleteAction(id))
	acts, err = db.Actions()
	require.NoError(t, err)
	assert.Empty(t, acts)
}
