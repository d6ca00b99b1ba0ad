package refupdates

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gerritevents/pkg/gerrit"
	"gerritevents/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{
		Driver:      "sqlite3",
		DSN:         filepath.Join(t.TempDir(), "refupdates.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func record(project, refName, oldRev, newRev string, at time.Time) storage.RefUpdateRecord {
	update := gerrit.NewRefUpdate()
	update.SetProject(project)
	update.SetRefName(refName)
	update.SetOldRev(oldRev)
	update.SetNewRev(newRev)
	rec := storage.RecordFromRefUpdate(update, nil)
	rec.CreatedAt = at
	return rec
}

func TestOpenValidatesConfig(t *testing.T) {
	_, err := Open(Config{DSN: "x"})
	assert.Error(t, err)

	_, err = Open(Config{Driver: "sqlite"})
	assert.Error(t, err)

	_, err = Open(Config{Driver: "oracle", DSN: "x"})
	assert.ErrorContains(t, err, "unsupported storage driver")
}

func TestNormalizeDriver(t *testing.T) {
	assert.Equal(t, "postgres", normalizeDriver(" PGX "))
	assert.Equal(t, "postgres", normalizeDriver("postgresql"))
	assert.Equal(t, "mysql", normalizeDriver("MySQL"))
	assert.Equal(t, "sqlite", normalizeDriver("sqlite3"))
	assert.Equal(t, "", normalizeDriver("mssql"))
}

func TestSaveAndLatestRefUpdate(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, store.SaveRefUpdate(ctx, record("demo", "master", "a", "b", base)))
	require.NoError(t, store.SaveRefUpdate(ctx, record("demo", "master", "b", "c", base.Add(time.Minute))))
	require.NoError(t, store.SaveRefUpdate(ctx, record("demo", "stable", "x", "y", base.Add(2*time.Minute))))

	latest, err := store.LatestRefUpdate(ctx, "demo", "master")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "b", latest.OldRev)
	assert.Equal(t, "c", latest.NewRev)
	assert.Equal(t, "refs/heads/master", latest.Ref)
	assert.NotZero(t, latest.ID)

	missing, err := store.LatestRefUpdate(ctx, "demo", "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListRefUpdates(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, store.SaveRefUpdate(ctx, record("demo", "master", "a", "b", base)))
	require.NoError(t, store.SaveRefUpdate(ctx, record("demo", "master", "b", "c", base.Add(time.Minute))))
	require.NoError(t, store.SaveRefUpdate(ctx, record("other", "master", "x", "y", base.Add(2*time.Minute))))

	all, err := store.ListRefUpdates(ctx, storage.RefUpdateFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "other", all[0].Project)

	demo, err := store.ListRefUpdates(ctx, storage.RefUpdateFilter{Project: "demo", RefName: "master"})
	require.NoError(t, err)
	require.Len(t, demo, 2)
	assert.Equal(t, "c", demo[0].NewRev)
	assert.Equal(t, "b", demo[1].NewRev)

	limited, err := store.ListRefUpdates(ctx, storage.RefUpdateFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	since := base.Add(90 * time.Second)
	recent, err := store.ListRefUpdates(ctx, storage.RefUpdateFilter{Since: &since})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "other", recent[0].Project)
}

func TestListRefUpdatesSinceWithOffset(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	stored := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveRefUpdate(ctx, record("demo", "master", "a", "b", stored)))

	before := time.Date(2026, 1, 1, 10, 0, 0, 0, time.FixedZone("EET", 2*60*60))
	rows, err := store.ListRefUpdates(ctx, storage.RefUpdateFilter{Since: &before})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	after := time.Date(2026, 1, 1, 8, 30, 0, 0, time.FixedZone("EST", -5*60*60))
	rows, err = store.ListRefUpdates(ctx, storage.RefUpdateFilter{Since: &after})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSaveRefUpdateStoresUTC(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	local := time.Date(2026, 1, 1, 11, 0, 0, 0, time.FixedZone("EET", 2*60*60))
	require.NoError(t, store.SaveRefUpdate(ctx, record("demo", "master", "a", "b", local)))

	since := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	rows, err := store.ListRefUpdates(ctx, storage.RefUpdateFilter{Since: &since})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].CreatedAt.Equal(local))
}

func TestSaveRefUpdateRequiresProject(t *testing.T) {
	store := openTestStore(t)
	err := store.SaveRefUpdate(context.Background(), storage.RecordFromRefUpdate(gerrit.NewRefUpdate(), nil))
	assert.Error(t, err)
}

func TestCustomTable(t *testing.T) {
	store, err := Open(Config{
		Driver:      "sqlite",
		DSN:         filepath.Join(t.TempDir(), "custom.db"),
		Table:       "audit_ref_updates",
		AutoMigrate: true,
	})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveRefUpdate(ctx, record("demo", "master", "a", "b", time.Now().UTC())))
	assert.True(t, store.db.Migrator().HasTable("audit_ref_updates"))
	assert.False(t, store.db.Migrator().HasTable(defaultTable))
}
