package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotTestEnv(t *testing.T) (configPath, dataDir string) {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	return filepath.Join(tmp, "memsearch", "config.yaml"), t.TempDir()
}

func writeSQLiteConfig(t *testing.T, configPath, dbPath string) *Config {
	t.Helper()
	cfg := New()
	cfg.Storage.Type = "sqlite"
	cfg.Storage.Connection = dbPath
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o755))
	require.NoError(t, cfg.WriteYAML(configPath))
	return cfg
}

func TestTakeSnapshot_NothingToCapture(t *testing.T) {
	snapshotTestEnv(t)

	dir, err := TakeSnapshot(New())
	require.NoError(t, err)
	assert.Empty(t, dir)
}

func TestTakeSnapshot_CapturesConfigAndDatabase(t *testing.T) {
	configPath, dataDir := snapshotTestEnv(t)
	dbPath := filepath.Join(dataDir, "memories.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("sqlite bytes"), 0o644))
	cfg := writeSQLiteConfig(t, configPath, dbPath)

	dir, err := TakeSnapshot(cfg)
	require.NoError(t, err)
	require.NotEmpty(t, dir)

	captured, err := os.ReadFile(filepath.Join(dir, "memories.db"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite bytes", string(captured))
	assert.FileExists(t, filepath.Join(dir, "config.yaml"))
}

func TestTakeSnapshot_ConfigOnlyWhenBackendIsNotSQLite(t *testing.T) {
	configPath, _ := snapshotTestEnv(t)
	cfg := New()
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o755))
	require.NoError(t, cfg.WriteYAML(configPath))

	dir, err := TakeSnapshot(cfg)
	require.NoError(t, err)
	require.NotEmpty(t, dir)

	assert.FileExists(t, filepath.Join(dir, "config.yaml"))
	assert.NoFileExists(t, filepath.Join(dir, "memories.db"))
}

func TestRestoreSnapshot_RoundTripsConfigAndDatabase(t *testing.T) {
	configPath, dataDir := snapshotTestEnv(t)
	dbPath := filepath.Join(dataDir, "memories.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("v1"), 0o644))
	cfg := writeSQLiteConfig(t, configPath, dbPath)

	dir, err := TakeSnapshot(cfg)
	require.NoError(t, err)

	// Mutate both, then restore.
	require.NoError(t, os.WriteFile(dbPath, []byte("v2 corrupted"), 0o644))
	require.NoError(t, os.Remove(configPath))

	require.NoError(t, RestoreSnapshot(dir, cfg))

	restored, err := os.ReadFile(dbPath)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(restored))
	assert.FileExists(t, configPath)
}

func TestRestoreSnapshot_MissingSnapshotErrors(t *testing.T) {
	snapshotTestEnv(t)
	err := RestoreSnapshot(filepath.Join(SnapshotRoot(), "never-taken"), New())
	require.Error(t, err)
}

func TestRestoreSnapshot_DatabaseWithoutSQLiteBackendErrors(t *testing.T) {
	configPath, dataDir := snapshotTestEnv(t)
	dbPath := filepath.Join(dataDir, "memories.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("v1"), 0o644))
	cfg := writeSQLiteConfig(t, configPath, dbPath)

	dir, err := TakeSnapshot(cfg)
	require.NoError(t, err)

	memCfg := New() // storage.type defaults to "memory"
	err = RestoreSnapshot(dir, memCfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an on-disk sqlite store")
}

func TestListSnapshots_NewestFirstAndPruned(t *testing.T) {
	snapshotTestEnv(t)
	root := SnapshotRoot()
	names := []string{"20260101-000000", "20260201-000000", "20260301-000000", "20260401-000000"}
	for _, n := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(root, n), 0o755))
	}

	dirs, err := ListSnapshots()
	require.NoError(t, err)
	require.Len(t, dirs, 4)
	assert.Equal(t, filepath.Join(root, "20260401-000000"), dirs[0])

	pruneSnapshots()
	dirs, err = ListSnapshots()
	require.NoError(t, err)
	require.Len(t, dirs, MaxSnapshots)
	assert.NotContains(t, dirs, filepath.Join(root, "20260101-000000"))
}
