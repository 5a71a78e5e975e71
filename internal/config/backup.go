package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// MaxSnapshots is how many snapshots are kept; older ones are pruned
// after each successful TakeSnapshot.
const MaxSnapshots = 3

// snapshotConfigName and snapshotDBName are the fixed file names inside a
// snapshot directory, so Restore never has to guess what it is looking at.
const (
	snapshotConfigName = "config.yaml"
	snapshotDBName     = "memories.db"
)

// SnapshotRoot returns the directory snapshots live under.
func SnapshotRoot() string {
	return filepath.Join(GetUserConfigDir(), "snapshots")
}

// TakeSnapshot copies the pieces needed to restore a memsearchd install
// into a timestamped directory: the user config file (when present) and,
// when cfg uses the sqlite backend with an on-disk database, the database
// file. Returns the snapshot directory, or empty string with nil error
// when there is nothing to capture.
func TakeSnapshot(cfg *Config) (string, error) {
	dbPath := snapshotDBSource(cfg)
	if !UserConfigExists() && dbPath == "" {
		return "", nil
	}

	dir, err := newSnapshotDir()
	if err != nil {
		return "", err
	}

	if UserConfigExists() {
		if err := copyFile(GetUserConfigPath(), filepath.Join(dir, snapshotConfigName)); err != nil {
			return "", fmt.Errorf("snapshot config: %w", err)
		}
	}
	if dbPath != "" {
		if err := copyFile(dbPath, filepath.Join(dir, snapshotDBName)); err != nil {
			return "", fmt.Errorf("snapshot database: %w", err)
		}
	}

	pruneSnapshots()
	return dir, nil
}

// newSnapshotDir creates a fresh timestamped snapshot directory. Mkdir
// (not MkdirAll) detects collisions, so two snapshots in the same second
// get distinct "-2", "-3", ... suffixes instead of sharing a directory.
func newSnapshotDir() (string, error) {
	if err := os.MkdirAll(SnapshotRoot(), 0o755); err != nil {
		return "", fmt.Errorf("create snapshot root: %w", err)
	}
	stamp := time.Now().UTC().Format("20060102-150405")
	dir := filepath.Join(SnapshotRoot(), stamp)
	for n := 2; ; n++ {
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("create snapshot directory: %w", err)
		}
		dir = filepath.Join(SnapshotRoot(), fmt.Sprintf("%s-%d", stamp, n))
	}
}

// snapshotDBSource returns the database file a snapshot should capture,
// or empty when the backend keeps no local file worth copying.
func snapshotDBSource(cfg *Config) string {
	if cfg == nil || cfg.Storage.Type != "sqlite" || cfg.Storage.Connection == "" {
		return ""
	}
	if _, err := os.Stat(cfg.Storage.Connection); err != nil {
		return ""
	}
	return cfg.Storage.Connection
}

// ListSnapshots returns snapshot directories, newest first.
func ListSnapshots() ([]string, error) {
	entries, err := os.ReadDir(SnapshotRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(SnapshotRoot(), e.Name()))
		}
	}
	// Timestamped names sort lexically; newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	return dirs, nil
}

// RestoreSnapshot copies a snapshot's contents back into place: the config
// file to the user config path, the database file to cfg's configured
// sqlite path. The current state is snapshotted first so a bad restore can
// itself be undone.
func RestoreSnapshot(dir string, cfg *Config) error {
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("snapshot not found: %w", err)
	}

	if _, err := TakeSnapshot(cfg); err != nil {
		return fmt.Errorf("snapshot current state before restore: %w", err)
	}

	restored := false
	if src := filepath.Join(dir, snapshotConfigName); fileExists(src) {
		if err := os.MkdirAll(GetUserConfigDir(), 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		if err := copyFile(src, GetUserConfigPath()); err != nil {
			return fmt.Errorf("restore config: %w", err)
		}
		restored = true
	}
	if src := filepath.Join(dir, snapshotDBName); fileExists(src) {
		dst := ""
		if cfg != nil && cfg.Storage.Type == "sqlite" {
			dst = cfg.Storage.Connection
		}
		if dst == "" {
			return fmt.Errorf("snapshot contains a database but the configured backend is not an on-disk sqlite store")
		}
		if d := filepath.Dir(dst); d != "." {
			if err := os.MkdirAll(d, 0o755); err != nil {
				return fmt.Errorf("create data directory: %w", err)
			}
		}
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("restore database: %w", err)
		}
		restored = true
	}
	if !restored {
		return fmt.Errorf("snapshot %s is empty", dir)
	}
	return nil
}

// pruneSnapshots removes snapshots beyond MaxSnapshots, keeping the
// newest. Best effort: a snapshot that cannot be removed is left behind.
func pruneSnapshots() {
	dirs, err := ListSnapshots()
	if err != nil || len(dirs) <= MaxSnapshots {
		return
	}
	for _, dir := range dirs[MaxSnapshots:] {
		_ = os.RemoveAll(dir)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
