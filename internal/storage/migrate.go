package storage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// versionKey tracks the highest applied migration version.
	versionKey = "__storage_version"

	// backupPrefix names full-store snapshot keys.
	backupPrefix = "backup_"
)

// Migration transforms the full record set from one schema version to the
// next. Up receives the current data (reserved engine keys excluded) and
// returns the replacement set.
type Migration struct {
	Version int
	Up      func(data map[string]any) (map[string]any, error)
}

// Migrator applies ordered schema migrations over a whole store and
// captures full-store backup snapshots.
type Migrator struct {
	store Store
	now   func() time.Time
}

// NewMigrator creates a migration engine over store.
func NewMigrator(store Store) *Migrator {
	return &Migrator{store: store, now: time.Now}
}

// Version returns the highest applied migration version, 0 for a fresh
// store.
func (m *Migrator) Version() int {
	raw, ok := m.store.Get(versionKey)
	if !ok {
		return 0
	}
	v, ok := raw.(float64)
	if !ok {
		return 0
	}
	return int(v)
}

// Migrate applies every supplied migration with a version greater than the
// stored one, in strictly ascending order, each exactly once. Each step
// exports the store, runs Up on the data, clears, re-imports, and persists
// the new version. A failing Up aborts the run, leaving the store in the
// state after the last completed migration.
//
// Backup snapshots and the version marker are never passed through Up;
// they are carried across each step untouched.
func (m *Migrator) Migrate(migrations []Migration) error {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	current := m.Version()
	for _, migration := range sorted {
		if migration.Version <= current {
			continue
		}
		if migration.Up == nil {
			return fmt.Errorf("migration %d has no up function", migration.Version)
		}
		full, err := m.store.Export()
		if err != nil {
			return fmt.Errorf("migration %d: failed to export store: %w", migration.Version, err)
		}
		data, reserved := partitionReserved(full)
		next, err := migration.Up(data)
		if err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if err := m.store.Clear(); err != nil {
			return fmt.Errorf("migration %d: failed to clear store: %w", migration.Version, err)
		}
		if err := m.store.Import(next); err != nil {
			return fmt.Errorf("migration %d: failed to import transformed data: %w", migration.Version, err)
		}
		if err := m.store.Import(reserved); err != nil {
			return fmt.Errorf("migration %d: failed to restore snapshots: %w", migration.Version, err)
		}
		if err := m.store.Set(versionKey, migration.Version); err != nil {
			return fmt.Errorf("migration %d: failed to persist version: %w", migration.Version, err)
		}
		current = migration.Version
	}
	return nil
}

// Backup captures a full-store snapshot under a fresh "backup_<timestamp>"
// key and returns that key. Prior snapshots and the version marker are not
// part of the captured data, so backups do not compound.
func (m *Migrator) Backup() (string, error) {
	full, err := m.store.Export()
	if err != nil {
		return "", fmt.Errorf("failed to export store for backup: %w", err)
	}
	data, _ := partitionReserved(full)
	timestamp := m.now().UnixMilli()
	key := backupPrefix + strconv.FormatInt(timestamp, 10)
	record := map[string]any{
		"timestamp": timestamp,
		"version":   m.Version(),
		"data":      data,
	}
	if err := m.store.Set(key, record); err != nil {
		return "", fmt.Errorf("failed to persist backup: %w", err)
	}
	return key, nil
}

// Restore replaces the store's contents with the snapshot under backupKey,
// re-importing its data verbatim and restoring the recorded version. It
// returns false without touching the store when the snapshot is absent or
// unreadable.
func (m *Migrator) Restore(backupKey string) (bool, error) {
	raw, ok := m.store.Get(backupKey)
	if !ok {
		return false, nil
	}
	record, ok := raw.(map[string]any)
	if !ok {
		return false, nil
	}
	data, ok := record["data"].(map[string]any)
	if !ok {
		return false, nil
	}
	if err := m.store.Clear(); err != nil {
		return false, fmt.Errorf("failed to clear store for restore: %w", err)
	}
	if err := m.store.Import(data); err != nil {
		return false, fmt.Errorf("failed to import backup data: %w", err)
	}
	if version, ok := record["version"].(float64); ok {
		if err := m.store.Set(versionKey, int(version)); err != nil {
			return false, fmt.Errorf("failed to restore version: %w", err)
		}
	}
	return true, nil
}

// ListBackups returns the snapshot keys currently in the store, sorted so
// the most recent is last.
func (m *Migrator) ListBackups() ([]string, error) {
	keys, err := m.store.ListKeys()
	if err != nil {
		return nil, err
	}
	backups := []string{}
	for _, key := range keys {
		if strings.HasPrefix(key, backupPrefix) {
			backups = append(backups, key)
		}
	}
	sort.Strings(backups)
	return backups, nil
}

// partitionReserved splits a full export into user data and the engine's
// reserved keys (snapshots and the version marker).
func partitionReserved(full map[string]any) (data, reserved map[string]any) {
	data = make(map[string]any, len(full))
	reserved = make(map[string]any)
	for key, value := range full {
		if key == versionKey || strings.HasPrefix(key, backupPrefix) {
			reserved[key] = value
			continue
		}
		data[key] = value
	}
	return data, reserved
}
