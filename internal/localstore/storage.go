// Package localstore implements the device-local fallback tier: durable,
// per-device storage of JSON-serialized collections keyed by a fixed
// namespace per domain type. It is the storage of last resort, so every
// operation degrades to an empty result or a no-op instead of failing the
// caller; a false or empty return means "best-effort degraded", never fatal.
package localstore

import (
	"os"
	"path/filepath"
	"regexp"
)

// DeviceStorage is the synchronous key-value contract the store is built on.
// Implementations must tolerate concurrent use from a single process; the
// whole-collection read/rewrite cycle above them assumes a single writer at a
// time, as the original per-browser-tab storage did.
type DeviceStorage interface {
	// GetItem returns the stored value for key and whether it was present.
	GetItem(key string) (string, bool)
	// SetItem stores value under key, replacing any previous value.
	SetItem(key, value string) error
	// RemoveItem deletes key. Removing an absent key is not an error.
	RemoveItem(key string) error
}

// keyFileRE restricts storage keys to names safe to use as file names.
var keyFileRE = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// DirStorage persists each key as a small JSON file in a root directory.
type DirStorage struct {
	root string
}

// NewDirStorage creates the root directory if needed and returns a storage
// over it. Directory creation failure is reported once here; subsequent
// operations degrade silently per the package contract.
func NewDirStorage(root string) (*DirStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &DirStorage{root: root}, nil
}

func (d *DirStorage) path(key string) string {
	return filepath.Join(d.root, keyFileRE.ReplaceAllString(key, "_")+".json")
}

// GetItem reads the file backing key. Missing or unreadable files report
// absence.
func (d *DirStorage) GetItem(key string) (string, bool) {
	b, err := os.ReadFile(d.path(key))
	if err != nil {
		return "", false
	}
	return string(b), true
}

// SetItem writes value to a temp file and renames it into place so a crashed
// write never leaves a truncated collection behind.
func (d *DirStorage) SetItem(key, value string) error {
	p := d.path(key)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// RemoveItem deletes the file backing key.
func (d *DirStorage) RemoveItem(key string) error {
	err := os.Remove(d.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// MemStorage is an in-memory DeviceStorage used by tests and as a harmless
// default when no directory is available.
type MemStorage struct {
	items map[string]string

	// FailWrites makes SetItem/RemoveItem fail, simulating exhausted quota.
	FailWrites bool
}

// NewMemStorage returns an empty in-memory storage.
func NewMemStorage() *MemStorage {
	return &MemStorage{items: make(map[string]string)}
}

// GetItem returns the stored value for key.
func (m *MemStorage) GetItem(key string) (string, bool) {
	v, ok := m.items[key]
	return v, ok
}

// SetItem stores value under key.
func (m *MemStorage) SetItem(key, value string) error {
	if m.FailWrites {
		return os.ErrPermission
	}
	m.items[key] = value
	return nil
}

// RemoveItem deletes key.
func (m *MemStorage) RemoveItem(key string) error {
	if m.FailWrites {
		return os.ErrPermission
	}
	delete(m.items, key)
	return nil
}
