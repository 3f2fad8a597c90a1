package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Registry owns one Store per (class, configuration) pair. Handles are
// opened lazily and cached for the registry's lifetime.
//
// Open uses double-checked locking: the registry lock only guards
// creation of a per-key lock, and that per-key lock guards the actual
// open. Unrelated storages therefore never serialize behind one
// global lock during slow opens.
type Registry struct {
	dir string

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	stores map[string]*Store
}

// NewRegistry creates a registry rooted at dir. The directory is
// created on first open, not here.
func NewRegistry(dir string) *Registry {
	return &Registry{
		dir:    dir,
		locks:  make(map[string]*sync.Mutex),
		stores: make(map[string]*Store),
	}
}

// StorageKey derives the storage file key for a class under a
// configuration: "{class}_{config}", or the bare class name when no
// configuration is set.
func StorageKey(class, configID string) string {
	if configID == "" {
		return class
	}
	return class + "_" + configID
}

// GetOrOpen returns the storage for (class, configID), creating the
// backing database if it does not exist yet.
func (r *Registry) GetOrOpen(class, configID string) (*Store, error) {
	s, _, err := r.open(class, configID, true)
	return s, err
}

// Lookup returns the storage for (class, configID) only if the backing
// file already exists. A missing file is (nil, false, nil): absent,
// not an error. Used by read paths that must not create storage as a
// side effect.
func (r *Registry) Lookup(class, configID string) (*Store, bool, error) {
	return r.open(class, configID, false)
}

func (r *Registry) open(class, configID string, createMissing bool) (*Store, bool, error) {
	key := StorageKey(class, configID)

	r.mu.Lock()
	if s, ok := r.stores[key]; ok {
		r.mu.Unlock()
		return s, true, nil
	}
	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	// Re-check after acquiring the per-key lock.
	r.mu.Lock()
	if s, ok := r.stores[key]; ok {
		r.mu.Unlock()
		return s, true, nil
	}
	r.mu.Unlock()

	path := filepath.Join(r.dir, key+".sqlite")
	if !createMissing {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, false, nil
		}
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, false, fmt.Errorf("%w: create storage dir: %v", ErrStorageUnavailable, err)
	}

	s, err := Open(path)
	if err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	r.stores[key] = s
	r.mu.Unlock()

	slog.Debug("storage opened", "key", key, "path", path)
	return s, true, nil
}

// CloseAll closes every cached handle. The registry stays usable;
// subsequent opens re-create handles.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for key, s := range r.stores {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close storage %s: %w", key, err)
		}
		delete(r.stores, key)
	}
	return firstErr
}

// Dir returns the storage root directory.
func (r *Registry) Dir() string {
	return r.dir
}
