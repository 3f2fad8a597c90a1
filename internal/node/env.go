// Package node implements schemaless node records: tenant-scoped
// identity, per-node serialized mutation, parent/child hierarchy,
// lifecycle hooks around persistence, and embedded hash-chained
// ledgers under reserved data keys.
package node

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/nodal/internal/hook"
	"github.com/roach88/nodal/internal/room"
	"github.com/roach88/nodal/internal/store"
)

// Env owns the process-wide registries node operations run against:
// storage handles, registered classes, the hook dispatcher, the room
// sink, and the per-node lock table. Construct one per process (or per
// test) with NewEnv; nothing here is global.
type Env struct {
	Stores  *store.Registry
	Classes *ClassRegistry
	Hooks   *hook.Dispatcher
	Rooms   room.Sink

	// Clock and NewID are injection points for deterministic tests.
	Clock func() time.Time
	NewID func() string

	log *slog.Logger

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewEnv creates an environment over the given storage registry with
// production defaults: real clock, uuid ids, in-memory room sink.
func NewEnv(stores *store.Registry) *Env {
	return &Env{
		Stores:  stores,
		Classes: NewClassRegistry(),
		Hooks:   hook.NewDispatcher(nil),
		Rooms:   room.NewMemorySink(),
		Clock:   time.Now,
		NewID:   uuid.NewString,
		log:     slog.Default(),
		locks:   make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing mutation of the given internal
// id, creating it on first use.
func (e *Env) lockFor(internalID string) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	mu, ok := e.locks[internalID]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[internalID] = mu
	}
	return mu
}

// dropLock removes a deleted node's lock table entry.
func (e *Env) dropLock(internalID string) {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	delete(e.locks, internalID)
}

// Class is a registered node class: its logical name plus the handler
// methods the configuration event tables may reference.
type Class struct {
	Name     string
	Handlers hook.HandlerSet
}

// ClassRegistry maps logical class names to their descriptors.
// Populated at startup, read during uid delegation and hierarchy
// traversal.
type ClassRegistry struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

func NewClassRegistry() *ClassRegistry {
	return &ClassRegistry{classes: make(map[string]*Class)}
}

// Register adds (or replaces) a class descriptor.
func (r *ClassRegistry) Register(c *Class) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Handlers == nil {
		c.Handlers = hook.HandlerSet{}
	}
	r.classes[c.Name] = c
}

// Resolve looks up a class by name.
func (r *ClassRegistry) Resolve(name string) (*Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[name]
	return c, ok
}

// Names returns the registered class names, sorted.
func (r *ClassRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.classes))
	for name := range r.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Class returns the operation handle for a registered class.
func (e *Env) Class(name string) (*Handle, error) {
	c, ok := e.Classes.Resolve(name)
	if !ok {
		return nil, &NotFoundError{Kind: "class", Name: name}
	}
	return &Handle{env: e, class: c}, nil
}
