package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/nodal/internal/hook"
	"github.com/roach88/nodal/internal/store"
	"github.com/roach88/nodal/internal/uid"
)

// SkipAcceptKey is the node-local escape hatch: when present in the
// pending data, the before-persist hook is skipped for exactly that
// write and the key itself is removed.
const SkipAcceptKey = "_skip_accept_handler"

// Handle runs class-level operations: lookups, creation, bulk room
// registration. Obtain one via Env.Class.
type Handle struct {
	env   *Env
	class *Class
}

// Name returns the handled class name.
func (h *Handle) Name() string {
	return h.class.Name
}

// Node is an instance handle over one stored record. All mutation is
// serialized by a per-internal-id mutex shared by every handle of the
// same node.
type Node struct {
	env      *Env
	class    *Class
	id       string
	configID string
	store    *store.Store
	mu       *sync.Mutex

	// cache holds the pending state during a logical operation so
	// hook handlers observe (and may edit) the data about to persist.
	cache map[string]any
}

// ID returns the internal storage id.
func (n *Node) ID() string { return n.id }

// Class returns the node's class name.
func (n *Node) Class() string { return n.class.Name }

// ConfigID returns the owning configuration uid.
func (n *Node) ConfigID() string { return n.configID }

// UID returns the canonical "config$Class$id" identifier.
func (n *Node) UID() string {
	return uid.Normalize(n.configID, n.class.Name, n.id)
}

func (n *Node) guardKey() string {
	return n.configID + ":" + n.class.Name + ":" + n.id
}

// GetOrCreate opens the node, creating a minimal record if it does not
// exist yet. Creation through this path fires no hooks; Create does.
// An empty id mints a fresh one.
func (h *Handle) GetOrCreate(id, configID string) (*Node, error) {
	internal := id
	if internal == "" {
		internal = h.env.NewID()
	} else if internal = uid.ExtractInternalID(id); internal == "" {
		return nil, &uid.InvalidError{Value: id}
	}

	st, err := h.env.Stores.GetOrOpen(h.class.Name, configID)
	if err != nil {
		return nil, err
	}

	n := &Node{
		env:      h.env,
		class:    h.class,
		id:       internal,
		configID: configID,
		store:    st,
		mu:       h.env.lockFor(internal),
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	bg := context.Background()
	rec, ok, err := st.Get(bg, internal)
	if err != nil {
		return nil, err
	}
	now := h.env.Clock().UTC()
	if !ok {
		rec = &store.Record{
			ID:       internal,
			Class:    h.class.Name,
			ConfigID: configID,
			Data: map[string]any{
				"_id":    n.UID(),
				"_class": h.class.Name,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
	} else {
		n.stamp(rec.Data)
		rec.UpdatedAt = now
	}
	if err := st.Put(bg, rec); err != nil {
		return nil, err
	}
	return n, nil
}

// Get opens an existing node by any accepted uid encoding. A uid
// naming a different registered class delegates there. Legacy records
// keyed by a raw composite string, or by the singleton shorthand, are
// still found. Absent nodes are (nil, nil): absence is not an error.
func (h *Handle) Get(idOrUID any, configID string) (*Node, error) {
	parsed, err := uid.Parse(idOrUID)
	if err != nil {
		return nil, err
	}

	effectiveConfig := configID
	if effectiveConfig == "" {
		effectiveConfig = parsed.Config
	}

	// Cross-class delegation: "cfg$Warehouse$7" asked of the wrong
	// handle still lands on the Warehouse store.
	if parsed.Class != "" && parsed.Class != h.class.Name {
		if _, ok := h.env.Classes.Resolve(parsed.Class); ok {
			other, err := h.env.Class(parsed.Class)
			if err != nil {
				return nil, err
			}
			return other.Get(parsed.ID, effectiveConfig)
		}
	}

	st, ok, err := h.env.Stores.Lookup(h.class.Name, effectiveConfig)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	bg := context.Background()
	for _, candidate := range h.lookupCandidates(idOrUID, parsed, effectiveConfig) {
		found, err := st.Has(bg, candidate)
		if err != nil {
			return nil, err
		}
		if found {
			return &Node{
				env:      h.env,
				class:    h.class,
				id:       candidate,
				configID: effectiveConfig,
				store:    st,
				mu:       h.env.lockFor(candidate),
			}, nil
		}
	}
	return nil, nil
}

// lookupCandidates lists the storage keys a node may live under, in
// preference order: the internal id, the raw composite string (legacy
// stores used it verbatim), and the singleton shorthands.
func (h *Handle) lookupCandidates(idOrUID any, parsed uid.UID, configID string) []string {
	var candidates []string
	seen := map[string]bool{}
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			candidates = append(candidates, c)
		}
	}

	add(parsed.ID)
	if raw, ok := idOrUID.(string); ok {
		add(raw)
	}
	if configID != "" && parsed.Class != "" {
		add(configID + uid.Separator + parsed.Class + uid.Separator + uid.Singleton)
		add(configID + uid.Separator + parsed.Class)
	}
	return candidates
}

// Create builds a node and routes its initial data through the
// persistence hooks. Protected identity keys in initial are ignored.
// On veto the minimal record still exists but carries none of the
// initial data.
func (h *Handle) Create(ctx *hook.Context, id string, initial map[string]any) (*Node, error) {
	n, err := h.GetOrCreate(id, configIDOf(ctx))
	if err != nil {
		return nil, err
	}
	if len(initial) == 0 {
		return n, nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	rec, ok, err := n.loadRecord()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NotFoundError{Kind: "node", Name: n.UID()}
	}

	saved := copyMap(rec.Data)
	pending := copyMap(saved)
	for key, value := range initial {
		if key == "_id" || key == "_class" {
			continue
		}
		pending[key] = value
	}
	n.stamp(pending)
	n.cache = pending

	if err := n.persistLocked(ctx, rec, copyMap(initial), saved, true); err != nil {
		return nil, err
	}
	n.cache = nil
	return n, nil
}

// GetAll opens every node stored for this class under the
// configuration. A store that was never created yields an empty map.
func (h *Handle) GetAll(configID string) (map[string]*Node, error) {
	st, ok, err := h.env.Stores.Lookup(h.class.Name, configID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]*Node{}, nil
	}

	ids, err := st.Keys(context.Background())
	if err != nil {
		return nil, err
	}

	nodes := make(map[string]*Node, len(ids))
	for _, id := range ids {
		nodes[id] = &Node{
			env:      h.env,
			class:    h.class,
			id:       id,
			configID: configID,
			store:    st,
			mu:       h.env.lockFor(id),
		}
	}
	return nodes, nil
}

// Find returns the nodes matching the predicate.
func (h *Handle) Find(configID string, match func(*Node) bool) (map[string]*Node, error) {
	all, err := h.GetAll(configID)
	if err != nil {
		return nil, err
	}
	found := map[string]*Node{}
	for id, n := range all {
		if match(n) {
			found[id] = n
		}
	}
	return found, nil
}

// Data returns the pending state, loading it from storage on first
// access. The returned map is the live working copy: edits to it are
// what Save persists.
func (n *Node) Data() (map[string]any, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dataLocked()
}

func (n *Node) dataLocked() (map[string]any, error) {
	if n.cache != nil {
		return n.cache, nil
	}
	rec, ok, err := n.loadRecord()
	if err != nil {
		return nil, err
	}
	if !ok {
		n.cache = map[string]any{}
		return n.cache, nil
	}
	data := copyMap(rec.Data)
	n.stamp(data)
	n.cache = data
	return n.cache, nil
}

// GetData reads the persisted state fresh from storage, identity keys
// re-stamped. An absent record yields an empty map.
func (n *Node) GetData() (map[string]any, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	rec, ok, err := n.loadRecord()
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]any{}, nil
	}
	data := copyMap(rec.Data)
	n.stamp(data)
	return data, nil
}

// SetData writes one key through the persistence hooks.
func (n *Node) SetData(ctx *hook.Context, key string, value any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.applyLocked(ctx, map[string]any{key: value}, false)
}

// UpdateData merges a change set through the persistence hooks. The
// protected identity keys "_id" and "_class" are never overwritten.
func (n *Node) UpdateData(ctx *hook.Context, changes map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.applyLocked(ctx, changes, true)
}

func (n *Node) applyLocked(ctx *hook.Context, changes map[string]any, filterProtected bool) error {
	rec, ok, err := n.loadRecord()
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{Kind: "node", Name: n.UID()}
	}

	saved := copyMap(rec.Data)
	base := saved
	if n.cache != nil {
		base = n.cache
	}
	pending := copyMap(base)
	for key, value := range changes {
		if filterProtected && (key == "_id" || key == "_class") {
			continue
		}
		pending[key] = value
	}
	n.stamp(pending)
	n.cache = pending

	return n.persistLocked(ctx, rec, copyMap(changes), saved, true)
}

// SetAll replaces the whole payload. The before hook still runs (and
// may veto or edit), but no after hook fires: wholesale replacement is
// the restore path, not a business event.
func (n *Node) SetAll(ctx *hook.Context, data map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	rec, ok, err := n.loadRecord()
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{Kind: "node", Name: n.UID()}
	}

	saved := copyMap(rec.Data)
	n.cache = copyMap(data)
	return n.persistLocked(ctx, rec, nil, saved, false)
}

// Save persists the pending state through the hooks.
func (n *Node) Save(ctx *hook.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.saveLocked(ctx)
}

func (n *Node) saveLocked(ctx *hook.Context) error {
	rec, ok, err := n.loadRecord()
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{Kind: "node", Name: n.UID()}
	}

	saved := copyMap(rec.Data)
	if n.cache == nil {
		n.cache = copyMap(saved)
	}
	n.stamp(n.cache)
	return n.persistLocked(ctx, rec, nil, saved, true)
}

// persistLocked is the single write path: before hook (unless the
// skip escape hatch is armed), durable write of whatever the handlers
// left in the pending state, then the after hook. On veto the pending
// cache is dropped so the next read reflects the persisted state.
func (n *Node) persistLocked(ctx *hook.Context, rec *store.Record, input, saved map[string]any, fireAfter bool) error {
	pending := n.cache
	if pending == nil {
		pending = map[string]any{}
		n.cache = pending
	}

	if _, skip := pending[SkipAcceptKey]; skip {
		delete(pending, SkipAcceptKey)
	} else {
		err := n.env.Hooks.FireBefore(ctx, n.class.Handlers, n.class.Name, n.guardKey(), input, pending, saved)
		if err != nil {
			n.cache = nil
			return err
		}
	}

	rec.Data = copyMap(pending)
	rec.UpdatedAt = n.env.Clock().UTC()
	if err := n.store.Put(context.Background(), rec); err != nil {
		return err
	}

	if fireAfter {
		n.env.Hooks.FireAfter(ctx, n.class.Handlers, n.class.Name, n.guardKey(), pending, saved)
	}
	return nil
}

// Delete removes the node and all its descendants, children first.
// The parent's child reference is detached best-effort: a failure
// there is logged, never returned.
func (n *Node) Delete(ctx *hook.Context) error {
	children, err := n.Children()
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := child.Delete(ctx); err != nil {
			return err
		}
	}

	n.mu.Lock()
	var parentUID string
	rec, ok, err := n.loadRecord()
	if err != nil {
		n.mu.Unlock()
		return err
	}
	if ok {
		if p, ok := rec.Data["_parent"].(string); ok {
			parentUID = p
		}
		if err := n.store.Delete(context.Background(), n.id); err != nil {
			n.mu.Unlock()
			return err
		}
	}
	n.cache = nil
	n.mu.Unlock()
	n.env.dropLock(n.id)

	if parentUID != "" {
		n.detachFromParent(ctx, parentUID)
	}
	return nil
}

func (n *Node) detachFromParent(ctx *hook.Context, parentUID string) {
	parsed, err := uid.Parse(parentUID)
	if err != nil || parsed.Class == "" {
		n.env.log.Warn("parent detach skipped: unparseable parent uid",
			"node", n.UID(), "parent", parentUID)
		return
	}

	handle, err := n.env.Class(parsed.Class)
	if err != nil {
		n.env.log.Warn("parent detach skipped: class not registered",
			"node", n.UID(), "parent", parentUID)
		return
	}

	cfg := parsed.Config
	if cfg == "" {
		cfg = n.configID
	}
	parent, err := handle.Get(parentUID, cfg)
	if err != nil || parent == nil {
		n.env.log.Warn("parent detach skipped: parent not found",
			"node", n.UID(), "parent", parentUID, "err", err)
		return
	}
	if err := parent.RemoveChild(ctx, n.id); err != nil {
		n.env.log.Warn("parent detach failed",
			"node", n.UID(), "parent", parentUID, "err", err)
	}
}

// ToDict renders the full stored record: metadata columns plus the
// payload with identity keys re-stamped.
func (n *Node) ToDict() (map[string]any, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	rec, ok, err := n.loadRecord()
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]any{}, nil
	}

	data := copyMap(rec.Data)
	n.stamp(data)
	return map[string]any{
		"_id":         rec.ID,
		"_class":      rec.Class,
		"_config_uid": rec.ConfigID,
		"_data":       data,
		"_created_at": rec.CreatedAt.Format(time.RFC3339Nano),
		"_updated_at": rec.UpdatedAt.Format(time.RFC3339Nano),
	}, nil
}

func (n *Node) loadRecord() (*store.Record, bool, error) {
	rec, ok, err := n.store.Get(context.Background(), n.id)
	if err != nil {
		return nil, false, fmt.Errorf("load node %s: %w", n.UID(), err)
	}
	return rec, ok, nil
}

// stamp enforces the identity keys on a payload: normalized composite
// "_id" and the class name.
func (n *Node) stamp(data map[string]any) {
	rawID := data["_id"]
	if rawID == nil || rawID == "" {
		rawID = n.id
	}
	data["_id"] = uid.Normalize(n.configID, n.class.Name, rawID)
	data["_class"] = n.class.Name
}

func configIDOf(ctx *hook.Context) string {
	if ctx == nil {
		return ""
	}
	return ctx.ConfigID
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
