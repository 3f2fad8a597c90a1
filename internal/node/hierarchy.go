package node

import (
	"fmt"
	"strings"

	"github.com/roach88/nodal/internal/hook"
	"github.com/roach88/nodal/internal/uid"
)

// Children are stored under "_children". The current encoding is a map
// "Class$id" -> "cfg$Class$id"; a legacy list of {class, id} maps is
// still read and migrated to the map form on the first AddChild.

// AddChild creates (or opens) a child node, links it under this node,
// and back-references the parent in the child's data. The child is
// written first, then the parent, so neither lock is held inside the
// other.
func (n *Node) AddChild(ctx *hook.Context, className, childID string, childData map[string]any) (*Node, error) {
	childHandle, err := n.env.Class(className)
	if err != nil {
		return nil, fmt.Errorf("add child: %w", err)
	}

	child, err := childHandle.GetOrCreate(childID, n.configID)
	if err != nil {
		return nil, err
	}

	childState, err := child.Data()
	if err != nil {
		return nil, err
	}
	childState["_parent"] = n.UID()
	if len(childData) > 0 {
		if err := child.UpdateData(ctx, childData); err != nil {
			return nil, err
		}
	} else if err := child.Save(ctx); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	data, err := n.dataLocked()
	if err != nil {
		return nil, err
	}
	children := migrateChildren(n.configID, data["_children"])
	children[child.Class()+uid.Separator+child.ID()] = child.UID()
	data["_children"] = children

	if err := n.saveLocked(ctx); err != nil {
		return nil, err
	}
	return child, nil
}

// RemoveChild drops the child reference, in whichever encoding it is
// stored. The child node itself is not deleted. Map entries match by
// the "$<internal id>" suffix; legacy list entries match by their
// id/_id value.
func (n *Node) RemoveChild(ctx *hook.Context, childID any) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	data, err := n.dataLocked()
	if err != nil {
		return err
	}

	switch children := data["_children"].(type) {
	case map[string]any:
		internal := uid.ExtractInternalID(childID)
		for key := range children {
			if strings.HasSuffix(key, uid.Separator+internal) {
				delete(children, key)
			}
		}
	case map[string]string:
		internal := uid.ExtractInternalID(childID)
		for key := range children {
			if strings.HasSuffix(key, uid.Separator+internal) {
				delete(children, key)
			}
		}
	case []any:
		var kept []any
		raw := fmt.Sprint(childID)
		for _, entry := range children {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if fmt.Sprint(m["id"]) == raw || fmt.Sprint(m["_id"]) == raw {
				continue
			}
			kept = append(kept, entry)
		}
		data["_children"] = kept
	}

	return n.saveLocked(ctx)
}

// Children opens every child node, skipping entries whose class is not
// registered or whose record no longer exists.
func (n *Node) Children() ([]*Node, error) {
	n.mu.Lock()
	data, err := n.dataLocked()
	if err != nil {
		n.mu.Unlock()
		return nil, err
	}
	refs := childRefs(data["_children"])
	n.mu.Unlock()

	var children []*Node
	for _, ref := range refs {
		handle, err := n.env.Class(ref.class)
		if err != nil {
			continue
		}
		child, err := handle.Get(ref.id, n.configID)
		if err != nil || child == nil {
			continue
		}
		children = append(children, child)
	}
	return children, nil
}

type childRef struct {
	class string
	id    string
}

// childRefs extracts (class, id) pairs from either children encoding.
func childRefs(v any) []childRef {
	var refs []childRef

	appendKeyed := func(key, value string) {
		parts := strings.Split(key, uid.Separator)
		switch len(parts) {
		case 2:
			refs = append(refs, childRef{class: parts[0], id: parts[1]})
			return
		case 3:
			refs = append(refs, childRef{class: parts[1], id: parts[2]})
			return
		}
		valueParts := strings.Split(value, uid.Separator)
		if len(valueParts) >= 3 {
			refs = append(refs, childRef{
				class: valueParts[len(valueParts)-2],
				id:    valueParts[len(valueParts)-1],
			})
		}
	}

	switch children := v.(type) {
	case map[string]any:
		for key, value := range children {
			appendKeyed(key, fmt.Sprint(value))
		}
	case map[string]string:
		for key, value := range children {
			appendKeyed(key, value)
		}
	case []any:
		for _, entry := range children {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			class := stringOr(m["class"], stringOr(m["_class"], ""))
			id := stringOr(m["id"], stringOr(m["_id"], ""))
			if class != "" && id != "" {
				refs = append(refs, childRef{class: class, id: uid.ExtractInternalID(id)})
			}
		}
	}
	return refs
}

// migrateChildren converts the legacy list encoding into the map
// encoding; map-encoded input is returned as a map[string]any view.
func migrateChildren(configID string, v any) map[string]any {
	switch children := v.(type) {
	case map[string]any:
		return children
	case map[string]string:
		out := make(map[string]any, len(children))
		for k, val := range children {
			out[k] = val
		}
		return out
	case []any:
		out := map[string]any{}
		for _, entry := range children {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			class := stringOr(m["class"], stringOr(m["_class"], ""))
			id := stringOr(m["id"], stringOr(m["_id"], ""))
			if class == "" || id == "" {
				continue
			}
			out[class+uid.Separator+id] = uid.Normalize(configID, class, id)
		}
		return out
	default:
		return map[string]any{}
	}
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}
