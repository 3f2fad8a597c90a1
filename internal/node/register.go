package node

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/nodal/internal/hook"
	nodeuid "github.com/roach88/nodal/internal/uid"
)

// RegisterSummary reports a bulk room hand-off.
type RegisterSummary struct {
	OK      bool     `json:"ok"`
	RoomUID string   `json:"room_uid"`
	Count   int      `json:"count"`
	Errors  []string `json:"errors,omitempty"`
}

// Register hands a batch of this class's nodes to a room. The room
// alias is resolved through the active configuration; a UUID-shaped
// alias is taken as the room uid directly. configID may be empty, in
// which case it is derived from the first composite uid.
func (h *Handle) Register(ctx *hook.Context, uids []any, roomAlias, configID string) RegisterSummary {
	cfg := configID
	if cfg == "" && len(uids) > 0 {
		if parsed, err := nodeuid.Parse(uids[0]); err == nil {
			cfg = parsed.Config
		}
	}
	if cfg == "" {
		cfg = configIDOf(ctx)
	}
	if cfg == "" {
		return RegisterSummary{Errors: []string{"config id is empty"}}
	}

	roomUID := resolveRoom(ctx, roomAlias)
	if roomUID == "" {
		return RegisterSummary{Errors: []string{fmt.Sprintf("room alias not found: %s", roomAlias)}}
	}

	var objects []map[string]any
	var errs []string
	for _, raw := range uids {
		n, err := h.Get(raw, cfg)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%v: %v", raw, err))
			continue
		}
		if n == nil {
			errs = append(errs, fmt.Sprintf("not found: %v", raw))
			continue
		}
		obj, err := n.ToDict()
		if err != nil {
			errs = append(errs, fmt.Sprintf("%v: %v", raw, err))
			continue
		}
		if _, ok := obj["_id"]; !ok {
			obj["_id"] = n.ID()
		}
		objects = append(objects, obj)
	}

	if len(objects) == 0 {
		if len(errs) == 0 {
			errs = []string{"no nodes"}
		}
		return RegisterSummary{RoomUID: roomUID, Errors: errs}
	}

	if err := h.env.Rooms.Deliver(cfg, h.class.Name, roomUID, objects); err != nil {
		errs = append(errs, err.Error())
		return RegisterSummary{RoomUID: roomUID, Errors: errs}
	}
	return RegisterSummary{OK: true, RoomUID: roomUID, Count: len(objects), Errors: errs}
}

// RegisterIn hands this single node to a room, queueing a user-visible
// note either way. Returns whether delivery was accepted.
func (n *Node) RegisterIn(ctx *hook.Context, roomAlias string) bool {
	roomUID := resolveRoom(ctx, roomAlias)
	if roomUID == "" {
		if ctx != nil {
			ctx.PushMessage(fmt.Sprintf("Room alias not found: %s", roomAlias), "warning")
		}
		return false
	}

	obj, err := n.ToDict()
	if err != nil {
		if ctx != nil {
			ctx.PushMessage(fmt.Sprintf("Register failed: %v", err), "error")
		}
		return false
	}
	if _, ok := obj["_id"]; !ok {
		obj["_id"] = n.ID()
	}

	if err := n.env.Rooms.Deliver(n.configID, n.class.Name, roomUID, []map[string]any{obj}); err != nil {
		if ctx != nil {
			ctx.PushMessage(fmt.Sprintf("Register failed: %v", err), "error")
		}
		return false
	}
	if ctx != nil {
		ctx.PushMessage(fmt.Sprintf("Registered in room: %s", roomUID), "success")
	}
	return true
}

// resolveRoom turns an alias or direct uid into a room uid. Without a
// configuration only UUID-shaped values resolve.
func resolveRoom(ctx *hook.Context, aliasOrUID string) string {
	if uuid.Validate(aliasOrUID) == nil {
		return aliasOrUID
	}
	if ctx != nil && ctx.Config != nil {
		return ctx.Config.ResolveRoom(aliasOrUID)
	}
	return ""
}
