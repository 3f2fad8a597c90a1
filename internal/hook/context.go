package hook

import (
	"github.com/roach88/nodal/internal/config"
)

// Context is the per-request runtime scope: active configuration,
// outbound message queue, hook guard sets, and dataset lookup caches.
// One Context per logical request; never shared across concurrent
// requests, so no locking.
type Context struct {
	ConfigID string
	Config   *config.Config

	messages    []Message
	beforeGuard map[string]struct{}
	afterGuard  map[string]struct{}

	itemCache map[string]map[string]any
	viewCache map[string]string
}

// NewContext establishes a request scope for the given configuration.
// cfg may be nil; hooks then never fire.
func NewContext(cfg *config.Config) *Context {
	ctx := &Context{
		Config:      cfg,
		beforeGuard: make(map[string]struct{}),
		afterGuard:  make(map[string]struct{}),
		itemCache:   make(map[string]map[string]any),
		viewCache:   make(map[string]string),
	}
	if cfg != nil {
		ctx.ConfigID = cfg.UID
	}
	return ctx
}

// PushMessage queues a user-visible note. Notes are attached to the
// rejection when a handler vetoes.
func (c *Context) PushMessage(text, level string) {
	if level == "" {
		level = "info"
	}
	c.messages = append(c.messages, Message{Text: text, Level: level})
}

// Messages returns a copy of the queued notes.
func (c *Context) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// drainMessages returns the queued notes and clears the queue. Notes
// are one-shot: attached to a rejection, then gone.
func (c *Context) drainMessages() []Message {
	out := c.messages
	c.messages = nil
	return out
}

// markBefore records the before-hook guard key, reporting whether this
// is its first occurrence in the request.
func (c *Context) markBefore(key string) bool {
	if _, seen := c.beforeGuard[key]; seen {
		return false
	}
	c.beforeGuard[key] = struct{}{}
	return true
}

func (c *Context) markAfter(key string) bool {
	if _, seen := c.afterGuard[key]; seen {
		return false
	}
	c.afterGuard[key] = struct{}{}
	return true
}

// DatasetItem looks up a dataset item, cached for the request.
func (c *Context) DatasetItem(name, itemID string) (map[string]any, bool) {
	if c.Config == nil {
		return nil, false
	}
	key := name + "\x00" + itemID
	if item, ok := c.itemCache[key]; ok {
		return item, true
	}
	ds, ok := c.Config.Dataset(name)
	if !ok {
		return nil, false
	}
	item, ok := ds.Get(itemID)
	if !ok {
		return nil, false
	}
	c.itemCache[key] = item
	return item, true
}

// DatasetView renders a dataset item's display view, cached for the
// request.
func (c *Context) DatasetView(name, itemID string) (string, bool) {
	if c.Config == nil {
		return "", false
	}
	key := name + "\x00" + itemID
	if view, ok := c.viewCache[key]; ok {
		return view, true
	}
	ds, ok := c.Config.Dataset(name)
	if !ok {
		return "", false
	}
	view, ok := ds.ViewOf(itemID)
	if !ok {
		return "", false
	}
	c.viewCache[key] = view
	return view, true
}
