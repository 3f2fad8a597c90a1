// Package hook runs configuration-driven lifecycle handlers around
// node persistence. Before-persist handlers may veto a write;
// after-persist handlers observe it. Both are guarded to fire at most
// once per (config, class, id) within one request scope.
package hook

import (
	"fmt"
	"log/slog"
	"strings"
)

// Configuration event table names.
const (
	EventBeforePersist = "onAcceptServer"
	EventAfterPersist  = "onAfterAcceptServer"
)

// Handler is one lifecycle action. pending is the full state about to
// be persisted; handlers may modify it in place and the modified state
// is what gets written. saved is a snapshot of the previously
// persisted state. Returning ok=false vetoes the write; out becomes
// the rejection payload.
type Handler func(ctx *Context, pending, saved map[string]any) (ok bool, out map[string]any)

// HandlerSet maps configured method names to handlers. Each node
// class carries one, populated at class registration.
type HandlerSet map[string]Handler

// Dispatcher resolves configured actions and runs them.
type Dispatcher struct {
	log *slog.Logger
}

func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{log: log}
}

// FireBefore runs the before-persist actions configured for class.
// input is the change that triggered the write; its "listener"/"id"
// keys route listener-scoped table entries. The guard is marked before
// dispatch, so nested saves inside a handler do not re-fire it. A
// missing handler method vetoes with an explanatory payload. Returns
// *RejectedError on veto, nil otherwise.
func (d *Dispatcher) FireBefore(ctx *Context, handlers HandlerSet, class, guardKey string, input, pending, saved map[string]any) error {
	if ctx == nil || ctx.Config == nil {
		return nil
	}
	if !ctx.markBefore(guardKey) {
		return nil
	}

	methods := ctx.Config.Actions(class, EventBeforePersist, listenerOf(input))
	for _, m := range methods {
		if m = strings.TrimSpace(m); m == "" {
			continue
		}
		h, ok := handlers[m]
		if !ok {
			return &RejectedError{
				Payload: map[string]any{
					"error": fmt.Sprintf("handler method %q not found for event %s", m, EventBeforePersist),
				},
				Messages: ctx.drainMessages(),
			}
		}
		ok, out := h(ctx, pending, saved)
		if !ok {
			if out == nil {
				out = map[string]any{}
			}
			return &RejectedError{Payload: out, Messages: ctx.drainMessages()}
		}
	}
	return nil
}

// FireAfter runs the after-persist actions once data is durably
// written. It never vetoes: missing handlers, falsy results, and
// panics are logged and swallowed. A falsy result stops the remaining
// actions, matching the before-hook ordering.
func (d *Dispatcher) FireAfter(ctx *Context, handlers HandlerSet, class, guardKey string, pending, saved map[string]any) {
	if ctx == nil || ctx.Config == nil {
		return
	}
	if !ctx.markAfter(guardKey) {
		return
	}

	methods := ctx.Config.Actions(class, EventAfterPersist, "")
	for _, m := range methods {
		if m = strings.TrimSpace(m); m == "" {
			continue
		}
		h, ok := handlers[m]
		if !ok {
			d.log.Warn("after-persist handler missing", "class", class, "method", m)
			return
		}
		if !d.runAfter(ctx, h, class, m, pending, saved) {
			return
		}
	}
}

func (d *Dispatcher) runAfter(ctx *Context, h Handler, class, method string, pending, saved map[string]any) (cont bool) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("after-persist handler panicked", "class", class, "method", method, "panic", r)
			cont = false
		}
	}()
	ok, _ := h(ctx, pending, saved)
	if !ok {
		d.log.Debug("after-persist handler returned false", "class", class, "method", method)
	}
	return ok
}

// listenerOf extracts the listener id a firing payload names, via its
// "listener" or "id" key.
func listenerOf(input map[string]any) string {
	if input == nil {
		return ""
	}
	for _, key := range []string{"listener", "id"} {
		if v, ok := input[key]; ok && v != nil {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	return ""
}
