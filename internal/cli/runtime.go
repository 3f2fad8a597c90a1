package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/nodal/internal/config"
	"github.com/roach88/nodal/internal/hook"
	"github.com/roach88/nodal/internal/node"
	"github.com/roach88/nodal/internal/store"
)

// runtime is everything a command needs to touch storage: the node
// environment, the request context, and the resolved tenant uid.
//
// Handler methods are Go functions registered by the embedding
// application, so the CLI opens its request context without a
// configuration: lifecycle hooks never fire here. The config file still
// supplies the tenant uid, class names, and room aliases.
type runtime struct {
	env    *node.Env
	ctx    *hook.Context
	tenant string
	cfg    *config.Config
}

func openRuntime(opts *RootOptions) (*runtime, error) {
	rt := &runtime{
		env: node.NewEnv(store.NewRegistry(opts.Dir)),
		ctx: hook.NewContext(nil),
	}

	if opts.ConfigPath != "" {
		cfg, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "load config", err)
		}
		rt.cfg = cfg
		rt.tenant = cfg.UID
		for name := range cfg.Classes {
			rt.env.Classes.Register(&node.Class{Name: name})
		}
	}
	if opts.Tenant != "" {
		rt.tenant = opts.Tenant
	}
	rt.ctx.ConfigID = rt.tenant
	return rt, nil
}

func (rt *runtime) Close() {
	_ = rt.env.Stores.CloseAll()
}

// handle resolves a class, registering it on the fly: the CLI accepts
// any class name, since storage is schemaless.
func (rt *runtime) handle(class string) (*node.Handle, error) {
	if _, ok := rt.env.Classes.Resolve(class); !ok {
		rt.env.Classes.Register(&node.Class{Name: class})
	}
	h, err := rt.env.Class(class)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "resolve class", err)
	}
	return h, nil
}

// getNode opens an existing node or fails with a not-found exit error.
func (rt *runtime) getNode(class, id string) (*node.Node, error) {
	h, err := rt.handle(class)
	if err != nil {
		return nil, err
	}
	n, err := h.Get(id, rt.tenant)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open node", err)
	}
	if n == nil {
		return nil, NewExitError(ExitFailure, fmt.Sprintf("node not found: %s/%s", class, id))
	}
	return n, nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// parsePairs turns key=value arguments into a change set. Values are
// decoded as JSON when possible ("2", "true", "[1,2]"), otherwise kept
// as strings.
func parsePairs(args []string) (map[string]any, error) {
	changes := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		changes[key] = parseValue(raw)
	}
	return changes, nil
}

func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// run wires the shared command plumbing: open the runtime, build the
// formatter, run the body, and render any failure before returning it.
func run(opts *RootOptions, cmd *cobra.Command, fn func(*runtime, *OutputFormatter) error) error {
	formatter := newFormatter(opts, cmd)
	rt, err := openRuntime(opts)
	if err != nil {
		return report(formatter, err)
	}
	defer rt.Close()
	return report(formatter, fn(rt, formatter))
}

// report renders an error in the configured format and normalizes it to
// an ExitError so main can pick the process exit code.
func report(formatter *OutputFormatter, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Rendered {
			return exitErr
		}
		code := "E001"
		if exitErr.Code == ExitCommandError {
			code = "E002"
		}
		_ = formatter.Error(code, exitErr.Error(), nil)
		return exitErr
	}
	_ = formatter.Error("E001", err.Error(), nil)
	return NewExitError(ExitFailure, err.Error())
}
