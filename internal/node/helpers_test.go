package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/nodal/internal/config"
	"github.com/roach88/nodal/internal/hook"
	"github.com/roach88/nodal/internal/store"
	"github.com/roach88/nodal/internal/testutil"
)

// newTestEnv builds an environment over a temp storage root with a
// deterministic clock and id sequence, and the classes the tests use.
func newTestEnv(t *testing.T) *Env {
	t.Helper()

	env := NewEnv(store.NewRegistry(t.TempDir()))
	env.Clock = testutil.NewFixedClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), time.Second).Now
	env.NewID = testutil.NewSequenceIDs("n").Next

	env.Classes.Register(&Class{Name: "Receipt"})
	env.Classes.Register(&Class{Name: "Position"})
	env.Classes.Register(&Class{Name: "Warehouse"})

	t.Cleanup(func() { _ = env.Stores.CloseAll() })
	return env
}

func mustHandle(t *testing.T, env *Env, class string) *Handle {
	t.Helper()
	h, err := env.Class(class)
	require.NoError(t, err)
	return h
}

// requestContext parses a config document and opens a request scope.
func requestContext(t *testing.T, doc string) *hook.Context {
	t.Helper()
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)
	return hook.NewContext(cfg)
}

const receiptHookConfig = `
uid: cfg-1
classes:
  Receipt:
    events:
      - event: onAcceptServer
        actions:
          - method: check_total
      - event: onAfterAcceptServer
        actions:
          - method: notify
`
