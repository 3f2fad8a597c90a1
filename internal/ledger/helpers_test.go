package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// anyThroughJSON round-trips a value through encoding/json, producing
// the generic map/slice shape node data has after being loaded from
// storage.
func anyThroughJSON(t *testing.T, v any) any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var out any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}
