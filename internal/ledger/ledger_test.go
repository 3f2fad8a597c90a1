package ledger

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendN(t *testing.T, chain Chain, n int, keys []string, values []float64) Chain {
	t.Helper()
	for i := 0; i < n; i++ {
		var err error
		chain, _, err = Append(chain, uuid.NewString(), "2024-06-01", keys, values, nil)
		require.NoError(t, err)
	}
	return chain
}

func TestAppend_BalanceAccumulation(t *testing.T) {
	var chain Chain
	var err error

	chain, _, err = Append(chain, "tx-1", "2024-06-01", []string{"a"}, []float64{5}, nil)
	require.NoError(t, err)
	chain, _, err = Append(chain, "tx-2", "2024-06-01", []string{"a"}, []float64{3}, nil)
	require.NoError(t, err)

	assert.Equal(t, []float64{8}, CurrentBalance(chain)["a"])
}

func TestAppend_IndependentKeys(t *testing.T) {
	var chain Chain
	var err error

	chain, _, err = Append(chain, "tx-1", "2024-06-01", []string{"warehouse", "sku"}, []float64{5, 10}, nil)
	require.NoError(t, err)
	chain, _, err = Append(chain, "tx-2", "2024-06-01", []string{"shop"}, []float64{2}, nil)
	require.NoError(t, err)

	bal := CurrentBalance(chain)
	assert.Equal(t, []float64{5, 10}, bal["warehouse::sku"])
	assert.Equal(t, []float64{2}, bal["shop"])
}

func TestAppend_ShorterVectorZeroExtended(t *testing.T) {
	var chain Chain
	var err error

	chain, _, err = Append(chain, "tx-1", "2024-06-01", []string{"a"}, []float64{5}, nil)
	require.NoError(t, err)
	// Longer vector than the running balance: missing positions are zero.
	chain, _, err = Append(chain, "tx-2", "2024-06-01", []string{"a"}, []float64{3, 7}, nil)
	require.NoError(t, err)

	assert.Equal(t, []float64{8, 7}, CurrentBalance(chain)["a"])
}

func TestAppend_ChainLinkage(t *testing.T) {
	chain := appendN(t, nil, 4, []string{"a"}, []float64{1})

	for i := 1; i < len(chain); i++ {
		assert.Equal(t, chain[i-1].Hash, chain[i].PrevHash, "entry %d prev_hash", i)
		assert.Equal(t, chain[i-1].UID, chain[i].Parent, "entry %d parent", i)
		assert.Equal(t, chain[i].UID, chain[i-1].Child, "entry %d back-pointer", i)
	}
	assert.Empty(t, chain[len(chain)-1].Child)
	require.NoError(t, Verify(chain))
}

func TestAppendUnique_Idempotent(t *testing.T) {
	var chain Chain

	chain, first, inserted, err := AppendUnique(chain, "tx-1", "invoice-77", "2024-06-01", []string{"a"}, []float64{5}, nil)
	require.NoError(t, err)
	require.True(t, inserted)

	chain, second, inserted, err := AppendUnique(chain, "tx-2", "invoice-77", "2024-06-01", []string{"a"}, []float64{5}, nil)
	require.NoError(t, err)
	assert.False(t, inserted)

	assert.Equal(t, first.UID, second.UID)
	assert.Len(t, chain, 1)
	assert.Equal(t, []float64{5}, CurrentBalance(chain)["a"])
}

func TestAppendUnique_RequiresKey(t *testing.T) {
	_, _, _, err := AppendUnique(nil, "tx-1", "", "2024-06-01", []string{"a"}, []float64{5}, nil)
	assert.Error(t, err)
}

func TestRemoveUnique_RebuildCorrectness(t *testing.T) {
	var chain Chain
	var err error
	var inserted bool

	for i, v := range []float64{5, 3, 7} {
		chain, _, inserted, err = AppendUnique(chain, fmt.Sprintf("tx-%d", i), fmt.Sprintf("uk-%d", i), "2024-06-01", []string{"a"}, []float64{v}, nil)
		require.NoError(t, err)
		require.True(t, inserted)
	}

	// Remove the middle entry.
	chain, index, removed, err := RemoveUnique(chain, "stock", "node-1", "uk-1")
	require.NoError(t, err)
	require.True(t, removed)
	require.Len(t, chain, 2)

	// Balances equal the sum of the remaining entries.
	assert.Equal(t, []float64{12}, CurrentBalance(chain)["a"])

	// Hash-chain invariants still hold after the rebuild.
	require.NoError(t, Verify(chain))

	// Index covers exactly the survivors.
	assert.Len(t, index, 2)
	assert.Equal(t, chain[0].UID, index["uk-0"])
	assert.Equal(t, chain[1].UID, index["uk-2"])
}

func TestRemoveUnique_MissingKey(t *testing.T) {
	chain := appendN(t, nil, 2, []string{"a"}, []float64{1})
	_, _, removed, err := RemoveUnique(chain, "stock", "node-1", "nope")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRebuild_SynthesizesDedupKeys(t *testing.T) {
	chain := appendN(t, nil, 2, []string{"a"}, []float64{1})
	require.Empty(t, chain[0].DedupKey)

	rebuilt, index, err := Rebuild(chain, "stock", "node-1")
	require.NoError(t, err)

	for _, tx := range rebuilt {
		assert.NotEmpty(t, tx.DedupKey)
	}
	assert.Len(t, index, 1, "same (scheme,period,keys,source) synthesizes the same marker")
	require.NoError(t, Verify(rebuilt))
}

func TestRebuild_EmptyChainClearsIndex(t *testing.T) {
	rebuilt, index, err := Rebuild(nil, "stock", "node-1")
	require.NoError(t, err)
	assert.Empty(t, rebuilt)
	assert.Empty(t, index)
}

func TestStateAppend_SnapshotsNeverAccumulate(t *testing.T) {
	var chain Chain
	var err error

	chain, _, err = StateAppend(chain, "tx-1", "2024-06-01", []string{"temp"}, []float64{20}, nil)
	require.NoError(t, err)
	chain, _, err = StateAppend(chain, "tx-2", "2024-06-02", []string{"temp"}, []float64{25}, nil)
	require.NoError(t, err)

	assert.Equal(t, []float64{25}, CurrentState(chain)["temp"])
	require.NoError(t, Verify(chain))
}

func TestVerify_DetectsTampering(t *testing.T) {
	t.Run("mutated balance", func(t *testing.T) {
		chain := appendN(t, nil, 3, []string{"a"}, []float64{1})
		chain[1].Balances["a"][0] = 999
		var chainErr *ChainError
		require.ErrorAs(t, Verify(chain), &chainErr)
		assert.Equal(t, 1, chainErr.Index)
	})

	t.Run("broken linkage", func(t *testing.T) {
		chain := appendN(t, nil, 3, []string{"a"}, []float64{1})
		chain[2].Parent = "someone-else"
		assert.Error(t, Verify(chain))
	})

	t.Run("dangling tail child", func(t *testing.T) {
		chain := appendN(t, nil, 2, []string{"a"}, []float64{1})
		chain[1].Child = "ghost"
		assert.Error(t, Verify(chain))
	})
}

func TestDecodeBook_RoundTrip(t *testing.T) {
	chain := appendN(t, nil, 2, []string{"a"}, []float64{2})
	book := map[string]Chain{"stock": chain}

	// Simulate a JSON storage round trip: encode, decode generically,
	// then decode into typed chains again.
	decoded, err := DecodeBook(anyThroughJSON(t, EncodeBook(book)))
	require.NoError(t, err)

	require.Len(t, decoded["stock"], 2)
	assert.Equal(t, chain[1].Hash, decoded["stock"][1].Hash)
	assert.Equal(t, []float64{4}, CurrentBalance(decoded["stock"])["a"])
	require.NoError(t, Verify(decoded["stock"]))
}

func TestDecodeIndex(t *testing.T) {
	idx, err := DecodeIndex(map[string]any{"stock": map[string]any{"uk-1": "tx-1"}})
	require.NoError(t, err)
	assert.Equal(t, "tx-1", idx["stock"]["uk-1"])

	empty, err := DecodeIndex(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
