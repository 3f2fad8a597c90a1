package canon

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_SortedKeys(t *testing.T) {
	got, err := Marshal(map[string]any{
		"zebra": 1,
		"alpha": 2,
		"mango": 3,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mango":3,"zebra":1}`, string(got))
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	got, err := Marshal("<a> & </a>")
	require.NoError(t, err)
	assert.Equal(t, `"<a> & </a>"`, string(got))
}

func TestMarshal_Floats(t *testing.T) {
	got, err := Marshal([]float64{8, 1.5, -0.25})
	require.NoError(t, err)
	assert.Equal(t, `[8,1.5,-0.25]`, string(got))
}

func TestMarshal_Null(t *testing.T) {
	got, err := Marshal(map[string]any{"parent": nil})
	require.NoError(t, err)
	assert.Equal(t, `{"parent":null}`, string(got))
}

func TestMarshal_NFCNormalization(t *testing.T) {
	// "e" + COMBINING ACUTE ACCENT normalizes to the precomposed form.
	decomposed := "é"
	precomposed := "é"

	a, err := Marshal(decomposed)
	require.NoError(t, err)
	b, err := Marshal(precomposed)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestMarshal_TypedValuesReduce(t *testing.T) {
	got, err := Marshal(map[string][]float64{
		"b::x": {1, 2},
		"a::y": {3},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a::y":[3],"b::x":[1,2]}`, string(got))
}

func TestMarshal_Deterministic(t *testing.T) {
	v := map[string]any{
		"keys":   []string{"warehouse", "sku"},
		"values": []float64{5, 3},
		"nested": map[string]any{"ok": true, "n": nil},
	}
	first, err := Marshal(v)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Marshal(v)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestHash_DomainSeparation(t *testing.T) {
	v := map[string]any{"uid": "u1", "period": "2024-01-01"}

	h1, err := Hash(DomainTransaction, v)
	require.NoError(t, err)
	h2, err := Hash(DomainState, v)
	require.NoError(t, err)

	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, h2)

	// Same domain, same payload: stable.
	again, err := Hash(DomainTransaction, v)
	require.NoError(t, err)
	assert.Equal(t, h1, again)
}

func TestMarshal_Golden(t *testing.T) {
	got, err := Marshal(map[string]any{
		"uid":     "tx-0001",
		"parent":  nil,
		"period":  "2024-06-01",
		"applied": true,
		"balances": map[string]any{
			"warehouse::sku": []float64{8, 1.5},
		},
		"keys": []string{"warehouse", "sku"},
		"seq":  3,
	})
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "canonical_tx", got)
}
