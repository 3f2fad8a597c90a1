package uid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_StringForms(t *testing.T) {
	cfg := "3f2504e0-4f89-11d3-9a0c-0305e82c3301"

	tests := []struct {
		name  string
		input string
		want  UID
	}{
		{
			name:  "three parts",
			input: cfg + "$Receipt$42",
			want:  UID{Config: cfg, Class: "Receipt", ID: "42"},
		},
		{
			name:  "extra parts collapse to first/last two",
			input: cfg + "$junk$Receipt$42",
			want:  UID{Config: cfg, Class: "Receipt", ID: "42"},
		},
		{
			name:  "class and id",
			input: "Receipt$42",
			want:  UID{Class: "Receipt", ID: "42"},
		},
		{
			name:  "singleton shorthand",
			input: cfg + "$Settings",
			want:  UID{Config: cfg, Class: "Settings", ID: Singleton},
		},
		{
			name:  "bare id",
			input: "42",
			want:  UID{ID: "42"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_MapForms(t *testing.T) {
	cfg := uuid.NewString()

	t.Run("plain id and class", func(t *testing.T) {
		got, err := Parse(map[string]any{"_id": "42", "_class": "Receipt"})
		require.NoError(t, err)
		assert.Equal(t, UID{Class: "Receipt", ID: "42"}, got)
	})

	t.Run("composite id with class override", func(t *testing.T) {
		got, err := Parse(map[string]any{
			"_id":    cfg + "$Warehouse$42",
			"_class": "Receipt",
		})
		require.NoError(t, err)
		// The map's class wins over the class embedded in _id.
		assert.Equal(t, UID{Config: cfg, Class: "Receipt", ID: "42"}, got)
	})

	t.Run("lowercase key fallback", func(t *testing.T) {
		got, err := Parse(map[string]any{"id": "7", "class": "Box"})
		require.NoError(t, err)
		assert.Equal(t, UID{Class: "Box", ID: "7"}, got)
	})
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse(nil)
	assert.Error(t, err)

	_, err = Parse("")
	assert.Error(t, err)

	var invalid *InvalidError
	_, err = Parse("   ")
	require.ErrorAs(t, err, &invalid)
}

func TestNormalize_NoDoublePrefix(t *testing.T) {
	cfg := uuid.NewString()

	// Already-normalized input must not grow another prefix.
	once := Normalize(cfg, "Receipt", "42")
	twice := Normalize(cfg, "Receipt", once)
	assert.Equal(t, once, twice)
	assert.Equal(t, cfg+"$Receipt$42", once)
}

func TestNormalize_RoundTrip(t *testing.T) {
	cfg := uuid.NewString()

	for _, id := range []string{"42", "abc-def", Singleton} {
		got, err := Parse(Normalize(cfg, "Receipt", id))
		require.NoError(t, err)
		assert.Equal(t, UID{Config: cfg, Class: "Receipt", ID: id}, got)
	}
}

func TestExtractInternalID(t *testing.T) {
	assert.Equal(t, "42", ExtractInternalID("42"))
	assert.Equal(t, "42", ExtractInternalID("Receipt$42"))
	assert.Equal(t, "42", ExtractInternalID("cfg$Receipt$42"))
	assert.Equal(t, "", ExtractInternalID(nil))
}
