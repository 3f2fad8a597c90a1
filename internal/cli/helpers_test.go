package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeTempConfig drops a minimal tenant configuration into dir and
// returns its path.
func writeTempConfig(t *testing.T, dir string) string {
	t.Helper()

	doc := `uid: cfg-9
classes:
  Receipt: {}
rooms:
  kitchen: 6ba7b810-9dad-11d1-80b4-00c04fd430c8
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}
