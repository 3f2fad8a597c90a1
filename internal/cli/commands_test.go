package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execCLI runs one command line against a fresh root command and
// decodes the JSON response.
func execCLI(t *testing.T, args ...string) (CLIResponse, error) {
	t.Helper()

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)

	execErr := cmd.Execute()

	var resp CLIResponse
	if out.Len() > 0 {
		require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	}
	return resp, execErr
}

func TestCommands_NodeLifecycle(t *testing.T) {
	dir := t.TempDir()
	base := []string{"--dir", dir, "--tenant", "cfg-1", "--format", "json"}

	resp, err := execCLI(t, append(base, "create", "Receipt", "total=10", "--id", "r1")...)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	created, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "r1", created["_id"])
	assert.Equal(t, "Receipt", created["_class"])

	resp, err = execCLI(t, append(base, "get", "Receipt", "r1")...)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	got := resp.Data.(map[string]any)
	payload := got["_data"].(map[string]any)
	assert.Equal(t, 10.0, payload["total"])
	assert.Equal(t, "cfg-1$Receipt$r1", payload["_id"])

	resp, err = execCLI(t, append(base, "set", "Receipt", "r1", "total=12.5", "open=true")...)
	require.NoError(t, err)
	data := resp.Data.(map[string]any)
	assert.Equal(t, 12.5, data["total"])
	assert.Equal(t, true, data["open"])

	resp, err = execCLI(t, append(base, "children", "Receipt", "r1")...)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.Data)

	_, err = execCLI(t, append(base, "delete", "Receipt", "r1")...)
	require.NoError(t, err)

	resp, err = execCLI(t, append(base, "get", "Receipt", "r1")...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "error", resp.Status)
}

func TestCommands_GetAbsentNode(t *testing.T) {
	resp, err := execCLI(t, "--dir", t.TempDir(), "--tenant", "cfg-1", "--format", "json",
		"get", "Receipt", "ghost")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "not found")
}

func TestCommands_LedgerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	base := []string{"--dir", dir, "--tenant", "cfg-1", "--format", "json"}

	_, err := execCLI(t, append(base, "create", "Warehouse", "--id", "w1")...)
	require.NoError(t, err)

	resp, err := execCLI(t, append(base, "ledger", "append", "Warehouse", "w1", "stock",
		"--keys", "sku", "--values", "5", "--period", "2024-06-01")...)
	require.NoError(t, err)
	appended := resp.Data.(map[string]any)
	assert.NotEmpty(t, appended["tx_uid"])
	assert.Equal(t, true, appended["inserted"])

	// Idempotent append on a dedup key.
	resp, err = execCLI(t, append(base, "ledger", "append", "Warehouse", "w1", "money",
		"--values", "3", "--keys", "rub", "--unique", "inv-1")...)
	require.NoError(t, err)
	assert.Equal(t, true, resp.Data.(map[string]any)["inserted"])

	resp, err = execCLI(t, append(base, "ledger", "append", "Warehouse", "w1", "money",
		"--values", "3", "--keys", "rub", "--unique", "inv-1")...)
	require.NoError(t, err)
	assert.Equal(t, false, resp.Data.(map[string]any)["inserted"])

	resp, err = execCLI(t, append(base, "ledger", "balance", "Warehouse", "w1", "money")...)
	require.NoError(t, err)
	assert.Equal(t, []any{3.0}, resp.Data.(map[string]any)["rub"])

	resp, err = execCLI(t, append(base, "ledger", "chain", "Warehouse", "w1", "stock")...)
	require.NoError(t, err)
	chain := resp.Data.([]any)
	require.Len(t, chain, 1)

	resp, err = execCLI(t, append(base, "ledger", "remove", "Warehouse", "w1", "money", "inv-1")...)
	require.NoError(t, err)
	assert.Equal(t, true, resp.Data.(map[string]any)["removed"])

	resp, err = execCLI(t, append(base, "ledger", "balance", "Warehouse", "w1", "money")...)
	require.NoError(t, err)
	assert.Empty(t, resp.Data)

	resp, err = execCLI(t, append(base, "verify", "Warehouse")...)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	result := resp.Data.(map[string]any)
	assert.Equal(t, 1.0, result["nodes"])
}

func TestCommands_LedgerAppendRequiresValues(t *testing.T) {
	dir := t.TempDir()
	base := []string{"--dir", dir, "--tenant", "cfg-1", "--format", "json"}

	_, err := execCLI(t, append(base, "create", "Warehouse", "--id", "w1")...)
	require.NoError(t, err)

	_, err = execCLI(t, append(base, "ledger", "append", "Warehouse", "w1", "stock")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCommands_ConfigSuppliesTenant(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTempConfig(t, dir)

	resp, err := execCLI(t, "--dir", dir, "--config", cfgPath, "--format", "json",
		"create", "Receipt", "--id", "r1")
	require.NoError(t, err)
	created := resp.Data.(map[string]any)
	assert.Equal(t, "cfg-9", created["_config_uid"])
}
