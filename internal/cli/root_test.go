package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "nodal", cmd.Use)
	assert.Contains(t, cmd.Long, "ledgers")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"get", "set", "create", "delete", "children", "ledger", "verify"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestLedgerSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	for _, sub := range []string{"append", "balance", "chain", "remove", "rebuild"} {
		t.Run(sub, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{"ledger", sub})
			require.NoError(t, err)
			assert.Equal(t, sub, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dirFlag := cmd.PersistentFlags().Lookup("dir")
	require.NotNil(t, dirFlag)
	assert.Equal(t, ".", dirFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestCreateCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	createCmd, _, err := cmd.Find([]string{"create"})
	require.NoError(t, err)

	idFlag := createCmd.Flags().Lookup("id")
	require.NotNil(t, idFlag)
	assert.Equal(t, "", idFlag.DefValue)
}

func TestLedgerAppendCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	appendCmd, _, err := cmd.Find([]string{"ledger", "append"})
	require.NoError(t, err)

	for _, name := range []string{"period", "keys", "values", "unique", "state"} {
		require.NotNil(t, appendCmd.Flags().Lookup(name), "flag %s should exist", name)
	}
	assert.Equal(t, "false", appendCmd.Flags().Lookup("state").DefValue)
}

func TestFormatValidation(t *testing.T) {
	// Test valid formats
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	// Test invalid formats
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "get", "Receipt", "r1"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestParsePairs(t *testing.T) {
	changes, err := parsePairs([]string{"total=12.5", "open=true", "name=till one", "tags=[1,2]"})
	require.NoError(t, err)
	assert.Equal(t, 12.5, changes["total"])
	assert.Equal(t, true, changes["open"])
	assert.Equal(t, "till one", changes["name"])
	assert.Equal(t, []any{1.0, 2.0}, changes["tags"])

	_, err = parsePairs([]string{"no-separator"})
	require.Error(t, err)
}
