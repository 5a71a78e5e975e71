package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmd_RegistersAllSubcommands(t *testing.T) {
	// Given: the root command
	rootCmd := NewRootCmd()

	// When/Then: every subcommand resolves by name
	for _, name := range []string{"store", "recall", "get", "list", "delete", "serve", "config", "logs", "version"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, "expected %q to be registered", name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestNewRootCmd_HasConfigDirAndDebugFlags(t *testing.T) {
	// Given: the root command
	rootCmd := NewRootCmd()

	// Then: the persistent flags driving bootstrap and debug logging exist
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config-dir"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("debug"))
}
