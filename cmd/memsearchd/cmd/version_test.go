package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memsearch/memsearch/pkg/version"
)

func TestVersionCmd_PrintsVersionString(t *testing.T) {
	// Given: a version command
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	// When: executing it
	err := cmd.Execute()

	// Then: it prints the formatted version string
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "memsearchd")
	assert.Contains(t, output, version.Version)
}

func TestVersionCmd_AddedToRoot(t *testing.T) {
	// Given: the root command
	rootCmd := NewRootCmd()

	// When: looking for the version subcommand
	versionCmd, _, err := rootCmd.Find([]string{"version"})

	// Then: it should exist
	require.NoError(t, err)
	assert.Equal(t, "version", versionCmd.Name())
}
