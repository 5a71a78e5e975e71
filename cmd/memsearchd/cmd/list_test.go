package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memsearch/memsearch/internal/memory"
	"github.com/memsearch/memsearch/internal/service"
)

func TestListCmd_RequiresOwner(t *testing.T) {
	// Given: the list command without --owner
	withTempConfigDir(t)
	rootCmd := NewRootCmd()
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"list"})

	// When: executing it
	err := rootCmd.Execute()

	// Then: it fails because --owner is required
	require.Error(t, err)
}

func TestListCmd_EmptyStore_ReportsNoMemories(t *testing.T) {
	// Given: an empty store
	withTempConfigDir(t)
	rootCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"list", "--owner", "agent-1"})

	// When: listing against it
	err := rootCmd.Execute()

	// Then: it reports no memories rather than erroring
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "no memories")
}

func TestListCmd_RejectsUnknownType(t *testing.T) {
	withTempConfigDir(t)
	rootCmd := NewRootCmd()
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"list", "--owner", "agent-1", "--type", "dreams"})

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown memory type")
}

func TestListCmd_EnumeratesOwnedUnits(t *testing.T) {
	// Given: a bootstrapped service with two memories for one owner and one
	// for another (shared service, since each CLI invocation would
	// otherwise get its own fresh in-memory store)
	withTempConfigDir(t)
	b, err := newBootstrap(context.Background(), nil)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	ctx := context.Background()
	_, err = b.svc.Store(ctx, service.StoreRequest{OwnerKey: "agent-1", Content: "first memory"})
	require.NoError(t, err)
	_, err = b.svc.Store(ctx, service.StoreRequest{OwnerKey: "agent-1", Content: "second memory"})
	require.NoError(t, err)
	_, err = b.svc.Store(ctx, service.StoreRequest{OwnerKey: "agent-2", Content: "someone else's memory"})
	require.NoError(t, err)

	// When: listing agent-1's memories
	units, err := b.svc.List(ctx, memory.Filter{OwnerKey: "agent-1"}, 0)

	// Then: exactly the two owned units come back
	require.NoError(t, err)
	require.Len(t, units, 2)
	for _, u := range units {
		assert.Equal(t, "agent-1", u.OwnerKey)
	}
}
