package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memsearch/memsearch/internal/memerr"
	"github.com/memsearch/memsearch/internal/service"
)

func TestDeleteCmd_SoftDeleteHidesFromGet(t *testing.T) {
	// Given: a stored unit
	withTempConfigDir(t)
	b, err := newBootstrap(context.Background(), nil)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	stored, err := b.svc.Store(context.Background(), service.StoreRequest{
		OwnerKey: "agent-1",
		Content:  "to be deleted",
	})
	require.NoError(t, err)

	// When: soft-deleting it
	err = b.svc.Delete(context.Background(), stored.Unit.ID, false)
	require.NoError(t, err)

	// Then: a subsequent Get reports not found
	_, err = b.svc.Get(context.Background(), stored.Unit.ID)
	require.Error(t, err)
	assert.Equal(t, memerr.NotFound, memerr.KindOf(err))
}

func TestDeleteCmd_UnknownIDFails(t *testing.T) {
	// Given: the delete command with an id that was never stored
	withTempConfigDir(t)
	rootCmd := NewRootCmd()
	rootCmd.SetArgs([]string{"delete", "does-not-exist"})

	// When: executing it
	err := rootCmd.Execute()

	// Then: it returns an error instead of silently succeeding
	require.Error(t, err)
}
