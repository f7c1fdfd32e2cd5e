package ports

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateCellContract runs a suite of tests verifying that a StateCell
// implementation adheres to the interface contract. Adapter test suites call
// it with a fresh, unseeded cell.
func RunStateCellContract(t *testing.T, cell StateCell[string]) {
	ctx := context.Background()

	t.Run("Read before first write", func(t *testing.T) {
		_, err := cell.Read(ctx)
		assert.ErrorIs(t, err, ErrStateNotFound, "an unseeded cell should report ErrStateNotFound")
	})

	t.Run("Write and Read", func(t *testing.T) {
		require.NoError(t, cell.Write(ctx, "running"))

		got, err := cell.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, "running", got)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, cell.Write(ctx, "paused"))
		require.NoError(t, cell.Write(ctx, "stopped"))

		got, err := cell.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, "stopped", got)
	})

	t.Run("Concurrent reads", func(t *testing.T) {
		require.NoError(t, cell.Write(ctx, "steady"))

		done := make(chan error, 8)
		for i := 0; i < 8; i++ {
			go func() {
				_, err := cell.Read(ctx)
				done <- err
			}()
		}
		for i := 0; i < 8; i++ {
			assert.NoError(t, <-done)
		}
	})
}
