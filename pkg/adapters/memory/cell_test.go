package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/espalier/pkg/adapters/memory"
	"github.com/aretw0/espalier/pkg/ports"
)

// TestMemoryCell_Contract verifies that the in-memory cell satisfies the
// StateCell behavioral contract.
func TestMemoryCell_Contract(t *testing.T) {
	ports.RunStateCellContract(t, memory.NewCell[string]())
}

func TestMemoryCell_Seeded(t *testing.T) {
	ctx := context.Background()
	cell := memory.NewSeededCell("idle")

	got, err := cell.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "idle", got)

	require.NoError(t, cell.Write(ctx, "running"))
	got, err = cell.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "running", got)
}

func TestMemoryCell_StructStates(t *testing.T) {
	type phase struct {
		Name  string
		Round int
	}

	ctx := context.Background()
	cell := memory.NewCell[phase]()

	_, err := cell.Read(ctx)
	assert.ErrorIs(t, err, ports.ErrStateNotFound)

	want := phase{Name: "draft", Round: 2}
	require.NoError(t, cell.Write(ctx, want))

	got, err := cell.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
