package loam

import (
	"context"
	"testing"

	"github.com/aretw0/loam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/espalier/internal/testutils"
)

func seedRepo(t *testing.T, docs map[string]string) *Loader {
	t.Helper()

	_, repo := testutils.SetupTestRepo(t)
	testutils.SeedStateDocs(t, repo, docs)

	return New(loam.NewTypedRepository[StateMetadata](repo))
}

func TestLoader_Load(t *testing.T) {
	loader := seedRepo(t, map[string]string{
		"draft.md": `---
initial: true
name: order
transitions:
  - trigger: submit
    to: review.md
triggers:
  assign: [string, int]
---
Orders start here.`,
		"review.md": `---
on_entry: [notify_reviewer]
on_exit: [clear_reviewer]
transitions:
  - trigger: approve
    to: active
    guard: quorum_reached
  - trigger: reject
    to: draft
---
Waiting for a reviewer.`,
		"active.md": `---
transitions:
  - trigger: assign
    internal: record_assignee
  - trigger: submit
    ignore: true
---
Work in progress.`,
	})

	def, err := loader.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "order", def.Name)
	assert.Equal(t, "draft", def.Initial)
	assert.Len(t, def.States, 3)

	// Destination extensions are stripped during assembly.
	assert.Equal(t, "review", def.States["draft"].Transitions[0].To)
	assert.Equal(t, "quorum_reached", def.States["review"].Transitions[0].Guard)
	assert.Equal(t, []string{"notify_reviewer"}, def.States["review"].OnEntry)
	assert.Equal(t, "record_assignee", def.States["active"].Transitions[0].Internal)
	assert.True(t, def.States["active"].Transitions[1].Ignore)
	assert.Equal(t, []string{"string", "int"}, def.Triggers["assign"].Params)

	require.NoError(t, def.Validate())
}

func TestLoader_Hierarchy(t *testing.T) {
	loader := seedRepo(t, map[string]string{
		"idle.md": `---
initial: true
transitions:
  - trigger: start
    to: lane_a
---`,
		"active.md": `---
transitions:
  - trigger: stop
    to: idle
---`,
		"lane_a.md": `---
superstate: active.md
---`,
	})

	def, err := loader.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "active", def.States["lane_a"].Superstate)
	require.NoError(t, def.Validate())
}

func TestLoader_MissingInitial(t *testing.T) {
	loader := seedRepo(t, map[string]string{
		"a.md": `---
transitions:
  - trigger: go
    to: a
---`,
	})

	_, err := loader.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial")
}

func TestLoader_DuplicateInitial(t *testing.T) {
	loader := seedRepo(t, map[string]string{
		"a.md": `---
initial: true
---`,
		"b.md": `---
initial: true
---`,
	})

	_, err := loader.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared twice")
}

func TestLoader_ConflictingTriggerParams(t *testing.T) {
	loader := seedRepo(t, map[string]string{
		"a.md": `---
initial: true
triggers:
  assign: [string]
---`,
		"b.md": `---
triggers:
  assign: [string, int]
---`,
	})

	_, err := loader.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflicting params")
}
