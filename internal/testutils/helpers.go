package testutils

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/stretchr/testify/require"
)

// SetupTestRepo creates a temporary directory and initializes a Loam
// repository in it, for tests that seed definition documents. It returns the
// absolute path to the temp dir and the initialized repository, and fails
// the test immediately on error.
func SetupTestRepo(t *testing.T, opts ...loam.Option) (string, core.Repository) {
	t.Helper()

	tmpDir := t.TempDir()

	// Loam prefers absolute paths; t.TempDir usually returns one, but
	// ensuring it is absolute is safe.
	absPath, err := filepath.Abs(tmpDir)
	require.NoError(t, err, "Failed to get absolute path for temp dir")

	repo, err := loam.Init(absPath, opts...)
	require.NoError(t, err, "Failed to init loam repo")

	return absPath, repo
}

// SeedStateDocs writes one document per state into repo. Keys are document
// IDs (state name plus extension), values the full document content including
// the frontmatter block.
func SeedStateDocs(t *testing.T, repo core.Repository, docs map[string]string) {
	t.Helper()

	ctx := context.Background()
	for id, content := range docs {
		require.NoError(t, repo.Save(ctx, core.Document{ID: id, Content: content}), "seeding %s", id)
	}
}
