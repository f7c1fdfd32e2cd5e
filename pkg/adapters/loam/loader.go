// Package loam loads machine definitions from a Loam document repository,
// one state per document. Filenames become state names (extension
// stripped), frontmatter declares the state's transitions, and the document
// body is free-form prose for humans.
package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aretw0/loam"

	"github.com/aretw0/espalier/pkg/schema"
)

// Loader assembles a schema.Definition from every document in a repository.
type Loader struct {
	Repo *loam.TypedRepository[StateMetadata]
}

// New creates a loader over an existing typed repository.
func New(repo *loam.TypedRepository[StateMetadata]) *Loader {
	return &Loader{Repo: repo}
}

// NewFromPath opens the directory at path as a read-only Loam repository
// and returns a loader over it.
func NewFromPath(path string) (*Loader, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve definition path: %w", err)
	}

	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open definition repository: %w", err)
	}

	return New(loam.NewTypedRepository[StateMetadata](repo)), nil
}

// Load reads every document and assembles the definition. The result is not
// yet structurally validated; schema.Build validates before binding.
func (l *Loader) Load(ctx context.Context) (*schema.Definition, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	def := &schema.Definition{
		States:   make(map[string]schema.StateDef, len(docs)),
		Triggers: make(map[string]schema.TriggerDef),
	}
	seen := make(map[string]string)

	for _, doc := range docs {
		id := trimExtension(doc.ID)

		// Collision Detection
		if existingPath, ok := seen[id]; ok {
			return nil, fmt.Errorf("collision detected: state %q is defined in both %q and %q", id, existingPath, doc.ID)
		}
		seen[id] = doc.ID

		meta := doc.Data
		if meta.Name != "" && def.Name == "" {
			def.Name = meta.Name
		}
		if meta.Initial {
			if def.Initial != "" {
				return nil, fmt.Errorf("initial state declared twice: %q and %q", def.Initial, id)
			}
			def.Initial = id
		}

		def.States[id] = schema.StateDef{
			Superstate:  trimExtension(meta.Superstate),
			OnEntry:     meta.OnEntry,
			OnExit:      meta.OnExit,
			Transitions: convertTransitions(meta.Transitions),
		}

		for trigger, params := range meta.Triggers {
			if existing, ok := def.Triggers[trigger]; ok && !equalParams(existing.Params, params) {
				return nil, fmt.Errorf("trigger %q declared with conflicting params", trigger)
			}
			def.Triggers[trigger] = schema.TriggerDef{Params: params}
		}
	}

	if def.Initial == "" {
		return nil, fmt.Errorf("no document declares initial: true")
	}

	return def, nil
}

func convertTransitions(lts []LoaderTransition) []schema.TransitionDef {
	if len(lts) == 0 {
		return nil
	}

	out := make([]schema.TransitionDef, len(lts))
	for i, lt := range lts {
		out[i] = schema.TransitionDef{
			Trigger:  lt.Trigger,
			To:       trimExtension(lt.To),
			Guard:    lt.Guard,
			Dynamic:  lt.Dynamic,
			Internal: lt.Internal,
			Ignore:   lt.Ignore,
		}
	}
	return out
}

func equalParams(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}
