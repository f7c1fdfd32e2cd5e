package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/adapters/file"
	loamadapter "github.com/aretw0/espalier/pkg/adapters/loam"
	"github.com/aretw0/espalier/pkg/adapters/memory"
	redisadapter "github.com/aretw0/espalier/pkg/adapters/redis"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/aretw0/espalier/pkg/schema"
)

// EngineConfig selects the definition source and the state backend for an
// engine assembled by the CLI.
type EngineConfig struct {
	// Path is a definition YAML file or a loam state-document directory.
	Path string

	// Backend is one of "memory", "file", or "redis". Empty means memory.
	Backend string

	// StatePath is the state file for the file backend. Empty uses the
	// adapter default.
	StatePath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// MachineID identifies this machine's key in shared backends.
	MachineID string

	Logger *slog.Logger

	// Echo receives one line per stub action execution. Nil discards.
	Echo io.Writer
}

// LoadDefinition resolves path into a Definition. A .yaml or .yml file is
// parsed directly; anything else is treated as a loam repository directory
// with one document per state.
func LoadDefinition(ctx context.Context, path string) (*schema.Definition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read definition at %q: %w", path, err)
	}

	if !info.IsDir() {
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			return schema.Load(path)
		default:
			return nil, fmt.Errorf("unsupported definition file %q (want .yaml or .yml)", path)
		}
	}

	loader, err := loamadapter.NewFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open definition repository at %q: %w", path, err)
	}
	return loader.Load(ctx)
}

// NewEngine loads the definition at cfg.Path, binds every referenced guard,
// action, and resolver to a stub, and compiles the result onto the selected
// state backend. Fresh backends are seeded with the definition's initial
// state; populated ones resume where they left off.
func NewEngine(ctx context.Context, cfg EngineConfig, opts ...espalier.Option[string, string]) (*espalier.Machine[string, string], *schema.Definition, error) {
	def, err := LoadDefinition(ctx, cfg.Path)
	if err != nil {
		return nil, nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	cell, err := newCell(ctx, cfg, def.Initial)
	if err != nil {
		return nil, nil, err
	}

	reg := StubRegistry(def, logger, cfg.Echo)
	m, err := schema.Build(def, reg, cell, opts...)
	if err != nil {
		return nil, nil, err
	}
	return m, def, nil
}

func newCell(ctx context.Context, cfg EngineConfig, initial string) (ports.StateCell[string], error) {
	switch cfg.Backend {
	case "", "memory":
		return memory.NewSeededCell(initial), nil

	case "file":
		cell := file.New[string](cfg.StatePath)
		return seeded(ctx, cell, initial)

	case "redis":
		id := cfg.MachineID
		if id == "" {
			id = "default"
		}
		cell := redisadapter.New[string](cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, id)
		return seeded(ctx, cell, initial)

	default:
		return nil, fmt.Errorf("unknown state backend %q (want memory, file, or redis)", cfg.Backend)
	}
}

// seeded writes initial into an empty cell so the first Fire has a state to
// read. A populated cell is left alone.
func seeded(ctx context.Context, cell ports.StateCell[string], initial string) (ports.StateCell[string], error) {
	_, err := cell.Read(ctx)
	if errors.Is(err, ports.ErrStateNotFound) {
		if werr := cell.Write(ctx, initial); werr != nil {
			return nil, fmt.Errorf("cannot seed initial state: %w", werr)
		}
		return cell, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read state backend: %w", err)
	}
	return cell, nil
}

// StubRegistry binds every name the definition references to a default so a
// definition can be exercised before its real bindings exist: actions write
// one line to echo, guards pass and warn once through the logger, resolvers
// use their first string argument as the destination.
func StubRegistry(def *schema.Definition, logger *slog.Logger, echo io.Writer) *schema.Registry {
	if echo == nil {
		echo = io.Discard
	}
	reg := schema.NewRegistry()
	var warned sync.Map

	warnOnce := func(kind, name string) {
		if _, dup := warned.LoadOrStore(kind+"/"+name, true); !dup {
			logger.Warn("name not bound, using stub", "kind", kind, "name", name)
		}
	}

	for _, state := range def.StateNames() {
		sd := def.States[state]
		for _, name := range sd.OnEntry {
			reg.RegisterEntryAction(name, stubEntry(echo, name))
		}
		for _, name := range sd.OnExit {
			reg.RegisterExitAction(name, stubExit(echo, name))
		}
		for _, t := range sd.Transitions {
			if t.Guard != "" {
				reg.RegisterGuard(t.Guard, stubGuard(warnOnce, t.Guard))
			}
			if t.Internal != "" {
				reg.RegisterInternalAction(t.Internal, stubInternal(echo, t.Internal))
			}
			if t.Dynamic != "" {
				reg.RegisterResolver(t.Dynamic, stubResolver(t.Dynamic))
			}
		}
	}
	return reg
}

func stubEntry(echo io.Writer, name string) schema.EntryAction {
	return func(_ context.Context, tr espalier.Transition[string, string], _ ...any) (any, error) {
		fmt.Fprintf(echo, "  entry %s (%s)\n", name, tr.Destination)
		return nil, nil
	}
}

func stubExit(echo io.Writer, name string) schema.ExitAction {
	return func(_ context.Context, tr espalier.Transition[string, string]) error {
		fmt.Fprintf(echo, "  exit %s (%s)\n", name, tr.Source)
		return nil
	}
}

func stubInternal(echo io.Writer, name string) schema.InternalAction {
	return func(_ context.Context, tr espalier.Transition[string, string], _ ...any) error {
		fmt.Fprintf(echo, "  internal %s (%s)\n", name, tr.Source)
		return nil
	}
}

// stubGuard always passes. Definitions are explored permissively, and the
// warning tells the operator which bindings a real embedding must provide.
func stubGuard(warnOnce func(kind, name string), name string) schema.Guard {
	return func(_ ...any) bool {
		warnOnce("guard", name)
		return true
	}
}

// stubResolver routes to the first string argument of the trigger.
func stubResolver(name string) schema.Resolver {
	return func(args ...any) (string, error) {
		for _, a := range args {
			if s, ok := a.(string); ok && s != "" {
				return s, nil
			}
		}
		return "", fmt.Errorf("resolver %q is a stub and needs a string argument naming the destination", name)
	}
}
