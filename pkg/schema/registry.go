package schema

import (
	"sync"

	"github.com/aretw0/espalier"
)

// Aliases for the function shapes a Registry binds. Definitions always
// target machines with string states and string triggers.
type (
	Guard          = espalier.GuardFunc
	EntryAction    = espalier.EntryFunc[string, string]
	ExitAction     = espalier.ExitFunc[string, string]
	InternalAction = espalier.InternalActionFunc[string, string]
	Resolver       = espalier.DestinationFunc[string]
)

// Registry manages the named guards, actions, and resolvers available to
// Build.
type Registry struct {
	mu        sync.RWMutex
	guards    map[string]Guard
	entries   map[string]EntryAction
	exits     map[string]ExitAction
	internals map[string]InternalAction
	resolvers map[string]Resolver
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		guards:    make(map[string]Guard),
		entries:   make(map[string]EntryAction),
		exits:     make(map[string]ExitAction),
		internals: make(map[string]InternalAction),
		resolvers: make(map[string]Resolver),
	}
}

// RegisterGuard adds a guard to the registry.
// If a guard with the same name exists, it is overwritten.
func (r *Registry) RegisterGuard(name string, fn Guard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guards[name] = fn
}

// RegisterEntryAction adds an entry action to the registry.
// If an action with the same name exists, it is overwritten.
func (r *Registry) RegisterEntryAction(name string, fn EntryAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = fn
}

// RegisterExitAction adds an exit action to the registry.
// If an action with the same name exists, it is overwritten.
func (r *Registry) RegisterExitAction(name string, fn ExitAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exits[name] = fn
}

// RegisterInternalAction adds an internal transition action to the registry.
// If an action with the same name exists, it is overwritten.
func (r *Registry) RegisterInternalAction(name string, fn InternalAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.internals[name] = fn
}

// RegisterResolver adds a dynamic destination resolver to the registry.
// If a resolver with the same name exists, it is overwritten.
func (r *Registry) RegisterResolver(name string, fn Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[name] = fn
}

func (r *Registry) guard(name string) (Guard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.guards[name]
	return fn, ok
}

func (r *Registry) entry(name string) (EntryAction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.entries[name]
	return fn, ok
}

func (r *Registry) exit(name string) (ExitAction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.exits[name]
	return fn, ok
}

func (r *Registry) internal(name string) (InternalAction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.internals[name]
	return fn, ok
}

func (r *Registry) resolver(name string) (Resolver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.resolvers[name]
	return fn, ok
}
