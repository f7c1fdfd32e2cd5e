package espalier

import (
	"fmt"
	"reflect"
	"runtime"
)

// GuardFunc gates whether a configured behavior applies to an invocation.
// Guards receive the fire arguments and must be free of side effects: they
// may be evaluated many times per invocation (resolution, CanFire,
// PermittedTriggers).
type GuardFunc func(args ...any) bool

// guardCondition pairs a predicate with the description reported when the
// condition rejects a trigger.
type guardCondition struct {
	fn   GuardFunc
	desc string
}

func (g guardCondition) met(args []any) bool {
	if g.fn == nil {
		return true
	}
	return g.fn(args...)
}

// transitionGuard is the guard set for one behavior. Every condition must
// pass for the behavior to apply; an empty set always passes.
type transitionGuard struct {
	conditions []guardCondition
}

func newTransitionGuard(fn GuardFunc, desc string) transitionGuard {
	if fn == nil {
		return transitionGuard{}
	}
	if desc == "" {
		desc = guardDescription(fn)
	}
	return transitionGuard{conditions: []guardCondition{{fn: fn, desc: desc}}}
}

func (tg transitionGuard) met(args []any) bool {
	for _, c := range tg.conditions {
		if !c.met(args) {
			return false
		}
	}
	return true
}

// unmet returns the descriptions of every failing condition.
func (tg transitionGuard) unmet(args []any) []string {
	var out []string
	for _, c := range tg.conditions {
		if !c.met(args) {
			out = append(out, c.desc)
		}
	}
	return out
}

// guardDescription recovers a usable name for an undescribed guard from its
// function symbol.
func guardDescription(fn GuardFunc) string {
	if pc := reflect.ValueOf(fn).Pointer(); pc != 0 {
		if f := runtime.FuncForPC(pc); f != nil {
			return f.Name()
		}
	}
	return fmt.Sprintf("%T", fn)
}
