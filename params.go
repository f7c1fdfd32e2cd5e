package espalier

import (
	"fmt"
	"reflect"
)

// ParameterSpec declares the expected count and types of the arguments a
// trigger is fired with. Arguments are checked by assignability when the
// invocation is dequeued, not when Fire accepts it; a nil argument satisfies
// any declared type.
type ParameterSpec struct {
	types []reflect.Type
}

// Types returns the declared argument types in order.
func (ps *ParameterSpec) Types() []reflect.Type {
	out := make([]reflect.Type, len(ps.types))
	copy(out, ps.types)
	return out
}

// Arity returns the declared argument count.
func (ps *ParameterSpec) Arity() int { return len(ps.types) }

func (ps *ParameterSpec) validate(trigger any, args []any) error {
	if len(args) != len(ps.types) {
		return &ArgumentShapeError{
			Trigger:  trigger,
			Position: -1,
			Message:  fmt.Sprintf("expected %d arguments, got %d", len(ps.types), len(args)),
		}
	}
	for i, want := range ps.types {
		if args[i] == nil {
			continue
		}
		got := reflect.TypeOf(args[i])
		if !got.AssignableTo(want) {
			return &ArgumentShapeError{
				Trigger:  trigger,
				Position: i,
				Message:  fmt.Sprintf("argument %d is %v, expected %v", i, got, want),
			}
		}
	}
	return nil
}

// TypeOf returns the reflect.Type of A. Unlike reflect.TypeOf on a zero
// value it also works for interface types.
func TypeOf[A any]() reflect.Type {
	return reflect.TypeOf((*A)(nil)).Elem()
}

// Args1 declares a one-argument parameter shape.
func Args1[A any]() []reflect.Type {
	return []reflect.Type{TypeOf[A]()}
}

// Args2 declares a two-argument parameter shape.
func Args2[A, B any]() []reflect.Type {
	return []reflect.Type{TypeOf[A](), TypeOf[B]()}
}

// Args3 declares a three-argument parameter shape.
func Args3[A, B, C any]() []reflect.Type {
	return []reflect.Type{TypeOf[A](), TypeOf[B](), TypeOf[C]()}
}

// ArgAt extracts the i-th fire argument as V. ok is false when the index is
// out of range or the argument has a different dynamic type.
func ArgAt[V any](args []any, i int) (V, bool) {
	var zero V
	if i < 0 || i >= len(args) {
		return zero, false
	}
	v, ok := args[i].(V)
	if !ok {
		return zero, false
	}
	return v, true
}
