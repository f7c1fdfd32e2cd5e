package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/espalier"
)

// LogTransitions returns an observer that logs every completed transition at
// INFO level.
func LogTransitions[S, T comparable](logger *slog.Logger) espalier.TransitionFunc[S, T] {
	return func(ctx context.Context, e espalier.TransitionEvent[S, T]) {
		logger.InfoContext(ctx, "transition",
			"seq", e.Seq,
			"source", e.Transition.Source,
			"destination", e.Transition.Destination,
			"trigger", e.Transition.Trigger,
			"reentry", e.Transition.IsReentry(),
		)
	}
}

// LogRejections returns an observer that logs every rejected trigger at WARN
// level.
func LogRejections[S, T comparable](logger *slog.Logger) espalier.RejectionFunc[S, T] {
	return func(ctx context.Context, e espalier.RejectionEvent[S, T]) {
		logger.WarnContext(ctx, "trigger rejected",
			"seq", e.Seq,
			"state", e.State,
			"trigger", e.Trigger,
			"guard_unmet", e.GuardUnmet(),
			"unmet_guards", e.UnmetGuards,
		)
	}
}
