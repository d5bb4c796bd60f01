package policy

import (
	"context"

	"github.com/alechenninger/httppolicy/internal/pointcut"
)

// Observer creates request-scoped probes for pointcut evaluation
type Observer interface {
	// EvaluationStarted is called before the declarations of a phase are evaluated
	EvaluationStarted(ctx context.Context, phase Phase, params *pointcut.Parameters) (context.Context, EvaluationProbe)
}

// EvaluationProbe receives events for a single evaluation
type EvaluationProbe interface {
	PointcutEvaluated(d *Declaration, matched bool)
	End(applicable []*Declaration)
}

// NoopObserver returns an observer that ignores all events
func NoopObserver() Observer {
	return noopObserver{}
}

type noopObserver struct{}

func (noopObserver) EvaluationStarted(ctx context.Context, _ Phase, _ *pointcut.Parameters) (context.Context, EvaluationProbe) {
	return ctx, noopProbe{}
}

type noopProbe struct{}

func (noopProbe) PointcutEvaluated(*Declaration, bool) {}
func (noopProbe) End([]*Declaration) {}
