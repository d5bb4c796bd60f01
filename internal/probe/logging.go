// Package probe provides observers that report policy evaluation events.
package probe

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alechenninger/httppolicy/internal/pointcut"
	"github.com/alechenninger/httppolicy/internal/policy"
)

type requestIDKey struct{}

// RequestID returns the evaluation request ID stored in ctx, if any
func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}

// loggingObserver creates request-scoped logging probes
type loggingObserver struct {
	logger *slog.Logger
}

// NewLoggingEvaluationObserver creates an observer that logs pointcut evaluation
// events using structured logging with slog.
//
// Each evaluation is tagged with a request ID. An ID already present in the
// context is reused so nested evaluations of one request correlate.
func NewLoggingEvaluationObserver(logger *slog.Logger) policy.Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingObserver{
		logger: logger,
	}
}

func (o *loggingObserver) EvaluationStarted(
	ctx context.Context,
	phase policy.Phase,
	params *pointcut.Parameters,
) (context.Context, policy.EvaluationProbe) {
	id, ok := RequestID(ctx)
	if !ok {
		id = uuid.NewString()
		ctx = context.WithValue(ctx, requestIDKey{}, id)
	}

	logger := o.logger.With(slog.String("request_id", id))

	attrs := []slog.Attr{
		slog.String("phase", string(phase)),
	}
	if params != nil {
		attrs = append(attrs,
			slog.String("method", params.Method()),
			slog.String("path", params.Path()),
			slog.Any("headers", params.Headers().Names()),
		)
		if masked, ok := params.MaskedRequestPath(); ok {
			attrs = append(attrs, slog.String("masked_path", masked))
		}
	}

	logger.LogAttrs(ctx, slog.LevelDebug, "Evaluating policy pointcuts", attrs...)

	return ctx, &loggingProbe{
		ctx:    ctx,
		logger: logger,
		phase:  phase,
	}
}

// loggingProbe is a request-scoped probe that logs events for a single evaluation
type loggingProbe struct {
	ctx    context.Context
	logger *slog.Logger
	phase  policy.Phase
}

func (p *loggingProbe) PointcutEvaluated(d *policy.Declaration, matched bool) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"Pointcut evaluated",
		slog.String("policy", d.Name),
		slog.Bool("matched", matched),
	)
}

func (p *loggingProbe) End(applicable []*policy.Declaration) {
	p.logger.LogAttrs(p.ctx, slog.LevelInfo,
		"Policy evaluation completed",
		slog.String("phase", string(p.phase)),
		slog.Any("applicable_policies", policy.Names(applicable)),
	)
}
