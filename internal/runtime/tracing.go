package runtime

import (
	"context"

	"github.com/aretw0/tendril/pkg/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/aretw0/tendril/internal/runtime"

func (r *Runner) startStepSpan(ctx context.Context, phase string, step *domain.Step) (context.Context, trace.Span) {
	ctx, span := r.tracer.Start(ctx, "step."+phase)
	span.SetAttributes(
		attribute.Int64("step.id", step.ID),
		attribute.Int64("step.conv_id", step.ConvID),
		attribute.Bool("step.first", step.IsFirst()),
	)
	return ctx, span
}

func (r *Runner) startGenerateSpan(ctx context.Context, agent *domain.Agent) (context.Context, trace.Span) {
	ctx, span := r.tracer.Start(ctx, "provider.generate")
	span.SetAttributes(
		attribute.String("agent.uid", agent.UID),
		attribute.String("agent.name", agent.Name),
		attribute.String("provider.model", agent.Model),
	)
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
