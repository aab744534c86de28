package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/tendril/internal/logging"
	"github.com/aretw0/tendril/pkg/chain"
	"github.com/aretw0/tendril/pkg/delegation"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/observability"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/aretw0/tendril/pkg/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Runner executes the Resolve and Run phases of steps.
type Runner struct {
	store    *store.Store
	provider ports.Provider
	answers  ports.AnswerSink
	resolver *AgentResolver
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
	maxIter  int
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics enables metrics collection.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithMaxStackIterations bounds the delegation computation of each Resolve.
func WithMaxStackIterations(n int) Option {
	return func(r *Runner) {
		r.maxIter = n
	}
}

// WithAnswerSink overrides where closer steps record the final answer.
// Defaults to the message repository.
func WithAnswerSink(s ports.AnswerSink) Option {
	return func(r *Runner) {
		if s != nil {
			r.answers = s
		}
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
// Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runner) {
		if tp != nil {
			r.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewRunner creates a runner over s that generates text with p.
func NewRunner(s *store.Store, p ports.Provider, opts ...Option) *Runner {
	r := &Runner{
		store:    s,
		provider: p,
		answers:  s.Messages,
		resolver: NewAgentResolver(s.Agents),
		logger:   logging.NewNop(),
		tracer:   otel.GetTracerProvider().Tracer(tracerName),
		maxIter:  delegation.DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve computes the delegation stack of a step and marks it as a closer
// when nothing is left to run. Failures are returned and not recorded on the
// step.
func (r *Runner) Resolve(ctx context.Context, stepID int64) (err error) {
	step, err := r.store.Steps.Get(ctx, stepID)
	if err != nil {
		return err
	}

	ctx, span := r.startStepSpan(ctx, "resolve", step)
	defer func() {
		if err != nil {
			r.metrics.ObserveResolveFailure()
		}
		endSpan(span, err)
	}()

	log := r.logger.With("conv_id", step.ConvID, "step_id", step.ID)

	if err := r.store.Steps.UpdateResolveStart(ctx, step.ID); err != nil {
		return err
	}

	stack, input, err := r.resolveInput(ctx, step)
	if err != nil {
		return err
	}

	next, err := delegation.ComputeNext(ctx, stack, chain.ParseInput(input), r.resolver,
		delegation.WithMaxIterations(r.maxIter))
	if err != nil {
		return fmt.Errorf("failed to compute next stack: %w", err)
	}

	end := store.ResolveEnd{Closer: next.IsEmpty()}
	if !end.Closer {
		top, _ := next.Peek()
		agent, err := r.resolver.AgentByUID(ctx, top.AgentUID)
		if err != nil {
			return err
		}
		end.Model = agent.Model
	}
	if end.CallStack, err = next.ToJSON(); err != nil {
		return err
	}

	if err := r.store.Steps.UpdateResolveEnd(ctx, step.ID, end); err != nil {
		return err
	}

	span.SetAttributes(attribute.Bool("step.closer", end.Closer), attribute.Int("stack.len", next.Len()))
	r.metrics.ObserveResolve(end.Closer)
	log.Debug("Step resolved", "closer", end.Closer, "model", end.Model, "stack", end.CallStack)
	return nil
}

// resolveInput returns the stack to advance and the text the chain is
// evaluated against. A first step starts at the conversation agent with the
// user message; later steps continue from their predecessor.
func (r *Runner) resolveInput(ctx context.Context, step *domain.Step) (*delegation.Stack, string, error) {
	if step.IsFirst() {
		text, err := r.messageText(ctx, step)
		if err != nil {
			return nil, "", err
		}
		conv, err := r.store.Convs.Get(ctx, step.ConvID)
		if err != nil {
			return nil, "", err
		}
		agent, err := r.store.Agents.Get(ctx, conv.AgentID)
		if err != nil {
			return nil, "", err
		}
		return delegation.NewAtAgent(agent.UID), text, nil
	}

	prev, err := r.store.Steps.Get(ctx, *step.PrevStepID)
	if err != nil {
		return nil, "", err
	}
	if prev.CallStack == nil {
		return nil, "", fmt.Errorf("%w: step %d", domain.ErrPrevStepNoStack, prev.ID)
	}
	if prev.CallOut == nil {
		return nil, "", fmt.Errorf("%w: step %d", domain.ErrPrevStepNoOutput, prev.ID)
	}
	stack, err := delegation.FromJSON(*prev.CallStack)
	if err != nil {
		return nil, "", err
	}
	return stack, *prev.CallOut, nil
}

// Run executes a resolved step. Failures are recorded on the step and
// returned; no successor is created for a failed step.
func (r *Runner) Run(ctx context.Context, stepID int64) (res domain.RunResult, err error) {
	step, err := r.store.Steps.Get(ctx, stepID)
	if err != nil {
		return 0, err
	}

	ctx, span := r.startStepSpan(ctx, "run", step)
	defer func() { endSpan(span, err) }()

	log := r.logger.With("conv_id", step.ConvID, "step_id", step.ID)

	if err := r.store.Steps.UpdateRunStart(ctx, step.ID); err != nil {
		return 0, err
	}

	res, err = r.run(ctx, step)
	if err != nil {
		r.metrics.ObserveRun(observability.ResultFailed)
		log.Warn("Step run failed", "error", err)
		if ferr := r.store.Steps.UpdateRunEndFail(ctx, step.ID, err); ferr != nil {
			return 0, errors.Join(err, ferr)
		}
		return 0, err
	}

	if res == domain.RunEnded {
		r.metrics.ObserveRun(observability.ResultEnded)
	} else {
		r.metrics.ObserveRun(observability.ResultOngoing)
	}
	span.SetAttributes(attribute.String("step.result", res.String()))
	log.Debug("Step run", "result", res)
	return res, nil
}

func (r *Runner) run(ctx context.Context, step *domain.Step) (domain.RunResult, error) {
	if step.Closer {
		return r.close(ctx, step)
	}

	if step.CallStack == nil {
		return 0, fmt.Errorf("%w: step %d was not resolved", domain.ErrStackEmptyOnRun, step.ID)
	}
	stack, err := delegation.FromJSON(*step.CallStack)
	if err != nil {
		return 0, err
	}
	item, ok := stack.Pop()
	if !ok {
		return 0, fmt.Errorf("%w: step %d", domain.ErrStackEmptyOnRun, step.ID)
	}

	agent, err := r.resolver.AgentByUID(ctx, item.AgentUID)
	if err != nil {
		return 0, err
	}
	if agent.Model == "" {
		return 0, fmt.Errorf("%w: '%s'", domain.ErrModelMissing, agent.Name)
	}

	input, err := r.runInput(ctx, step)
	if err != nil {
		return 0, err
	}
	prompt, err := RenderPrompt(agent.PromptTmpl, input)
	if err != nil {
		return 0, err
	}

	out, err := r.generate(ctx, agent, ports.GenRequest{
		Prompt:       prompt,
		Instructions: agent.Inst,
		Format:       agent.OutFormat,
	})
	if err != nil {
		return 0, err
	}

	if err := r.store.Steps.UpdateRunEndOK(ctx, step.ID, out, agent); err != nil {
		return 0, err
	}
	if _, err := r.store.Steps.CreateNextFromStep(ctx, step); err != nil {
		return 0, err
	}
	return domain.RunOngoing, nil
}

func (r *Runner) close(ctx context.Context, step *domain.Step) (domain.RunResult, error) {
	out, err := r.store.Steps.GetPrevStepCallOut(ctx, step)
	if err != nil {
		return 0, err
	}
	if out == nil {
		return 0, fmt.Errorf("%w: closer step %d", domain.ErrPrevStepNoOutput, step.ID)
	}
	if _, err := r.answers.RecordAnswer(ctx, step, *out); err != nil {
		return 0, fmt.Errorf("failed to record answer: %w", err)
	}
	if err := r.store.Steps.UpdateRunEndClosed(ctx, step.ID); err != nil {
		return 0, err
	}
	return domain.RunEnded, nil
}

// runInput is the text handed to the running agent: the user message on the
// first step, the previous output afterwards.
func (r *Runner) runInput(ctx context.Context, step *domain.Step) (string, error) {
	if step.IsFirst() {
		return r.messageText(ctx, step)
	}
	out, err := r.store.Steps.GetPrevStepCallOut(ctx, step)
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", fmt.Errorf("%w: step %d", domain.ErrPrevStepNoOutput, *step.PrevStepID)
	}
	return *out, nil
}

func (r *Runner) messageText(ctx context.Context, step *domain.Step) (string, error) {
	msg, err := r.store.Messages.Get(ctx, step.OrigMsgID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("%w: message %d", domain.ErrStepNoMessage, step.OrigMsgID)
		}
		return "", err
	}
	if msg.Content == "" {
		return "", fmt.Errorf("%w: message %d", domain.ErrStepNoMessage, msg.ID)
	}
	return msg.Content, nil
}

func (r *Runner) generate(ctx context.Context, agent *domain.Agent, req ports.GenRequest) (out string, err error) {
	ctx, span := r.startGenerateSpan(ctx, agent)
	defer func() { endSpan(span, err) }()

	start := time.Now()
	out, err = r.provider.Generate(ctx, agent.Model, req)
	r.metrics.ObserveGenerate(agent.Model, time.Since(start))
	if err != nil {
		var perr *domain.ProviderError
		if errors.As(err, &perr) || errors.Is(err, domain.ErrModelNotImplemented) {
			return "", err
		}
		return "", &domain.ProviderError{Model: agent.Model, Err: err}
	}
	return out, nil
}

// Advance moves a conversation forward by at most one phase pair: it
// resolves the oldest unresolved step, then runs the oldest resolved step
// not yet run. ran is false when there was nothing to run.
func (r *Runner) Advance(ctx context.Context, convID int64) (res domain.RunResult, ran bool, err error) {
	next, err := r.store.Steps.SeekNextToResolve(ctx, convID)
	switch {
	case err == nil:
		if err := r.Resolve(ctx, next.ID); err != nil {
			return 0, false, err
		}
	case !errors.Is(err, domain.ErrNotFound):
		return 0, false, err
	}

	toRun, err := r.store.Steps.SeekNextToRun(ctx, convID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	res, err = r.Run(ctx, toRun.ID)
	return res, true, err
}

// Drain advances a conversation until its pending traversal ends, fails or
// stalls.
func (r *Runner) Drain(ctx context.Context, convID int64) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, ran, err := r.Advance(ctx, convID)
		if err != nil {
			return err
		}
		if !ran || res == domain.RunEnded {
			return nil
		}
	}
}
