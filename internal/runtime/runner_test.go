package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/tendril/internal/runtime"
	"github.com/aretw0/tendril/pkg/adapters/memory"
	"github.com/aretw0/tendril/pkg/delegation"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/observability"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/aretw0/tendril/pkg/provider"
	"github.com/aretw0/tendril/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioChain = `{
	"nodes": [
		{ "agent": "self" },
		{ "branch": [
			{ "cond": { "input": { "json_matches": { "pointer": "/category", "value": 1 } } },
			  "nodes": [ { "agent": { "name": "X" } }, { "agent": { "name": "Y" } } ] },
			{ "cond": { "input": { "json_matches": { "pointer": "/category", "value": 2 } } },
			  "nodes": [ { "agent": { "name": "Z" } } ] },
		] },
		{ "agent": { "name": "Final Agent" } },
	]
}`

type fixture struct {
	store  *store.Store
	runner *runtime.Runner
	convID int64
}

// newFixture seeds the scenario agents. The base agent echoes inst, so inst
// decides which branch arm the rest of the traversal takes.
func newFixture(t *testing.T, inst string, opts ...runtime.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	s := store.New(memory.NewStore())

	baseID, err := s.Agents.Create(ctx, domain.AgentForCreate{
		UID:   "agent-one",
		Name:  "Agent One",
		Model: provider.ModelEchoInst,
		Inst:  inst,
		Chain: scenarioChain,
	})
	require.NoError(t, err)
	for _, name := range []string{"X", "Y", "Z", "Final Agent"} {
		_, err := s.Agents.Create(ctx, domain.AgentForCreate{
			Name:  name,
			Model: provider.ModelEchoInst,
			Inst:  name + " response",
		})
		require.NoError(t, err)
	}

	convID, err := s.Convs.Create(ctx, baseID, "scenario")
	require.NoError(t, err)

	return &fixture{
		store:  s,
		runner: runtime.NewRunner(s, provider.NewManager(), opts...),
		convID: convID,
	}
}

func (f *fixture) send(t *testing.T, text string) int64 {
	t.Helper()
	ctx := context.Background()
	msgID, err := f.store.Messages.CreateUserMsg(ctx, f.convID, text)
	require.NoError(t, err)
	_, err = f.store.Steps.CreateFirstFromMsg(ctx, msgID)
	require.NoError(t, err)
	return msgID
}

func runAgents(steps []*domain.Step) []string {
	var names []string
	for _, s := range steps {
		if s.RunAgentName != nil {
			names = append(names, *s.RunAgentName)
		}
	}
	return names
}

func TestRunner_EndToEndEcho(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	f := newFixture(t, `{"category":1,"text":"classified"}`, runtime.WithMetrics(metrics))
	ctx := context.Background()

	msgID := f.send(t, "please classify me")
	require.NoError(t, f.runner.Drain(ctx, f.convID))

	answer, err := f.store.Messages.AnswerFor(ctx, msgID)
	require.NoError(t, err)
	assert.Equal(t, "Final Agent response", answer.Content)
	assert.Equal(t, domain.AuthorAgent, answer.AuthorKind)
	require.NotNil(t, answer.OrigMsgID)
	assert.Equal(t, msgID, *answer.OrigMsgID)

	steps, err := f.store.Steps.ListForMsg(ctx, msgID)
	require.NoError(t, err)
	// Four agent hops (Agent One, X, Y, Final Agent) plus the closer.
	require.Len(t, steps, 5)
	assert.Equal(t, []string{"Agent One", "X", "Y", "Final Agent"}, runAgents(steps))

	first := steps[0]
	for i, s := range steps {
		require.NotNil(t, s.FirstStepID)
		assert.Equal(t, first.ID, *s.FirstStepID, "step %d", i)
		assert.True(t, s.IsResolved())
		assert.True(t, s.IsRun())
		assert.False(t, s.Failed())
		if i == 0 {
			assert.Nil(t, s.PrevStepID)
		} else {
			require.NotNil(t, s.PrevStepID)
			assert.Equal(t, steps[i-1].ID, *s.PrevStepID)
		}
		assert.Equal(t, i == len(steps)-1, s.Closer, "step %d", i)
	}

	closer := steps[4]
	require.NotNil(t, closer.CallStack)
	assert.JSONEq(t, `{"items":[]}`, *closer.CallStack)
	assert.Nil(t, closer.ResolveModel)
	assert.NotNil(t, closer.RunTEnd)

	require.NotNil(t, steps[1].ResolveModel)
	assert.Equal(t, provider.ModelEchoInst, *steps[1].ResolveModel)

	assert.Equal(t, 1.0, stepsRun(t, reg, observability.ResultEnded))
	assert.Equal(t, 4.0, stepsRun(t, reg, observability.ResultOngoing))
}

func stepsRun(t *testing.T, reg *prometheus.Registry, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "tendril_steps_run_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "result" && l.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestRunner_SecondArm(t *testing.T) {
	f := newFixture(t, `{"category":2}`)
	ctx := context.Background()

	msgID := f.send(t, "hi")
	require.NoError(t, f.runner.Drain(ctx, f.convID))

	steps, err := f.store.Steps.ListForMsg(ctx, msgID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Agent One", "Z", "Final Agent"}, runAgents(steps))

	answer, err := f.store.Messages.AnswerFor(ctx, msgID)
	require.NoError(t, err)
	assert.Equal(t, "Final Agent response", answer.Content)
}

func TestRunner_NoArmMatches(t *testing.T) {
	f := newFixture(t, "plain text is not JSON")
	ctx := context.Background()

	msgID := f.send(t, "hi")
	require.NoError(t, f.runner.Drain(ctx, f.convID))

	steps, err := f.store.Steps.ListForMsg(ctx, msgID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Agent One", "Final Agent"}, runAgents(steps))
}

func TestRunner_ResolveStoresDelegationStack(t *testing.T) {
	f := newFixture(t, `{"category":1}`)
	ctx := context.Background()
	f.send(t, "hi")

	// First hop: the base agent runs itself.
	_, ran, err := f.runner.Advance(ctx, f.convID)
	require.NoError(t, err)
	require.True(t, ran)

	next, err := f.store.Steps.SeekNextToResolve(ctx, f.convID)
	require.NoError(t, err)
	require.NoError(t, f.runner.Resolve(ctx, next.ID))

	resolved, err := f.store.Steps.Get(ctx, next.ID)
	require.NoError(t, err)
	require.NotNil(t, resolved.CallStack)
	stack, err := delegation.FromJSON(*resolved.CallStack)
	require.NoError(t, err)

	require.Equal(t, 2, stack.Len())
	assert.Equal(t, "agent-one", stack.Items[0].AgentUID)
	assert.Equal(t, "[1,0,0]", stack.Items[0].Cursor.String())

	x, err := f.store.Agents.FirstByName(ctx, "X")
	require.NoError(t, err)
	top, _ := stack.Peek()
	assert.Equal(t, x.UID, top.AgentUID)
	assert.False(t, resolved.Closer)
}

func TestRunner_RunFailureIsCaptured(t *testing.T) {
	f := newFixture(t, `{"category":1}`)
	ctx := context.Background()

	a, err := f.store.Agents.GetByUID(ctx, "agent-one")
	require.NoError(t, err)
	require.NoError(t, f.store.Agents.Update(ctx, a.ID, domain.AgentForCreate{
		UID:   a.UID,
		Name:  a.Name,
		Model: "unknown-model",
		Chain: a.Chain,
	}))

	msgID := f.send(t, "hi")
	err = f.runner.Drain(ctx, f.convID)
	require.ErrorIs(t, err, domain.ErrModelNotImplemented)

	steps, err := f.store.Steps.ListForMsg(ctx, msgID)
	require.NoError(t, err)
	require.Len(t, steps, 1, "a failed run creates no successor")

	s := steps[0]
	assert.True(t, s.Failed())
	assert.NotNil(t, s.RunTEnd)
	require.NotNil(t, s.CallErr)
	assert.Contains(t, *s.CallErr, "unknown-model")
	assert.Nil(t, s.CallOut)
}

func TestRunner_ModelMissing(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	a, err := f.store.Agents.GetByUID(ctx, "agent-one")
	require.NoError(t, err)
	require.NoError(t, f.store.Agents.Update(ctx, a.ID, domain.AgentForCreate{UID: a.UID, Name: a.Name}))

	f.send(t, "hi")
	err = f.runner.Drain(ctx, f.convID)
	assert.ErrorIs(t, err, domain.ErrModelMissing)
}

func TestRunner_ResolveErrorsAreNotCaptured(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	a, err := f.store.Agents.GetByUID(ctx, "agent-one")
	require.NoError(t, err)
	require.NoError(t, f.store.Agents.Update(ctx, a.ID, domain.AgentForCreate{
		UID:   a.UID,
		Name:  a.Name,
		Model: a.Model,
		Chain: `{"nodes":[{"agent":{"name":"Nobody"}}]}`,
	}))

	f.send(t, "hi")
	next, err := f.store.Steps.SeekNextToResolve(ctx, f.convID)
	require.NoError(t, err)

	err = f.runner.Resolve(ctx, next.ID)
	var nf *domain.AgentNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Nobody", nf.Key)

	s, err := f.store.Steps.Get(ctx, next.ID)
	require.NoError(t, err)
	assert.NotNil(t, s.ResolveTStart)
	assert.Nil(t, s.ResolveTEnd)
	assert.Nil(t, s.CallErr)
}

func TestRunner_ResumesInterruptedResolve(t *testing.T) {
	f := newFixture(t, `{"category":2}`)
	ctx := context.Background()
	msgID := f.send(t, "hi")

	// A process stopped after stamping resolve_tstart.
	first, err := f.store.Steps.SeekNextToResolve(ctx, f.convID)
	require.NoError(t, err)
	require.NoError(t, f.store.Steps.UpdateResolveStart(ctx, first.ID))

	pending, err := f.store.Steps.PendingConvIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{f.convID}, pending)

	_, ran, err := f.runner.Advance(ctx, f.convID)
	require.NoError(t, err)
	assert.True(t, ran)

	require.NoError(t, f.runner.Drain(ctx, f.convID))
	answer, err := f.store.Messages.AnswerFor(ctx, msgID)
	require.NoError(t, err)
	assert.Equal(t, "Final Agent response", answer.Content)

	steps, err := f.store.Steps.ListForMsg(ctx, msgID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Agent One", "Z", "Final Agent"}, runAgents(steps))

	pending, err = f.store.Steps.PendingConvIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunner_ResumesInterruptedRun(t *testing.T) {
	f := newFixture(t, `{"category":2}`)
	ctx := context.Background()
	msgID := f.send(t, "hi")

	first, err := f.store.Steps.SeekNextToResolve(ctx, f.convID)
	require.NoError(t, err)
	require.NoError(t, f.runner.Resolve(ctx, first.ID))
	// A process stopped after stamping run_tstart.
	require.NoError(t, f.store.Steps.UpdateRunStart(ctx, first.ID))

	require.NoError(t, f.runner.Drain(ctx, f.convID))

	answer, err := f.store.Messages.AnswerFor(ctx, msgID)
	require.NoError(t, err)
	assert.Equal(t, "Final Agent response", answer.Content)

	steps, err := f.store.Steps.ListForMsg(ctx, msgID)
	require.NoError(t, err)
	require.Len(t, steps, 4)
	assert.Equal(t, []string{"Agent One", "Z", "Final Agent"}, runAgents(steps))
}

func TestRunner_FailedResolveIsRetried(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	a, err := f.store.Agents.GetByUID(ctx, "agent-one")
	require.NoError(t, err)
	broken := domain.AgentForCreate{
		UID:   a.UID,
		Name:  a.Name,
		Model: a.Model,
		Chain: `{"nodes":[{"agent":{"name":"Nobody"}}]}`,
	}
	require.NoError(t, f.store.Agents.Update(ctx, a.ID, broken))

	msgID := f.send(t, "hi")
	var nf *domain.AgentNotFoundError
	require.ErrorAs(t, f.runner.Drain(ctx, f.convID), &nf)

	_, err = f.store.Agents.Create(ctx, domain.AgentForCreate{
		Name:  "Nobody",
		Model: provider.ModelEchoInst,
		Inst:  "found",
	})
	require.NoError(t, err)

	require.NoError(t, f.runner.Drain(ctx, f.convID))
	answer, err := f.store.Messages.AnswerFor(ctx, msgID)
	require.NoError(t, err)
	assert.Equal(t, "found", answer.Content)
}

func TestRunner_EmptyMessage(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	f.send(t, "")
	next, err := f.store.Steps.SeekNextToResolve(ctx, f.convID)
	require.NoError(t, err)
	assert.ErrorIs(t, f.runner.Resolve(ctx, next.ID), domain.ErrStepNoMessage)
}

func TestRunner_StackLimit(t *testing.T) {
	f := newFixture(t, `{"category":1}`, runtime.WithMaxStackIterations(1))
	ctx := context.Background()
	f.send(t, "hi")

	// The first hop settles in one iteration.
	_, _, err := f.runner.Advance(ctx, f.convID)
	require.NoError(t, err)

	// Delegating to X needs a second iteration.
	_, _, err = f.runner.Advance(ctx, f.convID)
	assert.ErrorIs(t, err, domain.ErrStackLimit)
}

type recordingSink struct {
	answers []string
}

func (r *recordingSink) RecordAnswer(ctx context.Context, step *domain.Step, text string) (*domain.Message, error) {
	r.answers = append(r.answers, text)
	return &domain.Message{ConvID: step.ConvID, Content: text}, nil
}

type failingSink struct{}

func (failingSink) RecordAnswer(ctx context.Context, step *domain.Step, text string) (*domain.Message, error) {
	return nil, errors.New("sink down")
}

func TestRunner_CloserUsesAnswerSink(t *testing.T) {
	sink := &recordingSink{}
	f := newFixture(t, `{"category":2}`, runtime.WithAnswerSink(sink))
	ctx := context.Background()

	msgID := f.send(t, "hi")
	require.NoError(t, f.runner.Drain(ctx, f.convID))
	assert.Equal(t, []string{"Final Agent response"}, sink.answers)

	_, err := f.store.Messages.AnswerFor(ctx, msgID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunner_CloserFailureIsCaptured(t *testing.T) {
	f := newFixture(t, "", runtime.WithAnswerSink(failingSink{}))
	ctx := context.Background()

	msgID := f.send(t, "hi")
	err := f.runner.Drain(ctx, f.convID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")

	steps, err := f.store.Steps.ListForMsg(ctx, msgID)
	require.NoError(t, err)
	closer := steps[len(steps)-1]
	assert.True(t, closer.Closer)
	assert.True(t, closer.Failed())
}

var _ ports.AnswerSink = (*recordingSink)(nil)
