package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/tendril/pkg/adapters/memory"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 15, 9, 26, 535000, time.UTC)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(memory.NewStore(), store.WithClock(func() time.Time { return fixedNow }))
}

func seedConv(t *testing.T, s *store.Store) (convID, msgID int64) {
	t.Helper()
	ctx := context.Background()
	agentID, err := s.Agents.Create(ctx, domain.AgentForCreate{Name: "Base", Model: "fc-mock-echo-inst"})
	require.NoError(t, err)
	convID, err = s.Convs.Create(ctx, agentID, "")
	require.NoError(t, err)
	msgID, err = s.Messages.CreateUserMsg(ctx, convID, "hello")
	require.NoError(t, err)
	return convID, msgID
}

func TestAgents(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id, err := s.Agents.Create(ctx, domain.AgentForCreate{Name: "Writer", Model: "m1", Inst: "write"})
	require.NoError(t, err)
	_, err = s.Agents.Create(ctx, domain.AgentForCreate{UID: "second-writer", Name: "Writer"})
	require.NoError(t, err)

	a, err := s.Agents.Get(ctx, id)
	require.NoError(t, err)
	assert.NotEmpty(t, a.UID)
	assert.Equal(t, "Writer", a.Name)
	assert.Equal(t, domain.AgentKindAI, a.Kind)
	assert.Equal(t, domain.OutFormatText, a.OutFormat)
	assert.Equal(t, "m1", a.Model)
	assert.Empty(t, a.Chain)
	assert.Equal(t, fixedNow.Truncate(time.Microsecond), a.CTime)

	byName, err := s.Agents.FirstByName(ctx, "Writer")
	require.NoError(t, err)
	assert.Equal(t, id, byName.ID, "first match in storage order")

	byUID, err := s.Agents.GetByUID(ctx, "second-writer")
	require.NoError(t, err)
	assert.Equal(t, "Writer", byUID.Name)

	_, err = s.Agents.FirstByName(ctx, "nobody")
	var nf *domain.AgentNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "name", nf.By)
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)

	_, err = s.Agents.Get(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)

	all, err := s.Agents.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAgents_Upsert(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id, created, err := s.Agents.Upsert(ctx, domain.AgentForCreate{UID: "lib-1", Name: "One", Model: "a"})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := s.Agents.Upsert(ctx, domain.AgentForCreate{UID: "lib-1", Name: "One", Model: "b"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again)

	a, err := s.Agents.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "b", a.Model)
}

func TestSteps_Linkage(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	convID, msgID := seedConv(t, s)

	firstID, err := s.Steps.CreateFirstFromMsg(ctx, msgID)
	require.NoError(t, err)
	first, err := s.Steps.Get(ctx, firstID)
	require.NoError(t, err)
	require.NotNil(t, first.FirstStepID)
	assert.Equal(t, first.ID, *first.FirstStepID)
	assert.Nil(t, first.PrevStepID)
	assert.True(t, first.IsFirst())
	assert.Equal(t, msgID, first.OrigMsgID)
	assert.Equal(t, convID, first.ConvID)
	assert.False(t, first.Closer)

	nextID, err := s.Steps.CreateNextFromStep(ctx, first)
	require.NoError(t, err)
	next, err := s.Steps.Get(ctx, nextID)
	require.NoError(t, err)
	require.NotNil(t, next.PrevStepID)
	assert.Equal(t, first.ID, *next.PrevStepID)
	assert.Equal(t, *first.FirstStepID, *next.FirstStepID)
	assert.Equal(t, first.OrigMsgID, next.OrigMsgID)
	assert.Equal(t, first.ConvID, next.ConvID)

	third, err := s.Steps.CreateNextFromStep(ctx, next)
	require.NoError(t, err)
	got, err := s.Steps.Get(ctx, third)
	require.NoError(t, err)
	assert.Equal(t, firstID, *got.FirstStepID)
	assert.Equal(t, nextID, *got.PrevStepID)

	steps, err := s.Steps.ListForMsg(ctx, msgID)
	require.NoError(t, err)
	assert.Len(t, steps, 3)
}

func TestSteps_PhasesAndSeek(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	convID, msgID := seedConv(t, s)

	id, err := s.Steps.CreateFirstFromMsg(ctx, msgID)
	require.NoError(t, err)

	toResolve, err := s.Steps.SeekNextToResolve(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, id, toResolve.ID)
	_, err = s.Steps.SeekNextToRun(ctx, convID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Steps.UpdateResolveStart(ctx, id))
	toResolve, err = s.Steps.SeekNextToResolve(ctx, convID)
	require.NoError(t, err, "an unfinished resolve is sought again")
	assert.Equal(t, id, toResolve.ID)
	_, err = s.Steps.SeekNextToRun(ctx, convID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "not runnable until resolve ends")

	require.NoError(t, s.Steps.UpdateResolveEnd(ctx, id, store.ResolveEnd{CallStack: `{"items":[]}`, Model: "m", Closer: true}))
	step, err := s.Steps.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, step.IsResolved())
	assert.True(t, step.Closer)
	require.NotNil(t, step.ResolveModel)
	assert.Equal(t, "m", *step.ResolveModel)
	require.NotNil(t, step.ResolveTEnd)
	assert.Equal(t, fixedNow.Truncate(time.Microsecond), *step.ResolveTEnd)

	_, err = s.Steps.SeekNextToResolve(ctx, convID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	toRun, err := s.Steps.SeekNextToRun(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, id, toRun.ID)

	pending, err := s.Steps.PendingConvIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{convID}, pending)

	require.NoError(t, s.Steps.UpdateRunStart(ctx, id))
	toRun, err = s.Steps.SeekNextToRun(ctx, convID)
	require.NoError(t, err, "an unfinished run is sought again")
	assert.Equal(t, id, toRun.ID)
	pending, err = s.Steps.PendingConvIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{convID}, pending)

	require.NoError(t, s.Steps.UpdateRunEndFail(ctx, id, errors.New("boom")))
	step, err = s.Steps.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, step.IsRun())
	assert.True(t, step.Failed())
	require.NotNil(t, step.CallErr)
	assert.Equal(t, "boom", *step.CallErr)
	assert.NotNil(t, step.RunTEnd)

	pending, err = s.Steps.PendingConvIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSteps_PrevCallOut(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, msgID := seedConv(t, s)

	firstID, err := s.Steps.CreateFirstFromMsg(ctx, msgID)
	require.NoError(t, err)
	first, err := s.Steps.Get(ctx, firstID)
	require.NoError(t, err)

	out, err := s.Steps.GetPrevStepCallOut(ctx, first)
	require.NoError(t, err)
	assert.Nil(t, out)

	require.NoError(t, s.Steps.UpdateRunEndOK(ctx, firstID, "agent says hi", &domain.Agent{UID: "u1", Name: "One"}))
	nextID, err := s.Steps.CreateNextFromStep(ctx, first)
	require.NoError(t, err)
	next, err := s.Steps.Get(ctx, nextID)
	require.NoError(t, err)

	out, err = s.Steps.GetPrevStepCallOut(ctx, next)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "agent says hi", *out)

	first, err = s.Steps.Get(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, "One", *first.RunAgentName)
	assert.Equal(t, "u1", *first.RunAgentUID)
}

func TestMessages_RecordAnswer(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	convID, msgID := seedConv(t, s)

	stepID, err := s.Steps.CreateFirstFromMsg(ctx, msgID)
	require.NoError(t, err)
	step, err := s.Steps.Get(ctx, stepID)
	require.NoError(t, err)

	answer, err := s.Messages.RecordAnswer(ctx, step, "final")
	require.NoError(t, err)
	assert.Equal(t, domain.AuthorAgent, answer.AuthorKind)
	assert.Equal(t, convID, answer.ConvID)
	require.NotNil(t, answer.OrigMsgID)
	assert.Equal(t, msgID, *answer.OrigMsgID)

	found, err := s.Messages.AnswerFor(ctx, msgID)
	require.NoError(t, err)
	assert.Equal(t, answer.ID, found.ID)

	msgs, err := s.Messages.ListForConv(ctx, convID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.AuthorUser, msgs[0].AuthorKind)
	assert.Equal(t, "final", msgs[1].Content)
}

func TestConvs_Work(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	convID, _ := seedConv(t, s)

	c, err := s.Convs.Get(ctx, convID)
	require.NoError(t, err)
	assert.False(t, c.HasPendingWork())

	require.NoError(t, s.Convs.TouchWorkNew(ctx, convID))
	c, err = s.Convs.Get(ctx, convID)
	require.NoError(t, err)
	assert.True(t, c.HasPendingWork())

	require.NoError(t, s.Convs.TouchWorkDone(ctx, convID))
	c, err = s.Convs.Get(ctx, convID)
	require.NoError(t, err)
	assert.False(t, c.HasPendingWork())
}
