package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/tendril/internal/codec"
	"github.com/aretw0/tendril/internal/runtime"
	"github.com/aretw0/tendril/internal/worker"
	"github.com/aretw0/tendril/pkg/adapters/memory"
	"github.com/aretw0/tendril/pkg/conv"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/provider"
	"github.com/aretw0/tendril/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const relayChain = `{"nodes":[{"agent":"self"},{"agent":{"name":"Closer"}}]}`

type env struct {
	store  *store.Store
	hub    *memory.Hub
	worker *worker.Worker
	convs  *conv.Service
	conv   *domain.Conversation
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	s := store.New(memory.NewStore())
	hub := memory.NewHub()

	_, err := s.Agents.Create(ctx, domain.AgentForCreate{
		UID:   "relay",
		Name:  "Relay",
		Model: provider.ModelEchoPrompt,
		Chain: relayChain,
	})
	require.NoError(t, err)
	_, err = s.Agents.Create(ctx, domain.AgentForCreate{
		Name:       "Closer",
		Model:      provider.ModelEchoPrompt,
		PromptTmpl: "closing: {{.input}}",
	})
	require.NoError(t, err)

	convs := conv.NewService(s, hub)
	c, err := convs.CreateConv(ctx, "relay", "worker test")
	require.NoError(t, err)

	return &env{
		store:  s,
		hub:    hub,
		worker: worker.New(hub, s, runtime.NewRunner(s, provider.NewManager())),
		convs:  convs,
		conv:   c,
	}
}

func (e *env) answer(t *testing.T, msgID int64) string {
	t.Helper()
	var content string
	require.Eventually(t, func() bool {
		m, err := e.store.Messages.AnswerFor(context.Background(), msgID)
		if err != nil {
			return false
		}
		content = m.Content
		return true
	}, 5*time.Second, 10*time.Millisecond)
	return content
}

func TestWorker_AnswersMessages(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, e.worker.Start(ctx))
	defer func() {
		cancel()
		e.worker.Wait()
	}()

	first, err := e.convs.AddMessage(ctx, e.conv.ID, "hello")
	require.NoError(t, err)
	second, err := e.convs.AddMessage(ctx, e.conv.ID, "again")
	require.NoError(t, err)

	assert.Equal(t, "closing: hello", e.answer(t, first.ID))
	assert.Equal(t, "closing: again", e.answer(t, second.ID))

	assert.Eventually(t, func() bool {
		c, err := e.store.Convs.Get(context.Background(), e.conv.ID)
		return err == nil && c.WorkDone != nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWorker_Recover(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Stored before any worker listens, as after a crash.
	msgID, err := e.store.Messages.CreateUserMsg(ctx, e.conv.ID, "left behind")
	require.NoError(t, err)
	_, err = e.store.Steps.CreateFirstFromMsg(ctx, msgID)
	require.NoError(t, err)

	wctx, cancel := context.WithCancel(ctx)
	require.NoError(t, e.worker.Start(wctx))
	defer func() {
		cancel()
		e.worker.Wait()
	}()

	n, err := e.worker.Recover(wctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "closing: left behind", e.answer(t, msgID))

	n, err = e.worker.Recover(wctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWorker_Handle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	events, err := e.hub.Subscribe(ctx, domain.TopicConvWork)
	require.NoError(t, err)

	msg, err := conv.NewService(e.store, nil).AddMessage(ctx, e.conv.ID, "step by step")
	require.NoError(t, err)

	next := func() domain.WorkEvent {
		t.Helper()
		select {
		case payload := <-events:
			ev, err := codec.DecodeWorkEvent(payload)
			require.NoError(t, err)
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("no work event published")
			return domain.WorkEvent{}
		}
	}

	// Relay, Closer, then the closer step.
	for i := 0; i < 2; i++ {
		require.NoError(t, e.worker.Handle(ctx, domain.WorkEvent{Kind: domain.WorkNew, ConvID: e.conv.ID}))
		assert.Equal(t, domain.WorkNew, next().Kind)
	}
	require.NoError(t, e.worker.Handle(ctx, domain.WorkEvent{Kind: domain.WorkNew, ConvID: e.conv.ID}))
	assert.Equal(t, domain.WorkDone, next().Kind)
	assert.Equal(t, "closing: step by step", e.answer(t, msg.ID))

	// Nothing left: WorkDone publishes nothing.
	require.NoError(t, e.worker.Handle(ctx, domain.WorkEvent{Kind: domain.WorkDone, ConvID: e.conv.ID}))
	select {
	case <-events:
		t.Fatal("unexpected work event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWorker_DropsMalformedEvents(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, e.worker.Start(ctx))

	require.NoError(t, e.hub.Publish(ctx, domain.TopicConvWork, []byte{0xff}))
	msg, err := e.convs.AddMessage(ctx, e.conv.ID, "still works")
	require.NoError(t, err)
	assert.Equal(t, "closing: still works", e.answer(t, msg.ID))

	cancel()
	e.worker.Wait()
}
