package conv_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/tendril/internal/codec"
	"github.com/aretw0/tendril/pkg/adapters/memory"
	"github.com/aretw0/tendril/pkg/conv"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService(t *testing.T) {
	ctx := context.Background()
	s := store.New(memory.NewStore())
	hub := memory.NewHub()

	_, err := s.Agents.Create(ctx, domain.AgentForCreate{UID: "helper", Name: "Helper", Model: "fc-mock-echo-prompt"})
	require.NoError(t, err)

	events, err := hub.Subscribe(ctx, domain.TopicConvWork)
	require.NoError(t, err)

	svc := conv.NewService(s, hub)
	c, err := svc.CreateConv(ctx, "helper", "support")
	require.NoError(t, err)
	assert.Equal(t, "support", c.Title)
	assert.Nil(t, c.WorkNew)

	msg, err := svc.AddMessage(ctx, c.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, domain.AuthorUser, msg.AuthorKind)
	assert.Equal(t, "hello", msg.Content)

	select {
	case payload := <-events:
		ev, err := codec.DecodeWorkEvent(payload)
		require.NoError(t, err)
		assert.Equal(t, domain.WorkNew, ev.Kind)
		assert.Equal(t, c.ID, ev.ConvID)
	case <-time.After(time.Second):
		t.Fatal("WorkNew not published")
	}

	steps, err := svc.ListSteps(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.True(t, steps[0].IsFirst())
	assert.Equal(t, msg.ID, steps[0].OrigMsgID)

	msgs, err := svc.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	got, err := s.Convs.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.WorkNew)
}

func TestService_Errors(t *testing.T) {
	ctx := context.Background()
	s := store.New(memory.NewStore())
	svc := conv.NewService(s, nil)

	_, err := svc.CreateConv(ctx, "missing", "")
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)

	_, err = svc.AddMessage(ctx, 99, "hello")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.AddMessage(ctx, 1, "   ")
	assert.ErrorIs(t, err, domain.ErrStepNoMessage)

	_, err = svc.ListMessages(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
