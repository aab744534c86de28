package delegation_test

import (
	"testing"

	"github.com/aretw0/tendril/pkg/chain"
	"github.com/aretw0/tendril/pkg/delegation"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStack_LIFO(t *testing.T) {
	s := delegation.NewAtAgent("a")
	require.Equal(t, 1, s.Len())

	s.Push(delegation.Item{AgentUID: "b", Cursor: chain.Cursor{1, 0, 0}})
	top, ok := s.Peek()
	require.True(t, ok)
	assert.Equal(t, "b", top.AgentUID)
	assert.Equal(t, 2, s.Len())

	top, ok = s.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", top.AgentUID)

	bottom, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", bottom.AgentUID)
	assert.Equal(t, chain.Cursor{}, bottom.Cursor)

	assert.True(t, s.IsEmpty())
	_, ok = s.Pop()
	assert.False(t, ok)
	_, ok = s.Peek()
	assert.False(t, ok)
}

func TestStack_JSON(t *testing.T) {
	s := delegation.NewAtAgent("base")
	s.Push(delegation.Item{AgentUID: "callee", Cursor: chain.Cursor{1, 0, 2}})

	data, err := s.ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[
		{"agent_uid":"base","cursor":{"idxs":[]}},
		{"agent_uid":"callee","cursor":{"idxs":[1,0,2]}}
	]}`, data)

	back, err := delegation.FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, s, back)

	empty, err := (&delegation.Stack{}).ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[]}`, empty)
}

func TestStack_FromJSON_Errors(t *testing.T) {
	_, err := delegation.FromJSON(`{"items":`)
	assert.ErrorIs(t, err, domain.ErrStackParse)

	_, err = delegation.FromJSON(`{"items":[{"agent_uid":"a","cursor":{"idxs":[-2]}}]}`)
	assert.ErrorIs(t, err, domain.ErrStackParse)
}

func TestStack_Clone(t *testing.T) {
	s := delegation.NewAtAgent("a")
	s.Push(delegation.Item{AgentUID: "b", Cursor: chain.Cursor{0}})
	c := s.Clone()
	c.Items[1].Cursor[0] = 9
	c.Pop()
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, chain.Cursor{0}, s.Items[1].Cursor)
}
